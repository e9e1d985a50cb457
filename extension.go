package unpack

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/tinylib/msgp/msgp"
)

// ExtensionFunc converts the payload of a MessagePack extension into a Go value.
// data is a private copy of the payload.
type ExtensionFunc func(data []byte) (any, error)

// extensions maps extension type codes to decoders used by UnpackObject.
// Registration may happen concurrently with decoding on other Unpackers.
var extensions = xsync.NewMap[int8, ExtensionFunc]()

// RegisterExtension installs fn as the decoder of extension type typ for opaque
// object decoding, replacing any previous decoder. Extensions without a decoder
// are returned as *msgp.RawExtension. Timestamps (-1 and 5) and the complex
// types (3 and 4) are decoded natively and never reach fn.
func RegisterExtension(typ int8, fn ExtensionFunc) {
	if fn == nil {
		panic("unpack: RegisterExtension called with a nil ExtensionFunc")
	}
	extensions.Store(typ, fn)
}

// UnregisterExtension removes the decoder of extension type typ.
func UnregisterExtension(typ int8) {
	extensions.Delete(typ)
}

// resolveExtension replaces a raw extension with the value produced by its
// registered decoder. Other values are returned unchanged.
func resolveExtension(v any) (any, error) {
	raw, ok := v.(*msgp.RawExtension)
	if !ok {
		return v, nil
	}
	fn, ok := extensions.Load(raw.Type)
	if !ok {
		return raw, nil
	}
	out, err := fn(raw.Data)
	if err != nil {
		return nil, fmt.Errorf("extension %d: %w", raw.Type, err)
	}
	return out, nil
}
