package unpack

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/tinylib/msgp/msgp"
	"golang.org/x/exp/constraints"
)

// Options configures an Unpacker and its Buffer. The zero value is usable.
type Options struct {
	// ReserveSize controls the first allocation and the minimum growth increment.
	// Half of it is used internally. Zero means DefaultReserveSize.
	ReserveSize int

	// SizeLimit caps the buffer capacity. A value that cannot be buffered within
	// the limit fails with ErrLimitExceeded. Zero means unlimited.
	SizeLimit int

	// Logger receives debug events about buffer growth and refill failures.
	Logger log.Logger

	// Metrics records buffer and decode statistics when non-nil.
	Metrics *Metrics
}

func (o *Options) normalize() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.ReserveSize < 0 {
		panic(fmt.Errorf("%w: reserve size %d", ErrNegativeSize, out.ReserveSize))
	}
	if out.ReserveSize == 0 {
		out.ReserveSize = DefaultReserveSize
	}
	if out.Logger == nil {
		out.Logger = log.NewNopLogger()
	}
	return out
}

// Unpacker decodes MessagePack values one at a time from a lazily refilled Buffer.
//
// Every Unpack method either returns a value and advances past its encoding, or
// returns an error and leaves the read position where it was. Errors wrap
// ErrInsufficientData when the source ran dry before the value was complete and
// ErrMalformedData when the bytes do not encode the requested type.
//
// An Unpacker is not safe for concurrent use.
type Unpacker struct {
	buf    *Buffer
	parsed int
	depth  int // nesting level of composite callbacks
}

// New creates an Unpacker reading from r with the default reserve size.
// A nil r creates an Unpacker that is fed with Write.
func New(r io.Reader) *Unpacker {
	return NewWithOptions(r, nil)
}

// NewSize creates an Unpacker reading from r with the given reserve size.
func NewSize(r io.Reader, reserveSize int) *Unpacker {
	return NewWithOptions(r, &Options{ReserveSize: reserveSize})
}

// NewWithOptions creates an Unpacker reading from r.
func NewWithOptions(r io.Reader, opts *Options) *Unpacker {
	var rf Refiller
	if r != nil {
		rf = ReaderRefiller(r)
	}
	return NewFromRefiller(rf, opts)
}

// NewFromRefiller creates an Unpacker whose buffer is refilled by rf.
func NewFromRefiller(rf Refiller, opts *Options) *Unpacker {
	return &Unpacker{buf: NewBuffer(rf, opts)}
}

// Buffer returns the Buffer the Unpacker reads from.
func (u *Unpacker) Buffer() *Buffer { return u.buf }

// Parsed returns the number of top-level values decoded since construction.
func (u *Unpacker) Parsed() int { return u.parsed }

// Count returns the number of bytes consumed since construction.
func (u *Unpacker) Count() int64 { return u.buf.Count() }

// Buffered returns the number of bytes read from the source but not yet consumed.
func (u *Unpacker) Buffered() int { return u.buf.Len() }

// next returns a window over the next value without consuming it. With whole set
// the window spans every nested element; otherwise it stops after the header of
// a map or array.
//
// The length is resolved in two phases: the grammar first reports how many bytes
// it needs to read the header, then the total length, and each answer is made
// available with Ensure before asking again. A whole value is scanned
// incrementally, so every buffered byte is measured once.
func (u *Unpacker) next(whole bool) ([]byte, error) {
	sc := newScanner()
	need := 1
	for {
		if err := u.buf.Ensure(need); err != nil {
			return nil, err
		}
		window := u.buf.Unread()

		var n int
		var err error
		if whole {
			n, err = sc.scan(window)
		} else {
			n, _, err = measureHead(window)
		}
		if err != nil {
			var se *shortError
			if errors.As(err, &se) {
				need = se.need
				continue
			}
			return nil, u.malformed(err)
		}
		if n > len(window) {
			need = n
			continue
		}
		return window[:n], nil
	}
}

// consume advances past n decoded bytes and counts a top-level value.
func (u *Unpacker) consume(n int) {
	u.buf.Advance(n)
	if u.depth == 0 {
		u.parsed++
		u.buf.metrics.decoded()
	}
}

func (u *Unpacker) malformed(err error) error {
	u.buf.metrics.failed(reasonMalformed)
	level.Debug(u.buf.logger).Log("msg", "malformed value", "position", u.buf.Count(), "err", err)
	if errors.Is(err, ErrMalformedData) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrMalformedData, err)
}

// decode runs one decode step: measure, ensure, interpret with read, advance.
func decode[T any](u *Unpacker, whole bool, read func([]byte) (T, []byte, error)) (T, error) {
	var zero T
	window, err := u.next(whole)
	if err != nil {
		return zero, err
	}
	v, rest, err := read(window)
	if err != nil {
		return zero, u.malformed(err)
	}
	u.consume(len(window) - len(rest))
	return v, nil
}

// --- Primitive Unpack Operations ---

// UnpackBool reads a bool.
func (u *Unpacker) UnpackBool() (bool, error) {
	return decode(u, false, msgp.ReadBoolBytes)
}

// UnpackNil consumes a nil value.
func (u *Unpacker) UnpackNil() error {
	_, err := decode(u, false, func(b []byte) (struct{}, []byte, error) {
		o, err := msgp.ReadNilBytes(b)
		return struct{}{}, o, err
	})
	return err
}

// UnpackInt and the sized variants read a signed integer. Unsigned encodings
// are accepted when the value fits the target type.
func (u *Unpacker) UnpackInt() (int, error)     { return decode(u, false, msgp.ReadIntBytes) }
func (u *Unpacker) UnpackInt8() (int8, error)   { return decode(u, false, msgp.ReadInt8Bytes) }
func (u *Unpacker) UnpackInt16() (int16, error) { return decode(u, false, msgp.ReadInt16Bytes) }
func (u *Unpacker) UnpackInt32() (int32, error) { return decode(u, false, msgp.ReadInt32Bytes) }
func (u *Unpacker) UnpackInt64() (int64, error) { return decode(u, false, msgp.ReadInt64Bytes) }

// UnpackUint and the sized variants read an unsigned integer. Non-negative
// signed encodings are accepted when the value fits.
func (u *Unpacker) UnpackUint() (uint, error)     { return decode(u, false, msgp.ReadUintBytes) }
func (u *Unpacker) UnpackUint8() (uint8, error)   { return decode(u, false, msgp.ReadUint8Bytes) }
func (u *Unpacker) UnpackUint16() (uint16, error) { return decode(u, false, msgp.ReadUint16Bytes) }
func (u *Unpacker) UnpackUint32() (uint32, error) { return decode(u, false, msgp.ReadUint32Bytes) }
func (u *Unpacker) UnpackUint64() (uint64, error) { return decode(u, false, msgp.ReadUint64Bytes) }

// UnpackRune reads a character encoded as an integer.
func (u *Unpacker) UnpackRune() (rune, error) { return decode(u, false, msgp.ReadInt32Bytes) }

// UnpackFloat32 reads a float32; a float64 encoding is malformed for it.
func (u *Unpacker) UnpackFloat32() (float32, error) { return decode(u, false, msgp.ReadFloat32Bytes) }

// UnpackFloat64 reads a float64, widening an encoded float32.
func (u *Unpacker) UnpackFloat64() (float64, error) { return decode(u, false, msgp.ReadFloat64Bytes) }

// UnpackString reads a str value into a new string.
func (u *Unpacker) UnpackString() (string, error) { return decode(u, false, msgp.ReadStringBytes) }

// UnpackBytes reads a bin value into a newly allocated slice.
func (u *Unpacker) UnpackBytes() ([]byte, error) {
	return decode(u, false, func(b []byte) ([]byte, []byte, error) {
		return msgp.ReadBytesBytes(b, nil)
	})
}

// UnpackTime reads a timestamp extension.
func (u *Unpacker) UnpackTime() (time.Time, error) { return decode(u, false, msgp.ReadTimeBytes) }

// UnpackExtension reads an extension value into e. The extension type on the
// wire must match e.ExtensionType().
func (u *Unpacker) UnpackExtension(e msgp.Extension) error {
	_, err := decode(u, false, func(b []byte) (struct{}, []byte, error) {
		o, err := msgp.ReadExtensionBytes(b, e)
		return struct{}{}, o, err
	})
	return err
}

// UnpackArrayHeader reads the element count of an array. The elements
// themselves are left for the following calls.
func (u *Unpacker) UnpackArrayHeader() (uint32, error) {
	return decode(u, false, msgp.ReadArrayHeaderBytes)
}

// UnpackMapHeader reads the number of key/value pairs of a map.
func (u *Unpacker) UnpackMapHeader() (uint32, error) {
	return decode(u, false, msgp.ReadMapHeaderBytes)
}

// UnpackEnum reads an integer and converts it to the enumeration type T.
func UnpackEnum[T constraints.Integer](u *Unpacker) (T, error) {
	window, err := u.next(false)
	if err != nil {
		return 0, err
	}
	v, rest, err := msgp.ReadInt64Bytes(window)
	if err == nil {
		var out T
		if out, err = narrow[T](v); err == nil {
			u.consume(len(window) - len(rest))
			return out, nil
		}
	}
	return 0, u.malformed(err)
}

// --- Opaque Objects ---

// result is the outcome of one opaque object decode.
type result struct {
	value any
	err   error
}

func (r result) ok() bool { return r.err == nil }

func (u *Unpacker) unpackObject() result {
	v, err := decode(u, true, func(b []byte) (any, []byte, error) {
		return readObject(b, 0)
	})
	return result{value: v, err: err}
}

// UnpackObject decodes the next value without a static target type.
//
// Values are represented as nil, bool, int64, uint64, float32, float64, string,
// []byte, time.Time, []any, map[string]any, *msgp.RawExtension, or whatever a
// registered extension decoder returns. Maps with keys other than strings
// decode to map[any]any, or to []KeyValue when a key is an array or a map.
func (u *Unpacker) UnpackObject() (any, error) {
	r := u.unpackObject()
	return r.value, r.err
}

// TryUnpackObject is UnpackObject for callers that run their own refill loop:
// it reports failure with ok == false instead of an error. Use UnpackObject to
// tell insufficient data from malformed data.
func (u *Unpacker) TryUnpackObject() (v any, ok bool) {
	r := u.unpackObject()
	return r.value, r.ok()
}
