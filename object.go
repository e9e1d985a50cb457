package unpack

import (
	"reflect"

	"github.com/tinylib/msgp/msgp"
)

// maxObjectDepth bounds the nesting of opaque objects, matching msgp.
const maxObjectDepth = 100000

// KeyValue is one entry of a map holding a key that cannot be a Go map key,
// such as an array or another map. Such maps decode to []KeyValue in stream order.
type KeyValue struct {
	Key   any
	Value any
}

// readObject decodes the value at the start of b into its opaque representation.
//
// Maps whose keys are all strings become map[string]any; binary keys count as
// strings. Any other map becomes map[any]any, or []KeyValue when one of its keys
// is not comparable. Scalars are read by msgp and raw extensions are passed to
// the registered extension decoders.
func readObject(b []byte, depth int) (any, []byte, error) {
	if depth >= maxObjectDepth {
		return nil, b, msgp.ErrRecursion
	}

	switch msgp.NextType(b) {
	case msgp.ArrayType:
		n, o, err := msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return nil, b, err
		}
		out := make([]any, 0, int(min(n, maxPrealloc)))
		for i := uint32(0); i < n; i++ {
			var v any
			if v, o, err = readObject(o, depth+1); err != nil {
				return nil, b, err
			}
			out = append(out, v)
		}
		return out, o, nil

	case msgp.MapType:
		n, o, err := msgp.ReadMapHeaderBytes(b)
		if err != nil {
			return nil, b, err
		}
		entries := make([]KeyValue, 0, int(min(n, maxPrealloc)))
		stringKeys := true
		for i := uint32(0); i < n; i++ {
			var e KeyValue
			if e.Key, o, err = readObject(o, depth+1); err != nil {
				return nil, b, err
			}
			if e.Value, o, err = readObject(o, depth+1); err != nil {
				return nil, b, err
			}
			switch k := e.Key.(type) {
			case string:
			case []byte:
				e.Key = string(k)
			default:
				stringKeys = false
			}
			entries = append(entries, e)
		}
		return buildMap(entries, stringKeys), o, nil
	}

	v, o, err := msgp.ReadIntfBytes(b)
	if err != nil {
		return nil, b, err
	}
	if v, err = resolveExtension(v); err != nil {
		return nil, b, err
	}
	return v, o, nil
}

func buildMap(entries []KeyValue, stringKeys bool) any {
	if stringKeys {
		m := make(map[string]any, len(entries))
		for _, e := range entries {
			m[e.Key.(string)] = e.Value
		}
		return m
	}
	for _, e := range entries {
		if e.Key != nil && !reflect.TypeOf(e.Key).Comparable() {
			return entries
		}
	}
	m := make(map[any]any, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m
}
