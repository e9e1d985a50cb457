package unpack

// maxPrealloc bounds the capacity reserved from an array or map header, so a
// forged count cannot allocate more than the stream actually delivers.
const maxPrealloc = 1024

// UnpackList decodes an array of composite values. Nil elements are kept as nil
// pointers, and an encoded nil array yields a nil slice.
func UnpackList[T any, PT interface {
	*T
	Unpackable
}](u *Unpacker) ([]*T, error) {
	return UnpackSlice(u, Unpack[T, PT])
}

// UnpackSlice decodes an array whose elements are read by fn.
// The whole array counts as one top-level value.
func UnpackSlice[T any](u *Unpacker, fn func(*Unpacker) (T, error)) ([]T, error) {
	if isNil, err := u.TryUnpackNil(); err != nil || isNil {
		return nil, err
	}

	var items []T
	err := u.nested(func() error {
		n, err := u.UnpackArrayHeader()
		if err != nil {
			return err
		}
		items = make([]T, 0, int(min(n, maxPrealloc)))
		for i := uint32(0); i < n; i++ {
			item, err := fn(u)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UnpackStringMap decodes a map with string keys whose values are read by fn.
// The whole map counts as one top-level value.
func UnpackStringMap[V any](u *Unpacker, fn func(*Unpacker) (V, error)) (map[string]V, error) {
	if isNil, err := u.TryUnpackNil(); err != nil || isNil {
		return nil, err
	}

	var m map[string]V
	err := u.nested(func() error {
		n, err := u.UnpackMapHeader()
		if err != nil {
			return err
		}
		m = make(map[string]V, int(min(n, maxPrealloc)))
		for i := uint32(0); i < n; i++ {
			key, err := u.UnpackString()
			if err != nil {
				return err
			}
			if m[key], err = fn(u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
