package unpack

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// Unpack decodes a composite value of type T.
//
// An encoded nil is consumed and returned as a nil pointer without calling
// UnpackFrom. Otherwise a new T is reconstructed by its UnpackFrom method.
// Fields consumed before a failure are not given back.
func Unpack[T any, PT interface {
	*T
	Unpackable
}](u *Unpacker) (*T, error) {
	v := PT(new(T))
	isNil, err := u.UnpackInto(v)
	if err != nil || isNil {
		return nil, err
	}
	return v, nil
}

// UnpackInto decodes the next value into v. It reports isNil when the value was
// an encoded nil, in which case v is left untouched.
func (u *Unpacker) UnpackInto(v Unpackable) (isNil bool, err error) {
	if isNil, err = u.TryUnpackNil(); err != nil || isNil {
		return isNil, err
	}
	return false, u.nested(func() error { return v.UnpackFrom(u) })
}

// UnpackMsg decodes one value with a msgp generated unmarshaler. The whole value
// is buffered first, so UnmarshalMsg always sees complete input.
func UnpackMsg(u *Unpacker, v msgp.Unmarshaler) error {
	window, err := u.next(true)
	if err != nil {
		return err
	}
	rest, err := v.UnmarshalMsg(window)
	if err != nil {
		return u.malformed(err)
	}
	u.consume(len(window) - len(rest))
	return nil
}

// Unmarshal decodes data into v. Unlike a streaming Unpacker it requires data to
// hold exactly one value and reports ErrTrailingData otherwise.
func Unmarshal(data []byte, v Unpackable) error {
	u := NewBytes(data)
	if _, err := u.UnpackInto(v); err != nil {
		return err
	}
	if n := u.Buffered(); n > 0 {
		return fmt.Errorf("%w: %d bytes left after %d consumed", ErrTrailingData, n, u.Count())
	}
	return nil
}
