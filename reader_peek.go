package unpack

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// Peek returns the next n unread bytes without consuming them, refilling the
// buffer if needed. The slice is only valid until the next Unpacker call.
func (u *Unpacker) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: peek %d", ErrNegativeSize, n)
	}
	if err := u.buf.Ensure(n); err != nil {
		return nil, err
	}
	return u.buf.Unread()[:n], nil
}

// PeekType reports the MessagePack type of the next value without consuming it.
// The header of an extension is buffered so that timestamps and complex numbers
// are told apart from other extensions.
func (u *Unpacker) PeekType() (msgp.Type, error) {
	lead, err := u.Peek(1)
	if err != nil {
		return msgp.InvalidType, err
	}
	if n := extensionHeaderSize(lead[0]); n > 0 {
		head, err := u.Peek(n)
		if err != nil {
			return msgp.InvalidType, err
		}
		return extensionKind(int8(head[n-1])), nil
	}
	t := msgp.NextType(lead)
	if t == msgp.InvalidType {
		return t, u.malformed(msgp.InvalidPrefixError(lead[0]))
	}
	return t, nil
}

// IsNil reports whether the next value is nil, without consuming it.
func (u *Unpacker) IsNil() (bool, error) {
	b, err := u.Peek(1)
	if err != nil {
		return false, err
	}
	return b[0] == nilCode, nil
}

// TryUnpackNil consumes the next value only if it is nil.
//
// It is a single atomic step: either the one-byte nil marker is consumed and
// true is returned, or nothing at all is consumed.
func (u *Unpacker) TryUnpackNil() (bool, error) {
	isNil, err := u.IsNil()
	if err != nil || !isNil {
		return false, err
	}
	u.consume(1)
	return true, nil
}

// nested runs fn as one composite value: inner unpack calls are not counted as
// top-level values, the composite itself is counted once on success.
func (u *Unpacker) nested(fn func() error) error {
	u.depth++
	err := fn()
	u.depth--
	if err != nil {
		return err
	}
	if u.depth == 0 {
		u.parsed++
		u.buf.metrics.decoded()
	}
	return nil
}
