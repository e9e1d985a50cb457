package unpack

import "fmt"

// Skip consumes the next value, including every element of a map or array,
// without decoding it. It counts as one top-level value.
func (u *Unpacker) Skip() error {
	window, err := u.next(true)
	if err != nil {
		return err
	}
	u.consume(len(window))
	return nil
}

// Discard drops n raw bytes, refilling as needed. Unlike Skip it does not
// buffer the whole range at once, so it can step over arbitrarily large
// regions. It returns the number of bytes dropped; when the source ends first
// the error wraps ErrInsufficientData.
func (u *Unpacker) Discard(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: discard %d", ErrNegativeSize, n)
	}
	dropped := 0
	for dropped < n {
		if err := u.buf.Ensure(1); err != nil {
			return dropped, err
		}
		step := min(n-dropped, u.buf.Len())
		u.buf.Advance(step)
		dropped += step
	}
	return dropped, nil
}
