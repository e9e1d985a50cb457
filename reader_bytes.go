package unpack

// NewBytes creates an Unpacker over a fixed, pre-supplied block. The block is
// used in place without copying; no refill ever happens, so a value running
// past its end fails with ErrInsufficientData right away.
func NewBytes(data []byte) *Unpacker {
	return NewBytesWithOptions(data, nil)
}

// NewBytesWithOptions is NewBytes with explicit options.
func NewBytesWithOptions(data []byte, opts *Options) *Unpacker {
	return &Unpacker{buf: newFixedBuffer(data, opts)}
}

// Write appends p to the unread bytes. It lets a caller push data into an
// Unpacker created without a source and retry a call that failed with
// ErrInsufficientData.
func (u *Unpacker) Write(p []byte) (int, error) {
	if err := u.buf.Reserve(len(p)); err != nil {
		return 0, err
	}
	n := copy(u.buf.Tail(), p)
	u.buf.Consumed(n)
	return n, nil
}

// Feed is Write without the byte count.
func (u *Unpacker) Feed(p []byte) error {
	_, err := u.Write(p)
	return err
}

// Reserve makes room for at least n bytes in Tail.
func (u *Unpacker) Reserve(n int) error { return u.buf.Reserve(n) }

// Tail returns the free region where the caller may copy fresh bytes before
// reporting them with Consumed.
func (u *Unpacker) Tail() []byte { return u.buf.Tail() }

// Consumed records that n bytes were written into Tail.
func (u *Unpacker) Consumed(n int) { u.buf.Consumed(n) }
