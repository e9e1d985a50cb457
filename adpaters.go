package unpack

import (
	"fmt"
	"io"
)

// readerRefiller binds an io.Reader as the refill hook of a Buffer.
// Each Refill performs exactly one Read into the buffer tail.
type readerRefiller struct {
	r io.Reader
}

// ReaderRefiller wraps r as a Refiller. If r already implements Refiller it is
// returned directly.
func ReaderRefiller(r io.Reader) Refiller {
	if r == nil {
		panic("unpack: ReaderRefiller called with a nil io.Reader")
	}
	if rf, ok := r.(Refiller); ok {
		return rf
	}
	return &readerRefiller{r: r}
}

// Refill reads whatever the reader currently offers into the tail of b.
// Bytes returned together with io.EOF still count as a successful refill;
// the EOF is reported by the next call.
func (s *readerRefiller) Refill(b *Buffer) error {
	if len(b.Tail()) == 0 {
		if err := b.Reserve(max(b.reserve, 1)); err != nil {
			return err
		}
	}

	tail := b.Tail()
	n, err := s.r.Read(tail)
	if n < 0 || n > len(tail) {
		panic(fmt.Errorf("%w: reader returned %d for a %d byte region", ErrInvalidRead, n, len(tail)))
	}
	if n > 0 {
		b.Consumed(n)
		return nil
	}
	if err == nil {
		return errNoProgress
	}
	return err
}
