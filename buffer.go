package unpack

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Buffer is a single growable byte region fed on demand by a Refiller.
//
// Three cursors describe it: Cap is the length of the backing storage, Filled is
// one past the last byte written by refills, and Offset is the next byte to be
// consumed. 0 <= Offset <= Filled <= Cap holds at all times and only the bytes in
// [Offset, Filled) are valid. Bytes before Offset may be overwritten whenever
// the buffer is reserved.
//
// A Buffer is not safe for concurrent use.
type Buffer struct {
	buf      []byte
	filled   int
	offset   int
	reserve  int   // first allocation size and refill growth increment
	limit    int   // maximum capacity, 0 means unlimited
	consumed int64 // total bytes advanced since construction
	borrowed bool  // buf belongs to the caller of NewBytes and must not be written

	refiller Refiller
	logger   log.Logger
	metrics  *Metrics
}

// NewBuffer creates a Buffer refilled by refiller. A nil refiller yields a buffer
// that only holds what is pushed into it with Reserve/Tail/Consumed.
// The storage is not allocated until the first reservation.
func NewBuffer(refiller Refiller, opts *Options) *Buffer {
	b := &Buffer{refiller: refiller}
	b.configure(opts)
	return b
}

// newFixedBuffer adopts data as a fully filled, unrefillable buffer without copying it.
func newFixedBuffer(data []byte, opts *Options) *Buffer {
	b := NewBuffer(nil, opts)
	b.buf = data
	b.filled = len(data)
	b.borrowed = true
	return b
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int { return b.filled - b.offset }

// Cap returns the size of the storage, zero before the first allocation.
func (b *Buffer) Cap() int { return len(b.buf) }

// Offset returns the read cursor: the index of the first unread byte.
func (b *Buffer) Offset() int { return b.offset }

// Filled returns the write cursor: the index just past the last valid byte.
func (b *Buffer) Filled() int { return b.filled }

// Count returns the logical stream position, the total bytes advanced past.
// Rewinds and growth do not change it.
func (b *Buffer) Count() int64 { return b.consumed }

// Unread returns the valid, not yet consumed bytes. The slice aliases the buffer
// and is only valid until the next Reserve, Ensure or Refill.
func (b *Buffer) Unread() []byte { return b.buf[b.offset:b.filled] }

// Tail returns the free region after Filled where a refill may write.
func (b *Buffer) Tail() []byte { return b.buf[b.filled:] }

// Reserve makes room for at least require bytes after Filled.
//
// The storage is allocated on first use with max(reserve, require) bytes. When
// every filled byte has been consumed the cursors are rewound to zero without
// copying. When the tail is still too small the storage is doubled until it
// holds require plus the live bytes, and only the live range [Offset, Filled)
// is copied to the start of the new region.
func (b *Buffer) Reserve(require int) error {
	if require < 0 {
		panic(fmt.Errorf("%w: reserve %d", ErrNegativeSize, require))
	}

	if b.borrowed && b.offset == b.filled {
		b.buf, b.filled, b.offset, b.borrowed = nil, 0, 0, false
	}

	if b.buf == nil {
		if err := b.checkLimit(require); err != nil {
			return err
		}
		size := b.clampCapacity(max(b.reserve, require), require)
		b.buf = make([]byte, size)
		b.metrics.observeCapacity(size)
		return nil
	}

	if b.offset == b.filled {
		if b.filled > 0 {
			b.metrics.rewound()
		}
		b.filled = 0
		b.offset = 0
	}

	if len(b.buf)-b.filled >= require {
		return nil
	}

	live := b.filled - b.offset
	need := require + live
	if err := b.checkLimit(need); err != nil {
		return err
	}
	next := b.clampCapacity(nextCapacity(len(b.buf), need), need)

	level.Debug(b.logger).Log("msg", "growing buffer", "from", len(b.buf), "to", next, "live", live, "require", require)

	tmp := make([]byte, next)
	copy(tmp, b.buf[b.offset:b.filled])
	b.buf = tmp
	b.filled = live
	b.offset = 0
	b.borrowed = false

	b.metrics.grew(next)
	return nil
}

// reservation is the free tail Ensure asks for. Without a limit it is required
// itself; under a limit it shrinks so that the live bytes plus the tail stay
// within the limit while still covering the shortfall.
func (b *Buffer) reservation(required int) int {
	if b.limit <= 0 {
		return required
	}
	return min(required, b.limit-b.Len())
}

// Ensure guarantees that at least required unread bytes are buffered, refilling
// from the source as often as needed. When the source is exhausted or absent it
// returns an error wrapping ErrInsufficientData; the bytes already buffered stay
// where they are.
//
// Ensure never touches the storage when enough bytes are already buffered.
func (b *Buffer) Ensure(required int) error {
	if b.Len() >= required {
		return nil
	}
	if b.refiller == nil {
		return b.insufficient(required, nil)
	}
	if err := b.checkLimit(required); err != nil {
		return err
	}
	if err := b.Reserve(b.reservation(required)); err != nil {
		return err
	}
	for b.Len() < required {
		before := b.Len()
		err := b.refiller.Refill(b)
		if err == nil && b.Len() <= before {
			err = errNoProgress
		}
		if err != nil {
			level.Debug(b.logger).Log("msg", "refill exhausted", "need", required, "have", b.Len(), "err", err)
			return b.insufficient(required, err)
		}
	}
	return nil
}

func (b *Buffer) insufficient(required int, cause error) error {
	b.metrics.failed(reasonInsufficient)
	if cause == nil || errors.Is(cause, io.EOF) || errors.Is(cause, errNoProgress) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrInsufficientData, required, b.Len())
	}
	return fmt.Errorf("%w: need %d bytes, have %d: %w", ErrInsufficientData, required, b.Len(), cause)
}

// Consumed records that size freshly read bytes were written to Tail.
// Reporting more bytes than the tail holds is a programming error and panics.
func (b *Buffer) Consumed(size int) {
	if size < 0 || size > len(b.buf)-b.filled {
		panic(fmt.Errorf("%w: %d bytes reported, %d available", ErrInvalidRead, size, len(b.buf)-b.filled))
	}
	b.filled += size
	b.metrics.refilled(size)
}

// Advance moves the read cursor past size decoded bytes.
func (b *Buffer) Advance(size int) {
	if size < 0 {
		panic(fmt.Errorf("%w: advance %d", ErrNegativeSize, size))
	}
	if size > b.Len() {
		panic(fmt.Errorf("unpack: advance %d exceeds %d unread bytes", size, b.Len()))
	}
	b.offset += size
	b.consumed += int64(size)
}
