package unpack

import "fmt"

// checkLimit reports whether the buffer may grow to hold capacity bytes. Ensure
// checks the unread bytes a value needs, Reserve the live bytes plus the tail.
// A zero limit means unlimited.
func (b *Buffer) checkLimit(capacity int) error {
	if b.limit <= 0 || capacity <= b.limit {
		return nil
	}
	b.metrics.failed(reasonLimit)
	return fmt.Errorf("%w: need %d bytes, limit is %d", ErrLimitExceeded, capacity, b.limit)
}

// clampCapacity caps a doubled capacity at the limit once the requirement itself fits.
func (b *Buffer) clampCapacity(next, need int) int {
	if b.limit > 0 && next > b.limit && need <= b.limit {
		return b.limit
	}
	return next
}
