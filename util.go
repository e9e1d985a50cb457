package unpack

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

const (
	// DefaultReserveSize is the reserve size used when Options.ReserveSize is zero.
	// Half of it becomes the first allocation and the refill growth increment.
	DefaultReserveSize = 32 * 1024

	// nilCode is the MessagePack encoding of nil.
	nilCode = 0xc0
)

// nextCapacity doubles capacity until it can hold need bytes.
// Doubling bounds the number of reallocations to O(log(need/capacity)).
func nextCapacity[T constraints.Integer](capacity, need T) T {
	next := capacity * 2
	if next <= 0 {
		next = 1
	}
	for next < need {
		next *= 2
	}
	return next
}

// narrow converts an int64 into T, reporting an overflow as malformed data.
func narrow[T constraints.Integer](v int64) (T, error) {
	out := T(v)
	if int64(out) != v || (v < 0 && ^T(0) > 0) {
		return 0, fmt.Errorf("%w: %d overflows %T", ErrMalformedData, v, out)
	}
	return out, nil
}
