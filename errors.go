package unpack

import "errors"

var (
	// ErrInsufficientData indicates that the source was exhausted (or no source is bound)
	// before enough bytes existed to complete a decode step. The read position is left
	// untouched, so the same call may succeed once more bytes become available.
	ErrInsufficientData = errors.New("unpack: insufficient data")

	// ErrMalformedData indicates that the buffered bytes are not a valid encoding of the
	// requested type. Retrying at the same position cannot succeed.
	ErrMalformedData = errors.New("unpack: malformed data")

	// ErrLimitExceeded indicates that a value would need a buffer larger than the
	// configured SizeLimit.
	ErrLimitExceeded = errors.New("unpack: buffer size limit exceeded")

	// ErrTrailingData is returned by Unmarshal when bytes remain after the decoded value.
	ErrTrailingData = errors.New("unpack: trailing data found after decoding")

	// ErrInvalidRead indicates that a refill reported a byte count that does not fit the
	// buffer tail. It is a programming error and is raised with panic.
	ErrInvalidRead = errors.New("unpack: refill reported invalid count")

	// ErrNegativeSize indicates a negative reservation or cursor movement.
	// It is a programming error and is raised with panic.
	ErrNegativeSize = errors.New("unpack: negative size")

	// errNoProgress is reported by a refill that returned zero bytes without an error.
	errNoProgress = errors.New("unpack: source returned no data")
)
