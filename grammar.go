package unpack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/tinylib/msgp/msgp"
)

// shortError reports that at least need bytes must be buffered before the
// value can be measured any further.
type shortError struct {
	need int
}

func (e *shortError) Error() string {
	return fmt.Sprintf("unpack: need %d bytes to measure value", e.need)
}

func short(need int) error { return &shortError{need: need} }

// measureHead measures the leading encoding of one MessagePack value.
// size covers the tag, the length prefix and any inline payload; children is the
// number of nested values that follow a map or array header.
func measureHead(b []byte) (size, children int, err error) {
	if len(b) < 1 {
		return 0, 0, short(1)
	}

	lead := b[0]
	switch {
	case lead <= 0x7f, lead >= 0xe0: // positive and negative fixint
		return 1, 0, nil
	case lead <= 0x8f: // fixmap
		return 1, int(lead&0x0f) * 2, nil
	case lead <= 0x9f: // fixarray
		return 1, int(lead & 0x0f), nil
	case lead <= 0xbf: // fixstr
		return 1 + int(lead&0x1f), 0, nil
	}

	switch lead {
	case 0xc0, 0xc2, 0xc3:
		return 1, 0, nil
	case 0xcc, 0xd0:
		return 2, 0, nil
	case 0xcd, 0xd1:
		return 3, 0, nil
	case 0xca, 0xce, 0xd2:
		return 5, 0, nil
	case 0xcb, 0xcf, 0xd3:
		return 9, 0, nil
	case 0xd4, 0xd5, 0xd6, 0xd7, 0xd8: // fixext 1, 2, 4, 8, 16
		return 2 + 1<<(lead-0xd4), 0, nil

	case 0xc4, 0xd9: // bin8, str8
		if len(b) < 2 {
			return 0, 0, short(2)
		}
		return 2 + int(b[1]), 0, nil
	case 0xc5, 0xda: // bin16, str16
		if len(b) < 3 {
			return 0, 0, short(3)
		}
		return 3 + int(binary.BigEndian.Uint16(b[1:])), 0, nil
	case 0xc6, 0xdb: // bin32, str32
		if len(b) < 5 {
			return 0, 0, short(5)
		}
		size, err := span(5, binary.BigEndian.Uint32(b[1:]))
		return size, 0, err

	case 0xc7: // ext8: length, type, data
		if len(b) < 2 {
			return 0, 0, short(2)
		}
		return 3 + int(b[1]), 0, nil
	case 0xc8:
		if len(b) < 3 {
			return 0, 0, short(3)
		}
		return 4 + int(binary.BigEndian.Uint16(b[1:])), 0, nil
	case 0xc9:
		if len(b) < 5 {
			return 0, 0, short(5)
		}
		size, err := span(6, binary.BigEndian.Uint32(b[1:]))
		return size, 0, err

	case 0xdc: // array16
		if len(b) < 3 {
			return 0, 0, short(3)
		}
		return 3, int(binary.BigEndian.Uint16(b[1:])), nil
	case 0xdd:
		if len(b) < 5 {
			return 0, 0, short(5)
		}
		children, err := span(0, binary.BigEndian.Uint32(b[1:]))
		return 5, children, err
	case 0xde: // map16
		if len(b) < 3 {
			return 0, 0, short(3)
		}
		return 3, 2 * int(binary.BigEndian.Uint16(b[1:])), nil
	case 0xdf:
		if len(b) < 5 {
			return 0, 0, short(5)
		}
		n := binary.BigEndian.Uint32(b[1:])
		if uint64(n) > math.MaxInt/2 {
			return 0, 0, overflow("map length", uint64(n))
		}
		return 5, 2 * int(n), nil
	}

	// 0xc1 is never used.
	return 0, 0, fmt.Errorf("%w: %w", ErrMalformedData, msgp.InvalidPrefixError(lead))
}

// span adds a 32-bit length read from the stream to the size of its header,
// rejecting lengths an int cannot hold.
func span(header int, n uint32) (int, error) {
	if uint64(n) > uint64(math.MaxInt-header) {
		return 0, overflow("length", uint64(n))
	}
	return header + int(n), nil
}

func overflow(what string, n uint64) error {
	return fmt.Errorf("%w: %s %d overflows int", ErrMalformedData, what, n)
}

// scanner walks the elements of one value and resumes where it stopped when
// called again with a longer buffer holding the same value.
type scanner struct {
	off     int // end of the last measured element
	pending int // elements left to measure
}

func newScanner() scanner { return scanner{pending: 1} }

// scan returns the total encoded length of the value at the start of b,
// including every nested element of maps and arrays. When b ends before the
// length is known it returns a *shortError with the smallest buffer size worth
// retrying with; the returned length itself may exceed len(b).
func (s *scanner) scan(b []byte) (int, error) {
	for s.pending > 0 {
		if s.off >= len(b) {
			return 0, short(s.off + 1)
		}
		size, children, err := measureHead(b[s.off:])
		if err != nil {
			var se *shortError
			if errors.As(err, &se) {
				return 0, short(s.off + se.need)
			}
			return 0, err
		}
		if size > math.MaxInt-s.off || children > math.MaxInt-s.pending {
			return 0, overflow("value size", uint64(s.off)+uint64(size))
		}
		s.off += size
		s.pending += children - 1
	}
	return s.off, nil
}

// measure is a one-shot scan of b.
func measure(b []byte) (int, error) {
	s := newScanner()
	return s.scan(b)
}

// extensionHeaderSize returns the number of bytes up to and including the type
// byte of an extension, or 0 when lead does not start an extension.
func extensionHeaderSize(lead byte) int {
	switch lead {
	case 0xd4, 0xd5, 0xd6, 0xd7, 0xd8:
		return 2
	case 0xc7:
		return 3
	case 0xc8:
		return 4
	case 0xc9:
		return 6
	}
	return 0
}

func extensionKind(typ int8) msgp.Type {
	switch typ {
	case msgp.TimeExtension, msgp.MsgTimeExtension:
		return msgp.TimeType
	case msgp.Complex64Extension:
		return msgp.Complex64Type
	case msgp.Complex128Extension:
		return msgp.Complex128Type
	}
	return msgp.ExtensionType
}
