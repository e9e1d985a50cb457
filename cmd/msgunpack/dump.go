package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oy3o/unpack"
	"github.com/tinylib/msgp/msgp"
)

// dumper prints the values of one or more MessagePack streams and keeps totals
// across them.
type dumper struct {
	out    io.Writer
	logger log.Logger
	opts   *unpack.Options
	types  bool

	values   int
	bytes    int64
	capacity int
}

// dump prints every value read from r as "index<TAB>value". The stream must end
// on a value boundary; a truncated or malformed value is an error.
func (d *dumper) dump(name string, r io.Reader) error {
	src := &sourceReader{Reader: r}
	u := unpack.Acquire(src, d.opts)
	defer unpack.Release(u)

	for {
		var typ msgp.Type
		var err error
		if d.types {
			typ, err = u.PeekType()
		}
		var v any
		if err == nil {
			v, err = u.UnpackObject()
		}
		if err != nil {
			if errors.Is(err, unpack.ErrInsufficientData) && u.Buffered() == 0 && src.err == nil {
				break
			}
			return fmt.Errorf("%s: value %d at byte %d: %w", name, u.Parsed(), u.Count(), err)
		}

		if d.types {
			_, err = fmt.Fprintf(d.out, "%d\t%s\t%s\n", d.values, typeName(typ), formatValue(v))
		} else {
			_, err = fmt.Fprintf(d.out, "%d\t%s\n", d.values, formatValue(v))
		}
		if err != nil {
			return fmt.Errorf("write value %d: %w", d.values, err)
		}
		d.values++
	}

	d.bytes += u.Count()
	d.capacity = max(d.capacity, u.Buffer().Cap())
	level.Debug(d.logger).Log("msg", "input done", "input", name, "values", u.Parsed(), "bytes", humanize.IBytes(uint64(u.Count())))
	return nil
}

// sourceReader remembers the last read failure other than io.EOF, so that a
// broken source is not mistaken for the end of the stream.
type sourceReader struct {
	io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.Reader.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		s.err = err
	}
	return n, err
}

// typeName fills in the types msgp.Type.String does not name.
func typeName(t msgp.Type) string {
	switch t {
	case msgp.TimeType:
		return "time"
	case msgp.Complex64Type:
		return "complex64"
	case msgp.Complex128Type:
		return "complex128"
	}
	return t.String()
}

func formatValue(v any) string {
	var sb strings.Builder
	writeValue(&sb, v)
	return sb.String()
}

func writeValue(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		sb.WriteString("nil")
	case string:
		sb.WriteString(strconv.Quote(t))
	case []byte:
		sb.WriteString("0x")
		sb.WriteString(hex.EncodeToString(t))
	case time.Time:
		sb.WriteString(t.UTC().Format(time.RFC3339Nano))
	case *msgp.RawExtension:
		fmt.Fprintf(sb, "ext(%d, 0x%x)", t.Type, t.Data)
	case []any:
		sb.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, e)
		}
		sb.WriteByte(']')
	case map[string]any:
		sb.WriteByte('{')
		for i, k := range slices.Sorted(maps.Keys(t)) {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(": ")
			writeValue(sb, t[k])
		}
		sb.WriteByte('}')
	case map[any]any:
		entries := make([]unpack.KeyValue, 0, len(t))
		for k, v := range t {
			entries = append(entries, unpack.KeyValue{Key: k, Value: v})
		}
		slices.SortFunc(entries, func(a, b unpack.KeyValue) int {
			return strings.Compare(formatValue(a.Key), formatValue(b.Key))
		})
		writeEntries(sb, entries)
	case []unpack.KeyValue:
		writeEntries(sb, t)
	default:
		fmt.Fprint(sb, t)
	}
}

func writeEntries(sb *strings.Builder, entries []unpack.KeyValue) {
	sb.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeValue(sb, e.Key)
		sb.WriteString(": ")
		writeValue(sb, e.Value)
	}
	sb.WriteByte('}')
}
