package unpack

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/tinylib/msgp/msgp"
)

// --- Mocks and Helpers ---

var errBoom = errors.New("boom")

// liarReader claims to have read more bytes than it was given room for.
type liarReader struct{}

func (liarReader) Read(p []byte) (int, error) { return len(p) + 1, nil }

// refillingReader is an io.Reader that already knows how to refill a Buffer.
type refillingReader struct {
	*bytes.Reader
	*scriptRefiller
}

// fixtureStream encodes a mix of scalars, large payloads and nested containers.
func fixtureStream(t *testing.T) []byte {
	var b []byte
	b = msgp.AppendInt64(b, -1)
	b = msgp.AppendUint64(b, math.MaxUint64)
	b = msgp.AppendString(b, strings.Repeat("x", 300))
	b = msgp.AppendBytes(b, sequence(70000))
	b = msgp.AppendFloat64(b, 3.25)
	b = msgp.AppendNil(b)

	b, err := msgp.AppendIntf(b, map[string]any{
		"a": []any{int64(1), "two", 3.0},
		"b": map[string]any{"c": true},
	})
	require.NoError(t, err)

	b = msgp.AppendTime(b, time.Unix(1700000000, 5))
	b = msgp.AppendArrayHeader(b, 20)
	for i := int64(0); i < 20; i++ {
		b = msgp.AppendInt64(b, i*1000)
	}
	return b
}

// decodeAll decodes data in one piece as the reference result.
func decodeAll(t *testing.T, data []byte) []any {
	var out []any
	for rest := data; len(rest) > 0; {
		v, o, err := msgp.ReadIntfBytes(rest)
		require.NoError(t, err)
		out = append(out, v)
		rest = o
	}
	return out
}

// --- Unpacker Test Suite ---

type UnpackerTestSuite struct {
	suite.Suite
}

func (s *UnpackerTestSuite) TestPrimitives() {
	stamp := time.Unix(1700000000, 123456789)

	var b []byte
	b = msgp.AppendBool(b, true)
	b = msgp.AppendNil(b)
	b = msgp.AppendInt64(b, -5)
	b = msgp.AppendInt64(b, -30000)
	b = msgp.AppendInt64(b, math.MinInt32)
	b = msgp.AppendInt64(b, math.MinInt64)
	b = msgp.AppendInt64(b, 42)
	b = msgp.AppendUint64(b, 200)
	b = msgp.AppendUint64(b, 60000)
	b = msgp.AppendUint64(b, math.MaxUint32)
	b = msgp.AppendUint64(b, math.MaxUint64)
	b = msgp.AppendUint64(b, 7)
	b = msgp.AppendInt64(b, int64('é'))
	b = msgp.AppendFloat32(b, 1.5)
	b = msgp.AppendFloat32(b, 2.5)
	b = msgp.AppendFloat64(b, -0.125)
	b = msgp.AppendString(b, "hello")
	b = msgp.AppendBytes(b, []byte{1, 2, 3})
	b = msgp.AppendTime(b, stamp)
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendMapHeader(b, 2)

	u := New(bytes.NewReader(b))

	v, err := u.UnpackBool()
	s.Require().NoError(err)
	s.Assert().True(v)
	s.Require().NoError(u.UnpackNil())

	i8, err := u.UnpackInt8()
	s.Require().NoError(err)
	s.Assert().Equal(int8(-5), i8)
	i16, err := u.UnpackInt16()
	s.Require().NoError(err)
	s.Assert().Equal(int16(-30000), i16)
	i32, err := u.UnpackInt32()
	s.Require().NoError(err)
	s.Assert().Equal(int32(math.MinInt32), i32)
	i64, err := u.UnpackInt64()
	s.Require().NoError(err)
	s.Assert().Equal(int64(math.MinInt64), i64)
	i, err := u.UnpackInt()
	s.Require().NoError(err)
	s.Assert().Equal(42, i)

	u8, err := u.UnpackUint8()
	s.Require().NoError(err)
	s.Assert().Equal(uint8(200), u8)
	u16, err := u.UnpackUint16()
	s.Require().NoError(err)
	s.Assert().Equal(uint16(60000), u16)
	u32, err := u.UnpackUint32()
	s.Require().NoError(err)
	s.Assert().Equal(uint32(math.MaxUint32), u32)
	u64, err := u.UnpackUint64()
	s.Require().NoError(err)
	s.Assert().Equal(uint64(math.MaxUint64), u64)
	ui, err := u.UnpackUint()
	s.Require().NoError(err)
	s.Assert().Equal(uint(7), ui)

	r, err := u.UnpackRune()
	s.Require().NoError(err)
	s.Assert().Equal('é', r)

	f32, err := u.UnpackFloat32()
	s.Require().NoError(err)
	s.Assert().Equal(float32(1.5), f32)
	f64, err := u.UnpackFloat64()
	s.Require().NoError(err)
	s.Assert().Equal(2.5, f64, "float32 widens to float64")
	f64, err = u.UnpackFloat64()
	s.Require().NoError(err)
	s.Assert().Equal(-0.125, f64)

	str, err := u.UnpackString()
	s.Require().NoError(err)
	s.Assert().Equal("hello", str)
	raw, err := u.UnpackBytes()
	s.Require().NoError(err)
	s.Assert().Equal([]byte{1, 2, 3}, raw)
	ts, err := u.UnpackTime()
	s.Require().NoError(err)
	s.Assert().True(stamp.Equal(ts))

	n, err := u.UnpackArrayHeader()
	s.Require().NoError(err)
	s.Assert().Equal(uint32(3), n)
	n, err = u.UnpackMapHeader()
	s.Require().NoError(err)
	s.Assert().Equal(uint32(2), n)

	s.Assert().Equal(21, u.Parsed())
	s.Assert().EqualValues(len(b), u.Count())

	_, err = u.UnpackBool()
	s.Assert().ErrorIs(err, ErrInsufficientData)
}

func (s *UnpackerTestSuite) TestChunkingIndependence() {
	data := fixtureStream(s.T())
	want := decodeAll(s.T(), data)

	for _, chunk := range []int{1, 2, 3, 5, 7, 13, 64, 1000, len(data)} {
		r := &chunkReader{data: bytes.Clone(data), chunk: chunk}
		u := NewSize(r, 8)

		var got []any
		for {
			v, err := u.UnpackObject()
			if err != nil {
				s.Require().ErrorIs(err, ErrInsufficientData, "chunk %d", chunk)
				break
			}
			got = append(got, v)
		}

		s.Assert().Equal(want, got, "chunk %d", chunk)
		s.Assert().EqualValues(len(data), u.Count(), "chunk %d", chunk)
		s.Assert().Equal(len(want), u.Parsed(), "chunk %d", chunk)
	}
}

func (s *UnpackerTestSuite) TestRefillsPerChunk() {
	data := append([]byte{0xd9, 0x08}, "abcdefgh"...)
	r := &chunkReader{data: data, chunk: 3}
	u := NewSize(r, 1024)

	v, err := u.UnpackString()
	s.Require().NoError(err)
	s.Assert().Equal("abcdefgh", v)
	s.Assert().Equal(4, r.reads)
	s.Assert().EqualValues(10, u.Count())
}

func (s *UnpackerTestSuite) TestInsufficientData() {
	s.T().Run("PositionUnchanged", func(t *testing.T) {
		u := NewFromRefiller(&scriptRefiller{chunks: [][]byte{{0xd2, 0x00}}}, nil)

		_, err := u.UnpackInt32()
		require.ErrorIs(t, err, ErrInsufficientData)
		assert.EqualValues(t, 0, u.Count())
		assert.Equal(t, 2, u.Buffered())
		assert.Equal(t, 0, u.Parsed())
	})

	s.T().Run("RetryAfterFeed", func(t *testing.T) {
		enc := msgp.AppendInt64(nil, math.MaxInt32)
		require.Len(t, enc, 5)

		u := New(nil)
		require.NoError(t, u.Feed(enc[:2]))
		_, err := u.UnpackInt32()
		require.ErrorIs(t, err, ErrInsufficientData)
		assert.EqualValues(t, 0, u.Count())

		n, err := u.Write(enc[2:])
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		v, err := u.UnpackInt32()
		require.NoError(t, err)
		assert.Equal(t, int32(math.MaxInt32), v)
		assert.EqualValues(t, 5, u.Count())
		assert.Equal(t, 1, u.Parsed())
	})

	s.T().Run("RetryThroughTail", func(t *testing.T) {
		enc := msgp.AppendString(nil, "streamed")
		u := New(nil)

		for i, c := range enc {
			_, err := u.UnpackString()
			require.ErrorIs(t, err, ErrInsufficientData, "byte %d", i)

			require.NoError(t, u.Reserve(1))
			u.Tail()[0] = c
			u.Consumed(1)
		}
		v, err := u.UnpackString()
		require.NoError(t, err)
		assert.Equal(t, "streamed", v)
	})

	s.T().Run("SourceErrorIsWrapped", func(t *testing.T) {
		u := New(iotest.ErrReader(errBoom))
		_, err := u.UnpackBool()
		assert.ErrorIs(t, err, ErrInsufficientData)
		assert.ErrorIs(t, err, errBoom)
	})

	s.T().Run("DataWithEOF", func(t *testing.T) {
		enc := msgp.AppendString(nil, "last")
		u := New(iotest.DataErrReader(bytes.NewReader(enc)))
		v, err := u.UnpackString()
		require.NoError(t, err)
		assert.Equal(t, "last", v)
	})
}

func (s *UnpackerTestSuite) TestMalformedData() {
	s.T().Run("WrongType", func(t *testing.T) {
		data := msgp.AppendString(nil, "hi")
		u := NewBytes(data)

		_, err := u.UnpackInt64()
		require.ErrorIs(t, err, ErrMalformedData)
		assert.EqualValues(t, 0, u.Count(), "a malformed value is not skipped")

		v, err := u.UnpackString()
		require.NoError(t, err)
		assert.Equal(t, "hi", v)
	})

	s.T().Run("InvalidPrefix", func(t *testing.T) {
		u := NewBytes([]byte{0xc1})
		_, err := u.UnpackObject()
		require.ErrorIs(t, err, ErrMalformedData)

		var prefix msgp.InvalidPrefixError
		require.ErrorAs(t, err, &prefix)
		assert.Equal(t, msgp.InvalidPrefixError(0xc1), prefix)
		assert.ErrorIs(t, u.Skip(), ErrMalformedData)
	})

	s.T().Run("InvalidPrefixNested", func(t *testing.T) {
		u := NewBytes([]byte{0x92, 0x01, 0xc1})
		_, err := u.UnpackObject()
		assert.ErrorIs(t, err, ErrMalformedData)
		assert.EqualValues(t, 0, u.Count())
	})

	s.T().Run("Overflow", func(t *testing.T) {
		u := NewBytes(msgp.AppendInt64(nil, 300))
		_, err := u.UnpackInt8()
		assert.ErrorIs(t, err, ErrMalformedData)
	})
}

func (s *UnpackerTestSuite) TestObjectForms() {
	data := fixtureStream(s.T())
	want := decodeAll(s.T(), data)

	s.T().Run("Truncated", func(t *testing.T) {
		u := NewBytes(data[:len(data)-1])
		for range want[:len(want)-1] {
			_, ok := u.TryUnpackObject()
			require.True(t, ok)
		}
		pos := u.Count()

		v, ok := u.TryUnpackObject()
		assert.False(t, ok)
		assert.Nil(t, v)

		_, err := u.UnpackObject()
		assert.ErrorIs(t, err, ErrInsufficientData)
		assert.Equal(t, pos, u.Count())
	})

	s.T().Run("Malformed", func(t *testing.T) {
		u := NewBytes([]byte{0xc1})
		_, ok := u.TryUnpackObject()
		assert.False(t, ok)
	})

	s.T().Run("Nested", func(t *testing.T) {
		u := NewSize(&chunkReader{data: bytes.Clone(data), chunk: 1}, 2)
		for i := range want {
			v, ok := u.TryUnpackObject()
			require.True(t, ok)
			assert.Equal(t, want[i], v)
		}
	})
}

func (s *UnpackerTestSuite) TestNonStringMapKeys() {
	s.T().Run("IntegerKey", func(t *testing.T) {
		v, err := NewBytes([]byte{0x81, 0x01, 0xa1, 'a'}).UnpackObject()
		require.NoError(t, err)
		assert.Equal(t, map[any]any{int64(1): "a"}, v)
	})

	s.T().Run("MixedKeys", func(t *testing.T) {
		var b []byte
		b = msgp.AppendMapHeader(b, 3)
		b = msgp.AppendInt64(b, 1)
		b = msgp.AppendString(b, "a")
		b = msgp.AppendString(b, "b")
		b = msgp.AppendInt64(b, 2)
		b = msgp.AppendNil(b)
		b = msgp.AppendBool(b, false)

		v, err := NewSize(&chunkReader{data: b, chunk: 1}, 2).UnpackObject()
		require.NoError(t, err)
		assert.Equal(t, map[any]any{int64(1): "a", "b": int64(2), nil: false}, v)
	})

	s.T().Run("BinaryKeysAreStrings", func(t *testing.T) {
		var b []byte
		b = msgp.AppendMapHeader(b, 2)
		b = msgp.AppendBytes(b, []byte("k"))
		b = msgp.AppendInt64(b, 1)
		b = msgp.AppendString(b, "s")
		b = msgp.AppendInt64(b, 2)

		v, err := NewBytes(b).UnpackObject()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"k": int64(1), "s": int64(2)}, v)
	})

	s.T().Run("UncomparableKey", func(t *testing.T) {
		var b []byte
		b = msgp.AppendArrayHeader(b, 1)
		b = msgp.AppendMapHeader(b, 2)
		b = msgp.AppendArrayHeader(b, 1)
		b = msgp.AppendInt64(b, 1)
		b = msgp.AppendBool(b, true)
		b = msgp.AppendInt64(b, 2)
		b = msgp.AppendBool(b, false)

		u := NewBytes(b)
		v, ok := u.TryUnpackObject()
		require.True(t, ok)
		assert.Equal(t, []any{[]KeyValue{
			{Key: []any{int64(1)}, Value: true},
			{Key: int64(2), Value: false},
		}}, v)
		assert.Equal(t, 1, u.Parsed())
		assert.Zero(t, u.Buffered())
	})
}

func (s *UnpackerTestSuite) TestUnpackEnum() {
	type color uint8
	type delta int16

	var b []byte
	b = msgp.AppendInt64(b, 2)
	b = msgp.AppendInt64(b, -3)
	b = msgp.AppendInt64(b, 300)
	u := NewBytes(b)

	c, err := UnpackEnum[color](u)
	s.Require().NoError(err)
	s.Assert().Equal(color(2), c)

	_, err = UnpackEnum[color](u)
	s.Assert().ErrorIs(err, ErrMalformedData, "negative values do not fit an unsigned enum")

	d, err := UnpackEnum[delta](u)
	s.Require().NoError(err)
	s.Assert().Equal(delta(-3), d)

	pos := u.Count()
	_, err = UnpackEnum[color](u)
	s.Assert().ErrorIs(err, ErrMalformedData)
	s.Assert().Equal(pos, u.Count())

	d, err = UnpackEnum[delta](u)
	s.Require().NoError(err)
	s.Assert().Equal(delta(300), d)
}

func (s *UnpackerTestSuite) TestPeek() {
	var b []byte
	b = msgp.AppendNil(b)
	b = msgp.AppendInt64(b, 1)
	u := NewBytes(b)

	head, err := u.Peek(2)
	s.Require().NoError(err)
	s.Assert().Equal([]byte{0xc0, 0x01}, head)

	isNil, err := u.IsNil()
	s.Require().NoError(err)
	s.Assert().True(isNil)
	s.Assert().EqualValues(0, u.Count())

	isNil, err = u.TryUnpackNil()
	s.Require().NoError(err)
	s.Assert().True(isNil)
	s.Assert().EqualValues(1, u.Count())
	s.Assert().Equal(1, u.Parsed())

	isNil, err = u.TryUnpackNil()
	s.Require().NoError(err)
	s.Assert().False(isNil)
	s.Assert().EqualValues(1, u.Count(), "a non-nil value is left untouched")

	v, err := u.UnpackInt()
	s.Require().NoError(err)
	s.Assert().Equal(1, v)

	_, err = u.TryUnpackNil()
	s.Assert().ErrorIs(err, ErrInsufficientData)
	_, err = u.Peek(1)
	s.Assert().ErrorIs(err, ErrInsufficientData)
}

func (s *UnpackerTestSuite) TestPeekType() {
	var b []byte
	var err error
	b = msgp.AppendString(b, "s")
	b = msgp.AppendMapHeader(b, 0)
	b = msgp.AppendArrayHeader(b, 0)
	b = msgp.AppendNil(b)
	b = msgp.AppendBool(b, false)
	b = msgp.AppendInt64(b, -1)
	b = msgp.AppendUint64(b, math.MaxUint64)
	b = msgp.AppendFloat32(b, 1)
	b = msgp.AppendFloat64(b, 1)
	b = msgp.AppendBytes(b, []byte{1})
	b = msgp.AppendTime(b, time.Unix(1, 0))
	b = msgp.AppendTimeExt(b, time.Unix(1, 0))
	b = msgp.AppendComplex64(b, 1)
	b, err = msgp.AppendExtension(b, &msgp.RawExtension{Type: 42, Data: []byte{1, 2, 3, 4}})
	s.Require().NoError(err)

	want := []msgp.Type{
		msgp.StrType, msgp.MapType, msgp.ArrayType, msgp.NilType, msgp.BoolType,
		msgp.IntType, msgp.UintType, msgp.Float32Type, msgp.Float64Type, msgp.BinType,
		msgp.TimeType, msgp.TimeType, msgp.Complex64Type, msgp.ExtensionType,
	}

	u := NewSize(&chunkReader{data: b, chunk: 1}, 2)
	for i, typ := range want {
		pos := u.Count()
		got, err := u.PeekType()
		s.Require().NoError(err, "value %d", i)
		s.Assert().Equal(typ, got, "value %d", i)
		s.Assert().Equal(pos, u.Count())
		s.Require().NoError(u.Skip())
	}
	s.Assert().EqualValues(len(b), u.Count())

	_, err = NewBytes([]byte{0xc1}).PeekType()
	s.Assert().ErrorIs(err, ErrMalformedData)
}

func (s *UnpackerTestSuite) TestSkipAndDiscard() {
	s.T().Run("SkipNested", func(t *testing.T) {
		data := fixtureStream(t)
		want := decodeAll(t, data)
		u := NewSize(&chunkReader{data: data, chunk: 9}, 16)
		for range want {
			require.NoError(t, u.Skip())
		}
		assert.EqualValues(t, len(data), u.Count())
		assert.Equal(t, len(want), u.Parsed())
		assert.ErrorIs(t, u.Skip(), ErrInsufficientData)
	})

	s.T().Run("DiscardRaw", func(t *testing.T) {
		u := NewSize(&chunkReader{data: sequence(10000), chunk: 7}, 16)

		n, err := u.Discard(9000)
		require.NoError(t, err)
		assert.Equal(t, 9000, n)
		assert.EqualValues(t, 9000, u.Count())
		assert.LessOrEqual(t, u.Buffer().Cap(), 16, "discarding does not grow the buffer")

		n, err = u.Discard(5000)
		assert.ErrorIs(t, err, ErrInsufficientData)
		assert.Equal(t, 1000, n)
	})

	s.T().Run("DiscardNegative", func(t *testing.T) {
		_, err := NewBytes(nil).Discard(-1)
		assert.ErrorIs(t, err, ErrNegativeSize)
	})
}

func (s *UnpackerTestSuite) TestSizeLimit() {
	data := msgp.AppendString(nil, strings.Repeat("x", 1000))
	u := NewWithOptions(bytes.NewReader(data), &Options{ReserveSize: 64, SizeLimit: 256})

	_, err := u.UnpackString()
	s.Require().ErrorIs(err, ErrLimitExceeded)
	s.Assert().EqualValues(0, u.Count())
}

func (s *UnpackerTestSuite) TestSizeLimitAcrossChunks() {
	var data []byte
	for i := 0; i < 5; i++ {
		data = msgp.AppendString(data, strings.Repeat(string(rune('a'+i)), 58))
	}
	s.Require().Len(data, 300)

	for chunk := 1; chunk <= 100; chunk++ {
		u := NewWithOptions(&chunkReader{data: data, chunk: chunk}, &Options{ReserveSize: 200, SizeLimit: 100})
		for i := 0; i < 5; i++ {
			v, err := u.UnpackString()
			s.Require().NoError(err, "chunk %d value %d", chunk, i)
			s.Require().Equal(strings.Repeat(string(rune('a'+i)), 58), v)
		}
		s.Assert().LessOrEqual(u.Buffer().Cap(), 100)
	}
}

func (s *UnpackerTestSuite) TestReaderRefiller() {
	s.T().Run("PassThrough", func(t *testing.T) {
		v := refillingReader{Reader: bytes.NewReader(nil), scriptRefiller: &scriptRefiller{}}
		assert.Equal(t, Refiller(v), ReaderRefiller(v))
	})

	s.T().Run("NilReader", func(t *testing.T) {
		assert.Panics(t, func() { ReaderRefiller(nil) })
	})

	s.T().Run("InvalidCount", func(t *testing.T) {
		u := New(liarReader{})
		assert.Panics(t, func() { _, _ = u.UnpackBool() })
	})

	s.T().Run("EOFIsNotWrapped", func(t *testing.T) {
		u := New(bytes.NewReader(nil))
		_, err := u.UnpackBool()
		assert.ErrorIs(t, err, ErrInsufficientData)
		assert.NotErrorIs(t, err, io.EOF)
	})
}

// TestUnpacker runs the UnpackerTestSuite.
func TestUnpacker(t *testing.T) {
	suite.Run(t, new(UnpackerTestSuite))
}
