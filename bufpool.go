package unpack

import (
	"io"
	"sync"
)

// maxPooledCapacity keeps a single oversized message from pinning its buffer
// in the pool forever.
const maxPooledCapacity = 1 << 20

// unpackerPool reuses Unpackers together with their buffer storage, so that
// decoding many short streams does not allocate a new buffer per stream.
var unpackerPool = sync.Pool{
	New: func() any {
		return &Unpacker{buf: &Buffer{}}
	},
}

// Acquire returns an Unpacker reading from r, reusing the buffer of a released
// one when available. A nil r creates an Unpacker that is fed with Write.
func Acquire(r io.Reader, opts *Options) *Unpacker {
	u := unpackerPool.Get().(*Unpacker)
	u.buf.configure(opts)
	u.Reset(r)
	return u
}

// Release hands u back for reuse. u must not be used afterwards.
func Release(u *Unpacker) {
	if u.buf.Cap() > maxPooledCapacity {
		return
	}
	u.Reset(nil)
	u.buf.logger, u.buf.metrics = nil, nil
	unpackerPool.Put(u)
}

// Reset drops all buffered bytes and counters and binds r as the new source.
// The buffer storage and options are kept.
func (u *Unpacker) Reset(r io.Reader) {
	var rf Refiller
	if r != nil {
		rf = ReaderRefiller(r)
	}
	u.buf.reset(rf)
	u.parsed, u.depth = 0, 0
}

func (b *Buffer) reset(rf Refiller) {
	if b.borrowed {
		b.buf, b.borrowed = nil, false
	}
	b.filled, b.offset, b.consumed = 0, 0, 0
	b.refiller = rf
}

// configure applies opts to b, dropping storage that exceeds the new limit.
func (b *Buffer) configure(opts *Options) {
	o := opts.normalize()
	b.reserve = o.ReserveSize / 2
	b.limit = o.SizeLimit
	b.logger = o.Logger
	b.metrics = o.Metrics
	if b.limit > 0 && len(b.buf) > b.limit {
		b.buf = nil
	}
}
