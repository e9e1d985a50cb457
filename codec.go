// Package unpack decodes a MessagePack stream incrementally.
//
// An Unpacker owns a single growable Buffer that is refilled lazily from an
// underlying source. Every typed Unpack method asks the buffer for just enough
// bytes to decode one value, pulling more from the source only when a value
// straddles the end of what has been read so far.
package unpack

// Unpackable is implemented by composite types that know how to reconstruct
// themselves field by field from an Unpacker.
type Unpackable interface {
	// UnpackFrom reads the fields of the receiver with the typed Unpack methods of u.
	// Bytes consumed before a failure are not given back.
	UnpackFrom(u *Unpacker) error
}

// Refiller pulls more bytes into the tail of a Buffer.
//
// A successful Refill reads whatever the source currently offers into b.Tail()
// and records it with b.Consumed. It returns a non-nil error when no byte could
// be added (source exhausted, no data right now, or a source failure).
type Refiller interface {
	Refill(b *Buffer) error
}

// RefillerFunc adapts a plain function to the Refiller interface.
type RefillerFunc func(b *Buffer) error

// Refill calls f(b).
func (f RefillerFunc) Refill(b *Buffer) error { return f(b) }
