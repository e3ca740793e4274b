// Package convergeenc provides the shared canonical-encoding primitives
// used by every hashed object kind (recipe, manifest, snap): fixed
// big-endian integers and length-prefixed strings/bytes, so two
// implementations (or two platforms) produce bitwise identical bytes for
// the same logical value. No implementation-defined field ordering is
// permitted outside of these helpers — callers choose field order
// explicitly and consistently.
package convergeenc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer appends canonical fields to an in-memory buffer.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Tag writes a single byte discriminant, used to tag sum-type variants
// (File/Dir/Symlink/Tombstone/Superposition) so the encoding is
// self-describing and hashing is stable across variant kinds.
func (w *Writer) Tag(b byte) { w.buf.WriteByte(b) }

// Uint8 writes a single byte.
func (w *Writer) Uint8(v uint8) { w.buf.WriteByte(v) }

// Uint32 writes v big-endian.
func (w *Writer) Uint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf.Write(tmp[:])
}

// Uint64 writes v big-endian.
func (w *Writer) Uint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	w.buf.Write(tmp[:])
}

// Bytes writes a length-prefixed byte string.
func (w *Writer) Bytes(p []byte) {
	w.Uint32(uint32(len(p)))
	w.buf.Write(p)
}

// String writes a length-prefixed UTF-8 string.
func (w *Writer) String(s string) {
	w.Bytes([]byte(s))
}

// Finish returns the accumulated canonical encoding.
func (w *Writer) Finish() []byte { return w.buf.Bytes() }

// Reader parses canonical fields written by Writer, in the same order they
// were written.
type Reader struct {
	r   *bytes.Reader
	err error
}

// NewReader wraps p for canonical decoding.
func NewReader(p []byte) *Reader {
	return &Reader{r: bytes.NewReader(p)}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Tag reads a single discriminant byte.
func (r *Reader) Tag() byte {
	b, err := r.r.ReadByte()
	if err != nil {
		r.fail(err)
		return 0
	}
	return b
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() uint8 {
	return r.Tag()
}

// Uint32 reads a big-endian uint32.
func (r *Reader) Uint32() uint32 {
	var tmp [4]byte
	if _, err := io.ReadFull(r.r, tmp[:]); err != nil {
		r.fail(err)
		return 0
	}
	return binary.BigEndian.Uint32(tmp[:])
}

// Uint64 reads a big-endian uint64.
func (r *Reader) Uint64() uint64 {
	var tmp [8]byte
	if _, err := io.ReadFull(r.r, tmp[:]); err != nil {
		r.fail(err)
		return 0
	}
	return binary.BigEndian.Uint64(tmp[:])
}

// Bytes reads a length-prefixed byte string.
func (r *Reader) Bytes() []byte {
	n := r.Uint32()
	if r.err != nil {
		return nil
	}
	if n > 64<<20 {
		r.fail(fmt.Errorf("convergeenc: field length %d exceeds sanity bound", n))
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		r.fail(err)
		return nil
	}
	return buf
}

// String reads a length-prefixed UTF-8 string.
func (r *Reader) String() string {
	return string(r.Bytes())
}

// Done reports whether every byte of the input has been consumed.
func (r *Reader) Done() bool {
	return r.r.Len() == 0
}
