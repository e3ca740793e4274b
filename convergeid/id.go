// Package convergeid provides the content-address identity used across every
// object kind in the store: blobs, chunks, recipes, manifests and snaps are
// all identified by the BLAKE3 digest of their canonical encoding.
package convergeid

import (
	"encoding/hex"
	"fmt"
	"io"
	"regexp"

	"github.com/opencontainers/go-digest"
	"lukechampine.com/blake3"
)

// Algorithm is the sole hash algorithm this store supports. The spec does
// not require pluggable algorithms, and digest.Digest below still gives us
// the "alg:hex" presentation format the rest of the ecosystem expects.
const Algorithm = "blake3"

// ID is the hex-encoded BLAKE3 digest of an object's canonical encoding.
// It is always 64 hex characters (256 bits).
type ID string

// hexRegexp matches a bare 256-bit hex digest.
var hexRegexp = regexp.MustCompile(`^[a-f0-9]{64}$`)

// ErrInvalidID is returned when a string does not conform to the expected
// hex length/charset for an ID.
var ErrInvalidID = fmt.Errorf("invalid-id: does not conform to expected hex length/charset")

// Of returns the ID of p: the hex BLAKE3 digest of the bytes.
func Of(p []byte) ID {
	sum := blake3.Sum256(p)
	return ID(hex.EncodeToString(sum[:]))
}

// OfReader streams r through BLAKE3 without materializing it, returning the
// resulting ID, so a large input is never fully buffered.
func OfReader(r io.Reader) (ID, error) {
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return ID(hex.EncodeToString(sum[:])), nil
}

// NewHasher returns a streaming BLAKE3 hasher whose Sum yields the same
// bytes as Of when fed the same content incrementally.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New(32, nil)}
}

// Hasher wraps the BLAKE3 streaming hash state behind io.Writer so callers
// (e.g. a chunk writer) can compute an ID while streaming bytes elsewhere.
type Hasher struct {
	h *blake3.Hasher
}

func (hs *Hasher) Write(p []byte) (int, error) { return hs.h.Write(p) }

// Sum returns the ID for everything written so far.
func (hs *Hasher) Sum() ID {
	sum := hs.h.Sum(nil)
	return ID(hex.EncodeToString(sum))
}

// Validate reports ErrInvalidID if id is not a well-formed hex digest.
func Validate(id ID) error {
	if !hexRegexp.MatchString(string(id)) {
		return ErrInvalidID
	}
	return nil
}

// ShardPrefix returns the first byte pair of the id, used to shard object
// storage directories (<root>/<kind>/<shard>/<id>), mirroring the
// two-hex-character split directory layout of a content-addressable blob
// store.
func (id ID) ShardPrefix() string {
	if len(id) < 2 {
		return string(id)
	}
	return string(id)[:2]
}

// Digest renders id in the "alg:hex" form used by external tooling and logs.
func (id ID) Digest() digest.Digest {
	return digest.NewDigestFromEncoded(digest.Algorithm(Algorithm), string(id))
}

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }
