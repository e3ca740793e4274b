package chunker

import (
	"github.com/convergence-vcs/convergence/convergeenc"
	"github.com/convergence-vcs/convergence/convergeid"
)

// ChunkEntry is one ordered step of a Recipe: the id of a stored chunk and
// its exact byte size (the last chunk in a recipe may be shorter than the
// configured chunk_size).
type ChunkEntry struct {
	ChunkID convergeid.ID
	Size    uint64
}

// Recipe is an ordered sequence of chunks plus the total reconstructed
// file size. Reconstruction concatenates chunks in order.
type Recipe struct {
	Chunks    []ChunkEntry
	TotalSize uint64
}

// Canonical returns the deterministic byte encoding of r, whose BLAKE3
// digest is the Recipe's id.
func (r Recipe) Canonical() []byte {
	w := convergeenc.NewWriter()
	w.Uint64(r.TotalSize)
	w.Uint32(uint32(len(r.Chunks)))
	for _, c := range r.Chunks {
		w.String(string(c.ChunkID))
		w.Uint64(c.Size)
	}
	return w.Finish()
}

// ID returns the content address of r's canonical encoding.
func (r Recipe) ID() convergeid.ID {
	return convergeid.Of(r.Canonical())
}

// DecodeRecipe parses a Recipe from its canonical encoding.
func DecodeRecipe(p []byte) (Recipe, error) {
	r := convergeenc.NewReader(p)
	total := r.Uint64()
	n := r.Uint32()
	chunks := make([]ChunkEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		id := convergeid.ID(r.String())
		size := r.Uint64()
		chunks = append(chunks, ChunkEntry{ChunkID: id, Size: size})
	}
	if err := r.Err(); err != nil {
		return Recipe{}, err
	}
	return Recipe{Chunks: chunks, TotalSize: total}, nil
}

// SumSizes returns the sum of every chunk's recorded size, which must
// always equal TotalSize.
func (r Recipe) SumSizes() uint64 {
	var sum uint64
	for _, c := range r.Chunks {
		sum += c.Size
	}
	return sum
}
