// Package chunker splits large files into content-addressed chunk trees
// and reconstructs bytes from them. Chunking is fixed-size, not
// content-defined: boundaries fall at multiples of chunk_size regardless
// of the data, which keeps recipes simple and makes "only the touched
// chunk changes" hold for any edit that doesn't shift byte offsets.
package chunker

import (
	"bytes"
	"context"
	"io"

	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/objstore"
)

// DefaultChunkSize is 4 MiB.
const DefaultChunkSize = 4 << 20

// DefaultThreshold is 8 MiB: files at or above this size are chunked into a
// recipe; smaller files are stored as a single blob.
const DefaultThreshold = 8 << 20

// RefKind discriminates the two shapes a FileRef may take.
type RefKind uint8

const (
	RefBlob RefKind = iota
	RefRecipe
)

// FileRef identifies the stored content of a file: either a single blob or
// a recipe over a chunk sequence.
type FileRef struct {
	Kind     RefKind
	BlobID   convergeid.ID
	RecipeID convergeid.ID
	Size     uint64
}

// Config carries the chunking parameters a workspace or authority uses.
// Stored per-workspace so materialize/ingest stay consistent across a
// session; changing it does not invalidate previously stored objects.
type Config struct {
	ChunkSize uint64
	Threshold uint64
}

// DefaultConfig returns the default chunk_size/threshold.
func DefaultConfig() Config {
	return Config{ChunkSize: DefaultChunkSize, Threshold: DefaultThreshold}
}

// Ingest streams r into store, choosing blob or recipe storage per cfg and
// never buffering more than threshold bytes plus one chunk at once. It is
// deterministic:
// identical input bytes always yield an identical FileRef regardless of
// host.
func Ingest(ctx context.Context, r io.Reader, store *objstore.Store, cfg Config) (FileRef, error) {
	chunkSize := cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	head := make([]byte, threshold)
	n, err := io.ReadFull(r, head)
	switch {
	case err == nil:
		// head is entirely full; there may be more data to stream.
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		// Fewer than threshold bytes total: store as a single blob,
		// including the empty-file case (n == 0).
		content := head[:n]
		id := convergeid.Of(content)
		if putErr := store.Put(ctx, objstore.KindBlob, id, content); putErr != nil {
			return FileRef{}, putErr
		}
		return FileRef{Kind: RefBlob, BlobID: id, Size: uint64(n)}, nil
	default:
		return FileRef{}, err
	}

	var entries []ChunkEntry
	var total uint64

	emit := func(piece []byte) error {
		id := convergeid.Of(piece)
		if err := store.Put(ctx, objstore.KindChunk, id, piece); err != nil {
			return err
		}
		entries = append(entries, ChunkEntry{ChunkID: id, Size: uint64(len(piece))})
		total += uint64(len(piece))
		return nil
	}

	// The head already read is replayed ahead of the rest of r, so chunk
	// boundaries stay at multiples of chunkSize whatever the threshold.
	rest := io.MultiReader(bytes.NewReader(head[:n]), r)
	streamBuf := make([]byte, chunkSize)
	for {
		m, rerr := io.ReadFull(rest, streamBuf)
		if m > 0 {
			if err := emit(streamBuf[:m]); err != nil {
				return FileRef{}, err
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return FileRef{}, rerr
		}
	}

	recipe := Recipe{Chunks: entries, TotalSize: total}
	id := recipe.ID()
	if err := store.Put(ctx, objstore.KindRecipe, id, recipe.Canonical()); err != nil {
		return FileRef{}, err
	}
	return FileRef{Kind: RefRecipe, RecipeID: id, Size: total}, nil
}

// Materialize streams the reconstructed bytes of ref to w, in recipe order.
func Materialize(ctx context.Context, store *objstore.Store, ref FileRef, w io.Writer) error {
	switch ref.Kind {
	case RefBlob:
		content, err := store.Get(ctx, objstore.KindBlob, ref.BlobID)
		if err != nil {
			return err
		}
		_, err = w.Write(content)
		return err
	case RefRecipe:
		raw, err := store.Get(ctx, objstore.KindRecipe, ref.RecipeID)
		if err != nil {
			return err
		}
		recipe, err := DecodeRecipe(raw)
		if err != nil {
			return err
		}
		for _, c := range recipe.Chunks {
			chunk, err := store.Get(ctx, objstore.KindChunk, c.ChunkID)
			if err != nil {
				return err
			}
			if _, err := w.Write(chunk); err != nil {
				return err
			}
		}
		return nil
	default:
		return io.ErrUnexpectedEOF
	}
}

// MaterializeBytes is a convenience wrapper around Materialize for callers
// (tests, small-file consumers) that want the reconstructed bytes rather
// than a stream.
func MaterializeBytes(ctx context.Context, store *objstore.Store, ref FileRef) ([]byte, error) {
	var buf bytes.Buffer
	if err := Materialize(ctx, store, ref, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
