package manifest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/convergence-vcs/convergence/chunker"
	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/objstore"
)

// Builder turns a local directory tree into content-addressed manifests,
// storing blobs/chunks/recipes/manifests as it descends. It is the
// filesystem-facing half of the model; everything above assumes a Manifest
// already exists.
type Builder struct {
	Store      *objstore.Store
	ChunkerCfg chunker.Config
}

// NewBuilder returns a Builder using cfg for chunking decisions.
func NewBuilder(store *objstore.Store, cfg chunker.Config) *Builder {
	return &Builder{Store: store, ChunkerCfg: cfg}
}

// Scan walks dir and returns the id of its root Manifest. Entries are
// ordered lexicographically by raw byte value of the name, POSIX mode bits
// are preserved, and symlink targets are stored unresolved (never followed,
// never rewritten).
func (b *Builder) Scan(ctx context.Context, dir string) (convergeid.ID, error) {
	names, err := readdirSorted(dir)
	if err != nil {
		return "", err
	}

	var entries []NamedEntry
	for _, name := range names {
		full := filepath.Join(dir, name)
		info, lerr := os.Lstat(full)
		if lerr != nil {
			return "", lerr
		}

		var entry Entry
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			target, terr := os.Readlink(full)
			if terr != nil {
				return "", terr
			}
			entry = Symlink(target)
		case info.IsDir():
			childID, cerr := b.Scan(ctx, full)
			if cerr != nil {
				return "", cerr
			}
			entry = Dir(childID)
		default:
			ref, ferr := b.ingestFile(ctx, full)
			if ferr != nil {
				return "", ferr
			}
			content := FileContent{Kind: ContentBlob, BlobID: ref.BlobID}
			if ref.Kind == chunker.RefRecipe {
				content = FileContent{Kind: ContentRecipe, RecipeID: ref.RecipeID}
			}
			entry = File(content, uint32(info.Mode().Perm()), ref.Size)
		}
		entries = append(entries, NamedEntry{Name: name, Entry: entry})
	}

	m := New(entries)
	if err := b.Store.Put(ctx, objstore.KindManifest, m.ID(), m.Canonical()); err != nil {
		return "", err
	}
	return m.ID(), nil
}

func (b *Builder) ingestFile(ctx context.Context, path string) (chunker.FileRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return chunker.FileRef{}, err
	}
	defer f.Close()
	return chunker.Ingest(ctx, f, b.Store, b.ChunkerCfg)
}

func readdirSorted(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
