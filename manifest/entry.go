// Package manifest implements the manifest model: an ordered list of
// name→entry pairs, where an entry is one of File, Dir, Symlink, Tombstone
// or Superposition. Entries are tagged sum types, collapsed into one closed
// set with an explicit discriminant byte in the canonical encoding so
// hashing stays stable across variant kinds.
package manifest

import (
	"fmt"

	"github.com/convergence-vcs/convergence/convergeenc"
	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/convergemodel"
)

// Kind discriminates the five closed entry shapes.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
	KindTombstone
	KindSuperposition
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	case KindTombstone:
		return "tombstone"
	case KindSuperposition:
		return "superposition"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// ContentKind discriminates a File entry's backing content.
type ContentKind uint8

const (
	ContentBlob ContentKind = iota
	ContentRecipe
)

// FileContent is a reference to a file's bytes, either a single blob or a
// chunked recipe.
type FileContent struct {
	Kind     ContentKind
	BlobID   convergeid.ID
	RecipeID convergeid.ID
}

// FileEntry is a regular file.
type FileEntry struct {
	Content FileContent
	Mode    uint32
	Size    uint64
}

// DirEntry points at the manifest describing a subdirectory.
type DirEntry struct {
	Manifest convergeid.ID
}

// SymlinkEntry stores a symlink's target verbatim; it is never followed.
type SymlinkEntry struct {
	Target string
}

// Entry is one manifest slot: exactly one of the pointer fields matching
// Kind is set.
type Entry struct {
	Kind          Kind
	File          *FileEntry
	Dir           *DirEntry
	Symlink       *SymlinkEntry
	Superposition *Superposition
}

// File constructs a File entry.
func File(content FileContent, mode uint32, size uint64) Entry {
	return Entry{Kind: KindFile, File: &FileEntry{Content: content, Mode: mode, Size: size}}
}

// Dir constructs a Dir entry.
func Dir(manifestID convergeid.ID) Entry {
	return Entry{Kind: KindDir, Dir: &DirEntry{Manifest: manifestID}}
}

// Symlink constructs a Symlink entry.
func Symlink(target string) Entry {
	return Entry{Kind: KindSymlink, Symlink: &SymlinkEntry{Target: target}}
}

// Tombstone constructs an explicit-deletion marker entry.
func Tombstone() Entry {
	return Entry{Kind: KindTombstone}
}

// Variant is one conflicting possibility within a Superposition, attributed
// to the publication that contributed it.
type Variant struct {
	Source  convergemodel.PublicationID
	Kind    Kind // one of KindFile, KindDir, KindSymlink, KindTombstone
	File    *FileEntry
	Dir     *DirEntry
	Symlink *SymlinkEntry
}

// Superposition carries every conflicting variant for one path, each
// attributed to its source publication. It always holds at least two
// variants with distinct ContentKeys (spec invariant).
type Superposition struct {
	Variants []Variant
}

// VariantKey is the stable, content-derived identity of a variant,
// including the (lowest, after collapsing) contributing source. It is
// invariant under variant-list reordering.
type VariantKey struct {
	Source        convergemodel.PublicationID
	Kind          Kind
	BlobID        convergeid.ID
	Mode          uint32
	Size          uint64
	DirManifest   convergeid.ID
	SymlinkTarget string
}

// Key returns v's VariantKey.
func (v Variant) Key() VariantKey {
	k := VariantKey{Source: v.Source, Kind: v.Kind}
	switch v.Kind {
	case KindFile:
		k.BlobID = v.File.Content.BlobID
		if v.File.Content.Kind == ContentRecipe {
			k.BlobID = v.File.Content.RecipeID
		}
		k.Mode = v.File.Mode
		k.Size = v.File.Size
	case KindDir:
		k.DirManifest = v.Dir.Manifest
	case KindSymlink:
		k.SymlinkTarget = v.Symlink.Target
	case KindTombstone:
		// nullary identity
	}
	return k
}

// ContentKey is the subset of VariantKey used to detect identical variants
// contributed by different sources during coalescing: it deliberately
// excludes Source, since two publications contributing byte-identical
// content must collapse into a single variant.
type ContentKey struct {
	Kind          Kind
	BlobID        convergeid.ID
	Mode          uint32
	Size          uint64
	DirManifest   convergeid.ID
	SymlinkTarget string
}

// Content returns v's ContentKey.
func (v Variant) Content() ContentKey {
	key := v.Key()
	return ContentKey{
		Kind:          key.Kind,
		BlobID:        key.BlobID,
		Mode:          key.Mode,
		Size:          key.Size,
		DirManifest:   key.DirManifest,
		SymlinkTarget: key.SymlinkTarget,
	}
}

// Less orders variants by (source, then content-kind, then identity
// fields) to satisfy the coalescer's "ordered by (source_pub_id,
// variant-key)" contract deterministically.
func (v Variant) Less(o Variant) bool {
	if v.Source != o.Source {
		return v.Source < o.Source
	}
	a, b := v.Content(), o.Content()
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	switch a.Kind {
	case KindFile:
		if a.BlobID != b.BlobID {
			return a.BlobID < b.BlobID
		}
		if a.Mode != b.Mode {
			return a.Mode < b.Mode
		}
		return a.Size < b.Size
	case KindDir:
		return a.DirManifest < b.DirManifest
	case KindSymlink:
		return a.SymlinkTarget < b.SymlinkTarget
	default:
		return false
	}
}

// canonical encoding tags, distinct from Kind so the wire format is
// explicit even if Kind's numeric values ever change.
const (
	tagFile byte = iota + 1
	tagDir
	tagSymlink
	tagTombstone
	tagSuperposition
)

func (e Entry) encode(w *convergeenc.Writer) {
	switch e.Kind {
	case KindFile:
		w.Tag(tagFile)
		encodeFileContent(w, e.File.Content)
		w.Uint32(e.File.Mode)
		w.Uint64(e.File.Size)
	case KindDir:
		w.Tag(tagDir)
		w.String(string(e.Dir.Manifest))
	case KindSymlink:
		w.Tag(tagSymlink)
		w.String(e.Symlink.Target)
	case KindTombstone:
		w.Tag(tagTombstone)
	case KindSuperposition:
		w.Tag(tagSuperposition)
		w.Uint32(uint32(len(e.Superposition.Variants)))
		for _, v := range e.Superposition.Variants {
			encodeVariant(w, v)
		}
	}
}

func encodeFileContent(w *convergeenc.Writer, c FileContent) {
	w.Uint8(uint8(c.Kind))
	switch c.Kind {
	case ContentBlob:
		w.String(string(c.BlobID))
	case ContentRecipe:
		w.String(string(c.RecipeID))
	}
}

func encodeVariant(w *convergeenc.Writer, v Variant) {
	w.String(string(v.Source))
	w.Uint8(uint8(v.Kind))
	switch v.Kind {
	case KindFile:
		encodeFileContent(w, v.File.Content)
		w.Uint32(v.File.Mode)
		w.Uint64(v.File.Size)
	case KindDir:
		w.String(string(v.Dir.Manifest))
	case KindSymlink:
		w.String(v.Symlink.Target)
	case KindTombstone:
	}
}

func decodeEntry(r *convergeenc.Reader) Entry {
	tag := r.Tag()
	switch tag {
	case tagFile:
		content := decodeFileContent(r)
		mode := r.Uint32()
		size := r.Uint64()
		return File(content, mode, size)
	case tagDir:
		return Dir(convergeid.ID(r.String()))
	case tagSymlink:
		return Symlink(r.String())
	case tagTombstone:
		return Tombstone()
	case tagSuperposition:
		n := r.Uint32()
		variants := make([]Variant, 0, n)
		for i := uint32(0); i < n; i++ {
			variants = append(variants, decodeVariant(r))
		}
		return Entry{Kind: KindSuperposition, Superposition: &Superposition{Variants: variants}}
	default:
		r.Err()
		return Entry{}
	}
}

func decodeFileContent(r *convergeenc.Reader) FileContent {
	kind := ContentKind(r.Uint8())
	switch kind {
	case ContentBlob:
		return FileContent{Kind: ContentBlob, BlobID: convergeid.ID(r.String())}
	default:
		return FileContent{Kind: ContentRecipe, RecipeID: convergeid.ID(r.String())}
	}
}

func decodeVariant(r *convergeenc.Reader) Variant {
	source := convergemodel.PublicationID(r.String())
	kind := Kind(r.Uint8())
	v := Variant{Source: source, Kind: kind}
	switch kind {
	case KindFile:
		content := decodeFileContent(r)
		mode := r.Uint32()
		size := r.Uint64()
		v.File = &FileEntry{Content: content, Mode: mode, Size: size}
	case KindDir:
		v.Dir = &DirEntry{Manifest: convergeid.ID(r.String())}
	case KindSymlink:
		v.Symlink = &SymlinkEntry{Target: r.String()}
	case KindTombstone:
	}
	return v
}
