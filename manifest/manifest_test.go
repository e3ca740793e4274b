package manifest

import (
	"testing"

	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/convergemodel"
	"github.com/stretchr/testify/require"
)

func blobID(s string) convergeid.ID { return convergeid.Of([]byte(s)) }

func TestManifestIDInvariantUnderInsertionOrder(t *testing.T) {
	a := New([]NamedEntry{
		{Name: "b.txt", Entry: File(FileContent{Kind: ContentBlob, BlobID: blobID("b")}, 0644, 1)},
		{Name: "a.txt", Entry: File(FileContent{Kind: ContentBlob, BlobID: blobID("a")}, 0644, 1)},
	})
	b := New([]NamedEntry{
		{Name: "a.txt", Entry: File(FileContent{Kind: ContentBlob, BlobID: blobID("a")}, 0644, 1)},
		{Name: "b.txt", Entry: File(FileContent{Kind: ContentBlob, BlobID: blobID("b")}, 0644, 1)},
	})
	require.Equal(t, a.ID(), b.ID())
	require.Equal(t, "a.txt", a.Entries[0].Name)
}

func TestManifestEncodeDecodeRoundTrip(t *testing.T) {
	orig := New([]NamedEntry{
		{Name: "file.txt", Entry: File(FileContent{Kind: ContentBlob, BlobID: blobID("x")}, 0644, 42)},
		{Name: "link", Entry: Symlink("../other")},
		{Name: "sub", Entry: Dir(blobID("child-manifest"))},
		{Name: "gone", Entry: Tombstone()},
		{Name: "conflict", Entry: Entry{
			Kind: KindSuperposition,
			Superposition: &Superposition{Variants: []Variant{
				{Source: convergemodel.PublicationID("pub-a"), Kind: KindFile,
					File: &FileEntry{Content: FileContent{Kind: ContentBlob, BlobID: blobID("v1")}, Mode: 0644, Size: 3}},
				{Source: convergemodel.PublicationID("pub-b"), Kind: KindFile,
					File: &FileEntry{Content: FileContent{Kind: ContentBlob, BlobID: blobID("v2")}, Mode: 0644, Size: 4}},
			}},
		}},
	})

	decoded, err := Decode(orig.Canonical())
	require.NoError(t, err)
	require.Equal(t, orig.ID(), decoded.ID())
	require.Equal(t, len(orig.Entries), len(decoded.Entries))

	got, ok := decoded.Lookup("conflict")
	require.True(t, ok)
	require.Equal(t, KindSuperposition, got.Kind)
	require.Len(t, got.Superposition.Variants, 2)
}

func TestManifestLookupMissing(t *testing.T) {
	m := New([]NamedEntry{{Name: "only.txt", Entry: Tombstone()}})
	_, ok := m.Lookup("nope")
	require.False(t, ok)
}

func TestVariantContentKeyIgnoresSource(t *testing.T) {
	a := Variant{Source: convergemodel.PublicationID("pub-1"), Kind: KindFile,
		File: &FileEntry{Content: FileContent{Kind: ContentBlob, BlobID: blobID("same")}, Mode: 0644, Size: 5}}
	b := Variant{Source: convergemodel.PublicationID("pub-2"), Kind: KindFile,
		File: &FileEntry{Content: FileContent{Kind: ContentBlob, BlobID: blobID("same")}, Mode: 0644, Size: 5}}
	require.Equal(t, a.Content(), b.Content())
	require.NotEqual(t, a.Key(), b.Key())
}

func TestCheckAcyclicDetectsSelfReference(t *testing.T) {
	loopID := blobID("loop")
	resolve := func(id convergeid.ID) (Manifest, error) {
		return New([]NamedEntry{{Name: "self", Entry: Dir(loopID)}}), nil
	}
	err := CheckAcyclic(loopID, resolve)
	require.Error(t, err)
}

func TestCheckAcyclicAcceptsTree(t *testing.T) {
	leaf := blobID("leaf-manifest")
	root := blobID("root-manifest")
	resolve := func(id convergeid.ID) (Manifest, error) {
		if id == root {
			return New([]NamedEntry{{Name: "child", Entry: Dir(leaf)}}), nil
		}
		return New([]NamedEntry{{Name: "f", Entry: Tombstone()}}), nil
	}
	require.NoError(t, CheckAcyclic(root, resolve))
}
