package coalesce

import (
	"testing"

	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/convergemodel"
	"github.com/convergence-vcs/convergence/manifest"
	"github.com/stretchr/testify/require"
)

func blobID(s string) convergeid.ID { return convergeid.Of([]byte(s)) }

func fileEntry(content string, size uint64) manifest.Entry {
	return manifest.File(manifest.FileContent{Kind: manifest.ContentBlob, BlobID: blobID(content)}, 0644, size)
}

// A single input coalesces to its own manifest's id.
func TestCoalesceSingleInputIdentity(t *testing.T) {
	m := manifest.New([]manifest.NamedEntry{{Name: "foo.txt", Entry: fileEntry("A", 3)}})
	result, err := Coalesce([]Input{{Source: "P1", Manifest: m}}, manifest.Tree{})
	require.NoError(t, err)
	require.Equal(t, m.ID(), result.Root.ID())
}

// S1: identical snaps referencing the same manifest coalesce to that
// manifest's id with no superpositions.
func TestCoalesceDeterministicEmptyCoalesce(t *testing.T) {
	m := manifest.New([]manifest.NamedEntry{{Name: "foo.txt", Entry: fileEntry("A", 3)}})
	r, err := Coalesce([]Input{
		{Source: "P1", Manifest: m},
		{Source: "P2", Manifest: m},
	}, manifest.Tree{})
	require.NoError(t, err)
	require.Equal(t, m.ID(), r.Root.ID())
	entry, ok := r.Root.Lookup("foo.txt")
	require.True(t, ok)
	require.Equal(t, manifest.KindFile, entry.Kind)
}

// S2: conflicting file content materializes a Superposition.
func TestCoalesceSuperpositionMaterialization(t *testing.T) {
	m1 := manifest.New([]manifest.NamedEntry{{Name: "foo.txt", Entry: fileEntry("A", 3)}})
	m2 := manifest.New([]manifest.NamedEntry{{Name: "foo.txt", Entry: fileEntry("B", 3)}})

	r, err := Coalesce([]Input{
		{Source: "P1", Manifest: m1},
		{Source: "P2", Manifest: m2},
	}, manifest.Tree{})
	require.NoError(t, err)

	entry, ok := r.Root.Lookup("foo.txt")
	require.True(t, ok)
	require.Equal(t, manifest.KindSuperposition, entry.Kind)
	require.Len(t, entry.Superposition.Variants, 2)
	require.Equal(t, convergemodel.PublicationID("P1"), entry.Superposition.Variants[0].Source)
	require.Equal(t, convergemodel.PublicationID("P2"), entry.Superposition.Variants[1].Source)
}

func TestCoalescePermutationInvariant(t *testing.T) {
	m1 := manifest.New([]manifest.NamedEntry{{Name: "foo.txt", Entry: fileEntry("A", 3)}})
	m2 := manifest.New([]manifest.NamedEntry{{Name: "foo.txt", Entry: fileEntry("B", 3)}})
	m3 := manifest.New([]manifest.NamedEntry{{Name: "foo.txt", Entry: fileEntry("C", 3)}})

	forward := []Input{{Source: "P1", Manifest: m1}, {Source: "P2", Manifest: m2}, {Source: "P3", Manifest: m3}}
	reversed := []Input{{Source: "P3", Manifest: m3}, {Source: "P1", Manifest: m1}, {Source: "P2", Manifest: m2}}

	rf, err := Coalesce(forward, manifest.Tree{})
	require.NoError(t, err)
	rr, err := Coalesce(reversed, manifest.Tree{})
	require.NoError(t, err)
	require.Equal(t, rf.Root.ID(), rr.Root.ID())
}

func TestCoalesceIdenticalVariantsFromDifferentSourcesCollapse(t *testing.T) {
	m1 := manifest.New([]manifest.NamedEntry{{Name: "foo.txt", Entry: fileEntry("A", 3)}})
	m2 := manifest.New([]manifest.NamedEntry{{Name: "foo.txt", Entry: fileEntry("A", 3)}})
	m3 := manifest.New([]manifest.NamedEntry{{Name: "foo.txt", Entry: fileEntry("B", 3)}})

	r, err := Coalesce([]Input{
		{Source: "P1", Manifest: m1},
		{Source: "P2", Manifest: m2},
		{Source: "P3", Manifest: m3},
	}, manifest.Tree{})
	require.NoError(t, err)

	entry, ok := r.Root.Lookup("foo.txt")
	require.True(t, ok)
	require.Equal(t, manifest.KindSuperposition, entry.Kind)
	require.Len(t, entry.Superposition.Variants, 2)
	// P1 and P2 contributed identical content; the collapsed variant's
	// source is the lowest of the two.
	require.Equal(t, convergemodel.PublicationID("P1"), entry.Superposition.Variants[0].Source)
}

func TestCoalesceAllTombstonesSuppressPath(t *testing.T) {
	m1 := manifest.New([]manifest.NamedEntry{{Name: "gone.txt", Entry: manifest.Tombstone()}})
	m2 := manifest.New([]manifest.NamedEntry{{Name: "gone.txt", Entry: manifest.Tombstone()}})

	r, err := Coalesce([]Input{{Source: "P1", Manifest: m1}, {Source: "P2", Manifest: m2}}, manifest.Tree{})
	require.NoError(t, err)
	_, ok := r.Root.Lookup("gone.txt")
	require.False(t, ok)
}

func TestCoalesceTombstoneConflictsWithEdit(t *testing.T) {
	m1 := manifest.New([]manifest.NamedEntry{{Name: "f.txt", Entry: manifest.Tombstone()}})
	m2 := manifest.New([]manifest.NamedEntry{{Name: "f.txt", Entry: fileEntry("A", 3)}})

	r, err := Coalesce([]Input{{Source: "P1", Manifest: m1}, {Source: "P2", Manifest: m2}}, manifest.Tree{})
	require.NoError(t, err)
	entry, ok := r.Root.Lookup("f.txt")
	require.True(t, ok)
	require.Equal(t, manifest.KindSuperposition, entry.Kind)
	require.Len(t, entry.Superposition.Variants, 2)
}

func TestCoalesceRecursesIntoDirs(t *testing.T) {
	childA := manifest.New([]manifest.NamedEntry{{Name: "a.txt", Entry: fileEntry("A", 1)}})
	childB := manifest.New([]manifest.NamedEntry{{Name: "b.txt", Entry: fileEntry("B", 1)}})

	tree := manifest.Tree{childA.ID(): childA, childB.ID(): childB}

	root1 := manifest.New([]manifest.NamedEntry{{Name: "dir", Entry: manifest.Dir(childA.ID())}})
	root2 := manifest.New([]manifest.NamedEntry{{Name: "dir", Entry: manifest.Dir(childB.ID())}})

	r, err := Coalesce([]Input{{Source: "P1", Manifest: root1}, {Source: "P2", Manifest: root2}}, tree)
	require.NoError(t, err)

	entry, ok := r.Root.Lookup("dir")
	require.True(t, ok)
	require.Equal(t, manifest.KindDir, entry.Kind)

	merged, ok := r.Produced[entry.Dir.Manifest]
	require.True(t, ok)
	_, hasA := merged.Lookup("a.txt")
	_, hasB := merged.Lookup("b.txt")
	require.True(t, hasA)
	require.True(t, hasB)
}

func TestCoalesceMissingChildManifestReported(t *testing.T) {
	root1 := manifest.New([]manifest.NamedEntry{{Name: "dir", Entry: manifest.Dir(blobID("missing-1"))}})
	root2 := manifest.New([]manifest.NamedEntry{{Name: "dir", Entry: manifest.Dir(blobID("missing-2"))}})

	_, err := Coalesce([]Input{{Source: "P1", Manifest: root1}, {Source: "P2", Manifest: root2}}, manifest.Tree{})
	require.Error(t, err)
}
