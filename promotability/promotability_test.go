package promotability

import (
	"testing"

	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/manifest"
	"github.com/convergence-vcs/convergence/convergemodel"
	"github.com/stretchr/testify/require"
)

func blobID(s string) convergeid.ID { return convergeid.Of([]byte(s)) }

func TestEvaluatePromotableWhenClean(t *testing.T) {
	m := manifest.New([]manifest.NamedEntry{
		{Name: "a.txt", Entry: manifest.File(manifest.FileContent{Kind: manifest.ContentBlob, BlobID: blobID("a")}, 0644, 1)},
	})
	r := Evaluate(m, manifest.Tree{}, Policy{AllowSuperpositions: true, RequiredApprovals: 0, AllowMetadataOnlyPublications: true}, 0, nil)
	require.True(t, r.Promotable)
	require.Empty(t, r.Reasons)
}

func TestEvaluateUnresolvedSuperpositions(t *testing.T) {
	m := manifest.New([]manifest.NamedEntry{
		{Name: "foo.txt", Entry: manifest.Entry{Kind: manifest.KindSuperposition, Superposition: &manifest.Superposition{
			Variants: []manifest.Variant{
				{Source: convergemodel.PublicationID("P1"), Kind: manifest.KindFile,
					File: &manifest.FileEntry{Content: manifest.FileContent{Kind: manifest.ContentBlob, BlobID: blobID("a")}, Mode: 0644, Size: 1}},
				{Source: convergemodel.PublicationID("P2"), Kind: manifest.KindFile,
					File: &manifest.FileEntry{Content: manifest.FileContent{Kind: manifest.ContentBlob, BlobID: blobID("b")}, Mode: 0644, Size: 1}},
			},
		}}},
	})
	r := Evaluate(m, manifest.Tree{}, Policy{AllowSuperpositions: false}, 0, nil)
	require.False(t, r.Promotable)
	require.Contains(t, r.Reasons[0], "unresolved-superpositions: /foo.txt")
}

func TestEvaluateInsufficientApprovals(t *testing.T) {
	m := manifest.New(nil)
	r := Evaluate(m, manifest.Tree{}, Policy{AllowSuperpositions: true, RequiredApprovals: 2}, 1, nil)
	require.False(t, r.Promotable)
	require.Contains(t, r.Reasons[0], "insufficient-approvals: have 1, need 2")
}

func TestEvaluateMissingObjects(t *testing.T) {
	m := manifest.New(nil)
	r := Evaluate(m, manifest.Tree{}, Policy{AllowSuperpositions: true, AllowMetadataOnlyPublications: false},
		0, []convergeid.ID{blobID("missing")})
	require.False(t, r.Promotable)
	require.Contains(t, r.Reasons[0], "missing-objects:")
}

func TestEvaluateCollectsAllReasons(t *testing.T) {
	m := manifest.New([]manifest.NamedEntry{
		{Name: "foo.txt", Entry: manifest.Entry{Kind: manifest.KindSuperposition, Superposition: &manifest.Superposition{
			Variants: []manifest.Variant{
				{Source: convergemodel.PublicationID("P1"), Kind: manifest.KindTombstone},
				{Source: convergemodel.PublicationID("P2"), Kind: manifest.KindFile,
					File: &manifest.FileEntry{Content: manifest.FileContent{Kind: manifest.ContentBlob, BlobID: blobID("b")}, Mode: 0644, Size: 1}},
			},
		}}},
	})
	r := Evaluate(m, manifest.Tree{}, Policy{AllowSuperpositions: false, RequiredApprovals: 1, AllowMetadataOnlyPublications: false},
		0, []convergeid.ID{blobID("missing")})
	require.False(t, r.Promotable)
	require.Len(t, r.Reasons, 3)
}

func TestEvaluateSuperpositionsNestedInSubdir(t *testing.T) {
	child := manifest.New([]manifest.NamedEntry{
		{Name: "nested.txt", Entry: manifest.Entry{Kind: manifest.KindSuperposition, Superposition: &manifest.Superposition{
			Variants: []manifest.Variant{
				{Source: convergemodel.PublicationID("P1"), Kind: manifest.KindFile,
					File: &manifest.FileEntry{Content: manifest.FileContent{Kind: manifest.ContentBlob, BlobID: blobID("a")}, Mode: 0644, Size: 1}},
				{Source: convergemodel.PublicationID("P2"), Kind: manifest.KindFile,
					File: &manifest.FileEntry{Content: manifest.FileContent{Kind: manifest.ContentBlob, BlobID: blobID("b")}, Mode: 0644, Size: 1}},
			},
		}}},
	})
	root := manifest.New([]manifest.NamedEntry{{Name: "sub", Entry: manifest.Dir(child.ID())}})
	tree := manifest.Tree{child.ID(): child}

	r := Evaluate(root, tree, Policy{AllowSuperpositions: false}, 0, nil)
	require.False(t, r.Promotable)
	require.Contains(t, r.Reasons[0], "/sub/nested.txt")
}
