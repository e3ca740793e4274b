package snap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/convergence-vcs/convergence/convergeid"
)

func TestIdenticalInputsYieldIdenticalID(t *testing.T) {
	createdAt := time.Unix(1700000000, 0)
	root := convergeid.Of([]byte("some root manifest bytes"))

	a := New("ws-1", createdAt, root, "wip")
	b := New("ws-1", createdAt, root, "wip")
	require.Equal(t, a.ID(), b.ID())
}

func TestDifferingMessageYieldsDifferentID(t *testing.T) {
	createdAt := time.Unix(1700000000, 0)
	root := convergeid.Of([]byte("some root manifest bytes"))

	a := New("ws-1", createdAt, root, "wip")
	b := New("ws-1", createdAt, root, "final")
	require.NotEqual(t, a.ID(), b.ID())
}

func TestDecodeRoundTrip(t *testing.T) {
	s := New("ws-1", time.Unix(1700000000, 0), convergeid.Of([]byte("root")), "a message")

	decoded, err := Decode(s.Canonical())
	require.NoError(t, err)
	require.Equal(t, s.WorkspaceID, decoded.WorkspaceID)
	require.Equal(t, s.RootManifest, decoded.RootManifest)
	require.Equal(t, s.Message, decoded.Message)
	require.Equal(t, s.ID(), decoded.ID())
}

// TestCreatedAtExcludedFromID confirms CreatedAt never enters the hashed
// bytes: two snaps that differ only in capture time are the same object,
// matching the determinism discipline manifest/entry.go and chunker/recipe.go
// already follow (timestamps belong in provenance fields, not canonical
// encodings).
func TestCreatedAtExcludedFromID(t *testing.T) {
	root := convergeid.Of([]byte("root"))

	a := New("ws-1", time.Unix(1700000000, 0), root, "wip")
	b := New("ws-1", time.Unix(1800000000, 0), root, "wip")
	require.Equal(t, a.ID(), b.ID())
	require.Equal(t, a.Canonical(), b.Canonical())
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	s := New("ws-1", time.Unix(1700000000, 0), convergeid.Of([]byte("root")), "msg")
	_, err := Decode(append(s.Canonical(), 0xFF))
	require.Error(t, err)
}
