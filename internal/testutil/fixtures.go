// Package testutil collects small object-graph fixtures shared across this
// module's test suites: manifests, snaps, and the stores that hold them.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/convergemodel"
	"github.com/convergence-vcs/convergence/manifest"
	"github.com/convergence-vcs/convergence/objstore"
	"github.com/convergence-vcs/convergence/snap"
	"github.com/convergence-vcs/convergence/storagedriver"
	"github.com/convergence-vcs/convergence/storagedriver/inmemory"
)

// NewStore returns a fresh in-memory object store rooted at "objects",
// suitable for a single test case.
func NewStore() *objstore.Store {
	return objstore.New(inmemory.New(), "objects")
}

// NewDriver returns a fresh in-memory storage driver for tests that need
// to exercise the driver layer directly rather than through objstore.
func NewDriver() storagedriver.StorageDriver {
	return inmemory.New()
}

// PutManifest stores m's canonical encoding in store and returns m, failing
// the test on error.
func PutManifest(t *testing.T, ctx context.Context, store *objstore.Store, m manifest.Manifest) manifest.Manifest {
	t.Helper()
	if err := store.Put(ctx, objstore.KindManifest, m.ID(), m.Canonical()); err != nil {
		t.Fatalf("testutil: put manifest: %v", err)
	}
	return m
}

// PutSnap stores s's canonical encoding in store and returns s, failing the
// test on error.
func PutSnap(t *testing.T, ctx context.Context, store *objstore.Store, s snap.Snap) snap.Snap {
	t.Helper()
	if err := store.Put(ctx, objstore.KindSnap, convergeid.ID(s.ID()), s.Canonical()); err != nil {
		t.Fatalf("testutil: put snap: %v", err)
	}
	return s
}

// LeafFile returns a named manifest entry for one file backed by blob, convenient for building distinguishable fixture manifests
// across tests without going through the chunker.
func LeafFile(name string, blob convergeid.ID, size uint64) manifest.NamedEntry {
	return manifest.NamedEntry{
		Name: name,
		Entry: manifest.File(manifest.FileContent{
			Kind:   manifest.ContentBlob,
			BlobID: blob,
		}, 0o644, size),
	}
}

// FixedTime returns a deterministic timestamp for tests that must not
// depend on wall-clock time: content-addressed objects never embed
// ambient time.
func FixedTime() time.Time {
	return time.Unix(1700000000, 0).UTC()
}

// SampleWorkspaceID is a stable workspace identity for fixtures that don't
// care about its exact value.
const SampleWorkspaceID convergemodel.WorkspaceID = "ws-fixture"
