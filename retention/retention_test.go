package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/convergence-vcs/convergence/authority"
	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/manifest"
	"github.com/convergence-vcs/convergence/objstore"
	"github.com/convergence-vcs/convergence/snap"
	"github.com/convergence-vcs/convergence/storagedriver/inmemory"
)

func putManifest(t *testing.T, ctx context.Context, store *objstore.Store, m manifest.Manifest) manifest.Manifest {
	t.Helper()
	require.NoError(t, store.Put(ctx, objstore.KindManifest, m.ID(), m.Canonical()))
	return m
}

// TestGCPreservesPinnedBundleAndDeletesOrphans exercises spec scenario S6:
// pin a bundle, run GC, confirm everything reachable from the pin survives
// and an unrelated unreferenced manifest is swept; a second run is a no-op.
func TestGCPreservesPinnedBundleAndDeletesOrphans(t *testing.T) {
	ctx := context.Background()
	driver := inmemory.New()
	store := objstore.New(driver, "repo-1/objects")

	kept := putManifest(t, ctx, store, manifest.New(nil))
	orphan := putManifest(t, ctx, store, manifest.New([]manifest.NamedEntry{
		{Name: "unique-to-orphan.txt", Entry: manifest.Symlink("somewhere")},
	}))
	require.NotEqual(t, kept.ID(), orphan.ID())

	record := authority.NewRepoRecord("repo-1")
	record.Bundles["b1"] = &authority.Bundle{
		ID:           "b1",
		RootManifest: kept.ID(),
	}
	record.Pins["b1"] = true

	stats, err := Run(ctx, store, record, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.RootBundles)
	require.Equal(t, 1, stats.ManifestsDeleted)
	require.Contains(t, stats.DeletedSample[objstore.KindManifest], orphan.ID())

	has, err := store.Has(ctx, objstore.KindManifest, kept.ID())
	require.NoError(t, err)
	require.True(t, has, "pinned bundle's manifest must survive")

	has, err = store.Has(ctx, objstore.KindManifest, orphan.ID())
	require.NoError(t, err)
	require.False(t, has, "unreferenced manifest must be swept")

	statsAgain, err := Run(ctx, store, record, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, statsAgain.ManifestsDeleted, "second run is a no-op")
}

func TestGCDryRunMutatesNothing(t *testing.T) {
	ctx := context.Background()
	driver := inmemory.New()
	store := objstore.New(driver, "repo-1/objects")

	orphan := putManifest(t, ctx, store, manifest.New(nil))
	record := authority.NewRepoRecord("repo-1")

	stats, err := Run(ctx, store, record, Options{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, stats.ManifestsDeleted)

	has, err := store.Has(ctx, objstore.KindManifest, orphan.ID())
	require.NoError(t, err)
	require.True(t, has, "dry_run must not delete anything")
}

// TestGCRootsFromLaneHeadSnap confirms a snap referenced only by a lane
// head (no publication, no bundle) still keeps its manifest alive.
func TestGCRootsFromLaneHeadSnap(t *testing.T) {
	ctx := context.Background()
	driver := inmemory.New()
	store := objstore.New(driver, "repo-1/objects")

	root := putManifest(t, ctx, store, manifest.New(nil))
	s := snap.New("ws-1", time.Unix(1700000000, 0), root.ID(), "wip")
	require.NoError(t, store.Put(ctx, objstore.KindSnap, convergeid.ID(s.ID()), s.Canonical()))

	record := authority.NewRepoRecord("repo-1")
	record.LaneHead("scope-1", "lane-1", "alice").Push(s.ID())

	stats, err := Run(ctx, store, record, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.RootSnaps)

	has, err := store.Has(ctx, objstore.KindManifest, root.ID())
	require.NoError(t, err)
	require.True(t, has)
}

// TestGCRootsKeepsEachUsersLaneHeadSeparate confirms two publishers in the
// same lane get their own root: one user's push must not evict the other's
// head out of the GC-root set (spec.md glossary: a lane "carries per-user
// heads of unpublished work").
func TestGCRootsKeepsEachUsersLaneHeadSeparate(t *testing.T) {
	ctx := context.Background()
	driver := inmemory.New()
	store := objstore.New(driver, "repo-1/objects")

	aliceRoot := putManifest(t, ctx, store, manifest.New(nil))
	aliceSnap := snap.New("ws-alice", time.Unix(1700000000, 0), aliceRoot.ID(), "alice's wip")
	require.NoError(t, store.Put(ctx, objstore.KindSnap, convergeid.ID(aliceSnap.ID()), aliceSnap.Canonical()))

	bobRoot := putManifest(t, ctx, store, manifest.New([]manifest.NamedEntry{
		{Name: "bob.txt", Entry: manifest.Symlink("bob")},
	}))
	bobSnap := snap.New("ws-bob", time.Unix(1700000001, 0), bobRoot.ID(), "bob's wip")
	require.NoError(t, store.Put(ctx, objstore.KindSnap, convergeid.ID(bobSnap.ID()), bobSnap.Canonical()))

	record := authority.NewRepoRecord("repo-1")
	record.LaneHead("scope-1", "lane-1", "alice").Push(aliceSnap.ID())
	record.LaneHead("scope-1", "lane-1", "bob").Push(bobSnap.ID())

	stats, err := Run(ctx, store, record, Options{})
	require.NoError(t, err)
	require.Equal(t, 2, stats.RootSnaps)

	aliceHas, err := store.Has(ctx, objstore.KindManifest, aliceRoot.ID())
	require.NoError(t, err)
	require.True(t, aliceHas, "alice's lane head must survive bob pushing to the same lane")

	bobHas, err := store.Has(ctx, objstore.KindManifest, bobRoot.ID())
	require.NoError(t, err)
	require.True(t, bobHas)
}

// TestGCPruneReleasesFreesSupersededBundle confirms
// prune_releases_keep_last lets an old release's bundle become collectible
// once it falls out of the retained window (spec §4.10 "enabling recovery
// of bundles no longer referenced").
func TestGCPruneReleasesFreesSupersededBundle(t *testing.T) {
	ctx := context.Background()
	driver := inmemory.New()
	store := objstore.New(driver, "repo-1/objects")

	oldManifest := putManifest(t, ctx, store, manifest.New(nil))
	newManifest := putManifest(t, ctx, store, manifest.New([]manifest.NamedEntry{
		{Name: "v2.txt", Entry: manifest.Symlink("v2")},
	}))

	record := authority.NewRepoRecord("repo-1")
	record.Bundles["old"] = &authority.Bundle{ID: "old", RootManifest: oldManifest.ID()}
	record.Bundles["new"] = &authority.Bundle{ID: "new", RootManifest: newManifest.ID()}
	record.Releases["stable"] = []authority.Release{
		{Channel: "stable", BundleID: "old"},
		{Channel: "stable", BundleID: "new"},
	}

	stats, err := Run(ctx, store, record, Options{PruneReleasesKeepLast: 1})
	require.NoError(t, err)
	require.Equal(t, 1, stats.ReleasesPruned)

	has, err := store.Has(ctx, objstore.KindManifest, oldManifest.ID())
	require.NoError(t, err)
	require.False(t, has, "release history beyond the retained window no longer roots its bundle")

	has, err = store.Has(ctx, objstore.KindManifest, newManifest.ID())
	require.NoError(t, err)
	require.True(t, has)
}
