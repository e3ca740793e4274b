package retention

import (
	"context"
	"time"

	"github.com/convergence-vcs/convergence/authority"
	"github.com/convergence-vcs/convergence/convergectx"
	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/metrics"
	"github.com/convergence-vcs/convergence/objstore"
)

// Options configures one Run.
type Options struct {
	// DryRun reports what would be deleted without mutating the store.
	DryRun bool

	// PruneReleasesKeepLast, if > 0, drops all but the most recent N
	// releases per channel before roots are computed, letting a bundle
	// that only an old release kept alive become collectible.
	PruneReleasesKeepLast int

	// MaxConcurrency bounds how many roots the mark phase walks at once.
	// Zero uses defaultMarkConcurrency.
	MaxConcurrency int
}

// Stats reports what one GC run found and did, supplementing the spec's
// bare dry_run contract with the observability the teacher's own GC always
// returns (registry/storage/garbagecollect.go's GCStats).
type Stats struct {
	ReleasesPruned int

	RootBundles int
	RootSnaps   int

	ManifestsMarked, ManifestsDeleted int
	BlobsMarked, BlobsDeleted         int
	ChunksMarked, ChunksDeleted       int
	RecipesMarked, RecipesDeleted     int
	SnapsMarked, SnapsDeleted         int

	MarkDuration  time.Duration
	SweepDuration time.Duration
	TotalDuration time.Duration

	// DeletedSample previews, per kind, a bounded sample of the ids a
	// dry_run would delete (or did delete), matching the bounded-sample
	// propagation policy used elsewhere in this codebase (spec §7).
	DeletedSample map[objstore.Kind][]convergeid.ID
}

const deletedSampleLimit = 20

// recordSample stores up to deletedSampleLimit example ids per kind so a
// dry_run report or log line doesn't have to dump every deleted id.
func recordSample(samples map[objstore.Kind][]convergeid.ID, kind objstore.Kind, id convergeid.ID) {
	if len(samples[kind]) >= deletedSampleLimit {
		return
	}
	samples[kind] = append(samples[kind], id)
}

// Run performs one mark-and-sweep pass: it prunes release history if
// requested, computes roots from record's current state, marks everything
// transitively reachable, then sweeps every object store kind, deleting
// whatever wasn't marked (spec §4.10). With DryRun set, the sweep phase
// only counts and samples what it would delete.
func Run(ctx context.Context, store *objstore.Store, record *authority.RepoRecord, opts Options) (Stats, error) {
	start := time.Now()
	var stats Stats
	stats.DeletedSample = map[objstore.Kind][]convergeid.ID{}

	stats.ReleasesPruned = PruneReleases(record, opts.PruneReleasesKeepLast)

	roots := ComputeRoots(record)
	stats.RootBundles = len(roots.Bundles)
	stats.RootSnaps = len(roots.Snaps)

	markStart := time.Now()
	found, err := Mark(ctx, store, record, roots, opts.MaxConcurrency)
	stats.MarkDuration = time.Since(markStart)
	if err != nil {
		return stats, err
	}
	stats.ManifestsMarked = len(found.manifests)
	stats.BlobsMarked = len(found.blobs)
	stats.ChunksMarked = len(found.chunks)
	stats.RecipesMarked = len(found.recipes)
	stats.SnapsMarked = len(found.snaps)

	sweepStart := time.Now()
	kinds := []struct {
		kind    objstore.Kind
		marked  map[convergeid.ID]bool
		deleted *int
	}{
		{objstore.KindManifest, found.manifests, &stats.ManifestsDeleted},
		{objstore.KindBlob, found.blobs, &stats.BlobsDeleted},
		{objstore.KindChunk, found.chunks, &stats.ChunksDeleted},
		{objstore.KindRecipe, found.recipes, &stats.RecipesDeleted},
		{objstore.KindSnap, found.snaps, &stats.SnapsDeleted},
	}

	for _, k := range kinds {
		ids, err := store.List(ctx, k.kind)
		if err != nil {
			return stats, err
		}
		for _, id := range ids {
			if k.marked[id] {
				continue
			}
			recordSample(stats.DeletedSample, k.kind, id)
			*k.deleted++
			if opts.DryRun {
				continue
			}
			if err := store.Delete(ctx, k.kind, id); err != nil {
				return stats, err
			}
			metrics.GCObjectsDeleted.WithValues(string(k.kind)).Inc()
		}
	}
	stats.SweepDuration = time.Since(sweepStart)
	stats.TotalDuration = time.Since(start)

	metrics.GCSweeps.Inc()
	convergectx.GetLogger(ctx).Infof(
		"retention: sweep complete dry_run=%v marked={manifests:%d blobs:%d chunks:%d recipes:%d snaps:%d} deleted={manifests:%d blobs:%d chunks:%d recipes:%d snaps:%d} duration=%s",
		opts.DryRun, stats.ManifestsMarked, stats.BlobsMarked, stats.ChunksMarked, stats.RecipesMarked, stats.SnapsMarked,
		stats.ManifestsDeleted, stats.BlobsDeleted, stats.ChunksDeleted, stats.RecipesDeleted, stats.SnapsDeleted, stats.TotalDuration)

	return stats, nil
}
