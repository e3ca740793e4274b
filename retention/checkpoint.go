package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/objstore"
	"github.com/convergence-vcs/convergence/storagedriver"
)

// CheckpointState is a resumable snapshot of a completed mark phase,
// grounded directly on the teacher's registry/storage/garbagecollect.go
// CheckpointState/GCStats types — a feature the distilled spec dropped
// (spec.md has no checkpoint concept) but which the teacher's own GC
// already models richly, restored here per SPEC_FULL.md §12.
//
// It lets an operator run the (cheap, I/O-bound) mark phase once and defer
// or retry the (destructive) sweep phase separately, without re-walking
// the object graph.
type CheckpointState struct {
	Version           string             `json:"version"`
	Timestamp         time.Time          `json:"timestamp"`
	MarkPhaseComplete bool               `json:"mark_phase_complete"`
	Stats             Stats              `json:"stats"`
	MarkedManifests   []convergeid.ID    `json:"marked_manifests"`
	MarkedBlobs       []convergeid.ID    `json:"marked_blobs"`
	MarkedChunks      []convergeid.ID    `json:"marked_chunks"`
	MarkedRecipes     []convergeid.ID    `json:"marked_recipes"`
	MarkedSnaps       []convergeid.ID    `json:"marked_snaps"`
}

const checkpointVersion = "1"

func idSlice(set map[convergeid.ID]bool) []convergeid.ID {
	ids := make([]convergeid.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func idSet(ids []convergeid.ID) map[convergeid.ID]bool {
	set := make(map[convergeid.ID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// SaveCheckpoint persists the result of a completed mark phase to path via
// driver, so a later process can sweep from it without re-marking.
func SaveCheckpoint(ctx context.Context, driver storagedriver.StorageDriver, path string, found *marked, stats Stats) error {
	cp := CheckpointState{
		Version:           checkpointVersion,
		Timestamp:         time.Now(),
		MarkPhaseComplete: true,
		Stats:             stats,
		MarkedManifests:   idSlice(found.manifests),
		MarkedBlobs:       idSlice(found.blobs),
		MarkedChunks:      idSlice(found.chunks),
		MarkedRecipes:     idSlice(found.recipes),
		MarkedSnaps:       idSlice(found.snaps),
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("retention: marshal checkpoint: %w", err)
	}
	return driver.PutContent(ctx, path, data)
}

// LoadCheckpoint reads back a CheckpointState written by SaveCheckpoint.
func LoadCheckpoint(ctx context.Context, driver storagedriver.StorageDriver, path string) (CheckpointState, error) {
	data, err := driver.GetContent(ctx, path)
	if err != nil {
		return CheckpointState{}, err
	}
	var cp CheckpointState
	if err := json.Unmarshal(data, &cp); err != nil {
		return CheckpointState{}, fmt.Errorf("retention: unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// SweepFromCheckpoint runs only the sweep phase using a previously saved
// mark result, letting an operator separate the cheap mark pass from the
// destructive sweep (dryRun still applies).
func SweepFromCheckpoint(ctx context.Context, store *objstore.Store, cp CheckpointState, dryRun bool) (Stats, error) {
	stats := cp.Stats
	stats.DeletedSample = map[objstore.Kind][]convergeid.ID{}
	stats.ManifestsDeleted, stats.BlobsDeleted, stats.ChunksDeleted, stats.RecipesDeleted, stats.SnapsDeleted = 0, 0, 0, 0, 0

	sweepStart := time.Now()
	kinds := []struct {
		kind    objstore.Kind
		marked  map[convergeid.ID]bool
		deleted *int
	}{
		{objstore.KindManifest, idSet(cp.MarkedManifests), &stats.ManifestsDeleted},
		{objstore.KindBlob, idSet(cp.MarkedBlobs), &stats.BlobsDeleted},
		{objstore.KindChunk, idSet(cp.MarkedChunks), &stats.ChunksDeleted},
		{objstore.KindRecipe, idSet(cp.MarkedRecipes), &stats.RecipesDeleted},
		{objstore.KindSnap, idSet(cp.MarkedSnaps), &stats.SnapsDeleted},
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
			if dryRun {
				continue
			}
			if err := store.Delete(ctx, k.kind, id); err != nil {
				return stats, err
			}
		}
	}
	stats.SweepDuration = time.Since(sweepStart)
	return stats, nil
}
