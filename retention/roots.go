// Package retention implements Retention and GC (spec §4.10): mark-and-
// sweep over a fixed set of reachability roots (promotions, releases, lane
// heads, pins). Grounded on the teacher's registry/storage/garbagecollect.go
// mark-and-sweep shape (CheckpointState, GCStats, bounded-concurrency mark
// phase via golang.org/x/sync/errgroup), retargeted from
// repository/manifest/blob at the OCI layer onto bundle/manifest/blob at
// the convergence layer.
package retention

import (
	"github.com/convergence-vcs/convergence/authority"
	"github.com/convergence-vcs/convergence/convergemodel"
)

// Roots is the full set of entry points GC must preserve transitively
// (spec §4.10 "Roots"): every bundle reachable from a promotion pointer,
// every bundle referenced by a non-pruned release, every snap referenced
// by a lane head (current plus its bounded tail), and every explicitly
// pinned bundle.
type Roots struct {
	Bundles []convergemodel.BundleID
	Snaps   []convergemodel.SnapID
}

// ComputeRoots derives Roots from record's current aggregate state. Call
// PruneReleases first if the caller wants prune_releases_keep_last applied
// before rooting (spec: "drop all but the most recent N releases per
// channel, then compute roots").
func ComputeRoots(record *authority.RepoRecord) Roots {
	var roots Roots
	seenBundle := map[convergemodel.BundleID]bool{}
	addBundle := func(id convergemodel.BundleID) {
		if id == "" || seenBundle[id] {
			return
		}
		seenBundle[id] = true
		roots.Bundles = append(roots.Bundles, id)
	}
	seenSnap := map[convergemodel.SnapID]bool{}
	addSnap := func(id convergemodel.SnapID) {
		if id == "" || seenSnap[id] {
			return
		}
		seenSnap[id] = true
		roots.Snaps = append(roots.Snaps, id)
	}

	for _, pointer := range record.Promotions {
		addBundle(pointer.CurrentBundle)
	}
	for _, history := range record.Releases {
		for _, rel := range history {
			addBundle(rel.BundleID)
		}
	}
	for _, head := range record.LaneHeads {
		addSnap(head.Current)
		for _, s := range head.Tail {
			addSnap(s)
		}
	}
	for bundleID, pinned := range record.Pins {
		if pinned {
			addBundle(bundleID)
		}
	}

	return roots
}

// PruneReleases drops all but the most recent keepLast releases in every
// channel of record, in place, and returns how many entries were dropped
// in total. keepLast <= 0 is a no-op (pruning is opt-in). This mutates
// record; callers persist the updated record themselves.
func PruneReleases(record *authority.RepoRecord, keepLast int) int {
	if keepLast <= 0 {
		return 0
	}
	pruned := 0
	for channel, history := range record.Releases {
		if len(history) <= keepLast {
			continue
		}
		pruned += len(history) - keepLast
		record.Releases[channel] = append([]authority.Release(nil), history[len(history)-keepLast:]...)
	}
	return pruned
}
