package retention

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/convergence-vcs/convergence/authority"
	"github.com/convergence-vcs/convergence/chunker"
	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/convergemodel"
	"github.com/convergence-vcs/convergence/manifest"
	"github.com/convergence-vcs/convergence/objstore"
	"github.com/convergence-vcs/convergence/snap"
)

// defaultMarkConcurrency bounds how many independent roots the mark phase
// walks at once, mirroring the teacher's GCOpts.MaxConcurrency default.
const defaultMarkConcurrency = 4

// marked is the concurrent-safe accumulator of every object id the mark
// phase has found reachable, partitioned by kind so the sweep phase can
// diff it directly against objstore.List per kind.
type marked struct {
	mu        sync.Mutex
	manifests map[convergeid.ID]bool
	blobs     map[convergeid.ID]bool
	chunks    map[convergeid.ID]bool
	recipes   map[convergeid.ID]bool
	snaps     map[convergeid.ID]bool
}

func newMarked() *marked {
	return &marked{
		manifests: map[convergeid.ID]bool{},
		blobs:     map[convergeid.ID]bool{},
		chunks:    map[convergeid.ID]bool{},
		recipes:   map[convergeid.ID]bool{},
		snaps:     map[convergeid.ID]bool{},
	}
}

// markIfNew marks id within set and reports whether it was newly added,
// letting callers skip re-walking an already-visited manifest or bundle.
func (m *marked) markIfNew(set map[convergeid.ID]bool, id convergeid.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set[id] {
		return false
	}
	set[id] = true
	return true
}

// marker walks the object graph from a set of roots, recording everything
// it finds reachable. All its methods may suspend on store I/O; nothing
// here is a pure function.
type marker struct {
	ctx    context.Context
	store  *objstore.Store
	record *authority.RepoRecord
	found  *marked

	mu            sync.Mutex
	visitedBundle map[convergemodel.BundleID]bool
}

func newMarker(ctx context.Context, store *objstore.Store, record *authority.RepoRecord) *marker {
	return &marker{
		ctx:           ctx,
		store:         store,
		record:        record,
		found:         newMarked(),
		visitedBundle: map[convergemodel.BundleID]bool{},
	}
}

func (mk *marker) visitBundleOnce(id convergemodel.BundleID) bool {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	if mk.visitedBundle[id] {
		return false
	}
	mk.visitedBundle[id] = true
	return true
}

// Mark walks every root bundle and root snap, plus everything they
// transitively reference (bundle → root_manifest → sub-manifests, blobs,
// recipes → chunks; bundle inputs → publications → snaps → manifests),
// with up to maxConcurrency roots in flight at once (spec §4.10, grounded
// on garbagecollect.go's errgroup-bounded mark phase).
func Mark(ctx context.Context, store *objstore.Store, record *authority.RepoRecord, roots Roots, maxConcurrency int) (*marked, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMarkConcurrency
	}
	mk := newMarker(ctx, store, record)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	mk.ctx = gctx

	for _, bundleID := range roots.Bundles {
		bundleID := bundleID
		g.Go(func() error { return mk.markBundle(bundleID) })
	}
	for _, snapID := range roots.Snaps {
		snapID := snapID
		g.Go(func() error { return mk.markSnap(snapID) })
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mk.found, nil
}

func (mk *marker) markBundle(id convergemodel.BundleID) error {
	if !mk.visitBundleOnce(id) {
		return nil
	}
	bundle, ok := mk.record.Bundles[id]
	if !ok {
		// A root pointer referencing a bundle id no longer present is a
		// data-consistency problem elsewhere, not something GC should
		// fail the whole sweep over; nothing to mark for it.
		return nil
	}

	if err := mk.markManifestTree(bundle.RootManifest); err != nil {
		return fmt.Errorf("retention: mark bundle %s: %w", id, err)
	}

	for _, ref := range bundle.Inputs {
		switch ref.Kind {
		case authority.InputBundle:
			if err := mk.markBundle(ref.Bundle); err != nil {
				return err
			}
		case authority.InputPublication:
			pub, ok := mk.record.Publications[ref.Publication]
			if !ok {
				continue
			}
			if err := mk.markPublication(pub); err != nil {
				return err
			}
		}
	}
	return nil
}

func (mk *marker) markPublication(pub *authority.Publication) error {
	root, err := pub.ResolveRoot(mk.ctx, mk.store)
	if err != nil {
		return fmt.Errorf("retention: resolve publication %s: %w", pub.ID, err)
	}
	if err := mk.markManifestTree(root); err != nil {
		return err
	}
	if err := mk.markSnapObject(convergeid.ID(pub.SnapID)); err != nil {
		return err
	}
	if pub.Resolution != nil {
		if err := mk.markManifestTree(pub.Resolution.OriginalRoot); err != nil {
			return err
		}
		if err := mk.markManifestTree(pub.Resolution.ResolvedRoot); err != nil {
			return err
		}
	}
	return nil
}

func (mk *marker) markSnap(id convergemodel.SnapID) error {
	objID := convergeid.ID(id)
	if err := mk.markSnapObject(objID); err != nil {
		return err
	}
	raw, err := mk.store.Get(mk.ctx, objstore.KindSnap, objID)
	if err != nil {
		return fmt.Errorf("retention: load snap %s: %w", id, err)
	}
	s, err := snap.Decode(raw)
	if err != nil {
		return fmt.Errorf("retention: decode snap %s: %w", id, err)
	}
	return mk.markManifestTree(s.RootManifest)
}

func (mk *marker) markSnapObject(id convergeid.ID) error {
	if id == "" {
		return nil
	}
	mk.found.markIfNew(mk.found.snaps, id)
	return nil
}

// markManifestTree marks root and every manifest/blob/chunk/recipe it
// transitively references, including every variant of any superposition
// entry still present (a bundle may legally carry superpositions through
// to a permissive gate; GC must keep every variant's content alive until
// resolution collapses them).
func (mk *marker) markManifestTree(root convergeid.ID) error {
	if root == "" {
		return nil
	}
	if !mk.found.markIfNew(mk.found.manifests, root) {
		return nil
	}
	raw, err := mk.store.Get(mk.ctx, objstore.KindManifest, root)
	if err != nil {
		return err
	}
	m, err := manifest.Decode(raw)
	if err != nil {
		return fmt.Errorf("retention: decode manifest %s: %w", root, err)
	}
	for _, ne := range m.Entries {
		if err := mk.markEntry(ne.Entry); err != nil {
			return err
		}
	}
	return nil
}

func (mk *marker) markEntry(e manifest.Entry) error {
	switch e.Kind {
	case manifest.KindFile:
		return mk.markFileContent(e.File.Content)
	case manifest.KindDir:
		return mk.markManifestTree(e.Dir.Manifest)
	case manifest.KindSymlink, manifest.KindTombstone:
		return nil
	case manifest.KindSuperposition:
		for _, v := range e.Superposition.Variants {
			if err := mk.markVariant(v); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

func (mk *marker) markVariant(v manifest.Variant) error {
	switch v.Kind {
	case manifest.KindFile:
		return mk.markFileContent(v.File.Content)
	case manifest.KindDir:
		return mk.markManifestTree(v.Dir.Manifest)
	default:
		return nil
	}
}

func (mk *marker) markFileContent(c manifest.FileContent) error {
	switch c.Kind {
	case manifest.ContentBlob:
		mk.found.markIfNew(mk.found.blobs, c.BlobID)
		return nil
	case manifest.ContentRecipe:
		if !mk.found.markIfNew(mk.found.recipes, c.RecipeID) {
			return nil
		}
		raw, err := mk.store.Get(mk.ctx, objstore.KindRecipe, c.RecipeID)
		if err != nil {
			return err
		}
		recipe, err := chunker.DecodeRecipe(raw)
		if err != nil {
			return fmt.Errorf("retention: decode recipe %s: %w", c.RecipeID, err)
		}
		for _, chunk := range recipe.Chunks {
			mk.found.markIfNew(mk.found.chunks, chunk.ChunkID)
		}
		return nil
	default:
		return nil
	}
}
