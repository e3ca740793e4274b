package authority

import (
	"context"
	"fmt"
	"time"

	events "github.com/docker/go-events"

	"github.com/convergence-vcs/convergence/coalesce"
	"github.com/convergence-vcs/convergence/convergectx"
	"github.com/convergence-vcs/convergence/convergeevents"
	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/convergemodel"
	"github.com/convergence-vcs/convergence/convergerr"
	"github.com/convergence-vcs/convergence/manifest"
	"github.com/convergence-vcs/convergence/metrics"
	"github.com/convergence-vcs/convergence/objstore"
	"github.com/convergence-vcs/convergence/promotability"
	"github.com/convergence-vcs/convergence/snap"
)

// Authority binds a RepoRecord to the collaborators it needs to run
// publish/coalesce/promote/release: an object store for persisting new
// manifests and looking up missing objects, a lock table for
// per-(scope,gate) serialization, and an optional events sink for lifecycle
// notifications.
type Authority struct {
	Record *RepoRecord
	Store  *objstore.Store
	Locks  *LockTable
	Sink   events.Sink
}

// New returns an Authority over record, backed by store.
func New(record *RepoRecord, store *objstore.Store) *Authority {
	return &Authority{Record: record, Store: store, Locks: NewLockTable()}
}

func (a *Authority) emit(ctx context.Context, event events.Event) {
	if a.Sink == nil {
		return
	}
	if err := a.Sink.Write(event); err != nil {
		convergectx.GetLogger(ctx).Warnf("authority: event delivery failed: %v", err)
	}
}

// Publish creates a new Publication binding snap to (scope, target_gate).
func (a *Authority) Publish(ctx context.Context, pub Publication) (*Publication, error) {
	if pub.ID == "" {
		return nil, convergerr.New(convergerr.CodePublicationUnknown, "publish: publication id required")
	}
	if pub.CreatedAt.IsZero() {
		pub.CreatedAt = time.Now()
	}
	a.Record.Publications[pub.ID] = &pub

	a.emit(ctx, convergeevents.PublicationCreated{
		Publication: pub.ID, Repo: pub.RepoID, Scope: pub.ScopeID, Gate: pub.TargetGateID, At: pub.CreatedAt,
	})
	return &pub, nil
}

// CoalesceInputs resolves inputs (publications and/or prior bundles) for
// scope/gate, merges their manifests, and produces a new immutable Bundle.
// Coalesce itself runs under the lock for (scope, gate) so bundle creation
// within a triple is linearized.
func (a *Authority) CoalesceInputs(ctx context.Context, scope convergemodel.ScopeID, gate convergemodel.GateID,
	refs []InputRef, id convergemodel.BundleID, createdBy convergemodel.UserID, policy promotability.Policy) (*Bundle, error) {

	var bundle *Bundle
	err := a.Locks.WithLock(scope, gate, func() error {
		inputs, tree, err := a.resolveInputs(ctx, refs)
		if err != nil {
			return err
		}

		start := time.Now()
		result, err := coalesce.Coalesce(inputs, tree)
		metrics.CoalesceInvocations.Inc()
		metrics.CoalesceDuration.UpdateSince(start)
		if err != nil {
			return err
		}

		for objID, m := range result.Produced {
			if err := a.Store.Put(ctx, objstore.KindManifest, objID, m.Canonical()); err != nil {
				return err
			}
		}

		missing, err := a.missingObjectsUnder(ctx, result.Root)
		if err != nil {
			return err
		}

		approvalCount := 0
		status := promotability.Evaluate(result.Root, tree, policy, approvalCount, missing)

		bundle = &Bundle{
			ID:             id,
			ProducedByGate: gate,
			ScopeID:        scope,
			Inputs:         refs,
			RootManifest:   result.Root.ID(),
			Provenance:     Provenance{CreatedBy: createdBy, CreatedAt: time.Now()},
			Status:         status,
		}
		a.Record.Bundles[id] = bundle

		a.emit(ctx, convergeevents.BundleCoalesced{Bundle: id, Scope: scope, Gate: gate, Promotable: status.Promotable, At: time.Now()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (a *Authority) resolveInputs(ctx context.Context, refs []InputRef) ([]coalesce.Input, manifest.Tree, error) {
	tree := manifest.Tree{}
	var inputs []coalesce.Input

	for _, ref := range refs {
		var source convergemodel.PublicationID
		var rootID convergeid.ID

		switch ref.Kind {
		case InputPublication:
			pub, ok := a.Record.Publications[ref.Publication]
			if !ok {
				return nil, nil, convergerr.New(convergerr.CodePublicationUnknown, "publish id %s", ref.Publication)
			}
			source = pub.ID
			root, err := pub.ResolveRoot(ctx, a.Store)
			if err != nil {
				return nil, nil, err
			}
			rootID = root
		case InputBundle:
			b, ok := a.Record.Bundles[ref.Bundle]
			if !ok {
				return nil, nil, convergerr.New(convergerr.CodeBundleUnknown, "bundle id %s", ref.Bundle)
			}
			source = convergemodel.PublicationID(b.ID)
			rootID = b.RootManifest
		}

		if err := a.preloadTree(ctx, rootID, tree); err != nil {
			return nil, nil, err
		}
		root, _ := tree.Resolve(rootID)
		inputs = append(inputs, coalesce.Input{Source: source, Manifest: root})
	}
	return inputs, tree, nil
}

// ResolveRoot returns the manifest id this publication's snap resolves to:
// the override set by WithRootManifest if present, otherwise the snap is
// fetched from store and decoded to read its RootManifest field.
func (p *Publication) ResolveRoot(ctx context.Context, store *objstore.Store) (convergeid.ID, error) {
	if p.resolvedRootOverride != "" {
		return p.resolvedRootOverride, nil
	}
	raw, err := store.Get(ctx, objstore.KindSnap, convergeid.ID(p.SnapID))
	if err != nil {
		return "", err
	}
	s, err := snap.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("authority: decode snap %s: %w", p.SnapID, err)
	}
	return s.RootManifest, nil
}

// WithRootManifest attaches the manifest id this publication's snap
// resolves to, used by callers that have already loaded the snap.
func (p *Publication) WithRootManifest(id convergeid.ID) *Publication {
	p.resolvedRootOverride = id
	return p
}

func (a *Authority) preloadTree(ctx context.Context, root convergeid.ID, tree manifest.Tree) error {
	if _, ok := tree.Resolve(root); ok {
		return nil
	}
	raw, err := a.Store.Get(ctx, objstore.KindManifest, root)
	if err != nil {
		return err
	}
	m, err := manifest.Decode(raw)
	if err != nil {
		return err
	}
	tree[root] = m

	for _, ne := range m.Entries {
		if ne.Entry.Kind == manifest.KindDir {
			if err := a.preloadTree(ctx, ne.Entry.Dir.Manifest, tree); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Authority) missingObjectsUnder(ctx context.Context, root convergeid.ID) ([]convergeid.ID, error) {
	raw, err := a.Store.Get(ctx, objstore.KindManifest, root)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Decode(raw)
	if err != nil {
		return nil, err
	}

	var blobIDs, recipeIDs []convergeid.ID
	var walk func(manifest.Manifest) error
	walk = func(m manifest.Manifest) error {
		for _, ne := range m.Entries {
			switch ne.Entry.Kind {
			case manifest.KindFile:
				if ne.Entry.File.Content.Kind == manifest.ContentBlob {
					blobIDs = append(blobIDs, ne.Entry.File.Content.BlobID)
				} else {
					recipeIDs = append(recipeIDs, ne.Entry.File.Content.RecipeID)
				}
			case manifest.KindDir:
				raw, err := a.Store.Get(ctx, objstore.KindManifest, ne.Entry.Dir.Manifest)
				if err != nil {
					if convergerr.CodeIs(err, convergerr.CodeMissingObject) {
						continue
					}
					return err
				}
				child, err := manifest.Decode(raw)
				if err != nil {
					return err
				}
				if err := walk(child); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(m); err != nil {
		return nil, err
	}

	missing, err := a.Store.Missing(ctx, objstore.KindBlob, blobIDs)
	if err != nil {
		return nil, err
	}
	missingRecipes, err := a.Store.Missing(ctx, objstore.KindRecipe, recipeIDs)
	if err != nil {
		return nil, err
	}
	return append(missing, missingRecipes...), nil
}

// Approve records user's approval against bundle and recomputes its
// promotability status on every approval mutation. Idempotent: approving
// twice does not duplicate the entry.
func (a *Authority) Approve(ctx context.Context, bundleID convergemodel.BundleID, user convergemodel.UserID, tree manifest.Tree, policy promotability.Policy, missing []convergeid.ID) (*Bundle, error) {
	bundle, ok := a.Record.Bundles[bundleID]
	if !ok {
		return nil, convergerr.New(convergerr.CodeBundleUnknown, "bundle id %s", bundleID)
	}
	if !bundle.HasApproval(user) {
		bundle.Provenance.Approvals = append(bundle.Provenance.Approvals, user)
	}

	root, ok := tree.Resolve(bundle.RootManifest)
	if !ok {
		return nil, convergerr.New(convergerr.CodeMissingObject, "approve: root manifest %s not preloaded", bundle.RootManifest)
	}
	bundle.Status = promotability.Evaluate(root, tree, policy, len(bundle.Provenance.Approvals), missing)

	a.emit(ctx, convergeevents.BundleApproved{Bundle: bundleID, Approver: user, At: time.Now()})
	return bundle, nil
}

// Promote advances bundle to toGate. The target gate defaults to the
// unique downstream of the bundle's current gate; callers must supply
// toGate explicitly when more than one downstream exists. Promotion within
// a (scope, gate) triple is serialized via the lock table.
func (a *Authority) Promote(ctx context.Context, bundleID convergemodel.BundleID, toGate convergemodel.GateID, promotedBy convergemodel.UserID) error {
	bundle, ok := a.Record.Bundles[bundleID]
	if !ok {
		return convergerr.New(convergerr.CodeBundleUnknown, "bundle id %s", bundleID)
	}
	if !bundle.Status.Promotable {
		return convergerr.New(convergerr.CodeNotPromotable, "bundle %s: %v", bundleID, bundle.Status.Reasons)
	}
	if toGate == "" {
		var edges []gateEdge
		for _, g := range a.Record.GateGraph.Gates {
			edges = append(edges, gateEdge{ID: g.ID, Upstream: g.Upstream})
		}
		target, err := ResolveDefaultPromotionTarget(edges, bundle.ProducedByGate)
		if err != nil {
			return err
		}
		toGate = target
	}

	return a.Locks.WithLock(bundle.ScopeID, toGate, func() error {
		pointer := a.Record.promotionPointer(bundle.ScopeID, toGate)
		pointer.Log = append(pointer.Log, PromotionEntry{BundleID: bundleID, PromotedAt: time.Now(), PromotedBy: promotedBy})
		pointer.CurrentBundle = bundleID

		metrics.PromotionsTotal.WithValues(string(toGate)).Inc()
		a.emit(ctx, convergeevents.BundlePromoted{Bundle: bundleID, Scope: bundle.ScopeID, ToGate: toGate, At: time.Now()})
		return nil
	})
}

// ResolveDefaultPromotionTarget returns the unique downstream gate of from
// in graph, or an error if zero or more than one downstream exists (the
// caller must then specify a target explicitly).
func ResolveDefaultPromotionTarget(graph []gateEdge, from convergemodel.GateID) (convergemodel.GateID, error) {
	var downstreams []convergemodel.GateID
	for _, e := range graph {
		for _, up := range e.Upstream {
			if up == from {
				downstreams = append(downstreams, e.ID)
			}
		}
	}
	switch len(downstreams) {
	case 0:
		return "", fmt.Errorf("authority: gate %s has no downstream; target gate must be specified", from)
	case 1:
		return downstreams[0], nil
	default:
		return "", fmt.Errorf("authority: gate %s has multiple downstreams %v; target gate must be specified", from, downstreams)
	}
}

type gateEdge struct {
	ID       convergemodel.GateID
	Upstream []convergemodel.GateID
}

// Release appends a new entry to channel's history. By default only the
// terminal gate may release; callers enforce the "unless gate policy opts
// in" exception by passing allowNonTerminal.
func (a *Authority) Release(ctx context.Context, bundleID convergemodel.BundleID, channel convergemodel.Channel, releasedBy convergemodel.UserID, terminalGate convergemodel.GateID, allowNonTerminal bool) error {
	bundle, ok := a.Record.Bundles[bundleID]
	if !ok {
		return convergerr.New(convergerr.CodeBundleUnknown, "bundle id %s", bundleID)
	}
	if !bundle.Status.Promotable {
		return convergerr.New(convergerr.CodeNotPromotable, "bundle %s: %v", bundleID, bundle.Status.Reasons)
	}
	if bundle.ProducedByGate != terminalGate && !allowNonTerminal {
		return convergerr.New(convergerr.CodeNotPromotable, "bundle %s produced by non-terminal gate %s", bundleID, bundle.ProducedByGate)
	}

	a.Record.Releases[channel] = append(a.Record.Releases[channel], Release{
		Channel: channel, BundleID: bundleID, CreatedAt: time.Now(), CreatedBy: releasedBy,
	})

	metrics.ReleasesTotal.WithValues(string(channel)).Inc()
	a.emit(ctx, convergeevents.BundleReleased{Bundle: bundleID, Channel: channel, At: time.Now()})
	return nil
}

// Pin marks bundle as a retention root: GC must preserve it and everything
// it transitively references until Unpin is called. Idempotent.
func (a *Authority) Pin(bundleID convergemodel.BundleID) error {
	if _, ok := a.Record.Bundles[bundleID]; !ok {
		return convergerr.New(convergerr.CodeBundleUnknown, "bundle id %s", bundleID)
	}
	a.Record.Pins[bundleID] = true
	return nil
}

// Unpin removes bundle's retention-root status. Idempotent; unpinning a
// bundle that was never pinned is a no-op.
func (a *Authority) Unpin(bundleID convergemodel.BundleID) {
	delete(a.Record.Pins, bundleID)
}

// LatestRelease returns the most recent release on channel, if any.
func (a *Authority) LatestRelease(channel convergemodel.Channel) (Release, bool) {
	history := a.Record.Releases[channel]
	if len(history) == 0 {
		return Release{}, false
	}
	return history[len(history)-1], true
}
