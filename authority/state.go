// Package authority implements the central authority's mutable aggregate
// state: publications, bundles, promotion pointers and release channels
// for one repository. The aggregate is modeled as per-(repo, scope, gate)
// cells with explicit locking, never an ambient singleton.
package authority

import (
	"fmt"
	"strings"
	"time"

	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/convergemodel"
	"github.com/convergence-vcs/convergence/gategraph"
	"github.com/convergence-vcs/convergence/promotability"
)

// PublicationResolution records that a publication was created by resolving
// a prior bundle's superpositions, linking it back to that bundle for
// provenance.
type PublicationResolution struct {
	BundleID     convergemodel.BundleID
	OriginalRoot convergeid.ID
	ResolvedRoot convergeid.ID
	CreatedAt    time.Time
}

// Publication is the binding of a snap to a (scope, gate) for
// consideration. Publications are created on publish and never mutated.
type Publication struct {
	ID           convergemodel.PublicationID
	SnapID       convergemodel.SnapID
	RepoID       convergemodel.RepoID
	ScopeID      convergemodel.ScopeID
	TargetGateID convergemodel.GateID
	LaneID       convergemodel.LaneID
	PublisherID  convergemodel.UserID
	CreatedAt    time.Time
	Notes        string
	Resolution   *PublicationResolution

	// resolvedRootOverride is the snap's root manifest id. When it is unset,
	// ResolveRoot loads the snap named by SnapID from the object store;
	// callers that already have the manifest id (tests, a single-process
	// workspace) set it directly via WithRootManifest to skip that lookup.
	resolvedRootOverride convergeid.ID
}

// InputKind discriminates a Bundle input: either a Publication or a prior
// Bundle (bundles may be chained as inputs to a higher gate's coalesce).
type InputKind uint8

const (
	InputPublication InputKind = iota
	InputBundle
)

// InputRef is one coalesce input, tagged by kind.
type InputRef struct {
	Kind        InputKind
	Publication convergemodel.PublicationID
	Bundle      convergemodel.BundleID
}

// Provenance records who produced a Bundle and which users have approved
// it. Approvals append; nothing else about provenance mutates.
type Provenance struct {
	CreatedBy convergemodel.UserID
	CreatedAt time.Time
	Approvals []convergemodel.UserID
}

// Bundle is the output of coalescing a set of inputs at a gate. Immutable
// once created; only Provenance.Approvals and the cached Status mutate.
type Bundle struct {
	ID             convergemodel.BundleID
	ProducedByGate convergemodel.GateID
	ScopeID        convergemodel.ScopeID
	Inputs         []InputRef
	RootManifest   convergeid.ID
	Provenance     Provenance
	Status         promotability.Result
}

// HasApproval reports whether user already approved the bundle, so
// Approve can stay idempotent.
func (b *Bundle) HasApproval(user convergemodel.UserID) bool {
	for _, u := range b.Provenance.Approvals {
		if u == user {
			return true
		}
	}
	return false
}

// Release is one entry in a channel's append-only history.
type Release struct {
	Channel   convergemodel.Channel
	BundleID  convergemodel.BundleID
	CreatedAt time.Time
	CreatedBy convergemodel.UserID
}

// PromotionEntry is one logged advance of a gate's current-bundle pointer.
type PromotionEntry struct {
	BundleID   convergemodel.BundleID
	PromotedAt time.Time
	PromotedBy convergemodel.UserID
}

// GatePointer is the per-(scope, gate) promotion cell: the current
// promotable bundle and its full promotion history.
type GatePointer struct {
	CurrentBundle convergemodel.BundleID
	Log           []PromotionEntry
}

// LaneHead tracks a lane's current snap plus a bounded tail of prior heads,
// used as a GC root and for "undo" style recovery.
type LaneHead struct {
	Current convergemodel.SnapID
	Tail    []convergemodel.SnapID
}

// MaxLaneTail bounds how many prior heads a lane retains (spec's "bounded
// tail of prior heads per user/lane").
const MaxLaneTail = 5

// Push records snap as the new head of h, pushing the previous head onto
// the bounded tail.
func (h *LaneHead) Push(snap convergemodel.SnapID) {
	if h.Current != "" {
		h.Tail = append([]convergemodel.SnapID{h.Current}, h.Tail...)
		if len(h.Tail) > MaxLaneTail {
			h.Tail = h.Tail[:MaxLaneTail]
		}
	}
	h.Current = snap
}

// RepoRecord is the full mutable aggregate for one repository: every
// publication and bundle ever created, the gate graph, per-(scope,gate)
// promotion state, lane heads, release history and pinned bundles.
type RepoRecord struct {
	RepoID        convergemodel.RepoID
	GateGraph     gategraph.GateGraph
	Publications  map[convergemodel.PublicationID]*Publication
	Bundles       map[convergemodel.BundleID]*Bundle
	Promotions    map[tripleKey]*GatePointer
	LaneHeads     map[laneKey]*LaneHead
	Releases      map[convergemodel.Channel][]Release
	Pins          map[convergemodel.BundleID]bool
}

// NewRepoRecord returns an empty aggregate for repo.
func NewRepoRecord(repo convergemodel.RepoID) *RepoRecord {
	return &RepoRecord{
		RepoID:       repo,
		Publications: map[convergemodel.PublicationID]*Publication{},
		Bundles:      map[convergemodel.BundleID]*Bundle{},
		Promotions:   map[tripleKey]*GatePointer{},
		LaneHeads:    map[laneKey]*LaneHead{},
		Releases:     map[convergemodel.Channel][]Release{},
		Pins:         map[convergemodel.BundleID]bool{},
	}
}

// tripleKeySep separates the fields of tripleKey/laneKey in their text
// form. It is never expected in a scope/gate/lane id (gategraph restricts
// gate ids to [a-z0-9-]), but is chosen unprintable regardless so a
// future relaxation of that charset can't collide.
const tripleKeySep = "\x1f"

type tripleKey struct {
	Scope convergemodel.ScopeID
	Gate  convergemodel.GateID
}

// MarshalText renders tripleKey so it can be used as a JSON object key
// (encoding/json requires map keys to be strings or TextMarshalers).
func (k tripleKey) MarshalText() ([]byte, error) {
	return []byte(string(k.Scope) + tripleKeySep + string(k.Gate)), nil
}

// UnmarshalText parses the form written by MarshalText.
func (k *tripleKey) UnmarshalText(b []byte) error {
	parts := strings.SplitN(string(b), tripleKeySep, 2)
	if len(parts) != 2 {
		return fmt.Errorf("authority: malformed tripleKey %q", b)
	}
	k.Scope, k.Gate = convergemodel.ScopeID(parts[0]), convergemodel.GateID(parts[1])
	return nil
}

// laneKey identifies one user's head cell within a lane: spec.md's glossary
// is explicit that a lane "carries per-user heads of unpublished work", so
// two publishers in the same (scope, lane) never share a cell or evict each
// other's tail.
type laneKey struct {
	Scope convergemodel.ScopeID
	Lane  convergemodel.LaneID
	User  convergemodel.UserID
}

// MarshalText renders laneKey so it can be used as a JSON object key.
func (k laneKey) MarshalText() ([]byte, error) {
	return []byte(string(k.Scope) + tripleKeySep + string(k.Lane) + tripleKeySep + string(k.User)), nil
}

// UnmarshalText parses the form written by MarshalText.
func (k *laneKey) UnmarshalText(b []byte) error {
	parts := strings.SplitN(string(b), tripleKeySep, 3)
	if len(parts) != 3 {
		return fmt.Errorf("authority: malformed laneKey %q", b)
	}
	k.Scope, k.Lane, k.User = convergemodel.ScopeID(parts[0]), convergemodel.LaneID(parts[1]), convergemodel.UserID(parts[2])
	return nil
}

// LaneHead returns the lane head cell for (scope, lane, user), creating an
// empty one on first access, mirroring promotionPointer's get-or-create
// shape.
func (r *RepoRecord) LaneHead(scope convergemodel.ScopeID, lane convergemodel.LaneID, user convergemodel.UserID) *LaneHead {
	key := laneKey{Scope: scope, Lane: lane, User: user}
	h, ok := r.LaneHeads[key]
	if !ok {
		h = &LaneHead{}
		r.LaneHeads[key] = h
	}
	return h
}

func (r *RepoRecord) promotionPointer(scope convergemodel.ScopeID, gate convergemodel.GateID) *GatePointer {
	key := tripleKey{Scope: scope, Gate: gate}
	p, ok := r.Promotions[key]
	if !ok {
		p = &GatePointer{}
		r.Promotions[key] = p
	}
	return p
}
