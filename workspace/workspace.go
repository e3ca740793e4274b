// Package workspace implements the client side of the convergence
// pipeline: a local object store of identical shape to the authority's, a
// HEAD snap pointer, chunking config, and a resolutions/<bundle_id> map
// for each bundle being resolved. It consumes manifest.Builder, chunker,
// snap and resolution, the same packages the authority uses, so client
// and server share one engine.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/convergence-vcs/convergence/authority"
	"github.com/convergence-vcs/convergence/chunker"
	"github.com/convergence-vcs/convergence/convergectx"
	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/convergemodel"
	"github.com/convergence-vcs/convergence/manifest"
	"github.com/convergence-vcs/convergence/objstore"
	"github.com/convergence-vcs/convergence/snap"
	"github.com/convergence-vcs/convergence/storagedriver"
)

// statePath is the conventional location of a workspace's local state
// beneath its ".converge" directory.
const statePath = ".converge/state.json"

// State is the durable part of a Workspace: everything that must survive
// a process restart. It round-trips through JSON, the same encoding the
// authority uses for its RepoRecord.
type State struct {
	WorkspaceID convergemodel.WorkspaceID `json:"workspace_id"`
	Head        convergemodel.SnapID      `json:"head"`
	ChunkerCfg  chunker.Config            `json:"chunker_config"`
}

// Workspace is a single-writer client handle: one process owns one
// ".converge" directory at a time.
type Workspace struct {
	Driver storagedriver.StorageDriver
	Store  *objstore.Store
	State  State
}

// Open loads a Workspace's state from driver, or initializes a fresh one
// under id with default chunking config if none exists yet.
func Open(ctx context.Context, driver storagedriver.StorageDriver, id convergemodel.WorkspaceID) (*Workspace, error) {
	store := objstore.New(driver, "objects")
	ws := &Workspace{Driver: driver, Store: store}

	data, err := driver.GetContent(ctx, statePath)
	if err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			ws.State = State{WorkspaceID: id, ChunkerCfg: chunker.DefaultConfig()}
			return ws, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &ws.State); err != nil {
		return nil, fmt.Errorf("workspace: unmarshal state: %w", err)
	}
	return ws, nil
}

// Save persists ws.State via write-temp-then-rename, matching the
// authority's RepoRecord persistence contract.
func (ws *Workspace) Save(ctx context.Context) error {
	data, err := json.Marshal(ws.State)
	if err != nil {
		return fmt.Errorf("workspace: marshal state: %w", err)
	}
	return ws.Driver.PutContent(ctx, statePath, data)
}

// Capture scans dir into a new root manifest, wraps it in a Snap, stores
// both, advances HEAD to the new snap, and persists state. createdAt is
// supplied by the caller (never time.Now() inside a hashed path) so tests
// and replays stay reproducible; production callers pass time.Now().
func (ws *Workspace) Capture(ctx context.Context, dir string, message string, createdAt time.Time) (snap.Snap, error) {
	builder := manifest.NewBuilder(ws.Store, ws.State.ChunkerCfg)
	root, err := builder.Scan(ctx, dir)
	if err != nil {
		return snap.Snap{}, fmt.Errorf("workspace: scan %s: %w", dir, err)
	}

	s := snap.New(ws.State.WorkspaceID, createdAt, root, message)
	if err := ws.Store.Put(ctx, objstore.KindSnap, convergeid.ID(s.ID()), s.Canonical()); err != nil {
		return snap.Snap{}, err
	}

	ws.State.Head = s.ID()
	if err := ws.Save(ctx); err != nil {
		return snap.Snap{}, err
	}

	convergectx.GetLogger(ctx).Infof("workspace: captured snap %s (root %s) from %s", s.ID(), root, dir)
	return s, nil
}

// PreparePublication builds the Publication value a caller hands to the
// authority's Publish operation for the workspace's current HEAD. It does
// not itself perform any network call; this is the payload shape it
// produces.
func (ws *Workspace) PreparePublication(id convergemodel.PublicationID, repo convergemodel.RepoID, scope convergemodel.ScopeID, gate convergemodel.GateID, lane convergemodel.LaneID, publisher convergemodel.UserID, notes string, createdAt time.Time) (authority.Publication, error) {
	if ws.State.Head == "" {
		return authority.Publication{}, fmt.Errorf("workspace: no snap captured yet; call Capture first")
	}
	pub := authority.Publication{
		ID:           id,
		SnapID:       ws.State.Head,
		RepoID:       repo,
		ScopeID:      scope,
		TargetGateID: gate,
		LaneID:       lane,
		PublisherID:  publisher,
		CreatedAt:    createdAt,
		Notes:        notes,
	}
	return pub, nil
}
