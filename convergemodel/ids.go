// Package convergemodel holds the small identifier types shared across
// manifest, coalesce, gategraph, resolution and authority so those packages
// can reference each other's keys (e.g. a manifest Variant's source
// Publication) without import cycles.
package convergemodel

// PublicationID identifies a Publication: the binding of a snap to a
// (scope, gate) for consideration.
type PublicationID string

// BundleID identifies a Bundle produced by coalescing.
type BundleID string

// GateID identifies a Gate within a GateGraph.
type GateID string

// ScopeID identifies an orthogonal partition (feature/milestone).
type ScopeID string

// RepoID identifies a repository.
type RepoID string

// SnapID identifies an immutable workspace capture.
type SnapID string

// WorkspaceID identifies a client workspace.
type WorkspaceID string

// LaneID identifies an organizational partition of publishers/viewers.
type LaneID string

// UserID identifies a human or service attributed in provenance fields.
type UserID string

// Channel identifies a release channel.
type Channel string
