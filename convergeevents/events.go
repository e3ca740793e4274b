// Package convergeevents defines the lifecycle events the authority emits
// through a docker/go-events sink: publication, coalescing, approval,
// promotion, and release.
package convergeevents

import (
	"time"

	"github.com/convergence-vcs/convergence/convergemodel"
)

// PublicationCreated fires when a client publishes a snap to a gate.
type PublicationCreated struct {
	Publication convergemodel.PublicationID
	Repo        convergemodel.RepoID
	Scope       convergemodel.ScopeID
	Gate        convergemodel.GateID
	At          time.Time
}

// BundleCoalesced fires after a coalesce produces a new bundle.
type BundleCoalesced struct {
	Bundle     convergemodel.BundleID
	Scope      convergemodel.ScopeID
	Gate       convergemodel.GateID
	Promotable bool
	At         time.Time
}

// BundleApproved fires when a user approval is recorded against a bundle.
type BundleApproved struct {
	Bundle   convergemodel.BundleID
	Approver convergemodel.UserID
	At       time.Time
}

// BundlePromoted fires when a bundle advances to a new gate.
type BundlePromoted struct {
	Bundle convergemodel.BundleID
	Scope  convergemodel.ScopeID
	ToGate convergemodel.GateID
	At     time.Time
}

// BundleReleased fires when a bundle is released to a channel.
type BundleReleased struct {
	Bundle  convergemodel.BundleID
	Channel convergemodel.Channel
	At      time.Time
}
