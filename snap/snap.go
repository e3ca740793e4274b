// Package snap implements the Snap object: an immutable capture of a
// workspace's root manifest at a point in time. Like blobs, chunks,
// recipes and manifests, a snap is content-addressed. Its id is the
// BLAKE3 digest of its canonical encoding, so two workspaces that scan to
// the same root manifest, workspace id and message produce the same snap
// id without coordinating.
package snap

import (
	"fmt"
	"time"

	"github.com/convergence-vcs/convergence/convergeenc"
	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/convergemodel"
)

// Snap is an immutable workspace capture. It is not assumed to be buildable
// or conflict-free; a snap records a state, not a verdict on it.
type Snap struct {
	WorkspaceID  convergemodel.WorkspaceID
	CreatedAt    time.Time
	RootManifest convergeid.ID
	Message      string
}

// New builds a Snap. Its ID is derived only after the caller calls
// Canonical/ID; construction itself never consults a clock beyond what
// the caller passes in for createdAt, keeping snap creation reproducible
// given the same inputs.
func New(workspace convergemodel.WorkspaceID, createdAt time.Time, root convergeid.ID, message string) Snap {
	return Snap{WorkspaceID: workspace, CreatedAt: createdAt, RootManifest: root, Message: message}
}

// Canonical returns s's deterministic byte encoding; its BLAKE3 digest is
// the snap's id (convergemodel.SnapID). CreatedAt is deliberately excluded:
// per the determinism discipline, timestamps appear only in provenance
// fields and never in hashed canonical encodings, so two snaps of
// byte-identical workspace/root/message captured at different times are
// the same object.
func (s Snap) Canonical() []byte {
	w := convergeenc.NewWriter()
	w.String(string(s.WorkspaceID))
	w.String(string(s.RootManifest))
	w.String(s.Message)
	return w.Finish()
}

// ID returns the content address of s's canonical encoding.
func (s Snap) ID() convergemodel.SnapID {
	return convergemodel.SnapID(convergeid.Of(s.Canonical()))
}

// Decode parses a Snap from its canonical encoding. CreatedAt is not part
// of that encoding (see Canonical) and comes back zero-valued; a caller
// that needs a snap's capture time tracks it out-of-band in a provenance
// field, the way authority.Publication.CreatedAt already does for the
// publication that carries this snap.
func Decode(p []byte) (Snap, error) {
	r := convergeenc.NewReader(p)
	workspace := r.String()
	root := r.String()
	message := r.String()
	if err := r.Err(); err != nil {
		return Snap{}, fmt.Errorf("snap: decode: %w", err)
	}
	if !r.Done() {
		return Snap{}, fmt.Errorf("snap: decode: trailing bytes")
	}
	return Snap{
		WorkspaceID:  convergemodel.WorkspaceID(workspace),
		RootManifest: convergeid.ID(root),
		Message:      message,
	}, nil
}
