package workspace

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/convergence-vcs/convergence/convergemodel"
	"github.com/convergence-vcs/convergence/resolution"
	"github.com/convergence-vcs/convergence/storagedriver"
)

// resolutionPath is where a workspace keeps its in-progress decision map
// for one bundle.
func resolutionPath(bundle convergemodel.BundleID) string {
	return fmt.Sprintf("resolutions/%s.json", bundle)
}

// SaveResolution persists a decision map the workspace is building up for
// bundle, so a resolution session can span multiple invocations before the
// client republishes.
func (ws *Workspace) SaveResolution(ctx context.Context, res resolution.Resolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("workspace: marshal resolution %s: %w", res.Bundle, err)
	}
	return ws.Driver.PutContent(ctx, resolutionPath(res.Bundle), data)
}

// LoadResolution reads back the in-progress decision map for bundle, or a
// fresh resolution.New(bundle) if none has been saved yet.
func (ws *Workspace) LoadResolution(ctx context.Context, bundle convergemodel.BundleID) (resolution.Resolution, error) {
	data, err := ws.Driver.GetContent(ctx, resolutionPath(bundle))
	if err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return resolution.New(bundle), nil
		}
		return resolution.Resolution{}, err
	}
	var res resolution.Resolution
	if err := json.Unmarshal(data, &res); err != nil {
		return resolution.Resolution{}, fmt.Errorf("workspace: unmarshal resolution %s: %w", bundle, err)
	}
	return res, nil
}

// DiscardResolution removes a bundle's in-progress decision map, e.g.
// after it has been applied and republished.
func (ws *Workspace) DiscardResolution(ctx context.Context, bundle convergemodel.BundleID) error {
	return ws.Driver.Delete(ctx, resolutionPath(bundle))
}
