// Package authority: RepoRecord persistence. The spec leaves the encoding
// open ("JSON on disk is one valid encoding") and prescribes only idempotent
// writes and crash-consistent rename (spec §6 "Persisted state layout").
// encoding/json plus the driver's write-temp-then-rename PutContent gives
// us both for free.
package authority

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/convergence-vcs/convergence/storagedriver"
)

// RecordPath is the conventional location of a repository's aggregate
// state beneath its root, mirroring the teacher's "<root>/<repo>/record"
// layout (spec §6).
const RecordPath = "record.json"

// Save serializes record and writes it to <root>/record.json via driver.
// PutContent's write-temp-then-rename contract means a crash mid-write
// never leaves a truncated or partially-written record visible to readers.
func Save(ctx context.Context, driver storagedriver.StorageDriver, root string, record *RepoRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("authority: marshal record: %w", err)
	}
	return driver.PutContent(ctx, root+"/"+RecordPath, data)
}

// Load reads and decodes the RepoRecord written by Save. Returns
// storagedriver.PathNotFoundError unchanged if no record exists yet, so
// callers can distinguish "fresh repo" from a read failure.
func Load(ctx context.Context, driver storagedriver.StorageDriver, root string) (*RepoRecord, error) {
	data, err := driver.GetContent(ctx, root+"/"+RecordPath)
	if err != nil {
		return nil, err
	}
	record := &RepoRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("authority: unmarshal record: %w", err)
	}
	return record, nil
}
