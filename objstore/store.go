// Package objstore implements a content-addressed object store: a thin,
// kind-partitioned layer over a storagedriver.StorageDriver that verifies
// every write hashes to the id it claims and shards objects into
// <kind>/<shard>/<id> directories.
package objstore

import (
	"context"
	"path"
	"sort"

	"github.com/convergence-vcs/convergence/convergectx"
	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/convergerr"
	"github.com/convergence-vcs/convergence/metrics"
	"github.com/convergence-vcs/convergence/storagedriver"
)

// Kind partitions the object namespace. Each kind gets its own subtree so a
// recipe id and a manifest id can never collide on disk even if (in
// principle) a future algorithm produced the same hash for both.
type Kind string

const (
	KindBlob     Kind = "blobs"
	KindChunk    Kind = "chunks"
	KindRecipe   Kind = "recipes"
	KindManifest Kind = "manifests"
	KindSnap     Kind = "snaps"
)

// Store is the content-addressed object store for one repository.
type Store struct {
	driver storagedriver.StorageDriver
	root   string
}

// New returns a Store rooted at root within driver's namespace, e.g.
// "<repo>/objects".
func New(driver storagedriver.StorageDriver, root string) *Store {
	return &Store{driver: driver, root: root}
}

func (s *Store) pathFor(kind Kind, id convergeid.ID) string {
	return path.Join(s.root, string(kind), id.ShardPrefix(), string(id), "data")
}

func (s *Store) dirFor(kind Kind, id convergeid.ID) string {
	return path.Join(s.root, string(kind), id.ShardPrefix(), string(id))
}

// Put writes content under id within kind. It verifies BLAKE3(content) ==
// id and fails with convergerr.CodeIntegrityMismatch otherwise. Writing an
// object that already exists with matching bytes is a no-op success
// (idempotent concurrent writes).
func (s *Store) Put(ctx context.Context, kind Kind, id convergeid.ID, content []byte) error {
	if err := convergeid.Validate(id); err != nil {
		return convergerr.Wrap(convergerr.CodeInvalidID, err, "object id %q", id)
	}

	computed := convergeid.Of(content)
	if computed != id {
		return convergerr.New(convergerr.CodeIntegrityMismatch,
			"kind=%s claimed id=%s computed id=%s", kind, id, computed)
	}

	if err := s.driver.PutContent(ctx, s.pathFor(kind, id), content); err != nil {
		return err
	}

	metrics.ObjectsPut.WithValues(string(kind)).Inc()
	convergectx.GetLogger(ctx).Debugf("objstore: put %s/%s (%d bytes)", kind, id, len(content))
	return nil
}

// Get retrieves the content stored under id. Returns convergerr.CodeMissingObject
// if absent.
func (s *Store) Get(ctx context.Context, kind Kind, id convergeid.ID) ([]byte, error) {
	content, err := s.driver.GetContent(ctx, s.pathFor(kind, id))
	if err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return nil, convergerr.Wrap(convergerr.CodeMissingObject, err, "kind=%s id=%s", kind, id)
		}
		return nil, err
	}
	metrics.ObjectsGet.WithValues(string(kind)).Inc()
	return content, nil
}

// Has reports whether id is present under kind.
func (s *Store) Has(ctx context.Context, kind Kind, id convergeid.ID) (bool, error) {
	_, err := s.driver.Stat(ctx, s.pathFor(kind, id))
	if err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Missing filters ids down to those not present under kind, used as a
// pre-upload existence probe by clients before they transfer bytes.
func (s *Store) Missing(ctx context.Context, kind Kind, ids []convergeid.ID) ([]convergeid.ID, error) {
	var missing []convergeid.ID
	for _, id := range ids {
		has, err := s.Has(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		if !has {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// List enumerates every id stored under kind.
func (s *Store) List(ctx context.Context, kind Kind) ([]convergeid.ID, error) {
	shards, err := s.driver.List(ctx, path.Join(s.root, string(kind)))
	if err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return nil, nil
		}
		return nil, err
	}

	var ids []convergeid.ID
	for _, shard := range shards {
		entries, err := s.driver.List(ctx, shard)
		if err != nil {
			if _, ok := err.(storagedriver.PathNotFoundError); ok {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			ids = append(ids, convergeid.ID(path.Base(entry)))
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Delete removes id from kind. Only called by GC sweep; the store is
// otherwise append-only.
func (s *Store) Delete(ctx context.Context, kind Kind, id convergeid.ID) error {
	if err := s.driver.Delete(ctx, s.dirFor(kind, id)); err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}
