package authority

import (
	"sync"

	"github.com/convergence-vcs/convergence/convergemodel"
)

// LockTable serializes mutation of a RepoRecord per (repo, scope, gate), so
// concurrent promotions/coalesces against the same triple cannot race
// (spec §5: "Within a (repo, scope, gate), promotion and bundle creation
// are serialized"). Distinct triples proceed fully in parallel.
type LockTable struct {
	mu     sync.Mutex
	stripe map[tripleKey]*sync.Mutex
}

// NewLockTable returns an empty LockTable.
func NewLockTable() *LockTable {
	return &LockTable{stripe: map[tripleKey]*sync.Mutex{}}
}

func (t *LockTable) mutexFor(scope convergemodel.ScopeID, gate convergemodel.GateID) *sync.Mutex {
	key := tripleKey{Scope: scope, Gate: gate}

	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.stripe[key]
	if !ok {
		m = &sync.Mutex{}
		t.stripe[key] = m
	}
	return m
}

// WithLock runs fn while holding the exclusive lock for (scope, gate).
func (t *LockTable) WithLock(scope convergemodel.ScopeID, gate convergemodel.GateID, fn func() error) error {
	m := t.mutexFor(scope, gate)
	m.Lock()
	defer m.Unlock()
	return fn()
}
