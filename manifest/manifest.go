package manifest

import (
	"fmt"
	"sort"

	"github.com/convergence-vcs/convergence/convergeenc"
	"github.com/convergence-vcs/convergence/convergeid"
)

// NamedEntry pairs a path-component name with its Entry. Manifest.Entries is
// always kept sorted by Name so Canonical() is order-independent of
// insertion order: the manifest id never depends on the order entries were
// added.
type NamedEntry struct {
	Name  string
	Entry Entry
}

// Manifest is an ordered, content-addressed directory listing: one level of
// a tree, with subdirectories referenced by id rather than inlined.
type Manifest struct {
	Entries []NamedEntry
}

// New builds a Manifest from entries, sorting them by name.
func New(entries []NamedEntry) Manifest {
	m := Manifest{Entries: append([]NamedEntry(nil), entries...)}
	m.sort()
	return m
}

func (m *Manifest) sort() {
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Name < m.Entries[j].Name })
}

// Lookup returns the entry named name, if present.
func (m Manifest) Lookup(name string) (Entry, bool) {
	i := sort.Search(len(m.Entries), func(i int) bool { return m.Entries[i].Name >= name })
	if i < len(m.Entries) && m.Entries[i].Name == name {
		return m.Entries[i].Entry, true
	}
	return Entry{}, false
}

// Canonical returns m's deterministic byte encoding; its BLAKE3 digest is
// the manifest's id. Entries are always encoded in sorted-name order.
func (m Manifest) Canonical() []byte {
	w := convergeenc.NewWriter()
	w.Uint32(uint32(len(m.Entries)))
	for _, ne := range m.Entries {
		w.String(ne.Name)
		ne.Entry.encode(w)
	}
	return w.Finish()
}

// ID returns the content address of m's canonical encoding.
func (m Manifest) ID() convergeid.ID {
	return convergeid.Of(m.Canonical())
}

// Decode parses a Manifest from its canonical encoding.
func Decode(p []byte) (Manifest, error) {
	r := convergeenc.NewReader(p)
	n := r.Uint32()
	entries := make([]NamedEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		name := r.String()
		entry := decodeEntry(r)
		entries = append(entries, NamedEntry{Name: name, Entry: entry})
	}
	if err := r.Err(); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode: %w", err)
	}
	if !r.Done() {
		return Manifest{}, fmt.Errorf("manifest: decode: trailing bytes")
	}
	return Manifest{Entries: entries}, nil
}

// Tree resolves a directory entry's manifest id to its contents. Callers
// that need to walk below the root level (coalescing, promotability,
// resolution apply) preload the transitive closure of every manifest they
// might touch into a Tree before calling into those pure functions, so the
// functions themselves never perform I/O.
type Tree map[convergeid.ID]Manifest

// Resolve looks up id in t, reporting a manifest that was not preloaded via
// the boolean ok rather than an error, mirroring a map lookup.
func (t Tree) Resolve(id convergeid.ID) (Manifest, bool) {
	m, ok := t[id]
	return m, ok
}

// Walker resolves a Dir entry's manifest id to its Manifest, letting
// cycle-detection walk a tree without the caller threading a store through
// every call site.
type Walker func(id convergeid.ID) (Manifest, error)

// CheckAcyclic walks every Dir entry reachable from root and reports an
// error if any manifest id is reachable from itself, directly or through a
// chain of subdirectories. Manifests are content-addressed, so a cycle can
// only arise from a malformed or adversarial tree; resolution and coalescing
// must never produce one.
func CheckAcyclic(root convergeid.ID, resolve Walker) error {
	return checkAcyclic(root, resolve, map[convergeid.ID]bool{})
}

func checkAcyclic(id convergeid.ID, resolve Walker, onPath map[convergeid.ID]bool) error {
	if onPath[id] {
		return fmt.Errorf("manifest: cycle detected at %s", id)
	}
	onPath[id] = true
	defer delete(onPath, id)

	m, err := resolve(id)
	if err != nil {
		return err
	}
	for _, ne := range m.Entries {
		if ne.Entry.Kind == KindDir {
			if err := checkAcyclic(ne.Entry.Dir.Manifest, resolve, onPath); err != nil {
				return err
			}
		}
	}
	return nil
}
