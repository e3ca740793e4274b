// Package resolution collapses a bundle manifest's superpositions back to
// a normal manifest by applying a per-path decision map.
package resolution

import (
	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/convergemodel"
	"github.com/convergence-vcs/convergence/convergerr"
	"github.com/convergence-vcs/convergence/manifest"
)

// Version discriminates the two decision shapes a Resolution may store.
type Version int

const (
	// V1 decisions reference a variant by its position in the
	// Superposition's Variants slice at decision time. UpgradeToV2 converts
	// them to V2 keys; nothing in this package calls it automatically when a
	// decision changes.
	V1 Version = 1
	// V2 decisions reference a variant by its content-derived VariantKey,
	// which stays valid even if the superposition's variant order shifts.
	V2 Version = 2
)

// Decision is one path's resolution: either a V1 variant index or a V2
// variant key, depending on the Resolution's Version.
type Decision struct {
	VariantIndex int
	VariantKey   manifest.VariantKey
}

// Resolution is the full set of per-path decisions for one bundle.
type Resolution struct {
	Bundle    convergemodel.BundleID
	Version   Version
	Decisions map[string]Decision
}

// New returns an empty V2 Resolution for bundle.
func New(bundle convergemodel.BundleID) Resolution {
	return Resolution{Bundle: bundle, Version: V2, Decisions: map[string]Decision{}}
}

// Validate enumerates every superposition path in root and checks that
// resolution provides exactly one valid decision for it, collecting every
// problem found rather than stopping at the first (spec's "all-errors-at-
// once" discipline).
func Validate(resolution Resolution, root manifest.Manifest, tree manifest.Tree) error {
	var problems convergerr.Multi

	superpositions := map[string]*manifest.Superposition{}
	collectSuperpositions(root, tree, "", superpositions)

	for path, sp := range superpositions {
		decision, ok := resolution.Decisions[path]
		if !ok {
			problems = append(problems, convergerr.New(convergerr.CodeResolutionInvalid, "missing-decision: %s", path))
			continue
		}
		switch resolution.Version {
		case V1:
			if decision.VariantIndex < 0 || decision.VariantIndex >= len(sp.Variants) {
				problems = append(problems, convergerr.New(convergerr.CodeResolutionInvalid, "out-of-range-index: %s index=%d", path, decision.VariantIndex))
			}
		default:
			if !matchesAnyVariant(decision.VariantKey, sp.Variants) {
				problems = append(problems, convergerr.New(convergerr.CodeResolutionInvalid, "invalid-key: %s", path))
			}
		}
	}

	for path := range resolution.Decisions {
		if _, ok := superpositions[path]; !ok {
			problems = append(problems, convergerr.New(convergerr.CodeResolutionInvalid, "extraneous-decision: %s", path))
		}
	}

	return problems.OrNil()
}

func matchesAnyVariant(key manifest.VariantKey, variants []manifest.Variant) bool {
	for _, v := range variants {
		if v.Key() == key {
			return true
		}
	}
	return false
}

func collectSuperpositions(m manifest.Manifest, tree manifest.Tree, prefix string, out map[string]*manifest.Superposition) {
	for _, ne := range m.Entries {
		path := prefix + "/" + ne.Name
		switch ne.Entry.Kind {
		case manifest.KindSuperposition:
			out[path] = ne.Entry.Superposition
		case manifest.KindDir:
			if child, ok := tree.Resolve(ne.Entry.Dir.Manifest); ok {
				collectSuperpositions(child, tree, path, out)
			}
		}
	}
}

// Apply walks root replacing each superposition with its resolved variant
// (a Tombstone decision removes the path) and returns the new root manifest
// along with every manifest produced while descending, so the caller
// can persist the new tree. Apply assumes resolution already validates
// against root.
func Apply(resolution Resolution, root manifest.Manifest, tree manifest.Tree) (manifest.Manifest, map[convergeid.ID]manifest.Manifest, error) {
	produced := map[convergeid.ID]manifest.Manifest{}
	applied, err := applyLevel(resolution, root, tree, "", produced)
	if err != nil {
		return manifest.Manifest{}, nil, err
	}
	return applied, produced, nil
}

func applyLevel(resolution Resolution, m manifest.Manifest, tree manifest.Tree, prefix string, produced map[convergeid.ID]manifest.Manifest) (manifest.Manifest, error) {
	var out []manifest.NamedEntry
	for _, ne := range m.Entries {
		path := prefix + "/" + ne.Name
		entry := ne.Entry

		switch entry.Kind {
		case manifest.KindSuperposition:
			decision := resolution.Decisions[path]
			variant := selectVariant(resolution, decision, entry.Superposition)
			if variant.Kind == manifest.KindTombstone {
				continue // resolved to deletion
			}
			out = append(out, manifest.NamedEntry{Name: ne.Name, Entry: variantToEntry(variant)})
		case manifest.KindDir:
			child, ok := tree.Resolve(entry.Dir.Manifest)
			if !ok {
				return manifest.Manifest{}, convergerr.New(convergerr.CodeMissingObject, "resolution: manifest %s not preloaded", entry.Dir.Manifest)
			}
			newChild, err := applyLevel(resolution, child, tree, path, produced)
			if err != nil {
				return manifest.Manifest{}, err
			}
			produced[newChild.ID()] = newChild
			out = append(out, manifest.NamedEntry{Name: ne.Name, Entry: manifest.Dir(newChild.ID())})
		case manifest.KindTombstone:
			continue
		default:
			out = append(out, ne)
		}
	}

	return manifest.New(out), nil
}

func selectVariant(resolution Resolution, decision Decision, sp *manifest.Superposition) manifest.Variant {
	if resolution.Version == V1 {
		return sp.Variants[decision.VariantIndex]
	}
	for _, v := range sp.Variants {
		if v.Key() == decision.VariantKey {
			return v
		}
	}
	return manifest.Variant{Kind: manifest.KindTombstone}
}

func variantToEntry(v manifest.Variant) manifest.Entry {
	switch v.Kind {
	case manifest.KindFile:
		return manifest.File(v.File.Content, v.File.Mode, v.File.Size)
	case manifest.KindDir:
		return manifest.Dir(v.Dir.Manifest)
	case manifest.KindSymlink:
		return manifest.Symlink(v.Symlink.Target)
	default:
		return manifest.Tombstone()
	}
}

// UpgradeToV2 converts every V1 decision in resolution to its V2 key form
// against root. It is a no-op if
// resolution is already V2.
func UpgradeToV2(resolution Resolution, root manifest.Manifest, tree manifest.Tree) (Resolution, error) {
	if resolution.Version == V2 {
		return resolution, nil
	}

	superpositions := map[string]*manifest.Superposition{}
	collectSuperpositions(root, tree, "", superpositions)

	upgraded := Resolution{Bundle: resolution.Bundle, Version: V2, Decisions: map[string]Decision{}}
	for path, decision := range resolution.Decisions {
		sp, ok := superpositions[path]
		if !ok || decision.VariantIndex < 0 || decision.VariantIndex >= len(sp.Variants) {
			return Resolution{}, convergerr.New(convergerr.CodeResolutionInvalid, "out-of-range-index: %s index=%d", path, decision.VariantIndex)
		}
		upgraded.Decisions[path] = Decision{VariantKey: sp.Variants[decision.VariantIndex].Key()}
	}
	return upgraded, nil
}
