// Package coalesce implements a deterministic merge of N publication
// manifests into a single bundle manifest, materializing first-class
// conflict entries ("superpositions") wherever inputs disagree. Coalesce
// never performs I/O; every manifest it might need to recurse into must
// already be present in the Tree passed by the caller, keeping the merge
// itself a pure function of its declared inputs.
package coalesce

import (
	"sort"

	"github.com/convergence-vcs/convergence/convergemodel"
	"github.com/convergence-vcs/convergence/convergerr"
	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/manifest"
)

// Input is one publication's contribution to a coalesce: its manifest,
// attributed to the publication that produced it.
type Input struct {
	Source   convergemodel.PublicationID
	Manifest manifest.Manifest
}

func resolve(tree manifest.Tree, id convergeid.ID) (manifest.Manifest, error) {
	m, ok := tree.Resolve(id)
	if !ok {
		return manifest.Manifest{}, convergerr.New(convergerr.CodeMissingObject, "coalesce: manifest %s not preloaded", id)
	}
	return m, nil
}

// Result is the outcome of a coalesce: the merged root manifest, plus every
// intermediate merged manifest produced while recursing into merged
// subdirectories (keyed by id), so a caller can persist the whole new tree
// in one pass.
type Result struct {
	Root     manifest.Manifest
	Produced map[convergeid.ID]manifest.Manifest
}

// Coalesce merges inputs into one manifest. Inputs are sorted internally by
// Source before merging, so the result is invariant under the caller's
// input order (spec's permutation-invariance law).
func Coalesce(inputs []Input, tree manifest.Tree) (Result, error) {
	sorted := append([]Input(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Source < sorted[j].Source })

	produced := make(map[convergeid.ID]manifest.Manifest)
	root, err := mergeManifests(sorted, tree, produced)
	if err != nil {
		return Result{}, err
	}
	produced[root.ID()] = root
	return Result{Root: root, Produced: produced}, nil
}

type namedPair struct {
	source convergemodel.PublicationID
	entry  manifest.Entry
}

// mergeManifests merges one directory level. inputs must already be sorted
// by Source.
func mergeManifests(inputs []Input, tree manifest.Tree, produced map[convergeid.ID]manifest.Manifest) (manifest.Manifest, error) {
	byName := map[string][]namedPair{}
	var order []string

	for _, in := range inputs {
		for _, ne := range in.Manifest.Entries {
			if _, seen := byName[ne.Name]; !seen {
				order = append(order, ne.Name)
			}
			byName[ne.Name] = append(byName[ne.Name], namedPair{source: in.Source, entry: ne.Entry})
		}
	}
	sort.Strings(order)

	var out []manifest.NamedEntry
	for _, name := range order {
		merged, err := mergeEntry(byName[name], tree, produced)
		if err != nil {
			return manifest.Manifest{}, err
		}
		if merged.Kind == manifest.KindTombstone {
			// A fully-collapsed tombstone signals deletion: omit the path
			// entirely from the merged output.
			continue
		}
		out = append(out, manifest.NamedEntry{Name: name, Entry: merged})
	}

	return manifest.New(out), nil
}

func mergeEntry(pairs []namedPair, tree manifest.Tree, produced map[convergeid.ID]manifest.Manifest) (manifest.Entry, error) {
	if allByteEqual(pairs) {
		return pairs[0].entry, nil
	}

	if allDir(pairs) {
		var childInputs []Input
		for _, p := range pairs {
			childID := p.entry.Dir.Manifest
			childManifest, err := resolve(tree, childID)
			if err != nil {
				return manifest.Entry{}, err
			}
			childInputs = append(childInputs, Input{Source: p.source, Manifest: childManifest})
		}
		merged, err := mergeManifests(sortInputs(childInputs), tree, produced)
		if err != nil {
			return manifest.Entry{}, err
		}
		produced[merged.ID()] = merged
		return manifest.Dir(merged.ID()), nil
	}

	return buildSuperposition(pairs), nil
}

func sortInputs(inputs []Input) []Input {
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Source < inputs[j].Source })
	return inputs
}

// allByteEqual reports whether every pair carries the same variant key
// (spec step 2: "all entries are byte-equal").
func allByteEqual(pairs []namedPair) bool {
	first := toVariant(pairs[0]).Key()
	first.Source = ""
	for _, p := range pairs[1:] {
		k := toVariant(p).Key()
		k.Source = ""
		if k != first {
			return false
		}
	}
	return true
}

func allDir(pairs []namedPair) bool {
	for _, p := range pairs {
		if p.entry.Kind != manifest.KindDir {
			return false
		}
	}
	return true
}

func toVariant(p namedPair) manifest.Variant {
	v := manifest.Variant{Source: p.source, Kind: p.entry.Kind}
	switch p.entry.Kind {
	case manifest.KindFile:
		v.File = p.entry.File
	case manifest.KindDir:
		v.Dir = p.entry.Dir
	case manifest.KindSymlink:
		v.Symlink = p.entry.Symlink
	case manifest.KindTombstone:
	}
	return v
}

// buildSuperposition collapses pairs into distinct-by-content variants,
// each attributed to the lowest source publication contributing it, then
// orders the result by (source, variant-key) as spec step 4 requires.
func buildSuperposition(pairs []namedPair) manifest.Entry {
	bestBySameContent := map[manifest.ContentKey]manifest.Variant{}
	var contentOrder []manifest.ContentKey

	for _, p := range pairs {
		v := toVariant(p)
		ck := v.Content()
		existing, ok := bestBySameContent[ck]
		if !ok {
			bestBySameContent[ck] = v
			contentOrder = append(contentOrder, ck)
			continue
		}
		if v.Source < existing.Source {
			bestBySameContent[ck] = v
		}
	}

	variants := make([]manifest.Variant, 0, len(contentOrder))
	for _, ck := range contentOrder {
		variants = append(variants, bestBySameContent[ck])
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].Less(variants[j]) })

	return manifest.Entry{Kind: manifest.KindSuperposition, Superposition: &manifest.Superposition{Variants: variants}}
}
