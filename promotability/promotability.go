// Package promotability implements the Promotability Evaluation (spec
// §4.5): a pure function of a bundle's root manifest, a gate's policy and
// its approvals, deciding whether the bundle may advance through that
// gate. It is re-run on every approval mutation and after every coalesce.
package promotability

import (
	"fmt"
	"sort"

	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/manifest"
)

// sampleLimit bounds how many offending paths/ids a failure reason lists,
// per the "bounded sample" propagation policy.
const sampleLimit = 10

// Policy is a gate's promotion policy.
type Policy struct {
	AllowSuperpositions           bool
	RequiredApprovals             int
	AllowMetadataOnlyPublications bool
}

// Result is the outcome of an evaluation.
type Result struct {
	Promotable bool
	Reasons    []string
}

// Evaluate decides whether root is promotable under policy, given the
// number of approvals recorded and the set of object ids the bundle
// transitively references that are missing from the authority's store.
// tree must already contain every manifest reachable from root; Evaluate
// performs no I/O itself.
func Evaluate(root manifest.Manifest, tree manifest.Tree, policy Policy, approvalCount int, missingObjectIDs []convergeid.ID) Result {
	var reasons []string

	if !policy.AllowSuperpositions {
		if paths := findSuperpositionPaths(root, tree, "", nil); len(paths) > 0 {
			reasons = append(reasons, fmt.Sprintf("unresolved-superpositions: %s", sampleJoin(paths)))
		}
	}

	if approvalCount < policy.RequiredApprovals {
		reasons = append(reasons, fmt.Sprintf("insufficient-approvals: have %d, need %d", approvalCount, policy.RequiredApprovals))
	}

	if !policy.AllowMetadataOnlyPublications && len(missingObjectIDs) > 0 {
		reasons = append(reasons, fmt.Sprintf("missing-objects: %s", sampleJoinIDs(missingObjectIDs)))
	}

	if len(reasons) == 0 {
		return Result{Promotable: true}
	}
	return Result{Promotable: false, Reasons: reasons}
}

func findSuperpositionPaths(m manifest.Manifest, tree manifest.Tree, prefix string, found []string) []string {
	for _, ne := range m.Entries {
		if len(found) >= sampleLimit {
			break
		}
		path := prefix + "/" + ne.Name
		switch ne.Entry.Kind {
		case manifest.KindSuperposition:
			found = append(found, path)
		case manifest.KindDir:
			if child, ok := tree.Resolve(ne.Entry.Dir.Manifest); ok {
				found = findSuperpositionPaths(child, tree, path, found)
			}
		}
	}
	return found
}

func sampleJoin(paths []string) string {
	if len(paths) > sampleLimit {
		paths = paths[:sampleLimit]
	}
	out := ""
	for i, p := range paths {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func sampleJoinIDs(ids []convergeid.ID) string {
	sorted := append([]convergeid.ID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if len(sorted) > sampleLimit {
		sorted = sorted[:sampleLimit]
	}
	out := ""
	for i, id := range sorted {
		if i > 0 {
			out += ", "
		}
		out += string(id)
	}
	return out
}
