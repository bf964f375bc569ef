package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lingdb/treesync/internal/lff"
	"github.com/lingdb/treesync/internal/policy"
	"github.com/lingdb/treesync/internal/snapshot"
	"github.com/lingdb/treesync/internal/tree"
)

// Match is the matcher's verdict for one old node. A non-nil Branch
// confirms the node as that branch (renamed when Rename is set). A nil
// Branch retires the node, pointing at Pointer's node as replacement when
// one was found.
type Match struct {
	PK      int
	Branch  tree.Branch
	Rename  bool
	Pointer tree.Branch
}

// Matched reports whether the node was confirmed rather than retired.
func (m Match) Matched() bool { return m.Branch != nil }

// Matcher holds the consolidated view of the new classification the
// matching pass runs against. All fields are built once and read only.
type Matcher struct {
	pol *policy.Policy

	// rnodes maps a sorted leaf tuple to the branch carrying it.
	rnodes map[string]tree.Branch

	// urnodes holds the "unclassified subtree" duplicates: where two
	// branches share one leaf-set, the unclassified child lands here.
	urnodes map[string]tree.Branch

	// leafsets are all new leaf-sets in ascending size order, then
	// lexicographic; every approximate scan walks them in this order.
	leafsets []tree.LeafSet

	// names maps a family name to the branches carrying it.
	names map[string][]tree.Branch
}

// NewMatcher consolidates the parsed classification against the old
// code inventory. Only codes known to the old tree participate in
// leaf-set comparison.
func NewMatcher(pol *policy.Policy, cls *lff.Classification, codes map[string]int, names map[string][]tree.Branch) (*Matcher, error) {
	m := &Matcher{
		pol:     pol,
		rnodes:  map[string]tree.Branch{},
		urnodes: map[string]tree.Branch{},
		names:   names,
	}

	for _, fam := range cls.Families() {
		var known []string
		for code := range fam.Leaves {
			if _, ok := codes[code]; ok {
				known = append(known, code)
			}
		}
		leafs := tree.NewLeafSet(known...)
		if leafs.IsEmpty() {
			return nil, &Inconsistency{
				Code:    CodeEmptyLeafSet,
				Message: fmt.Sprintf("family %q has no leaves known to the old tree", fam.Branch),
			}
		}

		key := leafs.Key()
		first, dup := m.rnodes[key]
		if !dup {
			m.rnodes[key] = fam.Branch
			m.leafsets = append(m.leafsets, leafs)
			continue
		}

		// Duplicate leaf-set: only the unclassified-subtree case is legal,
		// and at most once per leaf-set. The duplicate must be an
		// "Unclassified …" extension of the branch already recorded.
		if _, again := m.urnodes[key]; again || !hasUnclassified(fam.Branch) || !subset(first, fam.Branch) {
			return nil, &Inconsistency{
				Code:    CodeDuplicateLeafSet,
				Message: fmt.Sprintf("branches %q and %q share one leaf-set", first, fam.Branch),
				Leaves:  leafs.Codes(),
			}
		}
		m.urnodes[key] = fam.Branch
	}

	sort.Slice(m.leafsets, func(i, j int) bool { return m.leafsets[i].Less(m.leafsets[j]) })

	return m, nil
}

// Branch returns the branch recorded for a leaf tuple.
func (m *Matcher) Branch(leafs tree.LeafSet) (tree.Branch, bool) {
	b, ok := m.rnodes[leafs.Key()]
	return b, ok
}

// MatchNodes reconciles all old nodes sharing the leaf-set leafs against
// the new classification.
func (m *Matcher) MatchNodes(leafs tree.LeafSet, nodes []snapshot.Node) ([]Match, error) {
	key := leafs.Key()
	if branch, ok := m.rnodes[key]; ok {
		if ubranch, ok := m.urnodes[key]; ok {
			// Two new branches carry this leaf-set, so up to two old nodes
			// may legitimately share it.
			if len(nodes) > 2 {
				return nil, &Inconsistency{
					Code:    CodeExcessNodes,
					Message: "more than two old nodes share a duplicated leaf-set",
					Leaves:  leafs.Codes(),
					NodePKs: nodePKs(nodes),
				}
			}
			if len(nodes) == 2 {
				// The unclassified node must be a child of the other one;
				// the father relation tells them apart.
				unode, node := nodes[0], nodes[1]
				if !isChildOf(unode, node) {
					unode, node = nodes[1], nodes[0]
				}
				if !isChildOf(unode, node) {
					return nil, &Inconsistency{
						Code:    CodeUnclassifiedParent,
						Message: "nodes sharing a duplicated leaf-set are not parent and child",
						Leaves:  leafs.Codes(),
						NodePKs: nodePKs(nodes),
					}
				}
				return []Match{
					{PK: node.PK, Branch: branch},
					{PK: unode.PK, Branch: ubranch},
				}, nil
			}
		}

		// Exact match. The first node is confirmed (renamed when it had
		// company); any further nodes retire pointing at it.
		todo := []Match{{PK: nodes[0].PK, Branch: branch, Rename: len(nodes) > 1}}
		for _, n := range nodes[1:] {
			todo = append(todo, Match{PK: n.PK, Pointer: branch})
		}
		return todo, nil
	}

	// Approximate leaf-set comparison only makes sense for big enough
	// sets: accept the first candidate within the tolerance.
	if leafs.Len() > m.pol.MinApproxLeaves {
		for _, cand := range m.leafsets {
			allowed := m.pol.Tolerance(cand.Len())
			if abs(leafs.Len()-cand.Len()) > allowed {
				continue
			}
			if leafs.DiffSize(cand) <= allowed || cand.DiffSize(leafs) <= allowed {
				branch := m.rnodes[cand.Key()]
				todo := make([]Match, len(nodes))
				for i, n := range nodes {
					todo[i] = Match{PK: n.PK, Pointer: branch}
				}
				return todo, nil
			}
		}
	}

	// No counterpart by leaf-set; fall back per node.
	var todo []Match
	for _, n := range nodes {
		todo = append(todo, m.fallback(leafs, n))
	}
	return todo, nil
}

// fallback resolves a single node by unique name, smallest superset, or
// largest intersection; a node with no candidate at all stays an
// unresolved retirement.
func (m *Matcher) fallback(leafs tree.LeafSet, n snapshot.Node) Match {
	if branches, ok := m.names[n.Name]; ok && len(branches) == 1 {
		return Match{PK: n.PK, Pointer: branches[0]}
	}

	for _, cand := range m.leafsets {
		if leafs.SubsetOf(cand) {
			return Match{PK: n.PK, Pointer: m.rnodes[cand.Key()]}
		}
	}

	best := tree.LeafSet{}
	maxShared := 0
	for _, cand := range m.leafsets {
		if shared := cand.IntersectionSize(leafs); shared > maxShared {
			maxShared = shared
			best = cand
		}
	}
	if maxShared > 0 {
		return Match{PK: n.PK, Pointer: m.rnodes[best.Key()]}
	}

	return Match{PK: n.PK}
}

// MatchEmpty handles an old node with no coded leaves: such nodes are
// never matching candidates. A uniquely identifying name still yields a
// replacement pointer.
func (m *Matcher) MatchEmpty(n snapshot.Node) Match {
	if branches, ok := m.names[n.Name]; ok && len(branches) == 1 {
		return Match{PK: n.PK, Pointer: branches[0]}
	}
	return Match{PK: n.PK}
}

func isChildOf(child, parent snapshot.Node) bool {
	return child.FatherPK != nil && *child.FatherPK == parent.PK
}

func hasUnclassified(b tree.Branch) bool {
	for _, name := range b {
		if strings.HasPrefix(name, "Unclassified") {
			return true
		}
	}
	return false
}

// subset reports whether every component of a occurs in b.
func subset(a, b tree.Branch) bool {
	in := map[string]bool{}
	for _, name := range b {
		in[name] = true
	}
	for _, name := range a {
		if !in[name] {
			return false
		}
	}
	return true
}

func nodePKs(nodes []snapshot.Node) []int {
	pks := make([]int, len(nodes))
	for i, n := range nodes {
		pks[i] = n.PK
	}
	return pks
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
