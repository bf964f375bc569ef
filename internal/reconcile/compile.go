package reconcile

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/lingdb/treesync/internal/lff"
	"github.com/lingdb/treesync/internal/policy"
	"github.com/lingdb/treesync/internal/snapshot"
	"github.com/lingdb/treesync/internal/tree"
)

// Stats summarizes a computed plan.
type Stats struct {
	Matches      int `json:"matches"`
	Migrations   int `json:"migrations"`
	NoMatches    int `json:"nomatches"`
	NewFamilies  int `json:"new_families"`
	NewLanguages int `json:"new_languages"`
	Instructions int `json:"instructions"`
}

// Unresolved is an old node retired with no replacement pointer, left
// for manual review.
type Unresolved struct {
	PK   int    `json:"pk"`
	Name string `json:"name"`
}

// Plan is the full instruction stream plus its summary. Instructions are
// ordered so that every referenced parent id occurs earlier in the
// stream than the node referencing it.
type Plan struct {
	RunID        string             `json:"run_id"`
	Stats        Stats              `json:"stats"`
	Unresolved   []Unresolved       `json:"unresolved,omitempty"`
	Instructions []tree.Instruction `json:"-"`
}

// MarshalInstructions serializes the instruction stream as the JSON
// array the apply step consumes.
func (p *Plan) MarshalInstructions() ([]byte, error) {
	return tree.MarshalPlan(p.Instructions)
}

// Logf receives progress lines ("++ inserted", "~~ migrated", "--
// unresolved"). A nil Logf discards them.
type Logf func(format string, args ...any)

// Inputs bundles everything Compute consumes. All fields are immutable
// from the engine's point of view.
type Inputs struct {
	Classification *lff.Classification
	Aliases        *lff.Aliases
	// Names is the name -> branches multimap over the main file's
	// multi-leaf families, built before the overflow file is parsed.
	Names       map[string][]tree.Branch
	Snapshot    *snapshot.Snapshot
	Coordinates map[string]lff.Coordinates
	Policy      *policy.Policy
}

// Compute runs the matching pass and compiles the migration plan.
func Compute(in Inputs, logf Logf) (*Plan, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	plan := &Plan{RunID: uuid.Must(uuid.NewV7()).String()}
	snap := in.Snapshot
	cls := in.Classification

	// Working copy of pk -> name; new families are added as allocated.
	nameOf := make(map[int]string, len(snap.Names))
	for pk, name := range snap.Names {
		nameOf[pk] = name
	}

	// 1. Insert newly appearing leaf languages, numbered past the old
	// tree's highest pk in parse order.
	maxid := snap.MaxPK
	ncodes := map[string]int{}
	for _, code := range cls.Codes() {
		if _, known := snap.Codes[code]; known {
			continue
		}
		lang, _ := cls.Language(code)
		maxid++
		ncodes[code] = maxid
		instr := tree.NewInstruction(maxid, tree.LevelLanguage)
		instr.HID = code
		instr.Name = lang.Name
		instr.HName = lang.Name
		instr.Status = lang.Status
		instr.Comment = lang.Comment
		if c, ok := in.Coordinates[code]; ok {
			instr.SetCoordinates(c.Longitude, c.Latitude)
		}
		nameOf[maxid] = lang.Name
		logf("++ new language %s [%s]", lang.Name, code)
		plan.Stats.NewLanguages++
		plan.Instructions = append(plan.Instructions, *instr)
	}

	// 2. Consolidate the new classification for matching.
	matcher, err := NewMatcher(in.Policy, cls, snap.Codes, in.Names)
	if err != nil {
		return nil, err
	}

	// 3. Group old nodes by leaf-set. Nodes without coded leaves retire
	// immediately; a unique family name still earns them a pointer.
	var todo []Match
	type group struct {
		leafs tree.LeafSet
		nodes []snapshot.Node
	}
	byLeafs := map[string]*group{}
	for _, node := range snap.Nodes {
		if node.Leaves.IsEmpty() {
			todo = append(todo, matcher.MatchEmpty(node))
			continue
		}
		key := node.Leaves.Key()
		g, ok := byLeafs[key]
		if !ok {
			g = &group{leafs: node.Leaves}
			byLeafs[key] = g
		}
		g.nodes = append(g.nodes, node)
	}
	groups := make([]*group, 0, len(byLeafs))
	for _, g := range byLeafs {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].leafs.Less(groups[j].leafs) })

	// 4. The matching pass proper.
	for _, g := range groups {
		matches, err := matcher.MatchNodes(g.leafs, g.nodes)
		if err != nil {
			return nil, err
		}
		todo = append(todo, matches...)
	}

	// 5. Confirmed matches fix the ids of their branches.
	branchToPK := map[string]int{}
	matchedPKs := map[int]bool{}
	for _, m := range todo {
		if !m.Matched() {
			continue
		}
		if prev, dup := branchToPK[m.Branch.Key()]; dup {
			return nil, &Inconsistency{
				Code:    CodeDuplicateMatch,
				Message: fmt.Sprintf("branch %q matched twice", m.Branch),
				NodePKs: []int{prev, m.PK},
			}
		}
		branchToPK[m.Branch.Key()] = m.PK
		matchedPKs[m.PK] = true
	}

	// 6. Insert the remaining branches breadth-first (shortest path
	// first, then lexicographic) so a parent always has an id before any
	// child references it.
	fams := cls.Families()
	sort.Slice(fams, func(i, j int) bool { return fams[i].Branch.Less(fams[j].Branch) })
	for _, fam := range fams {
		key := fam.Branch.Key()
		if _, done := branchToPK[key]; done {
			continue
		}

		// A fresh branch whose full leaf tuple equals an old node's is
		// only legal in the unclassified-subtree case, and then the old
		// node must have been matched to some other branch.
		if g, ok := byLeafs[fam.LeafSet().Key()]; ok {
			if !hasUnclassified(fam.Branch) || !matchedPKs[g.nodes[0].PK] {
				return nil, &Inconsistency{
					Code:    CodeUnclassifiedInsert,
					Message: fmt.Sprintf("new branch %q duplicates the leaf-set of an unmatched old node", fam.Branch),
					Leaves:  g.leafs.Codes(),
					NodePKs: nodePKs(g.nodes),
				}
			}
		}

		maxid++
		instr := tree.NewInstruction(maxid, tree.LevelFamily)
		instr.Name = fam.Branch.Name()
		instr.HName = fam.Branch.Name()
		if parent := fam.Branch.Parent(); parent != nil {
			fpk, ok := branchToPK[parent.Key()]
			if !ok {
				return nil, &Inconsistency{
					Code:    CodeMissingParent,
					Message: fmt.Sprintf("branch %q inserted before its parent", fam.Branch),
				}
			}
			instr.SetFather(fpk)
		}
		branchToPK[key] = maxid
		nameOf[maxid] = fam.Branch.Name()
		logf("++ new family %s", fam.Branch)
		plan.Stats.NewFamilies++
		plan.Instructions = append(plan.Instructions, *instr)
	}

	// 7. Updates and retirements for the old internal nodes.
	for _, m := range todo {
		instr := tree.NewInstruction(m.PK, tree.LevelFamily)
		instr.Name = nameOf[m.PK]
		if m.Matched() {
			plan.Stats.Matches++
			if parent := m.Branch.Parent(); parent != nil {
				fpk, ok := branchToPK[parent.Key()]
				if !ok {
					return nil, &Inconsistency{
						Code:    CodeMissingParent,
						Message: fmt.Sprintf("matched branch %q has no id for its parent", m.Branch),
						NodePKs: []int{m.PK},
					}
				}
				instr.SetFather(fpk)
			}
			if m.Rename {
				instr.Name = m.Branch.Name()
			}
			instr.HName = m.Branch.Name()
		} else {
			instr.Active = false
			if m.Pointer != nil {
				rep, ok := branchToPK[m.Pointer.Key()]
				if !ok {
					return nil, &Inconsistency{
						Code:    CodeMissingParent,
						Message: fmt.Sprintf("replacement branch %q was never assigned an id", m.Pointer),
						NodePKs: []int{m.PK},
					}
				}
				instr.SetReplacement(rep)
				logf("~~ %s -> %s", nameOf[m.PK], m.Pointer)
				plan.Stats.Migrations++
			} else {
				logf("-- %s", nameOf[m.PK])
				plan.Stats.NoMatches++
				plan.Unresolved = append(plan.Unresolved, Unresolved{PK: m.PK, Name: nameOf[m.PK]})
			}
		}
		plan.Instructions = append(plan.Instructions, *instr)
	}

	// 8. Re-link every leaf to its resolved branch and re-apply the
	// status/comment/historical-name overrides from parsing.
	for _, code := range cls.Codes() {
		lang, _ := cls.Language(code)
		pk, known := snap.Codes[code]
		if !known {
			pk = ncodes[code]
		}
		instr := tree.NewInstruction(pk, tree.LevelLanguage)
		instr.Status = lang.Status
		if !lang.Branch.IsIsolate() {
			fpk, ok := branchToPK[lang.Branch.Key()]
			if !ok {
				return nil, &Inconsistency{
					Code:    CodeMissingParent,
					Message: fmt.Sprintf("leaf %s attached to branch %q with no id", code, lang.Branch),
				}
			}
			instr.SetFather(fpk)
		}
		instr.Comment = lang.Comment
		if hname, ok := in.Aliases.HName(code); ok {
			instr.HName = hname
		}
		plan.Instructions = append(plan.Instructions, *instr)
	}

	// 9. Final sweep: legacy private-code leaves absent from the parse
	// are retired and unparented.
	for _, leaf := range snap.Legacy {
		if cls.HasCode(leaf.HID) {
			continue
		}
		instr := tree.NewInstruction(leaf.PK, tree.LevelLanguage)
		instr.Status = tree.StatusRetired
		instr.Active = false
		plan.Instructions = append(plan.Instructions, *instr)
	}

	plan.Stats.Instructions = len(plan.Instructions)
	return plan, nil
}
