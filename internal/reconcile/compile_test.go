package reconcile

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingdb/treesync/internal/lff"
	"github.com/lingdb/treesync/internal/policy"
	"github.com/lingdb/treesync/internal/snapshot"
	"github.com/lingdb/treesync/internal/tree"
)

const compileLFF = `Newland, North
  Alpha [aaa]
  Beta [bbb]
Newland, South
  Gamma [ccc]
  Delta [ddd]
Loner_Family
  Loner [eee]
Brandnew
  Fresh [fff]
  Oldfresh [ooo]
`

const compileLOF = `Spurious
  Ghosty [hhh]
`

// compileInputs assembles the full engine input the way the plan command
// does: parse the main file, collapse singletons, index names, then take
// in the overflow file.
func compileInputs(t *testing.T) Inputs {
	t.Helper()
	pol, err := policy.Default()
	require.NoError(t, err)

	cls := lff.New(pol)
	require.NoError(t, cls.Parse(strings.NewReader(compileLFF), "lff-test.txt"))
	aliases := cls.Collapse()
	names := cls.NamesIndex()
	require.NoError(t, cls.Parse(strings.NewReader(compileLOF), "lof-test.txt"))

	father := func(pk int) *int { return &pk }
	snap := &snapshot.Snapshot{
		Codes: map[string]int{
			"aaa": 1, "bbb": 2, "ccc": 3, "ddd": 4,
			"eee": 5, "zzz": 6, "NOCODE_Gone": 7, "ooo": 8,
		},
		MaxPK: 30,
		Names: map[int]string{
			1: "Alpha", 2: "Beta", 3: "Gamma", 4: "Delta",
			5: "Loner", 6: "Zombie", 7: "Gone", 8: "Oldfresh",
			10: "Oldland", 11: "Northish", 12: "Dead Branch",
			13: "Forgotten", 14: "Southlike",
		},
		Nodes: []snapshot.Node{
			{PK: 10, Name: "Oldland", Level: "family", Leaves: tree.NewLeafSet("aaa", "bbb", "ccc", "ddd")},
			{PK: 11, Name: "Northish", Level: "family", FatherPK: father(10), Leaves: tree.NewLeafSet("aaa", "bbb")},
			{PK: 12, Name: "Dead Branch", Level: "family", FatherPK: father(10)},
			{PK: 13, Name: "Forgotten", Level: "family", FatherPK: father(10), Leaves: tree.NewLeafSet("zzz")},
			{PK: 14, Name: "Southlike", Level: "family", FatherPK: father(10), Leaves: tree.NewLeafSet("ccc")},
		},
		Legacy: []snapshot.LeafRow{{PK: 7, HID: "NOCODE_Gone"}},
	}

	return Inputs{
		Classification: cls,
		Aliases:        aliases,
		Names:          names,
		Snapshot:       snap,
		Coordinates:    map[string]lff.Coordinates{"fff": {Longitude: 1.5, Latitude: -2.25}},
		Policy:         pol,
	}
}

func findInstruction(t *testing.T, plan *Plan, pk int) tree.Instruction {
	t.Helper()
	for _, instr := range plan.Instructions {
		if instr.PK == pk {
			return instr
		}
	}
	t.Fatalf("no instruction for pk %d", pk)
	return tree.Instruction{}
}

// findLeafUpdate returns the last instruction for pk: for newly inserted
// languages the insert comes first and the re-link comes later.
func findLeafUpdate(t *testing.T, plan *Plan, pk int) tree.Instruction {
	t.Helper()
	var found *tree.Instruction
	for i := range plan.Instructions {
		if plan.Instructions[i].PK == pk {
			found = &plan.Instructions[i]
		}
	}
	if found == nil {
		t.Fatalf("no instruction for pk %d", pk)
	}
	return *found
}

func TestComputeStats(t *testing.T) {
	plan, err := Compute(compileInputs(t), nil)
	require.NoError(t, err)

	assert.Equal(t, Stats{
		Matches:      2,
		Migrations:   1,
		NoMatches:    2,
		NewFamilies:  2,
		NewLanguages: 2,
		Instructions: 18,
	}, plan.Stats)
	assert.Equal(t, []Unresolved{
		{PK: 12, Name: "Dead Branch"},
		{PK: 13, Name: "Forgotten"},
	}, plan.Unresolved)
}

func TestComputeInsertsNewLanguages(t *testing.T) {
	plan, err := Compute(compileInputs(t), nil)
	require.NoError(t, err)

	// New leaves are numbered past the old tree's highest pk in parse
	// order: fff first, then the overflow file's hhh.
	fresh := findInstruction(t, plan, 31)
	assert.Equal(t, tree.LevelLanguage, fresh.Level)
	assert.Equal(t, "fff", fresh.HID)
	assert.Equal(t, "Fresh", fresh.Name)
	assert.Equal(t, "Fresh", fresh.HName)
	assert.Equal(t, tree.StatusEstablished, fresh.Status)
	require.NotNil(t, fresh.Longitude)
	assert.Equal(t, 1.5, *fresh.Longitude)
	require.NotNil(t, fresh.Latitude)
	assert.Equal(t, -2.25, *fresh.Latitude)

	ghost := findInstruction(t, plan, 32)
	assert.Equal(t, "hhh", ghost.HID)
	assert.Equal(t, "Ghosty", ghost.Name)
	assert.Equal(t, tree.StatusSpurious, ghost.Status)
}

func TestComputeInsertsNewFamilies(t *testing.T) {
	plan, err := Compute(compileInputs(t), nil)
	require.NoError(t, err)

	brandnew := findInstruction(t, plan, 33)
	assert.Equal(t, tree.LevelFamily, brandnew.Level)
	assert.Equal(t, "Brandnew", brandnew.Name)
	assert.Nil(t, brandnew.FatherPK)

	// "Newland, South" hangs off the matched old node for "Newland".
	south := findInstruction(t, plan, 34)
	assert.Equal(t, "South", south.Name)
	require.NotNil(t, south.FatherPK)
	assert.Equal(t, 10, *south.FatherPK)
}

func TestComputeUpdatesMatchedNodes(t *testing.T) {
	plan, err := Compute(compileInputs(t), nil)
	require.NoError(t, err)

	// Oldland keeps its name; the classification's name is recorded as
	// the historical name.
	oldland := findInstruction(t, plan, 10)
	assert.True(t, oldland.Active)
	assert.Equal(t, "Oldland", oldland.Name)
	assert.Equal(t, "Newland", oldland.HName)
	assert.Nil(t, oldland.FatherPK)

	northish := findInstruction(t, plan, 11)
	assert.True(t, northish.Active)
	assert.Equal(t, "North", northish.HName)
	require.NotNil(t, northish.FatherPK)
	assert.Equal(t, 10, *northish.FatherPK)
}

func TestComputeRetiresAndMigrates(t *testing.T) {
	plan, err := Compute(compileInputs(t), nil)
	require.NoError(t, err)

	// Southlike's single leaf survives inside "Newland, South": retired
	// with a replacement pointer at the freshly inserted family.
	southlike := findInstruction(t, plan, 14)
	assert.False(t, southlike.Active)
	require.NotNil(t, southlike.Replacement)
	assert.Equal(t, 34, *southlike.Replacement)

	// No counterpart at all: retired without replacement.
	forgotten := findInstruction(t, plan, 13)
	assert.False(t, forgotten.Active)
	assert.Nil(t, forgotten.Replacement)

	dead := findInstruction(t, plan, 12)
	assert.False(t, dead.Active)
	assert.Nil(t, dead.Replacement)
}

func TestComputeRelinksLeaves(t *testing.T) {
	plan, err := Compute(compileInputs(t), nil)
	require.NoError(t, err)

	alpha := findLeafUpdate(t, plan, 1)
	require.NotNil(t, alpha.FatherPK)
	assert.Equal(t, 11, *alpha.FatherPK)

	gamma := findLeafUpdate(t, plan, 3)
	require.NotNil(t, gamma.FatherPK)
	assert.Equal(t, 34, *gamma.FatherPK)

	// The dissolved singleton family leaves its name behind as the
	// isolate's historical name.
	loner := findLeafUpdate(t, plan, 5)
	assert.Nil(t, loner.FatherPK)
	assert.Equal(t, "Loner Family", loner.HName)

	// Leaves of the brand-new family attach to its new pk.
	oldfresh := findLeafUpdate(t, plan, 8)
	require.NotNil(t, oldfresh.FatherPK)
	assert.Equal(t, 33, *oldfresh.FatherPK)

	// A spurious entry stays unparented.
	ghost := findLeafUpdate(t, plan, 32)
	assert.Nil(t, ghost.FatherPK)
	assert.Equal(t, tree.StatusSpurious, ghost.Status)
}

func TestComputeRetiresLegacyPrivateCodes(t *testing.T) {
	plan, err := Compute(compileInputs(t), nil)
	require.NoError(t, err)

	gone := findInstruction(t, plan, 7)
	assert.False(t, gone.Active)
	assert.Equal(t, tree.StatusRetired, gone.Status)
	assert.Nil(t, gone.FatherPK)
}

func TestComputeParentBeforeChild(t *testing.T) {
	in := compileInputs(t)
	plan, err := Compute(in, nil)
	require.NoError(t, err)

	// Any reference to a newly allocated pk must point at an instruction
	// emitted earlier in the stream.
	emitted := map[int]bool{}
	for _, instr := range plan.Instructions {
		if instr.FatherPK != nil && *instr.FatherPK > in.Snapshot.MaxPK {
			assert.True(t, emitted[*instr.FatherPK], "pk %d references father %d before its insert", instr.PK, *instr.FatherPK)
		}
		if instr.Replacement != nil && *instr.Replacement > in.Snapshot.MaxPK {
			assert.True(t, emitted[*instr.Replacement], "pk %d references replacement %d before its insert", instr.PK, *instr.Replacement)
		}
		emitted[instr.PK] = true
	}
}

func TestComputeCoversEveryLeaf(t *testing.T) {
	in := compileInputs(t)
	plan, err := Compute(in, nil)
	require.NoError(t, err)

	// Every parsed leaf ends up with exactly one re-link instruction,
	// at either its old pk or a freshly allocated one; the only other
	// language-level entries are the inserts and the legacy sweep.
	want := map[int]bool{}
	for _, code := range in.Classification.Codes() {
		if pk, known := in.Snapshot.Codes[code]; known {
			want[pk] = true
		}
	}
	got := map[int]int{}
	for _, instr := range plan.Instructions {
		if instr.Level == tree.LevelLanguage {
			got[instr.PK]++
		}
	}
	for pk := range want {
		assert.Equal(t, 1, got[pk], "leaf pk %d", pk)
	}
	// Inserted leaves carry two entries (insert + re-link), the legacy
	// retirement one.
	assert.Equal(t, 2, got[31])
	assert.Equal(t, 2, got[32])
	assert.Equal(t, 1, got[7])
}

func TestComputeRunID(t *testing.T) {
	plan, err := Compute(compileInputs(t), nil)
	require.NoError(t, err)

	id, err := uuid.Parse(plan.RunID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestComputeProgressLines(t *testing.T) {
	var lines []string
	logf := func(format string, args ...any) {
		lines = append(lines, strings.Fields(format)[0])
	}
	_, err := Compute(compileInputs(t), logf)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, prefix := range lines {
		counts[prefix]++
	}
	assert.Equal(t, 4, counts["++"], "two languages, two families")
	assert.Equal(t, 1, counts["~~"])
	assert.Equal(t, 2, counts["--"])
}

func TestComputeGolden(t *testing.T) {
	pol, err := policy.Default()
	require.NoError(t, err)
	cls := lff.New(pol)
	require.NoError(t, cls.Parse(strings.NewReader("Newfoo\n  Alpha [aaa]\n  Beta [bbb]\n"), "lff-test.txt"))
	aliases := cls.Collapse()
	names := cls.NamesIndex()

	plan, err := Compute(Inputs{
		Classification: cls,
		Aliases:        aliases,
		Names:          names,
		Snapshot: &snapshot.Snapshot{
			Codes: map[string]int{"aaa": 1, "bbb": 2},
			MaxPK: 10,
			Names: map[int]string{1: "Alpha", 2: "Beta", 10: "Foo"},
			Nodes: []snapshot.Node{
				{PK: 10, Name: "Foo", Level: "family", Leaves: tree.NewLeafSet("aaa", "bbb")},
			},
		},
		Policy: pol,
	}, nil)
	require.NoError(t, err)

	data, err := plan.MarshalInstructions()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "rename_plan", data)
}
