package lff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingdb/treesync/internal/policy"
	"github.com/lingdb/treesync/internal/tree"
)

func newClassification(t *testing.T) *Classification {
	t.Helper()
	pol, err := policy.Default()
	require.NoError(t, err)
	return New(pol)
}

func parse(t *testing.T, c *Classification, src string) {
	t.Helper()
	require.NoError(t, c.Parse(strings.NewReader(src), "test.txt"))
}

const sampleLFF = `Narrow_Bantu, Central
  Zulu [zul]
  Xhosa [xho]
Narrow_Bantu, Northeast
  Swahili [swh]
Basque_Family
  Basque [eus]
`

func TestParseAttachesLeavesToBranches(t *testing.T) {
	c := newClassification(t)
	parse(t, c, sampleLFF)

	lang, ok := c.Language("zul")
	require.True(t, ok)
	assert.Equal(t, tree.Branch{"Narrow Bantu", "Central"}, lang.Branch)
	assert.Equal(t, tree.StatusEstablished, lang.Status)
	assert.Equal(t, "Zulu", lang.Name)

	fam, ok := c.Family(tree.Branch{"Narrow Bantu", "Central"})
	require.True(t, ok)
	assert.Equal(t, map[string]string{"zul": "Zulu", "xho": "Xhosa"}, fam.Leaves)
}

func TestParseAccumulatesAncestorPrefixes(t *testing.T) {
	c := newClassification(t)
	parse(t, c, sampleLFF)

	// The root family implicitly contains every descendant's leaves.
	root, ok := c.Family(tree.Branch{"Narrow Bantu"})
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"zul", "xho", "swh"}, root.LeafSet().Codes())

	// Ancestor inclusion: every branch's leaf-map is a superset of every
	// descendant branch's leaf-map.
	for _, fam := range c.Families() {
		for i := 1; i < len(fam.Branch); i++ {
			ancestor, ok := c.Family(fam.Branch.Prefix(i))
			require.True(t, ok)
			assert.True(t, fam.LeafSet().SubsetOf(ancestor.LeafSet()),
				"branch %q not contained in ancestor %q", fam.Branch, ancestor.Branch)
		}
	}
}

func TestParseIsIdempotent(t *testing.T) {
	once := newClassification(t)
	parse(t, once, sampleLFF)

	twice := newClassification(t)
	parse(t, twice, sampleLFF)
	parse(t, twice, sampleLFF)

	require.Equal(t, len(once.Families()), len(twice.Families()))
	for _, fam := range once.Families() {
		again, ok := twice.Family(fam.Branch)
		require.True(t, ok)
		assert.Equal(t, fam.Leaves, again.Leaves)
	}
	assert.Equal(t, once.Codes(), twice.Codes())
}

func TestParseMergesTwoFiles(t *testing.T) {
	c := newClassification(t)
	parse(t, c, "Family_A\n  One [aaa]\n")
	parse(t, c, "Family_A\n  Two [bbb]\nFamily_B\n  Three [ccc]\n")

	fam, ok := c.Family(tree.Branch{"Family A"})
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"aaa", "bbb"}, fam.LeafSet().Codes())
	assert.Len(t, c.Families(), 2)
}

func TestParseCodeCleanup(t *testing.T) {
	c := newClassification(t)
	parse(t, c, "Family_A\n  Weird [\\\"aaa\\\"]\n  Private [NOCODE-Foo-bar]\n")

	assert.True(t, c.HasCode("aaa"))
	assert.True(t, c.HasCode("NOCODE_Foo-bar"))
}

func TestParseRejectsMalformedCodes(t *testing.T) {
	for _, src := range []string{
		"Family_A\n  Bad [ab]\n",
		"Family_A\n  Bad [abcd]\n",
		"Family_A\n  Bad []\n",
		"Family_A\n  Bad [NOCODE_]\n",
		"Family_A\n  NoBracket\n",
	} {
		c := newClassification(t)
		err := c.Parse(strings.NewReader(src), "bad.txt")
		require.Error(t, err, "source %q", src)
		assert.True(t, IsParseError(err))
		var pe *ParseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "bad.txt", pe.File)
		assert.Equal(t, 2, pe.Line)
	}
}

func TestParseRejectsDuplicateCodeInBranch(t *testing.T) {
	c := newClassification(t)
	err := c.Parse(strings.NewReader("Family_A\n  One [aaa]\n  Other [aaa]\n"), "dup.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate code")
}

func TestParseRejectsLeafBeforeHeader(t *testing.T) {
	c := newClassification(t)
	err := c.Parse(strings.NewReader("  Stray [aaa]\n"), "stray.txt")
	require.Error(t, err)
	assert.True(t, IsParseError(err))
}

func TestParseNameMapSubstitution(t *testing.T) {
	c := newClassification(t)
	parse(t, c, "Unclassifiable, Maybe_Bantu\n  Mystery [xyz]\n")

	lang, ok := c.Language("xyz")
	require.True(t, ok)
	assert.Equal(t, tree.Branch{"Unclassified"}, lang.Branch)
	assert.Equal(t, tree.StatusEstablished, lang.Status)
	// The dropped chain survives as the classification comment.
	assert.Equal(t, "Maybe Bantu", lang.Comment)
}

func TestParseSpuriousMarker(t *testing.T) {
	c := newClassification(t)
	parse(t, c, "Spurious, Ghost_Family\n  Ghost [gho]\n")

	lang, ok := c.Language("gho")
	require.True(t, ok)
	assert.Equal(t, tree.Branch{"Ghost Family"}, lang.Branch)
	assert.Equal(t, tree.StatusSpurious, lang.Status)
}

func TestParseSpuriousRetiredMarker(t *testing.T) {
	c := newClassification(t)
	parse(t, c, "Spurious, Retired\n  Gone [gon]\n")

	lang, ok := c.Language("gon")
	require.True(t, ok)
	assert.True(t, lang.Branch.IsIsolate())
	assert.Equal(t, tree.StatusSpurious.WithRetired(), lang.Status)
}

func TestParseSpeechRegisterMarker(t *testing.T) {
	c := newClassification(t)
	parse(t, c, "Speech_Register, Some_Family\n  Formal [for]\n")

	lang, ok := c.Language("for")
	require.True(t, ok)
	assert.Equal(t, tree.Branch{"Some Family"}, lang.Branch)
	assert.Equal(t, tree.StatusEstablished, lang.Status)
	assert.Equal(t, "speech register", lang.Comment)
}

func TestParseUnattestedWithoutChainIsNotIsolate(t *testing.T) {
	// An unattested language without classification is filed under
	// "Unclassified", never modeled as an isolate.
	c := newClassification(t)
	parse(t, c, "Unattested\n  Lost [los]\n")

	lang, ok := c.Language("los")
	require.True(t, ok)
	assert.Equal(t, tree.Branch{"Unclassified"}, lang.Branch)
	assert.Equal(t, tree.StatusUnattested, lang.Status)

	_, ok = c.Family(tree.Branch{"Unclassified"})
	assert.True(t, ok)
}

func TestParseUnattestedWithChain(t *testing.T) {
	c := newClassification(t)
	parse(t, c, "Unattested, Arawakan, Northern\n  Shadow [sha]\n")

	lang, ok := c.Language("sha")
	require.True(t, ok)
	assert.Equal(t, tree.Branch{"Arawakan", "Northern"}, lang.Branch)
	assert.Equal(t, tree.StatusUnattested, lang.Status)
}

func TestNamesIndex(t *testing.T) {
	c := newClassification(t)
	parse(t, c, sampleLFF)
	c.Collapse()

	names := c.NamesIndex()
	require.Len(t, names["Central"], 1)
	assert.Equal(t, tree.Branch{"Narrow Bantu", "Central"}, names["Central"][0])
	// The collapsed Basque family is gone from the index.
	assert.Empty(t, names["Basque Family"])
}
