package lff

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lingdb/treesync/internal/policy"
	"github.com/lingdb/treesync/internal/tree"
)

// Branch header markers that set a status instead of naming a family.
const (
	markerSpurious       = "Spurious"
	markerSpeechRegister = "Speech Register"
	markerUnattested     = "Unattested"
	markerRetired        = "Retired"

	// unclassifiedRoot is the branch an unattested language without any
	// classification is filed under. Such languages are not isolates.
	unclassifiedRoot = "Unclassified"
)

// Language records where a leaf is attached in the new classification and
// the status/comment overrides the classification files assign to it. A
// nil Branch means the language has no parent (an isolate).
type Language struct {
	Branch  tree.Branch
	Status  tree.Status
	Name    string
	Comment string
}

// Family is one accumulated branch of the new classification together
// with all leaves at or below it.
type Family struct {
	Branch tree.Branch
	Leaves map[string]string // code -> name
}

// LeafSet returns the family's codes as a leaf-set.
func (f *Family) LeafSet() tree.LeafSet {
	codes := make([]string, 0, len(f.Leaves))
	for code := range f.Leaves {
		codes = append(codes, code)
	}
	return tree.NewLeafSet(codes...)
}

// Classification accumulates families and languages across files. The
// main file and the overflow file are parsed in sequence into the same
// maps; results merge, they never overwrite whole branches.
type Classification struct {
	pol *policy.Policy

	families  map[string]*Family
	famOrder  []string // branch keys, first-seen order
	languages map[string]*Language
	langOrder []string // codes, first-seen order
}

// New returns an empty classification governed by the given policy.
func New(pol *policy.Policy) *Classification {
	return &Classification{
		pol:       pol,
		families:  map[string]*Family{},
		languages: map[string]*Language{},
	}
}

// ParseFile parses one classification file into the accumulating maps.
func (c *Classification) ParseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening classification file: %w", err)
	}
	defer f.Close()
	return c.Parse(f, path)
}

// header is a parsed branch-header line.
type header struct {
	branch  tree.Branch
	status  tree.Status
	comment string
}

// block is one indented group: a header and its leaf lines. Leaf order
// follows the file so downstream passes stay deterministic.
type block struct {
	header
	leaves map[string]string
	order  []string
}

// Parse reads a line-oriented classification stream. Indented leaf lines
// belong to the most recently seen branch header.
func (c *Classification) Parse(r io.Reader, name string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current *block
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "  ") {
			if current == nil {
				return &ParseError{File: name, Line: lineno, Message: "leaf line before any branch header"}
			}
			code, leafName, err := c.parseLeaf(line, name, lineno)
			if err != nil {
				return err
			}
			if _, dup := current.leaves[code]; dup {
				return &ParseError{File: name, Line: lineno, Message: fmt.Sprintf("duplicate code %q in branch %q", code, current.branch)}
			}
			current.leaves[code] = leafName
			current.order = append(current.order, code)
			continue
		}
		if current != nil {
			c.add(current)
		}
		current = &block{header: c.parseHeader(line), leaves: map[string]string{}}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if current != nil {
		c.add(current)
	}
	return nil
}

// parseHeader normalizes a comma-separated ancestor chain and applies the
// pseudo-family and status-marker rules.
func (c *Classification) parseHeader(line string) header {
	parts := strings.Split(line, ",")
	branch := make(tree.Branch, len(parts))
	for i, p := range parts {
		branch[i] = tree.NormalizeName(p)
	}

	if mapped, ok := c.pol.Rename(branch[0]); ok {
		status := tree.StatusEstablished
		if branch[0] == markerUnattested {
			status = tree.StatusUnattested
		}
		return header{
			branch:  tree.Branch{mapped},
			status:  status,
			comment: strings.Join(branch[1:], ", "),
		}
	}

	switch branch[0] {
	case markerSpurious, markerSpeechRegister, markerUnattested:
		var status tree.Status
		comment := ""
		if branch[0] == markerSpeechRegister {
			status = tree.StatusEstablished
			comment = "speech register"
		} else {
			status = tree.Status(strings.ToLower(branch[0]))
		}
		if branch[0] == markerUnattested && len(branch) == 1 {
			// An unattested language without classification is filed under
			// "Unclassified", not treated as an isolate.
			branch = tree.Branch{unclassifiedRoot}
		} else {
			branch = branch[1:]
		}
		if len(branch) > 0 && branch[0] == markerRetired {
			status = status.WithRetired()
			branch = branch[1:]
		}
		return header{branch: branch, status: status, comment: comment}
	}

	return header{branch: branch, status: tree.StatusEstablished}
}

// parseLeaf splits "  Name [code]" and validates the code format.
func (c *Classification) parseLeaf(line, file string, lineno int) (code, name string, err error) {
	name, rest, found := strings.Cut(strings.TrimSpace(line), "[")
	if !found {
		return "", "", &ParseError{File: file, Line: lineno, Message: "leaf line without [code]"}
	}
	code = rest
	if i := strings.Index(code, "]"); i >= 0 {
		code = code[:i]
	}
	code = strings.NewReplacer(`\`, "", `"`, "", `'`, "").Replace(code)
	code = strings.Replace(code, "NOCODE-", "NOCODE_", 1)
	if code == "" {
		return "", "", &ParseError{File: file, Line: lineno, Message: "empty leaf code"}
	}
	if !c.pol.ValidCode(code) {
		return "", "", &ParseError{File: file, Line: lineno, Message: fmt.Sprintf("malformed leaf code %q", code)}
	}
	return code, tree.NormalizeName(name), nil
}

// add merges one parsed block: records every leaf's attachment and folds
// the block's leaves into every prefix of its branch.
func (c *Classification) add(b *block) {
	for _, code := range b.order {
		name := b.leaves[code]
		if _, seen := c.languages[code]; !seen {
			c.langOrder = append(c.langOrder, code)
		}
		c.languages[code] = &Language{
			Branch:  b.branch,
			Status:  b.status,
			Name:    name,
			Comment: b.comment,
		}
	}

	for i := 1; i <= len(b.branch); i++ {
		prefix := b.branch.Prefix(i)
		key := prefix.Key()
		fam, ok := c.families[key]
		if !ok {
			fam = &Family{Branch: prefix, Leaves: map[string]string{}}
			c.families[key] = fam
			c.famOrder = append(c.famOrder, key)
		}
		for code, name := range b.leaves {
			fam.Leaves[code] = name
		}
	}
}

// Families returns the accumulated families in first-seen order.
func (c *Classification) Families() []*Family {
	out := make([]*Family, 0, len(c.famOrder))
	for _, key := range c.famOrder {
		out = append(out, c.families[key])
	}
	return out
}

// Family looks up a branch.
func (c *Classification) Family(b tree.Branch) (*Family, bool) {
	fam, ok := c.families[b.Key()]
	return fam, ok
}

// Codes returns all leaf codes in first-seen order.
func (c *Classification) Codes() []string {
	out := make([]string, len(c.langOrder))
	copy(out, c.langOrder)
	return out
}

// Language looks up a leaf code.
func (c *Classification) Language(code string) (*Language, bool) {
	l, ok := c.languages[code]
	return l, ok
}

// HasCode reports whether the code appears anywhere in the parsed
// classification.
func (c *Classification) HasCode(code string) bool {
	_, ok := c.languages[code]
	return ok
}

// NamesIndex returns a name -> branches multimap over the current
// families. Called after the collapsing pass and before the overflow file
// is parsed, so it covers exactly the multi-leaf families of the main
// classification.
func (c *Classification) NamesIndex() map[string][]tree.Branch {
	names := map[string][]tree.Branch{}
	for _, key := range c.famOrder {
		b := c.families[key].Branch
		names[b.Name()] = append(names[b.Name()], b)
	}
	return names
}
