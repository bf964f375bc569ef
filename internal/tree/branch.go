package tree

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// branchSep separates path components in map keys. Family names contain
// commas and spaces but never control characters.
const branchSep = "\x1f"

// Branch is an ordered ancestor-name path from a root family down to (but
// not including) a leaf. A nil or empty Branch denotes an isolate: a leaf
// with no family affiliation.
type Branch []string

// NewBranch normalizes each component and returns the resulting path.
func NewBranch(components ...string) Branch {
	if len(components) == 0 {
		return nil
	}
	b := make(Branch, len(components))
	for i, c := range components {
		b[i] = NormalizeName(c)
	}
	return b
}

// Name returns the branch's own name (its last component), or "" for an
// isolate.
func (b Branch) Name() string {
	if len(b) == 0 {
		return ""
	}
	return b[len(b)-1]
}

// Parent returns the path without its last component. The parent of a
// root-level branch is nil.
func (b Branch) Parent() Branch {
	if len(b) <= 1 {
		return nil
	}
	return b[:len(b)-1]
}

// Prefix returns the first n components of the path.
func (b Branch) Prefix(n int) Branch {
	return b[:n]
}

// IsIsolate reports whether the branch denotes no family at all.
func (b Branch) IsIsolate() bool {
	return len(b) == 0
}

// Key returns a stable map key for the path.
func (b Branch) Key() string {
	return strings.Join(b, branchSep)
}

// String renders the path the way the classification files write it.
func (b Branch) String() string {
	return strings.Join(b, ", ")
}

// Equal reports component-wise equality.
func (b Branch) Equal(o Branch) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if b[i] != o[i] {
			return false
		}
	}
	return true
}

// Less orders branches shortest path first, then lexicographically by
// component. This is the breadth-first order used when emitting new family
// nodes, so a parent is always assigned an id before any of its children.
func (b Branch) Less(o Branch) bool {
	if len(b) != len(o) {
		return len(b) < len(o)
	}
	for i := range b {
		if b[i] != o[i] {
			return b[i] < o[i]
		}
	}
	return false
}

// NormalizeName canonicalizes a name from the classification files:
// underscores become spaces, surrounding whitespace is dropped, and the
// result is NFC-normalized so equal names compare equal byte-wise.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
}
