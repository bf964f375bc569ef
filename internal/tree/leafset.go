package tree

import (
	"sort"
	"strings"
)

// LeafSet is an immutable, order-independent set of leaf codes. Two groups
// in different classifications denote the same taxon with high probability
// when their leaf-sets are equal or nearly equal; that equivalence is the
// central invariant the matcher exploits.
//
// Codes are held sorted and deduplicated, so the set doubles as the
// canonical "sorted tuple" used for map keys and deterministic ordering.
type LeafSet struct {
	codes []string
}

// NewLeafSet builds a set from the given codes.
func NewLeafSet(codes ...string) LeafSet {
	cs := make([]string, len(codes))
	copy(cs, codes)
	sort.Strings(cs)
	// drop duplicates in place
	n := 0
	for i, c := range cs {
		if i == 0 || c != cs[n-1] {
			cs[n] = c
			n++
		}
	}
	return LeafSet{codes: cs[:n]}
}

// Len returns the number of codes in the set.
func (s LeafSet) Len() int { return len(s.codes) }

// IsEmpty reports whether the set has no codes.
func (s LeafSet) IsEmpty() bool { return len(s.codes) == 0 }

// Codes returns the codes in sorted order. The returned slice is a copy.
func (s LeafSet) Codes() []string {
	cs := make([]string, len(s.codes))
	copy(cs, s.codes)
	return cs
}

// Key returns a stable map key for the sorted code tuple.
func (s LeafSet) Key() string {
	return strings.Join(s.codes, branchSep)
}

// Contains reports whether code is in the set.
func (s LeafSet) Contains(code string) bool {
	i := sort.SearchStrings(s.codes, code)
	return i < len(s.codes) && s.codes[i] == code
}

// SubsetOf reports whether every code in s is also in t.
func (s LeafSet) SubsetOf(t LeafSet) bool {
	if len(s.codes) > len(t.codes) {
		return false
	}
	i, j := 0, 0
	for i < len(s.codes) && j < len(t.codes) {
		switch {
		case s.codes[i] == t.codes[j]:
			i++
			j++
		case s.codes[i] > t.codes[j]:
			j++
		default:
			return false
		}
	}
	return i == len(s.codes)
}

// DiffSize returns |s \ t|, the number of codes in s missing from t.
func (s LeafSet) DiffSize(t LeafSet) int {
	return len(s.codes) - s.IntersectionSize(t)
}

// IntersectionSize returns |s ∩ t|.
func (s LeafSet) IntersectionSize(t LeafSet) int {
	i, j, n := 0, 0, 0
	for i < len(s.codes) && j < len(t.codes) {
		switch {
		case s.codes[i] == t.codes[j]:
			n++
			i++
			j++
		case s.codes[i] < t.codes[j]:
			i++
		default:
			j++
		}
	}
	return n
}

// Equal reports set equality.
func (s LeafSet) Equal(t LeafSet) bool {
	if len(s.codes) != len(t.codes) {
		return false
	}
	for i := range s.codes {
		if s.codes[i] != t.codes[i] {
			return false
		}
	}
	return true
}

// Less orders leaf-sets by ascending size, then lexicographically by the
// sorted code tuple. The matcher scans candidates in this order so reruns
// are reproducible.
func (s LeafSet) Less(t LeafSet) bool {
	if len(s.codes) != len(t.codes) {
		return len(s.codes) < len(t.codes)
	}
	for i := range s.codes {
		if s.codes[i] != t.codes[i] {
			return s.codes[i] < t.codes[i]
		}
	}
	return false
}
