package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// InconsistencyCode categorizes data inconsistencies between the two
// classifications.
type InconsistencyCode string

const (
	// CodeEmptyLeafSet indicates a new-classification family whose leaves
	// are all unknown to the old tree.
	CodeEmptyLeafSet InconsistencyCode = "EMPTY_LEAFSET"

	// CodeDuplicateLeafSet indicates more than two new-classification
	// branches sharing one leaf-set, or a duplicate that is not an
	// unclassified subtree of its partner.
	CodeDuplicateLeafSet InconsistencyCode = "DUPLICATE_LEAFSET"

	// CodeExcessNodes indicates more than two old nodes sharing a
	// leaf-set that is duplicated in the new classification.
	CodeExcessNodes InconsistencyCode = "EXCESS_NODES"

	// CodeUnclassifiedParent indicates the two old nodes of a duplicated
	// leaf-set are not in the required parent/child relation.
	CodeUnclassifiedParent InconsistencyCode = "UNCLASSIFIED_PARENT"

	// CodeDuplicateMatch indicates two old nodes confirmed-matched to the
	// same new branch.
	CodeDuplicateMatch InconsistencyCode = "DUPLICATE_MATCH"

	// CodeUnclassifiedInsert indicates a to-be-inserted branch whose leaf
	// tuple collides with an old node outside the unclassified-subtree
	// special case.
	CodeUnclassifiedInsert InconsistencyCode = "UNCLASSIFIED_INSERT"

	// CodeMissingParent indicates a branch referencing a parent or
	// replacement that was never assigned an id.
	CodeMissingParent InconsistencyCode = "MISSING_PARENT"
)

// Inconsistency is a fatal mismatch between the two classifications. It
// is not recoverable by the engine: the operator must resolve the data by
// hand before re-running.
type Inconsistency struct {
	Code    InconsistencyCode
	Message string
	Leaves  []string
	NodePKs []int
}

func (e *Inconsistency) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(e.NodePKs) > 0 {
		pks := make([]string, len(e.NodePKs))
		for i, pk := range e.NodePKs {
			pks[i] = fmt.Sprintf("%d", pk)
		}
		msg += fmt.Sprintf(" (nodes %s)", strings.Join(pks, ", "))
	}
	if len(e.Leaves) > 0 {
		n := len(e.Leaves)
		sample := e.Leaves
		if n > 5 {
			sample = sample[:5]
		}
		msg += fmt.Sprintf(" (leaves %s", strings.Join(sample, ", "))
		if n > 5 {
			msg += fmt.Sprintf(" … %d total", n)
		}
		msg += ")"
	}
	return msg
}

// IsInconsistency reports whether err is (or wraps) an Inconsistency.
func IsInconsistency(err error) bool {
	var inc *Inconsistency
	return errors.As(err, &inc)
}
