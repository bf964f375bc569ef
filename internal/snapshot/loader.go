package snapshot

import (
	"context"

	"github.com/lingdb/treesync/internal/tree"
)

// Node is an internal node of the old tree together with its computed
// leaf-set. A node with an empty leaf-set is not a matching candidate;
// the engine retires it directly.
type Node struct {
	PK       int
	Name     string
	Level    string
	FatherPK *int
	Leaves   tree.LeafSet
}

// Snapshot is the old classification, fully materialized. It is an
// immutable input to the matcher; the engine owns no database handle and
// no shared mutable state beyond its own working maps.
type Snapshot struct {
	ActiveOnly bool

	// Codes maps external code (hid) to languoid pk.
	Codes map[string]int

	// MaxPK is the highest pk in use; new nodes are numbered past it.
	MaxPK int

	// Names maps pk to display name, for report lines and updates.
	Names map[int]string

	// Nodes are the internal nodes in ascending pk order.
	Nodes []Node

	// Legacy are the leaves carrying private NOCODE identifiers.
	Legacy []LeafRow
}

// Load materializes the snapshot, computing every internal node's
// leaf-set by closure lookup.
func Load(ctx context.Context, s *Store, activeOnly bool) (*Snapshot, error) {
	codes, err := s.Codes(ctx)
	if err != nil {
		return nil, err
	}
	maxPK, err := s.MaxPK(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.InternalNodes(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	legacy, err := s.LegacyNocodeLeaves(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ActiveOnly: activeOnly,
		Codes:      codes,
		MaxPK:      maxPK,
		Names:      names,
		Nodes:      make([]Node, 0, len(rows)),
		Legacy:     legacy,
	}
	for _, row := range rows {
		hids, err := s.LeafHIDs(ctx, row.PK)
		if err != nil {
			return nil, err
		}
		snap.Nodes = append(snap.Nodes, Node{
			PK:       row.PK,
			Name:     row.Name,
			Level:    row.Level,
			FatherPK: row.FatherPK,
			Leaves:   tree.NewLeafSet(hids...),
		})
	}
	return snap, nil
}
