// Package reconcile computes a migration plan between the old
// classification tree (a snapshot of the relational store) and the new
// classification (the parsed flat files).
//
// The core observation: a branch of the new classification and a node of
// the old tree denote the same taxonomic group with very high probability
// when their leaf-sets are equal or nearly equal. The matcher works
// through exact leaf-set equality, bounded approximate equality, unique
// family names, and superset/intersection containment, in that order;
// whatever remains is retired for manual review.
//
// The whole computation is a single-threaded batch pass over immutable
// inputs. Candidate orderings are fixed (ascending leaf-set size, then
// lexicographic), so reruns over the same inputs are byte-identical.
package reconcile
