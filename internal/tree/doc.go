// Package tree defines the records shared by the classification parser,
// the snapshot loader and the reconciliation engine: branches (ancestor
// paths in the new classification), leaf-sets (the code sets that identify
// taxonomic groups), and the migration instructions the engine emits.
//
// All three are value types. A LeafSet is immutable after construction and
// a Branch is never mutated in place; instructions are created once by the
// compiler and never touched afterwards.
package tree
