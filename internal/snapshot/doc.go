// Package snapshot reads the old classification out of the relational
// store into an immutable in-memory value. The reconciliation engine
// never touches the database: it consumes the Snapshot and nothing else.
//
// The store speaks to two backends behind one Open: an SQLite dump of the
// languoid schema (the common case for offline runs) or a live Postgres
// database via a postgres:// DSN.
package snapshot
