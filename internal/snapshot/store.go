package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Store wraps read access to the languoid schema: the languoid and
// language tables plus the transitive-closure table over the parent
// relation.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open connects to the snapshot source. A target starting with
// postgres:// or postgresql:// is treated as a pgx DSN; anything else is
// an SQLite file path.
func Open(target string) (*Store, error) {
	postgres := strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://")

	driver := "sqlite3"
	if postgres {
		driver = "pgx"
	}
	db, err := sql.Open(driver, target)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot source: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to snapshot source: %w", err)
	}

	if !postgres {
		// Read path only, but keep SQLite polite about lock contention.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma: %w", err)
		}
	}

	return &Store{db: db, postgres: postgres}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// bind rewrites ? placeholders to $n for the Postgres backend.
func (s *Store) bind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Codes returns hid -> pk for every languoid carrying an external code.
func (s *Store) Codes(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ll.hid, l.pk
		FROM languoid AS ll, language AS l
		WHERE ll.pk = l.pk AND ll.hid IS NOT NULL
		ORDER BY l.pk ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query codes: %w", err)
	}
	defer rows.Close()

	codes := map[string]int{}
	for rows.Next() {
		var hid string
		var pk int
		if err := rows.Scan(&hid, &pk); err != nil {
			return nil, fmt.Errorf("scan codes: %w", err)
		}
		codes[hid] = pk
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate codes: %w", err)
	}
	return codes, nil
}

// MaxPK returns the highest languoid pk; new nodes are numbered past it.
func (s *Store) MaxPK(ctx context.Context) (int, error) {
	var pk int
	err := s.db.QueryRowContext(ctx,
		"SELECT pk FROM languoid ORDER BY pk DESC LIMIT 1").Scan(&pk)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("snapshot contains no languoids")
	}
	if err != nil {
		return 0, fmt.Errorf("query max pk: %w", err)
	}
	return pk, nil
}

// Names returns pk -> display name for every language row.
func (s *Store) Names(ctx context.Context) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT pk, name FROM language ORDER BY pk ASC")
	if err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	defer rows.Close()

	names := map[int]string{}
	for rows.Next() {
		var pk int
		var name string
		if err := rows.Scan(&pk, &name); err != nil {
			return nil, fmt.Errorf("scan names: %w", err)
		}
		names[pk] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}
	return names, nil
}

// NodeRow is one internal node of the old tree.
type NodeRow struct {
	PK       int
	Name     string
	Level    string // empty when the level column is null
	FatherPK *int
}

// InternalNodes returns the reconciliation candidates: family-level
// nodes, plus level-null nodes when activeOnly is false. Level-null
// nodes always have children and are therefore never dialects. With
// activeOnly, only currently active families are considered.
func (s *Store) InternalNodes(ctx context.Context, activeOnly bool) ([]NodeRow, error) {
	query := `
		SELECT l.pk, l.name, ll.level, ll.father_pk
		FROM languoid AS ll, language AS l
		WHERE ll.pk = l.pk AND (ll.level = 'family' OR ll.level IS NULL)
		ORDER BY l.pk ASC
	`
	if activeOnly {
		query = `
			SELECT l.pk, l.name, ll.level, ll.father_pk
			FROM languoid AS ll, language AS l
			WHERE ll.pk = l.pk AND ll.level = 'family' AND l.active = TRUE
			ORDER BY l.pk ASC
		`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query internal nodes: %w", err)
	}
	defer rows.Close()

	var nodes []NodeRow
	for rows.Next() {
		var n NodeRow
		var level sql.NullString
		var father sql.NullInt64
		if err := rows.Scan(&n.PK, &n.Name, &level, &father); err != nil {
			return nil, fmt.Errorf("scan internal node: %w", err)
		}
		n.Level = level.String
		if father.Valid {
			f := int(father.Int64)
			n.FatherPK = &f
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate internal nodes: %w", err)
	}
	return nodes, nil
}

// LeafHIDs returns the codes of all non-provisional coded descendants of
// a node, via the tree-closure table.
func (s *Store) LeafHIDs(ctx context.Context, pk int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT DISTINCT l.hid
		FROM treeclosuretable AS t, languoid AS l
		WHERE t.child_pk = l.pk
		  AND t.parent_pk = ?
		  AND l.hid IS NOT NULL
		  AND l.status != 'provisional'
		ORDER BY l.hid ASC
	`), pk)
	if err != nil {
		return nil, fmt.Errorf("query leaf hids: %w", err)
	}
	defer rows.Close()

	var hids []string
	for rows.Next() {
		var hid string
		if err := rows.Scan(&hid); err != nil {
			return nil, fmt.Errorf("scan leaf hid: %w", err)
		}
		hids = append(hids, hid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaf hids: %w", err)
	}
	return hids, nil
}

// LeafRow is a leaf languoid carrying a legacy private code.
type LeafRow struct {
	PK  int
	HID string
}

// LegacyNocodeLeaves returns leaves using the legacy private-code naming
// convention; ones no longer present in a parse get retired.
func (s *Store) LegacyNocodeLeaves(ctx context.Context) ([]LeafRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.pk, ll.hid
		FROM languoid AS ll, language AS l
		WHERE ll.pk = l.pk AND ll.hid LIKE '%NOCODE_%'
		ORDER BY l.pk ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query legacy leaves: %w", err)
	}
	defer rows.Close()

	var leaves []LeafRow
	for rows.Next() {
		var l LeafRow
		if err := rows.Scan(&l.PK, &l.HID); err != nil {
			return nil, fmt.Errorf("scan legacy leaf: %w", err)
		}
		leaves = append(leaves, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy leaves: %w", err)
	}
	return leaves, nil
}
