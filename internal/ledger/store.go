// Package ledger records every artifact mutation a stage operation applies
// and replays duplicates instead of re-applying them.
//
// The ledger is an append-only SQLite table keyed by (ticket, scope,
// idempotency_key). Entries are never updated or deleted; they are the audit
// trail later stages consume. The [Applier] is the single writer for
// artifact mutations: every structured operation funnels through it.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Entry is one immutable ledger row.
type Entry struct {
	ID             int64
	Ticket         string
	Scope          string
	IdempotencyKey string
	Type           string
	PayloadHash    string
	Outcome        string
	InvocationID   string
	AppliedAt      string
}

// Store is the SQLite-backed action ledger.
type Store struct {
	db *sql.DB

	// Now stamps AppliedAt. Tests may replace it.
	Now func() time.Time
}

// Open opens (creating if needed) the ledger database at the given path and
// applies any pending schema migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, Now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the entry recorded under the given key, if any.
func (s *Store) Lookup(ctx context.Context, ticket, scope, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ticket, scope, idempotency_key, action_type, payload_hash, outcome, invocation_id, applied_at
		 FROM ledger_entries WHERE ticket=? AND scope=? AND idempotency_key=?`,
		ticket, scope, key)
	var e Entry
	err := row.Scan(&e.ID, &e.Ticket, &e.Scope, &e.IdempotencyKey, &e.Type,
		&e.PayloadHash, &e.Outcome, &e.InvocationID, &e.AppliedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return &e, nil
}

// Entries returns every entry for a ticket in application order.
func (s *Store) Entries(ctx context.Context, ticket string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ticket, scope, idempotency_key, action_type, payload_hash, outcome, invocation_id, applied_at
		 FROM ledger_entries WHERE ticket=? ORDER BY id`, ticket)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Ticket, &e.Scope, &e.IdempotencyKey, &e.Type,
			&e.PayloadHash, &e.Outcome, &e.InvocationID, &e.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to read ledger: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// append inserts one entry per record inside a single transaction, so a
// cancelled invocation leaves either all of its entries or none.
func (s *Store) append(ctx context.Context, entries []Entry, records []ActionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to open ledger transaction: %w", err)
	}
	defer tx.Rollback()

	for i, e := range entries {
		payload, err := json.Marshal(records[i])
		if err != nil {
			return fmt.Errorf("failed to encode ledger payload: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ledger_entries
			 (ticket, scope, idempotency_key, action_type, payload_hash, payload, outcome, invocation_id, applied_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Ticket, e.Scope, e.IdempotencyKey, e.Type, e.PayloadHash,
			string(payload), e.Outcome, e.InvocationID, e.AppliedAt)
		if err != nil {
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}
	}
	return tx.Commit()
}

func migrate(db *sql.DB) error {
	files, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if !f.IsDir() {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	var current int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			return fmt.Errorf("invalid migration filename %s: %w", name, err)
		}
		if version <= current {
			continue
		}
		data, err := migrationsFS.ReadFile("sql/" + name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(data)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, version); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
		current = version
	}
	return tx.Commit()
}
