// Package replayindex implements the optional side index of a written
// trace: thread ID to ThreadEvents block offset, and function-entry
// offsets within that stream. Neither this module nor its own tests ever
// read it back for replay (that is an offline viewer's job, named by
// internal/collab.TraceReader) — it exists purely so an external query
// tool can jump straight to a thread's event stream or a function's call
// sites without scanning the whole trace file.
//
// It is deliberately database/sql-uniform: the same SQL (modulo
// placeholder syntax) runs against SQLite by default and against
// PostgreSQL when the configured DSN names one, the way the teacher's
// queue and storage packages each sit behind a small interface backed by
// a specific driver.
package replayindex

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register "pgx" driver with database/sql
	_ "modernc.org/sqlite"              // register "sqlite" driver with database/sql
)

// Index is an open replay side index. It is safe for concurrent use to the
// extent *sql.DB is.
type Index struct {
	db     *sql.DB
	driver string // "sqlite" or "pgx"
}

// IsPostgresDSN reports whether dsn names a PostgreSQL connection rather
// than a SQLite file path, by checking for the standard PostgreSQL URI
// schemes.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open opens the side index named by dsn, creating its schema if absent.
// dsn is a SQLite file path (or ":memory:") unless IsPostgresDSN reports
// true, in which case it is treated as a PostgreSQL connection string.
func Open(ctx context.Context, dsn string) (*Index, error) {
	driver := "sqlite"
	if IsPostgresDSN(dsn) {
		driver = "pgx"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("replayindex: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// SQLite allows only one writer at a time; one connection avoids
		// "database is locked" errors under concurrent indexing.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("replayindex: ping: %w", err)
	}

	idx := &Index{db: db, driver: driver}
	if err := idx.applySchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) applySchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS thread_offsets (
			thread_id    BIGINT PRIMARY KEY,
			block_offset BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS function_entries (
			thread_id   BIGINT NOT NULL,
			function_id BIGINT NOT NULL,
			offset      BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_function_entries_lookup
			ON function_entries (thread_id, function_id)`,
	}
	for _, stmt := range stmts {
		if _, err := idx.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("replayindex: apply schema: %w", err)
		}
	}
	return nil
}

// placeholder returns the n-th (1-based) bound-parameter placeholder for
// the active driver: PostgreSQL's pgx driver requires "$1"-style
// placeholders, SQLite accepts "?".
func (idx *Index) placeholder(n int) string {
	if idx.driver == "pgx" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// IndexThreadOffset records blockOffset as threadID's ThreadEvents block
// start. A thread is expected to have exactly one ThreadEvents block, so a
// second call for the same threadID replaces the first.
func (idx *Index) IndexThreadOffset(ctx context.Context, threadID uint32, blockOffset int64) error {
	var query string
	switch idx.driver {
	case "pgx":
		query = `INSERT INTO thread_offsets (thread_id, block_offset) VALUES ($1, $2)
			ON CONFLICT (thread_id) DO UPDATE SET block_offset = EXCLUDED.block_offset`
	default:
		query = `INSERT INTO thread_offsets (thread_id, block_offset) VALUES (?, ?)
			ON CONFLICT (thread_id) DO UPDATE SET block_offset = excluded.block_offset`
	}
	if _, err := idx.db.ExecContext(ctx, query, threadID, blockOffset); err != nil {
		return fmt.Errorf("replayindex: index thread offset: %w", err)
	}
	return nil
}

// ThreadBlockOffset returns the ThreadEvents block offset recorded for
// threadID, and false if none has been indexed.
func (idx *Index) ThreadBlockOffset(ctx context.Context, threadID uint32) (int64, bool, error) {
	query := fmt.Sprintf(`SELECT block_offset FROM thread_offsets WHERE thread_id = %s`, idx.placeholder(1))
	var offset int64
	err := idx.db.QueryRowContext(ctx, query, threadID).Scan(&offset)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("replayindex: thread block offset: %w", err)
	}
	return offset, true, nil
}

// IndexFunctionEntry records one call to functionID on threadID at offset
// (the byte offset, within that thread's event stream, of the
// FunctionStart event). A function may be called many times, so entries
// accumulate rather than replace.
func (idx *Index) IndexFunctionEntry(ctx context.Context, threadID uint32, functionID uint64, offset int64) error {
	query := fmt.Sprintf(
		`INSERT INTO function_entries (thread_id, function_id, offset) VALUES (%s, %s, %s)`,
		idx.placeholder(1), idx.placeholder(2), idx.placeholder(3))
	if _, err := idx.db.ExecContext(ctx, query, threadID, functionID, offset); err != nil {
		return fmt.Errorf("replayindex: index function entry: %w", err)
	}
	return nil
}

// FunctionEntries returns every recorded call-site offset for functionID
// on threadID, in ascending offset order.
func (idx *Index) FunctionEntries(ctx context.Context, threadID uint32, functionID uint64) ([]int64, error) {
	query := fmt.Sprintf(
		`SELECT offset FROM function_entries WHERE thread_id = %s AND function_id = %s ORDER BY offset`,
		idx.placeholder(1), idx.placeholder(2))
	rows, err := idx.db.QueryContext(ctx, query, threadID, functionID)
	if err != nil {
		return nil, fmt.Errorf("replayindex: function entries: %w", err)
	}
	defer rows.Close()

	var offsets []int64
	for rows.Next() {
		var offset int64
		if err := rows.Scan(&offset); err != nil {
			return nil, fmt.Errorf("replayindex: scan function entry: %w", err)
		}
		offsets = append(offsets, offset)
	}
	return offsets, rows.Err()
}

// ThreadIDs returns every thread ID that has an indexed ThreadEvents block
// offset, in no particular order. cmd/seectrace-selftest uses this to
// discover which threads it can validate the chain of without already
// knowing the trace's thread set.
func (idx *Index) ThreadIDs(ctx context.Context) ([]uint32, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT thread_id FROM thread_offsets`)
	if err != nil {
		return nil, fmt.Errorf("replayindex: thread IDs: %w", err)
	}
	defer rows.Close()

	var ids []uint32
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("replayindex: scan thread ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}
