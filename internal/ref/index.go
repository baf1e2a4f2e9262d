package ref

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createRefsTable = `
CREATE TABLE IF NOT EXISTS resolved_refs (
	ref         TEXT PRIMARY KEY,
	resolved_id TEXT NOT NULL,
	resolved_at TEXT NOT NULL
)`

// Index maps exact ref strings to the immutable identifier they resolved
// to. It lives as refs.db inside the cache root so a movable revision
// (branch, tag) resolves without network access once pinned.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if needed) the ref index at the given OS path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ref index %s: %w", path, err)
	}
	if _, err := db.Exec(createRefsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init ref index: %w", err)
	}
	return &Index{db: db}, nil
}

// Lookup returns the recorded immutable id for a ref string.
func (ix *Index) Lookup(raw string) (string, bool, error) {
	var id string
	err := ix.db.QueryRow(`SELECT resolved_id FROM resolved_refs WHERE ref = ?`, raw).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup ref %q: %w", raw, err)
	}
	return id, true, nil
}

// Record stores or refreshes the pinned id for a ref string.
func (ix *Index) Record(raw, id string) error {
	_, err := ix.db.Exec(
		`INSERT INTO resolved_refs (ref, resolved_id, resolved_at) VALUES (?, ?, ?)
		 ON CONFLICT(ref) DO UPDATE SET resolved_id = excluded.resolved_id, resolved_at = excluded.resolved_at`,
		raw, id, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record ref %q: %w", raw, err)
	}
	return nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}
