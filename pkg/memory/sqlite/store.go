// Package sqlite provides the embedded SQLite-backed [memory.Store]. One
// database file holds preferences, bookmarks, and the RAG corpus, making the
// whole user-memory footprint portable across process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/modernreader/sensoria/pkg/memory"
)

// Compile-time interface checks.
var (
	_ memory.Store           = (*Store)(nil)
	_ memory.PreferenceStore = (*prefStore)(nil)
	_ memory.BookmarkStore   = (*bookmarkStore)(nil)
	_ memory.DocumentStore   = (*docStore)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	user_id TEXT PRIMARY KEY,
	data    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS bookmarks (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id       TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	segment_index INTEGER NOT NULL,
	note          TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bookmarks_user ON bookmarks(user_id);
CREATE TABLE IF NOT EXISTS rag_docs (
	doc_id     TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	meta       TEXT NOT NULL DEFAULT '{}',
	updated_at INTEGER NOT NULL
);
`

// Store is the SQLite-backed memory.Store.
//
// All operations are safe for concurrent use; SQLite serializes writers
// internally and the connection is opened with a busy timeout so concurrent
// writes queue instead of failing.
type Store struct {
	db        *sql.DB
	prefs     *prefStore
	bookmarks *bookmarkStore
	docs      *docStore
}

// New opens (creating if needed) the database file at path and ensures the
// schema exists.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return &Store{
		db:        db,
		prefs:     &prefStore{db: db},
		bookmarks: &bookmarkStore{db: db},
		docs:      &docStore{db: db},
	}, nil
}

func (s *Store) Preferences() memory.PreferenceStore { return s.prefs }
func (s *Store) Bookmarks() memory.BookmarkStore     { return s.bookmarks }
func (s *Store) Documents() memory.DocumentStore     { return s.docs }

// PingContext verifies the database connection, for readiness probes.
func (s *Store) PingContext(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// ─────────────────────────────────────────────────────────────────────────────
// Preferences
// ─────────────────────────────────────────────────────────────────────────────

type prefStore struct{ db *sql.DB }

func (p *prefStore) Get(ctx context.Context, userID string) (memory.Preferences, error) {
	var raw string
	err := p.db.QueryRowContext(ctx,
		`SELECT data FROM preferences WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return memory.DefaultPreferences(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get preferences: %w", err)
	}
	var stored memory.Preferences
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("sqlite store: decode preferences: %w", err)
	}
	return memory.DefaultPreferences().Merge(stored), nil
}

func (p *prefStore) Set(ctx context.Context, userID string, patch memory.Preferences) (memory.Preferences, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: set preferences: %w", err)
	}
	defer tx.Rollback()

	stored := memory.Preferences{}
	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM preferences WHERE user_id = ?`, userID).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("sqlite store: set preferences: %w", err)
	default:
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return nil, fmt.Errorf("sqlite store: decode preferences: %w", err)
		}
	}

	merged := stored.Merge(patch)
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: encode preferences: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO preferences (user_id, data) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET data = excluded.data`,
		userID, string(data)); err != nil {
		return nil, fmt.Errorf("sqlite store: write preferences: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite store: commit preferences: %w", err)
	}
	return memory.DefaultPreferences().Merge(merged), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Bookmarks
// ─────────────────────────────────────────────────────────────────────────────

type bookmarkStore struct{ db *sql.DB }

func (b *bookmarkStore) Append(ctx context.Context, bm memory.Bookmark) error {
	if bm.CreatedAt.IsZero() {
		bm.CreatedAt = time.Now()
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO bookmarks (user_id, session_id, segment_index, note, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		bm.UserID, bm.SessionID, bm.SegmentIndex, bm.Note, bm.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite store: append bookmark: %w", err)
	}
	return nil
}

func (b *bookmarkStore) List(ctx context.Context, userID string) ([]memory.Bookmark, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT user_id, session_id, segment_index, note, created_at
		 FROM bookmarks WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list bookmarks: %w", err)
	}
	defer rows.Close()

	out := []memory.Bookmark{}
	for rows.Next() {
		var bm memory.Bookmark
		var created int64
		if err := rows.Scan(&bm.UserID, &bm.SessionID, &bm.SegmentIndex, &bm.Note, &created); err != nil {
			return nil, fmt.Errorf("sqlite store: scan bookmark: %w", err)
		}
		bm.CreatedAt = time.Unix(created, 0)
		out = append(out, bm)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// RAG documents
// ─────────────────────────────────────────────────────────────────────────────

type docStore struct{ db *sql.DB }

func (d *docStore) Upsert(ctx context.Context, doc memory.RAGDoc) error {
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}
	meta := "{}"
	if len(doc.Meta) > 0 {
		data, err := json.Marshal(doc.Meta)
		if err != nil {
			return fmt.Errorf("sqlite store: encode doc meta: %w", err)
		}
		meta = string(data)
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO rag_docs (doc_id, text, meta, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(doc_id) DO UPDATE SET
		   text = excluded.text, meta = excluded.meta, updated_at = excluded.updated_at`,
		doc.DocID, doc.Text, meta, doc.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite store: upsert doc: %w", err)
	}
	return nil
}

func (d *docStore) Get(ctx context.Context, docID string) (*memory.RAGDoc, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT doc_id, text, meta, updated_at FROM rag_docs WHERE doc_id = ?`, docID)
	doc, err := scanDoc(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get doc: %w", err)
	}
	return &doc, nil
}

func (d *docStore) List(ctx context.Context) ([]memory.RAGDoc, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT doc_id, text, meta, updated_at FROM rag_docs ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list docs: %w", err)
	}
	defer rows.Close()

	out := []memory.RAGDoc{}
	for rows.Next() {
		doc, err := scanDoc(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: scan doc: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (d *docStore) Delete(ctx context.Context, docID string) error {
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM rag_docs WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("sqlite store: delete doc: %w", err)
	}
	return nil
}

func (d *docStore) Query(ctx context.Context, q string, topK int) ([]memory.ScoredDoc, error) {
	docs, err := d.List(ctx)
	if err != nil {
		return nil, err
	}
	return memory.Rank(docs, q, topK), nil
}

func scanDoc(scan func(...any) error) (memory.RAGDoc, error) {
	var doc memory.RAGDoc
	var meta string
	var updated int64
	if err := scan(&doc.DocID, &doc.Text, &meta, &updated); err != nil {
		return memory.RAGDoc{}, err
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &doc.Meta); err != nil {
			return memory.RAGDoc{}, err
		}
	}
	doc.UpdatedAt = time.Unix(updated, 0)
	return doc, nil
}
