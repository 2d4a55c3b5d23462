// Package memory defines the user-memory façade used by the Sensoria
// orchestrator: preferences, bookmarks, and the lightweight retrieval store
// (RAG) behind one [Store] interface.
//
// All interfaces are public so that external packages can supply alternative
// storage backends (SQLite, in-memory, …) without depending on internals.
// Every implementation must be safe for concurrent use, and every operation
// is atomic at the document level — there are no multi-document transactions.
package memory

import (
	"context"
	"time"
)

// Preferences is a per-user settings document. Known keys carry defaults (see
// [DefaultPreferences]); unknown keys are preserved verbatim for forward
// compatibility.
type Preferences map[string]any

// DefaultPreferences returns a fresh copy of the built-in defaults.
func DefaultPreferences() Preferences {
	return Preferences{
		"voice_speed":     1.0,
		"preferred_voice": nil,
		"reading_mode":    "immersive",
		"language":        "zh-TW",
		"haptics_enabled": true,
		"scent_enabled":   true,
	}
}

// Merge returns a copy of p with patch applied last-write-wins per key.
func (p Preferences) Merge(patch Preferences) Preferences {
	out := make(Preferences, len(p)+len(patch))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Bookmark is one append-only reading position record.
type Bookmark struct {
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	SegmentIndex int       `json:"segment_index"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RAGDoc is one retrievable document. Tokens are derived from Text by
// [Tokenize]; they are not stored.
type RAGDoc struct {
	DocID     string            `json:"doc_id"`
	Text      string            `json:"text"`
	Meta      map[string]string `json:"meta,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ScoredDoc pairs a retrieved document with its relevance score.
// Higher is more relevant.
type ScoredDoc struct {
	Doc   RAGDoc  `json:"doc"`
	Score float64 `json:"score"`
}

// PreferenceStore reads and patches per-user preference documents.
type PreferenceStore interface {
	// Get returns the user's preferences merged over the defaults. A missing
	// user yields the defaults, never an error.
	Get(ctx context.Context, userID string) (Preferences, error)

	// Set applies patch last-write-wins per key and returns the merged
	// document. Unknown keys in patch are stored verbatim.
	Set(ctx context.Context, userID string, patch Preferences) (Preferences, error)
}

// BookmarkStore is an append-only per-user bookmark log.
type BookmarkStore interface {
	// Append records one bookmark. The CreatedAt field is set by the store
	// when zero.
	Append(ctx context.Context, b Bookmark) error

	// List returns the user's bookmarks in insertion order. A missing user
	// yields an empty (non-nil) slice.
	List(ctx context.Context, userID string) ([]Bookmark, error)
}

// DocumentStore is the retrieval corpus behind the /rag endpoints.
type DocumentStore interface {
	// Upsert stores doc by DocID, replacing any existing document with the
	// same ID. Idempotent.
	Upsert(ctx context.Context, doc RAGDoc) error

	// Get returns the document or (nil, nil) when absent.
	Get(ctx context.Context, docID string) (*RAGDoc, error)

	// List returns all documents ordered by DocID.
	List(ctx context.Context) ([]RAGDoc, error)

	// Delete removes a document. Deleting a non-existent document is not an
	// error.
	Delete(ctx context.Context, docID string) error

	// Query ranks the corpus against q by multiset Jaccard similarity and
	// returns at most topK results, best first. topK is clamped to [1,100].
	// Zero-score documents are omitted.
	Query(ctx context.Context, q string, topK int) ([]ScoredDoc, error)
}

// Store bundles the three sub-services behind one façade.
type Store interface {
	Preferences() PreferenceStore
	Bookmarks() BookmarkStore
	Documents() DocumentStore

	// Close releases underlying resources.
	Close() error
}
