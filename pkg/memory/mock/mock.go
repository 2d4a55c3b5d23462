// Package mock provides an in-memory [memory.Store] for tests and for
// running without a database file.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/modernreader/sensoria/pkg/memory"
)

// Compile-time interface checks.
var (
	_ memory.Store           = (*Store)(nil)
	_ memory.PreferenceStore = (*prefStore)(nil)
	_ memory.BookmarkStore   = (*bookmarkStore)(nil)
	_ memory.DocumentStore   = (*docStore)(nil)
)

// Store is an in-memory memory.Store. Safe for concurrent use.
type Store struct {
	prefs     *prefStore
	bookmarks *bookmarkStore
	docs      *docStore
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		prefs:     &prefStore{data: make(map[string]memory.Preferences)},
		bookmarks: &bookmarkStore{data: make(map[string][]memory.Bookmark)},
		docs:      &docStore{data: make(map[string]memory.RAGDoc)},
	}
}

func (s *Store) Preferences() memory.PreferenceStore { return s.prefs }
func (s *Store) Bookmarks() memory.BookmarkStore     { return s.bookmarks }
func (s *Store) Documents() memory.DocumentStore     { return s.docs }
func (s *Store) Close() error                        { return nil }

type prefStore struct {
	mu   sync.RWMutex
	data map[string]memory.Preferences
}

func (p *prefStore) Get(_ context.Context, userID string) (memory.Preferences, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	stored, ok := p.data[userID]
	if !ok {
		return memory.DefaultPreferences(), nil
	}
	return memory.DefaultPreferences().Merge(stored), nil
}

func (p *prefStore) Set(_ context.Context, userID string, patch memory.Preferences) (memory.Preferences, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stored := p.data[userID]
	if stored == nil {
		stored = memory.Preferences{}
	}
	merged := stored.Merge(patch)
	p.data[userID] = merged
	return memory.DefaultPreferences().Merge(merged), nil
}

type bookmarkStore struct {
	mu   sync.RWMutex
	data map[string][]memory.Bookmark
}

func (b *bookmarkStore) Append(_ context.Context, bm memory.Bookmark) error {
	if bm.CreatedAt.IsZero() {
		bm.CreatedAt = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[bm.UserID] = append(b.data[bm.UserID], bm)
	return nil
}

func (b *bookmarkStore) List(_ context.Context, userID string) ([]memory.Bookmark, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]memory.Bookmark, len(b.data[userID]))
	copy(out, b.data[userID])
	return out, nil
}

type docStore struct {
	mu   sync.RWMutex
	data map[string]memory.RAGDoc
}

func (d *docStore) Upsert(_ context.Context, doc memory.RAGDoc) error {
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[doc.DocID] = doc
	return nil
}

func (d *docStore) Get(_ context.Context, docID string) (*memory.RAGDoc, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.data[docID]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (d *docStore) List(_ context.Context) ([]memory.RAGDoc, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]memory.RAGDoc, 0, len(d.data))
	for _, doc := range d.data {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out, nil
}

func (d *docStore) Delete(_ context.Context, docID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.data, docID)
	return nil
}

func (d *docStore) Query(ctx context.Context, q string, topK int) ([]memory.ScoredDoc, error) {
	docs, err := d.List(ctx)
	if err != nil {
		return nil, err
	}
	return memory.Rank(docs, q, topK), nil
}
