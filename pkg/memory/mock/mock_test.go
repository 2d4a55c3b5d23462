package mock_test

import (
	"context"
	"testing"

	"github.com/modernreader/sensoria/pkg/memory"
	"github.com/modernreader/sensoria/pkg/memory/mock"
)

func TestPreferences_MissingUserYieldsDefaults(t *testing.T) {
	t.Parallel()

	s := mock.New()
	prefs, err := s.Preferences().Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prefs["voice_speed"] != 1.0 {
		t.Errorf("voice_speed: got %v, want 1.0", prefs["voice_speed"])
	}
	if prefs["haptics_enabled"] != true {
		t.Errorf("haptics_enabled: got %v, want true", prefs["haptics_enabled"])
	}
}

func TestPreferences_SetThenGetRoundTrip(t *testing.T) {
	t.Parallel()

	s := mock.New()
	ctx := context.Background()

	before, _ := s.Preferences().Get(ctx, "u1")
	patch := memory.Preferences{"voice_speed": 0.8, "theme": "dark"}
	if _, err := s.Preferences().Set(ctx, "u1", patch); err != nil {
		t.Fatalf("set: %v", err)
	}
	after, err := s.Preferences().Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// after == before merged with patch, last-write-wins per key.
	want := before.Merge(patch)
	for k, v := range want {
		if after[k] != v {
			t.Errorf("key %q: got %v, want %v", k, after[k], v)
		}
	}
}

func TestBookmarks_AppendOnlyPerUser(t *testing.T) {
	t.Parallel()

	s := mock.New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := s.Bookmarks().Append(ctx, memory.Bookmark{
			UserID: "u1", SessionID: "s1", SegmentIndex: i,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.Bookmarks().List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d bookmarks, want 3", len(got))
	}
	for i, bm := range got {
		if bm.SegmentIndex != i {
			t.Errorf("bookmark %d: segment_index %d", i, bm.SegmentIndex)
		}
		if bm.CreatedAt.IsZero() {
			t.Error("created_at should be filled")
		}
	}

	other, _ := s.Bookmarks().List(ctx, "u2")
	if len(other) != 0 {
		t.Errorf("other user: got %d bookmarks, want 0", len(other))
	}
}

func TestDocuments_UpsertIdempotentAndQuery(t *testing.T) {
	t.Parallel()

	s := mock.New()
	ctx := context.Background()
	doc := memory.RAGDoc{DocID: "d1", Text: "moonlight over the quiet forest", Meta: map[string]string{"lang": "en"}}
	if err := s.Documents().Upsert(ctx, doc); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Documents().Upsert(ctx, doc); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	all, err := s.Documents().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d docs, want 1 (idempotent upsert)", len(all))
	}

	results, err := s.Documents().Query(ctx, doc.Text, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) == 0 || results[0].Doc.DocID != "d1" {
		t.Fatalf("self query should return d1, got %+v", results)
	}
}

func TestDocuments_GetAndDeleteMissingAreNotErrors(t *testing.T) {
	t.Parallel()

	s := mock.New()
	ctx := context.Background()

	doc, err := s.Documents().Get(ctx, "missing")
	if err != nil || doc != nil {
		t.Errorf("get missing: got (%v, %v), want (nil, nil)", doc, err)
	}
	if err := s.Documents().Delete(ctx, "missing"); err != nil {
		t.Errorf("delete missing: %v", err)
	}
}
