package gateway

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modernreader/sensoria/internal/device"
	"github.com/modernreader/sensoria/internal/device/sim"
	"github.com/modernreader/sensoria/internal/emotion"
	"github.com/modernreader/sensoria/internal/orchestrator"
	"github.com/modernreader/sensoria/internal/syncsvc"
	memmock "github.com/modernreader/sensoria/pkg/memory/mock"
	sttmock "github.com/modernreader/sensoria/pkg/provider/stt/mock"
	ttsmock "github.com/modernreader/sensoria/pkg/provider/tts/mock"
	"github.com/modernreader/sensoria/pkg/types"
)

const testKey = "test-key"

// newTestGateway assembles a gateway over in-memory collaborators: lexicon
// emotion engine, mock providers, sim devices, and a temp sync root.
func newTestGateway(t *testing.T, opts ...Option) *Gateway {
	t.Helper()

	engine := emotion.New()
	orch := orchestrator.New(orchestrator.NewManager(), engine,
		orchestrator.WithTTS(&ttsmock.Provider{}),
		orchestrator.WithStore(memmock.New()),
	)

	registry := device.NewRegistry()
	watch := types.DeviceDescriptor{
		ID: "apple_watch", Class: types.ClassWatch,
		Capabilities: []types.Capability{types.CapHaptic, types.CapDisplay},
	}
	diffuser := types.DeviceDescriptor{
		ID: "aromajoin", Class: types.ClassScent,
		Capabilities: []types.Capability{types.CapScent},
	}
	if err := registry.Connect(watch, sim.New()); err != nil {
		t.Fatal(err)
	}
	if err := registry.Connect(diffuser, sim.New()); err != nil {
		t.Fatal(err)
	}
	fanout := device.NewFanout(registry)

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "books"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "books", "story.txt"), []byte("Chapter one."), 0o644); err != nil {
		t.Fatal(err)
	}
	syncSvc, err := syncsvc.New(root, []string{"books"},
		syncsvc.WithoutWatcher(), syncsvc.WithCacheTTL(time.Nanosecond),
		syncsvc.WithFeatureFlags(map[string]bool{"scent": true}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { syncSvc.Close() })

	all := append([]Option{
		WithRegistry(registry),
		WithFanout(fanout),
		WithStore(memmock.New()),
		WithTTS(&ttsmock.Provider{}),
		WithSTT(&sttmock.Provider{}),
		WithSync(syncSvc),
	}, opts...)
	return New(orch, engine, testKey+",second-key", all...)
}

// do sends a JSON request through the full handler with the given API key.
func do(t *testing.T, g *Gateway, method, path string, body any, key string) *httptest.ResponseRecorder {
	t.Helper()

	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, rd)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

// ── auth, rate limit, quota ──

func TestAuth(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)

	if rec := do(t, g, http.MethodGet, "/haptic_patterns", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: got %d", rec.Code)
	}
	if rec := do(t, g, http.MethodGet, "/haptic_patterns", nil, "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad key: got %d", rec.Code)
	}
	if rec := do(t, g, http.MethodGet, "/haptic_patterns", nil, testKey); rec.Code != http.StatusOK {
		t.Errorf("good key: got %d", rec.Code)
	}

	// Bearer form substitutes for the header.
	req := httptest.NewRequest(http.MethodGet, "/haptic_patterns", nil)
	req.Header.Set("Authorization", "Bearer second-key")
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("bearer: got %d", rec.Code)
	}

	// Health stays open.
	if rec := do(t, g, http.MethodGet, "/health", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("health: got %d", rec.Code)
	}
}

func TestErrorEnvelopeCarriesTraceID(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	rec := do(t, g, http.MethodGet, "/orchestrator/summary?session_id=ghost", nil, testKey)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d", rec.Code)
	}
	var body struct {
		Error   string `json:"error"`
		TraceID string `json:"trace_id"`
	}
	decode(t, rec, &body)
	if body.Error != "not_found" || body.TraceID == "" {
		t.Errorf("envelope: %+v", body)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	g := newTestGateway(t, WithRateLimit(1, 1), WithGatewayClock(func() time.Time { return now }))

	if rec := do(t, g, http.MethodGet, "/haptic_patterns", nil, testKey); rec.Code != http.StatusOK {
		t.Fatalf("first: got %d", rec.Code)
	}
	if rec := do(t, g, http.MethodGet, "/haptic_patterns", nil, testKey); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second: got %d", rec.Code)
	}
	// Other keys have their own bucket.
	if rec := do(t, g, http.MethodGet, "/haptic_patterns", nil, "second-key"); rec.Code != http.StatusOK {
		t.Errorf("other key: got %d", rec.Code)
	}

	// The bucket refills with time.
	now = now.Add(time.Second)
	if rec := do(t, g, http.MethodGet, "/haptic_patterns", nil, testKey); rec.Code != http.StatusOK {
		t.Errorf("after refill: got %d", rec.Code)
	}
}

func TestPlayQuota(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, WithQuotas(1, 1, 1))
	body := map[string]any{"text": "Hello world."}

	if rec := do(t, g, http.MethodPost, "/orchestrator/play", body, testKey); rec.Code != http.StatusOK {
		t.Fatalf("first play: got %d: %s", rec.Code, rec.Body.String())
	}
	rec := do(t, g, http.MethodPost, "/orchestrator/play", body, testKey)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second play: got %d", rec.Code)
	}
	var e struct {
		Error string `json:"error"`
	}
	decode(t, rec, &e)
	if e.Error != "quota_exceeded" {
		t.Errorf("kind: got %q", e.Error)
	}
}

// ── orchestrator surface ──

func TestPlaySeekSummaryRoundTrip(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)

	rec := do(t, g, http.MethodPost, "/orchestrator/play",
		map[string]any{"text": "今天天氣真好！我很開心。", "user_id": "u1"}, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("play: got %d: %s", rec.Code, rec.Body.String())
	}
	var play struct {
		SessionID   string `json:"session_id"`
		PlaybackURL string `json:"playback_url"`
		Metadata    struct {
			Segments []json.RawMessage `json:"segments"`
			Emotion  struct {
				Primary string `json:"primary"`
			} `json:"emotion"`
			HapticEvents []struct {
				Pattern struct {
					Name string `json:"name"`
				} `json:"pattern"`
			} `json:"haptic_events"`
			TotalDuration float64 `json:"total_duration"`
		} `json:"metadata"`
	}
	decode(t, rec, &play)
	if len(play.Metadata.Segments) != 2 {
		t.Errorf("segments: got %d, want 2", len(play.Metadata.Segments))
	}
	if play.Metadata.Emotion.Primary != "happy" {
		t.Errorf("emotion: got %q", play.Metadata.Emotion.Primary)
	}
	if len(play.Metadata.HapticEvents) == 0 || play.Metadata.HapticEvents[0].Pattern.Name != "gentle_pulse" {
		t.Errorf("haptics: got %+v", play.Metadata.HapticEvents)
	}

	rec = do(t, g, http.MethodPost, "/orchestrator/seek",
		map[string]any{"session_id": play.SessionID, "segment_index": 1}, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("seek: got %d", rec.Code)
	}
	var seek struct {
		Status       string `json:"status"`
		CurrentIndex int    `json:"current_index"`
	}
	decode(t, rec, &seek)
	if seek.Status != "seeked" || seek.CurrentIndex != 1 {
		t.Errorf("seek: %+v", seek)
	}

	rec = do(t, g, http.MethodGet, "/orchestrator/summary?session_id="+play.SessionID, nil, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: got %d", rec.Code)
	}
	var sum struct {
		CurrentPosition int  `json:"current_position"`
		TotalSegments   int  `json:"total_segments"`
		Playing         bool `json:"playing"`
	}
	decode(t, rec, &sum)
	if sum.CurrentPosition != 1 || sum.TotalSegments != 2 || !sum.Playing {
		t.Errorf("summary: %+v", sum)
	}

	// Synthesized audio is reachable at the playback url.
	rec = do(t, g, http.MethodGet, play.PlaybackURL, nil, testKey)
	if rec.Code != http.StatusOK {
		t.Errorf("audio: got %d for %q", rec.Code, play.PlaybackURL)
	}
}

func TestSeekInvalidIndex(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	rec := do(t, g, http.MethodPost, "/orchestrator/play", map[string]any{"text": "One. Two."}, testKey)
	var play struct {
		SessionID string `json:"session_id"`
	}
	decode(t, rec, &play)

	rec = do(t, g, http.MethodPost, "/orchestrator/seek",
		map[string]any{"session_id": play.SessionID, "segment_index": 99}, testKey)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rec.Code)
	}
	var e struct {
		Message string `json:"message"`
	}
	decode(t, rec, &e)
	if e.Message != "invalid_segment" {
		t.Errorf("message: got %q", e.Message)
	}
}

// ── segmentation and haptics ──

func TestSegmentTextParagraphs(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	rec := do(t, g, http.MethodPost, "/segment_text",
		map[string]any{"text": "Para 1.\n\nPara 2.\n\nPara 3.", "strategy": "paragraphs"}, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		Segments []struct {
			WordCount int `json:"word_count"`
		} `json:"segments"`
		TotalSegments int    `json:"total_segments"`
		StrategyUsed  string `json:"strategy_used"`
	}
	decode(t, rec, &res)
	if res.TotalSegments != 3 {
		t.Fatalf("segments: got %d, want 3", res.TotalSegments)
	}
	for i, s := range res.Segments {
		if s.WordCount < 1 {
			t.Errorf("segment %d: word_count %d", i, s.WordCount)
		}
	}
	if res.StrategyUsed != "paragraph" {
		t.Errorf("strategy: got %q", res.StrategyUsed)
	}
}

func TestSegmentTextRejectsUnknownStrategy(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	rec := do(t, g, http.MethodPost, "/segment_text",
		map[string]any{"text": "Hi.", "strategy": "chapters"}, testKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d", rec.Code)
	}
}

func TestGenerateHapticsFromAliasedEmotion(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	rec := do(t, g, http.MethodPost, "/generate_haptics",
		map[string]any{"emotion": "excited", "intensity": 0.9}, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		Emotion string `json:"emotion"`
		Pattern struct {
			Name      string  `json:"name"`
			Intensity float64 `json:"intensity"`
		} `json:"pattern"`
	}
	decode(t, rec, &res)
	if res.Emotion != "happy" {
		t.Errorf("emotion: got %q, want happy", res.Emotion)
	}
	if res.Pattern.Name != "gentle_pulse" {
		t.Errorf("pattern: got %q", res.Pattern.Name)
	}
	if res.Pattern.Intensity <= 0 || res.Pattern.Intensity > 1.0 {
		t.Errorf("intensity: got %v", res.Pattern.Intensity)
	}
}

func TestGenerateHapticsByPatternName(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	rec := do(t, g, http.MethodPost, "/generate_haptics",
		map[string]any{"pattern_name": "slow_wave"}, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}

	rec = do(t, g, http.MethodPost, "/generate_haptics",
		map[string]any{"pattern_name": "no_such_pattern"}, testKey)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown pattern: got %d", rec.Code)
	}
}

func TestHapticPatternsList(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	rec := do(t, g, http.MethodGet, "/haptic_patterns", nil, testKey)
	var res struct {
		Patterns []string `json:"patterns"`
	}
	decode(t, rec, &res)
	if len(res.Patterns) < 7 {
		t.Errorf("patterns: got %v", res.Patterns)
	}
}

// ── media endpoints ──

func TestDetectEmotionRejectsBadBase64(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	rec := do(t, g, http.MethodPost, "/api/detect-emotion",
		map[string]any{"image_base64": "!!!not-base64!!!"}, testKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d", rec.Code)
	}
}

func TestTTSEndpoint(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	rec := do(t, g, http.MethodPost, "/api/tts",
		map[string]any{"text": "Good morning.", "emotion": "happy", "speed": 1.2}, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	var res ttsResponse
	decode(t, rec, &res)
	if res.Provider != "mock" {
		t.Errorf("provider: got %q", res.Provider)
	}
	if data, err := base64.StdEncoding.DecodeString(res.AudioBase64); err != nil || len(data) == 0 {
		t.Errorf("audio: %q err %v", res.AudioBase64, err)
	}
}

func TestTTSEndpoint_VoiceReachesProvider(t *testing.T) {
	t.Parallel()

	mock := &ttsmock.Provider{}
	g := newTestGateway(t, WithTTS(mock))
	rec := do(t, g, http.MethodPost, "/api/tts",
		map[string]any{"text": "Good morning.", "emotion": "happy", "voice": "nova"}, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("synthesize calls: got %d, want 1", len(calls))
	}
	if got := calls[0].Req.Voice.ID; got != "nova" {
		t.Errorf("provider voice: got %q, want nova", got)
	}

	var res ttsResponse
	decode(t, rec, &res)
	if res.Voice != "nova" {
		t.Errorf("response voice: got %q, want nova", res.Voice)
	}
}

func TestSTTEndpoint(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	audio := base64.StdEncoding.EncodeToString([]byte("pcm-bytes"))
	rec := do(t, g, http.MethodPost, "/api/stt",
		map[string]any{"audio_base64": audio}, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
}

// ── devices ──

func TestBroadcastToDevices(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	rec := do(t, g, http.MethodPost, "/api/broadcast-to-devices", map[string]any{
		"emotion":   "sad",
		"intensity": 0.7,
		"devices":   []string{"apple_watch", "aromajoin", "unknown_dev"},
		"content":   map[string]any{},
	}, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		Devices map[string]struct {
			Status string `json:"status"`
		} `json:"devices"`
		Emotion string `json:"emotion"`
	}
	decode(t, rec, &res)
	if res.Emotion != "sad" {
		t.Errorf("emotion: got %q", res.Emotion)
	}
	if got := res.Devices["apple_watch"].Status; got != "success" {
		t.Errorf("apple_watch: got %q", got)
	}
	if got := res.Devices["aromajoin"].Status; got != "success" {
		t.Errorf("aromajoin: got %q", got)
	}
	if got := res.Devices["unknown_dev"].Status; got != "skipped_incompatible" {
		t.Errorf("unknown_dev: got %q", got)
	}
}

func TestDeviceLifecycle(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)

	rec := do(t, g, http.MethodPost, "/api/devices/connect", map[string]any{
		"id": "vest-1", "class": "haptic_vest", "capabilities": []string{"haptic"},
	}, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("connect: got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, g, http.MethodGet, "/api/devices", nil, testKey)
	var list struct {
		Devices []struct {
			ID string `json:"id"`
		} `json:"devices"`
	}
	decode(t, rec, &list)
	found := false
	for _, d := range list.Devices {
		if d.ID == "vest-1" {
			found = true
		}
	}
	if !found {
		t.Errorf("vest-1 missing from %+v", list.Devices)
	}

	if rec := do(t, g, http.MethodPost, "/api/devices/heartbeat", map[string]any{"id": "vest-1"}, testKey); rec.Code != http.StatusOK {
		t.Errorf("heartbeat: got %d", rec.Code)
	}
	if rec := do(t, g, http.MethodPost, "/api/devices/heartbeat", map[string]any{"id": "ghost"}, testKey); rec.Code != http.StatusNotFound {
		t.Errorf("ghost heartbeat: got %d", rec.Code)
	}
	if rec := do(t, g, http.MethodPost, "/api/devices/disconnect", map[string]any{"id": "vest-1"}, testKey); rec.Code != http.StatusOK {
		t.Errorf("disconnect: got %d", rec.Code)
	}

	rec = do(t, g, http.MethodPost, "/api/devices/connect", map[string]any{
		"id": "bad", "class": "starship", "capabilities": []string{"haptic"},
	}, testKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad class: got %d", rec.Code)
	}
}

// ── rag ──

func TestRAGRoundTrip(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)

	rec := do(t, g, http.MethodPost, "/rag/upsert",
		map[string]any{"doc_id": "d1", "text": "the dragon sleeps on gold"}, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert: got %d", rec.Code)
	}

	rec = do(t, g, http.MethodGet, "/rag/query?q=dragon+sleeps+on+gold&top_k=3", nil, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("query: got %d", rec.Code)
	}
	var q struct {
		Results []struct {
			Doc struct {
				DocID string `json:"doc_id"`
			} `json:"doc"`
		} `json:"results"`
	}
	decode(t, rec, &q)
	if len(q.Results) == 0 || q.Results[0].Doc.DocID != "d1" {
		t.Errorf("query results: %+v", q.Results)
	}

	if rec := do(t, g, http.MethodDelete, "/rag/delete?doc_id=d1", nil, testKey); rec.Code != http.StatusOK {
		t.Errorf("delete: got %d", rec.Code)
	}

	rec = do(t, g, http.MethodGet, "/rag/list", nil, testKey)
	var l struct {
		Count int `json:"count"`
	}
	decode(t, rec, &l)
	if l.Count != 0 {
		t.Errorf("list after delete: count %d", l.Count)
	}
}

// ── sync ──

func TestSyncManifestConditionalFetch(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)

	rec := do(t, g, http.MethodGet, "/sync/manifest", nil, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("first: got %d", rec.Code)
	}
	e1 := rec.Header().Get("ETag")
	if e1 == "" {
		t.Fatal("no etag header")
	}

	req := httptest.NewRequest(http.MethodGet, "/sync/manifest", nil)
	req.Header.Set("X-API-Key", testKey)
	req.Header.Set("If-None-Match", e1)
	rec2 := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusNotModified {
		t.Errorf("conditional: got %d", rec2.Code)
	}
	if rec2.Body.Len() != 0 {
		t.Errorf("304 carried a body: %q", rec2.Body.String())
	}
}

func TestSyncFileAndMeta(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)

	rec := do(t, g, http.MethodGet, "/sync/file?path=books/story.txt", nil, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("file: got %d: %s", rec.Code, rec.Body.String())
	}
	var fc struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		SHA256  string `json:"sha256"`
	}
	decode(t, rec, &fc)
	if fc.Content != "Chapter one." || len(fc.SHA256) != 64 {
		t.Errorf("file: %+v", fc)
	}

	if rec := do(t, g, http.MethodGet, "/sync/file?path=../../etc/passwd", nil, testKey); rec.Code != http.StatusNotFound {
		t.Errorf("traversal: got %d", rec.Code)
	}

	rec = do(t, g, http.MethodGet, "/sync/feature-flags", nil, testKey)
	var flags struct {
		FeatureFlags map[string]bool `json:"feature_flags"`
	}
	decode(t, rec, &flags)
	if !flags.FeatureFlags["scent"] {
		t.Errorf("flags: %+v", flags)
	}

	rec = do(t, g, http.MethodGet, "/sync/allowed-paths", nil, testKey)
	var paths struct {
		AllowedPaths []string `json:"allowed_paths"`
	}
	decode(t, rec, &paths)
	if len(paths.AllowedPaths) != 1 || paths.AllowedPaths[0] != "books" {
		t.Errorf("paths: %+v", paths)
	}
}

// ── model selection ──

func TestModelSelect(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		query  string
		chosen string
		reason string
	}{
		{"watch class", "device=watch&memory_mb=8192", ModelLite, "device-class"},
		{"low memory", "device=desktop&memory_mb=1024", ModelLite, "low-memory"},
		{"battery saver", "device=desktop&memory_mb=8192&battery_saver=true", ModelLite, "battery-saver"},
		{"quality override", "device=desktop&memory_mb=8192&prefer_quality=true", ModelFull, "quality-override"},
		{"default", "device=desktop&memory_mb=8192", ModelFull, "default"},
	}

	g := newTestGateway(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, g, http.MethodGet, "/ai/model-select?"+tc.query, nil, testKey)
			if rec.Code != http.StatusOK {
				t.Fatalf("got %d", rec.Code)
			}
			var res modelChoice
			decode(t, rec, &res)
			if res.Chosen != tc.chosen {
				t.Errorf("chosen: got %q, want %q", res.Chosen, tc.chosen)
			}
			if len(res.Reasons) == 0 || res.Reasons[0] != tc.reason {
				t.Errorf("reasons: got %v, want first %q", res.Reasons, tc.reason)
			}
		})
	}
}
