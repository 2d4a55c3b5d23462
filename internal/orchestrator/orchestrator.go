// Package orchestrator coordinates segmentation, emotion analysis, modality
// mapping, TTS, and device fan-out behind the play/pause/seek/summary
// lifecycle. Sessions are soft state with an inactivity TTL; a re-play on a
// live session supersedes its previous plan.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/internal/mapping"
	"github.com/modernreader/sensoria/internal/segment"
	"github.com/modernreader/sensoria/pkg/memory"
	"github.com/modernreader/sensoria/pkg/provider/tts"
	"github.com/modernreader/sensoria/pkg/types"
)

// DefaultPlayTimeout bounds one play call end to end.
const DefaultPlayTimeout = 10 * time.Second

// summaryHighlights is how many top-weight highlights compose the textual
// summary.
const summaryHighlights = 3

// Predictor supplies text emotion readings. It never fails; degraded inputs
// yield a neutral reading.
type Predictor interface {
	PredictText(ctx context.Context, text string) types.EmotionReading
}

// Broadcaster fans a reading out to devices. *device.Fanout implements it.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionKey string, reading types.EmotionReading, content string, targetIDs []string, gen uint64) map[string]types.DispatchResult
}

// Orchestrator drives playback sessions.
type Orchestrator struct {
	sessions *Manager
	predict  Predictor
	store    memory.Store
	tts      tts.Provider
	fanout   Broadcaster
	log      *slog.Logger
	timeout  time.Duration
	wpm      int

	audioMu sync.Mutex
	audio   map[string]audioEntry
}

type audioEntry struct {
	data []byte
	mime string
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithTTS wires the synthesis backend. Without one, every plan is degraded.
func WithTTS(p tts.Provider) Option {
	return func(o *Orchestrator) { o.tts = p }
}

// WithBroadcaster wires the device fan-out.
func WithBroadcaster(b Broadcaster) Option {
	return func(o *Orchestrator) { o.fanout = b }
}

// WithStore wires the user memory backend.
func WithStore(s memory.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithPlayTimeout overrides the per-play deadline.
func WithPlayTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithReadingWPM overrides the duration estimate rate.
func WithReadingWPM(wpm int) Option {
	return func(o *Orchestrator) {
		if wpm > 0 {
			o.wpm = wpm
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New creates an Orchestrator over the given session table and predictor.
func New(sessions *Manager, predict Predictor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sessions: sessions,
		predict:  predict,
		log:      slog.Default(),
		timeout:  DefaultPlayTimeout,
		wpm:      segment.DefaultReadingWPM,
		audio:    make(map[string]audioEntry),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PlayRequest starts or restarts playback.
type PlayRequest struct {
	// Text is the narrative to play. Must be non-empty.
	Text string

	// UserID selects the preference document. Optional.
	UserID string

	// SessionID re-plays into an existing session, superseding its plan.
	// Empty creates a new session.
	SessionID string

	// Strategy is the segmentation strategy name. Empty means adaptive.
	Strategy string
}

// Play builds and launches a playback plan. EmotionEngine or TTS trouble
// degrades the plan rather than failing it: haptic, scent, and AR events are
// always emitted from the mapping tables.
func (o *Orchestrator) Play(ctx context.Context, req PlayRequest) (*PlayResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fault.New(fault.InvalidArgument, "orchestrator: text must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var sess *Session
	if req.SessionID != "" {
		var err error
		if sess, err = o.sessions.Get(req.SessionID); err != nil {
			return nil, err
		}
	} else {
		sess = o.sessions.Create(req.UserID)
	}

	strategy, _ := segment.ParseStrategy(req.Strategy)
	seg := segment.Split(req.Text, strategy, segment.WithReadingWPM(o.wpm))
	reading := o.predict.PredictText(ctx, req.Text)
	prefs := o.preferences(ctx, req.UserID)
	entry := mapping.Resolve(reading)

	prosody := entry.Prosody
	if speed, ok := prefs["voice_speed"].(float64); ok && speed > 0 {
		prosody.Rate = types.ClampRange(prosody.Rate*speed, 0.5, 2.0)
	}

	plan := PlaybackPlan{
		SessionID:     sess.ID,
		Segments:      seg.Segments,
		Prosody:       prosody,
		DurationTotal: seg.TotalDurationSeconds,
	}
	if enabled, ok := prefs["haptics_enabled"].(bool); !ok || enabled {
		for _, s := range seg.Segments {
			plan.HapticEvents = append(plan.HapticEvents, HapticEvent{
				AtSeconds:    s.StartTimeSeconds,
				SegmentIndex: s.Index,
				Pattern:      entry.Haptic,
			})
		}
	}
	if enabled, ok := prefs["scent_enabled"].(bool); !ok || enabled {
		// One scent release at emotion onset; the AR overlay mirrors it.
		plan.ScentEvents = []ScentEvent{{AtSeconds: 0, Recipe: entry.Scent}}
		plan.AREvents = []AREvent{{AtSeconds: 0, Overlay: entry.AR}}
	}

	planCtx, gen := sess.beginPlan()

	playbackURL, degraded := o.synthesize(ctx, sess.ID, gen, req.Text, prosody, prefs)

	sess.mu.Lock()
	sess.segments = seg.Segments
	sess.currentIndex = 0
	sess.playing = true
	sess.lastEmotion = reading
	sess.updatedAt = o.sessions.now()
	sess.mu.Unlock()

	if o.fanout != nil {
		content := ""
		if len(seg.Segments) > 0 {
			content = seg.Segments[0].Text
		}
		go o.fanout.Broadcast(planCtx, sess.ID, reading, content, nil, gen)
	}

	return &PlayResult{
		SessionID:   sess.ID,
		PlaybackURL: playbackURL,
		Plan:        plan,
		Emotion:     reading,
		Degraded:    degraded,
	}, nil
}

// Pause stops playback. Pausing an already-paused session is a no-op.
func (o *Orchestrator) Pause(_ context.Context, sessionID string) (*PauseResult, error) {
	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.playing = false
	sess.updatedAt = o.sessions.now()
	return &PauseResult{Status: "paused", CurrentIndex: sess.currentIndex, Playing: false}, nil
}

// Seek moves the playback position. An out-of-range index fails without
// mutating the session. Downstream events re-emit from the new offset.
func (o *Orchestrator) Seek(_ context.Context, sessionID string, index int) (*SeekResult, error) {
	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if index < 0 || index >= len(sess.segments) {
		n := len(sess.segments)
		sess.mu.Unlock()
		return nil, fault.New(fault.InvalidArgument, "invalid_segment").
			WithHint(fmt.Sprintf("segment_index must be in [0,%d)", n))
	}
	sess.currentIndex = index
	sess.updatedAt = o.sessions.now()
	target := sess.segments[index]
	reading := sess.lastEmotion
	sess.mu.Unlock()

	if o.fanout != nil {
		if planCtx, gen := sess.currentPlan(); planCtx != nil {
			go o.fanout.Broadcast(planCtx, sess.ID, reading, target.Text, nil, gen)
		}
	}

	return &SeekResult{
		Status:          "seeked",
		CurrentIndex:    index,
		SegmentText:     target.Text,
		SegmentDuration: target.EstDurationSeconds,
	}, nil
}

// Summary reports the session's position and a short text composed from its
// highest-weight highlights.
func (o *Orchestrator) Summary(_ context.Context, sessionID string) (*SummaryResult, error) {
	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	totalHighlights := 0
	for _, s := range sess.segments {
		totalHighlights += len(s.Highlights)
	}

	return &SummaryResult{
		Summary:         composeSummary(sess.segments),
		TotalSegments:   len(sess.segments),
		TotalHighlights: totalHighlights,
		CurrentPosition: sess.currentIndex,
		Playing:         sess.playing,
		Emotion:         sess.lastEmotion,
	}, nil
}

// Audio returns the synthesized playback audio for a session generation.
func (o *Orchestrator) Audio(sessionID string, gen uint64) ([]byte, string, bool) {
	o.audioMu.Lock()
	defer o.audioMu.Unlock()
	e, ok := o.audio[audioKey(sessionID, gen)]
	return e.data, e.mime, ok
}

// Sessions exposes the session table, mainly for wiring and tests.
func (o *Orchestrator) Sessions() *Manager { return o.sessions }

// ── internals ───────────────────────────────────────────────────────────────

// preferences loads the user's merged preference document. Without a store,
// or on store trouble, the defaults apply.
func (o *Orchestrator) preferences(ctx context.Context, userID string) memory.Preferences {
	if o.store == nil {
		return memory.DefaultPreferences()
	}
	prefs, err := o.store.Preferences().Get(ctx, userID)
	if err != nil {
		o.log.Warn("preference lookup failed, using defaults", "user_id", userID, "error", err)
		return memory.DefaultPreferences()
	}
	return prefs
}

// synthesize renders the playback audio and returns its opaque URL. Failure
// degrades the plan instead of failing the play.
func (o *Orchestrator) synthesize(ctx context.Context, sessionID string, gen uint64, text string, prosody types.ProsodyPreset, prefs memory.Preferences) (string, bool) {
	if o.tts == nil {
		return "", true
	}

	voice := tts.VoiceProfile{}
	if v, ok := prefs["preferred_voice"].(string); ok {
		voice.ID = v
	}

	res, err := o.tts.Synthesize(ctx, tts.Request{Text: text, Voice: voice, Prosody: prosody})
	if err != nil {
		o.log.Warn("tts synthesis failed, plan degraded",
			"session_id", sessionID, "kind", string(fault.KindOf(err)), "error", err)
		return "", true
	}

	key := audioKey(sessionID, gen)
	o.audioMu.Lock()
	// Drop the previous generation's audio for this session.
	o.audio[key] = audioEntry{data: res.Audio, mime: res.MIME}
	if gen > 1 {
		delete(o.audio, audioKey(sessionID, gen-1))
	}
	o.audioMu.Unlock()

	return fmt.Sprintf("/audio/%s/%d", sessionID, gen), false
}

func audioKey(sessionID string, gen uint64) string {
	return fmt.Sprintf("%s/%d", sessionID, gen)
}

// composeSummary joins the top-weight highlight spans across all segments.
// Without highlights it falls back to the opening of the first segment.
func composeSummary(segments []segment.Segment) string {
	type span struct {
		weight float64
		order  int
		text   string
	}

	var spans []span
	order := 0
	for _, s := range segments {
		runes := []rune(s.Text)
		for _, h := range s.Highlights {
			if h.StartChar < 0 || h.EndChar > len(runes) || h.StartChar >= h.EndChar {
				continue
			}
			spans = append(spans, span{
				weight: h.Weight,
				order:  order,
				text:   strings.TrimSpace(string(runes[h.StartChar:h.EndChar])),
			})
			order++
		}
	}

	if len(spans) == 0 {
		if len(segments) == 0 {
			return ""
		}
		runes := []rune(segments[0].Text)
		if len(runes) > 80 {
			runes = runes[:80]
		}
		return string(runes)
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].weight != spans[j].weight {
			return spans[i].weight > spans[j].weight
		}
		return spans[i].order < spans[j].order
	})
	if len(spans) > summaryHighlights {
		spans = spans[:summaryHighlights]
	}

	parts := make([]string, 0, len(spans))
	for _, sp := range spans {
		if sp.text != "" {
			parts = append(parts, sp.text)
		}
	}
	return strings.Join(parts, " … ")
}
