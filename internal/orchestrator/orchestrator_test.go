package orchestrator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/modernreader/sensoria/internal/emotion"
	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/memory"
	memmock "github.com/modernreader/sensoria/pkg/memory/mock"
	ttsmock "github.com/modernreader/sensoria/pkg/provider/tts/mock"
	"github.com/modernreader/sensoria/pkg/types"
)

func newOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{
		WithTTS(&ttsmock.Provider{}),
		WithStore(memmock.New()),
	}
	return New(NewManager(), emotion.New(), append(base, opts...)...)
}

func TestPlay_ChineseHappyText(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t)
	res, err := o.Play(context.Background(), PlayRequest{
		Text:   "今天天氣真好！我很開心。",
		UserID: "u1",
	})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}

	if len(res.Plan.Segments) != 2 {
		t.Fatalf("segments: got %d, want 2", len(res.Plan.Segments))
	}
	if res.Emotion.Primary != types.EmotionHappy {
		t.Errorf("emotion: got %v, want happy", res.Emotion.Primary)
	}

	foundPulse := false
	for _, ev := range res.Plan.HapticEvents {
		if ev.Pattern.Name == "gentle_pulse" {
			foundPulse = true
		}
	}
	if !foundPulse {
		t.Errorf("expected a gentle_pulse haptic event, got %+v", res.Plan.HapticEvents)
	}

	// Each segment is one whitespace-delimited word at 200 wpm.
	want := 2 * (1.0 / (200.0 / 60.0))
	if math.Abs(res.Plan.DurationTotal-want) > 1e-9 {
		t.Errorf("duration: got %f, want %f", res.Plan.DurationTotal, want)
	}

	if res.Degraded {
		t.Error("plan should not be degraded with a working TTS backend")
	}
	if !strings.HasPrefix(res.PlaybackURL, "/audio/"+res.SessionID+"/") {
		t.Errorf("playback url: got %q", res.PlaybackURL)
	}
}

func TestPlay_EmptyText(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t)
	_, err := o.Play(context.Background(), PlayRequest{Text: "   "})
	if fault.KindOf(err) != fault.InvalidArgument {
		t.Errorf("got %v, want invalid_argument", err)
	}
}

func TestPlay_UnknownStrategyFallsBackToAdaptive(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t)
	text := "One short line. And then a second one follows it."

	adaptive, err := o.Play(context.Background(), PlayRequest{Text: text})
	if err != nil {
		t.Fatalf("adaptive play: %v", err)
	}
	unknown, err := o.Play(context.Background(), PlayRequest{Text: text, Strategy: "cadence"})
	if err != nil {
		t.Fatalf("unknown strategy play: %v", err)
	}
	if got, want := len(unknown.Plan.Segments), len(adaptive.Plan.Segments); got != want {
		t.Errorf("segments: got %d, want %d (adaptive fallback)", got, want)
	}
}

func TestPlay_DegradedWhenTTSFails(t *testing.T) {
	t.Parallel()

	broken := &ttsmock.Provider{SynthesizeErr: fault.New(fault.UpstreamUnavailable, "down")}
	o := newOrchestrator(t, WithTTS(broken))

	res, err := o.Play(context.Background(), PlayRequest{Text: "A quiet morning."})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !res.Degraded {
		t.Error("expected degraded plan")
	}
	if res.PlaybackURL != "" {
		t.Errorf("playback url should be empty, got %q", res.PlaybackURL)
	}
	if len(res.Plan.HapticEvents) == 0 {
		t.Error("degraded plan must still carry haptic events")
	}
	if len(res.Plan.ScentEvents) != 1 || len(res.Plan.AREvents) != 1 {
		t.Errorf("expected one scent and one ar event, got %d/%d",
			len(res.Plan.ScentEvents), len(res.Plan.AREvents))
	}
}

func TestPlay_HapticsDisabledByPreference(t *testing.T) {
	t.Parallel()

	store := memmock.New()
	if _, err := store.Preferences().Set(context.Background(), "u2", memory.Preferences{"haptics_enabled": false}); err != nil {
		t.Fatal(err)
	}
	o := newOrchestrator(t, WithStore(store))

	res, err := o.Play(context.Background(), PlayRequest{Text: "Hello world.", UserID: "u2"})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if len(res.Plan.HapticEvents) != 0 {
		t.Errorf("expected no haptic events, got %d", len(res.Plan.HapticEvents))
	}
	if len(res.Plan.ScentEvents) != 1 {
		t.Errorf("scent events unaffected: got %d", len(res.Plan.ScentEvents))
	}
}

func TestPlay_ReplaySupersedesPlan(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t)
	first, err := o.Play(context.Background(), PlayRequest{Text: "One. Two. Three."})
	if err != nil {
		t.Fatalf("first play: %v", err)
	}

	sess, err := o.sessions.Get(first.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	firstCtx, firstGen := sess.currentPlan()
	if firstGen != 1 {
		t.Fatalf("first generation: got %d", firstGen)
	}

	second, err := o.Play(context.Background(), PlayRequest{
		Text:      "Different text entirely.",
		SessionID: first.SessionID,
	})
	if err != nil {
		t.Fatalf("second play: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session id changed: %q vs %q", second.SessionID, first.SessionID)
	}

	select {
	case <-firstCtx.Done():
	default:
		t.Error("first plan context should be cancelled after re-play")
	}

	if _, gen := sess.currentPlan(); gen != 2 {
		t.Errorf("generation: got %d, want 2", gen)
	}
	if !strings.HasSuffix(second.PlaybackURL, "/2") {
		t.Errorf("playback url should carry generation 2, got %q", second.PlaybackURL)
	}
	if _, _, ok := o.Audio(first.SessionID, 2); !ok {
		t.Error("generation 2 audio should be retrievable")
	}
	if _, _, ok := o.Audio(first.SessionID, 1); ok {
		t.Error("generation 1 audio should be dropped")
	}
}

func TestPauseIdempotent(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t)
	res, err := o.Play(context.Background(), PlayRequest{Text: "Hello."})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		p, err := o.Pause(context.Background(), res.SessionID)
		if err != nil {
			t.Fatalf("pause %d: %v", i, err)
		}
		if p.Playing {
			t.Errorf("pause %d: still playing", i)
		}
		if p.Status != "paused" {
			t.Errorf("pause %d: status %q", i, p.Status)
		}
	}
}

func TestSeek(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t)
	res, err := o.Play(context.Background(), PlayRequest{Text: "今天天氣真好！我很開心。"})
	if err != nil {
		t.Fatal(err)
	}

	s, err := o.Seek(context.Background(), res.SessionID, 1)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if s.Status != "seeked" || s.CurrentIndex != 1 {
		t.Errorf("seek result: %+v", s)
	}
	if s.SegmentText == "" || s.SegmentDuration <= 0 {
		t.Errorf("segment detail: %+v", s)
	}

	sum, err := o.Summary(context.Background(), res.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.CurrentPosition != 1 || sum.TotalSegments != 2 {
		t.Errorf("summary after seek: %+v", sum)
	}
	if !sum.Playing {
		t.Error("seek must not change the playing flag")
	}
}

func TestSeek_InvalidIndexDoesNotMutate(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t)
	res, err := o.Play(context.Background(), PlayRequest{Text: "One. Two."})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Seek(context.Background(), res.SessionID, 1); err != nil {
		t.Fatal(err)
	}

	for _, idx := range []int{-1, 2, 99} {
		_, err := o.Seek(context.Background(), res.SessionID, idx)
		if fault.KindOf(err) != fault.InvalidArgument {
			t.Errorf("index %d: got %v, want invalid_argument", idx, err)
		}
		if !strings.Contains(err.Error(), "invalid_segment") {
			t.Errorf("index %d: error %v should name invalid_segment", idx, err)
		}
	}

	sum, _ := o.Summary(context.Background(), res.SessionID)
	if sum.CurrentPosition != 1 {
		t.Errorf("position mutated by invalid seek: %d", sum.CurrentPosition)
	}
}

func TestSummary_ComposedFromHighlights(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t)
	res, err := o.Play(context.Background(), PlayRequest{
		Text: `The dragon roared! "We must flee," she said. Could they escape?`,
	})
	if err != nil {
		t.Fatal(err)
	}

	sum, err := o.Summary(context.Background(), res.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalHighlights == 0 {
		t.Fatal("expected highlights in summary input")
	}
	// Exclaim (0.9) outranks quote (0.5) and question (0.6).
	if !strings.Contains(sum.Summary, "!") {
		t.Errorf("summary should lead with the exclaim span, got %q", sum.Summary)
	}
}

func TestSessionLookupErrors(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t)
	if _, err := o.Pause(context.Background(), "ghost"); fault.KindOf(err) != fault.NotFound {
		t.Errorf("pause: got %v, want not_found", err)
	}
	if _, err := o.Seek(context.Background(), "ghost", 0); fault.KindOf(err) != fault.NotFound {
		t.Errorf("seek: got %v, want not_found", err)
	}
	if _, err := o.Summary(context.Background(), "ghost"); fault.KindOf(err) != fault.NotFound {
		t.Errorf("summary: got %v, want not_found", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	mgr := NewManager(
		WithSessionTTL(30*time.Minute),
		WithManagerClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return fmt.Sprintf("s-%d", now.Unix()) }),
	)
	o := New(mgr, emotion.New(), WithTTS(&ttsmock.Provider{}))

	res, err := o.Play(context.Background(), PlayRequest{Text: "Hello."})
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(29 * time.Minute)
	if _, err := o.Summary(context.Background(), res.SessionID); err != nil {
		t.Fatalf("session should survive below TTL: %v", err)
	}

	// The summary touch does not refresh updatedAt; only mutations do.
	now = now.Add(2 * time.Minute)
	if _, err := o.Summary(context.Background(), res.SessionID); fault.KindOf(err) != fault.NotFound {
		t.Errorf("expired session: got %v, want not_found", err)
	}
}
