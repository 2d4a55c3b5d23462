// Package emotion maps text, images, and audio onto the seven-label emotion
// set.
//
// The text path always works: a keyword lexicon with fuzzy matching produces
// a deterministic reading with no external dependencies. When a remote
// classifier is injected it takes precedence, and the lexicon becomes the
// degraded fallback (confidence capped at 0.5). Image and audio paths exist
// only through injected ports; without one they return a clearly-marked
// degraded neutral reading instead of failing.
//
// Predictions are memoized by payload hash so identical inputs within a
// session yield identical readings.
package emotion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	provider "github.com/modernreader/sensoria/pkg/provider/emotion"
	"github.com/modernreader/sensoria/pkg/types"
)

// memoLimit bounds the memo map; the cache resets when it fills.
const memoLimit = 1024

// Engine predicts emotion readings. Safe for concurrent use.
type Engine struct {
	text   provider.TextClassifier
	vision provider.VisionClassifier
	audio  provider.AudioClassifier
	log    *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	memo map[string]types.EmotionReading
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithTextClassifier injects a remote text classifier. The lexicon remains
// the fallback when the remote call fails.
func WithTextClassifier(c provider.TextClassifier) Option {
	return func(e *Engine) { e.text = c }
}

// WithVisionClassifier injects the image classification port.
func WithVisionClassifier(c provider.VisionClassifier) Option {
	return func(e *Engine) { e.vision = c }
}

// WithAudioClassifier injects the audio classification port.
func WithAudioClassifier(c provider.AudioClassifier) Option {
	return func(e *Engine) { e.audio = c }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithNow overrides the clock, used by tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. With no options it runs purely on the local lexicon.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:  slog.Default(),
		now:  time.Now,
		memo: make(map[string]types.EmotionReading),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// PredictText returns a reading for text. Never fails: a remote classifier
// error degrades to the lexicon with confidence capped at 0.5.
func (e *Engine) PredictText(ctx context.Context, text string) types.EmotionReading {
	key := memoKey("text", []byte(text))
	if r, ok := e.cached(key); ok {
		return r
	}

	ts := e.now().Unix()
	var reading types.EmotionReading
	if e.text != nil {
		remote, err := e.text.ClassifyText(ctx, text)
		if err == nil {
			reading = remote.Clamp()
			reading.Source = types.SourceText
			e.store(key, reading)
			return reading
		}
		e.log.Warn("remote emotion classifier failed, using lexicon",
			"error", err)
		reading = classifyLexicon(text, ts)
		if reading.Confidence > 0.5 {
			reading.Confidence = 0.5
		}
		e.store(key, reading)
		return reading
	}

	reading = classifyLexicon(text, ts)
	e.store(key, reading)
	return reading
}

// PredictImage classifies an encoded image via the vision port. A missing or
// failing port yields the degraded neutral reading with confidence 0.
func (e *Engine) PredictImage(ctx context.Context, image []byte) types.EmotionReading {
	key := memoKey("image", image)
	if r, ok := e.cached(key); ok {
		return r
	}
	reading := e.delegate(ctx, types.SourceImage, image)
	e.store(key, reading)
	return reading
}

// PredictAudio classifies encoded audio via the audio port, with the same
// degradation contract as PredictImage.
func (e *Engine) PredictAudio(ctx context.Context, audio []byte) types.EmotionReading {
	key := memoKey("audio", audio)
	if r, ok := e.cached(key); ok {
		return r
	}
	reading := e.delegate(ctx, types.SourceAudio, audio)
	e.store(key, reading)
	return reading
}

func (e *Engine) delegate(ctx context.Context, src types.EmotionSource, payload []byte) types.EmotionReading {
	ts := e.now().Unix()
	degraded := types.EmotionReading{
		Primary:    types.EmotionNeutral,
		Intensity:  0.5,
		Features:   "unavailable",
		Source:     src,
		Confidence: 0.0,
		TSUnix:     ts,
	}

	switch src {
	case types.SourceImage:
		if e.vision == nil {
			return degraded
		}
		r, err := e.vision.ClassifyImage(ctx, payload)
		if err != nil {
			e.log.Warn("vision classifier failed", "error", err)
			return degraded
		}
		r = r.Clamp()
		r.Source = src
		return r
	case types.SourceAudio:
		if e.audio == nil {
			return degraded
		}
		r, err := e.audio.ClassifyAudio(ctx, payload)
		if err != nil {
			e.log.Warn("audio classifier failed", "error", err)
			return degraded
		}
		r = r.Clamp()
		r.Source = src
		return r
	}
	return degraded
}

func (e *Engine) cached(key string) (types.EmotionReading, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.memo[key]
	return r, ok
}

func (e *Engine) store(key string, r types.EmotionReading) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.memo) >= memoLimit {
		e.memo = make(map[string]types.EmotionReading, memoLimit)
	}
	e.memo[key] = r
}

func memoKey(kind string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
