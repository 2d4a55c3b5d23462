package resilience

import (
	"context"

	"github.com/modernreader/sensoria/pkg/provider/emotion"
	"github.com/modernreader/sensoria/pkg/types"
)

// EmotionFallback implements [emotion.TextClassifier] with automatic failover
// across multiple classification backends. Each backend has its own circuit
// breaker; when the primary fails or its breaker is open, the next healthy
// fallback is tried. The last entry is typically the local lexicon, which
// never fails.
type EmotionFallback struct {
	group *FallbackGroup[emotion.TextClassifier]
}

// Compile-time interface assertion.
var _ emotion.TextClassifier = (*EmotionFallback)(nil)

// NewEmotionFallback creates an [EmotionFallback] with primary as the
// preferred backend.
func NewEmotionFallback(primary emotion.TextClassifier, primaryName string, cfg FallbackConfig) *EmotionFallback {
	return &EmotionFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional classifier as a fallback.
func (f *EmotionFallback) AddFallback(name string, classifier emotion.TextClassifier) {
	f.group.AddFallback(name, classifier)
}

// ClassifyText classifies the text with the first healthy backend. If the
// primary fails, subsequent fallbacks are tried with the same text.
func (f *EmotionFallback) ClassifyText(ctx context.Context, text string) (types.EmotionReading, error) {
	return ExecuteWithResult(f.group, func(c emotion.TextClassifier) (types.EmotionReading, error) {
		return c.ClassifyText(ctx, text)
	})
}
