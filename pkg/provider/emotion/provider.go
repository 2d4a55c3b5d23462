// Package emotion defines the provider interfaces for remote emotion
// classification backends.
//
// Three ports exist, one per input modality. All of them return a
// [types.EmotionReading] with the seven-label closed set; providers must map
// whatever their backend emits onto that set before returning. Implementations
// must be safe for concurrent use.
package emotion

import (
	"context"

	"github.com/modernreader/sensoria/pkg/types"
)

// TextClassifier predicts an emotion reading from plain text.
//
// Implementations should fill Source=text and a meaningful Confidence; the
// engine treats any returned error as "backend unavailable" and falls back to
// its local lexicon.
type TextClassifier interface {
	ClassifyText(ctx context.Context, text string) (types.EmotionReading, error)
}

// VisionClassifier predicts an emotion reading from an encoded image.
type VisionClassifier interface {
	ClassifyImage(ctx context.Context, image []byte) (types.EmotionReading, error)
}

// AudioClassifier predicts an emotion reading from encoded audio.
type AudioClassifier interface {
	ClassifyAudio(ctx context.Context, audio []byte) (types.EmotionReading, error)
}
