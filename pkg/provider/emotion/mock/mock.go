// Package mock provides test doubles for the emotion classifier interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/modernreader/sensoria/pkg/provider/emotion"
	"github.com/modernreader/sensoria/pkg/types"
)

// Classifier is a mock implementing all three classifier interfaces.
type Classifier struct {
	mu sync.Mutex

	// Reading is returned by every Classify call when Err is nil.
	Reading types.EmotionReading

	// Err, if non-nil, is returned by every Classify call.
	Err error

	// Texts records the inputs passed to ClassifyText.
	Texts []string

	// Images records the inputs passed to ClassifyImage.
	Images [][]byte

	// Audios records the inputs passed to ClassifyAudio.
	Audios [][]byte
}

var (
	_ emotion.TextClassifier   = (*Classifier)(nil)
	_ emotion.VisionClassifier = (*Classifier)(nil)
	_ emotion.AudioClassifier  = (*Classifier)(nil)
)

// ClassifyText records the call and returns the configured reading or error.
func (c *Classifier) ClassifyText(_ context.Context, text string) (types.EmotionReading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Texts = append(c.Texts, text)
	if c.Err != nil {
		return types.EmotionReading{}, c.Err
	}
	r := c.Reading
	r.Source = types.SourceText
	return r, nil
}

// ClassifyImage records the call and returns the configured reading or error.
func (c *Classifier) ClassifyImage(_ context.Context, image []byte) (types.EmotionReading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Images = append(c.Images, image)
	if c.Err != nil {
		return types.EmotionReading{}, c.Err
	}
	r := c.Reading
	r.Source = types.SourceImage
	return r, nil
}

// ClassifyAudio records the call and returns the configured reading or error.
func (c *Classifier) ClassifyAudio(_ context.Context, audio []byte) (types.EmotionReading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audios = append(c.Audios, audio)
	if c.Err != nil {
		return types.EmotionReading{}, c.Err
	}
	r := c.Reading
	r.Source = types.SourceAudio
	return r, nil
}
