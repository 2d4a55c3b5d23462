package emotion_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modernreader/sensoria/internal/emotion"
	"github.com/modernreader/sensoria/pkg/types"
)

type stubText struct {
	reading types.EmotionReading
	err     error
	calls   int
}

func (s *stubText) ClassifyText(_ context.Context, _ string) (types.EmotionReading, error) {
	s.calls++
	return s.reading, s.err
}

type stubVision struct {
	reading types.EmotionReading
	err     error
}

func (s *stubVision) ClassifyImage(_ context.Context, _ []byte) (types.EmotionReading, error) {
	return s.reading, s.err
}

func fixedNow() time.Time { return time.Unix(1700000000, 0) }

func TestPredictText_LexiconChinese(t *testing.T) {
	t.Parallel()

	e := emotion.New(emotion.WithNow(fixedNow))
	r := e.PredictText(context.Background(), "今天天氣真好！我很開心。")
	if r.Primary != types.EmotionHappy {
		t.Errorf("primary: got %q, want happy", r.Primary)
	}
	if r.Source != types.SourceText {
		t.Errorf("source: got %q, want text", r.Source)
	}
	if r.Intensity <= 0.5 {
		t.Errorf("intensity should rise with hits and exclaims, got %v", r.Intensity)
	}
}

func TestPredictText_LexiconEnglish(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want types.EmotionLabel
	}{
		{"I am so happy and delighted today", types.EmotionHappy},
		{"this is sad and sorrowful news", types.EmotionSad},
		{"he was furious, completely enraged", types.EmotionAngry},
		{"she felt scared and anxious", types.EmotionFear},
		{"what an unexpected, astonishing turn", types.EmotionSurprise},
		{"that smell is disgusting and gross", types.EmotionDisgust},
		{"the report covers quarterly numbers", types.EmotionNeutral},
	}
	e := emotion.New(emotion.WithNow(fixedNow))
	for _, tc := range cases {
		r := e.PredictText(context.Background(), tc.text)
		if r.Primary != tc.want {
			t.Errorf("%q: got %q, want %q", tc.text, r.Primary, tc.want)
		}
	}
}

func TestPredictText_NoMatchIsNeutralHalf(t *testing.T) {
	t.Parallel()

	e := emotion.New(emotion.WithNow(fixedNow))
	r := e.PredictText(context.Background(), "the chair is next to the table")
	if r.Primary != types.EmotionNeutral {
		t.Errorf("primary: got %q, want neutral", r.Primary)
	}
	if r.Intensity != 0.5 {
		t.Errorf("intensity: got %v, want 0.5", r.Intensity)
	}
}

func TestPredictText_RemotePreferred(t *testing.T) {
	t.Parallel()

	stub := &stubText{reading: types.EmotionReading{
		Primary: types.EmotionSurprise, Intensity: 0.9, Confidence: 0.95,
	}}
	e := emotion.New(emotion.WithTextClassifier(stub), emotion.WithNow(fixedNow))
	r := e.PredictText(context.Background(), "completely flat sentence")
	if r.Primary != types.EmotionSurprise {
		t.Errorf("primary: got %q, want surprise from remote", r.Primary)
	}
	if stub.calls != 1 {
		t.Errorf("remote calls: got %d, want 1", stub.calls)
	}
}

func TestPredictText_RemoteFailureFallsBackCapped(t *testing.T) {
	t.Parallel()

	stub := &stubText{err: errors.New("upstream down")}
	e := emotion.New(emotion.WithTextClassifier(stub), emotion.WithNow(fixedNow))
	r := e.PredictText(context.Background(), "I am so happy and joyful and delighted and cheerful!")
	if r.Primary != types.EmotionHappy {
		t.Errorf("primary: got %q, want happy from lexicon", r.Primary)
	}
	if r.Confidence > 0.5 {
		t.Errorf("fallback confidence must be capped at 0.5, got %v", r.Confidence)
	}
}

func TestPredictText_Memoized(t *testing.T) {
	t.Parallel()

	stub := &stubText{reading: types.EmotionReading{Primary: types.EmotionHappy, Intensity: 0.8}}
	e := emotion.New(emotion.WithTextClassifier(stub), emotion.WithNow(fixedNow))

	first := e.PredictText(context.Background(), "same input")
	second := e.PredictText(context.Background(), "same input")
	if stub.calls != 1 {
		t.Errorf("remote calls: got %d, want 1 (memoized)", stub.calls)
	}
	if first.Primary != second.Primary || first.Intensity != second.Intensity {
		t.Error("memoized readings differ")
	}
}

func TestPredictImage_NoPortIsDegraded(t *testing.T) {
	t.Parallel()

	e := emotion.New(emotion.WithNow(fixedNow))
	r := e.PredictImage(context.Background(), []byte{0x89, 0x50})
	if r.Primary != types.EmotionNeutral || r.Intensity != 0.5 {
		t.Errorf("degraded reading: got %+v", r)
	}
	if r.Confidence != 0.0 {
		t.Errorf("confidence: got %v, want 0", r.Confidence)
	}
	if r.Features != "unavailable" {
		t.Errorf("features: got %q, want unavailable", r.Features)
	}
	if r.Source != types.SourceImage {
		t.Errorf("source: got %q, want image", r.Source)
	}
}

func TestPredictImage_PortFailureIsDegraded(t *testing.T) {
	t.Parallel()

	e := emotion.New(
		emotion.WithVisionClassifier(&stubVision{err: errors.New("model offline")}),
		emotion.WithNow(fixedNow),
	)
	r := e.PredictImage(context.Background(), []byte("img"))
	if r.Confidence != 0.0 || r.Primary != types.EmotionNeutral {
		t.Errorf("degraded reading: got %+v", r)
	}
}

func TestPredictImage_PortSuccess(t *testing.T) {
	t.Parallel()

	e := emotion.New(
		emotion.WithVisionClassifier(&stubVision{reading: types.EmotionReading{
			Primary: types.EmotionFear, Intensity: 1.7, Confidence: 0.8,
		}}),
		emotion.WithNow(fixedNow),
	)
	r := e.PredictImage(context.Background(), []byte("img"))
	if r.Primary != types.EmotionFear {
		t.Errorf("primary: got %q, want fear", r.Primary)
	}
	if r.Intensity != 1.0 {
		t.Errorf("intensity should be clamped to 1.0, got %v", r.Intensity)
	}
}
