package emotion

import (
	"testing"

	"github.com/modernreader/sensoria/pkg/types"
)

func TestParseReadingJSON(t *testing.T) {
	t.Parallel()

	data := []byte(`{"primary":"happy","secondary":["surprise"],"intensity":0.8,"confidence":0.9,"features":"smiles"}`)
	r, err := ParseReadingJSON(data, types.SourceText)
	if err != nil {
		t.Fatalf("ParseReadingJSON: %v", err)
	}
	if r.Primary != types.EmotionHappy {
		t.Errorf("primary: got %v", r.Primary)
	}
	if len(r.Secondary) != 1 || r.Secondary[0] != types.EmotionSurprise {
		t.Errorf("secondary: got %v", r.Secondary)
	}
	if r.Intensity != 0.8 || r.Confidence != 0.9 {
		t.Errorf("scalars: got %f/%f", r.Intensity, r.Confidence)
	}
	if r.Source != types.SourceText {
		t.Errorf("source: got %v", r.Source)
	}
}

func TestParseReadingJSON_MarkdownFence(t *testing.T) {
	t.Parallel()

	data := []byte("```json\n{\"primary\":\"sad\",\"intensity\":0.5,\"confidence\":0.7}\n```")
	r, err := ParseReadingJSON(data, types.SourceImage)
	if err != nil {
		t.Fatalf("ParseReadingJSON: %v", err)
	}
	if r.Primary != types.EmotionSad {
		t.Errorf("primary: got %v", r.Primary)
	}
}

func TestParseReadingJSON_AliasAndClamp(t *testing.T) {
	t.Parallel()

	data := []byte(`{"primary":"excited","intensity":1.7,"confidence":-0.2}`)
	r, err := ParseReadingJSON(data, types.SourceText)
	if err != nil {
		t.Fatalf("ParseReadingJSON: %v", err)
	}
	if r.Primary != types.EmotionHappy {
		t.Errorf("alias: got %v, want happy", r.Primary)
	}
	if r.Intensity != 1.0 {
		t.Errorf("intensity clamp: got %f", r.Intensity)
	}
	if r.Confidence != 0 {
		t.Errorf("confidence clamp: got %f", r.Confidence)
	}
}

func TestParseReadingJSON_UnknownLabelCollapsesToNeutral(t *testing.T) {
	t.Parallel()

	data := []byte(`{"primary":"melancholy","intensity":0.4,"confidence":0.6}`)
	r, err := ParseReadingJSON(data, types.SourceText)
	if err != nil {
		t.Fatalf("ParseReadingJSON: %v", err)
	}
	if r.Primary != types.EmotionNeutral {
		t.Errorf("got %v, want neutral", r.Primary)
	}
}

func TestParseReadingJSON_SecondaryDropsPrimaryDuplicate(t *testing.T) {
	t.Parallel()

	data := []byte(`{"primary":"angry","secondary":["angry","fear","bogus"],"intensity":0.5,"confidence":0.5}`)
	r, err := ParseReadingJSON(data, types.SourceText)
	if err != nil {
		t.Fatalf("ParseReadingJSON: %v", err)
	}
	if len(r.Secondary) != 1 || r.Secondary[0] != types.EmotionFear {
		t.Errorf("secondary: got %v, want [fear]", r.Secondary)
	}
}

func TestParseReadingJSON_InvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := ParseReadingJSON([]byte("not json"), types.SourceText); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
