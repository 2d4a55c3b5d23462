package emotion

import (
	"encoding/json"
	"strings"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/types"
)

// readingJSON is the wire shape classifier backends are prompted to emit.
type readingJSON struct {
	Primary    string   `json:"primary"`
	Secondary  []string `json:"secondary,omitempty"`
	Intensity  float64  `json:"intensity"`
	Confidence float64  `json:"confidence"`
	Features   string   `json:"features,omitempty"`
}

// ParseReadingJSON decodes a model's JSON classification into an
// EmotionReading. Models occasionally wrap the object in a markdown fence;
// the fence is stripped before decoding. Unknown labels collapse to neutral
// and all scalars are clamped.
func ParseReadingJSON(data []byte, src types.EmotionSource) (types.EmotionReading, error) {
	raw := strings.TrimSpace(string(data))
	if after, ok := strings.CutPrefix(raw, "```json"); ok {
		raw = after
	} else if after, ok := strings.CutPrefix(raw, "```"); ok {
		raw = after
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")

	var rj readingJSON
	if err := json.Unmarshal([]byte(raw), &rj); err != nil {
		return types.EmotionReading{}, fault.Wrap(fault.Internal, err, "emotion: decode classification")
	}

	primary, _ := types.ParseEmotionLabel(rj.Primary)
	reading := types.EmotionReading{
		Primary:    primary,
		Intensity:  rj.Intensity,
		Confidence: rj.Confidence,
		Features:   rj.Features,
		Source:     src,
	}
	for _, s := range rj.Secondary {
		if label, ok := types.ParseEmotionLabel(s); ok && label != primary {
			reading.Secondary = append(reading.Secondary, label)
		}
	}
	return reading.Clamp(), nil
}

// ClassifierPrompt is the instruction shared by LLM-backed classifiers. The
// closed label set keeps model output inside the mapping tables' domain.
const ClassifierPrompt = `You are an emotion classifier. Analyze the input and respond with ONLY a JSON object, no prose:
{"primary": "<label>", "secondary": ["<label>", ...], "intensity": <0.0-1.0>, "confidence": <0.0-1.0>, "features": "<short cue summary>"}
Valid labels: happy, sad, angry, fear, surprise, disgust, neutral.`
