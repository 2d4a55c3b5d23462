package orchestrator

import (
	"github.com/modernreader/sensoria/internal/segment"
	"github.com/modernreader/sensoria/pkg/types"
)

// HapticEvent schedules one haptic pattern at a playback offset. Events are
// anchored to segment start times.
type HapticEvent struct {
	AtSeconds    float64             `json:"at_seconds"`
	SegmentIndex int                 `json:"segment_index"`
	Pattern      types.HapticPattern `json:"pattern"`
}

// ScentEvent schedules one scent release. A plan carries a single scent
// event at the emotion onset.
type ScentEvent struct {
	AtSeconds float64           `json:"at_seconds"`
	Recipe    types.ScentRecipe `json:"recipe"`
}

// AREvent schedules one AR overlay. AR events mirror the plan's scent events.
type AREvent struct {
	AtSeconds float64         `json:"at_seconds"`
	Overlay   types.AROverlay `json:"overlay"`
}

// PlaybackPlan is the full multi-sensory schedule for one play call.
type PlaybackPlan struct {
	SessionID     string              `json:"session_id"`
	Segments      []segment.Segment   `json:"segments"`
	Prosody       types.ProsodyPreset `json:"prosody"`
	HapticEvents  []HapticEvent       `json:"haptic_events"`
	ScentEvents   []ScentEvent        `json:"scent_events"`
	AREvents      []AREvent           `json:"ar_events"`
	DurationTotal float64             `json:"duration_total"`
}

// PlayResult is the outcome of a play call.
type PlayResult struct {
	SessionID   string               `json:"session_id"`
	PlaybackURL string               `json:"playback_url"`
	Plan        PlaybackPlan         `json:"plan"`
	Emotion     types.EmotionReading `json:"emotion"`

	// Degraded is true when TTS synthesis failed and the plan carries no
	// playback audio. The sensory schedule is still complete.
	Degraded bool `json:"degraded,omitempty"`
}

// PauseResult is the outcome of a pause call.
type PauseResult struct {
	Status       string `json:"status"`
	CurrentIndex int    `json:"current_index"`
	Playing      bool   `json:"playing"`
}

// SeekResult is the outcome of a seek call.
type SeekResult struct {
	Status          string  `json:"status"`
	CurrentIndex    int     `json:"current_index"`
	SegmentText     string  `json:"segment_text"`
	SegmentDuration float64 `json:"segment_duration"`
}

// SummaryResult is the outcome of a summary call.
type SummaryResult struct {
	Summary         string               `json:"summary"`
	TotalSegments   int                  `json:"total_segments"`
	TotalHighlights int                  `json:"total_highlights"`
	CurrentPosition int                  `json:"current_position"`
	Playing         bool                 `json:"playing"`
	Emotion         types.EmotionReading `json:"emotion"`
}
