package device

import (
	"github.com/modernreader/sensoria/internal/mapping"
	"github.com/modernreader/sensoria/pkg/types"
)

// watchNudgeDurationMS is the short scalar haptic pulse watches receive in
// place of a full pattern.
const watchNudgeDurationMS = 500

// ShapePayload builds the capability-shaped subset of an emotion's modality
// mapping for one device. Returns ok=false when the device can consume
// nothing from the mapping — the caller records skipped_incompatible.
func ShapePayload(desc types.DeviceDescriptor, reading types.EmotionReading, content string, gen uint64) (types.SensoryPayload, bool) {
	entry := mapping.Resolve(reading)

	p := types.SensoryPayload{Emotion: reading, PlanGeneration: gen}
	populated := false

	if desc.Has(types.CapHaptic) {
		h := entry.Haptic
		if desc.Class == types.ClassWatch {
			// Watches get a scalar nudge rather than a spatial pattern.
			h = types.HapticPattern{
				Name:        "nudge",
				Intensity:   entry.Haptic.Intensity,
				FrequencyHz: entry.Haptic.FrequencyHz,
				DurationMS:  watchNudgeDurationMS,
				Regions:     []string{"wrist"},
				Repeat:      types.Repeat{Count: 1},
			}
		}
		p.Haptic = &h
		populated = true
	}
	if desc.Has(types.CapScent) {
		s := entry.Scent
		p.Scent = &s
		populated = true
	}
	if desc.Has(types.CapTaste) {
		t := entry.Taste
		p.Taste = &t
		populated = true
	}
	if desc.Has(types.CapAR) {
		a := entry.AR
		p.AR = &a
		populated = true
		if content != "" {
			p.Text = content
		}
	}
	if desc.Has(types.CapTTS) {
		pr := entry.Prosody
		p.Prosody = &pr
		populated = true
	}
	if desc.Has(types.CapDisplay) && content != "" {
		p.Text = content
		populated = true
	}

	return p, populated
}
