package mapping

import "github.com/modernreader/sensoria/pkg/types"

// intensityFloor prevents a near-zero reading from muting all modalities.
const intensityFloor = 0.2

// Scale applies the reading's intensity to a table entry: each payload
// intensity becomes the table value multiplied by max(0.2, intensity), then
// clamped to the field's range. Non-intensity fields pass through unchanged.
func Scale(e Entry, reading types.EmotionReading) Entry {
	f := reading.Intensity
	if f < intensityFloor {
		f = intensityFloor
	}

	e.Haptic.Intensity = types.ClampUnit(e.Haptic.Intensity * f)
	e.Scent.Intensity = types.ClampUnit(e.Scent.Intensity * f)
	return e
}

// Resolve is the common lookup-then-scale path: the entry for the reading's
// primary label with intensities already applied.
func Resolve(reading types.EmotionReading) Entry {
	return Scale(Lookup(reading.Primary), reading)
}
