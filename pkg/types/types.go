// Package types defines the shared types used across all Sensoria packages.
//
// These types form the lingua franca between the segmenter, the emotion
// engine, the mapping tables, the device layer, and the orchestrator. They are
// intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// EmotionLabel is the closed set of emotions the system maps to modalities.
// Unknown labels must never propagate past parsing — use ParseEmotionLabel.
type EmotionLabel string

const (
	EmotionHappy    EmotionLabel = "happy"
	EmotionSad      EmotionLabel = "sad"
	EmotionAngry    EmotionLabel = "angry"
	EmotionFear     EmotionLabel = "fear"
	EmotionSurprise EmotionLabel = "surprise"
	EmotionDisgust  EmotionLabel = "disgust"
	EmotionNeutral  EmotionLabel = "neutral"
)

// AllEmotions lists every label in a stable order.
var AllEmotions = []EmotionLabel{
	EmotionHappy, EmotionSad, EmotionAngry, EmotionFear,
	EmotionSurprise, EmotionDisgust, EmotionNeutral,
}

// emotionAliases maps label families that clients still send to their
// canonical label.
var emotionAliases = map[string]EmotionLabel{
	"excited": EmotionHappy,
	"calm":    EmotionNeutral,
}

// IsValid reports whether l is one of the seven canonical labels.
func (l EmotionLabel) IsValid() bool {
	switch l {
	case EmotionHappy, EmotionSad, EmotionAngry, EmotionFear,
		EmotionSurprise, EmotionDisgust, EmotionNeutral:
		return true
	}
	return false
}

// ParseEmotionLabel maps a raw label string to a canonical EmotionLabel.
// Alias families (excited → happy, calm → neutral) are honoured; anything
// else collapses to neutral. The second return reports whether the input was
// recognised (canonical or alias).
func ParseEmotionLabel(raw string) (EmotionLabel, bool) {
	if l := EmotionLabel(raw); l.IsValid() {
		return l, true
	}
	if l, ok := emotionAliases[raw]; ok {
		return l, true
	}
	return EmotionNeutral, false
}

// EmotionSource identifies which input modality produced a reading.
type EmotionSource string

const (
	SourceText  EmotionSource = "text"
	SourceImage EmotionSource = "image"
	SourceAudio EmotionSource = "audio"
)

// EmotionReading is the result of one emotion prediction.
type EmotionReading struct {
	// Primary is the dominant emotion.
	Primary EmotionLabel `json:"primary"`

	// Intensity in [0,1], clamped on ingress.
	Intensity float64 `json:"intensity"`

	// Secondary holds up to three runner-up labels, strongest first.
	Secondary []EmotionLabel `json:"secondary,omitempty"`

	// Features is a free-form description of what drove the prediction
	// (matched keywords, model name, "unavailable" for degraded readings).
	Features string `json:"features,omitempty"`

	// Source is the input modality.
	Source EmotionSource `json:"source"`

	// Confidence in [0,1]. Zero means the reading is degraded (no backend).
	Confidence float64 `json:"confidence"`

	// TSUnix is the prediction time in Unix seconds.
	TSUnix int64 `json:"ts_unix"`
}

// Clamp forces all bounded fields into range and truncates Secondary to three
// entries. Returns the receiver for chaining.
func (r EmotionReading) Clamp() EmotionReading {
	r.Intensity = ClampUnit(r.Intensity)
	r.Confidence = ClampUnit(r.Confidence)
	if !r.Primary.IsValid() {
		r.Primary = EmotionNeutral
	}
	if len(r.Secondary) > 3 {
		r.Secondary = r.Secondary[:3]
	}
	return r
}

// ClampUnit clamps v to [0,1].
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampRange clamps v to [lo,hi].
func ClampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ─────────────────────────────────────────────────────────────────────────────
// Modality payloads
// ─────────────────────────────────────────────────────────────────────────────

// ProsodyPreset carries the voice parameters handed to a TTS port.
type ProsodyPreset struct {
	// Voice is the logical voice name (e.g. "cheerful"); providers map it to
	// a concrete voice ID.
	Voice string `json:"voice"`

	// Rate in [0.5, 2.0], 1.0 = normal speed.
	Rate float64 `json:"rate"`

	// Pitch in [0.5, 1.5], 1.0 = normal pitch.
	Pitch float64 `json:"pitch"`

	// Volume in [0.0, 1.2], 1.0 = normal volume.
	Volume float64 `json:"volume"`
}

// Repeat describes how a haptic pattern loops. Count < 0 means infinite.
type Repeat struct {
	Count    int `json:"count"`
	PeriodMS int `json:"period_ms"`
}

// HapticPattern describes one tactile effect.
type HapticPattern struct {
	Name        string   `json:"name"`
	Intensity   float64  `json:"intensity"`
	FrequencyHz int      `json:"frequency_hz"`
	DurationMS  int      `json:"duration_ms"`
	Regions     []string `json:"regions"`
	Repeat      Repeat   `json:"repeat"`
}

// ScentRecipe describes one olfactory effect.
type ScentRecipe struct {
	Name            string   `json:"name"`
	Notes           []string `json:"notes"`
	Intensity       float64  `json:"intensity"`
	DurationSeconds int      `json:"duration_seconds"`
}

// TasteProfile describes one gustatory effect for food-printer class devices.
type TasteProfile struct {
	Flavor      string   `json:"flavor"`
	Ingredients []string `json:"ingredients"`
	Temperature string   `json:"temperature"`
	Texture     string   `json:"texture"`
}

// AROverlay describes one visual overlay effect.
type AROverlay struct {
	Kind      string `json:"kind"`
	ColorRGB  [3]int `json:"color_rgb"`
	Opacity   float64 `json:"opacity"`
	Animation string `json:"animation"`
	Particles int    `json:"particles"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Devices
// ─────────────────────────────────────────────────────────────────────────────

// Capability is a typed declaration of an output modality a device supports.
type Capability string

const (
	CapHaptic  Capability = "haptic"
	CapScent   Capability = "scent"
	CapTaste   Capability = "taste"
	CapAR      Capability = "ar"
	CapTTS     Capability = "tts"
	CapDisplay Capability = "display"
)

// IsValid reports whether c is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapHaptic, CapScent, CapTaste, CapAR, CapTTS, CapDisplay:
		return true
	}
	return false
}

// DeviceClass groups devices by payload shape.
type DeviceClass string

const (
	ClassWatch          DeviceClass = "watch"
	ClassARGlasses      DeviceClass = "ar_glasses"
	ClassFullBodyHaptic DeviceClass = "full_body_haptic"
	ClassHapticVest     DeviceClass = "haptic_vest"
	ClassScent          DeviceClass = "scent"
	ClassTaste          DeviceClass = "taste"
	ClassGenericTTS     DeviceClass = "generic_tts"
	ClassGenericDisplay DeviceClass = "generic_display"
)

// IsValid reports whether c is a known device class.
func (c DeviceClass) IsValid() bool {
	switch c {
	case ClassWatch, ClassARGlasses, ClassFullBodyHaptic, ClassHapticVest,
		ClassScent, ClassTaste, ClassGenericTTS, ClassGenericDisplay:
		return true
	}
	return false
}

// DeviceStatus is the registry's view of a device's liveness.
type DeviceStatus string

const (
	StatusOnline   DeviceStatus = "online"
	StatusDegraded DeviceStatus = "degraded"
	StatusOffline  DeviceStatus = "offline"
)

// DeviceDescriptor is the registry record for one connected device.
type DeviceDescriptor struct {
	ID           string       `json:"id"`
	Class        DeviceClass  `json:"class"`
	Capabilities []Capability `json:"capabilities"`
	Addr         string       `json:"addr,omitempty"`
	Status       DeviceStatus `json:"status"`
	LastSeen     time.Time    `json:"last_seen"`
}

// Has reports whether the descriptor declares capability c.
func (d DeviceDescriptor) Has(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// SensoryPayload is the capability-shaped subset of an emotion's modality
// mapping delivered to one device. Only sections matching the target device's
// capabilities are populated.
type SensoryPayload struct {
	// Emotion is the reading that produced this payload.
	Emotion EmotionReading `json:"emotion"`

	// PlanGeneration stamps the originating playback plan so adapters can
	// drop stale events after a re-play.
	PlanGeneration uint64 `json:"plan_generation,omitempty"`

	Prosody *ProsodyPreset `json:"prosody,omitempty"`
	Haptic  *HapticPattern `json:"haptic,omitempty"`
	Scent   *ScentRecipe   `json:"scent,omitempty"`
	Taste   *TasteProfile  `json:"taste,omitempty"`
	AR      *AROverlay     `json:"ar,omitempty"`

	// Text carries display/tts content refs for devices that render text.
	Text string `json:"text,omitempty"`
}

// Capabilities returns the capability set the populated sections require.
func (p SensoryPayload) Capabilities() []Capability {
	var caps []Capability
	if p.Haptic != nil {
		caps = append(caps, CapHaptic)
	}
	if p.Scent != nil {
		caps = append(caps, CapScent)
	}
	if p.Taste != nil {
		caps = append(caps, CapTaste)
	}
	if p.AR != nil {
		caps = append(caps, CapAR)
	}
	if p.Prosody != nil {
		caps = append(caps, CapTTS)
	}
	if p.Text != "" {
		caps = append(caps, CapDisplay)
	}
	return caps
}

// ─────────────────────────────────────────────────────────────────────────────
// Dispatch results
// ─────────────────────────────────────────────────────────────────────────────

// DispatchStatus is the terminal outcome of one device dispatch.
type DispatchStatus string

const (
	DispatchSuccess        DispatchStatus = "success"
	DispatchRetriedSuccess DispatchStatus = "retried_success"
	DispatchFailed         DispatchStatus = "failed"
	DispatchSkipped        DispatchStatus = "skipped_incompatible"
)

// DispatchResult records the outcome of delivering one payload to one device.
// Results are never silently dropped — a broadcast produces exactly one per
// targeted device.
type DispatchResult struct {
	Status    DispatchStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	Error     string         `json:"error,omitempty"`
	LatencyMS int64          `json:"latency_ms"`
}
