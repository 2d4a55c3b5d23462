package tts

import "github.com/modernreader/sensoria/pkg/types"

// VoiceProfile describes a synthesis voice offered by a backend.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS backend this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, age, accent, etc.).
	Metadata map[string]string
}

// Request is one synthesis job: a text span plus the prosody shaped from the
// span's emotion.
type Request struct {
	// Text is the content to speak. Must be non-empty.
	Text string

	// Voice selects the backend voice. An empty ID lets the backend pick its
	// default narration voice.
	Voice VoiceProfile

	// Prosody carries the emotion-derived rate, pitch and volume adjustments.
	Prosody types.ProsodyPreset

	// Format requests an output container ("mp3", "pcm"). Backends fall back
	// to their default when empty or unsupported.
	Format string
}

// Result is the synthesized audio for one request.
type Result struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// MIME is the payload's media type ("audio/mpeg", "audio/pcm").
	MIME string

	// Provider names the backend that produced the audio.
	Provider string
}
