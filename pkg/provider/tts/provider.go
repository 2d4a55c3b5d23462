// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or the
// OpenAI speech API) and presents a uniform request/result interface. The
// playback pipeline synthesizes one segment at a time, so providers receive
// short spans together with the prosody preset derived from the span's
// emotion.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel (e.g., segments of several sessions at once).
type Provider interface {
	// Synthesize renders the request's text as audio. It blocks until the
	// backend finished or ctx is done.
	//
	// An empty req.Text is an error. Prosody values the backend cannot honour
	// are applied best-effort; the result is still usable audio.
	Synthesize(ctx context.Context, req Request) (*Result, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
