// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (the OpenAI audio API or a
// local whisper.cpp model) behind a uniform batch interface. Readers record
// short voice notes and annotations, so the unit of work is one complete
// recording rather than a live stream.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Request is one transcription job.
type Request struct {
	// Audio is the complete recording. Must be non-empty. The expected
	// encoding is backend-specific; see MIME.
	Audio []byte

	// MIME describes the recording's media type ("audio/wav", "audio/pcm",
	// "audio/mpeg"). Backends reject types they cannot decode.
	MIME string

	// Language is the BCP-47 language tag of the speech (e.g., "en", "zh").
	// An empty string lets the backend auto-detect, if supported.
	Language string
}

// Result is the transcription of one recording.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Language is the detected or requested language tag. May be empty when
	// the backend does not report one.
	Language string

	// Provider names the backend that produced the transcript.
	Provider string
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use. Multiple transcriptions
// may run in parallel.
type Provider interface {
	// Transcribe converts the recording to text. It blocks until the backend
	// finished or ctx is done. An empty req.Audio is an error.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
