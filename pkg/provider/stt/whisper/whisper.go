// Package whisper provides an stt.Provider backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all concurrent
// transcriptions; each call creates its own whisper context because contexts
// are not thread-safe.
package whisper

import (
	"context"
	"errors"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/provider/stt"
)

const defaultLanguage = "en"

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using whisper.cpp Go bindings (CGO),
// eliminating network overhead entirely.
type Provider struct {
	model    whisperlib.Model
	language string
	channels int
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default language code for transcription (e.g., "en",
// "zh"). Requests carrying their own language override it.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithChannels sets the channel count of incoming PCM recordings. Multi
// channel audio is down-mixed to mono before inference. Defaults to 1.
func WithChannels(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.channels = n
		}
	}
}

// New creates a Provider that loads the whisper.cpp model from the given file
// path. The caller must call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, fault.New(fault.InvalidArgument, "whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "whisper: load model %q", modelPath)
	}
	p := &Provider{
		model:    model,
		language: defaultLanguage,
		channels: 1,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference over the recording. The audio must be
// 16 kHz 16-bit little-endian signed PCM ("audio/pcm"); other containers are
// rejected so callers decode before handing audio over.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	if len(req.Audio) == 0 {
		return nil, fault.New(fault.InvalidArgument, "whisper: audio must not be empty")
	}
	if req.MIME != "" && req.MIME != "audio/pcm" {
		return nil, fault.New(fault.Incompatible, "whisper: unsupported media type %q", req.MIME)
	}
	if err := ctx.Err(); err != nil {
		return nil, fault.Wrap(fault.Timeout, err, "whisper: transcribe")
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	samples := pcmToFloat32Mono(req.Audio, p.channels)

	// Contexts are single-use and not thread-safe; the shared model is.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "whisper: create context")
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, fault.Wrap(fault.InvalidArgument, err, "whisper: set language %q", lang)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fault.Wrap(fault.Internal, err, "whisper: process audio")
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fault.Wrap(fault.Internal, err, "whisper: read segment")
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return &stt.Result{
		Text:     strings.Join(parts, " "),
		Language: lang,
		Provider: "whisper",
	}, nil
}
