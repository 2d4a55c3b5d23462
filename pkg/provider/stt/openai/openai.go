// Package openai provides an stt.Provider backed by the OpenAI audio
// transcription API (whisper-1).
package openai

import (
	"bytes"
	"context"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

// Provider implements stt.Provider using the OpenAI transcription API.
type Provider struct {
	client oai.Client
	model  oai.AudioModel
}

var _ stt.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the transcription model.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI STT Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fault.New(fault.InvalidArgument, "openai stt: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	model := defaultModel
	if cfg.model != "" {
		model = oai.AudioModel(cfg.model)
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	if len(req.Audio) == 0 {
		return nil, fault.New(fault.InvalidArgument, "openai stt: audio must not be empty")
	}

	mime := req.MIME
	if mime == "" {
		mime = "audio/wav"
	}
	params := oai.AudioTranscriptionNewParams{
		Model: p.model,
		File:  oai.File(bytes.NewReader(req.Audio), fileNameForMIME(mime), mime),
	}
	if req.Language != "" {
		params.Language = param.NewOpt(req.Language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.Wrap(fault.Timeout, err, "openai stt: transcribe")
		}
		return nil, fault.Wrap(fault.UpstreamUnavailable, err, "openai stt: transcribe")
	}

	return &stt.Result{
		Text:     resp.Text,
		Language: req.Language,
		Provider: "openai",
	}, nil
}

// fileNameForMIME gives the multipart upload a file name matching the media
// type, which the API uses to pick a decoder.
func fileNameForMIME(mime string) string {
	switch mime {
	case "audio/mpeg", "audio/mp3":
		return "note.mp3"
	case "audio/ogg":
		return "note.ogg"
	case "audio/webm":
		return "note.webm"
	default:
		return "note.wav"
	}
}
