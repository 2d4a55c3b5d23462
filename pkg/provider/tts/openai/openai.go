// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/provider/tts"
)

const defaultModel = oai.SpeechModelTTS1

// speechVoices is the fixed voice catalogue of the OpenAI speech API.
var speechVoices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// Provider implements tts.Provider using the OpenAI speech API.
type Provider struct {
	client oai.Client
	model  oai.SpeechModel
}

var _ tts.Provider = (*Provider)(nil)

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

// WithModel sets the speech model (e.g., "tts-1-hd").
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

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fault.New(fault.InvalidArgument, "openai tts: apiKey must not be empty")
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
		model = oai.SpeechModel(cfg.model)
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Synthesize implements tts.Provider. The prosody rate maps onto the API's
// speed parameter; pitch and volume have no OpenAI knob and are dropped.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if req.Text == "" {
		return nil, fault.New(fault.InvalidArgument, "openai tts: text must not be empty")
	}

	voice := req.Voice.ID
	if voice == "" {
		voice = "alloy"
	}

	params := oai.AudioSpeechNewParams{
		Model: p.model,
		Input: req.Text,
		Voice: oai.AudioSpeechNewParamsVoice(voice),
	}
	if req.Prosody.Rate > 0 {
		// The API accepts 0.25 to 4.0.
		params.Speed = param.NewOpt(req.Prosody.Rate)
	}
	mime := "audio/mpeg"
	if req.Format == "pcm" {
		params.ResponseFormat = oai.AudioSpeechNewParamsResponseFormatPCM
		mime = "audio/pcm"
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.Wrap(fault.Timeout, err, "openai tts: synthesize")
		}
		return nil, fault.Wrap(fault.UpstreamUnavailable, err, "openai tts: synthesize")
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.UpstreamUnavailable, err, "openai tts: read audio")
	}

	return &tts.Result{Audio: audio, MIME: mime, Provider: "openai"}, nil
}

// ListVoices returns the fixed OpenAI speech voice catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	profiles := make([]tts.VoiceProfile, 0, len(speechVoices))
	for _, v := range speechVoices {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v,
			Name:     v,
			Provider: "openai",
		})
	}
	return profiles, nil
}
