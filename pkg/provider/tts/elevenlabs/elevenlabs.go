// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs HTTP synthesis API. It implements the tts.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/provider/tts"
	"github.com/modernreader/sensoria/pkg/types"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"

	// defaultVoiceID is the narration voice used when the request does not
	// name one (ElevenLabs premade voice "Rachel").
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128", "pcm_16000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the API base URL. Tests point it at a local server.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the ElevenLabs HTTP API.
type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	outputFormat string
	httpClient   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fault.New(fault.InvalidArgument, "elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- synthesis request types ----

// voiceSettings mirrors the ElevenLabs voice_settings object. Speed carries
// the prosody rate; pitch has no ElevenLabs knob and is dropped.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// synthesisRequest is the JSON body of POST /v1/text-to-speech/{voice_id}.
type synthesisRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// Synthesize posts the text to the ElevenLabs synthesis endpoint and returns
// the encoded audio.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if req.Text == "" {
		return nil, fault.New(fault.InvalidArgument, "elevenlabs: text must not be empty")
	}

	voiceID := req.Voice.ID
	if voiceID == "" {
		voiceID = defaultVoiceID
	}

	body, err := buildSynthesisBody(req.Text, p.model, req.Prosody)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "elevenlabs: encode request")
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", p.baseURL, voiceID, p.outputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "elevenlabs: build request")
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.Wrap(fault.Timeout, err, "elevenlabs: synthesize")
		}
		return nil, fault.Wrap(fault.UpstreamUnavailable, err, "elevenlabs: synthesize")
	}
	defer resp.Body.Close()

	if err := statusFault(resp.StatusCode); err != nil {
		return nil, err
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.UpstreamUnavailable, err, "elevenlabs: read audio")
	}

	return &tts.Result{
		Audio:    audio,
		MIME:     mimeForFormat(p.outputFormat),
		Provider: "elevenlabs",
	}, nil
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "elevenlabs: list voices")
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.UpstreamUnavailable, err, "elevenlabs: list voices HTTP")
	}
	defer resp.Body.Close()

	if err := statusFault(resp.StatusCode); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.UpstreamUnavailable, err, "elevenlabs: list voices read")
	}
	profiles, err := parseVoicesResponse(data)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "elevenlabs: list voices decode")
	}
	return profiles, nil
}

// ---- helpers ----

// buildSynthesisBody constructs the JSON synthesis payload. The prosody rate
// becomes the voice_settings speed, clamped to the range ElevenLabs accepts.
// Used by tests to verify the payload shape without a real connection.
func buildSynthesisBody(text, model string, prosody types.ProsodyPreset) ([]byte, error) {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	if prosody.Rate > 0 {
		vs.Speed = types.ClampRange(prosody.Rate, 0.7, 1.2)
	}
	return json.Marshal(synthesisRequest{Text: text, ModelID: model, VoiceSettings: vs})
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of VoiceProfile values.
func parseVoicesResponse(data []byte) ([]tts.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles, nil
}

// statusFault maps an ElevenLabs HTTP status onto the error taxonomy.
func statusFault(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fault.New(fault.Unauthorized, "elevenlabs: rejected credentials (%d)", code)
	case code == http.StatusTooManyRequests:
		return fault.New(fault.QuotaExceeded, "elevenlabs: rate limited")
	case code == http.StatusRequestTimeout || code >= 500:
		return fault.New(fault.UpstreamUnavailable, "elevenlabs: status %d", code)
	default:
		return fault.New(fault.Internal, "elevenlabs: unexpected status %d", code)
	}
}

// mimeForFormat maps an ElevenLabs output_format onto a media type.
func mimeForFormat(format string) string {
	switch {
	case len(format) >= 3 && format[:3] == "mp3":
		return "audio/mpeg"
	case len(format) >= 3 && format[:3] == "pcm":
		return "audio/pcm"
	default:
		return "application/octet-stream"
	}
}
