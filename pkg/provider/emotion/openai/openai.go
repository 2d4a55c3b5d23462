// Package openai provides emotion classifiers backed by the OpenAI API.
// The vision classifier sends the illustration as an inline data URL to a
// multimodal chat model and expects the shared JSON classification shape.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/provider/emotion"
	"github.com/modernreader/sensoria/pkg/types"
)

const defaultModel = "gpt-4o-mini"

// VisionClassifier implements emotion.VisionClassifier using OpenAI
// multimodal chat completions.
type VisionClassifier struct {
	client oai.Client
	model  string
	now    func() time.Time
}

var _ emotion.VisionClassifier = (*VisionClassifier)(nil)

// config holds optional configuration for the classifier.
type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option is a functional option for VisionClassifier.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the multimodal chat model.
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

// NewVision constructs a new OpenAI vision classifier.
func NewVision(apiKey string, opts ...Option) (*VisionClassifier, error) {
	if apiKey == "" {
		return nil, fault.New(fault.InvalidArgument, "openai emotion: apiKey must not be empty")
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
		model = cfg.model
	}

	return &VisionClassifier{client: oai.NewClient(reqOpts...), model: model, now: time.Now}, nil
}

// ClassifyImage implements emotion.VisionClassifier. The image is sent as a
// base64 data URL, so no public hosting is needed.
func (c *VisionClassifier) ClassifyImage(ctx context.Context, image []byte) (types.EmotionReading, error) {
	if len(image) == 0 {
		return types.EmotionReading{}, fault.New(fault.InvalidArgument, "openai emotion: image must not be empty")
	}

	dataURL := fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(image))
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(emotion.ClassifierPrompt),
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart("Classify the dominant emotion this illustration conveys."),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return types.EmotionReading{}, fault.Wrap(fault.Timeout, err, "openai emotion: classify image")
		}
		return types.EmotionReading{}, fault.Wrap(fault.UpstreamUnavailable, err, "openai emotion: classify image")
	}
	if len(resp.Choices) == 0 {
		return types.EmotionReading{}, fault.New(fault.UpstreamUnavailable, "openai emotion: empty choices in response")
	}

	reading, err := emotion.ParseReadingJSON([]byte(resp.Choices[0].Message.Content), types.SourceImage)
	if err != nil {
		return types.EmotionReading{}, err
	}
	reading.TSUnix = c.now().Unix()
	return reading, nil
}
