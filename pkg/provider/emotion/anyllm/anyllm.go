// Package anyllm provides an LLM-backed text emotion classifier wrapping
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	c, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
//	reading, err := c.ClassifyText(ctx, "I can't believe we won!")
package anyllm

import (
	"context"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/provider/emotion"
	"github.com/modernreader/sensoria/pkg/types"
)

// maxClassifierTokens bounds the completion; the JSON answer is tiny.
const maxClassifierTokens = 256

// Classifier implements emotion.TextClassifier by wrapping any-llm-go.
type Classifier struct {
	backend anyllmlib.Provider
	model   string
	now     func() time.Time
}

var _ emotion.TextClassifier = (*Classifier)(nil)

// New creates a new Classifier backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o-mini").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the provider
// falls back to the relevant environment variable (OPENAI_API_KEY, etc.).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Classifier, error) {
	if providerName == "" {
		return nil, fault.New(fault.InvalidArgument, "anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fault.New(fault.InvalidArgument, "anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidArgument, err, "anyllm: create %q backend", providerName)
	}

	return &Classifier{backend: backend, model: model, now: time.Now}, nil
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fault.New(fault.InvalidArgument,
			"anyllm: unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// ClassifyText implements emotion.TextClassifier.
func (c *Classifier) ClassifyText(ctx context.Context, text string) (types.EmotionReading, error) {
	if text == "" {
		return types.EmotionReading{}, fault.New(fault.InvalidArgument, "anyllm: text must not be empty")
	}

	temperature := 0.0
	maxTokens := maxClassifierTokens
	params := anyllmlib.CompletionParams{
		Model: c.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: emotion.ClassifierPrompt},
			{Role: anyllmlib.RoleUser, Content: text},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return types.EmotionReading{}, fault.Wrap(fault.Timeout, err, "anyllm: classify")
		}
		return types.EmotionReading{}, fault.Wrap(fault.UpstreamUnavailable, err, "anyllm: classify")
	}
	if len(resp.Choices) == 0 {
		return types.EmotionReading{}, fault.New(fault.UpstreamUnavailable, "anyllm: empty choices in response")
	}

	reading, err := emotion.ParseReadingJSON([]byte(resp.Choices[0].Message.ContentString()), types.SourceText)
	if err != nil {
		return types.EmotionReading{}, err
	}
	reading.TSUnix = c.now().Unix()
	return reading, nil
}
