// Command sensoria is the main entry point for the sensoria reading server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/modernreader/sensoria/internal/app"
	"github.com/modernreader/sensoria/internal/config"
	"github.com/modernreader/sensoria/internal/observe"
	"github.com/modernreader/sensoria/internal/resilience"
	"github.com/modernreader/sensoria/pkg/provider/emotion"
	emotionanyllm "github.com/modernreader/sensoria/pkg/provider/emotion/anyllm"
	emotionmock "github.com/modernreader/sensoria/pkg/provider/emotion/mock"
	"github.com/modernreader/sensoria/pkg/provider/stt"
	sttmock "github.com/modernreader/sensoria/pkg/provider/stt/mock"
	sttopenai "github.com/modernreader/sensoria/pkg/provider/stt/openai"
	"github.com/modernreader/sensoria/pkg/provider/stt/whisper"
	"github.com/modernreader/sensoria/pkg/provider/tts"
	"github.com/modernreader/sensoria/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/modernreader/sensoria/pkg/provider/tts/mock"
	ttsopenai "github.com/modernreader/sensoria/pkg/provider/tts/openai"
	"github.com/modernreader/sensoria/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A .env file beside the binary supplies API keys during development.
	// Missing files are fine; real deployments set the environment directly.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sensoria: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sensoria: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := newLogger(logLevel, cfg.Server.LogFormat)
	slog.SetDefault(logger)

	slog.Info("sensoria starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Config watcher ────────────────────────────────────────────────────────
	// Log level changes apply immediately; everything else needs a restart.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.GatewayLimitsChanged || d.FeatureFlagsChanged || d.DevicesChanged {
			slog.Warn("gateway limit, feature flag, or device changes apply on restart")
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "sensoria",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with sensoria. Used for startup logging.
var builtinProviders = map[string][]string{
	"tts":     {"elevenlabs", "openai", "mock"},
	"stt":     {"openai", "whisper", "mock"},
	"emotion": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "mock"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.Model != "" {
			opts = append(opts, ttsopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{
			SynthesizeResult: &tts.Result{MIME: "audio/mpeg", Provider: "mock"},
		}, nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.Model != "" {
			opts = append(opts, sttopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		return sttopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(modelPath, opts...)
	})

	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{
			TranscribeResult: &stt.Result{Provider: "mock"},
		}, nil
	})

	// ── Emotion ───────────────────────────────────────────────────────────────
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterEmotion(providerName, func(entry config.ProviderEntry) (emotion.TextClassifier, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return emotionanyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterEmotion("ollama", func(entry config.ProviderEntry) (emotion.TextClassifier, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return emotionanyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterEmotion("mock", func(config.ProviderEntry) (emotion.TextClassifier, error) {
		return &emotionmock.Classifier{
			Reading: types.EmotionReading{Primary: types.EmotionNeutral, Confidence: 1},
		}, nil
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry,
// wraps them in fallback chains where the config names a fallback, and returns
// them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "tts", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		} else {
			ps.TTS = p
			slog.Info("provider created", "kind", "tts", "name", name)

			if fb := cfg.Providers.TTS.Fallback; fb != "" {
				entry := cfg.Providers.TTS
				entry.Name = fb
				fp, err := reg.CreateTTS(entry)
				if err != nil {
					slog.Warn("tts fallback unavailable", "name", fb, "err", err)
				} else {
					chain := resilience.NewTTSFallback(p, name, resilience.FallbackConfig{
						CircuitBreaker: resilience.CircuitBreakerConfig{Name: "tts/" + name},
					})
					chain.AddFallback(fb, fp)
					ps.TTS = chain
					slog.Info("provider fallback wired", "kind", "tts", "primary", name, "fallback", fb)
				}
			}
		}
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "stt", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)

			if fb := cfg.Providers.STT.Fallback; fb != "" {
				entry := cfg.Providers.STT
				entry.Name = fb
				fp, err := reg.CreateSTT(entry)
				if err != nil {
					slog.Warn("stt fallback unavailable", "name", fb, "err", err)
				} else {
					chain := resilience.NewSTTFallback(p, name, resilience.FallbackConfig{
						CircuitBreaker: resilience.CircuitBreakerConfig{Name: "stt/" + name},
					})
					chain.AddFallback(fb, fp)
					ps.STT = chain
					slog.Info("provider fallback wired", "kind", "stt", "primary", name, "fallback", fb)
				}
			}
		}
	}

	// "lexicon" is not an external provider: an empty Emotion slot makes the
	// engine classify with the built-in lexicon.
	if name := cfg.Providers.Emotion.Name; name != "" && name != "lexicon" {
		p, err := reg.CreateEmotion(cfg.Providers.Emotion)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "emotion", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create emotion provider %q: %w", name, err)
		} else {
			ps.Emotion = p
			slog.Info("provider created", "kind", "emotion", "name", name)

			if fb := cfg.Providers.Emotion.Fallback; fb != "" && fb != "lexicon" {
				entry := cfg.Providers.Emotion
				entry.Name = fb
				fp, err := reg.CreateEmotion(entry)
				if err != nil {
					slog.Warn("emotion fallback unavailable", "name", fb, "err", err)
				} else {
					chain := resilience.NewEmotionFallback(p, name, resilience.FallbackConfig{
						CircuitBreaker: resilience.CircuitBreakerConfig{Name: "emotion/" + name},
					})
					chain.AddFallback(fb, fp)
					ps.Emotion = chain
					slog.Info("provider fallback wired", "kind", "emotion", "primary", name, "fallback", fb)
				}
			}
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         sensoria — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Emotion", cfg.Providers.Emotion.Name, cfg.Providers.Emotion.Model)
	memoryBackend := "in-process"
	if cfg.Memory.SQLitePath != "" {
		memoryBackend = "sqlite"
	}
	fmt.Printf("║  Memory          : %-19s ║\n", memoryBackend)
	syncState := "(disabled)"
	if cfg.Sync.Root != "" {
		syncState = "enabled"
	}
	fmt.Printf("║  Sync            : %-19s ║\n", syncState)
	fmt.Printf("║  Devices         : %-19d ║\n", len(cfg.Devices))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║  Metrics addr    : %-19s ║\n", cfg.Server.MetricsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler, format config.LogFormat) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: level}
	if format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
}

// slogLevel maps the config enum onto slog's levels.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
