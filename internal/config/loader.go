package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts":     {"elevenlabs", "openai", "mock"},
	"stt":     {"openai", "whisper", "mock"},
	"emotion": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "lexicon", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandSecrets(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandSecrets resolves $VAR and ${VAR} references in provider credentials,
// so keys can live in the environment instead of the config file.
func expandSecrets(cfg *Config) {
	cfg.Providers.TTS.APIKey = os.ExpandEnv(cfg.Providers.TTS.APIKey)
	cfg.Providers.STT.APIKey = os.ExpandEnv(cfg.Providers.STT.APIKey)
	cfg.Providers.Emotion.APIKey = os.ExpandEnv(cfg.Providers.Emotion.APIKey)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Gateway
	if cfg.Gateway.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("gateway.rate_per_second %.2f must not be negative", cfg.Gateway.RatePerSecond))
	}
	if cfg.Gateway.Burst < 0 {
		errs = append(errs, fmt.Errorf("gateway.burst %d must not be negative", cfg.Gateway.Burst))
	}
	if q := cfg.Gateway.Quotas; q.Play < 0 || q.TTS < 0 || q.ImageGen < 0 {
		errs = append(errs, errors.New("gateway.quotas values must not be negative"))
	}
	if cfg.Gateway.APIKeysEnv != "" && os.Getenv(cfg.Gateway.APIKeysEnv) == "" {
		slog.Warn("gateway api_keys_env variable is empty; all requests will be rejected",
			"env", cfg.Gateway.APIKeysEnv)
	}

	// Provider name validation, warn for unknown names.
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("tts", cfg.Providers.TTS.Fallback)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.STT.Fallback)
	validateProviderName("emotion", cfg.Providers.Emotion.Name)
	validateProviderName("emotion", cfg.Providers.Emotion.Fallback)

	if cfg.Providers.Emotion.Name == "" {
		slog.Warn("no emotion provider configured; classification falls back to the local lexicon")
	}

	// Sync
	if cfg.Sync.Root != "" && len(cfg.Sync.AllowedPaths) == 0 {
		errs = append(errs, errors.New("sync.allowed_paths is required when sync.root is set"))
	}
	for i, p := range cfg.Sync.AllowedPaths {
		if strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
			errs = append(errs, fmt.Errorf("sync.allowed_paths[%d] %q must be relative and must not contain ..", i, p))
		}
	}

	// Device duplicate ID detection
	deviceIDsSeen := make(map[string]int, len(cfg.Devices))

	// Devices
	for i, dev := range cfg.Devices {
		prefix := fmt.Sprintf("devices[%d]", i)
		if dev.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := deviceIDsSeen[dev.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of devices[%d]", prefix, dev.ID, prev))
			}
			deviceIDsSeen[dev.ID] = i
		}
		if !dev.Class.IsValid() {
			errs = append(errs, fmt.Errorf("%s.class %q is invalid", prefix, dev.Class))
		}
		if len(dev.Capabilities) == 0 {
			errs = append(errs, fmt.Errorf("%s.capabilities must not be empty", prefix))
		}
		for j, c := range dev.Capabilities {
			if !c.IsValid() {
				errs = append(errs, fmt.Errorf("%s.capabilities[%d] %q is invalid", prefix, j, c))
			}
		}
	}

	// Orchestrator
	if cfg.Orchestrator.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.session_ttl %s must not be negative", cfg.Orchestrator.SessionTTL))
	}
	if cfg.Orchestrator.ReadingWPM < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.reading_wpm %d must not be negative", cfg.Orchestrator.ReadingWPM))
	}
	if cfg.Orchestrator.MaxInflightPerSession < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.max_inflight_per_session %d must not be negative", cfg.Orchestrator.MaxInflightPerSession))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
