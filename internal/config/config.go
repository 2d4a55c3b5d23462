// Package config provides the configuration schema, loader, and file watcher
// for the sensoria reading server.
package config

import (
	"time"

	"github.com/modernreader/sensoria/pkg/types"
)

// LogLevel controls log verbosity for the sensoria server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler used for server logs.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// Config is the root configuration structure for sensoria.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Sync         SyncConfig         `yaml:"sync"`
	Memory       MemoryConfig       `yaml:"memory"`
	Devices      []DeviceConfig     `yaml:"devices"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// ServerConfig holds network and logging settings for the sensoria server.
type ServerConfig struct {
	// ListenAddr is the TCP address the API server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or json log output. Empty means text.
	LogFormat LogFormat `yaml:"log_format"`

	// MetricsAddr is the address the Prometheus scrape endpoint listens on.
	// Empty disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// GatewayConfig holds API key, rate limit, and quota settings for the gateway.
type GatewayConfig struct {
	// APIKeysEnv names the environment variable holding the comma-separated
	// list of accepted API keys. Keys never live in the config file itself.
	APIKeysEnv string `yaml:"api_keys_env"`

	// RatePerSecond is the sustained per-key request rate. Zero selects the
	// gateway default.
	RatePerSecond float64 `yaml:"rate_per_second"`

	// Burst is the per-key token bucket depth. Zero selects the gateway default.
	Burst int `yaml:"burst"`

	// Quotas are the daily per-subject operation budgets.
	Quotas QuotaConfig `yaml:"quotas"`
}

// QuotaConfig holds the daily per-subject operation budgets. Zero values
// select the gateway defaults.
type QuotaConfig struct {
	Play     int `yaml:"play"`
	TTS      int `yaml:"tts"`
	ImageGen int `yaml:"image_gen"`
}

// ProvidersConfig declares which provider implementation to use for each
// external service the pipeline talks to.
type ProvidersConfig struct {
	TTS     ProviderEntry `yaml:"tts"`
	STT     ProviderEntry `yaml:"stt"`
	Emotion ProviderEntry `yaml:"emotion"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "elevenlabs", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Fallback names a second provider to try when this one fails.
	Fallback string `yaml:"fallback"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// SyncConfig holds settings for the content sync service.
type SyncConfig struct {
	// Root is the directory served by the sync manifest. Empty disables sync.
	Root string `yaml:"root"`

	// AllowedPaths whitelists files and directories under Root, relative to it.
	// Only whitelisted paths appear in the manifest or can be fetched.
	AllowedPaths []string `yaml:"allowed_paths"`

	// FeatureFlags is a static flag map exposed to clients verbatim.
	FeatureFlags map[string]bool `yaml:"feature_flags"`
}

// MemoryConfig holds settings for the reading memory store.
type MemoryConfig struct {
	// SQLitePath is the path of the SQLite database file. Empty selects the
	// in-process store without persistence.
	SQLitePath string `yaml:"sqlite_path"`
}

// DeviceConfig describes one output device registered at startup.
type DeviceConfig struct {
	// ID uniquely identifies the device instance (e.g., "apple_watch").
	ID string `yaml:"id"`

	// Class is the device hardware class.
	Class types.DeviceClass `yaml:"class"`

	// Addr is the device's HTTP endpoint. Empty registers a simulated device.
	Addr string `yaml:"addr"`

	// Capabilities lists the sensory channels the device accepts.
	Capabilities []types.Capability `yaml:"capabilities"`
}

// OrchestratorConfig tunes reading session behaviour.
type OrchestratorConfig struct {
	// SessionTTL is how long an idle session survives before eviction.
	// Zero selects the orchestrator default.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// ReadingWPM is the words-per-minute rate used for duration estimates.
	// Zero selects the segmenter default.
	ReadingWPM int `yaml:"reading_wpm"`

	// MaxInflightPerSession caps concurrent agent tasks per session key.
	// Zero selects the scheduler default.
	MaxInflightPerSession int `yaml:"max_inflight_per_session"`
}
