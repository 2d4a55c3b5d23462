// Package app wires all sensoria subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithMemoryStore, WithDevicePort, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modernreader/sensoria/internal/agent"
	"github.com/modernreader/sensoria/internal/config"
	"github.com/modernreader/sensoria/internal/device"
	"github.com/modernreader/sensoria/internal/device/httpdev"
	"github.com/modernreader/sensoria/internal/device/sim"
	"github.com/modernreader/sensoria/internal/emotion"
	"github.com/modernreader/sensoria/internal/gateway"
	"github.com/modernreader/sensoria/internal/health"
	"github.com/modernreader/sensoria/internal/observe"
	"github.com/modernreader/sensoria/internal/orchestrator"
	"github.com/modernreader/sensoria/internal/syncsvc"
	"github.com/modernreader/sensoria/pkg/memory"
	memorymock "github.com/modernreader/sensoria/pkg/memory/mock"
	"github.com/modernreader/sensoria/pkg/memory/sqlite"
	emotionprov "github.com/modernreader/sensoria/pkg/provider/emotion"
	"github.com/modernreader/sensoria/pkg/provider/stt"
	"github.com/modernreader/sensoria/pkg/provider/tts"
	"github.com/modernreader/sensoria/pkg/types"
)

// shutdownDrain bounds how long Run waits for the HTTP listener to drain
// after the context is cancelled.
const shutdownDrain = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry,
// typically wrapped in resilience fallback chains.
type Providers struct {
	TTS     tts.Provider
	STT     stt.Provider
	Emotion emotionprov.TextClassifier
}

// App owns all subsystem lifetimes and serves the sensoria reading API.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	store     memory.Store
	registry  *device.Registry
	fanout    *device.Fanout
	scheduler *agent.Scheduler
	agents    *agent.Registry
	engine    *emotion.Engine
	sessions  *orchestrator.Manager
	orch      *orchestrator.Orchestrator
	sync      *syncsvc.Service
	checks    *health.Handler
	gw        *gateway.Gateway

	// ports maps device IDs to injected ports, consulted before the
	// config-driven port construction.
	ports map[string]device.Port

	srv        *http.Server
	metricsSrv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMemoryStore injects a memory store instead of creating one from config.
func WithMemoryStore(s memory.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSyncService injects a sync service instead of creating one from config.
func WithSyncService(s *syncsvc.Service) Option {
	return func(a *App) { a.sync = s }
}

// WithScheduler injects a work scheduler instead of creating one from config.
func WithScheduler(s *agent.Scheduler) Option {
	return func(a *App) { a.scheduler = s }
}

// WithDevicePort injects the port used for the configured device with the
// given ID, instead of constructing one from the device's addr.
func WithDevicePort(id string, p device.Port) Option {
	return func(a *App) {
		if a.ports == nil {
			a.ports = make(map[string]device.Port)
		}
		a.ports[id] = p
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry and wrapped in
// fallback chains). Use Option functions to inject test doubles for any
// subsystem.
//
// New performs all initialisation synchronously: memory store connection,
// device registration, agent runtime assembly, emotion engine and
// orchestrator construction, sync service startup, and gateway wiring.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Memory store ──────────────────────────────────────────────────
	if err := a.initMemory(ctx); err != nil {
		return nil, fmt.Errorf("app: init memory: %w", err)
	}

	// ── 2. Devices ───────────────────────────────────────────────────────
	if err := a.initDevices(); err != nil {
		return nil, fmt.Errorf("app: init devices: %w", err)
	}

	// ── 3. Agent runtime ─────────────────────────────────────────────────
	if err := a.initAgents(ctx); err != nil {
		return nil, fmt.Errorf("app: init agents: %w", err)
	}

	// ── 4. Emotion engine + orchestrator ─────────────────────────────────
	a.initOrchestrator()

	// ── 5. Sync service ──────────────────────────────────────────────────
	if err := a.initSync(); err != nil {
		return nil, fmt.Errorf("app: init sync: %w", err)
	}

	// ── 6. Gateway ───────────────────────────────────────────────────────
	a.initGateway()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMemory opens the SQLite store, or falls back to the in-process store
// when no path is configured.
func (a *App) initMemory(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	path := a.cfg.Memory.SQLitePath
	if path == "" {
		slog.Warn("memory.sqlite_path not set, using in-process store without persistence")
		a.store = memorymock.New()
		return nil
	}

	store, err := sqlite.New(ctx, path)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	slog.Info("memory store opened", "path", path)
	return nil
}

// initDevices builds the registry and fan-out, then connects every
// configured device. Devices with an addr get an HTTP port; the rest get a
// simulated port so the pipeline stays exercisable without hardware.
func (a *App) initDevices() error {
	a.registry = device.NewRegistry()

	for i, dc := range a.cfg.Devices {
		port, err := a.buildPort(dc)
		if err != nil {
			return fmt.Errorf("device %q (index %d): %w", dc.ID, i, err)
		}
		desc := types.DeviceDescriptor{
			ID:           dc.ID,
			Class:        dc.Class,
			Capabilities: dc.Capabilities,
			Addr:         dc.Addr,
		}
		if err := a.registry.Connect(desc, port); err != nil {
			return fmt.Errorf("connect device %q: %w", dc.ID, err)
		}
		slog.Info("device connected", "id", dc.ID, "class", dc.Class, "addr", dc.Addr)
	}

	if a.scheduler == nil {
		var schedOpts []agent.SchedulerOption
		if n := a.cfg.Orchestrator.MaxInflightPerSession; n > 0 {
			schedOpts = append(schedOpts, agent.WithMaxInflight(n))
		}
		a.scheduler = agent.NewScheduler(schedOpts...)
	}

	a.fanout = device.NewFanout(a.registry, device.WithRunner(a.scheduler))
	return nil
}

// buildPort constructs the transport port for one configured device,
// preferring an injected port over the addr-driven choice.
func (a *App) buildPort(dc config.DeviceConfig) (device.Port, error) {
	if p, ok := a.ports[dc.ID]; ok {
		return p, nil
	}
	if dc.Addr != "" {
		return httpdev.New(dc.Addr)
	}
	return sim.New(), nil
}

// initAgents assembles the capability registry and its connectors. The
// vector connector wraps the document store so retrieval agents share the
// fan-out's retry discipline.
func (a *App) initAgents(ctx context.Context) error {
	a.agents = agent.NewRegistry()

	vec, err := agent.NewVector("memory", a.store.Documents())
	if err != nil {
		return fmt.Errorf("create vector connector: %w", err)
	}
	if err := vec.Connect(ctx); err != nil {
		return fmt.Errorf("connect vector connector: %w", err)
	}
	if err := a.agents.RegisterConnector(vec); err != nil {
		return err
	}

	a.closers = append(a.closers, func() error {
		return a.agents.CloseConnectors(context.Background())
	})
	return nil
}

// initOrchestrator builds the emotion engine, session manager, and the
// playback orchestrator on top of them.
func (a *App) initOrchestrator() {
	var engOpts []emotion.Option
	if a.providers.Emotion != nil {
		engOpts = append(engOpts, emotion.WithTextClassifier(a.providers.Emotion))
	}
	a.engine = emotion.New(engOpts...)

	var mgrOpts []orchestrator.ManagerOption
	if ttl := a.cfg.Orchestrator.SessionTTL; ttl > 0 {
		mgrOpts = append(mgrOpts, orchestrator.WithSessionTTL(ttl))
	}
	a.sessions = orchestrator.NewManager(mgrOpts...)
	a.closers = append(a.closers, a.sessions.Close)

	orchOpts := []orchestrator.Option{
		orchestrator.WithBroadcaster(a.fanout),
		orchestrator.WithStore(a.store),
	}
	if a.providers.TTS != nil {
		orchOpts = append(orchOpts, orchestrator.WithTTS(a.providers.TTS))
	}
	if wpm := a.cfg.Orchestrator.ReadingWPM; wpm > 0 {
		orchOpts = append(orchOpts, orchestrator.WithReadingWPM(wpm))
	}
	a.orch = orchestrator.New(a.sessions, a.engine, orchOpts...)
}

// initSync starts the content sync service when a root is configured.
func (a *App) initSync() error {
	if a.sync != nil {
		a.closers = append(a.closers, a.sync.Close)
		return nil
	}
	if a.cfg.Sync.Root == "" {
		return nil
	}

	svc, err := syncsvc.New(a.cfg.Sync.Root, a.cfg.Sync.AllowedPaths,
		syncsvc.WithFeatureFlags(a.cfg.Sync.FeatureFlags),
	)
	if err != nil {
		return err
	}
	a.sync = svc
	a.closers = append(a.closers, svc.Close)
	slog.Info("sync service started", "root", a.cfg.Sync.Root, "paths", len(a.cfg.Sync.AllowedPaths))
	return nil
}

// initGateway assembles the health handler and the outer HTTP gateway.
func (a *App) initGateway() {
	var checkers []health.Checker
	if p, ok := a.store.(interface {
		PingContext(context.Context) error
	}); ok {
		checkers = append(checkers, health.PingChecker("memory", p))
	}
	a.checks = health.New(checkers...)

	apiKeys := ""
	if env := a.cfg.Gateway.APIKeysEnv; env != "" {
		apiKeys = os.Getenv(env)
	}

	gwOpts := []gateway.Option{
		gateway.WithRegistry(a.registry),
		gateway.WithFanout(a.fanout),
		gateway.WithStore(a.store),
		gateway.WithHealth(a.checks),
		gateway.WithQuotas(a.cfg.Gateway.Quotas.Play, a.cfg.Gateway.Quotas.TTS, a.cfg.Gateway.Quotas.ImageGen),
	}
	if a.providers.TTS != nil {
		gwOpts = append(gwOpts, gateway.WithTTS(a.providers.TTS))
	}
	if a.providers.STT != nil {
		gwOpts = append(gwOpts, gateway.WithSTT(a.providers.STT))
	}
	if a.sync != nil {
		gwOpts = append(gwOpts, gateway.WithSync(a.sync))
	}
	if a.cfg.Gateway.RatePerSecond > 0 || a.cfg.Gateway.Burst > 0 {
		gwOpts = append(gwOpts, gateway.WithRateLimit(int(a.cfg.Gateway.RatePerSecond), a.cfg.Gateway.Burst))
	}

	a.gw = gateway.New(a.orch, a.engine, apiKeys, gwOpts...)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the full HTTP surface: the gateway routes wrapped in the
// tracing and metrics middleware. The health probes are mounted beside the
// API routes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", a.gw.Handler())
	a.checks.Register(mux)
	return observe.Middleware(observe.DefaultMetrics())(mux)
}

// Orchestrator exposes the playback orchestrator, used by tests.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Registry exposes the device registry, used by tests.
func (a *App) Registry() *device.Registry { return a.registry }

// Store exposes the memory store, used by tests.
func (a *App) Store() memory.Store { return a.store }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and blocks until ctx is cancelled or the listener
// fails. When a metrics address is configured, a second listener serves the
// Prometheus scrape endpoint.
func (a *App) Run(ctx context.Context) error {
	a.srv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("api listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("app: api listener: %w", err)
		}
	}()

	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		a.metricsSrv = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("metrics listening", "addr", addr)
			if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("app: metrics listener: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownDrain)
	defer cancel()
	a.drainListeners(drainCtx)

	return ctx.Err()
}

// drainListeners stops accepting connections and waits for in-flight
// requests, bounded by ctx.
func (a *App) drainListeners(ctx context.Context) {
	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			slog.Warn("api listener drain error", "err", err)
		}
		a.srv = nil
	}
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			slog.Warn("metrics listener drain error", "err", err)
		}
		a.metricsSrv = nil
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop accepting requests first so closers see no new work.
		a.drainListeners(ctx)

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
