// Package gateway is the HTTP/WebSocket edge of the orchestrator. It
// authenticates requests, enforces rate limits and daily quotas, translates
// JSON bodies into the internal contracts, and maps error kinds onto HTTP
// status codes. No business logic lives here.
package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/modernreader/sensoria/internal/device"
	"github.com/modernreader/sensoria/internal/emotion"
	"github.com/modernreader/sensoria/internal/health"
	"github.com/modernreader/sensoria/internal/orchestrator"
	"github.com/modernreader/sensoria/internal/syncsvc"
	"github.com/modernreader/sensoria/pkg/memory"
	"github.com/modernreader/sensoria/pkg/provider/stt"
	"github.com/modernreader/sensoria/pkg/provider/tts"
)

// Gateway wires the HTTP surface to the internal components. Optional
// collaborators may be nil; their routes then answer upstream_unavailable.
type Gateway struct {
	orch     *orchestrator.Orchestrator
	engine   *emotion.Engine
	registry *device.Registry
	fanout   *device.Fanout
	store    memory.Store
	tts      tts.Provider
	stt      stt.Provider
	sync     *syncsvc.Service
	health   *health.Handler

	log     *slog.Logger
	keys    keySet
	now     func() time.Time
	limiter *rateLimiter
	quota   *quotaTracker

	rate, burst         int
	playQ, ttsQ, imageQ int
}

// Option is a functional option for [New].
type Option func(*Gateway)

// WithRegistry sets the device registry behind the /api/devices routes.
func WithRegistry(r *device.Registry) Option {
	return func(g *Gateway) { g.registry = r }
}

// WithFanout sets the broadcaster behind /api/broadcast-to-devices.
func WithFanout(f *device.Fanout) Option {
	return func(g *Gateway) { g.fanout = f }
}

// WithStore sets the memory store behind the /rag routes.
func WithStore(s memory.Store) Option {
	return func(g *Gateway) { g.store = s }
}

// WithTTS sets the synthesis provider behind /api/tts.
func WithTTS(p tts.Provider) Option {
	return func(g *Gateway) { g.tts = p }
}

// WithSTT sets the transcription provider behind /api/stt.
func WithSTT(p stt.Provider) Option {
	return func(g *Gateway) { g.stt = p }
}

// WithSync sets the sync service behind the /sync routes and /ws/sync.
func WithSync(s *syncsvc.Service) Option {
	return func(g *Gateway) { g.sync = s }
}

// WithHealth sets the handler behind /health.
func WithHealth(h *health.Handler) Option {
	return func(g *Gateway) { g.health = h }
}

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

// WithRateLimit overrides the per-key token bucket parameters.
func WithRateLimit(ratePerSecond, burst int) Option {
	return func(g *Gateway) {
		g.rate = ratePerSecond
		g.burst = burst
	}
}

// WithQuotas overrides the per-subject daily quotas.
func WithQuotas(play, tts, imageGen int) Option {
	return func(g *Gateway) {
		g.playQ = play
		g.ttsQ = tts
		g.imageQ = imageGen
	}
}

// WithGatewayClock overrides the clock used by rate limiting and quotas,
// used by tests.
func WithGatewayClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// New creates a gateway over the orchestrator and emotion engine. apiKeys is
// a comma-separated list of accepted keys.
func New(orch *orchestrator.Orchestrator, engine *emotion.Engine, apiKeys string, opts ...Option) *Gateway {
	g := &Gateway{
		orch:   orch,
		engine: engine,
		keys:   parseKeys(apiKeys),
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	g.limiter = newRateLimiter(g.rate, g.burst, g.now)
	g.quota = newQuotaTracker(g.playQ, g.ttsQ, g.imageQ, g.now)
	return g
}

// Handler assembles the full route table. Everything except /health is
// protected by API key auth and per-key rate limiting.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /orchestrator/play", g.protect(g.handlePlay))
	mux.HandleFunc("POST /orchestrator/pause", g.protect(g.handlePause))
	mux.HandleFunc("POST /orchestrator/seek", g.protect(g.handleSeek))
	mux.HandleFunc("GET /orchestrator/summary", g.protect(g.handleSummary))
	mux.HandleFunc("GET /audio/{session}/{gen}", g.protect(g.handleAudio))

	mux.HandleFunc("POST /segment_text", g.protect(g.handleSegmentText))
	mux.HandleFunc("GET /haptic_patterns", g.protect(g.handleHapticPatterns))
	mux.HandleFunc("POST /generate_haptics", g.protect(g.handleGenerateHaptics))

	mux.HandleFunc("POST /api/detect-emotion", g.protect(g.handleDetectEmotion))
	mux.HandleFunc("POST /api/tts", g.protect(g.handleTTS))
	mux.HandleFunc("POST /api/stt", g.protect(g.handleSTT))
	mux.HandleFunc("POST /api/broadcast-to-devices", g.protect(g.handleBroadcast))

	mux.HandleFunc("POST /api/devices/connect", g.protect(g.handleDeviceConnect))
	mux.HandleFunc("POST /api/devices/disconnect", g.protect(g.handleDeviceDisconnect))
	mux.HandleFunc("POST /api/devices/heartbeat", g.protect(g.handleDeviceHeartbeat))
	mux.HandleFunc("GET /api/devices", g.protect(g.handleDeviceList))

	mux.HandleFunc("GET /rag/query", g.protect(g.handleRAGQuery))
	mux.HandleFunc("POST /rag/upsert", g.protect(g.handleRAGUpsert))
	mux.HandleFunc("GET /rag/list", g.protect(g.handleRAGList))
	mux.HandleFunc("DELETE /rag/delete", g.protect(g.handleRAGDelete))

	mux.HandleFunc("GET /sync/manifest", g.protect(g.handleSyncManifest))
	mux.HandleFunc("GET /sync/file", g.protect(g.handleSyncFile))
	mux.HandleFunc("GET /sync/feature-flags", g.protect(g.handleSyncFlags))
	mux.HandleFunc("GET /sync/allowed-paths", g.protect(g.handleSyncAllowedPaths))
	mux.HandleFunc("GET /ws/sync", g.protect(g.handleSyncWS))

	mux.HandleFunc("GET /ai/model-select", g.protect(g.handleModelSelect))

	mux.HandleFunc("GET /health", g.handleHealth)

	return mux
}

// protect wraps a handler with authentication and rate limiting. The
// authenticated key becomes the quota subject for the request.
func (g *Gateway) protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject, err := g.keys.authenticate(r)
		if err != nil {
			writeError(w, g.log, err)
			return
		}
		if err := g.limiter.allow(subject); err != nil {
			writeError(w, g.log, err)
			return
		}
		next(w, r.WithContext(withSubject(r.Context(), subject)))
	}
}

// handleHealth serves the liveness probe.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if g.health != nil {
		g.health.Healthz(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
