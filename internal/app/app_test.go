package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modernreader/sensoria/internal/app"
	"github.com/modernreader/sensoria/internal/config"
	"github.com/modernreader/sensoria/internal/device/sim"
	"github.com/modernreader/sensoria/internal/orchestrator"
	memorymock "github.com/modernreader/sensoria/pkg/memory/mock"
	emomock "github.com/modernreader/sensoria/pkg/provider/emotion/mock"
	sttmock "github.com/modernreader/sensoria/pkg/provider/stt/mock"
	"github.com/modernreader/sensoria/pkg/provider/tts"
	ttsmock "github.com/modernreader/sensoria/pkg/provider/tts/mock"
	"github.com/modernreader/sensoria/pkg/types"
)

// testConfig returns a minimal config with one simulated haptic device.
// The API key env var is set per test so gateway auth is exercisable.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("SENSORIA_TEST_API_KEYS", "test-key")
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":0",
			LogLevel:   config.LogInfo,
		},
		Gateway: config.GatewayConfig{
			APIKeysEnv: "SENSORIA_TEST_API_KEYS",
		},
		Devices: []config.DeviceConfig{
			{
				ID:           "watch-1",
				Class:        types.ClassWatch,
				Capabilities: []types.Capability{types.CapHaptic},
			},
		},
		Orchestrator: config.OrchestratorConfig{
			SessionTTL: time.Minute,
		},
	}
}

// testProviders returns mock TTS/STT/emotion providers.
func testProviders() *app.Providers {
	return &app.Providers{
		TTS: &ttsmock.Provider{
			SynthesizeResult: &tts.Result{Audio: []byte("audio"), MIME: "audio/mpeg"},
		},
		STT: &sttmock.Provider{},
		Emotion: &emomock.Classifier{
			Reading: types.EmotionReading{Primary: types.EmotionHappy, Intensity: 0.7, Confidence: 0.9},
		},
	}
}

func TestNew_WithMocks(t *testing.T) {
	cfg := testConfig(t)

	application, err := app.New(
		context.Background(),
		cfg,
		testProviders(),
		app.WithMemoryStore(memorymock.New()),
		app.WithDevicePort("watch-1", sim.New()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer application.Shutdown(context.Background())

	devices := application.Registry().List()
	if len(devices) != 1 {
		t.Fatalf("registered devices = %d, want 1", len(devices))
	}
	if devices[0].ID != "watch-1" {
		t.Errorf("device ID = %q, want watch-1", devices[0].ID)
	}
	if application.Handler() == nil {
		t.Error("Handler() returned nil")
	}
}

func TestPlay_BroadcastsToSimulatedDevice(t *testing.T) {
	cfg := testConfig(t)
	port := sim.New()

	application, err := app.New(
		context.Background(),
		cfg,
		testProviders(),
		app.WithMemoryStore(memorymock.New()),
		app.WithDevicePort("watch-1", port),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer application.Shutdown(context.Background())

	res, err := application.Orchestrator().Play(context.Background(), orchestrator.PlayRequest{
		Text: "The sun rose over the quiet harbor. Gulls wheeled above the masts.",
	})
	if err != nil {
		t.Fatalf("Play() returned error: %v", err)
	}
	if res.SessionID == "" {
		t.Error("Play() returned empty session ID")
	}
	if len(res.Plan.Segments) == 0 {
		t.Error("Play() returned a plan with no segments")
	}

	// The broadcast runs off the request path; wait for the dispatch.
	deadline := time.Now().Add(2 * time.Second)
	for len(port.Received()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("simulated device received no dispatch within 2s")
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := port.Received()[0]
	if got.Emotion.Primary != types.EmotionHappy {
		t.Errorf("dispatched emotion = %q, want happy", got.Emotion.Primary)
	}
}

func TestHandler_AuthAndHealth(t *testing.T) {
	cfg := testConfig(t)

	application, err := app.New(
		context.Background(),
		cfg,
		testProviders(),
		app.WithMemoryStore(memorymock.New()),
		app.WithDevicePort("watch-1", sim.New()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer application.Shutdown(context.Background())

	srv := httptest.NewServer(application.Handler())
	defer srv.Close()

	// Liveness needs no credential.
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz status = %d, want 200", resp.StatusCode)
	}

	// API routes reject missing credentials.
	resp, err = http.Post(srv.URL+"/orchestrator/play", "application/json",
		strings.NewReader(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("POST /orchestrator/play: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated play status = %d, want 401", resp.StatusCode)
	}

	// With the configured key the route goes through.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/orchestrator/play",
		strings.NewReader(`{"text":"The rain had finally stopped."}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "test-key")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authenticated play: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authenticated play status = %d, want 200", resp.StatusCode)
	}
}

func TestNew_SQLiteStoreFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Memory.SQLitePath = filepath.Join(t.TempDir(), "memory.db")

	application, err := app.New(
		context.Background(),
		cfg,
		testProviders(),
		app.WithDevicePort("watch-1", sim.New()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer application.Shutdown(context.Background())

	// The SQLite store registers a readiness checker.
	srv := httptest.NewServer(application.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /readyz status = %d, want 200", resp.StatusCode)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	cfg := testConfig(t)

	application, err := app.New(
		context.Background(),
		cfg,
		testProviders(),
		app.WithMemoryStore(memorymock.New()),
		app.WithDevicePort("watch-1", sim.New()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	if err := application.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown() returned error: %v", err)
	}
	if err := application.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() returned error: %v", err)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.ListenAddr = "127.0.0.1:0"

	application, err := app.New(
		context.Background(),
		cfg,
		testProviders(),
		app.WithMemoryStore(memorymock.New()),
		app.WithDevicePort("watch-1", sim.New()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer application.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
