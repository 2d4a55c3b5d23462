package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/memory"
	memmock "github.com/modernreader/sensoria/pkg/memory/mock"
)

// stubAgent is a minimal Agent for registry tests.
type stubAgent struct {
	desc Descriptor
}

func (a *stubAgent) Describe() Descriptor { return a.desc }
func (a *stubAgent) Process(_ context.Context, in map[string]any) (map[string]any, error) {
	return in, nil
}

func TestRegistry_WireByCapability(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	vec, err := NewVector("vector", memmock.New().Documents())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterConnector(vec); err != nil {
		t.Fatal(err)
	}

	planner := &stubAgent{desc: Descriptor{
		Name:       "plan-builder",
		Inputs:     []string{"text"},
		Outputs:    []string{"playback_plan"},
		Connectors: []string{"vector"},
	}}
	if err := r.Register(planner); err != nil {
		t.Fatalf("register: %v", err)
	}

	got := r.ByOutput("playback_plan")
	if len(got) != 1 || got[0].Describe().Name != "plan-builder" {
		t.Errorf("ByOutput: got %+v", got)
	}
	if r.ByOutput("nonexistent") != nil {
		t.Error("unknown capability should yield no agents")
	}
}

func TestRegistry_RejectsMissingConnector(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := &stubAgent{desc: Descriptor{Name: "x", Connectors: []string{"ghost"}}}
	if err := r.Register(a); fault.KindOf(err) != fault.InvalidArgument {
		t.Errorf("got %v, want invalid_argument", err)
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := &stubAgent{desc: Descriptor{Name: "dup"}}
	if err := r.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(a); fault.KindOf(err) != fault.InvalidArgument {
		t.Errorf("got %v, want invalid_argument", err)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{BackoffInitialMS: 200, BackoffFactor: 2.0}
	if got := p.Backoff(1); got != 200*time.Millisecond {
		t.Errorf("retry 1: got %v", got)
	}
	if got := p.Backoff(2); got != 400*time.Millisecond {
		t.Errorf("retry 2: got %v", got)
	}
	if got := p.Backoff(3); got != 800*time.Millisecond {
		t.Errorf("retry 3: got %v", got)
	}
}

func TestHTTPConnector_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, err := NewHTTP("upstream", srv.URL, WithHTTPPolicy(RetryPolicy{
		TimeoutMS: 2000, MaxRetries: 2, BackoffInitialMS: 1, BackoffFactor: 2.0,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	body, err := c.Get(context.Background(), "/ping")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body: got %q", body)
	}
	if calls.Load() != 2 {
		t.Errorf("calls: got %d, want 2", calls.Load())
	}
}

func TestHTTPConnector_NoRetryOnPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewHTTP("upstream", srv.URL, WithHTTPPolicy(RetryPolicy{
		TimeoutMS: 2000, MaxRetries: 2, BackoffInitialMS: 1, BackoffFactor: 2.0,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err = c.Get(context.Background(), "/secret")
	if fault.KindOf(err) != fault.Unauthorized {
		t.Fatalf("got %v, want unauthorized", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls: got %d, want 1", calls.Load())
	}
}

func TestHTTPConnector_RequiresConnect(t *testing.T) {
	t.Parallel()

	c, err := NewHTTP("upstream", "http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(context.Background(), "/"); err == nil {
		t.Error("expected error before Connect")
	}
}

func TestVectorConnector_UpsertQuery(t *testing.T) {
	t.Parallel()

	c, err := NewVector("vector", memmock.New().Documents())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := c.Upsert(ctx, memory.RAGDoc{DocID: "d1", Text: "the sleeping dragon"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	hits, err := c.Query(ctx, "sleeping dragon", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 1 || hits[0].Doc.DocID != "d1" {
		t.Errorf("hits: got %+v", hits)
	}
}

func TestScheduler_BoundsInflightPerKey(t *testing.T) {
	t.Parallel()

	s := NewScheduler(WithMaxInflight(2))

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	enter := func() {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
	}
	leave := func() {
		mu.Lock()
		current--
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Run(context.Background(), "sess-1", func(context.Context) error {
				enter()
				time.Sleep(5 * time.Millisecond)
				leave()
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("peak inflight: got %d, want <= 2", peak)
	}
	if got := s.Inflight("sess-1"); got != 0 {
		t.Errorf("inflight after drain: got %d", got)
	}
}

func TestScheduler_KeysDoNotBlockEachOther(t *testing.T) {
	t.Parallel()

	s := NewScheduler(WithMaxInflight(1))

	blocked := make(chan struct{})
	release := make(chan struct{})
	go s.Run(context.Background(), "busy", func(context.Context) error {
		close(blocked)
		<-release
		return nil
	})
	<-blocked

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), "idle", func(context.Context) error { return nil })
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("idle key: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("idle key starved by busy key")
	}
	close(release)
}

func TestScheduler_AbortsOnContextCancel(t *testing.T) {
	t.Parallel()

	s := NewScheduler(WithMaxInflight(1))

	started := make(chan struct{})
	release := make(chan struct{})
	go s.Run(context.Background(), "k", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Run(ctx, "k", func(context.Context) error { return nil })
	if fault.KindOf(err) != fault.Timeout {
		t.Errorf("got %v, want timeout", err)
	}
	close(release)
}
