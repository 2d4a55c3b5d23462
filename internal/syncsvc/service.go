package syncsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"github.com/modernreader/sensoria/internal/fault"
)

const (
	// DefaultCacheTTL bounds how stale a cached manifest may get when file
	// change events are missed.
	DefaultCacheTTL = 5 * time.Second

	// DefaultReadTimeout caps a single whitelisted file read.
	DefaultReadTimeout = 5 * time.Second
)

// FileContent is the response shape of a whitelisted file fetch.
type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	SHA256  string `json:"sha256"`
}

// Service maintains the syncable content snapshot: a hash manifest with a
// deterministic ETag, a whitelist-guarded file fetch, and a subscriber hub
// that is notified whenever the ETag moves.
//
// The manifest cache holds a single entry. Readers get the cached value while
// it is fresh; a recompute mutex coalesces concurrent rebuilds so a burst of
// callers triggers one walk. A filesystem watcher marks the cache dirty early,
// and the TTL catches anything the watcher missed.
type Service struct {
	root        string
	allowed     []string
	flags       map[string]bool
	log         *slog.Logger
	now         func() time.Time
	cacheTTL    time.Duration
	readTimeout time.Duration
	watchFS     bool

	hub *Hub

	cacheMu  sync.Mutex
	cached   *Manifest
	cachedAt time.Time
	dirty    bool

	recompute sync.Mutex

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*Service)

// WithCacheTTL overrides the manifest cache TTL.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// WithReadTimeout overrides the per-file read deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithClock overrides the cache clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithFeatureFlags sets the static flag map served to clients.
func WithFeatureFlags(flags map[string]bool) Option {
	return func(s *Service) {
		s.flags = make(map[string]bool, len(flags))
		for k, v := range flags {
			s.flags[k] = v
		}
	}
}

// WithoutWatcher disables the filesystem watcher, leaving invalidation to the
// cache TTL alone. Tests use this to make cache behavior deterministic.
func WithoutWatcher() Option {
	return func(s *Service) { s.watchFS = false }
}

// New creates a sync service over root serving the given whitelist. Whitelist
// entries are slash paths relative to root and may name files or directories.
func New(root string, allowed []string, opts ...Option) (*Service, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidArgument, err, "syncsvc: sync root %s", root)
	}
	if !info.IsDir() {
		return nil, fault.New(fault.InvalidArgument, "syncsvc: sync root %s is not a directory", root)
	}
	if len(allowed) == 0 {
		return nil, fault.New(fault.InvalidArgument, "syncsvc: empty whitelist")
	}

	s := &Service{
		root:        root,
		allowed:     normalizeWhitelist(allowed),
		flags:       map[string]bool{},
		log:         slog.Default(),
		now:         time.Now,
		cacheTTL:    DefaultCacheTTL,
		readTimeout: DefaultReadTimeout,
		watchFS:     true,
		hub:         NewHub(),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	if s.watchFS {
		if err := s.startWatcher(); err != nil {
			// A missing watcher only delays invalidation until the TTL.
			s.log.Warn("sync watcher unavailable, falling back to ttl", "err", err)
		}
	}
	return s, nil
}

// Hub returns the subscriber hub for WebSocket push.
func (s *Service) Hub() *Hub { return s.hub }

// AllowedPaths returns a copy of the whitelist.
func (s *Service) AllowedPaths() []string {
	out := make([]string, len(s.allowed))
	copy(out, s.allowed)
	return out
}

// FeatureFlags returns a copy of the static flag map.
func (s *Service) FeatureFlags() map[string]bool {
	out := make(map[string]bool, len(s.flags))
	for k, v := range s.flags {
		out[k] = v
	}
	return out
}

// Manifest returns the current manifest, serving the cached snapshot while it
// is fresh and rebuilding otherwise.
func (s *Service) Manifest(ctx context.Context) (*Manifest, error) {
	if m, ok := s.freshCached(); ok {
		return m, nil
	}
	return s.refresh(ctx)
}

// GetFile serves one whitelisted file. Paths outside the whitelist report
// not_found without revealing whether the file exists. Files that are not
// valid UTF-8 are rejected; the sync surface carries text content only.
func (s *Service) GetFile(ctx context.Context, path string) (*FileContent, error) {
	rel, ok := s.allowedPath(path)
	if !ok {
		return nil, fault.New(fault.NotFound, "syncsvc: path %q not found", path)
	}

	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
		ch <- result{data, err}
	}()

	select {
	case <-readCtx.Done():
		return nil, fault.Wrap(fault.Timeout, readCtx.Err(), "syncsvc: read %s", rel)
	case r := <-ch:
		if r.err != nil {
			if os.IsNotExist(r.err) {
				return nil, fault.New(fault.NotFound, "syncsvc: path %q not found", path)
			}
			return nil, fault.Wrap(fault.Internal, r.err, "syncsvc: read %s", rel)
		}
		if !utf8.Valid(r.data) {
			return nil, fault.New(fault.InvalidArgument, "syncsvc: %s is not valid utf-8", rel)
		}
		sum := sha256.Sum256(r.data)
		return &FileContent{Path: rel, Content: string(r.data), SHA256: hex.EncodeToString(sum[:])}, nil
	}
}

// Close stops the watcher and drops every subscriber.
func (s *Service) Close() error {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.watcher != nil {
			s.watcher.Close()
		}
		s.hub.CloseAll()
	})
	return nil
}

// ── manifest cache ──

func (s *Service) freshCached() (*Manifest, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cached != nil && !s.dirty && s.now().Sub(s.cachedAt) < s.cacheTTL {
		return s.cached, true
	}
	return nil, false
}

// refresh rebuilds the manifest under the recompute mutex so concurrent
// callers coalesce onto one walk, then notifies subscribers if the ETag moved.
func (s *Service) refresh(ctx context.Context) (*Manifest, error) {
	s.recompute.Lock()
	defer s.recompute.Unlock()

	// Another caller may have rebuilt while this one waited on the mutex.
	if m, ok := s.freshCached(); ok {
		return m, nil
	}

	m, err := computeManifest(ctx, s.root, s.allowed)
	if err != nil {
		return nil, err
	}
	now := s.now()
	m.GeneratedUnix = now.Unix()

	s.cacheMu.Lock()
	var prevETag string
	if s.cached != nil {
		prevETag = s.cached.ETag
	}
	s.cached = m
	s.cachedAt = now
	s.dirty = false
	s.cacheMu.Unlock()

	if prevETag != "" && prevETag != m.ETag {
		s.log.Info("sync manifest changed", "etag", m.ETag, "files", m.FileCount)
		s.hub.BroadcastUpdate(m.ETag, now.Unix())
	}
	return m, nil
}

func (s *Service) markDirty() {
	s.cacheMu.Lock()
	s.dirty = true
	s.cacheMu.Unlock()
}

// ── filesystem watcher ──

func (s *Service) startWatcher() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch root plus every directory under the whitelist; fsnotify does not
	// recurse on its own.
	dirs := map[string]struct{}{s.root: {}}
	for _, a := range s.allowed {
		abs := filepath.Join(s.root, filepath.FromSlash(a))
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		if info.IsDir() {
			dirs[abs] = struct{}{}
			filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
				if err == nil && d.IsDir() {
					dirs[p] = struct{}{}
				}
				return nil
			})
		} else {
			dirs[filepath.Dir(abs)] = struct{}{}
		}
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			s.log.Warn("sync watcher: cannot watch", "dir", d, "err", err)
		}
	}
	s.watcher = w
	go s.watchLoop()
	return nil
}

// watchLoop marks the cache dirty on any relevant event and kicks a
// background rebuild, so subscribers hear about changes before the next
// manifest request arrives.
func (s *Service) watchLoop() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.markDirty()
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), s.readTimeout)
				defer cancel()
				if _, err := s.refresh(ctx); err != nil {
					s.log.Warn("sync watcher: rebuild failed", "err", err)
				}
			}()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("sync watcher error", "err", err)
		}
	}
}

// ── whitelist ──

func normalizeWhitelist(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		a = filepath.ToSlash(filepath.Clean(a))
		if a == "" || a == "." || strings.HasPrefix(a, "..") || strings.HasPrefix(a, "/") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// allowedPath validates a client path against the whitelist and returns the
// cleaned relative path.
func (s *Service) allowedPath(path string) (string, bool) {
	rel := filepath.ToSlash(filepath.Clean(path))
	if rel == "" || rel == "." || strings.HasPrefix(rel, "..") || strings.HasPrefix(rel, "/") {
		return "", false
	}
	for _, a := range s.allowed {
		if rel == a || strings.HasPrefix(rel, a+"/") {
			return rel, true
		}
	}
	return "", false
}
