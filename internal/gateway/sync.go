package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/internal/syncsvc"
)

func (g *Gateway) requireSync(w http.ResponseWriter) bool {
	if g.sync == nil {
		writeError(w, g.log, fault.New(fault.UpstreamUnavailable, "gateway: no sync service configured"))
		return false
	}
	return true
}

// handleSyncManifest honours If-None-Match against the manifest ETag.
func (g *Gateway) handleSyncManifest(w http.ResponseWriter, r *http.Request) {
	if !g.requireSync(w) {
		return
	}

	m, err := g.sync.Manifest(r.Context())
	if err != nil {
		writeError(w, g.log, err)
		return
	}

	w.Header().Set("ETag", m.ETag)
	if r.Header.Get("If-None-Match") == m.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (g *Gateway) handleSyncFile(w http.ResponseWriter, r *http.Request) {
	if !g.requireSync(w) {
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: path query parameter required"))
		return
	}
	fc, err := g.sync.GetFile(r.Context(), path)
	if err != nil {
		writeError(w, g.log, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (g *Gateway) handleSyncFlags(w http.ResponseWriter, _ *http.Request) {
	if !g.requireSync(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feature_flags": g.sync.FeatureFlags()})
}

func (g *Gateway) handleSyncAllowedPaths(w http.ResponseWriter, _ *http.Request) {
	if !g.requireSync(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed_paths": g.sync.AllowedPaths()})
}

// handleSyncWS upgrades to the push channel. The welcome frame carries the
// current etag; updates follow as the manifest moves. Errors inside the
// stream become error frames, never a close.
func (g *Gateway) handleSyncWS(w http.ResponseWriter, r *http.Request) {
	if !g.requireSync(w) {
		return
	}

	m, err := g.sync.Manifest(r.Context())
	if err != nil {
		writeError(w, g.log, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	sub := g.sync.Hub().Subscribe(m.ETag, m.FileCount)
	defer g.sync.Hub().Unsubscribe(sub)

	ctx := r.Context()

	// Writer: pump the outbox to the wire until the outbox closes or a write
	// fails. A stalled peer surfaces as a write error here.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for f := range sub.Outbox() {
			data, err := json.Marshal(f)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}()

	// Reader: serve pings, answer garbage with error frames.
	for {
		select {
		case <-writeDone:
			return
		default:
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var in struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &in); err != nil {
			g.sync.Hub().Send(sub, errorFrame(fault.InvalidArgument, "malformed frame"))
			continue
		}
		switch in.Type {
		case "ping":
			g.sync.Hub().Pong(sub)
		default:
			g.sync.Hub().Send(sub, errorFrame(fault.InvalidArgument, "unknown frame type "+in.Type))
		}
	}
}

// errorFrame builds an in-stream error without closing the connection.
func errorFrame(kind fault.Kind, msg string) syncsvc.Frame {
	return syncsvc.Frame{Type: syncsvc.FrameError, Kind: string(kind), Message: msg}
}
