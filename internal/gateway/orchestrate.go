package gateway

import (
	"net/http"
	"strconv"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/internal/orchestrator"
)

// playRequest is the POST /orchestrator/play body.
type playRequest struct {
	Text      string `json:"text"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
}

// playMetadata groups the plan fields under the response's metadata key.
type playMetadata struct {
	Segments      any     `json:"segments"`
	Emotion       any     `json:"emotion"`
	Prosody       any     `json:"prosody"`
	HapticEvents  any     `json:"haptic_events"`
	ScentEvents   any     `json:"scent_events"`
	AREvents      any     `json:"ar_events"`
	TotalDuration float64 `json:"total_duration"`
}

// playResponse is the POST /orchestrator/play response.
type playResponse struct {
	SessionID   string       `json:"session_id"`
	PlaybackURL string       `json:"playback_url"`
	Metadata    playMetadata `json:"metadata"`
	Degraded    bool         `json:"degraded,omitempty"`
}

func (g *Gateway) handlePlay(w http.ResponseWriter, r *http.Request) {
	if err := g.quota.consume(Subject(r), meterPlay); err != nil {
		writeError(w, g.log, err)
		return
	}

	var req playRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}

	res, err := g.orch.Play(r.Context(), orchestrator.PlayRequest{
		Text:      req.Text,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Strategy:  req.Strategy,
	})
	if err != nil {
		writeError(w, g.log, err)
		return
	}

	writeJSON(w, http.StatusOK, playResponse{
		SessionID:   res.SessionID,
		PlaybackURL: res.PlaybackURL,
		Degraded:    res.Degraded,
		Metadata: playMetadata{
			Segments:      res.Plan.Segments,
			Emotion:       res.Emotion,
			Prosody:       res.Plan.Prosody,
			HapticEvents:  res.Plan.HapticEvents,
			ScentEvents:   res.Plan.ScentEvents,
			AREvents:      res.Plan.AREvents,
			TotalDuration: res.Plan.DurationTotal,
		},
	})
}

func (g *Gateway) handlePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}

	res, err := g.orch.Pause(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, g.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (g *Gateway) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID    string `json:"session_id"`
		SegmentIndex int    `json:"segment_index"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}

	res, err := g.orch.Seek(r.Context(), req.SessionID, req.SegmentIndex)
	if err != nil {
		writeError(w, g.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (g *Gateway) handleSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: session_id query parameter required"))
		return
	}

	res, err := g.orch.Summary(r.Context(), sessionID)
	if err != nil {
		writeError(w, g.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAudio streams the synthesized audio for one plan generation.
func (g *Gateway) handleAudio(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	gen, err := strconv.ParseUint(r.PathValue("gen"), 10, 64)
	if err != nil {
		writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: bad plan generation"))
		return
	}

	data, mime, ok := g.orch.Audio(sessionID, gen)
	if !ok {
		writeError(w, g.log, fault.New(fault.NotFound, "gateway: no audio for session %q generation %d", sessionID, gen))
		return
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
