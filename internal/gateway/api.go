package gateway

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/modernreader/sensoria/internal/device"
	"github.com/modernreader/sensoria/internal/device/httpdev"
	"github.com/modernreader/sensoria/internal/device/sim"
	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/internal/mapping"
	"github.com/modernreader/sensoria/internal/segment"
	"github.com/modernreader/sensoria/pkg/provider/stt"
	"github.com/modernreader/sensoria/pkg/provider/tts"
	"github.com/modernreader/sensoria/pkg/types"
)

// ── segmentation ──

type segmentTextRequest struct {
	Text     string `json:"text"`
	Strategy string `json:"strategy,omitempty"`
}

type segmentTextResponse struct {
	Segments      []segment.Segment `json:"segments"`
	TotalSegments int               `json:"total_segments"`
	TotalLength   int               `json:"total_length"`
	StrategyUsed  string            `json:"strategy_used"`
	Metadata      map[string]any    `json:"metadata"`
}

func (g *Gateway) handleSegmentText(w http.ResponseWriter, r *http.Request) {
	var req segmentTextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: text required"))
		return
	}

	strategy := segment.StrategyAdaptive
	if req.Strategy != "" {
		s, ok := segment.ParseStrategy(req.Strategy)
		if !ok {
			writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: unknown strategy %q", req.Strategy))
			return
		}
		strategy = s
	}

	res := segment.Split(req.Text, strategy)
	writeJSON(w, http.StatusOK, segmentTextResponse{
		Segments:      res.Segments,
		TotalSegments: len(res.Segments),
		TotalLength:   len([]rune(req.Text)),
		StrategyUsed:  string(res.StrategyUsed),
		Metadata: map[string]any{
			"total_duration_seconds": res.TotalDurationSeconds,
			"total_highlights":       res.TotalHighlights(),
		},
	})
}

// ── haptics ──

func (g *Gateway) handleHapticPatterns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"patterns": mapping.PatternNames()})
}

type generateHapticsRequest struct {
	Text        string   `json:"text,omitempty"`
	Emotion     string   `json:"emotion,omitempty"`
	Intensity   *float64 `json:"intensity,omitempty"`
	PatternName string   `json:"pattern_name,omitempty"`
}

// handleGenerateHaptics resolves a haptic pattern from, in priority order, an
// explicit pattern name, an emotion label, or free text run through the
// emotion engine.
func (g *Gateway) handleGenerateHaptics(w http.ResponseWriter, r *http.Request) {
	var req generateHapticsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}

	if req.PatternName != "" {
		p, ok := mapping.PatternByName(req.PatternName)
		if !ok {
			writeError(w, g.log, fault.New(fault.NotFound, "gateway: unknown pattern %q", req.PatternName))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pattern": p})
		return
	}

	var reading types.EmotionReading
	switch {
	case req.Emotion != "":
		label, _ := types.ParseEmotionLabel(req.Emotion)
		reading = types.EmotionReading{Primary: label, Intensity: 1, Source: types.SourceText}
		if req.Intensity != nil {
			reading.Intensity = types.ClampUnit(*req.Intensity)
		}
	case strings.TrimSpace(req.Text) != "":
		reading = g.engine.PredictText(r.Context(), req.Text)
		if req.Intensity != nil {
			reading.Intensity = types.ClampUnit(*req.Intensity)
		}
	default:
		writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: pattern_name, emotion, or text required"))
		return
	}

	entry := mapping.Resolve(reading)
	writeJSON(w, http.StatusOK, map[string]any{
		"emotion":   reading.Primary,
		"intensity": reading.Intensity,
		"pattern":   entry.Haptic,
	})
}

// ── emotion / tts / stt ──

func (g *Gateway) handleDetectEmotion(w http.ResponseWriter, r *http.Request) {
	if err := g.quota.consume(Subject(r), meterImageGen); err != nil {
		writeError(w, g.log, err)
		return
	}

	var req struct {
		ImageBase64 string `json:"image_base64"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil || len(image) == 0 {
		writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: image_base64 must be non-empty base64"))
		return
	}

	writeJSON(w, http.StatusOK, g.engine.PredictImage(r.Context(), image))
}

type ttsRequest struct {
	Text    string  `json:"text"`
	Voice   string  `json:"voice,omitempty"`
	Emotion string  `json:"emotion,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
}

type ttsResponse struct {
	AudioBase64 string  `json:"audio_base64"`
	Duration    float64 `json:"duration"`
	Format      string  `json:"format"`
	Provider    string  `json:"provider"`
	Voice       string  `json:"voice"`
}

func (g *Gateway) handleTTS(w http.ResponseWriter, r *http.Request) {
	if err := g.quota.consume(Subject(r), meterTTS); err != nil {
		writeError(w, g.log, err)
		return
	}
	if g.tts == nil {
		writeError(w, g.log, fault.New(fault.UpstreamUnavailable, "gateway: no tts provider configured"))
		return
	}

	var req ttsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: text required"))
		return
	}

	prosody := types.ProsodyPreset{Rate: 1, Pitch: 1, Volume: 1}
	if req.Emotion != "" {
		label, _ := types.ParseEmotionLabel(req.Emotion)
		prosody = mapping.Lookup(label).Prosody
	}
	if req.Voice != "" {
		prosody.Voice = req.Voice
	}
	if req.Speed > 0 {
		prosody.Rate = types.ClampRange(req.Speed, 0.5, 2.0)
	}

	res, err := g.tts.Synthesize(r.Context(), tts.Request{
		Text:    req.Text,
		Voice:   tts.VoiceProfile{ID: prosody.Voice},
		Prosody: prosody,
	})
	if err != nil {
		writeError(w, g.log, err)
		return
	}

	writeJSON(w, http.StatusOK, ttsResponse{
		AudioBase64: base64.StdEncoding.EncodeToString(res.Audio),
		Duration:    estimateDuration(req.Text),
		Format:      res.MIME,
		Provider:    res.Provider,
		Voice:       prosody.Voice,
	})
}

type sttRequest struct {
	AudioBase64 string `json:"audio_base64"`
	MIME        string `json:"mime,omitempty"`
	Language    string `json:"language,omitempty"`
}

type sttResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	Duration   float64 `json:"duration"`
	Provider   string  `json:"provider"`
}

func (g *Gateway) handleSTT(w http.ResponseWriter, r *http.Request) {
	if g.stt == nil {
		writeError(w, g.log, fault.New(fault.UpstreamUnavailable, "gateway: no stt provider configured"))
		return
	}

	var req sttRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil || len(audio) == 0 {
		writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: audio_base64 must be non-empty base64"))
		return
	}

	res, err := g.stt.Transcribe(r.Context(), stt.Request{Audio: audio, MIME: req.MIME, Language: req.Language})
	if err != nil {
		writeError(w, g.log, err)
		return
	}

	confidence := 0.0
	if strings.TrimSpace(res.Text) != "" {
		confidence = 1.0
	}
	writeJSON(w, http.StatusOK, sttResponse{
		Text:       res.Text,
		Confidence: confidence,
		Language:   res.Language,
		Duration:   estimateDuration(res.Text),
		Provider:   res.Provider,
	})
}

// ── device broadcast and management ──

type broadcastRequest struct {
	Emotion   string          `json:"emotion"`
	Intensity float64         `json:"intensity"`
	Devices   []string        `json:"devices,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type broadcastResponse struct {
	Devices   map[string]types.DispatchResult `json:"devices"`
	Emotion   types.EmotionLabel              `json:"emotion"`
	Intensity float64                         `json:"intensity"`
	Timestamp int64                           `json:"timestamp"`
}

func (g *Gateway) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if g.fanout == nil {
		writeError(w, g.log, fault.New(fault.UpstreamUnavailable, "gateway: no device fan-out configured"))
		return
	}

	var req broadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}
	if req.Emotion == "" {
		writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: emotion required"))
		return
	}

	label, _ := types.ParseEmotionLabel(req.Emotion)
	now := g.now()
	reading := types.EmotionReading{
		Primary:    label,
		Intensity:  types.ClampUnit(req.Intensity),
		Source:     types.SourceText,
		Confidence: 1,
		TSUnix:     now.Unix(),
	}

	// Content is a free-form blob from clients; only a plain string reaches
	// display devices.
	var content string
	if len(req.Content) > 0 {
		json.Unmarshal(req.Content, &content)
	}

	results := g.fanout.Broadcast(r.Context(), Subject(r), reading, content, req.Devices, 0)
	writeJSON(w, http.StatusOK, broadcastResponse{
		Devices:   results,
		Emotion:   label,
		Intensity: reading.Intensity,
		Timestamp: now.Unix(),
	})
}

type deviceConnectRequest struct {
	ID           string   `json:"id"`
	Class        string   `json:"class"`
	Addr         string   `json:"addr,omitempty"`
	Capabilities []string `json:"capabilities"`
}

func (g *Gateway) handleDeviceConnect(w http.ResponseWriter, r *http.Request) {
	if g.registry == nil {
		writeError(w, g.log, fault.New(fault.UpstreamUnavailable, "gateway: no device registry configured"))
		return
	}

	var req deviceConnectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}

	caps := make([]types.Capability, len(req.Capabilities))
	for i, c := range req.Capabilities {
		caps[i] = types.Capability(c)
	}
	desc := types.DeviceDescriptor{
		ID:           req.ID,
		Class:        types.DeviceClass(req.Class),
		Addr:         req.Addr,
		Capabilities: caps,
	}

	var port device.Port
	if req.Addr != "" {
		p, err := httpdev.New(req.Addr)
		if err != nil {
			writeError(w, g.log, err)
			return
		}
		port = p
	} else {
		port = sim.New()
	}

	if err := g.registry.Connect(desc, port); err != nil {
		writeError(w, g.log, err)
		return
	}
	connected, _ := g.registry.Get(req.ID)
	writeJSON(w, http.StatusOK, connected)
}

func (g *Gateway) handleDeviceDisconnect(w http.ResponseWriter, r *http.Request) {
	if g.registry == nil {
		writeError(w, g.log, fault.New(fault.UpstreamUnavailable, "gateway: no device registry configured"))
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}
	g.registry.Disconnect(req.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected", "id": req.ID})
}

func (g *Gateway) handleDeviceHeartbeat(w http.ResponseWriter, r *http.Request) {
	if g.registry == nil {
		writeError(w, g.log, fault.New(fault.UpstreamUnavailable, "gateway: no device registry configured"))
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}
	if err := g.registry.Heartbeat(req.ID); err != nil {
		writeError(w, g.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": req.ID})
}

func (g *Gateway) handleDeviceList(w http.ResponseWriter, _ *http.Request) {
	if g.registry == nil {
		writeError(w, g.log, fault.New(fault.UpstreamUnavailable, "gateway: no device registry configured"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": g.registry.List()})
}

// estimateDuration approximates speech time at the standard reading pace.
func estimateDuration(text string) float64 {
	words := len(strings.Fields(text))
	return float64(words) / (float64(segment.DefaultReadingWPM) / 60.0)
}
