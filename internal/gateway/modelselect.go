package gateway

import (
	"net/http"
	"strconv"
)

// Model names served by /ai/model-select.
const (
	ModelFull = "ModernReader"
	ModelLite = "ModernReaderLite"
)

const (
	lowMemoryThresholdMB = 2048
	qualityMemoryMB      = 4096
)

// modelChoice is the /ai/model-select response.
type modelChoice struct {
	Chosen   string   `json:"chosen"`
	Fallback string   `json:"fallback"`
	Reasons  []string `json:"reasons"`
}

// selectModel picks the lite model for constrained clients. A quality
// preference wins only with ample memory and no battery saver.
func selectModel(deviceClass string, memoryMB int, batterySaver, preferQuality bool) modelChoice {
	var reasons []string

	switch deviceClass {
	case "watch", "mobile":
		reasons = append(reasons, "device-class")
	}
	if memoryMB > 0 && memoryMB < lowMemoryThresholdMB {
		reasons = append(reasons, "low-memory")
	}
	if batterySaver {
		reasons = append(reasons, "battery-saver")
	}

	if preferQuality && memoryMB >= qualityMemoryMB && !batterySaver {
		return modelChoice{Chosen: ModelFull, Fallback: ModelLite, Reasons: []string{"quality-override"}}
	}
	if len(reasons) > 0 {
		return modelChoice{Chosen: ModelLite, Fallback: ModelFull, Reasons: reasons}
	}
	return modelChoice{Chosen: ModelFull, Fallback: ModelLite, Reasons: []string{"default"}}
}

// handleModelSelect serves GET /ai/model-select.
func (g *Gateway) handleModelSelect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	memoryMB, _ := strconv.Atoi(q.Get("memory_mb"))
	batterySaver, _ := strconv.ParseBool(q.Get("battery_saver"))
	preferQuality, _ := strconv.ParseBool(q.Get("prefer_quality"))

	writeJSON(w, http.StatusOK, selectModel(q.Get("device"), memoryMB, batterySaver, preferQuality))
}
