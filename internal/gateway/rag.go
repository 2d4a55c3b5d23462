package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/memory"
)

func (g *Gateway) requireStore(w http.ResponseWriter) bool {
	if g.store == nil {
		writeError(w, g.log, fault.New(fault.UpstreamUnavailable, "gateway: no memory store configured"))
		return false
	}
	return true
}

func (g *Gateway) handleRAGQuery(w http.ResponseWriter, r *http.Request) {
	if !g.requireStore(w) {
		return
	}

	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: q query parameter required"))
		return
	}
	topK, _ := strconv.Atoi(r.URL.Query().Get("top_k"))
	if topK <= 0 {
		topK = 5
	}

	hits, err := g.store.Documents().Query(r.Context(), q, topK)
	if err != nil {
		writeError(w, g.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits, "count": len(hits)})
}

type ragUpsertRequest struct {
	DocID string            `json:"doc_id,omitempty"`
	Text  string            `json:"text"`
	Meta  map[string]string `json:"meta,omitempty"`
}

func (g *Gateway) handleRAGUpsert(w http.ResponseWriter, r *http.Request) {
	if !g.requireStore(w) {
		return
	}

	var req ragUpsertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, g.log, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: text required"))
		return
	}
	if req.DocID == "" {
		req.DocID = uuid.NewString()
	}

	doc := memory.RAGDoc{DocID: req.DocID, Text: req.Text, Meta: req.Meta}
	if err := g.store.Documents().Upsert(r.Context(), doc); err != nil {
		writeError(w, g.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "doc_id": req.DocID})
}

func (g *Gateway) handleRAGList(w http.ResponseWriter, r *http.Request) {
	if !g.requireStore(w) {
		return
	}

	docs, err := g.store.Documents().List(r.Context())
	if err != nil {
		writeError(w, g.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

func (g *Gateway) handleRAGDelete(w http.ResponseWriter, r *http.Request) {
	if !g.requireStore(w) {
		return
	}

	docID := r.URL.Query().Get("doc_id")
	if docID == "" {
		writeError(w, g.log, fault.New(fault.InvalidArgument, "gateway: doc_id query parameter required"))
		return
	}
	if err := g.store.Documents().Delete(r.Context(), docID); err != nil {
		writeError(w, g.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "doc_id": docID})
}
