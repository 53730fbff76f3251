// Package api exposes a read-only HTTP view of the lead store for
// dashboards and ad-hoc inspection.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/internal/store"
)

// Handlers serves lead data from a Store.
type Handlers struct {
	store store.Store
}

// NewHandlers creates Handlers backed by st.
func NewHandlers(st store.Store) *Handlers {
	return &Handlers{store: st}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListLeads handles GET /leads with the same filters as the CLI.
func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.LeadFilter{
		Status:   model.LeadStatus(q.Get("status")),
		Industry: q.Get("industry"),
		State:    q.Get("state"),
		City:     q.Get("city"),
		Only247:  q.Get("only_247") == "true",
		Limit:    100,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	leads, err := h.store.ListLeads(r.Context(), filter)
	if err != nil {
		zap.L().Error("list leads", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
}

// GetLead handles GET /leads/{key}.
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	lead, err := h.store.GetLead(r.Context(), key)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		zap.L().Error("get lead", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// ListAudits handles GET /leads/{key}/audits.
func (h *Handlers) ListAudits(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, err := h.store.GetLead(r.Context(), key); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		zap.L().Error("get lead", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	audits, err := h.store.ListAudits(r.Context(), key)
	if err != nil {
		zap.L().Error("list audits", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": audits, "count": len(audits)})
}

// GetStats handles GET /stats with lead counts by status.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountByStatus(r.Context())
	if err != nil {
		zap.L().Error("count by status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{"by_status": counts, "total": total})
}

// ListScrapeRuns handles GET /scrape-runs.
func (h *Handlers) ListScrapeRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListScrapeRuns(r.Context(), 50)
	if err != nil {
		zap.L().Error("list scrape runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}
