package webhook

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dialcraft/router/internal/auth"
	"github.com/dialcraft/router/internal/directory"
	"github.com/dialcraft/router/internal/queue"
	"github.com/dialcraft/router/internal/routing"
	"github.com/dialcraft/router/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// AdminHandler serves the authenticated operations API: queue
// monitoring, agent lifecycle and the audit trail.
type AdminHandler struct {
	dir    *directory.Directory
	queue  *queue.Manager
	engine *routing.Engine
	store  storage.Store
	audit  storage.AuditStore
	logger zerolog.Logger
}

// NewAdminHandler creates the admin handler
func NewAdminHandler(dir *directory.Directory, qm *queue.Manager, engine *routing.Engine, store storage.Store, audit storage.AuditStore, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{dir: dir, queue: qm, engine: engine, store: store, audit: audit, logger: logger}
}

// RequireAdmin middleware — only admin role allowed
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || !auth.HasRole(claims, "admin") {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"admin role required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSupervisorOrAdmin middleware — supervisor or admin role allowed
func RequireSupervisorOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || (claims.Role != "admin" && claims.Role != "supervisor") {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"supervisor or admin role required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetQueueSnapshot returns the live queue view for one workspace
func (h *AdminHandler) GetQueueSnapshot(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	snapshot := h.queue.Snapshot(workspaceID, len(h.dir.Available(workspaceID)))
	writeJSON(w, snapshot)
}

// GetQueueStats returns derived historical queue statistics
func (h *AdminHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	stats, err := h.queue.Stats(r.Context(), workspaceID, time.Now())
	if err != nil {
		h.logger.Error().Err(err).Str("workspace_id", workspaceID).Msg("failed to compute queue stats")
		http.Error(w, `{"error":"failed to compute stats"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

// ListAgents returns the stored agents of a workspace
func (h *AdminHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	agents, err := h.store.ListAgents(r.Context(), workspaceID)
	if err != nil {
		h.logger.Error().Err(err).Str("workspace_id", workspaceID).Msg("failed to list agents")
		http.Error(w, `{"error":"failed to list agents"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, agents)
}

// ReloadAgents rehydrates the in-memory directory from the store
func (h *AdminHandler) ReloadAgents(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	if err := h.dir.Load(r.Context(), workspaceID); err != nil {
		h.logger.Error().Err(err).Str("workspace_id", workspaceID).Msg("failed to reload agents")
		http.Error(w, `{"error":"failed to reload agents"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info().Str("workspace_id", workspaceID).Int("agents", h.dir.Count(workspaceID)).Msg("agent directory reloaded")
	writeJSON(w, map[string]interface{}{
		"message": "agent directory reloaded",
		"agents":  h.dir.Count(workspaceID),
	})
}

// ReleaseAgent marks an agent available again and pulls the next
// waiting caller to them
func (h *AdminHandler) ReleaseAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	workspaceID := chi.URLParam(r, "workspaceID")

	h.dir.Release(workspaceID, agentID)
	h.engine.PromoteQueued(r.Context(), workspaceID)

	h.logger.Info().Str("agent_id", agentID).Str("workspace_id", workspaceID).Msg("agent released")
	writeJSON(w, map[string]interface{}{"message": "agent released"})
}

// ListAuditRecords returns the routing audit rows for one date (YYYY-MM-DD)
func (h *AdminHandler) ListAuditRecords(w http.ResponseWriter, r *http.Request) {
	dateKey := chi.URLParam(r, "dateKey")

	records, err := h.audit.ListRoutingRecords(dateKey)
	if err != nil {
		h.logger.Error().Err(err).Str("date_key", dateKey).Msg("failed to list audit records")
		http.Error(w, `{"error":"failed to list audit records"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"dateKey": dateKey,
		"count":   len(records),
		"records": records,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
