package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/vaultscope/internal/archive"
	"github.com/nidhogg/vaultscope/internal/auth"
	"github.com/nidhogg/vaultscope/internal/changeset"
	"github.com/nidhogg/vaultscope/internal/events"
	"github.com/nidhogg/vaultscope/internal/registry"
	"github.com/nidhogg/vaultscope/internal/stream"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry *registry.Registry
	store    *events.Store
	streams  *stream.Manager
	tracker  *changeset.Tracker
	gate     *auth.Gate
	archive  *archive.Archive // nil when no database is configured
	logger   *zap.Logger
}

// NewHandler creates a new API handler. archive may be nil.
func NewHandler(
	reg *registry.Registry,
	store *events.Store,
	streams *stream.Manager,
	tracker *changeset.Tracker,
	gate *auth.Gate,
	arch *archive.Archive,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		registry: reg,
		store:    store,
		streams:  streams,
		tracker:  tracker,
		gate:     gate,
		archive:  arch,
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(h.gate.Middleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Registry routes
		r.Get("/agents", h.listAgents)
		r.Get("/agents/recent", h.recentAgents)
		r.Get("/agents/{id}", h.getAgent)
		r.Get("/agents/{id}/activity", h.agentActivity)
		r.Get("/skills", h.listSkills)
		r.Get("/skills/recent", h.recentSkills)
		r.Get("/skills/{id}", h.getSkill)
		r.Get("/skills/{id}/invocations", h.skillInvocations)
		r.Get("/domains", h.listDomains)
		r.Get("/domains/{name}", h.getDomain)
		r.Get("/capabilities", h.listCapabilities)
		r.Get("/search", h.searchCapabilities)
		r.Get("/collaboration-graph", h.collaborationGraph)
		r.Get("/handoff-graph", h.handoffGraph)
		r.Post("/rescan", h.triggerRescan)

		// Event routes
		r.Post("/events", h.ingestEvent)
		r.Get("/events", h.eventsSince)
		r.Get("/events/recent", h.recentEvents)
		r.Get("/events/session/{sessionID}", h.sessionEvents)
		r.Get("/stream", h.streams.ServeHTTP)

		// Changeset routes
		r.Get("/changesets", h.listChangesets)
		r.Post("/changesets", h.createChangeset)
		r.Get("/changesets/{id}", h.getChangeset)
		r.Delete("/changesets/{id}", h.deleteChangeset)
		r.Get("/changesets/{id}/timeline", h.changesetTimeline)
		r.Post("/changesets/{id}/advance", h.advancePhase)
		r.Post("/changesets/{id}/handoffs", h.recordHandoff)
		r.Post("/changesets/{id}/handoffs/{handoffID}/complete", h.completeHandoff)
		r.Post("/changesets/{id}/decisions", h.recordDecision)
		r.Post("/changesets/{id}/artifacts", h.recordArtifact)
		r.Get("/changesets/{id}/artifacts/{name}", h.artifactContent)
		r.Post("/changesets/{id}/conflicts", h.recordConflict)
		r.Post("/changesets/{id}/conflicts/{conflictID}/resolve", h.resolveConflict)
		r.Post("/changesets/{id}/complete", h.completeChangeset)
		r.Post("/changesets/{id}/block", h.blockChangeset)

		r.Get("/handoffs", h.listHandoffs)
		r.Get("/handoffs/{handoffID}", h.getHandoff)

		// Auth routes
		r.With(auth.LocalOnly).Get("/auth/token", h.authToken)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	snap := h.registry.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"agents":     len(snap.AllAgents()),
		"skills":     len(snap.AllSkills()),
		"domains":    len(snap.AllDomains()),
		"clients":    h.streams.ClientCount(),
		"changesets": len(h.tracker.All()),
	})
}

// authToken hands the shared secret to a local dashboard so it can talk to
// a remote instance later. Local mode only: a remote-mode server never
// re-serves its own token, even to loopback callers.
func (h *Handler) authToken(w http.ResponseWriter, r *http.Request) {
	if h.gate.Mode() != auth.ModeLocal {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "token handout disabled in remote mode"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token": h.gate.Token(),
		"mode":  string(h.gate.Mode()),
	})
}

func (h *Handler) triggerRescan(w http.ResponseWriter, r *http.Request) {
	snap, err := h.registry.Rescan()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "rescanned",
		"agents":       len(snap.AllAgents()),
		"skills":       len(snap.AllSkills()),
		"parse_errors": len(snap.ParseErrors),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
