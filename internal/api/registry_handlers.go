package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	snap := h.registry.Current()
	if domain := r.URL.Query().Get("domain"); domain != "" {
		writeJSON(w, http.StatusOK, snap.AgentsInDomain(domain))
		return
	}
	writeJSON(w, http.StatusOK, snap.AllAgents())
}

func (h *Handler) recentAgents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 10
	}
	writeJSON(w, http.StatusOK, h.registry.RecentActiveAgents(limit))
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap := h.registry.Current()
	a, ok := snap.Agents[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":       a,
		"last_active": h.registry.LastActive(id),
	})
}

func (h *Handler) agentActivity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.registry.Current().Agents[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":    id,
		"last_active": h.registry.LastActive(id),
		"events":      h.store.ByAgent(id, limit),
	})
}

func (h *Handler) listSkills(w http.ResponseWriter, r *http.Request) {
	snap := h.registry.Current()
	if domain := r.URL.Query().Get("domain"); domain != "" {
		writeJSON(w, http.StatusOK, snap.SkillsInDomain(domain))
		return
	}
	writeJSON(w, http.StatusOK, snap.AllSkills())
}

func (h *Handler) recentSkills(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 10
	}
	writeJSON(w, http.StatusOK, h.registry.RecentInvokedSkills(limit))
}

func (h *Handler) getSkill(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap := h.registry.Current()
	s, ok := snap.Skills[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "skill not found"})
		return
	}
	count, last := h.registry.SkillInvocations(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"skill":        s,
		"invocations":  count,
		"last_invoked": last,
	})
}

func (h *Handler) skillInvocations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.registry.Current().Skills[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "skill not found"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	count, last := h.registry.SkillInvocations(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"skill_id":     id,
		"invocations":  count,
		"last_invoked": last,
		"events":       h.store.BySkill(id, limit),
	})
}

func (h *Handler) listDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Current().AllDomains())
}

func (h *Handler) getDomain(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap := h.registry.Current()
	d, ok := snap.Domains[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "domain not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"domain": d,
		"agents": snap.AgentsInDomain(name),
		"skills": snap.SkillsInDomain(name),
	})
}

func (h *Handler) listCapabilities(w http.ResponseWriter, r *http.Request) {
	caps := h.registry.Current().Capabilities
	if domain := r.URL.Query().Get("domain"); domain != "" {
		filtered := caps[:0:0]
		for _, c := range caps {
			if c.Domain == domain {
				filtered = append(filtered, c)
			}
		}
		caps = filtered
	}
	writeJSON(w, http.StatusOK, caps)
}

func (h *Handler) searchCapabilities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results := h.registry.Current().Search(query, limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": results,
	})
}

func (h *Handler) collaborationGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Current().Graph)
}

func (h *Handler) handoffGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Current().BuildHandoffGraph())
}
