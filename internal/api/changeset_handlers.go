package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/nidhogg/vaultscope/internal/changeset"
)

func (h *Handler) listChangesets(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("status") == "active" {
		writeJSON(w, http.StatusOK, h.tracker.Active())
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.All())
}

type createChangesetRequest struct {
	OriginalRequest string   `json:"original_request"`
	SessionID       string   `json:"session_id,omitempty"`
	ProjectPath     string   `json:"project_path,omitempty"`
	DomainsInvolved []string `json:"domains_involved,omitempty"`
}

func (h *Handler) createChangeset(w http.ResponseWriter, r *http.Request) {
	var req createChangesetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.OriginalRequest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "original_request is required"})
		return
	}
	cs, err := h.tracker.Create(req.OriginalRequest, req.SessionID, req.ProjectPath, req.DomainsInvolved)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, cs)
}

func (h *Handler) getChangeset(w http.ResponseWriter, r *http.Request) {
	cs, err := h.tracker.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "changeset not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"changeset": cs,
		"handoffs":  cs.Handoffs,
	})
}

func (h *Handler) deleteChangeset(w http.ResponseWriter, r *http.Request) {
	err := h.tracker.Delete(chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, changeset.ErrChangesetNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) changesetTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := h.tracker.Timeline(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "changeset not found"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type advanceRequest struct {
	Phase string `json:"phase"`
}

func (h *Handler) advancePhase(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cs, err := h.tracker.AdvancePhase(chi.URLParam(r, "id"), changeset.Phase(req.Phase))
	if err != nil {
		writeJSON(w, changesetErrStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *Handler) recordHandoff(w http.ResponseWriter, r *http.Request) {
	var hf changeset.Handoff
	if err := json.NewDecoder(r.Body).Decode(&hf); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cs, err := h.tracker.RecordHandoff(chi.URLParam(r, "id"), &hf)
	if err != nil {
		writeJSON(w, changesetErrStatus(err), map[string]string{"error": err.Error()})
		return
	}
	h.streams.NotifyGraphHandoff(hf.SourceDomain, hf.TargetDomain, hf.SourceAgent, hf.TargetAgent)
	writeJSON(w, http.StatusCreated, cs)
}

func (h *Handler) completeHandoff(w http.ResponseWriter, r *http.Request) {
	cs, err := h.tracker.CompleteHandoff(chi.URLParam(r, "id"), chi.URLParam(r, "handoffID"))
	if err != nil {
		writeJSON(w, changesetErrStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *Handler) recordDecision(w http.ResponseWriter, r *http.Request) {
	var d changeset.Decision
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cs, err := h.tracker.RecordDecision(chi.URLParam(r, "id"), d)
	if err != nil {
		writeJSON(w, changesetErrStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, cs)
}

func (h *Handler) recordArtifact(w http.ResponseWriter, r *http.Request) {
	var a changeset.Artifact
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cs, err := h.tracker.RecordArtifact(chi.URLParam(r, "id"), a)
	if err != nil {
		writeJSON(w, changesetErrStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, cs)
}

func (h *Handler) artifactContent(w http.ResponseWriter, r *http.Request) {
	cs, err := h.tracker.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "changeset not found"})
		return
	}
	name := chi.URLParam(r, "name")
	raw, err := changeset.ArtifactContent(cs, name)
	if err != nil {
		status := http.StatusNotFound
		if !os.IsNotExist(err) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": "artifact not found"})
		return
	}
	contentType := "text/plain; charset=utf-8"
	if filepath.Ext(name) == ".json" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(raw)
}

func (h *Handler) recordConflict(w http.ResponseWriter, r *http.Request) {
	var c changeset.Conflict
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cs, err := h.tracker.RecordConflict(chi.URLParam(r, "id"), c)
	if err != nil {
		writeJSON(w, changesetErrStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, cs)
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
}

func (h *Handler) resolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cs, err := h.tracker.ResolveConflict(chi.URLParam(r, "id"), chi.URLParam(r, "conflictID"), req.Resolution)
	if err != nil {
		writeJSON(w, changesetErrStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *Handler) completeChangeset(w http.ResponseWriter, r *http.Request) {
	cs, err := h.tracker.Complete(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, changesetErrStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

type blockRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) blockChangeset(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cs, err := h.tracker.Block(chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeJSON(w, changesetErrStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *Handler) listHandoffs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.AllHandoffs())
}

func (h *Handler) getHandoff(w http.ResponseWriter, r *http.Request) {
	hf, err := h.tracker.FindHandoff(chi.URLParam(r, "handoffID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "handoff not found"})
		return
	}
	writeJSON(w, http.StatusOK, hf)
}

// changesetErrStatus maps tracker errors onto HTTP status codes.
func changesetErrStatus(err error) int {
	switch {
	case errors.Is(err, changeset.ErrChangesetNotFound):
		return http.StatusNotFound
	case errors.Is(err, changeset.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, changeset.ErrPhaseRegression),
		errors.Is(err, changeset.ErrBadChainPosition),
		errors.Is(err, changeset.ErrUnknownPhase),
		errors.Is(err, changeset.ErrNotActive):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
