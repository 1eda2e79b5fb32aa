package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nidhogg/vaultscope/internal/events"
)

// ingestEvent accepts a hook notification, classifies it, appends it to
// the event store and pushes derived graph activity to connected clients.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var payload events.HookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ev := h.store.Append(events.Classify(payload))

	now := time.Now()
	switch ev.Type {
	case events.TypeAgentActivated:
		h.registry.MarkAgentActive(ev.AgentID, now)
		h.streams.NotifyGraphActivity(ev.Domain, ev.AgentID, "", "agent")
	case events.TypeSkillInvoked:
		h.registry.MarkSkillInvoked(ev.SkillID, now)
		h.streams.NotifyGraphActivity(ev.Domain, "", ev.SkillID, "skill")
	case events.TypeHandoffStarted:
		h.streams.NotifyGraphHandoff("", ev.Domain, "", "")
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"seq":        ev.Seq,
		"event_type": ev.Type,
	})
}

func (h *Handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	writeJSON(w, http.StatusOK, h.store.Recent(limit))
}

// eventsSince serves incremental catch-up reads. A cursor that has fallen
// off the ring gets 410 so the client knows to resync from scratch.
func (h *Handler) eventsSince(w http.ResponseWriter, r *http.Request) {
	cursor, err := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be a sequence number"})
		return
	}
	evs, err := h.store.ReadSince(cursor)
	if err != nil {
		if errors.Is(err, events.ErrCursorEvicted) {
			writeJSON(w, http.StatusGone, map[string]interface{}{
				"error":    "cursor evicted",
				"last_seq": h.store.LastSeq(),
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":   evs,
		"last_seq": h.store.LastSeq(),
	})
}

func (h *Handler) sessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	evs := h.store.BySession(sessionID, limit)
	if len(evs) == 0 && h.archive != nil {
		archived, err := h.archive.RecentBySession(r.Context(), sessionID, limit)
		if err == nil {
			evs = archived
		}
	}
	writeJSON(w, http.StatusOK, evs)
}
