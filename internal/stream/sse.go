package stream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ServeHTTP is the long-lived text/event-stream endpoint. Each connection
// gets its own channel; the handler drains the channel's queue into the
// response and unregisters the moment the transport closes.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := m.Register()
	defer m.Unregister(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch.Done():
			return
		case frame := <-ch.Frames():
			if err := writeFrame(w, frame); err != nil {
				m.logger.Debug("stream write failed",
					zap.String("channel", ch.ID),
					zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

// writeFrame emits one SSE message: a named event line followed by a
// single JSON data line.
func writeFrame(w http.ResponseWriter, frame Frame) error {
	data, err := json.Marshal(frame.Data)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Event, data)
	return err
}
