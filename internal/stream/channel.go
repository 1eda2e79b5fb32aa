package stream

import (
	"time"

	"github.com/google/uuid"
)

// SSE event names put on the wire.
const (
	EventConnected        = "connected"
	EventHeartbeat        = "heartbeat"
	EventActivity         = "activity"
	EventGraphActivity    = "graph_activity"
	EventGraphHandoff     = "graph_handoff"
	EventChangesetCreated = "changeset_created"
	EventChangesetUpdated = "changeset_update"
	EventChangesetDeleted = "changeset_deleted"
	EventError            = "error"
)

// Frame is one outbound streaming message: a named event type plus a JSON
// payload.
type Frame struct {
	Event string
	Data  interface{}
}

// Channel is one live viewer connection: a private bounded queue drained
// by the connection's writer. A slow channel only ever loses itself.
type Channel struct {
	ID        string
	CreatedAt time.Time

	frames chan Frame
	done   chan struct{}

	// missed counts consecutive failed heartbeats; guarded by Manager.mu.
	missed int
}

func newChannel(queueSize int) *Channel {
	return &Channel{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		frames:    make(chan Frame, queueSize),
		done:      make(chan struct{}),
	}
}

// Frames is the channel's private outbound queue.
func (c *Channel) Frames() <-chan Frame {
	return c.frames
}

// Done is closed when the channel is unregistered.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}
