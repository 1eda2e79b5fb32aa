// Package stream fans out activity and changeset updates to every
// connected viewer. Delivery to each channel is independent: a full queue
// kills that channel, never the broadcaster and never its neighbors.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/nidhogg/vaultscope/internal/events"
	"go.uber.org/zap"
)

const (
	DefaultQueueSize         = 64
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultConnectedTail     = 25

	// maxMissedHeartbeats is how many consecutive undeliverable heartbeats
	// a channel survives before being pruned.
	maxMissedHeartbeats = 3
)

// Manager maintains the set of connected channels and fans frames out to
// all of them.
type Manager struct {
	mu       sync.Mutex
	channels map[string]*Channel

	queueSize int
	interval  time.Duration
	store     *events.Store
	debouncer *ActivityDebouncer
	logger    *zap.Logger
}

// NewManager creates a Manager. The event store is used to hand new
// channels the current tail on connect; it may be nil in tests.
func NewManager(store *events.Store, queueSize int, heartbeat time.Duration, logger *zap.Logger) *Manager {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &Manager{
		channels:  make(map[string]*Channel),
		queueSize: queueSize,
		interval:  heartbeat,
		store:     store,
		debouncer: NewActivityDebouncer(500 * time.Millisecond),
		logger:    logger,
	}
}

// Register adds a new channel and immediately queues its connection
// confirmation carrying the current cursor and recent tail, so every new
// viewer starts fresh from the current snapshot.
func (m *Manager) Register() *Channel {
	ch := newChannel(m.queueSize)

	payload := map[string]interface{}{
		"channel_id": ch.ID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if m.store != nil {
		payload["cursor"] = m.store.LastSeq()
		payload["recent"] = m.store.Recent(DefaultConnectedTail)
	}

	m.mu.Lock()
	m.channels[ch.ID] = ch
	payload["client_count"] = len(m.channels)
	ch.frames <- Frame{Event: EventConnected, Data: payload}
	count := len(m.channels)
	m.mu.Unlock()

	m.logger.Debug("stream channel registered",
		zap.String("channel", ch.ID),
		zap.Int("clients", count))
	return ch
}

// Unregister removes a channel and releases its resources. Idempotent.
func (m *Manager) Unregister(ch *Channel) {
	m.mu.Lock()
	_, present := m.channels[ch.ID]
	if present {
		delete(m.channels, ch.ID)
		close(ch.done)
	}
	count := len(m.channels)
	m.mu.Unlock()

	if present {
		m.logger.Debug("stream channel unregistered",
			zap.String("channel", ch.ID),
			zap.Int("clients", count))
	}
}

// Broadcast queues a frame to every registered channel. A channel whose
// queue is full is pruned; delivery never blocks. Returns the number of
// channels reached.
func (m *Manager) Broadcast(frame Frame) int {
	m.mu.Lock()
	var dead []*Channel
	sent := 0
	for _, ch := range m.channels {
		select {
		case ch.frames <- frame:
			sent++
		default:
			dead = append(dead, ch)
		}
	}
	for _, ch := range dead {
		delete(m.channels, ch.ID)
		close(ch.done)
	}
	m.mu.Unlock()

	for _, ch := range dead {
		m.logger.Warn("stream channel dropped: queue full",
			zap.String("channel", ch.ID))
	}
	return sent
}

// NotifyEvent is the event-store listener: one activity frame per append,
// delivered to every channel in sequence order.
func (m *Manager) NotifyEvent(e events.Event) {
	m.Broadcast(Frame{Event: EventActivity, Data: e})
}

// NotifyGraphActivity broadcasts a node pulse for the dashboard graph,
// debounced per node to suppress animation spam.
func (m *Manager) NotifyGraphActivity(nodeID, agentID, skillID, kind string) int {
	if !m.debouncer.Allow(nodeID) {
		return 0
	}
	data := map[string]string{"node_id": nodeID, "type": kind}
	if agentID != "" {
		data["agent_id"] = agentID
	}
	if skillID != "" {
		data["skill"] = skillID
	}
	return m.Broadcast(Frame{Event: EventGraphActivity, Data: data})
}

// NotifyGraphHandoff broadcasts a cross-domain handoff edge pulse.
func (m *Manager) NotifyGraphHandoff(source, target, sourceAgent, targetAgent string) int {
	data := map[string]string{"source": source, "target": target}
	if sourceAgent != "" {
		data["source_agent"] = sourceAgent
	}
	if targetAgent != "" {
		data["target_agent"] = targetAgent
	}
	return m.Broadcast(Frame{Event: EventGraphHandoff, Data: data})
}

// ClientCount returns the number of connected channels.
func (m *Manager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Run drives the heartbeat loop until the context is canceled. A channel
// that cannot take three consecutive heartbeats is unregistered; a
// delivered heartbeat resets the count.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.beat()
		}
	}
}

func (m *Manager) beat() {
	frame := Frame{Event: EventHeartbeat, Data: map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}}

	m.mu.Lock()
	var dead []*Channel
	for _, ch := range m.channels {
		select {
		case ch.frames <- frame:
			ch.missed = 0
		default:
			ch.missed++
			if ch.missed >= maxMissedHeartbeats {
				dead = append(dead, ch)
			}
		}
	}
	for _, ch := range dead {
		delete(m.channels, ch.ID)
		close(ch.done)
	}
	m.mu.Unlock()

	for _, ch := range dead {
		m.logger.Info("stream channel pruned: missed heartbeats",
			zap.String("channel", ch.ID))
	}
}
