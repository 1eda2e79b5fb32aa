// Package events holds the bounded in-memory activity log. The buffer is
// the only structure in the system with concurrent append access; one lock
// serializes sequence assignment, the buffer write, and listener fan-out,
// so listeners always see events in sequence order. Listeners must be
// non-blocking and must not call back into the store.
package events

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCursorEvicted reports that the requested cursor has fallen off the
// back of the ring buffer; the caller must resynchronize from a fresh
// snapshot rather than treat this as fatal.
var ErrCursorEvicted = errors.New("events: cursor evicted, buffer has advanced past it")

// Listener receives every appended event, in append order.
type Listener func(Event)

// Store is a fixed-capacity circular buffer of events indexed by monotonic
// sequence number.
type Store struct {
	mu        sync.Mutex
	buf       []Event
	capacity  int
	lastSeq   uint64
	listeners []Listener
}

const DefaultCapacity = 10000

// NewStore creates a Store. Non-positive capacity gets DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// Append assigns the next sequence number, stores the event, and evicts
// the oldest entry at capacity. Listeners run before the lock is released:
// releasing between assignment and fan-out would let two appends reach the
// listener chain out of sequence order. Listeners never block (the SSE
// broadcaster drops frames for full channels, the archive queues), so the
// critical section stays short.
func (s *Store) Append(e Event) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeq++
	e.Seq = s.lastSeq
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if len(s.buf) == s.capacity {
		s.buf = append(s.buf[1:], e)
	} else {
		s.buf = append(s.buf, e)
	}
	for _, l := range s.listeners {
		l(e)
	}
	return e
}

// ReadSince returns all events with sequence number greater than cursor.
// Returns ErrCursorEvicted when events after the cursor have already been
// evicted.
func (s *Store) ReadSince(cursor uint64) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 {
		if cursor < s.lastSeq {
			return nil, ErrCursorEvicted
		}
		return nil, nil
	}
	oldest := s.buf[0].Seq
	if cursor+1 < oldest {
		return nil, ErrCursorEvicted
	}
	if cursor >= s.lastSeq {
		return nil, nil
	}
	start := int(cursor + 1 - oldest)
	out := make([]Event, len(s.buf)-start)
	copy(out, s.buf[start:])
	return out, nil
}

// Recent returns the last n events, newest first.
func (s *Store) Recent(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.buf) {
		n = len(s.buf)
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = s.buf[len(s.buf)-1-i]
	}
	return out
}

// BySession returns up to limit events for one session, newest first.
func (s *Store) BySession(sessionID string, limit int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for i := len(s.buf) - 1; i >= 0; i-- {
		if s.buf[i].SessionID == sessionID {
			out = append(out, s.buf[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// ByAgent returns up to limit events tagged with an agent, newest first.
func (s *Store) ByAgent(agentID string, limit int) []Event {
	return s.filter(limit, func(e Event) bool { return e.AgentID == agentID })
}

// BySkill returns up to limit events tagged with a skill, newest first.
func (s *Store) BySkill(skillID string, limit int) []Event {
	return s.filter(limit, func(e Event) bool { return e.SkillID == skillID })
}

func (s *Store) filter(limit int, keep func(Event) bool) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for i := len(s.buf) - 1; i >= 0; i-- {
		if keep(s.buf[i]) {
			out = append(out, s.buf[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// LastSeq returns the most recently assigned sequence number.
func (s *Store) LastSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq
}

// Len returns the number of buffered events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// AddListener registers a listener for future appends. Listeners must not
// block and must not call back into the store.
func (s *Store) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}
