package events

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func appendN(s *Store, n int) {
	for i := 1; i <= n; i++ {
		s.Append(Event{
			Type:      TypeToolCalled,
			Tool:      fmt.Sprintf("tool-%d", i),
			SessionID: "s1",
		})
	}
}

func TestAppendAssignsSequence(t *testing.T) {
	s := NewStore(10)
	first := s.Append(Event{Type: TypeToolCalled})
	second := s.Append(Event{Type: TypeToolCalled})

	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("expected seq 1,2, got %d,%d", first.Seq, second.Seq)
	}
	if first.ID == "" || first.Timestamp.IsZero() {
		t.Error("expected assigned id and timestamp")
	}
	if s.LastSeq() != 2 {
		t.Errorf("expected last seq 2, got %d", s.LastSeq())
	}
}

func TestEvictionKeepsNewest(t *testing.T) {
	s := NewStore(3)
	appendN(s, 5)

	if s.Len() != 3 {
		t.Fatalf("expected buffer len 3, got %d", s.Len())
	}
	recent := s.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 recent events, got %d", len(recent))
	}
	// newest first
	if recent[0].Seq != 5 || recent[1].Seq != 4 || recent[2].Seq != 3 {
		t.Errorf("unexpected recent seqs %d,%d,%d", recent[0].Seq, recent[1].Seq, recent[2].Seq)
	}
}

func TestReadSince(t *testing.T) {
	s := NewStore(10)
	appendN(s, 4)

	evs, err := s.ReadSince(2)
	if err != nil {
		t.Fatalf("read since 2: %v", err)
	}
	if len(evs) != 2 || evs[0].Seq != 3 || evs[1].Seq != 4 {
		t.Errorf("unexpected events after cursor 2: %v", evs)
	}

	evs, err = s.ReadSince(4)
	if err != nil || evs != nil {
		t.Errorf("expected nothing at head, got %v, %v", evs, err)
	}

	// cursor 0 with nothing evicted yet returns everything
	evs, err = s.ReadSince(0)
	if err != nil || len(evs) != 4 {
		t.Errorf("expected all 4 events, got %d, %v", len(evs), err)
	}
}

func TestReadSinceEvicted(t *testing.T) {
	s := NewStore(3)
	appendN(s, 5)

	if _, err := s.ReadSince(0); !errors.Is(err, ErrCursorEvicted) {
		t.Fatalf("expected ErrCursorEvicted for cursor 0, got %v", err)
	}
	if _, err := s.ReadSince(1); !errors.Is(err, ErrCursorEvicted) {
		t.Fatalf("expected ErrCursorEvicted for cursor 1, got %v", err)
	}
	// cursor 2: next event (seq 3) is the oldest buffered one
	evs, err := s.ReadSince(2)
	if err != nil {
		t.Fatalf("read since 2: %v", err)
	}
	if len(evs) != 3 {
		t.Errorf("expected 3 events, got %d", len(evs))
	}
}

func TestListenersObserveAppendOrder(t *testing.T) {
	s := NewStore(100)
	var mu sync.Mutex
	var seen []uint64
	s.AddListener(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Seq)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 128; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(Event{Type: TypeToolCalled})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 128 {
		t.Fatalf("expected 128 notifications, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] != seen[i-1]+1 {
			t.Fatalf("listener saw seq %d after seq %d", seen[i], seen[i-1])
		}
	}
}

// Every listener must observe the same ordered stream; an append that
// releases the buffer lock before fan-out would let a second append
// overtake it on the way to the listeners.
func TestConcurrentAppendsKeepListenersInOrder(t *testing.T) {
	s := NewStore(512)

	const listeners = 4
	var mu sync.Mutex
	streams := make([][]uint64, listeners)
	for i := 0; i < listeners; i++ {
		i := i
		s.AddListener(func(e Event) {
			mu.Lock()
			streams[i] = append(streams[i], e.Seq)
			mu.Unlock()
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 128; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(Event{Type: TypeToolCalled, SessionID: "burst"})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, seen := range streams {
		if len(seen) != 128 {
			t.Fatalf("listener %d: expected 128 notifications, got %d", i, len(seen))
		}
		for j := 1; j < len(seen); j++ {
			if seen[j] != seen[j-1]+1 {
				t.Fatalf("listener %d observed seq %d after seq %d", i, seen[j], seen[j-1])
			}
		}
	}
}

func TestFilters(t *testing.T) {
	s := NewStore(10)
	s.Append(Event{Type: TypeAgentActivated, AgentID: "api-engineer", SessionID: "s1"})
	s.Append(Event{Type: TypeSkillInvoked, SkillID: "create-endpoint", SessionID: "s2"})
	s.Append(Event{Type: TypeToolCalled, AgentID: "api-engineer", SessionID: "s1"})

	if got := s.BySession("s1", 0); len(got) != 2 {
		t.Errorf("expected 2 events for s1, got %d", len(got))
	}
	if got := s.ByAgent("api-engineer", 1); len(got) != 1 || got[0].Seq != 3 {
		t.Errorf("expected newest agent event only, got %v", got)
	}
	if got := s.BySkill("create-endpoint", 0); len(got) != 1 {
		t.Errorf("expected 1 skill event, got %d", len(got))
	}
}
