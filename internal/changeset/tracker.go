package changeset

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier receives changeset lifecycle notifications. Event is one of
// "changeset_created", "changeset_update", "changeset_deleted".
type Notifier func(event string, data interface{})

// Tracker maintains the in-memory view of every changeset under the
// configured project roots and funnels all mutations through optimistic
// file writes.
type Tracker struct {
	projects []string
	logger   *zap.Logger

	mu     sync.RWMutex
	sets   map[string]*Changeset
	notify Notifier

	// writeMu serializes this process's read-modify-write cycles; the
	// version check in writeChangeset only guards against other
	// processes sharing the files.
	writeMu sync.Mutex
}

// NewTracker builds a tracker over the given project roots. Call Resync
// to load state from disk.
func NewTracker(projects []string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		projects: projects,
		logger:   logger,
		sets:     make(map[string]*Changeset),
	}
}

// SetNotifier installs the lifecycle callback. Pass nil to silence.
func (t *Tracker) SetNotifier(fn Notifier) {
	t.mu.Lock()
	t.notify = fn
	t.mu.Unlock()
}

func (t *Tracker) emit(event string, data interface{}) {
	t.mu.RLock()
	fn := t.notify
	t.mu.RUnlock()
	if fn != nil {
		fn(event, data)
	}
}

// Resync rescans every project root and reconciles the in-memory view,
// emitting created/update/deleted notifications for anything that changed
// out from under us on disk.
func (t *Tracker) Resync() {
	fresh := make(map[string]*Changeset)
	for _, project := range t.projects {
		sets, problems := scanProject(project)
		for _, err := range problems {
			t.logger.Warn("changeset scan error", zap.String("project", project), zap.Error(err))
		}
		for _, cs := range sets {
			fresh[cs.ID] = cs
		}
	}

	t.mu.Lock()
	old := t.sets
	t.sets = fresh
	t.mu.Unlock()

	for id, cs := range fresh {
		prev, ok := old[id]
		switch {
		case !ok:
			t.emit("changeset_created", cs)
		case prev.Version != cs.Version || len(prev.Handoffs) != len(cs.Handoffs):
			t.emit("changeset_update", cs)
		}
	}
	for id := range old {
		if _, ok := fresh[id]; !ok {
			t.emit("changeset_deleted", map[string]string{"changeset_id": id})
		}
	}
}

// All returns every tracked changeset, newest first.
func (t *Tracker) All() []*Changeset {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Changeset, 0, len(t.sets))
	for _, cs := range t.sets {
		out = append(out, cs)
	}
	sortByCreated(out)
	return out
}

// Active returns changesets whose status is active, newest first.
func (t *Tracker) Active() []*Changeset {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Changeset
	for _, cs := range t.sets {
		if cs.Status == StatusActive {
			out = append(out, cs)
		}
	}
	sortByCreated(out)
	return out
}

// Get returns one changeset by ID.
func (t *Tracker) Get(id string) (*Changeset, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cs, ok := t.sets[id]
	if !ok {
		return nil, ErrChangesetNotFound
	}
	return cs, nil
}

// AllHandoffs returns every handoff across all tracked changesets, ordered
// by creation time oldest first.
func (t *Tracker) AllHandoffs() []*Handoff {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Handoff
	for _, cs := range t.sets {
		out = append(out, cs.Handoffs...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// FindHandoff looks a handoff up by ID across all changesets.
func (t *Tracker) FindHandoff(handoffID string) (*Handoff, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, cs := range t.sets {
		for _, h := range cs.Handoffs {
			if h.ID == handoffID {
				return h, nil
			}
		}
	}
	return nil, fmt.Errorf("changeset: handoff %s not found", handoffID)
}

// Create starts a new changeset in the first project root (or the given
// project when set) and persists it at version 1.
func (t *Tracker) Create(originalRequest, sessionID, projectPath string, domains []string) (*Changeset, error) {
	if projectPath == "" {
		if len(t.projects) == 0 {
			return nil, fmt.Errorf("changeset: no project roots configured")
		}
		projectPath = t.projects[0]
	}
	now := nowUTC()
	cs := &Changeset{
		ID:              uuid.NewString(),
		CreatedAt:       now,
		UpdatedAt:       now,
		OriginalRequest: originalRequest,
		DomainsInvolved: domains,
		CurrentPhase:    PhaseDesign,
		Status:          StatusActive,
		Version:         1,
		SessionID:       sessionID,
		ProjectPath:     projectPath,
	}
	if err := createChangesetDir(cs); err != nil {
		return nil, fmt.Errorf("create changeset: %w", err)
	}
	t.mu.Lock()
	t.sets[cs.ID] = cs
	t.mu.Unlock()
	t.emit("changeset_created", cs)
	return cs, nil
}

// mutate applies fn to a fresh copy of the changeset read from disk and
// writes it back with the version bumped. On a concurrent write it
// re-reads and retries up to maxWriteAttempts before giving up with
// ErrStateConflict.
func (t *Tracker) mutate(id string, fn func(*Changeset) error) (*Changeset, error) {
	t.mu.RLock()
	tracked, ok := t.sets[id]
	t.mu.RUnlock()
	if !ok {
		return nil, ErrChangesetNotFound
	}
	project := tracked.ProjectPath

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		cs, err := readChangesetDir(project, changesetDir(project, id))
		if err != nil {
			return nil, fmt.Errorf("reload changeset %s: %w", id, err)
		}
		base := cs.Version
		if err := fn(cs); err != nil {
			return nil, err
		}
		cs.UpdatedAt = nowUTC()
		cs.Version = base + 1
		ok, err := writeChangeset(cs, base)
		if err != nil {
			return nil, fmt.Errorf("write changeset %s: %w", id, err)
		}
		if !ok {
			t.logger.Debug("changeset write lost race, retrying",
				zap.String("changeset_id", id), zap.Int("attempt", attempt+1))
			continue
		}
		t.mu.Lock()
		t.sets[id] = cs
		t.mu.Unlock()
		t.emit("changeset_update", cs)
		return cs, nil
	}
	return nil, ErrStateConflict
}

// AdvancePhase moves the changeset to target. Backward or no-op moves are
// rejected. Skipping intermediate phases is allowed but recorded and
// logged.
func (t *Tracker) AdvancePhase(id string, target Phase) (*Changeset, error) {
	targetIdx := target.Index()
	if targetIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPhase, target)
	}
	return t.mutate(id, func(cs *Changeset) error {
		if cs.Status != StatusActive {
			return ErrNotActive
		}
		currentIdx := cs.CurrentPhase.Index()
		if targetIdx <= currentIdx {
			return fmt.Errorf("%w: %s -> %s", ErrPhaseRegression, cs.CurrentPhase, target)
		}
		if targetIdx > currentIdx+1 {
			for i := currentIdx + 1; i < targetIdx; i++ {
				cs.PhaseSkips = append(cs.PhaseSkips,
					fmt.Sprintf("%s skipped en route to %s", phaseOrder[i], target))
			}
			t.logger.Warn("phase skipped",
				zap.String("changeset_id", id),
				zap.String("from", string(cs.CurrentPhase)),
				zap.String("to", string(target)))
		}
		cs.CurrentPhase = target
		return nil
	})
}

// RecordHandoff appends a handoff to the chain. A zero chain position is
// assigned the next slot; an explicit position must be exactly one past
// the current maximum. The handoff file is only written once the
// changeset write has committed: writing it earlier would make a retried
// attempt re-read its own file, shift the chain, and fail a position it
// had itself assigned — and a lost write would leave an orphan file
// behind.
func (t *Tracker) RecordHandoff(id string, h *Handoff) (*Changeset, error) {
	if h.SourceDomain == "" || h.TargetDomain == "" {
		return nil, fmt.Errorf("changeset: handoff needs source and target domains")
	}
	requested := h.ChainPosition
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.Status == "" {
		h.Status = HandoffPending
	}
	cs, err := t.mutate(id, func(cs *Changeset) error {
		if cs.Status != StatusActive {
			return ErrNotActive
		}
		// Recomputed from the re-read state every attempt; the caller's
		// requested position is what gets validated, not a value a prior
		// attempt assigned.
		next := cs.maxChainPosition() + 1
		if requested != 0 && requested != next {
			return fmt.Errorf("%w: got %d, want %d", ErrBadChainPosition, requested, next)
		}
		h.ChainPosition = next
		if requested != 0 {
			h.ChainPosition = requested
		}
		h.ChangesetID = cs.ID
		h.CreatedAt = nowUTC()
		cs.Handoffs = append(cs.Handoffs, h)
		cs.HandoffCount = len(cs.Handoffs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := writeHandoff(cs.ProjectPath, h); err != nil {
		return nil, fmt.Errorf("write handoff: %w", err)
	}
	return cs, nil
}

// CompleteHandoff marks one handoff complete. As with RecordHandoff, the
// handoff file is rewritten only after the changeset write commits.
func (t *Tracker) CompleteHandoff(id, handoffID string) (*Changeset, error) {
	var done *Handoff
	cs, err := t.mutate(id, func(cs *Changeset) error {
		done = nil
		for _, h := range cs.Handoffs {
			if h.ID != handoffID {
				continue
			}
			now := nowUTC()
			h.Status = HandoffComplete
			h.CompletedAt = &now
			done = h
			return nil
		}
		return fmt.Errorf("changeset: handoff %s not found", handoffID)
	})
	if err != nil {
		return nil, err
	}
	if err := writeHandoff(cs.ProjectPath, done); err != nil {
		return nil, fmt.Errorf("write handoff: %w", err)
	}
	return cs, nil
}

// RecordDecision appends a decision to the changeset record.
func (t *Tracker) RecordDecision(id string, d Decision) (*Changeset, error) {
	if d.Decision == "" {
		return nil, fmt.Errorf("changeset: decision text required")
	}
	return t.mutate(id, func(cs *Changeset) error {
		if cs.Status != StatusActive {
			return ErrNotActive
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.CreatedAt = nowUTC()
		cs.Decisions = append(cs.Decisions, d)
		return nil
	})
}

// RecordArtifact appends an artifact reference to the changeset record.
func (t *Tracker) RecordArtifact(id string, a Artifact) (*Changeset, error) {
	if a.Name == "" {
		return nil, fmt.Errorf("changeset: artifact name required")
	}
	return t.mutate(id, func(cs *Changeset) error {
		if cs.Status != StatusActive {
			return ErrNotActive
		}
		a.CreatedAt = nowUTC()
		cs.Artifacts = append(cs.Artifacts, a)
		return nil
	})
}

// RecordConflict appends a conflict to the changeset record.
func (t *Tracker) RecordConflict(id string, c Conflict) (*Changeset, error) {
	if c.Description == "" {
		return nil, fmt.Errorf("changeset: conflict description required")
	}
	return t.mutate(id, func(cs *Changeset) error {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.CreatedAt = nowUTC()
		cs.Conflicts = append(cs.Conflicts, c)
		return nil
	})
}

// ResolveConflict records a resolution on an existing conflict.
func (t *Tracker) ResolveConflict(id, conflictID, resolution string) (*Changeset, error) {
	return t.mutate(id, func(cs *Changeset) error {
		for i := range cs.Conflicts {
			if cs.Conflicts[i].ID == conflictID {
				cs.Conflicts[i].Resolution = resolution
				return nil
			}
		}
		return fmt.Errorf("changeset: conflict %s not found", conflictID)
	})
}

// Complete marks the changeset completed. Further mutations are rejected.
func (t *Tracker) Complete(id string) (*Changeset, error) {
	return t.mutate(id, func(cs *Changeset) error {
		if cs.Status == StatusCompleted {
			return nil
		}
		cs.Status = StatusCompleted
		return nil
	})
}

// Block marks the changeset blocked, recording the reason as a conflict.
func (t *Tracker) Block(id, reason string) (*Changeset, error) {
	return t.mutate(id, func(cs *Changeset) error {
		cs.Status = StatusBlocked
		if reason != "" {
			cs.Conflicts = append(cs.Conflicts, Conflict{
				ID:          uuid.NewString(),
				Description: reason,
				CreatedAt:   nowUTC(),
			})
		}
		return nil
	})
}

// Delete removes the changeset directory and forgets the changeset.
func (t *Tracker) Delete(id string) error {
	t.mu.Lock()
	cs, ok := t.sets[id]
	if ok {
		delete(t.sets, id)
	}
	t.mu.Unlock()
	if !ok {
		return ErrChangesetNotFound
	}
	if err := removeChangesetDir(cs.ProjectPath, id); err != nil {
		return fmt.Errorf("delete changeset %s: %w", id, err)
	}
	t.emit("changeset_deleted", map[string]string{"changeset_id": id})
	return nil
}
