package changeset

import "time"

// Phase is one stage of a cross-domain workflow. Phases only ever advance.
type Phase string

const (
	PhaseDesign         Phase = "design"
	PhaseFoundation     Phase = "foundation"
	PhaseImplementation Phase = "implementation"
	PhaseQuality        Phase = "quality"
	PhaseDeployment     Phase = "deployment"
	PhaseDocumentation  Phase = "documentation"
)

var phaseOrder = []Phase{
	PhaseDesign,
	PhaseFoundation,
	PhaseImplementation,
	PhaseQuality,
	PhaseDeployment,
	PhaseDocumentation,
}

// Index returns the phase's ordinal position, or -1 for an unknown phase.
func (p Phase) Index() int {
	for i, phase := range phaseOrder {
		if phase == p {
			return i
		}
	}
	return -1
}

// Status tracks a changeset's lifecycle independently of its phase.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusBlocked   Status = "blocked"
)

// HandoffStatus tracks one handoff's progress.
type HandoffStatus string

const (
	HandoffPending    HandoffStatus = "pending"
	HandoffInProgress HandoffStatus = "in_progress"
	HandoffComplete   HandoffStatus = "complete"
)

// Changeset is one tracked end-to-end workflow session, persisted as
// changeset.json in its own directory. Version supports optimistic writes
// against external cooperating processes that share the file.
type Changeset struct {
	ID              string     `json:"changeset_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	OriginalRequest string     `json:"original_request"`
	DomainsInvolved []string   `json:"domains_involved"`
	CurrentPhase    Phase      `json:"current_phase"`
	HandoffCount    int        `json:"handoff_count"`
	Decisions       []Decision `json:"decisions"`
	Artifacts       []Artifact `json:"artifacts"`
	Conflicts       []Conflict `json:"conflicts"`
	Status          Status     `json:"status"`
	Version         int        `json:"version"`
	SessionID       string     `json:"session_id,omitempty"`
	PhaseSkips      []string   `json:"phase_skips,omitempty"`

	// ProjectPath locates the project whose .claude/changesets directory
	// holds this record. Not serialized into the file itself.
	ProjectPath string `json:"project_path,omitempty"`

	// Handoffs are loaded from the sibling handoff_*.json files, ordered
	// by chain position.
	Handoffs []*Handoff `json:"-"`
}

// Handoff is one recorded transfer of work between domains, persisted as
// handoff_<position>.json next to its changeset. Append-only.
type Handoff struct {
	ID            string                 `json:"id"`
	ChangesetID   string                 `json:"changeset_id"`
	ChainPosition int                    `json:"chain_position"`
	SourceDomain  string                 `json:"source_domain"`
	TargetDomain  string                 `json:"target_domain"`
	SourceAgent   string                 `json:"source_agent,omitempty"`
	TargetAgent   string                 `json:"target_agent,omitempty"`
	Context       map[string]interface{} `json:"context,omitempty"`
	Status        HandoffStatus          `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// Decision is one recorded decision with its rationale. Append-only.
type Decision struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	Decision  string    `json:"decision"`
	Rationale string    `json:"rationale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Artifact is one produced artifact reference. Append-only.
type Artifact struct {
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Conflict is one recorded cross-domain conflict. Append-only.
type Conflict struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain"`
	Description string    `json:"description"`
	Resolution  string    `json:"resolution,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// maxChainPosition returns the highest chain position among loaded
// handoffs, zero when none exist.
func (c *Changeset) maxChainPosition() int {
	max := 0
	for _, h := range c.Handoffs {
		if h.ChainPosition > max {
			max = h.ChainPosition
		}
	}
	return max
}
