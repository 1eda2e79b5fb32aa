package events

import "time"

// Type classifies an activity event.
type Type string

const (
	TypeToolCalled       Type = "tool_called"
	TypeSkillInvoked     Type = "skill_invoked"
	TypeAgentActivated   Type = "agent_activated"
	TypeHandoffStarted   Type = "handoff_started"
	TypeHandoffCompleted Type = "handoff_completed"
	TypeUserResponse     Type = "user_response"
	TypeArtifactCreated  Type = "artifact_created"
	TypeDecisionMade     Type = "decision_made"
)

// Event is one activity record. Immutable once appended; its identity is
// the monotonic sequence number assigned by the store.
type Event struct {
	Seq       uint64                 `json:"seq"`
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      Type                   `json:"event_type"`
	Tool      string                 `json:"tool,omitempty"`
	Domain    string                 `json:"domain"`
	AgentID   string                 `json:"agent_id,omitempty"`
	SkillID   string                 `json:"skill_id,omitempty"`
	Payload   map[string]interface{} `json:"content,omitempty"`
	Outcome   string                 `json:"outcome,omitempty"`
}
