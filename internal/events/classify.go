package events

import (
	"regexp"
	"strings"
)

// HookPayload is the raw notification a coding-agent hook posts after a
// tool call or prompt. Only the fields the classifier needs are typed;
// everything else rides along in ToolInput.
type HookPayload struct {
	HookEventName string                 `json:"hook_event_name"`
	SessionID     string                 `json:"session_id"`
	ToolName      string                 `json:"tool_name"`
	ToolInput     map[string]interface{} `json:"tool_input"`
	ToolResponse  interface{}            `json:"tool_response,omitempty"`
	Prompt        string                 `json:"prompt,omitempty"`
	CWD           string                 `json:"cwd,omitempty"`
}

var (
	skillCommandRe = regexp.MustCompile(`(?i)(?:^|[\s/])skills?[:/]([\w.-]+)`)
	handoffStartRe = regexp.MustCompile(`(?i)handing\s+off\s+to\s+(?:the\s+)?([\w-]+)`)
	handoffDoneRe  = regexp.MustCompile(`(?i)handoff\s+(?:complete|completed|finished)`)
	decisionRe     = regexp.MustCompile(`(?i)^\s*decision\s*:`)
	artifactPathRe = regexp.MustCompile(`\.claude[/\\]changesets[/\\][^/\\]+[/\\]artifacts[/\\]`)
)

// Classify turns a hook payload into a typed activity event. Unrecognized
// payloads fall back to a plain tool_called record so nothing is dropped.
func Classify(p HookPayload) Event {
	ev := Event{
		SessionID: p.SessionID,
		Tool:      p.ToolName,
		Payload:   p.ToolInput,
	}

	if p.HookEventName == "UserPromptSubmit" {
		ev.Type = TypeUserResponse
		if p.Prompt != "" {
			ev.Payload = map[string]interface{}{"prompt": p.Prompt}
		}
		return ev
	}

	switch p.ToolName {
	case "Task":
		if sub := stringField(p.ToolInput, "subagent_type"); sub != "" {
			ev.Type = TypeAgentActivated
			ev.AgentID = sub
			ev.Domain = domainOf(sub)
			return ev
		}
	case "Skill":
		ev.Type = TypeSkillInvoked
		ev.SkillID = stringField(p.ToolInput, "command")
		if ev.SkillID == "" {
			ev.SkillID = stringField(p.ToolInput, "skill")
		}
		ev.Domain = domainOf(ev.SkillID)
		return ev
	case "Write", "Edit":
		if path := stringField(p.ToolInput, "file_path"); artifactPathRe.MatchString(path) {
			ev.Type = TypeArtifactCreated
			ev.Payload = map[string]interface{}{"file_path": path}
			return ev
		}
	}

	text := stringField(p.ToolInput, "command")
	if text == "" {
		text = stringField(p.ToolInput, "prompt")
	}
	if text == "" {
		text = stringField(p.ToolInput, "description")
	}

	if m := skillCommandRe.FindStringSubmatch(text); m != nil {
		ev.Type = TypeSkillInvoked
		ev.SkillID = m[1]
		ev.Domain = domainOf(ev.SkillID)
		return ev
	}
	if m := handoffStartRe.FindStringSubmatch(text); m != nil {
		ev.Type = TypeHandoffStarted
		ev.Domain = strings.ToLower(m[1])
		return ev
	}
	if handoffDoneRe.MatchString(text) {
		ev.Type = TypeHandoffCompleted
		return ev
	}
	if decisionRe.MatchString(text) {
		ev.Type = TypeDecisionMade
		return ev
	}

	ev.Type = TypeToolCalled
	return ev
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// domainOf extracts the domain prefix from ids shaped like
// "backend-api-engineer" or "backend.create-endpoint". Ids without a
// separator map to themselves.
func domainOf(id string) string {
	id = strings.TrimPrefix(id, "/")
	if i := strings.IndexAny(id, ".-"); i > 0 {
		return id[:i]
	}
	return id
}
