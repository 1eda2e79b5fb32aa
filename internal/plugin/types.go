package plugin

import "time"

// Agent is one parsed agent declaration (persona markdown file).
// The persona body is carried opaque; nothing here interprets it.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Domain      string    `json:"domain"`
	Description string    `json:"description"`
	Tools       []string  `json:"tools"`
	KeyPhrases  []string  `json:"key_phrases"`
	Body        string    `json:"-"`
	FilePath    string    `json:"file_path"`
	ModTime     time.Time `json:"-"`
}

// Skill is one parsed skill declaration (SKILL.md).
type Skill struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Domain         string   `json:"domain"`
	Invocation     string   `json:"invocation"`
	Description    string   `json:"description"`
	BackingAgent   string   `json:"backing_agent,omitempty"`
	HandoffInputs  []string `json:"handoff_inputs"`
	HandoffOutputs []string `json:"handoff_outputs"`
	FilePath       string   `json:"file_path"`
}

// Capability is one declared (verb, artifacts, keywords) intent-matching
// triple owned by a skill.
type Capability struct {
	ID        string   `json:"id"`
	Verb      string   `json:"verb"`
	Domain    string   `json:"domain"`
	Artifacts []string `json:"artifacts"`
	Keywords  []string `json:"keywords"`
	Skill     string   `json:"skill"`
	Priority  int      `json:"priority"`
}

// Domain is the grouping declared by a plugin's capabilities.json.
type Domain struct {
	Name             string   `json:"name"`
	Subdomains       []string `json:"subdomains"`
	CollaboratesWith []string `json:"collaborates_with"`
}
