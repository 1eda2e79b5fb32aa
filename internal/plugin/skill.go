package plugin

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	skillRefRe     = regexp.MustCompile("`/([^`]+)`")
	backingAgentRe = regexp.MustCompile(`\*\*([A-Z][a-z]+\s+[A-Z][a-z]+)\s+-\s+([^*]+)\*\*\s+is now working`)
	teamAgentRe    = regexp.MustCompile(`(?is)backed by\s+\*\*([^*]+)\*\*.*?(\w+-\w+)`)
	receivesRe     = regexp.MustCompile(`(?s)Context This Skill Receives.*?\n\|(.*?)\n\n`)
	providesRe     = regexp.MustCompile(`(?s)Context This Skill Provides.*?\n\|(.*?)\n\n`)
	nextStepsRe    = regexp.MustCompile(`## Next Steps\s*\n((?:.+\n?)+?)(?:\n##|$)`)
)

// ParseSkillFile parses one SKILL.md into a Skill record. The skill ID
// defaults to the enclosing directory name when front-matter omits it.
func ParseSkillFile(path, domain string) (*Skill, *ParseError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, parseErrorf(path, "read: %v", err)
	}

	fm, body, fmErr := splitFrontMatter(string(data))
	if fmErr != "" {
		return nil, parseErrorf(path, "%s", fmErr)
	}
	if strings.TrimSpace(body) == "" {
		return nil, parseErrorf(path, "empty body")
	}

	id := fm.str("name")
	if id == "" {
		id = filepath.Base(filepath.Dir(path))
	}
	if id == "" {
		return nil, parseErrorf(path, "missing required key %q", "name")
	}

	name := TitleCase(id)
	if m := headingRe.FindStringSubmatch(body); m != nil {
		name = strings.TrimSuffix(strings.TrimSpace(m[1]), " Skill")
	}

	outputs := parseSkillRefs(providesRe, body)
	if m := nextStepsRe.FindStringSubmatch(body); m != nil {
		for _, ref := range skillRefs(m[1]) {
			if !containsStr(outputs, ref) {
				outputs = append(outputs, ref)
			}
		}
	}

	return &Skill{
		ID:             id,
		Name:           name,
		Domain:         domain,
		Invocation:     "/" + id,
		Description:    fm.str("description"),
		BackingAgent:   parseBackingAgent(body),
		HandoffInputs:  parseSkillRefs(receivesRe, body),
		HandoffOutputs: outputs,
		FilePath:       path,
	}, nil
}

// parseBackingAgent finds the agent announced in the skill body. A "backed
// by" team section names the real agent ID; otherwise the ID is derived
// from the announced display name.
func parseBackingAgent(body string) string {
	m := backingAgentRe.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	if tm := teamAgentRe.FindStringSubmatch(body); tm != nil {
		return strings.ToLower(tm[2])
	}
	return strings.ToLower(strings.ReplaceAll(m[1], " ", "-"))
}

func parseSkillRefs(section *regexp.Regexp, body string) []string {
	m := section.FindStringSubmatch(body)
	if m == nil {
		return nil
	}
	return skillRefs(m[1])
}

func skillRefs(text string) []string {
	var refs []string
	for _, m := range skillRefRe.FindAllStringSubmatch(text, -1) {
		if !containsStr(refs, m[1]) {
			refs = append(refs, m[1])
		}
	}
	return refs
}

func containsStr(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// ParseSkillDir parses every skills/<name>/SKILL.md under a skills
// directory. A missing directory yields nothing.
func ParseSkillDir(dir, domain string) ([]*Skill, []*ParseError) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}

	var skills []*Skill
	var errs []*ParseError
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), "SKILL.md")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		s, perr := ParseSkillFile(path, domain)
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		skills = append(skills, s)
	}
	return skills, errs
}
