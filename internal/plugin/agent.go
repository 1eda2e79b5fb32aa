package plugin

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	headingRe    = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	roleRe       = regexp.MustCompile(`\*\*Role:\*\*\s*(.+)`)
	keyPhrasesRe = regexp.MustCompile(`## Key Phrases\s*\n((?:- .+\n?)+)`)
)

const maxKeyPhrases = 5

// ParseAgentFile parses one agent declaration file into an Agent record.
// A malformed file returns a *ParseError and no record; the caller keeps
// scanning.
func ParseAgentFile(path, domain string) (*Agent, *ParseError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, parseErrorf(path, "read: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, parseErrorf(path, "stat: %v", err)
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
		id = strings.TrimSuffix(filepath.Base(path), ".md")
	}
	if id == "" {
		return nil, parseErrorf(path, "missing required key %q", "name")
	}

	name := fm.str("name")
	if m := headingRe.FindStringSubmatch(body); m != nil {
		name = strings.TrimSpace(m[1])
	}
	if name == "" {
		name = TitleCase(id)
	}

	// Role comes from the description's leading segment, falling back to a
	// **Role:** marker in the body.
	description := fm.str("description")
	role := description
	if idx := strings.Index(description, " - "); idx >= 0 {
		role = description[:idx]
	}
	if role == "" {
		if m := roleRe.FindStringSubmatch(body); m != nil {
			role = strings.TrimSpace(m[1])
		}
	}

	return &Agent{
		ID:          id,
		Name:        name,
		Role:        role,
		Domain:      domain,
		Description: description,
		Tools:       fm.list("tools"),
		KeyPhrases:  parseKeyPhrases(body),
		Body:        body,
		FilePath:    path,
		ModTime:     info.ModTime(),
	}, nil
}

func parseKeyPhrases(body string) []string {
	m := keyPhrasesRe.FindStringSubmatch(body)
	if m == nil {
		return nil
	}
	var phrases []string
	for _, line := range strings.Split(m[1], "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") {
			continue
		}
		phrase := strings.Trim(strings.TrimPrefix(line, "-"), ` "`)
		if phrase != "" {
			phrases = append(phrases, phrase)
		}
		if len(phrases) == maxKeyPhrases {
			break
		}
	}
	return phrases
}

// ParseAgentDir parses every .md file in an agents directory. Parse
// failures are collected, never fatal. A missing directory yields nothing.
func ParseAgentDir(dir, domain string) ([]*Agent, []*ParseError) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}

	var agents []*Agent
	var errs []*ParseError
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		a, perr := ParseAgentFile(filepath.Join(dir, entry.Name()), domain)
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		agents = append(agents, a)
	}
	return agents, errs
}
