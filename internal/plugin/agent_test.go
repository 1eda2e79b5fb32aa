package plugin

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const sampleAgent = `---
name: api-engineer
description: API Engineer - designs and builds backend endpoints
tools: Read, Write, Bash
---
# API Engineer

**Role:** Backend endpoint design

## Key Phrases
- "build an endpoint"
- "add a route"
- "REST API"
- "wire up the handler"
- "serialize the response"
- "this one is past the cap"
`

func TestParseAgentFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "api-engineer.md")
	writeFile(t, path, sampleAgent)

	a, perr := ParseAgentFile(path, "backend")
	if perr != nil {
		t.Fatalf("parse: %v", perr)
	}
	if a.ID != "api-engineer" {
		t.Errorf("expected id api-engineer, got %q", a.ID)
	}
	if a.Name != "API Engineer" {
		t.Errorf("expected name from heading, got %q", a.Name)
	}
	if a.Role != "API Engineer" {
		t.Errorf("expected role from description prefix, got %q", a.Role)
	}
	if a.Domain != "backend" {
		t.Errorf("expected domain backend, got %q", a.Domain)
	}
	if len(a.Tools) != 3 {
		t.Errorf("expected 3 tools, got %d (%v)", len(a.Tools), a.Tools)
	}
	if len(a.KeyPhrases) != 5 {
		t.Errorf("expected key phrases capped at 5, got %d", len(a.KeyPhrases))
	}
	if a.KeyPhrases[0] != "build an endpoint" {
		t.Errorf("expected first key phrase unquoted, got %q", a.KeyPhrases[0])
	}
}

func TestParseAgentFileIDFromFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db-migrator.md")
	writeFile(t, path, "---\ndescription: Migration runner\n---\nSome body.\n")

	a, perr := ParseAgentFile(path, "backend")
	if perr != nil {
		t.Fatalf("parse: %v", perr)
	}
	if a.ID != "db-migrator" {
		t.Errorf("expected id from file stem, got %q", a.ID)
	}
	if a.Name != "Db Migrator" {
		t.Errorf("expected title-cased fallback name, got %q", a.Name)
	}
}

func TestParseAgentFileEmptyBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.md")
	writeFile(t, path, "---\nname: empty\n---\n\n")

	_, perr := ParseAgentFile(path, "backend")
	if perr == nil {
		t.Fatal("expected parse error for empty body")
	}
	if perr.Path != path {
		t.Errorf("expected error path %q, got %q", path, perr.Path)
	}
}

func TestParseAgentDirCollectsErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.md"), sampleAgent)
	writeFile(t, filepath.Join(dir, "bad.md"), "---\nname: [unclosed\n---\nbody\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	agents, errs := ParseAgentDir(dir, "backend")
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 parse error, got %d", len(errs))
	}
}

func TestParseAgentDirMissing(t *testing.T) {
	agents, errs := ParseAgentDir(filepath.Join(t.TempDir(), "nope"), "backend")
	if agents != nil || errs != nil {
		t.Errorf("expected nothing for missing dir, got %d agents %d errors", len(agents), len(errs))
	}
}
