package changeset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Changesets live on disk under <project>/.claude/changesets/<id>/:
//
//	changeset.json      the changeset record, versioned
//	handoff_0001.json   one file per handoff, zero-padded chain position
//	artifacts/          loose artifact files dropped by agents
//
// Other processes write these files too, so every mutation goes through
// an optimistic read-modify-write keyed on the Version field.

const (
	changesetsRelDir = ".claude/changesets"
	changesetFile    = "changeset.json"
	artifactsDir     = "artifacts"

	maxWriteAttempts = 3
)

func changesetsRoot(projectPath string) string {
	return filepath.Join(projectPath, changesetsRelDir)
}

func changesetDir(projectPath, id string) string {
	return filepath.Join(changesetsRoot(projectPath), id)
}

func handoffFileName(chainPosition int) string {
	return fmt.Sprintf("handoff_%04d.json", chainPosition)
}

// readChangesetDir loads changeset.json plus all handoff files from one
// changeset directory.
func readChangesetDir(projectPath, dir string) (*Changeset, error) {
	raw, err := os.ReadFile(filepath.Join(dir, changesetFile))
	if err != nil {
		return nil, err
	}
	var cs Changeset
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Join(dir, changesetFile), err)
	}
	if cs.ID == "" {
		cs.ID = filepath.Base(dir)
	}
	cs.ProjectPath = projectPath

	handoffs, err := readHandoffs(dir)
	if err != nil {
		return nil, err
	}
	cs.Handoffs = handoffs
	mergeDiskArtifacts(&cs, dir)
	return &cs, nil
}

func readHandoffs(dir string) ([]*Handoff, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var handoffs []*Handoff
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "handoff_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var h Handoff
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Join(dir, name), err)
		}
		handoffs = append(handoffs, &h)
	}
	sort.Slice(handoffs, func(i, j int) bool {
		return handoffs[i].ChainPosition < handoffs[j].ChainPosition
	})
	return handoffs, nil
}

// mergeDiskArtifacts folds files found under artifacts/ into the record's
// artifact list so artifacts dropped without a matching record entry still
// show up. Matching is by file name.
func mergeDiskArtifacts(cs *Changeset, dir string) {
	entries, err := os.ReadDir(filepath.Join(dir, artifactsDir))
	if err != nil {
		return
	}
	known := make(map[string]bool, len(cs.Artifacts))
	for _, a := range cs.Artifacts {
		known[a.Name] = true
	}
	for _, entry := range entries {
		if entry.IsDir() || known[entry.Name()] {
			continue
		}
		created := cs.CreatedAt
		if info, err := entry.Info(); err == nil {
			created = info.ModTime()
		}
		cs.Artifacts = append(cs.Artifacts, Artifact{
			Name:      entry.Name(),
			Location:  filepath.Join(dir, artifactsDir, entry.Name()),
			CreatedAt: created,
		})
	}
}

// writeJSONFile writes v to path atomically via a temp file and rename.
func writeJSONFile(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cs-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// currentVersion reads just the version field from a changeset file.
func currentVersion(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0, err
	}
	return probe.Version, nil
}

// writeChangeset persists the record if the on-disk version still matches
// base. Returns false when another writer got there first.
func writeChangeset(cs *Changeset, base int) (bool, error) {
	dir := changesetDir(cs.ProjectPath, cs.ID)
	path := filepath.Join(dir, changesetFile)
	onDisk, err := currentVersion(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return false, err
		}
		onDisk = 0
	}
	if onDisk != base {
		return false, nil
	}
	if err := writeJSONFile(path, cs); err != nil {
		return false, err
	}
	return true, nil
}

// createChangesetDir lays out a fresh changeset directory and writes the
// initial record.
func createChangesetDir(cs *Changeset) error {
	dir := changesetDir(cs.ProjectPath, cs.ID)
	if err := os.MkdirAll(filepath.Join(dir, artifactsDir), 0o755); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(dir, changesetFile), cs)
}

// writeHandoff persists one handoff file next to its changeset record.
func writeHandoff(projectPath string, h *Handoff) error {
	dir := changesetDir(projectPath, h.ChangesetID)
	return writeJSONFile(filepath.Join(dir, handoffFileName(h.ChainPosition)), h)
}

// scanProject loads every changeset directory under one project root.
// Unreadable or malformed directories are skipped and reported.
func scanProject(projectPath string) ([]*Changeset, []error) {
	root := changesetsRoot(projectPath)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{err}
	}
	var (
		sets     []*Changeset
		problems []error
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		cs, err := readChangesetDir(projectPath, filepath.Join(root, entry.Name()))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			problems = append(problems, err)
			continue
		}
		sets = append(sets, cs)
	}
	sort.Slice(sets, func(i, j int) bool {
		return sets[i].CreatedAt.After(sets[j].CreatedAt)
	})
	return sets, problems
}

// removeChangesetDir deletes the whole changeset directory tree.
func removeChangesetDir(projectPath, id string) error {
	return os.RemoveAll(changesetDir(projectPath, id))
}

// ArtifactContent reads one artifact file from the changeset's artifacts
// directory. The name is restricted to a bare file name so callers cannot
// escape the directory.
func ArtifactContent(cs *Changeset, name string) ([]byte, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("changeset: invalid artifact name %q", name)
	}
	return os.ReadFile(filepath.Join(changesetDir(cs.ProjectPath, cs.ID), artifactsDir, name))
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
