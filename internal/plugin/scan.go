package plugin

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dir is one discovered plugin directory: the unit that may carry an
// agents/ directory, a skills/ directory, and .claude-plugin/capabilities.json.
type Dir struct {
	Path string
	// Name is the fallback domain when capabilities.json declares none.
	Name string
}

// DiscoverDirs lists the plugin directories under a root. Two layouts are
// recognized: a development root (<root>/<domain>/) and a marketplace cache
// root (<root>/<source>/<plugin>/<version>/), where the newest version
// directory wins. A missing root yields nothing.
func DiscoverDirs(root string) []Dir {
	if strings.Contains(root, "cache") {
		return discoverCacheDirs(root)
	}
	return discoverDevDirs(root)
}

func discoverDevDirs(root string) []Dir {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var dirs []Dir
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, Dir{Path: filepath.Join(root, e.Name()), Name: e.Name()})
		}
	}
	return dirs
}

func discoverCacheDirs(root string) []Dir {
	sources, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var dirs []Dir
	for _, source := range sources {
		if !source.IsDir() {
			continue
		}
		sourcePath := filepath.Join(root, source.Name())
		plugins, err := os.ReadDir(sourcePath)
		if err != nil {
			continue
		}
		for _, p := range plugins {
			if !p.IsDir() {
				continue
			}
			if latest := latestVersionDir(filepath.Join(sourcePath, p.Name())); latest != "" {
				dirs = append(dirs, Dir{Path: latest, Name: p.Name()})
			}
		}
	}
	return dirs
}

// latestVersionDir picks the newest version subdirectory by reverse
// lexical sort, matching how the cache is laid out.
func latestVersionDir(pluginPath string) string {
	entries, err := os.ReadDir(pluginPath)
	if err != nil {
		return ""
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	if len(versions) == 0 {
		return ""
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	return filepath.Join(pluginPath, versions[0])
}

// CapabilitiesPath returns the capabilities.json location for a plugin dir.
func (d Dir) CapabilitiesPath() string {
	return filepath.Join(d.Path, ".claude-plugin", "capabilities.json")
}

// AgentsDir returns the agents directory for a plugin dir.
func (d Dir) AgentsDir() string {
	return filepath.Join(d.Path, "agents")
}

// SkillsDir returns the skills directory for a plugin dir.
func (d Dir) SkillsDir() string {
	return filepath.Join(d.Path, "skills")
}
