package registry

import (
	"sort"
	"strings"
	"time"

	"github.com/nidhogg/vaultscope/internal/plugin"
)

// Snapshot is one complete, internally consistent view of every parsed
// declaration across all roots. Snapshots are never mutated after
// construction; a rescan builds a new one and swaps it in whole.
type Snapshot struct {
	Agents       map[string]*plugin.Agent
	Skills       map[string]*plugin.Skill
	Capabilities []*plugin.Capability
	Domains      map[string]*plugin.Domain

	AgentsByDomain map[string][]string
	SkillsByDomain map[string][]string

	Graph *CollaborationGraph

	ParseErrors []*plugin.ParseError
	ScannedAt   time.Time
}

// buildSnapshot parses every plugin directory under the given roots. The
// graph is derived from the same parse pass, so an edge can never name a
// domain the snapshot does not hold.
func buildSnapshot(roots []string) *Snapshot {
	snap := &Snapshot{
		Agents:         make(map[string]*plugin.Agent),
		Skills:         make(map[string]*plugin.Skill),
		Domains:        make(map[string]*plugin.Domain),
		AgentsByDomain: make(map[string][]string),
		SkillsByDomain: make(map[string][]string),
		ScannedAt:      time.Now(),
	}

	for _, root := range roots {
		for _, dir := range plugin.DiscoverDirs(root) {
			snap.addPluginDir(dir)
		}
	}

	// Deterministic ordering keeps repeated scans of an unchanged tree
	// structurally equal.
	for domain := range snap.AgentsByDomain {
		sort.Strings(snap.AgentsByDomain[domain])
	}
	for domain := range snap.SkillsByDomain {
		sort.Strings(snap.SkillsByDomain[domain])
	}
	sort.Slice(snap.Capabilities, func(i, j int) bool {
		return snap.Capabilities[i].ID < snap.Capabilities[j].ID
	})

	snap.Graph = buildGraph(snap)
	return snap
}

func (s *Snapshot) addPluginDir(dir plugin.Dir) {
	domainName := dir.Name

	domain, caps, perr := plugin.ParseCapabilitiesFile(dir.CapabilitiesPath())
	if perr != nil {
		// A plugin without capabilities.json is still a valid source of
		// agents and skills; only a present-but-broken file is an error.
		if !strings.Contains(perr.Reason, "read:") {
			s.ParseErrors = append(s.ParseErrors, perr)
		}
	} else if _, seen := s.Domains[domain.Name]; !seen {
		domainName = domain.Name
		s.Domains[domain.Name] = domain
		s.Capabilities = append(s.Capabilities, caps...)
	}

	if _, ok := s.Domains[domainName]; !ok {
		s.Domains[domainName] = &plugin.Domain{Name: domainName}
	}

	agents, errs := plugin.ParseAgentDir(dir.AgentsDir(), domainName)
	s.ParseErrors = append(s.ParseErrors, errs...)
	for _, a := range agents {
		if _, dup := s.Agents[a.ID]; dup {
			continue
		}
		s.Agents[a.ID] = a
		s.AgentsByDomain[a.Domain] = append(s.AgentsByDomain[a.Domain], a.ID)
	}

	skills, errs := plugin.ParseSkillDir(dir.SkillsDir(), domainName)
	s.ParseErrors = append(s.ParseErrors, errs...)
	for _, sk := range skills {
		if _, dup := s.Skills[sk.ID]; dup {
			continue
		}
		s.Skills[sk.ID] = sk
		s.SkillsByDomain[sk.Domain] = append(s.SkillsByDomain[sk.Domain], sk.ID)
	}
}

// AgentsInDomain resolves the agent records for one domain.
func (s *Snapshot) AgentsInDomain(domain string) []*plugin.Agent {
	ids := s.AgentsByDomain[domain]
	out := make([]*plugin.Agent, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Agents[id])
	}
	return out
}

// SkillsInDomain resolves the skill records for one domain.
func (s *Snapshot) SkillsInDomain(domain string) []*plugin.Skill {
	ids := s.SkillsByDomain[domain]
	out := make([]*plugin.Skill, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Skills[id])
	}
	return out
}

// AllAgents returns every agent sorted by ID.
func (s *Snapshot) AllAgents() []*plugin.Agent {
	out := make([]*plugin.Agent, 0, len(s.Agents))
	for _, a := range s.Agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllSkills returns every skill sorted by ID.
func (s *Snapshot) AllSkills() []*plugin.Skill {
	out := make([]*plugin.Skill, 0, len(s.Skills))
	for _, sk := range s.Skills {
		out = append(out, sk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllDomains returns every domain sorted by name.
func (s *Snapshot) AllDomains() []*plugin.Domain {
	out := make([]*plugin.Domain, 0, len(s.Domains))
	for _, d := range s.Domains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
