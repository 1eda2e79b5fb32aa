// Package registry holds the authoritative in-memory view of all parsed
// declarations. Readers get immutable snapshots; rescans replace the whole
// snapshot behind an atomic pointer rather than mutating it in place.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nidhogg/vaultscope/internal/plugin"
	"go.uber.org/zap"
)

// Registry owns the current Snapshot plus the activity overlay (last-seen
// timestamps and invocation counts) that must survive rescans.
type Registry struct {
	roots   []string
	current atomic.Pointer[Snapshot]

	// rescanMu serializes rescans; readers never take it.
	rescanMu sync.Mutex

	activityMu  sync.Mutex
	lastActive  map[string]time.Time // agent ID → last activity
	invocations map[string]skillActivity

	logger *zap.Logger
}

type skillActivity struct {
	Count       int
	LastInvoked time.Time
}

// New creates a Registry over the given plugin roots with an empty
// snapshot. Call Rescan to populate it.
func New(roots []string, logger *zap.Logger) *Registry {
	r := &Registry{
		roots:       roots,
		lastActive:  make(map[string]time.Time),
		invocations: make(map[string]skillActivity),
		logger:      logger,
	}
	r.current.Store(&Snapshot{
		Agents:         map[string]*plugin.Agent{},
		Skills:         map[string]*plugin.Skill{},
		Domains:        map[string]*plugin.Domain{},
		AgentsByDomain: map[string][]string{},
		SkillsByDomain: map[string][]string{},
		Graph:          &CollaborationGraph{},
	})
	return r
}

// Current returns the latest completed snapshot. O(1); never blocks on an
// in-progress rescan.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Rescan re-parses every declaration under the roots and atomically swaps
// in the resulting snapshot. If no root is readable the previous snapshot
// is retained and the failure returned.
func (r *Registry) Rescan() (*Snapshot, error) {
	r.rescanMu.Lock()
	defer r.rescanMu.Unlock()

	readable := 0
	for _, root := range r.roots {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			readable++
		}
	}
	if readable == 0 {
		return r.Current(), fmt.Errorf("rescan: no readable root among %v", r.roots)
	}

	snap := buildSnapshot(r.roots)
	for _, perr := range snap.ParseErrors {
		r.logger.Warn("declaration excluded from snapshot",
			zap.String("path", perr.Path),
			zap.String("reason", perr.Reason))
	}
	r.current.Store(snap)

	r.logger.Info("registry rescanned",
		zap.Int("agents", len(snap.Agents)),
		zap.Int("skills", len(snap.Skills)),
		zap.Int("domains", len(snap.Domains)),
		zap.Int("parse_errors", len(snap.ParseErrors)))
	return snap, nil
}

// MarkAgentActive records activity for an agent. The overlay is keyed by
// ID so it survives snapshot swaps.
func (r *Registry) MarkAgentActive(agentID string, at time.Time) {
	r.activityMu.Lock()
	defer r.activityMu.Unlock()
	r.lastActive[agentID] = at
}

// MarkSkillInvoked bumps a skill's invocation count.
func (r *Registry) MarkSkillInvoked(skillID string, at time.Time) {
	r.activityMu.Lock()
	defer r.activityMu.Unlock()
	act := r.invocations[skillID]
	act.Count++
	act.LastInvoked = at
	r.invocations[skillID] = act
}

// LastActive returns the agent's last activity time, zero if never seen.
func (r *Registry) LastActive(agentID string) time.Time {
	r.activityMu.Lock()
	defer r.activityMu.Unlock()
	return r.lastActive[agentID]
}

// SkillInvocations returns a skill's invocation count and last time.
func (r *Registry) SkillInvocations(skillID string) (int, time.Time) {
	r.activityMu.Lock()
	defer r.activityMu.Unlock()
	act := r.invocations[skillID]
	return act.Count, act.LastInvoked
}

// RecentActiveAgents returns up to limit agents from the current snapshot
// ordered by most recent activity. Agents never seen active are skipped.
func (r *Registry) RecentActiveAgents(limit int) []*plugin.Agent {
	snap := r.Current()

	type entry struct {
		agent *plugin.Agent
		at    time.Time
	}
	r.activityMu.Lock()
	var entries []entry
	for id, at := range r.lastActive {
		if a, ok := snap.Agents[id]; ok {
			entries = append(entries, entry{a, at})
		}
	}
	r.activityMu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].at.After(entries[j].at) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]*plugin.Agent, len(entries))
	for i, e := range entries {
		out[i] = e.agent
	}
	return out
}

// RecentInvokedSkills returns up to limit skills ordered by most recent
// invocation.
func (r *Registry) RecentInvokedSkills(limit int) []*plugin.Skill {
	snap := r.Current()

	type entry struct {
		skill *plugin.Skill
		at    time.Time
	}
	r.activityMu.Lock()
	var entries []entry
	for id, act := range r.invocations {
		if sk, ok := snap.Skills[id]; ok {
			entries = append(entries, entry{sk, act.LastInvoked})
		}
	}
	r.activityMu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].at.After(entries[j].at) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]*plugin.Skill, len(entries))
	for i, e := range entries {
		out[i] = e.skill
	}
	return out
}
