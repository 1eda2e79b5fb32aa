package registry

import (
	"sort"

	"github.com/nidhogg/vaultscope/internal/plugin"
)

// GraphNode is one domain in the collaboration graph.
type GraphNode struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	AgentCount int      `json:"agent_count"`
	SkillCount int      `json:"skill_count"`
	Subdomains []string `json:"subdomains"`
}

// GraphEdge is one weighted cross-domain collaboration.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// CollaborationGraph is the derived domain graph. It is rebuilt wholesale
// from each snapshot, never patched, so edges always reference nodes that
// exist in the same snapshot.
type CollaborationGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// buildGraph derives nodes from the snapshot's domains and edges from two
// sources: declared collaborates_with entries and cross-domain skill
// handoff references. Each occurrence adds weight.
func buildGraph(snap *Snapshot) *CollaborationGraph {
	g := &CollaborationGraph{}

	for _, d := range snap.AllDomains() {
		g.Nodes = append(g.Nodes, GraphNode{
			ID:         d.Name,
			Name:       plugin.TitleCase(d.Name),
			AgentCount: len(snap.AgentsByDomain[d.Name]),
			SkillCount: len(snap.SkillsByDomain[d.Name]),
			Subdomains: d.Subdomains,
		})
	}

	weights := make(map[[2]string]int)
	for _, d := range snap.Domains {
		for _, target := range d.CollaboratesWith {
			if _, ok := snap.Domains[target]; !ok {
				continue
			}
			weights[[2]string{d.Name, target}]++
		}
	}
	for _, sk := range snap.Skills {
		for _, ref := range sk.HandoffOutputs {
			target, ok := snap.Skills[ref]
			if !ok || target.Domain == sk.Domain {
				continue
			}
			weights[[2]string{sk.Domain, target.Domain}]++
		}
	}

	for pair, weight := range weights {
		g.Edges = append(g.Edges, GraphEdge{Source: pair[0], Target: pair[1], Weight: weight})
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Source != g.Edges[j].Source {
			return g.Edges[i].Source < g.Edges[j].Source
		}
		return g.Edges[i].Target < g.Edges[j].Target
	})
	return g
}

// HandoffGraph is the skill-level handoff graph for the dashboard's
// skill flow view.
type HandoffGraph struct {
	Nodes []HandoffNode `json:"nodes"`
	Edges []HandoffEdge `json:"edges"`
}

type HandoffNode struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type HandoffEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// BuildHandoffGraph derives the skill handoff graph from a snapshot.
// Referenced skills that have no declaration of their own still appear as
// nodes so the edge set stays closed.
func (s *Snapshot) BuildHandoffGraph() *HandoffGraph {
	g := &HandoffGraph{}
	seen := make(map[string]bool)

	add := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		node := HandoffNode{ID: id, Name: id, Domain: "unknown"}
		if sk, ok := s.Skills[id]; ok {
			node.Name = sk.Name
			node.Domain = sk.Domain
		}
		g.Nodes = append(g.Nodes, node)
	}

	for _, sk := range s.AllSkills() {
		add(sk.ID)
		for _, target := range sk.HandoffOutputs {
			add(target)
			g.Edges = append(g.Edges, HandoffEdge{Source: sk.ID, Target: target})
		}
	}
	return g
}
