package graphmirror

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/nidhogg/vaultscope/internal/registry"
)

// Mirror pushes the domain collaboration graph into Neo4j after each
// rescan so graph tooling can query it with Cypher. Optional; the
// dashboard serves the graph from memory regardless.
type Mirror struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// New creates a mirror backed by Neo4j.
func New(uri, user, password string, logger *zap.Logger) (*Mirror, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(context.Background()); err != nil {
		driver.Close(context.Background())
		return nil, fmt.Errorf("neo4j connect: %w", err)
	}
	logger.Info("Neo4j connected")
	return &Mirror{driver: driver, logger: logger}, nil
}

// Sync merges the snapshot's domains and collaboration edges into the
// graph. Existing nodes keep their identity; counts and weights are
// overwritten.
func (m *Mirror) Sync(ctx context.Context, snap *registry.Snapshot) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for _, node := range snap.Graph.Nodes {
		_, err := session.Run(ctx,
			`MERGE (d:Domain {id: $id})
			 SET d.name = $name, d.agent_count = $agents, d.skill_count = $skills,
			     d.subdomains = $subdomains, d.synced_at = datetime()`,
			map[string]interface{}{
				"id":         node.ID,
				"name":       node.Name,
				"agents":     node.AgentCount,
				"skills":     node.SkillCount,
				"subdomains": node.Subdomains,
			})
		if err != nil {
			return fmt.Errorf("merge domain %s: %w", node.ID, err)
		}
	}

	for _, edge := range snap.Graph.Edges {
		_, err := session.Run(ctx,
			`MATCH (a:Domain {id: $source}), (b:Domain {id: $target})
			 MERGE (a)-[r:COLLABORATES_WITH]->(b)
			 SET r.weight = $weight, r.synced_at = datetime()`,
			map[string]interface{}{
				"source": edge.Source,
				"target": edge.Target,
				"weight": edge.Weight,
			})
		if err != nil {
			return fmt.Errorf("merge edge %s->%s: %w", edge.Source, edge.Target, err)
		}
	}

	m.logger.Debug("graph mirrored",
		zap.Int("nodes", len(snap.Graph.Nodes)), zap.Int("edges", len(snap.Graph.Edges)))
	return nil
}

// Close shuts down the driver.
func (m *Mirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}
