//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/vaultscope/internal/archive"
	"github.com/nidhogg/vaultscope/internal/registry"
)

// Package-level shared state — set by TestMain, used by all subtests.
var (
	testLogger   *zap.Logger
	testArchive  *archive.Archive
	testRedisURL string
	testNeo4jURI string
)

// startNeo4j starts a Neo4j testcontainer, returns URI + cleanup func.
func startNeo4j(ctx context.Context) (string, func(), error) {
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start neo4j: %w", err)
	}
	uri, err := container.BoltUrl(ctx)
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("neo4j bolt url: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return uri, cleanup, nil
}

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("vaultscope_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// seedPluginRoot lays out a two-domain plugin tree and returns a scanned
// registry over it.
func seedPluginRoot(t *testing.T) *registry.Registry {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"backend/.claude-plugin/capabilities.json": `{
			"domain": "backend",
			"collaborates_with": ["frontend"],
			"capabilities": [
				{"id": "backend.create.endpoint", "verb": "create", "artifacts": ["endpoint"], "keywords": ["rest"], "skill": "/create-endpoint", "priority": 6}
			]
		}`,
		"backend/agents/api-engineer.md":            "---\nname: api-engineer\ndescription: API Engineer\n---\n# API Engineer\n\nBuilds endpoints.\n",
		"backend/skills/create-endpoint/SKILL.md":   "---\nname: create-endpoint\n---\n# Create Endpoint\n\nScaffolds a handler.\n",
		"frontend/.claude-plugin/capabilities.json": `{"domain": "frontend", "capabilities": []}`,
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	reg := registry.New([]string{root}, testLogger)
	if _, err := reg.Rescan(); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	return reg
}
