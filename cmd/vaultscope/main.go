package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/vaultscope/internal/api"
	"github.com/nidhogg/vaultscope/internal/archive"
	"github.com/nidhogg/vaultscope/internal/auth"
	"github.com/nidhogg/vaultscope/internal/changeset"
	"github.com/nidhogg/vaultscope/internal/config"
	"github.com/nidhogg/vaultscope/internal/events"
	"github.com/nidhogg/vaultscope/internal/graphmirror"
	"github.com/nidhogg/vaultscope/internal/ingest"
	"github.com/nidhogg/vaultscope/internal/registry"
	"github.com/nidhogg/vaultscope/internal/stream"
	"github.com/nidhogg/vaultscope/internal/watcher"
)

// listenAddr picks the bind address for the auth mode. Local mode trusts
// every request, so it must only ever be reachable over loopback; remote
// mode is token-gated and binds all interfaces.
func listenAddr(mode auth.Mode, port int) string {
	if mode == auth.ModeLocal {
		return fmt.Sprintf("127.0.0.1:%d", port)
	}
	return fmt.Sprintf(":%d", port)
}

func main() {
	_ = godotenv.Load()

	remote := flag.Bool("remote", false, "require the shared token on every request")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting VaultScope...")

	// Load configuration
	var cfg *config.Config
	if cfgPath := os.Getenv("CONFIG_PATH"); cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
		}
		logger.Info("Config loaded", zap.String("path", cfgPath))
	} else {
		cfg = config.Default()
	}
	if root := os.Getenv("VAULTSCOPE_ROOT"); root != "" {
		cfg.Plugins.Roots = strings.Split(root, string(os.PathListSeparator))
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	mode := auth.ModeLocal
	if *remote || os.Getenv("VAULTSCOPE_REMOTE") == "1" || cfg.Auth.Mode == "remote" {
		mode = auth.ModeRemote
	}
	gate, err := auth.NewGate(mode, cfg.Auth.TokenFile, logger)
	if err != nil {
		logger.Fatal("auth setup failed", zap.Error(err))
	}
	logger.Info("Auth gate ready", zap.String("mode", string(gate.Mode())))

	// Registry and initial scan
	reg := registry.New(cfg.Plugins.Roots, logger)
	if snap, err := reg.Rescan(); err != nil {
		logger.Warn("initial scan failed", zap.Error(err))
	} else {
		logger.Info("Registry loaded",
			zap.Int("agents", len(snap.AllAgents())),
			zap.Int("skills", len(snap.AllSkills())),
			zap.Int("domains", len(snap.AllDomains())))
	}

	// Event store and SSE broadcast manager
	store := events.NewStore(cfg.Events.Capacity)
	streams := stream.NewManager(store, cfg.Stream.QueueSize, cfg.HeartbeatInterval(), logger)
	store.AddListener(streams.NotifyEvent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go streams.Run(ctx)

	// Changeset tracker over project roots
	tracker := changeset.NewTracker(cfg.Plugins.Projects, logger)
	tracker.SetNotifier(func(event string, data interface{}) {
		streams.Broadcast(stream.Frame{Event: event, Data: data})
	})
	tracker.Resync()

	// Optional event archive in PostgreSQL
	var arch *archive.Archive
	if cfg.Database.Postgres.DSN != "" {
		a, err := archive.New(cfg.Database.Postgres.DSN, logger)
		if err != nil {
			logger.Warn("PostgreSQL unavailable, running without archive", zap.Error(err))
		} else {
			if err := a.Migrate(ctx, "migrations"); err != nil {
				logger.Fatal("migration failed", zap.Error(err))
			}
			arch = a
			store.AddListener(a.Listener(ctx))
		}
	}

	// Optional Redis stream consumer for remote hooks
	var consumer *ingest.Consumer
	if cfg.Database.Redis.URL != "" {
		c, err := ingest.New(cfg.Database.Redis.URL, store, logger)
		if err != nil {
			logger.Warn("Redis unavailable, running without stream ingest", zap.Error(err))
		} else {
			consumer = c
			go c.Run(ctx)
		}
	}

	// Optional Neo4j mirror of the collaboration graph
	var mirror *graphmirror.Mirror
	if cfg.Database.Neo4j.URI != "" {
		m, err := graphmirror.New(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if err != nil {
			logger.Warn("Neo4j unavailable, running without graph mirror", zap.Error(err))
		} else {
			mirror = m
			if err := m.Sync(ctx, reg.Current()); err != nil {
				logger.Warn("graph mirror sync failed", zap.Error(err))
			}
		}
	}

	// Watch plugin roots; rescan on settled change bursts
	pluginWatch := watcher.New(cfg.Plugins.Roots, watcher.MarkdownOrJSON, func() {
		snap, err := reg.Rescan()
		if err != nil {
			logger.Warn("rescan failed", zap.Error(err))
			return
		}
		logger.Info("Registry rescanned",
			zap.Int("agents", len(snap.AllAgents())),
			zap.Int("parse_errors", len(snap.ParseErrors)))
		if mirror != nil {
			if err := mirror.Sync(ctx, snap); err != nil {
				logger.Warn("graph mirror sync failed", zap.Error(err))
			}
		}
	}, logger)
	pluginWatch.SetIntervals(cfg.PollInterval(), cfg.DebounceWindow())
	go pluginWatch.Run(ctx)

	// Watch changeset trees; resync tracker state on change
	var changesetRoots []string
	for _, project := range cfg.Plugins.Projects {
		changesetRoots = append(changesetRoots, filepath.Join(project, ".claude", "changesets"))
	}
	changesetWatch := watcher.New(changesetRoots, nil, tracker.Resync, logger)
	changesetWatch.SetIntervals(cfg.PollInterval(), cfg.DebounceWindow())
	go changesetWatch.Run(ctx)

	// Build HTTP handler
	handler := api.NewHandler(reg, store, streams, tracker, gate, arch, logger)

	srv := &http.Server{
		Addr:    listenAddr(gate.Mode(), cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("VaultScope listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down VaultScope...")
	cancel()
	srv.Shutdown(context.Background())
	if consumer != nil {
		consumer.Close()
	}
	if arch != nil {
		arch.Close()
	}
	if mirror != nil {
		mirror.Close(context.Background())
	}
}
