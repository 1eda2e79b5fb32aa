package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/vaultscope/internal/events"
)

const writeQueueSize = 256

// Archive persists activity events to PostgreSQL so history survives
// restarts and outlives the in-memory ring buffer. Entirely optional; the
// dashboard runs without it. Inserts run on a dedicated writer goroutine
// behind a bounded queue, so recording never blocks the event hot path on
// the database.
type Archive struct {
	db     *pgxpool.Pool
	logger *zap.Logger

	queue chan events.Event
	wg    sync.WaitGroup

	// insert is the row writer the drain loop calls; swapped in tests.
	insert func(ctx context.Context, ev events.Event)

	closeOnce sync.Once
}

// New creates an Archive with a pgx connection pool and starts the writer.
func New(dsn string, logger *zap.Logger) (*Archive, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")

	a := &Archive{db: pool, logger: logger, queue: make(chan events.Event, writeQueueSize)}
	a.insert = a.insertRow
	a.wg.Add(1)
	go a.writer()
	return a, nil
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (a *Archive) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := a.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		a.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// Record queues one event for insertion. Never blocks: when the writer
// falls behind and the queue fills, the event is dropped with a warning —
// the archive is best-effort history, the live stream is not allowed to
// stall on it.
func (a *Archive) Record(ctx context.Context, ev events.Event) {
	select {
	case a.queue <- ev:
	default:
		a.logger.Warn("archive queue full, dropping event", zap.String("event_id", ev.ID))
	}
}

// writer drains the queue until Close.
func (a *Archive) writer() {
	defer a.wg.Done()
	for ev := range a.queue {
		a.insert(context.Background(), ev)
	}
}

func (a *Archive) insertRow(ctx context.Context, ev events.Event) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		payload = []byte("{}")
	}
	_, err = a.db.Exec(ctx, `
		INSERT INTO activity_events
			(event_id, seq, event_type, tool, agent_id, skill_id, domain, session_id, payload, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING`,
		ev.ID, ev.Seq, string(ev.Type), ev.Tool, ev.AgentID, ev.SkillID, ev.Domain,
		ev.SessionID, payload, ev.Outcome, ev.Timestamp)
	if err != nil {
		a.logger.Warn("archive insert failed", zap.String("event_id", ev.ID), zap.Error(err))
	}
}

// Listener adapts Record to the event store's fan-out hook.
func (a *Archive) Listener(ctx context.Context) events.Listener {
	return func(ev events.Event) {
		a.Record(ctx, ev)
	}
}

// RecentBySession loads archived events for one session, oldest first.
func (a *Archive) RecentBySession(ctx context.Context, sessionID string, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.Query(ctx, `
		SELECT event_id, seq, event_type, tool, agent_id, skill_id, domain, session_id, payload, outcome, created_at
		FROM activity_events
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			ev      events.Event
			typ     string
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Seq, &typ, &ev.Tool, &ev.AgentID, &ev.SkillID,
			&ev.Domain, &ev.SessionID, &payload, &ev.Outcome, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		ev.Type = events.Type(typ)
		if len(payload) > 0 {
			json.Unmarshal(payload, &ev.Payload)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close drains queued events and shuts down the connection pool.
func (a *Archive) Close() {
	a.closeOnce.Do(func() {
		close(a.queue)
		a.wg.Wait()
		if a.db != nil {
			a.db.Close()
		}
	})
}
