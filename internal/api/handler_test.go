package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/vaultscope/internal/auth"
	"github.com/nidhogg/vaultscope/internal/changeset"
	"github.com/nidhogg/vaultscope/internal/events"
	"github.com/nidhogg/vaultscope/internal/registry"
	"github.com/nidhogg/vaultscope/internal/stream"
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

// newTestHandler creates a Handler wired with in-memory deps over a small
// two-domain plugin tree (no Postgres/Redis/Neo4j).
func newTestHandler(t *testing.T, mode auth.Mode) (*Handler, http.Handler) {
	t.Helper()
	logger := zap.NewNop()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "backend", ".claude-plugin", "capabilities.json"), `{
		"domain": "backend",
		"collaborates_with": ["frontend"],
		"capabilities": [
			{"id": "backend.create.endpoint", "verb": "create", "artifacts": ["endpoint"], "keywords": ["rest", "api"], "skill": "/create-endpoint", "priority": 7}
		]
	}`)
	writeFile(t, filepath.Join(root, "backend", "agents", "api-engineer.md"),
		"---\nname: api-engineer\ndescription: API Engineer - endpoints\n---\n# API Engineer\n\nBuilds endpoints.\n")
	writeFile(t, filepath.Join(root, "backend", "skills", "create-endpoint", "SKILL.md"),
		"---\nname: create-endpoint\n---\n# Create Endpoint\n\nScaffolds.\n")
	writeFile(t, filepath.Join(root, "frontend", ".claude-plugin", "capabilities.json"),
		`{"domain": "frontend", "capabilities": []}`)

	reg := registry.New([]string{root}, logger)
	if _, err := reg.Rescan(); err != nil {
		t.Fatalf("rescan: %v", err)
	}

	store := events.NewStore(100)
	streams := stream.NewManager(store, 16, time.Minute, logger)
	store.AddListener(streams.NotifyEvent)

	project := t.TempDir()
	tracker := changeset.NewTracker([]string{project}, logger)

	gate, err := auth.NewGate(mode, filepath.Join(t.TempDir(), "scope.token"), logger)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}

	h := NewHandler(reg, store, streams, tracker, gate, nil, logger)
	return h, h.Router()
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func deleteReq(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest("DELETE", ts.URL+path, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", path, err)
	}
	return resp
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	_, router := newTestHandler(t, auth.ModeLocal)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/health")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["agents"].(float64) != 1 {
		t.Errorf("expected 1 agent, got %v", body["agents"])
	}
}

func TestAgentEndpoints(t *testing.T) {
	_, router := newTestHandler(t, auth.ModeLocal)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/agents")
	var agents []map[string]interface{}
	decodeJSON(t, resp, &agents)
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}

	resp = getJSON(t, ts, "/api/agents?domain=frontend")
	decodeJSON(t, resp, &agents)
	if len(agents) != 0 {
		t.Errorf("expected 0 frontend agents, got %d", len(agents))
	}

	resp = getJSON(t, ts, "/api/agents/api-engineer")
	if resp.StatusCode != 200 {
		t.Fatalf("get agent: expected 200, got %d", resp.StatusCode)
	}
	var detail map[string]interface{}
	decodeJSON(t, resp, &detail)
	if detail["agent"].(map[string]interface{})["id"] != "api-engineer" {
		t.Errorf("unexpected agent payload %v", detail)
	}

	resp = getJSON(t, ts, "/api/agents/nope")
	if resp.StatusCode != 404 {
		t.Errorf("expected 404 for missing agent, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDomainAndGraphEndpoints(t *testing.T) {
	_, router := newTestHandler(t, auth.ModeLocal)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/domains")
	var domains []map[string]interface{}
	decodeJSON(t, resp, &domains)
	if len(domains) != 2 {
		t.Fatalf("expected 2 domains, got %d", len(domains))
	}

	resp = getJSON(t, ts, "/api/domains/backend")
	if resp.StatusCode != 200 {
		t.Fatalf("get domain: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/collaboration-graph")
	var graph map[string]interface{}
	decodeJSON(t, resp, &graph)
	if len(graph["nodes"].([]interface{})) != 2 {
		t.Errorf("expected 2 graph nodes, got %v", graph["nodes"])
	}
	if len(graph["edges"].([]interface{})) != 1 {
		t.Errorf("expected 1 graph edge, got %v", graph["edges"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := newTestHandler(t, auth.ModeLocal)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/search?q=rest+endpoint")
	if resp.StatusCode != 200 {
		t.Fatalf("search: expected 200, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	if len(body["results"].([]interface{})) != 1 {
		t.Errorf("expected 1 search result, got %v", body["results"])
	}

	resp = getJSON(t, ts, "/api/search")
	if resp.StatusCode != 400 {
		t.Errorf("expected 400 without query, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEventIngestAndReads(t *testing.T) {
	h, router := newTestHandler(t, auth.ModeLocal)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/events", map[string]interface{}{
		"hook_event_name": "PreToolUse",
		"session_id":      "s1",
		"tool_name":       "Task",
		"tool_input":      map[string]interface{}{"subagent_type": "backend-api-engineer"},
	})
	if resp.StatusCode != 202 {
		t.Fatalf("ingest: expected 202, got %d", resp.StatusCode)
	}
	var ack map[string]interface{}
	decodeJSON(t, resp, &ack)
	if ack["event_type"] != "agent_activated" {
		t.Errorf("expected agent_activated, got %v", ack["event_type"])
	}

	resp = getJSON(t, ts, "/api/events/recent?limit=10")
	var recent []map[string]interface{}
	decodeJSON(t, resp, &recent)
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent event, got %d", len(recent))
	}

	resp = getJSON(t, ts, "/api/events?since=0")
	if resp.StatusCode != 200 {
		t.Fatalf("since: expected 200, got %d", resp.StatusCode)
	}
	var page map[string]interface{}
	decodeJSON(t, resp, &page)
	if len(page["events"].([]interface{})) != 1 {
		t.Errorf("expected 1 event since 0, got %v", page["events"])
	}

	resp = getJSON(t, ts, "/api/events?since=abc")
	if resp.StatusCode != 400 {
		t.Errorf("expected 400 for bad cursor, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if h.registry.LastActive("backend-api-engineer").IsZero() {
		t.Error("expected agent activity marked on ingest")
	}
}

func TestEventsSinceEvictedCursor(t *testing.T) {
	h, router := newTestHandler(t, auth.ModeLocal)
	ts := httptest.NewServer(router)
	defer ts.Close()

	small := events.NewStore(2)
	h.store = small
	for i := 0; i < 4; i++ {
		small.Append(events.Event{Type: events.TypeToolCalled})
	}

	resp := getJSON(t, ts, "/api/events?since=1")
	if resp.StatusCode != 410 {
		t.Fatalf("expected 410 for evicted cursor, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	if body["last_seq"].(float64) != 4 {
		t.Errorf("expected last_seq 4 in 410 body, got %v", body["last_seq"])
	}
}

func TestChangesetLifecycle(t *testing.T) {
	_, router := newTestHandler(t, auth.ModeLocal)
	ts := httptest.NewServer(router)
	defer ts.Close()

	// create
	resp := postJSON(t, ts, "/api/changesets", map[string]interface{}{
		"original_request": "add billing",
		"session_id":       "s1",
		"domains_involved": []string{"backend", "frontend"},
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var cs map[string]interface{}
	decodeJSON(t, resp, &cs)
	id := cs["changeset_id"].(string)
	if id == "" {
		t.Fatal("expected changeset id")
	}

	// missing request body field
	resp = postJSON(t, ts, "/api/changesets", map[string]string{})
	if resp.StatusCode != 400 {
		t.Errorf("expected 400 without original_request, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// advance
	resp = postJSON(t, ts, "/api/changesets/"+id+"/advance", map[string]string{"phase": "foundation"})
	if resp.StatusCode != 200 {
		t.Fatalf("advance: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// regression rejected
	resp = postJSON(t, ts, "/api/changesets/"+id+"/advance", map[string]string{"phase": "design"})
	if resp.StatusCode != 422 {
		t.Errorf("expected 422 for regression, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// handoff
	resp = postJSON(t, ts, "/api/changesets/"+id+"/handoffs", map[string]interface{}{
		"source_domain": "backend",
		"target_domain": "frontend",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("handoff: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// bad chain position
	resp = postJSON(t, ts, "/api/changesets/"+id+"/handoffs", map[string]interface{}{
		"source_domain":  "frontend",
		"target_domain":  "backend",
		"chain_position": 7,
	})
	if resp.StatusCode != 422 {
		t.Errorf("expected 422 for chain gap, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// decision
	resp = postJSON(t, ts, "/api/changesets/"+id+"/decisions", map[string]string{
		"domain": "backend", "decision": "use Postgres",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("decision: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// timeline includes creation, handoff, decision
	resp = getJSON(t, ts, "/api/changesets/"+id+"/timeline")
	var entries []map[string]interface{}
	decodeJSON(t, resp, &entries)
	if len(entries) != 3 {
		t.Errorf("expected 3 timeline entries, got %d", len(entries))
	}

	// complete, then mutation rejected
	resp = postJSON(t, ts, "/api/changesets/"+id+"/complete", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("complete: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = postJSON(t, ts, "/api/changesets/"+id+"/decisions", map[string]string{"decision": "late"})
	if resp.StatusCode != 422 {
		t.Errorf("expected 422 after completion, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// delete
	resp = deleteReq(t, ts, "/api/changesets/"+id)
	if resp.StatusCode != 200 {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = getJSON(t, ts, "/api/changesets/"+id)
	if resp.StatusCode != 404 {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestActivityViews(t *testing.T) {
	h, router := newTestHandler(t, auth.ModeLocal)
	ts := httptest.NewServer(router)
	defer ts.Close()

	h.registry.MarkAgentActive("api-engineer", time.Now())
	h.registry.MarkSkillInvoked("create-endpoint", time.Now())

	resp := getJSON(t, ts, "/api/agents/recent")
	var agents []map[string]interface{}
	decodeJSON(t, resp, &agents)
	if len(agents) != 1 {
		t.Fatalf("expected 1 recently active agent, got %d", len(agents))
	}

	resp = getJSON(t, ts, "/api/skills/recent")
	var skills []map[string]interface{}
	decodeJSON(t, resp, &skills)
	if len(skills) != 1 {
		t.Fatalf("expected 1 recently invoked skill, got %d", len(skills))
	}

	resp = getJSON(t, ts, "/api/agents/api-engineer/activity")
	if resp.StatusCode != 200 {
		t.Fatalf("activity: expected 200, got %d", resp.StatusCode)
	}
	var activity map[string]interface{}
	decodeJSON(t, resp, &activity)
	if activity["agent_id"] != "api-engineer" {
		t.Errorf("unexpected activity payload %v", activity)
	}

	resp = getJSON(t, ts, "/api/skills/create-endpoint/invocations")
	var inv map[string]interface{}
	decodeJSON(t, resp, &inv)
	if inv["invocations"].(float64) != 1 {
		t.Errorf("expected 1 invocation, got %v", inv["invocations"])
	}

	resp = getJSON(t, ts, "/api/agents/ghost/activity")
	if resp.StatusCode != 404 {
		t.Errorf("expected 404 for unknown agent activity, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHandoffViews(t *testing.T) {
	h, router := newTestHandler(t, auth.ModeLocal)
	ts := httptest.NewServer(router)
	defer ts.Close()

	cs, err := h.tracker.Create("wire checkout flow", "s1", "", []string{"backend", "frontend"})
	if err != nil {
		t.Fatalf("create changeset: %v", err)
	}
	if _, err := h.tracker.RecordHandoff(cs.ID, &changeset.Handoff{
		SourceDomain: "backend",
		TargetDomain: "frontend",
	}); err != nil {
		t.Fatalf("record handoff: %v", err)
	}

	resp := getJSON(t, ts, "/api/handoffs")
	var handoffs []map[string]interface{}
	decodeJSON(t, resp, &handoffs)
	if len(handoffs) != 1 {
		t.Fatalf("expected 1 handoff, got %d", len(handoffs))
	}
	id := handoffs[0]["id"].(string)

	resp = getJSON(t, ts, "/api/handoffs/"+id)
	if resp.StatusCode != 200 {
		t.Fatalf("get handoff: expected 200, got %d", resp.StatusCode)
	}
	var hf map[string]interface{}
	decodeJSON(t, resp, &hf)
	if hf["target_domain"] != "frontend" {
		t.Errorf("unexpected handoff payload %v", hf)
	}

	resp = getJSON(t, ts, "/api/handoffs/missing")
	if resp.StatusCode != 404 {
		t.Errorf("expected 404 for unknown handoff, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRescanEndpoint(t *testing.T) {
	_, router := newTestHandler(t, auth.ModeLocal)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/rescan", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("rescan: expected 200, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	if body["status"] != "rescanned" {
		t.Errorf("unexpected rescan body %v", body)
	}
}

func TestRemoteModeGuardsRoutes(t *testing.T) {
	h, router := newTestHandler(t, auth.ModeRemote)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/agents")
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest("GET", ts.URL+"/api/agents", nil)
	req.Header.Set("Authorization", "Bearer "+h.gate.Token())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized get: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("expected 200 with token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// health stays open for probes
	resp = getJSON(t, ts, "/api/health")
	if resp.StatusCode != 200 {
		t.Errorf("expected health open, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// the token handout is a local-mode helper; a remote server refuses
	// even an authenticated loopback caller
	req, _ = http.NewRequest("GET", ts.URL+"/api/auth/token", nil)
	req.Header.Set("Authorization", "Bearer "+h.gate.Token())
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("token request: %v", err)
	}
	if resp.StatusCode != 403 {
		t.Errorf("expected 403 for token handout in remote mode, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthTokenLocalOnly(t *testing.T) {
	h, router := newTestHandler(t, auth.ModeLocal)
	ts := httptest.NewServer(router)
	defer ts.Close()

	// httptest connects over loopback, so the handout succeeds
	resp := getJSON(t, ts, "/api/auth/token")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 from loopback, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["token"] != h.gate.Token() {
		t.Error("token endpoint should return the shared secret")
	}

	// a forged off-box remote address is denied
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/auth/token", nil)
	req.RemoteAddr = "203.0.113.5:4242"
	router.ServeHTTP(rec, req)
	if rec.Code != 403 {
		t.Errorf("expected 403 off-box, got %d", rec.Code)
	}
}
