package mgmt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/shinoa-bot/internal/health"
	"github.com/p-blackswan/shinoa-bot/internal/requestid"
	"github.com/p-blackswan/shinoa-bot/internal/session"
	"github.com/p-blackswan/shinoa-bot/internal/store"
)

type fakeAdmin struct {
	mu       sync.Mutex
	sessions map[string]session.SessionInfo
	actors   []string
	topN     []int
}

func newFakeAdmin() *fakeAdmin {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &fakeAdmin{sessions: map[string]session.SessionInfo{
		"U1": {UserID: "U1", Turns: 4, MessageCount: 2, CreatedAt: now, LastActiveAt: now},
	}}
}

func (f *fakeAdmin) Reset(_ context.Context, actor, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actors = append(f.actors, actor)
	_, ok := f.sessions[userID]
	delete(f.sessions, userID)
	return ok
}

func (f *fakeAdmin) Stats() session.UsageStats {
	return session.UsageStats{Sessions: len(f.sessions), Users: 1, Total: 2, Average: 2}
}

func (f *fakeAdmin) Leaderboard(n int) []session.UsageEntry {
	f.topN = append(f.topN, n)
	return []session.UsageEntry{{UserID: "U1", Count: 2}}
}

func (f *fakeAdmin) Sessions() []session.SessionInfo {
	out := make([]session.SessionInfo, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out
}

type fakeResponder struct {
	requestIDs []string
}

func (f *fakeResponder) Respond(ctx context.Context, userID, text string) string {
	f.requestIDs = append(f.requestIDs, requestid.FromContext(ctx))
	return "Hmph. " + userID + " said " + text
}

type fakeSweeper struct {
	runs int
}

func (f *fakeSweeper) SweepOnce(context.Context) int {
	f.runs++
	return 3
}

func (f *fakeSweeper) LastRun() (time.Time, int) {
	if f.runs == 0 {
		return time.Time{}, 0
	}
	return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), 3
}

type fakeAudit struct {
	err     error
	actions []string
	limits  []int
}

func (f *fakeAudit) RecentAudit(_ context.Context, action string, limit int) ([]store.AuditEntry, error) {
	f.actions = append(f.actions, action)
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	return []store.AuditEntry{{ID: 1, Actor: "mgmt:anonymous", Action: store.ActionReset, Target: "U1", Result: store.ResultOK}}, nil
}

type testDeps struct {
	admin     *fakeAdmin
	responder *fakeResponder
	sweeper   *fakeSweeper
	audit     *fakeAudit
	checker   *health.Checker
}

func newTestDeps() *testDeps {
	return &testDeps{
		admin:     newFakeAdmin(),
		responder: &fakeResponder{},
		sweeper:   &fakeSweeper{},
		audit:     &fakeAudit{},
		checker:   health.NewChecker(zerolog.Nop()),
	}
}

func (d *testDeps) deps() Deps {
	return Deps{
		Admin:     d.admin,
		Responder: d.responder,
		Sweeper:   d.sweeper,
		Audit:     d.audit,
		Checker:   d.checker,
		Info: Info{
			Persona:         "Shinoa",
			Status:          "help/@inxainee",
			Model:           "gemini-2.5-flash",
			Environment:     "test",
			MaxHistoryTurns: 20,
			RetentionWindow: 720 * time.Hour,
			SweepInterval:   time.Hour,
			AuditSchema:     "1",
		},
	}
}

func testServer(t *testing.T, auth AuthConfig, d *testDeps) *fiber.App {
	t.Helper()
	srv := NewServer(ServerConfig{
		ListenAddr: ":0",
		AuthConfig: auth,
		RateLimit:  RateLimitConfig{RPS: 100, Burst: 200},
	}, d.deps(), zerolog.Nop())
	return srv.App()
}

// testApp creates a Fiber app with all routes and fake services.
func testApp(t *testing.T, authMode, apiKey string) (*fiber.App, *testDeps) {
	t.Helper()
	d := newTestDeps()
	return testServer(t, AuthConfig{Mode: authMode, APIKey: apiKey}, d), d
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServer_Probes(t *testing.T) {
	app, d := testApp(t, "api-key", "secret")

	resp := doRequest(t, app, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, app, "GET", "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	d.checker.Register("store", func(context.Context) health.Status { return health.StatusDown })
	resp = doRequest(t, app, "GET", "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_RequestIDHeader(t *testing.T) {
	app, d := testApp(t, "none", "")

	resp := doRequest(t, app, "GET", "/api/v1/stats", "")
	assert.NotEmpty(t, resp.Header.Get(requestid.Header))

	req, _ := http.NewRequest("POST", "/api/v1/chat", strings.NewReader(`{"user_id":"U1","message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestid.Header, "req-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.Header.Get(requestid.Header))
	assert.Equal(t, []string{"req-123"}, d.responder.requestIDs)
}

func TestServer_Stats(t *testing.T) {
	app, _ := testApp(t, "none", "")

	resp := doRequest(t, app, "GET", "/api/v1/stats", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats session.UsageStats
	decode(t, resp, &stats)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 2, stats.Total)
}

func TestServer_Leaderboard(t *testing.T) {
	app, d := testApp(t, "none", "")

	resp := doRequest(t, app, "GET", "/api/v1/leaderboard?n=3", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var lb LeaderboardResponse
	decode(t, resp, &lb)
	assert.Equal(t, 3, lb.Limit)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, "U1", lb.Entries[0].UserID)
	assert.Equal(t, []int{3}, d.admin.topN)

	resp = doRequest(t, app, "GET", "/api/v1/leaderboard?n=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Sessions(t *testing.T) {
	app, _ := testApp(t, "none", "")

	resp := doRequest(t, app, "GET", "/api/v1/sessions", "")
	var list SessionListResponse
	decode(t, resp, &list)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, "U1", list.Sessions[0].UserID)
}

func TestServer_ResetSession(t *testing.T) {
	app, d := testApp(t, "none", "")

	resp := doRequest(t, app, "DELETE", "/api/v1/sessions/U1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var rr ResetResponse
	decode(t, resp, &rr)
	assert.True(t, rr.Reset)
	assert.Equal(t, []string{"mgmt:anonymous"}, d.admin.actors)

	resp = doRequest(t, app, "DELETE", "/api/v1/sessions/U1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Equal(t, "session_not_found", problem.Type)
}

func TestServer_Sweep(t *testing.T) {
	app, d := testApp(t, "none", "")

	resp := doRequest(t, app, "POST", "/api/v1/sweep", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var sr SweepResponse
	decode(t, resp, &sr)
	assert.Equal(t, 3, sr.Evicted)
	assert.Equal(t, 1, d.sweeper.runs)
}

func TestServer_Chat(t *testing.T) {
	app, d := testApp(t, "none", "")

	resp := doRequest(t, app, "POST", "/api/v1/chat", `{"user_id":"U1","message":"hello"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var cr ChatResponse
	decode(t, resp, &cr)
	assert.Equal(t, "Hmph. U1 said hello", cr.Reply)
	assert.NotEmpty(t, cr.RequestID)
	assert.Equal(t, []string{cr.RequestID}, d.responder.requestIDs)
}

func TestServer_Chat_Validation(t *testing.T) {
	app, d := testApp(t, "none", "")

	tests := []struct {
		body     string
		wantType string
	}{
		{`{"message":"hello"}`, "missing_user"},
		{`{"user_id":"U1","message":"   "}`, "missing_message"},
		{`not json`, "invalid_body"},
	}
	for _, tt := range tests {
		resp := doRequest(t, app, "POST", "/api/v1/chat", tt.body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, tt.body)
		var problem ProblemDetail
		decode(t, resp, &problem)
		assert.Equal(t, tt.wantType, problem.Type, tt.body)
	}
	assert.Empty(t, d.responder.requestIDs)
}

func TestServer_Audit(t *testing.T) {
	app, d := testApp(t, "none", "")

	resp := doRequest(t, app, "GET", "/api/v1/audit?action=session.reset&limit=9999", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var ar AuditResponse
	decode(t, resp, &ar)
	require.Len(t, ar.Entries, 1)
	assert.Equal(t, []string{"session.reset"}, d.audit.actions)
	assert.Equal(t, []int{maxAuditLimit}, d.audit.limits)

	d.audit.err = errors.New("disk on fire")
	resp = doRequest(t, app, "GET", "/api/v1/audit", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Equal(t, "internal_error", problem.Type)
	assert.NotContains(t, problem.Detail, "disk")
}

func TestServer_OptionalServicesUnavailable(t *testing.T) {
	d := newTestDeps()
	deps := d.deps()
	deps.Responder = nil
	deps.Sweeper = nil
	deps.Audit = nil
	app := NewServer(ServerConfig{AuthConfig: AuthConfig{Mode: "none"}}, deps, zerolog.Nop()).App()

	for _, r := range []struct{ method, path, body string }{
		{"POST", "/api/v1/chat", `{"user_id":"U1","message":"hi"}`},
		{"POST", "/api/v1/sweep", ""},
		{"GET", "/api/v1/audit", ""},
	} {
		resp := doRequest(t, app, r.method, r.path, r.body)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, r.path)
	}
}

func TestServer_Info(t *testing.T) {
	app, d := testApp(t, "none", "")

	resp := doRequest(t, app, "GET", "/api/v1/info", "")
	var info InfoResponse
	decode(t, resp, &info)
	assert.Equal(t, "Shinoa", info.Persona)
	assert.Equal(t, "help/@inxainee", info.Status)
	assert.Equal(t, "720h0m0s", info.RetentionWindow)
	assert.Equal(t, "none", info.AuthMode)
	assert.Equal(t, "1", info.AuditSchema)
	assert.Empty(t, info.LastSweep)
	assert.Empty(t, info.Checks, "checks have not run yet")

	d.sweeper.SweepOnce(context.Background())
	resp = doRequest(t, app, "GET", "/api/v1/info", "")
	decode(t, resp, &info)
	assert.Equal(t, "2026-01-02T00:00:00Z", info.LastSweep)
	assert.Equal(t, 3, info.LastEvicted)

	d.checker.Register("audit", func(context.Context) health.Status { return health.StatusDown })
	d.checker.RunAll(context.Background())
	resp = doRequest(t, app, "GET", "/api/v1/info", "")
	info = InfoResponse{}
	decode(t, resp, &info)
	assert.Equal(t, map[string]string{"audit": "down"}, info.Checks)
}

func TestServer_HealthDetail(t *testing.T) {
	app, d := testApp(t, "none", "")
	d.checker.Register("sessions", func(context.Context) health.Status { return health.StatusOK })
	d.checker.Register("audit", func(context.Context) health.Status { return health.StatusDown })

	resp := doRequest(t, app, "GET", "/api/v1/health", "")
	var hd HealthDetailResponse
	decode(t, resp, &hd)
	assert.Equal(t, "degraded", hd.Status)
	assert.Equal(t, "down", hd.Checks["audit"])
}

func TestServer_NotFoundRoute(t *testing.T) {
	app, _ := testApp(t, "none", "")

	resp := doRequest(t, app, "GET", "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Equal(t, "http_error", problem.Type)
}

func TestServer_RateLimit(t *testing.T) {
	d := newTestDeps()
	app := NewServer(ServerConfig{
		AuthConfig: AuthConfig{Mode: "none"},
		RateLimit:  RateLimitConfig{RPS: 1, Burst: 2},
	}, d.deps(), zerolog.Nop()).App()

	assert.Equal(t, http.StatusOK, doRequest(t, app, "GET", "/api/v1/stats", "").StatusCode)
	assert.Equal(t, http.StatusOK, doRequest(t, app, "GET", "/api/v1/stats", "").StatusCode)
	resp := doRequest(t, app, "GET", "/api/v1/stats", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Probes are never limited.
	assert.Equal(t, http.StatusOK, doRequest(t, app, "GET", "/healthz", "").StatusCode)
}
