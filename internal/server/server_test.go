package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"questlog/internal/config"
	"questlog/internal/db"
	"questlog/internal/domain"
	"questlog/internal/engine"
	"questlog/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("ws-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	ctx := context.Background()
	if _, err := e.InitWorkspace(ctx, "ws-1", "Mentorship", "", "admin-1"); err != nil {
		t.Fatalf("init workspace: %v", err)
	}
	if _, err := e.AddMember(ctx, "ws-1", "mentor-1", "mentor", "", "admin-1"); err != nil {
		t.Fatalf("add mentor: %v", err)
	}
	if _, err := e.AddMember(ctx, "ws-1", "user-1", "member", "backend", "admin-1"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
			EnableDevLogin:         true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asUser(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v: %s", err, string(data))
	}
	return envelope.Error.Code
}

func dailyBody() map[string]any {
	return map[string]any{
		"wake_up_time": "07:00",
		"morning_mood": 4,
		"goals":        []string{"review PRs", "study generics", "pair with mentor"},
		"expected_activities": []map[string]any{
			{"category": "study", "minutes": 120},
		},
	}
}

func TestHealthOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/workspaces", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("expected code unauthorized, got %s", code)
	}
}

func TestDevLoginToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "user-1",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("expected token, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/workspaces/ws-1", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get workspace with token status %d: %s", res.StatusCode, string(data))
	}
}

func TestDailySubmitAndDuplicate(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/workspaces/ws-1/reports/daily", dailyBody(), asUser("user-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit daily status %d: %s", res.StatusCode, string(data))
	}
	var rep domain.DailyReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(rep.Goals) != 3 {
		t.Fatalf("expected 3 goals, got %d", len(rep.Goals))
	}
	for _, g := range rep.Goals {
		if g.ID == "" {
			t.Fatalf("goal missing id: %+v", g)
		}
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/workspaces/ws-1/reports/daily", dailyBody(), asUser("user-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "already_submitted" {
		t.Fatalf("expected code already_submitted, got %s", code)
	}
}

func TestEndOfDayFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/workspaces/ws-1/reports/daily/complete", map[string]any{
		"evening_mood": 4,
	}, asUser("user-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 without morning report, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "dependency_missing" {
		t.Fatalf("expected code dependency_missing, got %s", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/workspaces/ws-1/reports/daily", dailyBody(), asUser("user-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit daily status %d: %s", res.StatusCode, string(data))
	}
	var rep domain.DailyReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}

	completions := make([]map[string]any, 0, len(rep.Goals))
	for i, g := range rep.Goals {
		completions = append(completions, map[string]any{
			"goal_id":   g.ID,
			"completed": i < 2,
		})
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/workspaces/ws-1/reports/daily/complete", map[string]any{
		"evening_mood": 5,
		"completions":  completions,
		"insights":     "pairing unblocked the migration",
	}, asUser("user-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete daily status %d: %s", res.StatusCode, string(data))
	}
	var done domain.DailyReport
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("unmarshal completed report: %v", err)
	}
	if done.EveningMood == nil || *done.EveningMood != 5 {
		t.Fatalf("expected evening mood 5, got %+v", done.EveningMood)
	}
}

func TestWeeklyEligibilityEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/workspaces/ws-1/reports/weekly/eligibility", nil, asUser("user-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("eligibility status %d: %s", res.StatusCode, string(data))
	}
	var decision EligibilityResponse
	if err := json.Unmarshal(data, &decision); err != nil {
		t.Fatalf("unmarshal decision: %v", err)
	}
	if !decision.Allowed && decision.Reason != "outside-window" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
	if !decision.Allowed && decision.NextEligible == "" {
		t.Fatalf("blocked decision missing next_eligible: %+v", decision)
	}
}

func TestQuestLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/workspaces/ws-1/tasks", map[string]any{
		"title":    "Write onboarding notes",
		"category": "onboarding",
		"reward":   10,
	}, asUser("mentor-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var task domain.QuestTask
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/workspaces/ws-1/tasks/"+task.ID+"/assign", map[string]any{
		"user_id": "user-1",
	}, asUser("mentor-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("assign status %d: %s", res.StatusCode, string(data))
	}

	questURL := srv.URL + "/v0/workspaces/ws-1/users/user-1/quests/" + task.ID
	res, data = doJSON(t, client, http.MethodPatch, questURL, map[string]any{"status": "in-progress"}, asUser("user-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start quest status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPatch, questURL, map[string]any{"status": "completed"}, asUser("user-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete quest status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, questURL, map[string]any{"status": "todo"}, asUser("user-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 reopening own quest, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "illegal_transition" {
		t.Fatalf("expected code illegal_transition, got %s", code)
	}

	res, data = doJSON(t, client, http.MethodPatch, questURL, map[string]any{"status": "todo"}, asUser("mentor-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("mentor reopen status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, questURL+"/comments", map[string]any{
		"text": "restarting after review feedback",
	}, asUser("mentor-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("comment status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/workspaces/ws-1/users/user-1/quests", nil, asUser("user-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list quests status %d: %s", res.StatusCode, string(data))
	}
	var quests []domain.TaskAssignment
	if err := json.Unmarshal(data, &quests); err != nil {
		t.Fatalf("unmarshal quests: %v", err)
	}
	if len(quests) != 1 || quests[0].Status != "todo" {
		t.Fatalf("unexpected quest list: %+v", quests)
	}
	if len(quests[0].Comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(quests[0].Comments))
	}
}

func TestMemberCannotCreateTask(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/workspaces/ws-1/tasks", map[string]any{
		"title": "Sneaky task",
	}, asUser("user-1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("expected code forbidden, got %s", code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/workspaces/ws-1/reports/daily", dailyBody(), asUser("user-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit daily status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/workspaces/ws-1/events?type=report.daily.submitted", nil, asUser("admin-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var events []EventResponse
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) != 1 || events[0].ActorID != "user-1" {
		t.Fatalf("unexpected events: %+v", events)
	}
}
