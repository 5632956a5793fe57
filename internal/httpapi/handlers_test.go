package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"automation-platform/internal/actions"
	"automation-platform/internal/auth"
	"automation-platform/internal/config"
	"automation-platform/internal/events"
	"automation-platform/internal/executions"
	"automation-platform/internal/rules"
	"automation-platform/internal/workflows"

	"github.com/gin-gonic/gin"
)

type fixture struct {
	router    *gin.Engine
	token     string
	ruleRepo  *rules.MemoryRepo
	records   *executions.MemoryRepo
	workflows *workflows.MemoryRepo
	bus       *events.MemoryBus
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	token, err := manager.Issue(time.Now(), "user-1", "operator")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	ruleRepo := rules.NewMemoryRepo()
	records := executions.NewMemoryRepo()
	wfRepo := workflows.NewMemoryRepo()
	bus := events.NewMemoryBus()
	svc := workflows.NewService(wfRepo, bus, "events", slog.Default())

	h := Handlers{
		Auth:      manager,
		Bus:       bus,
		Stream:    "events",
		Rules:     ruleRepo,
		Records:   records,
		Workflows: svc,
	}

	r := gin.New()
	r.POST("/auth/login", h.Login)
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(manager))
	{
		v1.POST("/events", h.PublishEvent)
		v1.GET("/rules", h.ListRules)
		v1.GET("/rules/:id", h.GetRule)
		v1.GET("/rules/:id/executions", h.ListExecutions)
		v1.GET("/workflows/:id", h.GetWorkflow)
		v1.POST("/workitems/:id/complete", h.CompleteWorkItem)
	}

	return fixture{router: r, token: token, ruleRepo: ruleRepo, records: records, workflows: wfRepo, bus: bus}
}

func (f fixture) do(t *testing.T, method, path, body string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodGet, "/v1/rules", "", false); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLoginIssuesToken(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/auth/login", `{"user_id":"u1","role":"operator"}`, false)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp["access_token"] == "" {
		t.Fatalf("expected access_token, got %s", w.Body.String())
	}
}

func TestPublishEvent(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/v1/events",
		`{"type":"RECORD_UPDATED","payload":{"sourceId":"rec-1"}}`, true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	msgs := f.bus.Messages("events")
	if len(msgs) != 1 || msgs[0].Type != events.TypeRecordUpdated {
		t.Fatalf("expected published event, got %v", msgs)
	}

	if w := f.do(t, http.MethodPost, "/v1/events", `{"payload":{}}`, true); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing type, got %d", w.Code)
	}
}

func TestPublishEventRejectsUnknownType(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/v1/events", `{"type":"NOT_A_THING","payload":{}}`, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.bus.Messages("events")) != 0 {
		t.Fatalf("rejected event must not reach the stream")
	}
}

func TestRuleEndpoints(t *testing.T) {
	f := newFixture(t)
	rule, err := f.ruleRepo.Upsert(context.Background(), rules.Rule{
		Name: "r1", IsActive: true, EventType: "TASK_COMPLETED",
		Actions: []actions.Spec{
			{Kind: actions.KindEmail, Email: &actions.EmailSpec{To: "a@b.c", Subject: "s"}},
		},
	})
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	if _, err := f.records.Append(context.Background(), executions.Record{
		RuleID: rule.ID, Status: executions.StatusSuccess, ConditionsMet: true,
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	w := f.do(t, http.MethodGet, "/v1/rules", "", true)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), rule.ID) {
		t.Fatalf("list rules: %d %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/v1/rules/"+rule.ID, "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("get rule: %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/rules/ghost", "", true); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown rule, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/v1/rules/"+rule.ID+"/executions?limit=10&offset=0", "", true)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "SUCCESS") {
		t.Fatalf("list executions: %d %s", w.Code, w.Body.String())
	}
}

func TestWorkflowEndpoints(t *testing.T) {
	f := newFixture(t)
	f.workflows.PutDefinition(workflows.Definition{
		ID: "def-1", Name: "flow",
		Stages: []workflows.Stage{
			{ID: "s1", Order: 1, Name: "one", Tasks: []workflows.StageTask{{ID: "t1", Title: "do it"}}},
		},
	})
	svc := workflows.NewService(f.workflows, f.bus, "events", slog.Default())
	instID, err := svc.StartWorkflow(context.Background(), "def-1", "user-1", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	w := f.do(t, http.MethodGet, "/v1/workflows/"+instID, "", true)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "IN_PROGRESS") {
		t.Fatalf("get workflow: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodGet, "/v1/workflows/ghost", "", true); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown workflow, got %d", w.Code)
	}

	items, _ := f.workflows.ListWorkItems(context.Background(), instID)
	if len(items) != 1 {
		t.Fatalf("expected 1 work item, got %d", len(items))
	}
	w = f.do(t, http.MethodPost, "/v1/workitems/"+items[0].ID+"/complete", "", true)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "COMPLETED") {
		t.Fatalf("complete item: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodPost, "/v1/workitems/"+items[0].ID+"/complete", "", true); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for double complete, got %d", w.Code)
	}
}
