package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/botjam/stage/config"
	"github.com/botjam/stage/internal/hub"
	"github.com/botjam/stage/internal/ratelimit"
	store "github.com/botjam/stage/internal/repository"
	"github.com/botjam/stage/internal/service"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		KeepAliveInterval: 15 * time.Second,
		RateWindow:        time.Minute,
		EventRateLimit:    240,
		CommentRateLimit:  8,
		LikeRateLimit:     30,
	}
	liveHub := hub.New()
	svc := service.New(db, liveHub, cfg)
	return NewHandler(svc, liveHub, ratelimit.New(), cfg)
}

func doJSON(t *testing.T, h func(echo.Context) error, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return body
}

func registerTestAgent(t *testing.T, h *Handler) string {
	t.Helper()
	rec := doJSON(t, h.RegisterAgent, http.MethodPost, "/v1/agent/register", `{"agentName":"Demo"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["token"].(string)
	if token == "" {
		t.Fatal("no token in register response")
	}
	return token
}

func TestRegisterAgentHandler(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h.RegisterAgent, http.MethodPost, "/v1/agent/register", `{"agentName":"Demo"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["token"], "btj_")
	assert.Equal(t, "Demo", body["agentName"])
}

func TestRegisterAgentHandlerValidation(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h.RegisterAgent, http.MethodPost, "/v1/agent/register", `{"agentName":"  "}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartRunRequiresAuth(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h.StartRun, http.MethodPost, "/v1/agent/start", `{"agentName":"Demo"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAgentRunLifecycle(t *testing.T) {
	h := newTestHandler(t)
	token := registerTestAgent(t, h)

	// Start
	rec := doJSON(t, h.StartRun, http.MethodPost, "/v1/agent/start", `{"agentName":"Demo"}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	started := decodeBody(t, rec)
	run := started["run"].(map[string]interface{})
	runID := int64(run["id"].(float64))
	assert.Equal(t, "LIVE", run["status"])
	assert.NotNil(t, started["dailyChallenge"])

	// A second start conflicts and carries the live run.
	rec = doJSON(t, h.StartRun, http.MethodPost, "/v1/agent/start", `{"agentName":"Other"}`, token)
	assert.Equal(t, http.StatusConflict, rec.Code)
	conflict := decodeBody(t, rec)
	assert.NotNil(t, conflict["liveRun"])

	// Event
	eventBody := fmt.Sprintf(`{"runId":%d,"atMs":1000,"type":"patch","patch":"@@ -0,0 +1,1 @@\n+hello"}`, runID)
	rec = doJSON(t, h.SubmitEvent, http.MethodPost, "/v1/agent/event", eventBody, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Finish
	finishBody := fmt.Sprintf(`{"runId":%d,"finalSummary":"done"}`, runID)
	rec = doJSON(t, h.FinishRun, http.MethodPost, "/v1/agent/finish", finishBody, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	finished := decodeBody(t, rec)["run"].(map[string]interface{})
	assert.Equal(t, "FINISHED", finished["status"])

	// Late event is a conflict.
	rec = doJSON(t, h.SubmitEvent, http.MethodPost, "/v1/agent/event", eventBody, token)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFailRunHandler(t *testing.T) {
	h := newTestHandler(t)
	token := registerTestAgent(t, h)

	rec := doJSON(t, h.StartRun, http.MethodPost, "/v1/agent/start", `{"agentName":"Demo"}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	run := decodeBody(t, rec)["run"].(map[string]interface{})
	runID := int64(run["id"].(float64))

	body := fmt.Sprintf(`{"runId":%d,"reason":"sandbox crashed"}`, runID)
	rec = doJSON(t, h.FailRun, http.MethodPost, "/v1/agent/fail", body, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	failed := decodeBody(t, rec)
	assert.Equal(t, "FAILED", failed["run"].(map[string]interface{})["status"])
	assert.Equal(t, "error", failed["event"].(map[string]interface{})["type"])
}

func TestSubmitEventValidation(t *testing.T) {
	h := newTestHandler(t)
	token := registerTestAgent(t, h)

	rec := doJSON(t, h.StartRun, http.MethodPost, "/v1/agent/start", `{"agentName":"Demo"}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	run := decodeBody(t, rec)["run"].(map[string]interface{})
	runID := int64(run["id"].(float64))

	body := fmt.Sprintf(`{"runId":%d,"atMs":0,"type":"dance"}`, runID)
	rec = doJSON(t, h.SubmitEvent, http.MethodPost, "/v1/agent/event", body, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitEventRateLimited(t *testing.T) {
	h := newTestHandler(t)
	h.cfg.EventRateLimit = 2
	token := registerTestAgent(t, h)

	rec := doJSON(t, h.StartRun, http.MethodPost, "/v1/agent/start", `{"agentName":"Demo"}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	run := decodeBody(t, rec)["run"].(map[string]interface{})
	runID := int64(run["id"].(float64))

	body := fmt.Sprintf(`{"runId":%d,"atMs":0,"type":"status","text":"hi"}`, runID)
	for i := 0; i < 2; i++ {
		rec = doJSON(t, h.SubmitEvent, http.MethodPost, "/v1/agent/event", body, token)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec = doJSON(t, h.SubmitEvent, http.MethodPost, "/v1/agent/event", body, token)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
