package v1

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func doRunRequest(t *testing.T, h func(echo.Context) error, method, path, body string, runID int64) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues(strconv.FormatInt(runID, 10))
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func finishedRun(t *testing.T, h *Handler) int64 {
	t.Helper()
	token := registerTestAgent(t, h)
	rec := doJSON(t, h.StartRun, http.MethodPost, "/v1/agent/start", `{"agentName":"Demo"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("start failed: %d %s", rec.Code, rec.Body.String())
	}
	run := decodeBody(t, rec)["run"].(map[string]interface{})
	runID := int64(run["id"].(float64))

	patches := []string{
		`@@ -0,0 +1,1 @@\n+a`,
		`@@ -1,1 +1,2 @@\n a\n+b`,
	}
	for i, patch := range patches {
		body := fmt.Sprintf(`{"runId":%d,"atMs":%d,"type":"patch","patch":"%s"}`, runID, i*1000, patch)
		rec = doJSON(t, h.SubmitEvent, http.MethodPost, "/v1/agent/event", body, token)
		if rec.Code != http.StatusOK {
			t.Fatalf("event failed: %d %s", rec.Code, rec.Body.String())
		}
	}

	rec = doJSON(t, h.FinishRun, http.MethodPost, "/v1/agent/finish", fmt.Sprintf(`{"runId":%d}`, runID), token)
	if rec.Code != http.StatusOK {
		t.Fatalf("finish failed: %d %s", rec.Code, rec.Body.String())
	}
	return runID
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(t, h.Health, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestGetToday(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(t, h.GetToday, http.MethodGet, "/v1/today", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	ch := decodeBody(t, rec)["dailyChallenge"].(map[string]interface{})
	assert.NotEmpty(t, ch["songTitle"])
	assert.NotEmpty(t, ch["prompt"])
}

func TestGetLiveIdle(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(t, h.GetLive, http.MethodGet, "/v1/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Nil(t, body["liveRun"])
}

func TestListRunsEmpty(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(t, h.ListRuns, http.MethodGet, "/v1/runs", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["runs"], 0)
	assert.Equal(t, float64(0), body["nextCursor"])
}

func TestGetRunNotFound(t *testing.T) {
	h := newTestHandler(t)
	rec := doRunRequest(t, h.GetRun, http.MethodGet, "/v1/runs/42", "", 42)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunInvalidID(t *testing.T) {
	h := newTestHandler(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("abc")
	if err := h.GetRun(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunDetailAndEvents(t *testing.T) {
	h := newTestHandler(t)
	runID := finishedRun(t, h)

	rec := doRunRequest(t, h.GetRun, http.MethodGet, "/v1/runs/1", "", runID)
	assert.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody(t, rec)
	assert.Equal(t, "FINISHED", detail["status"])
	assert.NotNil(t, detail["counts"])

	rec = doRunRequest(t, h.GetRunEvents, http.MethodGet, "/v1/runs/1/events", "", runID)
	assert.Equal(t, http.StatusOK, rec.Code)
	events := decodeBody(t, rec)["events"].([]interface{})
	assert.Len(t, events, 2)
}

func TestReplayEndpoint(t *testing.T) {
	h := newTestHandler(t)
	runID := finishedRun(t, h)

	rec := doRunRequest(t, h.ReplayRun, http.MethodGet, "/v1/runs/1/replay?atMs=500", "", runID)
	assert.Equal(t, http.StatusOK, rec.Code)
	partial := decodeBody(t, rec)
	assert.Equal(t, "a", partial["code"])

	rec = doRunRequest(t, h.ReplayRun, http.MethodGet, "/v1/runs/1/replay", "", runID)
	assert.Equal(t, http.StatusOK, rec.Code)
	full := decodeBody(t, rec)
	assert.Equal(t, "a\nb", full["code"])
	assert.Len(t, full["warnings"], 0)
}

func TestCommentsEndpoint(t *testing.T) {
	h := newTestHandler(t)
	runID := finishedRun(t, h)

	rec := doRunRequest(t, h.PostRunComment, http.MethodPost, "/v1/runs/1/comments", `{"name":"viewer","text":"nice"}`, runID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRunRequest(t, h.PostRunComment, http.MethodPost, "/v1/runs/1/comments", `{"name":"","text":"nice"}`, runID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRunRequest(t, h.GetRunComments, http.MethodGet, "/v1/runs/1/comments", "", runID)
	assert.Equal(t, http.StatusOK, rec.Code)
	comments := decodeBody(t, rec)["comments"].([]interface{})
	assert.Len(t, comments, 1)
}

func TestLikesEndpoint(t *testing.T) {
	h := newTestHandler(t)
	runID := finishedRun(t, h)

	rec := doRunRequest(t, h.PostRunLike, http.MethodPost, "/v1/runs/1/likes", `{"name":"viewer","source":"human"}`, runID)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["duplicate"])

	rec = doRunRequest(t, h.PostRunLike, http.MethodPost, "/v1/runs/1/likes", `{"name":"viewer","source":"human"}`, runID)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["duplicate"])

	rec = doRunRequest(t, h.GetRunLikes, http.MethodGet, "/v1/runs/1/likes", "", runID)
	assert.Equal(t, http.StatusOK, rec.Code)
	likes := decodeBody(t, rec)["likes"].([]interface{})
	assert.Len(t, likes, 1)
}
