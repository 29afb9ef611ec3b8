package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loghook/loghook/checkpoint"
	"github.com/loghook/loghook/internal/config"
	"github.com/loghook/loghook/pipeline"
	"github.com/loghook/loghook/source"
)

type stubRunner struct {
	result *pipeline.RunResult
	err    error
	calls  int
}

func (s *stubRunner) Run(ctx context.Context) (*pipeline.RunResult, error) {
	s.calls++
	return s.result, s.err
}

func doRequest(t *testing.T, handler http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTriggerBothMethods(t *testing.T) {
	runner := &stubRunner{result: &pipeline.RunResult{EventsDelivered: 3, Cursor: "log_3"}}
	router := New(runner).Router()

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := doRequest(t, router, method, "/run")
		require.Equal(t, http.StatusOK, rec.Code, method)

		var body struct {
			Status string             `json:"status"`
			Run    pipeline.RunResult `json:"run"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, 3, body.Run.EventsDelivered)
	}
	assert.Equal(t, 2, runner.calls)
}

func TestTriggerMissingSettings(t *testing.T) {
	runner := &stubRunner{err: &config.MissingSettingsError{Missing: []string{"client_id", "webhook.url"}}}
	rec := doRequest(t, New(runner).Router(), http.MethodPost, "/run")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing_settings", body["error"])
	assert.Contains(t, body["message"], "client_id")
	assert.Contains(t, body["message"], "webhook.url")
}

func TestTriggerCheckpointStoreErrorIsDistinct(t *testing.T) {
	runner := &stubRunner{err: &checkpoint.StoreError{Op: "save", Err: errors.New("redis unreachable")}}
	rec := doRequest(t, New(runner).Router(), http.MethodPost, "/run")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "checkpoint_store", body["error"])
}

func TestTriggerPipelineFailure(t *testing.T) {
	runner := &stubRunner{err: &source.FetchError{StatusCode: 503, Message: "unavailable"}}
	rec := doRequest(t, New(runner).Router(), http.MethodGet, "/run")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "source_fetch", body["error"])
}

func TestTriggerWrappedStoreError(t *testing.T) {
	wrapped := errors.Wrap(&checkpoint.StoreError{Op: "save", Err: errors.New("down")}, "rollback after run failure")
	rec := doRequest(t, New(&stubRunner{err: wrapped}).Router(), http.MethodPost, "/run")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "checkpoint_store", body["error"])
}

func TestHealthz(t *testing.T) {
	rec := doRequest(t, New(&stubRunner{}).Router(), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsExposed(t *testing.T) {
	rec := doRequest(t, New(&stubRunner{}).Router(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
