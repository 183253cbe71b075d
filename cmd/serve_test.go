package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ledger-intake/internal/document"
	"github.com/sells-group/ledger-intake/internal/model"
)

type stubProcessor struct {
	result model.ProcessingResult
	gotID  string
	actor  model.Actor
}

func (s *stubProcessor) ProcessDocument(ctx context.Context, id string) model.ProcessingResult {
	s.gotID = id
	s.actor, _ = document.ActorFrom(ctx)
	return s.result
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestBuildRouter_Health(t *testing.T) {
	h := buildRouter(nil, stubPinger{}, []string{"*"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_HealthDatabaseDown(t *testing.T) {
	h := buildRouter(nil, stubPinger{err: errors.New("connection refused")}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestBuildRouter_ProcessSuccess(t *testing.T) {
	proc := &stubProcessor{result: model.ProcessingResult{
		Success:          true,
		ValidationStatus: model.ValidationPending,
		RecordsCreated:   true,
	}}
	h := buildRouter(proc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/documents/doc-42/process", nil)
	req.Header.Set("X-User-ID", "u-7")
	req.Header.Set("X-User-Role", "ADMIN")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "doc-42", proc.gotID)
	assert.Equal(t, model.Actor{UserID: "u-7", Role: "ADMIN"}, proc.actor)

	var res model.ProcessingResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.True(t, res.RecordsCreated)
}

func TestBuildRouter_ProcessFailureStatus(t *testing.T) {
	tests := []struct {
		name   string
		result model.ProcessingResult
		want   int
	}{
		{"not found", model.NotFoundResult("Document not found"), http.StatusNotFound},
		{"rate limited", model.FailedResult("Rate limit exceeded: 20 requests per minute", http.StatusTooManyRequests), http.StatusTooManyRequests},
		{"no status", model.ProcessingResult{Error: "boom"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := buildRouter(&stubProcessor{result: tt.result}, nil, nil)

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/process", nil))

			assert.Equal(t, tt.want, rr.Code)
			var res model.ProcessingResult
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
			assert.Equal(t, tt.result.Error, res.Error)
		})
	}
}

func TestBuildRouter_NoActorHeader(t *testing.T) {
	proc := &stubProcessor{result: model.ProcessingResult{Success: true}}
	h := buildRouter(proc, nil, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/process", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, proc.actor.UserID)
}

func TestBuildRouter_NilProcessor(t *testing.T) {
	h := buildRouter(nil, nil, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/process", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestBuildRouter_MethodNotAllowed(t *testing.T) {
	h := buildRouter(&stubProcessor{}, nil, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/process", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
