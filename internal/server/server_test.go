package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pserrors "github.com/systmms/pgpsecret/internal/errors"
	"github.com/systmms/pgpsecret/internal/keytool"
	"github.com/systmms/pgpsecret/internal/keytool/keytooltest"
	"github.com/systmms/pgpsecret/internal/lifecycle"
	"github.com/systmms/pgpsecret/internal/secretstores"
	"github.com/systmms/pgpsecret/internal/server"
)

type stubHandler struct {
	result lifecycle.Result
	err    error
	got    lifecycle.Event
}

func (s *stubHandler) Handle(_ context.Context, event lifecycle.Event) (lifecycle.Result, error) {
	s.got = event
	return s.result, s.err
}

const createBody = `{
	"RequestType": "Create",
	"RequestId": "req-1",
	"ResourceProperties": {
		"Identity": "Test Bot",
		"Email": "bot@example.com",
		"Expiry": "1y",
		"KeySizeBits": "1024",
		"SecretName": "test-key",
		"Version": "1"
	}
}`

func post(t *testing.T, h http.Handler, body string) (*http.Response, server.Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body)))
	resp := rec.Result()

	var decoded server.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestEvents_StatusMapping(t *testing.T) {
	t.Parallel()

	result := lifecycle.Result{ID: "loc#1", SecretLocation: "loc", PublicKey: "pub"}
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantResult bool
		retryable  bool
	}{
		{name: "success", wantStatus: http.StatusOK, wantResult: true},
		{
			name:       "retryable cleanup warning keeps result",
			err:        pserrors.NewCleanupWarning("/legacy", errors.New("ThrottlingException")),
			wantStatus: http.StatusServiceUnavailable,
			wantResult: true,
			retryable:  true,
		},
		{
			name:       "cleanup warning keeps result",
			err:        pserrors.NewCleanupWarning("/legacy", errors.New("AccessDeniedException")),
			wantStatus: http.StatusInternalServerError,
			wantResult: true,
		},
		{name: "validation", err: &pserrors.ValidationError{Field: "Email", Message: "is required"}, wantStatus: http.StatusBadRequest},
		{name: "throttled store", err: &pserrors.StoreError{Op: "create", Err: errors.New("request timeout")}, wantStatus: http.StatusServiceUnavailable, retryable: true},
		{name: "generation", err: &pserrors.GenerationError{Op: "generate", Err: errors.New("exit status 2")}, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubHandler{result: result, err: tt.err}
			h := server.New(server.DefaultConfig(), stub, nil).Handler()

			resp, body := post(t, h, createBody)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, tt.retryable, body.Retryable)
			if tt.wantResult {
				assert.Equal(t, result, body.Result)
				if tt.err != nil {
					assert.Contains(t, body.Warning, "/legacy")
				}
			} else {
				assert.Empty(t, body.ID)
				assert.NotEmpty(t, body.Error)
			}
			assert.Equal(t, lifecycle.RequestCreate, stub.got.RequestType)
			assert.Equal(t, lifecycle.BitLength(1024), stub.got.ResourceProperties.KeySizeBits)
		})
	}
}

func TestEvents_RejectsMalformedBody(t *testing.T) {
	t.Parallel()

	stub := &stubHandler{}
	h := server.New(server.DefaultConfig(), stub, nil).Handler()

	resp, body := post(t, h, `{"RequestType": "Rotate"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body.Error, "RequestType")
	assert.Empty(t, stub.got.RequestType, "handler not called")
}

func TestEvents_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	h := server.New(server.DefaultConfig(), &stubHandler{}, nil).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	h := server.New(server.DefaultConfig(), &stubHandler{}, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	// Generate at least one sample so the vector shows up.
	_, _ = post(t, h, `{"RequestType":"Delete","PhysicalResourceId":"x"}`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_EndToEnd(t *testing.T) {
	t.Parallel()

	ctrl := lifecycle.New(secretstores.NewMemoryStore(),
		lifecycle.WithKeyTool(keytool.New(keytool.WithExecutor(keytooltest.New()))),
		lifecycle.WithTempDir(t.TempDir()),
	)
	srv := server.New(server.Config{Addr: "127.0.0.1:0"}, ctrl, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	require.NotEmpty(t, srv.Addr())

	resp, err := http.Post("http://"+srv.Addr()+"/events", "application/json", strings.NewReader(createBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var body server.Response
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "memory://test-key#1", body.ID)
	assert.Contains(t, body.PublicKey, "BEGIN PGP PUBLIC KEY BLOCK")
	assert.NotContains(t, string(raw), "Passphrase")
}

func TestServer_StopBeforeStart(t *testing.T) {
	t.Parallel()

	srv := server.New(server.DefaultConfig(), &stubHandler{}, nil)
	assert.NoError(t, srv.Stop(context.Background()))
	assert.Empty(t, srv.Addr())
}
