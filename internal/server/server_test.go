package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"svcledger/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Data.DataDir = t.TempDir()
	cfg.Directory.Token = ""

	s, err := NewServer(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestServer_Status(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "services.xlsx", body["fileName"])
	require.Equal(t, false, body["initialized"])
}

func TestServer_DirectoryDisabledWithoutToken(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/directory/teams", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_NoRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "not found")
}

func TestServer_RejectsBadConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Data.DataDir = t.TempDir()
	cfg.Data.Variant = "modern"
	_, err := NewServer(cfg, nil)
	require.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Data.DataDir = t.TempDir()
	cfg.Data.FileName = "../escape.xlsx"
	_, err = NewServer(cfg, nil)
	require.Error(t, err)
}

func TestServer_RetryPendingNoop(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.RetryPending(context.Background()))
}
