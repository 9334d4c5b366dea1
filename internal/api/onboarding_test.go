package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"svcledger/internal/directory"
)

// newDirectoryServer 模拟目录服务；status 非 0 时所有请求返回该状态码
func newDirectoryServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/teams", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{
			"teams": []directory.Team{{ID: "T1", Name: "Platform"}},
			"more":  false,
		})
	})
	mux.HandleFunc("/services", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{
			"services": []directory.Service{{ID: "S1", Name: "checkout-api"}},
			"more":     false,
		})
	})
	mux.HandleFunc("/services/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/services/")
		if id != "S1" {
			w.WriteHeader(http.StatusNotFound)
			reply(w, map[string]any{"error": map[string]any{"message": "Not Found"}})
			return
		}
		reply(w, map[string]any{"service": directory.Service{ID: "S1", Name: "checkout-api"}})
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newDirectoryClient(srv *httptest.Server) *directory.Client {
	return directory.NewClient(directory.ClientOptions{
		BaseURL:    srv.URL,
		Token:      "test",
		HTTPClient: srv.Client(),
		MaxRetries: 0,
		Logger:     zap.NewNop(),
	})
}

func TestOnboarding_ApplyBatch(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), newDirectoryClient(newDirectoryServer(t, 0)))
	w, _ := env.do(t, http.MethodPost, "/api/records", map[string]any{
		"data": []any{
			record("", "Checkout", "", ""),
			record("", "Search", "", ""),
			record("", "Billing", "", ""),
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := map[string]any{
		"ids":         []string{"checkout-2", "billing-4"},
		"team":        map[string]any{"found": true, "directoryId": "T1"},
		"techService": map[string]any{"found": true, "directoryId": "S1"},
		"monitoring":  map[string]any{"wants": true},
		"confirmed":   true,
	}

	w, out := env.do(t, http.MethodPost, "/api/onboarding/preview", body)
	require.Equal(t, http.StatusOK, w.Code, "%v", out)
	require.NotEmpty(t, out["patch"])

	w, out = env.do(t, http.MethodPost, "/api/onboarding/apply", body)
	require.Equal(t, http.StatusOK, w.Code, "%v", out)
	require.Equal(t, float64(2), out["updatedRows"])

	_, out = env.do(t, http.MethodGet, "/api/records", nil)
	recs := dataRecords(t, out)
	require.Equal(t, "Platform", recs[0]["team_name"])
	require.Equal(t, "checkout-api", recs[0]["dynatrace_service_name"])
	require.Equal(t, "true", recs[0]["integrated"])
	require.Equal(t, "", recs[1]["team_name"])
	require.Equal(t, "Platform", recs[2]["team_name"])
}

func TestOnboarding_GuardFailure(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), newDirectoryClient(newDirectoryServer(t, 0)))
	w, out := env.do(t, http.MethodPost, "/api/onboarding/apply", map[string]any{
		"ids":  []string{"a"},
		"team": map[string]any{"found": false, "manualName": "  "},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "TEAM", out["step"])
}

func TestOnboarding_InitErrorsAreDistinct(t *testing.T) {
	body := map[string]any{
		"ids":         []string{"a"},
		"team":        map[string]any{"found": false, "manualName": "Payments"},
		"techService": map[string]any{"found": false, "manualName": "svc"},
		"monitoring":  map[string]any{"wants": false},
		"confirmed":   true,
	}
	seen := map[string]int{}
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable} {
		env := newTestEnv(t, t.TempDir(), newDirectoryClient(newDirectoryServer(t, status)))
		w, out := env.do(t, http.MethodPost, "/api/onboarding/preview", body)
		require.NotEqual(t, http.StatusOK, w.Code)
		msg, _ := out["error"].(string)
		require.NotEmpty(t, msg)
		seen[msg] = w.Code
	}
	require.Len(t, seen, 3)
}

func TestOnboarding_InitRunsBeforeGuards(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), newDirectoryClient(newDirectoryServer(t, http.StatusUnauthorized)))
	w, out := env.do(t, http.MethodPost, "/api/onboarding/preview", map[string]any{
		"ids":  []string{"a"},
		"team": map[string]any{"found": false, "manualName": "  "},
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, directory.UserMessage(directory.ErrUnauthorized), out["error"])
	require.Nil(t, out["step"])
}

func TestOnboarding_Start(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), newDirectoryClient(newDirectoryServer(t, 0)))
	w, out := env.do(t, http.MethodPost, "/api/onboarding/start", map[string]any{"singleRecord": true})
	require.Equal(t, http.StatusOK, w.Code, "%v", out)

	flow, ok := out["flow"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "TEAM", flow["step"])
	require.Equal(t, true, flow["singleRecord"])

	catalog, ok := out["catalog"].(map[string]any)
	require.True(t, ok)
	teams, _ := catalog["teams"].([]any)
	services, _ := catalog["services"].([]any)
	require.Len(t, teams, 1)
	require.Len(t, services, 1)
	require.Equal(t, "checkout-api", services[0].(map[string]any)["name"])

	failing := newTestEnv(t, t.TempDir(), newDirectoryClient(newDirectoryServer(t, http.StatusForbidden)))
	w, out = failing.do(t, http.MethodPost, "/api/onboarding/start", map[string]any{})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, directory.UserMessage(directory.ErrForbidden), out["error"])
}

func TestOnboarding_PreviewFallsBackToRecordName(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), newDirectoryClient(newDirectoryServer(t, 0)))
	w, _ := env.do(t, http.MethodPost, "/api/records", map[string]any{
		"data": []any{
			record("", "Checkout", "", "checkout-api"),
			record("", "Search", "", ""),
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := map[string]any{
		"ids":         []string{"checkout-2"},
		"team":        map[string]any{"found": true, "directoryId": "T1"},
		"techService": map[string]any{"found": true, "directoryId": "S-retired"},
		"monitoring":  map[string]any{"wants": false},
		"confirmed":   true,
	}
	w, out := env.do(t, http.MethodPost, "/api/onboarding/preview", body)
	require.Equal(t, http.StatusOK, w.Code, "%v", out)
	require.Contains(t, fmt.Sprint(out["patch"]), "S1")

	body["ids"] = []string{"search-3"}
	w, _ = env.do(t, http.MethodPost, "/api/onboarding/preview", body)
	require.NotEqual(t, http.StatusOK, w.Code)
}

func TestDirectoryRoutes(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), newDirectoryClient(newDirectoryServer(t, 0)))

	w, out := env.do(t, http.MethodGet, "/api/directory/teams", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), out["total"])

	w, _ = env.do(t, http.MethodGet, "/api/directory/services/S1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/directory/services/S9", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	none := newTestEnv(t, t.TempDir(), nil)
	w, _ = none.do(t, http.MethodGet, "/api/directory/teams", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
