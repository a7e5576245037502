package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	body   string
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{r.Method, r.URL.Path, r.URL.RawQuery, string(b)})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api/", Timeout: 5 * time.Second}), &calls
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestStartStop(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, nil))
	require.NoError(t, c.Start(ctx, &StartRequest{User: "44wallet", Threads: 4}))
	require.NoError(t, c.Stop(ctx))

	require.Len(t, *calls, 3)
	assert.Equal(t, recorded{http.MethodPost, "/api/start", "", ""}, (*calls)[0])
	assert.JSONEq(t, `{"user":"44wallet","threads":4}`, (*calls)[1].body)
	assert.Equal(t, "/api/stop", (*calls)[2].path)
}

func TestStartLaunchFailure(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "launch failed: miner: no such file"})
	})
	err := c.Start(context.Background(), nil)
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "launch failed")
}

func TestNonJSONError(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	err := c.Stop(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "HTTP 502", apiErr.Error())
}

func TestStatusAndLogs(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status":
			writeJSON(w, http.StatusOK, map[string]any{"running": true, "pid": 99, "cpu_percent": 12.5, "log_capacity": 100})
		case "/api/logs":
			writeJSON(w, http.StatusOK, []map[string]any{
				{"seq": 41, "time": now, "stream": "stdout", "line": "accepted (1/0)"},
				{"seq": 42, "time": now, "stream": "stderr", "line": "warn"},
			})
		case "/api/history":
			writeJSON(w, http.StatusOK, []map[string]any{{"type": "start", "record": map[string]any{"run_id": "r1"}}})
		}
	})
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, 99, st.PID)
	assert.Equal(t, 12.5, st.CPUPercent)
	assert.Equal(t, 100, st.LogCap)

	logs, err := c.Logs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "stdout", logs[0].Stream)
	assert.Equal(t, uint64(42), logs[1].Seq)
	assert.True(t, logs[0].Time.Equal(now))
	assert.Equal(t, "tail=2", (*calls)[1].query)

	_, err = c.Logs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, (*calls)[2].query)

	events, err := c.History(ctx, 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "r1", events[0].Record.RunID)
	assert.Equal(t, "limit=5", (*calls)[3].query)
}

func TestIsReachable(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"running": false})
	})
	assert.True(t, c.IsReachable(context.Background()))

	srv := httptest.NewServer(http.NotFoundHandler())
	down := New(Config{BaseURL: srv.URL})
	assert.False(t, down.IsReachable(context.Background()))
	srv.Close()
	assert.False(t, down.IsReachable(context.Background()))
}

func TestNewDefaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, 30*time.Second, c.client.Timeout)
}

func TestSetupClientTLS(t *testing.T) {
	cfg, err := setupClientTLS(Config{Insecure: true})
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)

	_, err = setupClientTLS(Config{CACert: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a cert"), 0o600))
	_, err = setupClientTLS(Config{CACert: bad})
	assert.ErrorContains(t, err, "parse")
}

func TestTLSServerWithInsecureClient(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"running": true})
	}))
	defer srv.Close()

	st, err := New(Config{BaseURL: srv.URL, Insecure: true}).Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running)
}

func TestLogsSince(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(LogSeqHeader, "7")
		writeJSON(w, http.StatusOK, []map[string]any{{"stream": "stdout", "line": "x"}})
	})
	entries, next, err := c.LogsSince(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, uint64(7), next)
	assert.Equal(t, "since=5", (*calls)[0].query)
}

func TestLogsSinceMissingHeader(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})
	_, next, err := c.LogsSince(context.Background(), 3)
	assert.Error(t, err)
	assert.Equal(t, uint64(3), next)
}

func TestCredentialsAndLogin(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/login":
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["password"] != "pw" {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
				return
			}
			writeJSON(w, http.StatusOK, Token{Type: "Bearer", Value: "tok"})
		default:
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api", Username: "admin", Password: "pw"})
	assert.True(t, c.IsReachable(context.Background()))

	_, err := c.Status(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	tok, err := c.Login(context.Background(), "admin", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.Value)
	_, err = c.Login(context.Background(), "admin", "bad")
	assert.Error(t, err)

	c.SetToken(tok.Value)
	_ = c.Stop(context.Background())
	assert.True(t, strings.HasPrefix(seen[0], "Basic "))
	assert.Equal(t, "Bearer tok", seen[len(seen)-1])
}
