package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/librewallet/minerd/internal/auth"
	"github.com/librewallet/minerd/internal/history"
	"github.com/librewallet/minerd/internal/logbuf"
	"github.com/librewallet/minerd/internal/supervisor"
	"github.com/librewallet/minerd/internal/task"
)

// Controller is the supervisor surface the HTTP API drives.
type Controller interface {
	Start(cfg task.Config) error
	Stop() error
	Status() supervisor.Status
	Since(seq uint64) ([]logbuf.Entry, uint64)
	History(ctx context.Context, limit int) ([]history.Event, error)
}

// Router provides embeddable HTTP handlers for the supervised task.
// Endpoints:
//
//	POST {basePath}/start    body: optional task config JSON, merged over the default task
//	POST {basePath}/stop
//	GET  {basePath}/status
//	GET  {basePath}/logs     query: tail=N or since=SEQ (optional); X-Log-Seq response header
//	GET  {basePath}/history  query: limit=N (optional)
//	POST {basePath}/login    basic credentials or JSON; only with WithAuth
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	ctl      Controller
	basePath string
	defaults task.Config
	metrics  http.Handler
	// allowExec permits requests to choose the executable and working
	// directory; otherwise only the configured ones are launched.
	allowExec bool
	auth      *auth.Service // nil: unauthenticated
	log       *slog.Logger
}

type RouterOption func(*Router)

// WithDefaultTask sets the task started by an empty /start request and the
// base that request bodies are merged over.
func WithDefaultTask(cfg task.Config) RouterOption {
	return func(r *Router) { r.defaults = cfg }
}

// WithMetrics serves h at /metrics (outside basePath).
func WithMetrics(h http.Handler) RouterOption {
	return func(r *Router) { r.metrics = h }
}

// WithExecOverride lets /start requests replace binary and work_dir.
func WithExecOverride(allow bool) RouterOption {
	return func(r *Router) { r.allowExec = allow }
}

// WithAuth requires credentials on every API endpoint. Viewers may read;
// admins may also start and stop.
func WithAuth(a *auth.Service) RouterOption {
	return func(r *Router) { r.auth = a }
}

func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.log = l }
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/start, /api/stop, /api/status.
func NewRouter(ctl Controller, basePath string, opts ...RouterOption) *Router {
	r := &Router{ctl: ctl, basePath: sanitizeBase(basePath), log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// BasePath returns the sanitized mount point.
func (r *Router) BasePath() string { return r.basePath }

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	read, control := r.auth.Require(auth.ActionRead), r.auth.Require(auth.ActionControl)
	if r.auth != nil {
		group.POST("/login", r.auth.LoginHandler)
	}
	group.POST("/start", control, r.handleStart)
	group.POST("/stop", control, r.handleStop)
	group.GET("/status", read, r.handleStatus)
	group.GET("/logs", read, r.handleLogs)
	group.GET("/history", read, r.handleHistory)
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer returns an http.Server for h with the timeouts used by the daemon.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// start and stop block for up to the stop timeout plus the kill wait
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStart(c *gin.Context) {
	cfg := r.defaults
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "read body: " + err.Error()})
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		var req task.Config
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
		if fields := execOverrides(req, r.defaults); !r.allowExec && len(fields) > 0 {
			writeJSON(c, http.StatusForbidden, errorResp{Error: strings.Join(fields, ", ") + " cannot be changed over the API"})
			return
		}
		// fields present in the body override the defaults
		if err := json.Unmarshal(body, &cfg); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	if cfg.Name != "" && !isSafeName(cfg.Name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	if !isSafeAbsPath(cfg.WorkDir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid work_dir: must be absolute path without traversal"})
		return
	}
	if err := r.ctl.Start(cfg); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, task.ErrInvalidConfig) {
			code = http.StatusBadRequest
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// execOverrides names the fields of req that would change what runs, or in
// which environment, compared with the configured task.
func execOverrides(req, def task.Config) []string {
	var out []string
	if req.Binary != "" && req.Binary != def.Binary {
		out = append(out, "binary")
	}
	if req.WorkDir != "" && req.WorkDir != def.WorkDir {
		out = append(out, "work_dir")
	}
	for _, f := range []struct {
		name     string
		got, def []string
	}{
		{"env", req.Env, def.Env},
		{"args", req.Args, def.Args},
		{"extra", req.Extra, def.Extra},
	} {
		if f.got != nil && !slices.Equal(f.got, f.def) {
			out = append(out, f.name)
		}
	}
	return out
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.ctl.Stop(); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.ctl.Status())
}

// LogSeqHeader carries the log sequence number a follower passes back as since.
const LogSeqHeader = "X-Log-Seq"

func (r *Router) handleLogs(c *gin.Context) {
	var entries []logbuf.Entry
	if raw := c.Query("since"); raw != "" {
		since, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "since must be a non-negative integer"})
			return
		}
		var seq uint64
		entries, seq = r.ctl.Since(since)
		c.Header(LogSeqHeader, strconv.FormatUint(seq, 10))
	} else {
		n, ok := queryInt(c, "tail", 0)
		if !ok {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "tail must be a non-negative integer"})
			return
		}
		var seq uint64
		entries, seq = r.ctl.Since(0)
		c.Header(LogSeqHeader, strconv.FormatUint(seq, 10))
		if n > 0 && n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(c, http.StatusOK, entries)
}

func (r *Router) handleHistory(c *gin.Context) {
	n, ok := queryInt(c, "limit", 50)
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a non-negative integer"})
		return
	}
	events, err := r.ctl.History(c.Request.Context(), n)
	if err != nil {
		r.log.Warn("history query failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(c, http.StatusOK, events)
}
