package client

import "time"

// StartRequest overrides fields of the daemon's configured task. Zero values
// are omitted so the daemon keeps its own settings for them.
type StartRequest struct {
	Name      string   `json:"name,omitempty"`
	Binary    string   `json:"binary,omitempty"`
	WorkDir   string   `json:"work_dir,omitempty"`
	Host      string   `json:"host,omitempty"`
	Port      int      `json:"port,omitempty"`
	User      string   `json:"user,omitempty"`
	Password  string   `json:"password,omitempty"`
	Threads   int      `json:"threads,omitempty"`
	Algorithm string   `json:"algorithm,omitempty"`
	Extra     []string `json:"extra,omitempty"`
	Env       []string `json:"env,omitempty"`
}

// Status mirrors the daemon's view of the supervised task.
type Status struct {
	Running    bool      `json:"running"`
	RunID      string    `json:"run_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Command    string    `json:"command,omitempty"`
	Args       []string  `json:"args,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	ExitCode   int       `json:"exit_code"`
	ExitErr    string    `json:"exit_error,omitempty"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	LogLines   int       `json:"log_lines"`
	LogCap     int       `json:"log_capacity"`
}

// LogEntry is one buffered line. Stream is stdout, stderr or supervisor.
type LogEntry struct {
	Seq    uint64    `json:"seq"`
	Time   time.Time `json:"time"`
	Stream string    `json:"stream"`
	Line   string    `json:"line"`
}

// Event is a task lifecycle event from the daemon's history sink.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     struct {
		RunID    string `json:"run_id"`
		Name     string `json:"name"`
		PID      int    `json:"pid"`
		Command  string `json:"command"`
		ExitCode int    `json:"exit_code"`
		Error    string `json:"error,omitempty"`
	} `json:"record"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Token is a bearer token issued by the daemon's login endpoint.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}
