package supervisor

import "time"

// Status is the control-plane view of the supervised task. After a Stop or
// a natural exit it describes the most recent run.
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
