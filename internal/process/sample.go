package process

import (
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Sample is a resource reading of a live worker process.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sample reads CPU and memory usage of the running process from the OS.
// CPU percent is averaged over the process lifetime.
func (p *Process) Sample() (Sample, error) {
	pid := p.PID()
	if pid == 0 || p.Exited() {
		return Sample{}, ErrNotStarted
	}
	gp, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return Sample{}, err
	}
	s := Sample{PID: int32(pid), Timestamp: time.Now()}
	if cpu, err := gp.CPUPercent(); err == nil {
		s.CPUPercent = cpu
	}
	if mem, err := gp.MemoryInfo(); err == nil && mem != nil {
		s.MemoryRSS = mem.RSS
		s.MemoryMB = float64(mem.RSS) / 1024 / 1024
	}
	if n, err := gp.NumThreads(); err == nil {
		s.NumThreads = n
	}
	return s, nil
}
