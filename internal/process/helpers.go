package process

import "errors"

var (
	// ErrNotStarted is returned by Wait and Stop before a successful Start.
	ErrNotStarted = errors.New("process not started")
	// ErrAlreadyStarted is returned when Start is called twice on one Process.
	ErrAlreadyStarted = errors.New("process already started")
	// ErrStopTimeout means the process did not exit even after SIGKILL.
	ErrStopTimeout = errors.New("process did not exit after kill")
)
