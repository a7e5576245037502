package process

import (
	"os/exec"
	"strings"

	"github.com/librewallet/minerd/internal/env"
)

// Spec describes one external worker invocation.
type Spec struct {
	Name string   `json:"name"`
	Path string   `json:"path"`     // executable; relative paths are resolved by exec.Cmd
	Args []string `json:"args"`     // argv[1:], passed verbatim (no shell)
	Dir  string   `json:"work_dir"` // optional working directory
	Env  []string `json:"env"`      // KEY=VALUE overrides on top of the parent env; ${VAR} expands
}

// BuildCommand constructs an *exec.Cmd for the spec. Arguments are never
// re-parsed by a shell, so credentials containing metacharacters pass
// through unchanged.
func (s Spec) BuildCommand() *exec.Cmd {
	// #nosec G204 -- the executable is operator configuration
	cmd := exec.Command(strings.TrimSpace(s.Path), s.Args...)
	if s.Dir != "" {
		cmd.Dir = s.Dir
	}
	if len(s.Env) > 0 {
		cmd.Env = env.New().FromOS().Merge(s.Env)
	}
	configureSysProcAttr(cmd)
	return cmd
}
