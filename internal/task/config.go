package task

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
)

// ErrInvalidConfig is returned (wrapped) by Validate.
var ErrInvalidConfig = errors.New("invalid task config")

// DefaultArgs is the argument template used when Config.Args is empty.
// Each element is rendered on its own; there is no shell involved.
var DefaultArgs = []string{
	"-o", "{{.Endpoint}}",
	"-u", "{{.User}}",
	"-p", "{{.Password}}",
	"-t", "{{.Threads}}",
	"-a", "{{.Algorithm}}",
	"--no-color",
}

const (
	DefaultName      = "miner"
	DefaultAlgorithm = "rx/0"
)

// Config holds the invocation parameters of one worker run. It is treated
// as immutable once handed to the supervisor.
type Config struct {
	Name      string   `json:"name" mapstructure:"name"`
	Binary    string   `json:"binary" mapstructure:"binary"`     // resolved against WorkDir when relative
	WorkDir   string   `json:"work_dir" mapstructure:"work_dir"` // optional
	Host      string   `json:"host" mapstructure:"host"`
	Port      int      `json:"port" mapstructure:"port"`
	User      string   `json:"user" mapstructure:"user"`         // wallet address / identity
	Password  string   `json:"password" mapstructure:"password"` // pool credential
	Threads   int      `json:"threads" mapstructure:"threads"`
	Algorithm string   `json:"algorithm" mapstructure:"algorithm"`
	Extra     []string `json:"extra" mapstructure:"extra"` // appended verbatim after the rendered args
	Env       []string `json:"env" mapstructure:"env"`
	Args      []string `json:"args" mapstructure:"args"` // argument template; DefaultArgs when empty
}

// WithDefaults returns a copy with empty fields filled in.
func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = DefaultName
	}
	if c.Algorithm == "" {
		c.Algorithm = DefaultAlgorithm
	}
	if c.Threads == 0 {
		c.Threads = 1
	}
	if len(c.Args) == 0 {
		c.Args = append([]string(nil), DefaultArgs...)
	}
	return c
}

// Endpoint joins host and port into a single address.
func (c Config) Endpoint() string {
	if c.Host == "" && c.Port == 0 {
		return ""
	}
	if c.Port == 0 {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Path returns the executable path, joined with WorkDir when relative.
func (c Config) Path() string {
	b := strings.TrimSpace(c.Binary)
	if b == "" || filepath.IsAbs(b) || c.WorkDir == "" {
		return b
	}
	// "./xmrig" and "xmrig" are both relative to the working directory.
	// exec.Cmd evaluates a relative Path against Dir as well, so make it
	// absolute to avoid joining WorkDir twice.
	p := filepath.Join(c.WorkDir, b)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Validate reports configuration errors wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Binary) == "" {
		return fmt.Errorf("%w: binary is required", ErrInvalidConfig)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.Threads < 0 {
		return fmt.Errorf("%w: threads cannot be negative", ErrInvalidConfig)
	}
	if strings.ContainsAny(c.Name, "/\\") || strings.Contains(c.Name, "..") {
		return fmt.Errorf("%w: name %q contains path characters", ErrInvalidConfig, c.Name)
	}
	for i, kv := range c.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("%w: env[%d] %q must be KEY=VALUE", ErrInvalidConfig, i, kv)
		}
	}
	for i, a := range c.Args {
		if _, err := parseArg(i, a); err != nil {
			return err
		}
	}
	return nil
}

// Argv renders the argument template. Elements that render to an empty
// string are dropped together with a directly preceding flag, so that an
// unset password does not leave a dangling "-p".
func (c Config) Argv() ([]string, error) {
	c = c.WithDefaults()
	data := templateData{Config: c, Endpoint: c.Endpoint(), Threads: strconv.Itoa(c.Threads)}

	out := make([]string, 0, len(c.Args)+len(c.Extra))
	for i, a := range c.Args {
		tpl, err := parseArg(i, a)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := tpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("%w: args[%d]: %v", ErrInvalidConfig, i, err)
		}
		v := buf.String()
		if v == "" {
			if a != v && len(out) > 0 && isFlag(out[len(out)-1]) {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, v)
	}
	out = append(out, c.Extra...)
	return out, nil
}

type templateData struct {
	Config
	Endpoint string
	Threads  string
}

func parseArg(i int, a string) (*template.Template, error) {
	tpl, err := template.New("arg").Option("missingkey=error").Parse(a)
	if err != nil {
		return nil, fmt.Errorf("%w: args[%d] %q: %v", ErrInvalidConfig, i, a, err)
	}
	return tpl, nil
}

func isFlag(s string) bool { return strings.HasPrefix(s, "-") && !strings.Contains(s, "=") }
