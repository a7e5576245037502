package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/librewallet/minerd/internal/auth"
	"github.com/librewallet/minerd/internal/logbuf"
	"github.com/librewallet/minerd/internal/logger"
	"github.com/librewallet/minerd/internal/schedule"
	"github.com/librewallet/minerd/internal/task"
	itls "github.com/librewallet/minerd/internal/tls"
)

// EnvPrefix is prepended to environment overrides, e.g. MINERD_TASK_BINARY.
const EnvPrefix = "MINERD"

// Config represents the top-level TOML structure.
//
//	buffer_size  = 100
//	stop_timeout = "3s"
//	env_files    = [".env"]
//
//	[task]
//	binary = "./xmrig"
//	host = "pool.example.org"
//	port = 3333
//
//	[server]
//	listen = "127.0.0.1:8080"
//
//	[schedule]
//	enabled = true
//	start = ["0 22 * * *"]
//	stop = ["0 7 * * *"]
type Config struct {
	BufferSize  int           `mapstructure:"buffer_size"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	EnvFiles    []string      `mapstructure:"env_files"`

	Task     task.Config     `mapstructure:"task"`
	Log      logger.Config   `mapstructure:"log"`
	Server   ServerConfig    `mapstructure:"server"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	History  HistoryConfig   `mapstructure:"history"`
	Schedule schedule.Config `mapstructure:"schedule"`
}

type ServerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
	Engine   string `mapstructure:"engine"` // gin (default) or echo

	// AllowExec lets /start requests choose binary and work_dir.
	AllowExec bool `mapstructure:"allow_exec"`

	TLS  itls.Config `mapstructure:"tls"`
	Auth auth.Config `mapstructure:"auth"`
}

type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Listen         string        `mapstructure:"listen"` // empty: served by the API server
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

type HistoryConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Sinks   []string `mapstructure:"sinks"` // DSNs, see history/factory
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("buffer_size", logbuf.DefaultCapacity)
	v.SetDefault("stop_timeout", "3s")
	v.SetDefault("task.name", task.DefaultName)
	v.SetDefault("task.algorithm", task.DefaultAlgorithm)
	v.SetDefault("task.threads", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.engine", "gin")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.sample_interval", "5s")
	v.SetDefault("history.enabled", false)
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg, _ := decode(newViper())
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads a TOML config file. Environment variables prefixed with
// MINERD_ override file values; unset keys fall back to defaults.
// An empty path loads defaults and environment only.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		cfg.resolveRelative(filepath.Dir(path))
	}
	env, err := cfg.globalEnv()
	if err != nil {
		return Config{}, err
	}
	cfg.Task.Env = append(env, cfg.Task.Env...)
	return cfg, cfg.Validate()
}

func decode(v *viper.Viper) (Config, error) {
	// AutomaticEnv only applies to keys viper already knows
	for _, k := range []string{"task.binary", "task.work_dir", "task.host", "task.port", "task.user", "task.password", "log.file.dir", "history.sinks", "server.auth.jwt_secret"} {
		_ = v.BindEnv(k)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// resolveRelative anchors relative paths at the config file's directory.
func (c *Config) resolveRelative(base string) {
	if c.Task.WorkDir != "" && !filepath.IsAbs(c.Task.WorkDir) {
		c.Task.WorkDir = filepath.Join(base, c.Task.WorkDir)
	}
	if c.Log.File.Dir != "" && !filepath.IsAbs(c.Log.File.Dir) {
		c.Log.File.Dir = filepath.Join(base, c.Log.File.Dir)
	}
	for _, p := range []*string{&c.Server.TLS.CertFile, &c.Server.TLS.KeyFile, &c.Server.TLS.Dir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	for i, p := range c.EnvFiles {
		if !filepath.IsAbs(p) {
			c.EnvFiles[i] = filepath.Join(base, p)
		}
	}
}

// Validate checks settings outside the task itself; the task is validated
// on Start so that a bad task does not prevent the daemon from serving.
func (c Config) Validate() error {
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer_size cannot be negative")
	}
	if c.StopTimeout < 0 {
		return fmt.Errorf("stop_timeout cannot be negative")
	}
	switch strings.ToLower(c.Server.Engine) {
	case "", "gin", "echo":
	default:
		return fmt.Errorf("unknown server engine %q", c.Server.Engine)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server base_path must start with /")
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	return nil
}

// globalEnv collects the env_files entries in order. They are placed before
// the task's own env, and the worker environment is composed with later
// entries winning.
func (c Config) globalEnv() ([]string, error) {
	var out []string
	for _, p := range c.EnvFiles {
		entries, err := LoadEnvFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// LoadEnvFile parses a simple .env file and returns "KEY=VALUE" entries in
// file order.
func LoadEnvFile(path string) ([]string, error) {
	pairs, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		out = append(out, kv[0]+"="+kv[1])
	}
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines (no export, no quotes). Lines starting
// with # are ignored.
func loadEnvFile(path string) ([][2]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	var out [][2]string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			out = append(out, [2]string{strings.TrimSpace(k), strings.TrimSpace(v)})
		}
	}
	return out, nil
}
