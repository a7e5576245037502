package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.BufferSize)
	assert.Equal(t, 3*time.Second, cfg.StopTimeout)
	assert.Equal(t, "miner", cfg.Task.Name)
	assert.Equal(t, "rx/0", cfg.Task.Algorithm)
	assert.Equal(t, 1, cfg.Task.Threads)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, "gin", cfg.Server.Engine)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Metrics.SampleInterval)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Nil(t, cfg.Log.Color)
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "minerd.toml", `
buffer_size = 250
stop_timeout = "750ms"

[task]
name = "xmrig"
binary = "./xmrig"
work_dir = "bin"
host = "pool.example.org"
port = 3333
user = "44AFFq5kSiGBoZ"
password = "x"
threads = 4
extra = ["--donate-level", "1"]
env = ["FOO=bar"]

[log]
level = "debug"
format = "json"
color = false

[log.file]
dir = "logs"
max_size_mb = 5

[server]
listen = ":9090"
base_path = "/minerd"
engine = "echo"

[metrics]
enabled = true
listen = ":9100"

[history]
enabled = true
sinks = ["sqlite://:memory:"]
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.BufferSize)
	assert.Equal(t, 750*time.Millisecond, cfg.StopTimeout)
	assert.Equal(t, "xmrig", cfg.Task.Name)
	assert.Equal(t, filepath.Join(dir, "bin"), cfg.Task.WorkDir)
	assert.Equal(t, "pool.example.org:3333", cfg.Task.Endpoint())
	assert.Equal(t, 4, cfg.Task.Threads)
	assert.Equal(t, []string{"--donate-level", "1"}, cfg.Task.Extra)
	assert.Equal(t, []string{"FOO=bar"}, cfg.Task.Env)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	require.NotNil(t, cfg.Log.Color)
	assert.False(t, *cfg.Log.Color)
	assert.Equal(t, filepath.Join(dir, "logs"), cfg.Log.File.Dir)
	assert.Equal(t, 5, cfg.Log.File.MaxSizeMB)
	assert.Equal(t, "echo", cfg.Server.Engine)
	assert.Equal(t, "/minerd", cfg.Server.BasePath)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, []string{"sqlite://:memory:"}, cfg.History.Sinks)

	require.NoError(t, cfg.Task.Validate())
	argv, err := cfg.Task.Argv()
	require.NoError(t, err)
	assert.Contains(t, argv, "pool.example.org:3333")
	assert.Equal(t, []string{"--donate-level", "1"}, argv[len(argv)-2:])
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "minerd.toml", `
[task]
binary = "/opt/xmrig"
port = 3333
`)
	t.Setenv("MINERD_TASK_BINARY", "/usr/local/bin/xmrig")
	t.Setenv("MINERD_TASK_PORT", "5555")
	t.Setenv("MINERD_SERVER_LISTEN", "0.0.0.0:1234")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/xmrig", cfg.Task.Binary)
	assert.Equal(t, 5555, cfg.Task.Port)
	assert.Equal(t, "0.0.0.0:1234", cfg.Server.Listen)
}

func TestEnvFilesMergeIntoTaskEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "worker.env", "A=1\n# comment\nB=two\nA=3\n")
	p := writeFile(t, dir, "minerd.toml", `
env_files = ["worker.env"]

[task]
binary = "/opt/xmrig"
env = ["B=task"]
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	// later entries win when the worker environment is composed
	assert.Equal(t, []string{"A=1", "B=two", "A=3", "B=task"}, cfg.Task.Env)
}

func TestLoadEnvFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), ".env", "A=1\n#comment\nB = two\nnot-a-pair\n")
	pairs, err := LoadEnvFile(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=two"}, pairs)

	_, err = LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	bad := writeFile(t, dir, "bad.toml", "buffer_size = [")
	_, err = Load(bad)
	assert.Error(t, err)

	engine := writeFile(t, dir, "engine.toml", "[server]\nengine = \"fasthttp\"\n")
	_, err = Load(engine)
	assert.ErrorContains(t, err, "engine")

	base := writeFile(t, dir, "base.toml", "[server]\nbase_path = \"api\"\n")
	_, err = Load(base)
	assert.ErrorContains(t, err, "base_path")

	neg := writeFile(t, dir, "neg.toml", "buffer_size = -1\n")
	_, err = Load(neg)
	assert.Error(t, err)
}

func TestDefaultMatchesEmptyLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
	assert.Equal(t, Default().StopTimeout, cfg.StopTimeout)
}

func TestServerTLSPathsResolved(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "minerd.toml", `
[server]
allow_exec = true

[server.tls]
enabled = true
dir = "certs"
auto_generate = true
hosts = ["miner.local"]
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.True(t, cfg.Server.AllowExec)
	assert.True(t, cfg.Server.TLS.Enabled)
	assert.True(t, cfg.Server.TLS.AutoGenerate)
	assert.Equal(t, filepath.Join(dir, "certs"), cfg.Server.TLS.Dir)
	assert.Equal(t, []string{"miner.local"}, cfg.Server.TLS.Hosts)
}

func TestServerAuthUsers(t *testing.T) {
	p := writeFile(t, t.TempDir(), "minerd.toml", `
[server.auth]
enabled = true
token_ttl = "2h"

[[server.auth.users]]
username = "admin"
password_hash = "$2a$10$abcdefghijklmnopqrstuu7yC2k0y8E0C1dFJxQ2cYqJmV0e8GJ6W"

[[server.auth.users]]
username = "ops"
password_hash = "$2a$10$abcdefghijklmnopqrstuu7yC2k0y8E0C1dFJxQ2cYqJmV0e8GJ6W"
role = "viewer"
`)
	t.Setenv("MINERD_SERVER_AUTH_JWT_SECRET", "from-env")
	cfg, err := Load(p)
	require.NoError(t, err)
	a := cfg.Server.Auth
	assert.True(t, a.Enabled)
	assert.Equal(t, 2*time.Hour, a.TokenTTL)
	assert.Equal(t, "from-env", a.JWTSecret)
	require.Len(t, a.Users, 2)
	assert.Equal(t, "ops", a.Users[1].Username)
	assert.Equal(t, "viewer", a.Users[1].Role)
}

func TestScheduleSection(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "minerd.toml", `
[schedule]
enabled = true
timezone = "UTC"
start = ["0 22 * * *"]
stop = ["0 7 * * *", "@weekly"]
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.True(t, cfg.Schedule.Enabled)
	assert.Equal(t, "UTC", cfg.Schedule.Timezone)
	assert.Equal(t, []string{"0 22 * * *"}, cfg.Schedule.Start)
	assert.Equal(t, []string{"0 7 * * *", "@weekly"}, cfg.Schedule.Stop)

	bad := writeFile(t, dir, "bad.toml", `
[schedule]
enabled = true
start = ["every night"]
`)
	_, err = Load(bad)
	assert.Error(t, err)
}
