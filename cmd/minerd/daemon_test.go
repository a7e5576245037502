package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPidFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "run", "minerd.pid")

	require.NoError(t, writePidFile(pidFile, os.Getpid()))
	b, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(b))

	require.NoError(t, removePidFile(pidFile))
	_, err = os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, removePidFile(""))
}

func TestDaemonArgs(t *testing.T) {
	got := daemonArgs([]string{"serve", "--daemonize", "cfg.toml", "--pidfile", "/run/m.pid", "--daemonize=true"})
	assert.Equal(t, []string{"serve", "cfg.toml", "--pidfile", "/run/m.pid"}, got)
}

func TestDefaultPidFileIsMinerds(t *testing.T) {
	p := defaultPidFile()
	assert.True(t, filepath.IsAbs(p), p)
	assert.Contains(t, filepath.Base(p), "minerd")
	assert.Equal(t, ".pid", filepath.Ext(p))
}
