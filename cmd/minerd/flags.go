package main

import "time"

// Flag structs decouple cobra from command logic for testing.

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags selects the daemon a remote command talks to.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	CACert     string
	Insecure   bool
	Token      string
	User       string
	Password   string
}

// TaskFlags override fields of the configured task.
type TaskFlags struct {
	Name      string
	Binary    string
	WorkDir   string
	Host      string
	Port      int
	User      string
	Password  string
	Threads   int
	Algorithm string
	Extra     []string
}

type StartFlags struct {
	APIFlags
	TaskFlags
}

type StopFlags struct {
	APIFlags
}

type StatusFlags struct {
	APIFlags
}

type LogsFlags struct {
	APIFlags
	Tail     int
	Follow   bool
	Interval time.Duration
}

type HistoryFlags struct {
	APIFlags
	Limit int
}

type LoginFlags struct {
	APIFlags
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

// RunFlags holds flags for foreground supervision without a daemon.
type RunFlags struct {
	ConfigPath string
	TaskFlags
}
