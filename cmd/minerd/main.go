package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/librewallet/minerd/internal/auth"
	"github.com/librewallet/minerd/pkg/client"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with all subcommands attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	startFlags := &StartFlags{}
	stopFlags := &StopFlags{}
	statusFlags := &StatusFlags{}
	logsFlags := &LogsFlags{}
	historyFlags := &HistoryFlags{}
	runFlags := &RunFlags{}
	loginFlags := &LoginFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStartCommand(startFlags),
		createStopCommand(stopFlags),
		createStatusCommand(statusFlags),
		createLogsCommand(logsFlags),
		createHistoryCommand(historyFlags),
		createServeCommand(globalFlags),
		createRunCommand(globalFlags, runFlags),
		createLoginCommand(loginFlags),
		createHashPasswordCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "minerd",
		Short: "Mining worker supervisor",
		Long: `minerd runs one external mining worker, collects its stdout and
stderr into a bounded log buffer and exposes start/stop over HTTP.

Examples:
  minerd serve config.toml          # Start daemon
  minerd start --threads=4          # Start the configured worker
  minerd logs --follow              # Stream worker output
  minerd run --binary=./xmrig       # Supervise in the foreground`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", client.DefaultBaseURL, "daemon API base URL")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 30*time.Second, "daemon API request timeout")
	cmd.Flags().StringVar(&f.CACert, "ca-cert", "", "CA certificate for an HTTPS daemon")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS certificate verification")
	cmd.Flags().StringVar(&f.Token, "token", os.Getenv("MINERD_TOKEN"), "bearer token (default $MINERD_TOKEN)")
	cmd.Flags().StringVar(&f.User, "api-user", "", "API username for basic authentication")
	cmd.Flags().StringVar(&f.Password, "api-password", os.Getenv("MINERD_API_PASSWORD"), "API password (default $MINERD_API_PASSWORD)")
}

func addTaskFlags(cmd *cobra.Command, f *TaskFlags) {
	cmd.Flags().StringVar(&f.Name, "name", "", "task name")
	cmd.Flags().StringVar(&f.Binary, "binary", "", "worker executable")
	cmd.Flags().StringVar(&f.WorkDir, "work-dir", "", "worker working directory")
	cmd.Flags().StringVar(&f.Host, "host", "", "pool host")
	cmd.Flags().IntVar(&f.Port, "port", 0, "pool port")
	cmd.Flags().StringVar(&f.User, "user", "", "wallet address")
	cmd.Flags().StringVar(&f.Password, "password", "", "pool password")
	cmd.Flags().IntVar(&f.Threads, "threads", 0, "worker threads")
	cmd.Flags().StringVar(&f.Algorithm, "algorithm", "", "mining algorithm")
	cmd.Flags().StringArrayVar(&f.Extra, "extra", nil, "extra worker argument, repeatable (the daemon must set server.allow_exec)")
}

func createStartCommand(f *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the worker on the daemon",
		Long: `Start the configured worker. Flags override the daemon's task settings
for this run only. Starting while a worker runs is a logged no-op.

Examples:
  minerd start
  minerd start --host=pool.example.org --port=3333 --threads=2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(cmd).Start(*f)
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	addTaskFlags(cmd, &f.TaskFlags)
	return cmd
}

func createStopCommand(f *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the worker on the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(cmd).Stop(*f)
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createStatusCommand(f *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show worker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(cmd).Status(*f)
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createLogsCommand(f *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print buffered worker output",
		Long: `Print the daemon's log buffer. With --follow, keep polling and print
new lines as they arrive until interrupted.

Examples:
  minerd logs --tail=20
  minerd logs --follow --interval=500ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(cmd).Logs(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	cmd.Flags().IntVar(&f.Tail, "tail", 0, "print only the last N lines (0 = all)")
	cmd.Flags().BoolVarP(&f.Follow, "follow", "f", false, "keep printing new lines")
	cmd.Flags().DurationVar(&f.Interval, "interval", time.Second, "poll interval for --follow")
	return cmd
}

func createHistoryCommand(f *HistoryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(cmd).History(*f)
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "maximum events to show")
	return cmd
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the minerd daemon",
		Long: `Start the daemon: the HTTP API, optional metrics endpoint and history
sinks. The worker is started on request, not at boot.

Examples:
  minerd serve                      # Defaults plus MINERD_* environment
  minerd serve config.toml
  minerd serve config.toml --daemonize --pidfile=/run/minerd.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return runServeCommand(cmd.Context(), serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write daemon PID to file (a per-user default when daemonizing)")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")
	return cmd
}

func createRunCommand(globalFlags *GlobalFlags, f *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [config.toml]",
		Short: "Supervise the worker in the foreground",
		Long: `Start the worker locally, print its output as it is collected and stop
it on Ctrl-C. No daemon is involved.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				f.ConfigPath = args[0]
			}
			return runForeground(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	addTaskFlags(cmd, &f.TaskFlags)
	return cmd
}

func createLoginCommand(f *LoginFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain an API token",
		Long: `Exchange --api-user and --api-password for a bearer token and print it.

Examples:
  export MINERD_TOKEN=$(minerd login --api-user=admin --api-password=secret)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(cmd).Login(*f)
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for [[server.auth.users]] password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), h)
			return err
		},
	}
}
