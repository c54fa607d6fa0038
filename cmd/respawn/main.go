package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/loykin/respawn"
	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	serveFlags := &ServeFlags{}
	statusFlags := &StatusFlags{}
	startFlags := &StartFlags{}
	stopFlags := &StopFlags{}
	runsFlags := &RunsFlags{}
	templateFlags := &TemplateCreateFlags{}

	respawnCommand := command{out: os.Stdout}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(respawnCommand, globalFlags, runFlags),
		createServeCommand(globalFlags, serveFlags),
		createStatusCommand(respawnCommand, statusFlags),
		createStartCommand(respawnCommand, startFlags),
		createStopCommand(respawnCommand, stopFlags),
		createRunsCommand(respawnCommand, runsFlags),
		createTemplateCommand(respawnCommand, templateFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "respawn",
		Short: "Keep commands running",
		Long: `Respawn keeps commands running: it launches a command, waits for it
to exit, announces the exit and launches it again after a fixed pause.
Crash or clean exit makes no difference; the loop runs until stopped.

Examples:
  respawn run --cmd="python app.py" --log-path=/var/log/app.log
  respawn serve config.toml         # Start daemon
  respawn status --name=myapp
  respawn status --api-url=http://remote:8080/api  # Remote status`,
	}

	// Only essential flags for CLI commands
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")

	return root
}

// createRunCommand creates the run subcommand
func createRunCommand(respawnCommand command, globalFlags *GlobalFlags, runFlags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Supervise one command in the foreground",
		Long: `Run a command under supervision in the foreground. The command is
restarted every time it exits, crash or not, after the restart interval.
Child stdout and stderr are appended to the log sink. Press Ctrl+C to stop.

Examples:
  respawn run --cmd="python app.py" --log-path=/var/log/app.log
  respawn run --name=web --cmd="./server" --interval=5s --stop-wait=10s
  respawn run --config=config.toml --name=web`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return respawnCommand.Run(globalFlags.ConfigPath, *runFlags)
		},
	}

	cmd.Flags().StringVar(&runFlags.Name, "name", "", "process name (defaults to the command's binary name)")
	cmd.Flags().StringVar(&runFlags.Cmd, "cmd", "", "command to run")
	cmd.Flags().StringVar(&runFlags.WorkDir, "workdir", "", "working directory")
	cmd.Flags().DurationVar(&runFlags.Interval, "interval", respawn.DefaultInterval, "pause between exit and restart")
	cmd.Flags().DurationVar(&runFlags.StopWait, "stop-wait", respawn.DefaultStopWait, "grace period before SIGKILL on stop")
	cmd.Flags().StringVar(&runFlags.LogPath, "log-path", "", "append child stdout+stderr to this file")
	cmd.Flags().StringVar(&runFlags.LogDir, "log-dir", "", "append child output to <dir>/<name>.log")
	cmd.Flags().StringArrayVar(&runFlags.EnvKVs, "env", nil, "extra environment KEY=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&runFlags.EnvFiles, "env-file", nil, "file with KEY=VALUE lines (repeatable)")

	return cmd
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the respawn daemon",
		Long: `Start the respawn daemon to supervise the processes from a config
file and expose the management API.

Examples:
  respawn serve config.toml
  respawn serve --config=config.toml
  respawn serve config.toml --daemonize   # Run in background (pidfile via [server].pidfile)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(serveFlags, args)
		},
	}

	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")

	return cmd
}

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}

	cfg, err := respawn.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// Daemonize re-execs; pidfile and logfile come from [server].
	if flags.Daemonize {
		pidfile := ""
		logfile := flags.LogFile
		if cfg.Server != nil {
			pidfile = cfg.Server.PIDFile
			if logfile == "" {
				logfile = cfg.Server.LogFile
			}
		}
		return daemonize(pidfile, logfile)
	}

	logger := cfg.Logger.NewSlogger()
	slog.SetDefault(logger)

	mgr := respawn.New()
	mgr.SetLogger(logger)
	mgr.SetGlobalEnv(cfg.GlobalEnv)

	if cfg.Store != nil && cfg.Store.DSN != "" {
		if err := mgr.SetStoreDSN(cfg.Store.DSN); err != nil {
			return fmt.Errorf("failed to open run store: %w", err)
		}
	}
	if cfg.History != nil && len(cfg.History.Sinks) > 0 {
		if err := mgr.SetHistoryDSNs(cfg.History.Sinks...); err != nil {
			return fmt.Errorf("failed to open history sink: %w", err)
		}
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if err := respawn.RegisterMetricsDefault(); err != nil {
			logger.Warn("failed to register metrics", "error", err)
		}
		// Without a dedicated listen address the management server's
		// /metrics route serves the exposition.
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := respawn.ServeMetrics(cfg.Metrics.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server error", "error", err)
				}
			}()
		}
	}

	for i := range cfg.Specs {
		if err := mgr.Supervise(cfg.Specs[i]); err != nil {
			return fmt.Errorf("failed to supervise %s: %w", cfg.Specs[i].Name, err)
		}
	}

	if cfg.Server == nil {
		return fmt.Errorf("server must be configured to run serve command")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start processes: %w", err)
	}

	server, err := respawn.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, mgr)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	logger.Info("daemon started",
		"listen", cfg.Server.Listen,
		"base_path", cfg.Server.BasePath,
		"processes", len(cfg.Specs))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	logger.Info("shutting down")
	_ = server.Close()
	err = mgr.Close()
	if cfg.Server.PIDFile != "" {
		_ = removePidFile(cfg.Server.PIDFile)
	}
	return err
}

// createStatusCommand creates the status subcommand
func createStatusCommand(respawnCommand command, statusFlags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show process status",
		Long: `Show the status of processes supervised by the daemon.

Examples:
  respawn status                    # Show all processes
  respawn status --name=web         # Show specific process
  respawn status --json
  respawn status --api-url=http://remote:8080/api  # Remote status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return respawnCommand.Status(*statusFlags)
		},
	}
	cmd.Flags().StringVar(&statusFlags.Name, "name", "", "process name (optional)")
	cmd.Flags().BoolVar(&statusFlags.JSON, "json", false, "print raw JSON instead of a table")
	cmd.Flags().StringVar(&statusFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&statusFlags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
	return cmd
}

// createStartCommand creates the start subcommand
func createStartCommand(respawnCommand command, startFlags *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a process",
		Long: `Resume the restart loop of a stopped process on the daemon.

Examples:
  respawn start --name=web
  respawn start --name=web --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return respawnCommand.Start(*startFlags)
		},
	}
	cmd.Flags().StringVar(&startFlags.Name, "name", "", "process name (required)")
	cmd.Flags().StringVar(&startFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&startFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")

	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err) // This should never happen during setup
	}
	return cmd
}

// createStopCommand creates the stop subcommand
func createStopCommand(respawnCommand command, stopFlags *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a process",
		Long: `Stop the restart loop of a process on the daemon. The child gets the
spec's stop grace before it is killed; the loop stays registered and can
be started again.

Examples:
  respawn stop --name=web
  respawn stop --name=web --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return respawnCommand.Stop(*stopFlags)
		},
	}
	cmd.Flags().StringVar(&stopFlags.Name, "name", "", "process name (required)")
	cmd.Flags().StringVar(&stopFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&stopFlags.APITimeout, "api-timeout", 30*time.Second, "request timeout")

	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err) // This should never happen during setup
	}
	return cmd
}

// createRunsCommand creates the runs subcommand
func createRunsCommand(respawnCommand command, runsFlags *RunsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recorded runs for a process",
		Long: `Show the run history the daemon recorded for one process, newest
first. Requires a store to be configured on the daemon.

Examples:
  respawn runs --name=web
  respawn runs --name=web --limit=50 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return respawnCommand.Runs(*runsFlags)
		},
	}
	cmd.Flags().StringVar(&runsFlags.Name, "name", "", "process name (required)")
	cmd.Flags().IntVar(&runsFlags.Limit, "limit", 20, "maximum records to return")
	cmd.Flags().BoolVar(&runsFlags.JSON, "json", false, "print raw JSON instead of a table")
	cmd.Flags().StringVar(&runsFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&runsFlags.APITimeout, "api-timeout", 30*time.Second, "request timeout")

	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err) // This should never happen during setup
	}
	return cmd
}

// createTemplateCommand creates the template command
func createTemplateCommand(respawnCommand command, templateFlags *TemplateCreateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Create process config templates",
		Long: `Create process configuration templates for common service types.
Templates are [[processes]] snippets ready to paste into a config file
or drop into the programs directory.

Supported template types:
  web       - Web application server
  api       - REST API service
  worker    - Background worker
  database  - Database service
  simple    - Basic process

Examples:
  respawn template --type=web --name=my-webapp
  respawn template --type=api --name=user-service --format=json
  respawn template --type=worker --output=./custom-worker.toml
  respawn template --type=simple --name=hello-world --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return respawnCommand.TemplateCreate(*templateFlags)
		},
	}

	cmd.Flags().StringVar(&templateFlags.Type, "type", "", "template type (required): web, api, worker, database, simple")
	cmd.Flags().StringVar(&templateFlags.Name, "name", "", "process name for template (defaults to type-sample)")
	cmd.Flags().StringVar(&templateFlags.Output, "output", "", "output file path (defaults to templates/name.<format>)")
	cmd.Flags().StringVar(&templateFlags.Format, "format", "toml", "output format: toml or json")
	cmd.Flags().BoolVar(&templateFlags.Force, "force", false, "overwrite existing template file")

	if err := cmd.MarkFlagRequired("type"); err != nil {
		panic(err)
	}

	return cmd
}
