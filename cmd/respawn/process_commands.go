package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/loykin/respawn"
	"github.com/loykin/respawn/pkg/client"
)

// command binds CLI handlers to their output stream so tests can
// capture what they print.
type command struct {
	out io.Writer
}

// Run supervises one command in the foreground until interrupted.
// Start and crash notices go to the output stream; the child's own
// output goes to the configured log sink.
func (c *command) Run(configPath string, f RunFlags) error {
	spec, err := specFromRunFlags(configPath, f)
	if err != nil {
		return err
	}

	mgr := respawn.New()
	mgr.SetNotices(c.out)

	if err := mgr.Supervise(spec); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.StartAll(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	return mgr.Close()
}

// specFromRunFlags builds the spec to supervise, either from the run
// flags directly or by picking a named entry out of a config file.
func specFromRunFlags(configPath string, f RunFlags) (respawn.Spec, error) {
	if f.Cmd == "" {
		if configPath == "" || f.Name == "" {
			return respawn.Spec{}, fmt.Errorf("either --cmd or --config with --name is required")
		}
		specs, err := respawn.LoadSpecs(configPath)
		if err != nil {
			return respawn.Spec{}, err
		}
		for _, sp := range specs {
			if sp.Name == f.Name {
				return sp, nil
			}
		}
		return respawn.Spec{}, fmt.Errorf("process %q not found in %s", f.Name, configPath)
	}

	parts := strings.Fields(f.Cmd)
	if len(parts) == 0 {
		return respawn.Spec{}, fmt.Errorf("command is empty")
	}
	name := f.Name
	if name == "" {
		name = filepath.Base(parts[0])
	}

	env := make([]string, 0, len(f.EnvKVs))
	for _, file := range f.EnvFiles {
		pairs, err := respawn.LoadEnv(file)
		if err != nil {
			return respawn.Spec{}, err
		}
		env = append(env, pairs...)
	}
	env = append(env, f.EnvKVs...)

	spec := respawn.Spec{
		Name:     name,
		Command:  f.Cmd,
		WorkDir:  f.WorkDir,
		Env:      env,
		Interval: f.Interval,
		StopWait: f.StopWait,
	}
	spec.Log.File.Path = f.LogPath
	spec.Log.File.Dir = f.LogDir
	return spec, nil
}

// Status prints daemon-side process status as a table or raw JSON.
func (c *command) Status(f StatusFlags) error {
	api := newAPIClient(f.APIUrl, f.APITimeout)
	ctx := context.Background()
	if !api.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'respawn serve'")
	}

	if f.Name != "" {
		st, err := api.Status(ctx, f.Name)
		if err != nil {
			return err
		}
		if f.JSON {
			printJSON(c.out, st)
			return nil
		}
		renderStatusTable(c.out, []client.ProcessStatus{st})
		return nil
	}

	statuses, err := api.StatusAll(ctx)
	if err != nil {
		return err
	}
	if f.JSON {
		printJSON(c.out, statuses)
		return nil
	}
	renderStatusTable(c.out, statuses)
	return nil
}

// Start resumes a stopped restart loop on the daemon.
func (c *command) Start(f StartFlags) error {
	if f.Name == "" {
		return fmt.Errorf("process name is required")
	}
	api := newAPIClient(f.APIUrl, f.APITimeout)
	ctx := context.Background()
	if !api.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'respawn serve'")
	}
	return api.Start(ctx, f.Name)
}

// Stop cancels a restart loop on the daemon and prints the final status.
func (c *command) Stop(f StopFlags) error {
	if f.Name == "" {
		return fmt.Errorf("process name is required")
	}
	api := newAPIClient(f.APIUrl, f.APITimeout)
	ctx := context.Background()
	if !api.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'respawn serve'")
	}

	if err := api.Stop(ctx, f.Name); err != nil {
		return err
	}
	st, err := api.Status(ctx, f.Name)
	if err != nil {
		return err
	}
	printJSON(c.out, st)
	return nil
}

// Runs prints recorded runs for one process, newest first.
func (c *command) Runs(f RunsFlags) error {
	if f.Name == "" {
		return fmt.Errorf("process name is required")
	}
	api := newAPIClient(f.APIUrl, f.APITimeout)
	ctx := context.Background()
	if !api.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'respawn serve'")
	}

	runs, err := api.Runs(ctx, f.Name, f.Limit)
	if err != nil {
		return err
	}
	if f.JSON {
		printJSON(c.out, runs)
		return nil
	}
	renderRunsTable(c.out, runs)
	return nil
}
