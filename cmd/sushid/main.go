// Command sushid runs the headless multi-server IRC client daemon
// described in spec.md: it loads every configured server from
// <config-dir>/servers/, connects the ones marked autoconnect,
// and blocks serving their connections until an interrupt or the
// shutdown command arrives.
//
// The IPC front-end surface (session bus / TCP peer) is a collaborator
// out of this repository's scope (spec.md §1); this entrypoint only
// wires up the core engine and a stderr event log so the daemon is
// independently runnable and observable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sushinet/sushid/instance"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configDir  string
		dataDir    string
		foreground bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "sushid",
		Short: "headless multi-server IRC client daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configDir, dataDir, foreground, verbose)
		},
	}

	home, _ := os.UserHomeDir()
	defaultConfig := filepath.Join(home, ".config", "sushi")
	defaultData := filepath.Join(home, ".local", "share", "sushi")

	flags := cmd.Flags()
	flags.StringVar(&configDir, "config-dir", defaultConfig, "directory holding sushi.yaml and servers/")
	flags.StringVar(&dataDir, "data-dir", defaultData, "directory holding chat logs")
	flags.BoolVar(&foreground, "foreground", true, "log to stderr; when false, log to stdout (the process does not detach either way)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func run(ctx context.Context, configDir, dataDir string, foreground, verbose bool) error {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if !foreground {
		log.SetOutput(os.Stdout)
	}

	inst, err := instance.New(configDir, dataDir, log)
	if err != nil {
		return fmt.Errorf("sushid: %w", err)
	}

	if err := loadConfiguredServers(inst, log); err != nil {
		return fmt.Errorf("sushid: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go logEvents(ctx, inst, log)

	runErr := make(chan error, 1)
	go func() { runErr <- inst.Run(ctx) }()

	<-ctx.Done()
	log.Info("shutting down")
	inst.Shutdown("sushid shutting down")

	return <-runErr
}

// loadConfiguredServers registers every server directory found under
// <config-dir>/servers/ (spec.md §6's persisted-state layout).
func loadConfiguredServers(inst *instance.Instance, log *logrus.Logger) error {
	entries, err := os.ReadDir(filepath.Join(inst.ConfigDir, "servers"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading servers dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if _, err := inst.AddServer(name); err != nil {
			log.WithError(err).WithField("server", name).Warn("failed to load server config")
			continue
		}
		log.WithField("server", name).Info("loaded server")
	}
	return nil
}

// logEvents drains the event bus to the structured logger until ctx is
// cancelled, standing in for the IPC transport collaborator spec.md §1
// scopes out of this repository.
func logEvents(ctx context.Context, inst *instance.Instance, log *logrus.Logger) {
	events, unsubscribe := inst.Events.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			log.WithFields(logrus.Fields{
				"server": ev.Server,
				"event":  ev.Name,
			}).Debug(ev.Fields)
		}
	}
}
