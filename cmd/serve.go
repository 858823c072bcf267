package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Ludea/Sparus/cli"
	"github.com/Ludea/Sparus/internal/daemon/engine"
	"github.com/Ludea/Sparus/internal/daemon/pidfile"
	"github.com/Ludea/Sparus/internal/daemon/server"
	"github.com/Ludea/Sparus/logging"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/launcher"
	"github.com/Ludea/Sparus/pkg/paths"
	"github.com/Ludea/Sparus/version"
	"github.com/spf13/cobra"
)

// NewServeCmd returns the daemon command the shell talks to.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the launcher daemon for the shell",
		Long: `Run the launcher daemon in the foreground. It serves plugin artifacts on
loopback, runs one best-effort plugin sync, reloads the configuration
when it changes and exposes the shell API on a unix socket.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("socket", "", "Socket path (default: the per-user runtime dir)")

	cmd.AddCommand(newServeStopCmd())
	cmd.AddCommand(newServeStatusCmd())
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.NewLogger("sparusd")
	pidPath := paths.PidFilePath()
	sockPath, _ := cmd.Flags().GetString("socket")
	if sockPath == "" {
		sockPath = paths.SocketPath()
	}

	cfg, err := cli.LoadConfig(cli.GetOptions(cmd))
	if err != nil {
		return err
	}

	if err := pidfile.Acquire(pidPath); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if err := pidfile.Release(pidPath); err != nil && !os.IsNotExist(err) {
			logger.Errorf("Failed to release pidfile: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bus := events.NewBus(256)
	l, err := launcher.New(ctx, launcher.Options{Config: cfg, Emitter: bus})
	if err != nil {
		return err
	}
	defer l.Close(context.Background())

	eng := engine.New(l, bus, logger)
	eng.Register(engine.ArtifactService(l))
	eng.Register(engine.PluginSyncService(l))
	if cfg.Path() != "" {
		eng.Register(engine.ConfigWatchService(cfg.Path(), l, bus, logger))
	}

	srv := server.New(logger)
	srv.SetEngine(eng)
	srv.SetRunningInfo(&server.RunningInfo{
		Version:    version.GetInfo().Version,
		ConfigFile: cfg.Path(),
		PluginsDir: l.PluginsDir(),
		StartedAt:  time.Now(),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Start(ctx)
	}()

	go func() {
		<-ctx.Done()
		logger.Info("Received stop signal")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	logger.WithField("pid", os.Getpid()).Info("Starting daemon")
	serveErr := srv.ListenAndServe(sockPath)
	cancel()
	wg.Wait()
	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}

func newServeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

func newServeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, map[string]interface{}{
					"running": running,
					"pid":     pid,
					"socket":  paths.SocketPath(),
				})
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Running (PID: %d)\nSocket: %s\n", pid, paths.SocketPath())
			return nil
		},
	}
}
