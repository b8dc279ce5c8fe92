// godlyd is the terminal-multiplexer daemon: it manages long-lived PTY
// sessions and brokers I/O between them and short-lived GUI/CLI clients over
// a local named-pipe IPC channel.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alangmartini/godlyd/internal/config"
	"github.com/alangmartini/godlyd/internal/jobobject"
	"github.com/alangmartini/godlyd/internal/server"
	"github.com/alangmartini/godlyd/internal/singleinstance"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "godlyd",
		Short:   "Terminal multiplexer daemon",
		Version: Version,
	}
	rootCmd.PersistentFlags().String("instance", "", "instance name, selects the pipe suffix and pid file (default \"godly\")")
	rootCmd.PersistentPreRunE = setupLogging
	rootCmd.RunE = runStart

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		RunE:  runStart,
	}
	startCmd.Flags().Bool("detached-child", false, "run in the foreground as the relaunched detached daemon")
	startCmd.Flags().MarkHidden("detached-child")
	rootCmd.AddCommand(startCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon for this instance is running",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the daemon for this instance to shut down",
		RunE:  runStop,
	}
	rootCmd.AddCommand(stopCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if os.Getenv("GODLY_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if instance, _ := cmd.Flags().GetString("instance"); instance != "" {
		cfg.Instance = instance
	}
	return cfg, nil
}

// runStart launches the daemon. Unless NoDetach is set, it first relaunches
// itself detached from the console under a breakaway job object, so the
// daemon survives the launching shell exiting, then exits 0 immediately —
// mirroring how a Windows service wrapper would be invoked from a CLI. The
// relaunched copy is started with --detached-child and runs in the foreground.
func runStart(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if detached, _ := cmd.Flags().GetBool("detached-child"); detached {
		cfg.NoDetach = true
	}

	if !cfg.NoDetach {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolving executable path: %w", err)
		}
		startArgs := []string{"start", "--instance", cfg.Instance, "--detached-child"}
		if err := jobobject.SpawnDetachedBreakaway(logger, self, startArgs...); err != nil {
			return fmt.Errorf("spawning detached daemon: %w", err)
		}
		logger.Info("daemon launched detached", "instance", cfg.Instance)
		return nil
	}

	logger.Info("starting daemon", "instance", cfg.Instance, "version", Version)

	srv := server.New(cfg, logger)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		srv.RequestShutdown()
		cancel()
	}()

	if err := srv.Run(); err != nil {
		return fmt.Errorf("daemon exited: %w", err)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pidPath, err := config.PidPath(cfg.Instance)
	if err != nil {
		return fmt.Errorf("resolving pid path: %w", err)
	}

	pid := singleinstance.ReadPidFile(pidPath)
	if pid <= 0 {
		fmt.Printf("godlyd (%s): not running\n", cfg.Instance)
		return nil
	}
	fmt.Printf("godlyd (%s): running, pid %d, pipe %s\n", cfg.Instance, pid, cfg.PipePath())
	return nil
}

// runStop signals the daemon process recorded in its pid file to shut
// down gracefully; the daemon's own signal handler drains in-flight
// clients via RequestShutdown rather than exiting immediately.
func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pidPath, err := config.PidPath(cfg.Instance)
	if err != nil {
		return fmt.Errorf("resolving pid path: %w", err)
	}

	pid := singleinstance.ReadPidFile(pidPath)
	if pid <= 0 {
		fmt.Printf("godlyd (%s): not running\n", cfg.Instance)
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding daemon process %d: %w", pid, err)
	}
	// Windows only supports os.Interrupt and os.Kill for Process.Signal;
	// the daemon's signal handler treats either as a graceful-shutdown
	// request via RequestShutdown.
	if err := proc.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("signaling daemon process %d: %w", pid, err)
	}
	fmt.Printf("godlyd (%s): stop signal sent to pid %d\n", cfg.Instance, pid)
	return nil
}
