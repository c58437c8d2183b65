package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/neur0map/yinx/internal/daemon"
	"github.com/neur0map/yinx/internal/observability"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the capture daemon",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the capture daemon in the foreground",
	Long: `Run the capture daemon in the foreground. Use your service
manager (systemd, runit) or shell job control to background it.`,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, stalePID, err := daemon.CheckPIDFile(cfg.Daemon.PIDFile)
	if err != nil {
		return err
	}
	if running {
		return fmt.Errorf("daemon already running with PID %d", stalePID)
	}
	if stalePID != 0 {
		cmd.PrintErrf("removing stale PID file for dead process %d\n", stalePID)
		if err := daemon.RemovePIDFile(cfg.Daemon.PIDFile); err != nil {
			return err
		}
	}

	logger := observability.NewLogger(os.Stderr, cfg.Daemon.LogLevel, cfg.Daemon.LogFormat)

	ctx := cmd.Context()
	tracer, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := observability.ShutdownTracing(ctx, tracer); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	pid := os.Getpid()
	if err := daemon.WritePIDFile(cfg.Daemon.PIDFile, pid); err != nil {
		return err
	}
	defer daemon.RemovePIDFile(cfg.Daemon.PIDFile)

	server, err := daemon.NewServer(cfg, pid, logger)
	if err != nil {
		return err
	}

	// SIGHUP re-reads the config file and swaps the pattern registry.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			fresh, err := loadConfig()
			if err != nil {
				logger.Error("config reload failed", "error", err)
				continue
			}
			if err := server.ReloadPatterns(fresh); err != nil {
				logger.Error("pattern reload failed", "error", err)
			}
		}
	}()

	return server.Run(ctx)
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := daemon.NewClient(cfg.Daemon.SocketPath)
	if err := client.Shutdown(); err == nil {
		if err := waitForExit(cfg.Daemon.PIDFile, 10*time.Second); err != nil {
			return err
		}
		color.Green("daemon stopped")
		return nil
	}

	// Socket unreachable; fall back to signalling the PID.
	running, pid, err := daemon.CheckPIDFile(cfg.Daemon.PIDFile)
	if err != nil {
		return err
	}
	if !running {
		cmd.Println("daemon is not running")
		return daemon.RemovePIDFile(cfg.Daemon.PIDFile)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal daemon process %d: %w", pid, err)
	}
	if err := waitForExit(cfg.Daemon.PIDFile, 10*time.Second); err != nil {
		return err
	}
	color.Green("daemon stopped")
	return nil
}

// waitForExit polls until the daemon process is gone or the timeout
// expires.
func waitForExit(pidFile string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		running, _, err := daemon.CheckPIDFile(pidFile)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}
