package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fentz26/questline/internal/tui"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive TUI",
	RunE:  runTUI,
}

// daemonStartTimeout bounds how long tui waits for a spawned daemon.
const daemonStartTimeout = 5 * time.Second

func runTUI(cmd *cobra.Command, args []string) error {
	if !isDaemonRunning() {
		fmt.Println("questline daemon not running, starting it in the background")
		if err := spawnDaemon(); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
	}

	if err := tui.New(apiAddr).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func isDaemonRunning() bool {
	health, err := CheckHealth()
	return err == nil && health.OK
}

// spawnDaemon runs "quest daemon" detached, logging next to the config
// file, and waits for its health endpoint.
func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	logPath := filepath.Join(filepath.Dir(configPath), "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	daemon := exec.Command(exe, "daemon", "--config", configPath)
	daemon.Stdout = logFile
	daemon.Stderr = logFile
	detach(daemon)

	if err := daemon.Start(); err != nil {
		return err
	}
	// The daemon is not waited on; release its process handle.
	daemon.Process.Release()

	deadline := time.Now().Add(daemonStartTimeout)
	for time.Now().Before(deadline) {
		if isDaemonRunning() {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("daemon started but API not reachable at %s (see %s)", apiAddr, logPath)
}
