package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/coda/internal/config"
	"github.com/spf13/cobra"
)

const pidFile = "codad.pid"

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the coda daemon in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := daemonAddr(cmd)
		if err != nil {
			return err
		}
		c := newClient(addr)
		out := cmd.OutOrStdout()
		if c.healthy() {
			fmt.Fprintln(out, "✓ Daemon is already running")
			return nil
		}

		codaDir, err := config.EnsureCodaDir()
		if err != nil {
			return fmt.Errorf("setup coda directory: %w", err)
		}
		bin, err := findDaemonBinary()
		if err != nil {
			return fmt.Errorf("find daemon binary: %w", err)
		}

		proc := exec.Command(bin)
		proc.Dir = codaDir
		configureDaemonProcess(proc)
		if err := proc.Start(); err != nil {
			return fmt.Errorf("start daemon: %w", err)
		}

		fmt.Fprint(out, "Starting daemon...")
		for range 30 {
			time.Sleep(100 * time.Millisecond)
			if c.healthy() {
				fmt.Fprintln(out, " ✓")
				fmt.Fprintf(out, "Daemon running at %s\n", addr)
				return nil
			}
			fmt.Fprint(out, ".")
		}
		fmt.Fprintln(out, " ✗")
		return fmt.Errorf("daemon failed to start (check logs with 'coda logs')")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the coda daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := daemonAddr(cmd)
		if err != nil {
			return err
		}
		c := newClient(addr)
		out := cmd.OutOrStdout()
		if !c.healthy() {
			fmt.Fprintln(out, "Daemon is not running")
			return nil
		}

		codaDir, err := config.CodaDir()
		if err != nil {
			return err
		}
		pid, err := readPID(filepath.Join(codaDir, pidFile))
		if err != nil {
			return err
		}
		process, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("find process: %w", err)
		}

		fmt.Fprint(out, "Stopping daemon...")
		if err := process.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("send signal: %w", err)
		}
		for range 50 {
			time.Sleep(100 * time.Millisecond)
			if !c.healthy() {
				fmt.Fprintln(out, " ✓")
				return nil
			}
			fmt.Fprint(out, ".")
		}
		fmt.Fprintln(out, " ✗")
		return fmt.Errorf("daemon did not stop gracefully")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := daemonAddr(cmd)
		if err != nil {
			return err
		}
		c := newClient(addr)
		out := cmd.OutOrStdout()
		if !c.healthy() {
			fmt.Fprintln(out, "Status: stopped")
			return nil
		}

		var status struct {
			Status  string   `json:"status"`
			Version string   `json:"version"`
			Uptime  string   `json:"uptime"`
			Types   []string `json:"types"`
			Storage string   `json:"storage"`
			Redis   bool     `json:"redis"`
			Queue   bool     `json:"queue"`
			Watcher bool     `json:"watcher"`
		}
		if err := c.get("/v1/status", &status); err != nil {
			return fmt.Errorf("get status: %w", err)
		}

		fmt.Fprintf(out, "Status:    %s\n", status.Status)
		fmt.Fprintf(out, "Version:   %s\n", status.Version)
		fmt.Fprintf(out, "Uptime:    %s\n", status.Uptime)
		fmt.Fprintf(out, "Storage:   %s (redis: %s)\n", status.Storage, onOff(status.Redis))
		fmt.Fprintf(out, "Queue:     %s\n", onOff(status.Queue))
		fmt.Fprintf(out, "Watcher:   %s\n", onOff(status.Watcher))
		fmt.Fprintf(out, "Types:     %s\n", strings.Join(status.Types, ", "))
		fmt.Fprintf(out, "Address:   %s\n", addr)
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent daemon logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		codaDir, err := config.CodaDir()
		if err != nil {
			return err
		}
		f, err := os.Open(filepath.Join(codaDir, "logs", "codad.log"))
		if os.IsNotExist(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "No log file found. Start the daemon first.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		return tail(f, cmd.OutOrStdout(), 4096)
	},
}

// tail prints the whole lines in the last n bytes of f
func tail(f *os.File, w io.Writer, n int64) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	offset := max(info.Size()-n, 0)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	r := bufio.NewReader(f)
	if offset > 0 {
		_, _ = r.ReadString('\n')
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
	return scanner.Err()
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID: %w", err)
	}
	return pid, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// findDaemonBinary locates codad on PATH or next to this binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("codad"); err == nil {
		return path, nil
	}
	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "codad")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	for _, path := range []string{"/usr/local/bin/codad", "./codad", "./cmd/codad/codad"} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("codad binary not found (build with 'go build ./cmd/codad')")
}
