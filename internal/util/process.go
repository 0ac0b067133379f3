package util

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// StartBackgroundProcess starts a detached background process.
// The process will continue running after the parent exits.
func StartBackgroundProcess(executable string, args []string, env []string) (*os.Process, error) {
	cmd := exec.Command(executable, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if env != nil {
		cmd.Env = env
	} else {
		cmd.Env = os.Environ()
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // new session, detached from the terminal
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	// Reap in the background so the child never lingers as a zombie.
	go cmd.Wait()

	return cmd.Process, nil
}

// OpenCommand runs a configured opener such as "xdg-open" with target
// appended. The command line is split on whitespace.
func OpenCommand(commandLine, target string) error {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return fmt.Errorf("empty open command")
	}
	args := append(fields[1:], target)
	_, err := StartBackgroundProcess(fields[0], args, nil)
	return err
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 only checks existence on Unix.
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// GetExecutablePath returns the path to the current executable.
func GetExecutablePath() (string, error) {
	return os.Executable()
}
