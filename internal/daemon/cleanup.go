package daemon

import (
	"fmt"
	"os"
	"strings"

	"offlinecache/internal/util"
)

// CleanupResult contains the result of a cleanup operation
type CleanupResult struct {
	CleanedPidFile bool    // Whether PID file was cleaned
	CleanedSocket  bool    // Whether socket file was cleaned
	Errors         []error // Any errors encountered
}

// CleanupStale removes the PID file and socket left behind by a daemon
// that died without shutting down. Nothing is touched while a daemon
// answers on the socket.
func CleanupStale() *CleanupResult {
	result := &CleanupResult{}
	if IsDaemonRunning() {
		return result
	}

	cleaned, err := cleanupStalePidFile()
	result.CleanedPidFile = cleaned
	if err != nil {
		result.Errors = append(result.Errors, err)
	}

	cleaned, err = cleanupStaleSocket()
	result.CleanedSocket = cleaned
	if err != nil {
		result.Errors = append(result.Errors, err)
	}
	return result
}

// cleanupStalePidFile removes the PID file if its process is gone or the
// file is unreadable.
func cleanupStalePidFile() (bool, error) {
	if _, err := os.Stat(PidPath()); os.IsNotExist(err) {
		return false, nil
	}
	pid, err := GetPID()
	if err == nil && util.IsProcessRunning(pid) {
		return false, nil
	}
	if err := os.Remove(PidPath()); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove PID file: %w", err)
	}
	return true, nil
}

// cleanupStaleSocket removes the socket file if nothing listens on it.
func cleanupStaleSocket() (bool, error) {
	if _, err := os.Stat(SocketPath()); os.IsNotExist(err) {
		return false, nil
	}
	if IsDaemonRunning() {
		return false, nil
	}
	if err := os.Remove(SocketPath()); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove socket: %w", err)
	}
	return true, nil
}

// FormatCleanupResult formats a cleanup result for display
func FormatCleanupResult(result *CleanupResult) string {
	var parts []string

	if result.CleanedPidFile {
		parts = append(parts, "Cleaned up stale PID file")
	}
	if result.CleanedSocket {
		parts = append(parts, "Cleaned up stale socket file")
	}
	if len(result.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Encountered %d error(s):", len(result.Errors)))
		for _, e := range result.Errors {
			parts = append(parts, fmt.Sprintf("  - %s", e.Error()))
		}
	}

	if len(parts) == 0 {
		return "No cleanup needed"
	}
	return strings.Join(parts, "\n")
}
