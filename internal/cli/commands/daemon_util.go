package commands

import (
	"context"
	"fmt"

	"offlinecache/internal/daemon"
	"offlinecache/internal/util"
)

// StartDaemonIfNeeded starts the daemon in the background if not running.
// If notify is true, prints a message to inform the user.
// Returns nil if daemon is already running or successfully started.
func StartDaemonIfNeeded(notify bool) error {
	cfg := util.DaemonStartConfig{
		Notify:     notify,
		PollConfig: util.FastPollConfig(),
	}

	return util.StartDaemonIfNeeded(
		context.Background(),
		cfg,
		daemon.IsDaemonRunning,
		[]string{"daemon", "start"},
	)
}

// withClient connects to the running daemon and calls fn with the client.
func withClient(fn func(c *daemon.Client) error) error {
	if !daemon.IsDaemonRunning() {
		return fmt.Errorf("daemon is not running")
	}
	client, err := daemon.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer client.Close()
	return fn(client)
}
