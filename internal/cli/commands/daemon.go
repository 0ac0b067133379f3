package commands

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"offlinecache/internal/daemon"
	"offlinecache/internal/util"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Daemon management commands",
	Long:  `Commands for controlling the offlinecache daemon.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long: `Starts the offlinecache daemon in the background.

The daemon installs the configured cache generation and serves the site
through its front server (see "listen" in the settings).`,
	Args: cobra.NoArgs,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Long:  `Stops the running offlinecache daemon after draining pending cache writes.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Shows the daemon, its controllers, clients and auto-start settings.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

var daemonCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove files left by a crashed daemon",
	Long:  `Removes a stale PID file and socket when no daemon is running.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(daemon.FormatCleanupResult(daemon.CleanupStale()))
		return nil
	},
}

var daemonConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure daemon settings",
	Long: `Configure persistent daemon settings.

Settings are stored in ~/.offlinecache/settings.yaml. Log level changes
apply immediately; cache settings apply on "offlinecache update", and
listen, origin and storage changes on the next daemon start.

Examples:
  # Roll out a new cache generation
  offlinecache daemon config --generation ai-blog-v2
  offlinecache update

  # Serve the built site from disk
  offlinecache daemon config --site-dir ./_site

  # Enable trace logging
  offlinecache daemon config --logging trace

  # Enable auto-start on login
  offlinecache daemon config --login-start on

  # Show current configuration
  offlinecache daemon config`,
	Args: cobra.NoArgs,
	RunE: runDaemonConfig,
}

var daemonForeground bool
var daemonLogLevel string
var daemonListen string
var daemonRestart bool
var daemonSkipCleanup bool
var configLogLevel string
var configLoginStart string
var configGeneration string
var configSiteDir string
var configOrigin string
var configStorage string

func init() {
	daemonStartCmd.Flags().BoolVarP(&daemonForeground, "foreground", "f", false, "Run in foreground")
	daemonStartCmd.Flags().StringVar(&daemonLogLevel, "logging", "", "Log level override for this run")
	daemonStartCmd.Flags().MarkHidden("logging")
	daemonStartCmd.Flags().StringVar(&daemonListen, "listen", "", "Front server address override for this run")
	daemonStartCmd.Flags().BoolVar(&daemonRestart, "restart", false, "Restart daemon if already running (no confirmation)")
	daemonStartCmd.Flags().BoolVar(&daemonSkipCleanup, "skip-cleanup", false, "Skip removal of stale PID file and socket")
	daemonConfigCmd.Flags().StringVar(&configLogLevel, "logging", "", "Log level: trace, debug, info, warn, none")
	daemonConfigCmd.Flags().StringVar(&configLoginStart, "login-start", "", "Auto-start on login: on, off")
	daemonConfigCmd.Flags().StringVar(&configGeneration, "generation", "", "Cache generation name")
	daemonConfigCmd.Flags().StringVar(&configSiteDir, "site-dir", "", "Serve the site from this directory (\"-\" to proxy origin)")
	daemonConfigCmd.Flags().StringVar(&configOrigin, "origin", "", "Site origin, e.g. https://blog.example.com")
	daemonConfigCmd.Flags().StringVar(&configStorage, "storage", "", "Cache storage: sqlite, memory")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonCleanupCmd)
	daemonCmd.AddCommand(daemonConfigCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	if daemon.IsDaemonRunning() {
		pid, _ := daemon.GetPID()
		if !daemonRestart {
			fmt.Printf("Daemon already running (PID %d)\n", pid)
			fmt.Println("Use --restart to restart the daemon")
			return nil
		}
		fmt.Printf("Daemon already running (PID %d), restarting...\n", pid)
		if err := stopDaemonAndWait(); err != nil {
			return fmt.Errorf("failed to stop daemon for restart: %w", err)
		}
	}

	if !daemonSkipCleanup {
		if result := daemon.CleanupStale(); result.CleanedPidFile || result.CleanedSocket || len(result.Errors) > 0 {
			fmt.Println(daemon.FormatCleanupResult(result))
		}
	}

	if daemonForeground {
		d := daemon.New()
		d.LogLevel = daemonLogLevel
		d.Listen = daemonListen
		return d.Run()
	}

	exe, err := util.GetExecutablePath()
	if err != nil {
		return err
	}

	// The background process runs "daemon start --foreground" and inherits
	// the environment, including OFFLINECACHE_CONFIG_DIR.
	cmdArgs := []string{"daemon", "start", "--foreground", "--skip-cleanup"}
	if daemonLogLevel != "" {
		cmdArgs = append(cmdArgs, "--logging", daemonLogLevel)
	}
	if daemonListen != "" {
		cmdArgs = append(cmdArgs, "--listen", daemonListen)
	}
	if _, err := util.StartBackgroundProcess(exe, cmdArgs, os.Environ()); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Startup precaches the whole manifest before the IPC socket opens.
	if util.WaitFixed(600, 25*time.Millisecond, daemon.IsDaemonRunning) {
		pid, _ := daemon.GetPID()
		fmt.Printf("Daemon started (PID %d)\n", pid)
		return nil
	}

	return fmt.Errorf("daemon did not start, see %s", daemon.LogPath())
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	if !daemon.IsDaemonRunning() {
		fmt.Println("Daemon not running")
		daemon.CleanupStale()
		return nil
	}

	if err := stopDaemonAndWait(); err != nil {
		return err
	}

	fmt.Println("Daemon stopped")
	return nil
}

// stopDaemonAndWait stops the daemon and waits for it to fully stop,
// killing it if it does not stop in time.
func stopDaemonAndWait() error {
	pid, _ := daemon.GetPID()

	client, err := daemon.Connect()
	if err != nil {
		fmt.Println("Warning: could not connect to daemon, forcing cleanup")
		daemon.CleanupStale()
		return nil
	}

	resp, err := client.Stop()
	client.Close()
	if err != nil {
		return fmt.Errorf("stop request failed: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}

	stopped := util.WaitFixed(400, 25*time.Millisecond, func() bool {
		return !daemon.IsDaemonRunning()
	})

	if !stopped {
		fmt.Printf("Warning: daemon (PID %d) did not stop gracefully, forcing cleanup\n", pid)
		if proc, err := os.FindProcess(pid); err == nil {
			proc.Signal(syscall.SIGKILL)
		}
		time.Sleep(500 * time.Millisecond)
		if daemon.IsDaemonRunning() {
			return fmt.Errorf("failed to stop daemon (PID %d)", pid)
		}
	}

	daemon.CleanupStale()
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	settings, err := daemon.LoadGlobalSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if !daemon.IsDaemonRunning() {
		fmt.Println("Daemon: not running")
	} else {
		err := withClient(func(c *daemon.Client) error {
			resp, err := c.Status()
			if err != nil {
				return err
			}
			printStatus(os.Stdout, resp)
			return nil
		})
		if err != nil {
			return fmt.Errorf("status request failed: %w", err)
		}
	}

	fmt.Printf("Auto-start on login: %s\n", getAutoStartStatus(settings.LoginStart))
	fmt.Printf("Log level: %s\n", displayLogLevel(settings.LogLevel))
	return nil
}

// getAutoStartStatus merges the config setting with the actual state of
// the user service.
func getAutoStartStatus(loginStart bool) string {
	if !daemon.AutostartSupported() {
		return "not supported"
	}
	if !loginStart {
		return "disabled"
	}
	if !daemon.IsAutostartInstalled() {
		return "enabled (not active - not installed)"
	}
	if !daemon.IsAutostartLoaded() {
		return "enabled (not active - not loaded)"
	}
	return "enabled (active)"
}

func displayLogLevel(level string) string {
	if level == "" {
		return "none"
	}
	return level
}

func runDaemonConfig(cmd *cobra.Command, args []string) error {
	settings, err := daemon.LoadGlobalSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if cmd.Flags().NFlag() == 0 {
		fmt.Println("Current daemon configuration:")
		fmt.Printf("  Settings file: %s\n", daemon.GlobalSettingsPath())
		fmt.Printf("  Listen: %s\n", settings.Listen)
		fmt.Printf("  Origin: %s\n", settings.Origin)
		if settings.SiteDir != "" {
			fmt.Printf("  Site dir: %s\n", settings.SiteDir)
		}
		fmt.Printf("  Generation: %s\n", settings.Generation)
		fmt.Printf("  Precache: %d URL(s)\n", len(settings.Precache))
		fmt.Printf("  Storage: %s\n", settings.Storage)
		fmt.Printf("  Log level: %s\n", displayLogLevel(settings.LogLevel))
		fmt.Printf("  Auto-start on login: %s\n", getAutoStartStatus(settings.LoginStart))
		fmt.Println()
		fmt.Println("To change settings:")
		fmt.Println("  offlinecache daemon config --generation <name>")
		fmt.Println("  offlinecache daemon config --logging <level>")
		fmt.Println("  offlinecache daemon config --login-start <on|off>")
		return nil
	}

	if configLoginStart != "" {
		if err := handleLoginStartConfig(settings, configLoginStart); err != nil {
			return err
		}
	}

	changed, err := applyCacheConfig(settings)
	if err != nil {
		return err
	}
	if changed {
		if err := daemon.SaveGlobalSettings(settings); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		fmt.Println("Settings saved. Run \"offlinecache update\" to install them.")
	}

	if configLogLevel != "" {
		if err := handleLoggingConfig(settings, configLogLevel); err != nil {
			return err
		}
	}

	return nil
}

// applyCacheConfig copies the cache related flags into settings.
func applyCacheConfig(settings *daemon.GlobalSettings) (bool, error) {
	changed := false
	if configGeneration != "" {
		settings.Generation = configGeneration
		changed = true
	}
	if configSiteDir != "" {
		settings.SiteDir = configSiteDir
		if configSiteDir == "-" {
			settings.SiteDir = ""
		}
		changed = true
	}
	if configOrigin != "" {
		settings.Origin = configOrigin
		if _, err := settings.OriginURL(); err != nil {
			return false, err
		}
		changed = true
	}
	if configStorage != "" {
		mode := strings.ToLower(configStorage)
		if mode != daemon.StorageSQLite && mode != daemon.StorageMemory {
			return false, fmt.Errorf("invalid --storage value %q: must be 'sqlite' or 'memory'", configStorage)
		}
		settings.Storage = mode
		changed = true
	}
	return changed, nil
}

// handleLoginStartConfig handles the --login-start flag
func handleLoginStartConfig(settings *daemon.GlobalSettings, value string) error {
	if !daemon.AutostartSupported() {
		return daemon.ErrAutostartNotSupported
	}

	switch value {
	case "on":
		settings.LoginStart = true
		if err := daemon.InstallAutostart(); err != nil {
			return fmt.Errorf("failed to install auto-start: %w", err)
		}
		if err := daemon.LoadAutostart(); err != nil {
			// Not fatal - might already be loaded
			fmt.Printf("Note: %v\n", err)
		}
		if err := daemon.SaveGlobalSettings(settings); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		fmt.Println("Auto-start on login enabled")
		fmt.Printf("Installed at: %s\n", daemon.AutostartPath())

	case "off":
		settings.LoginStart = false
		if err := daemon.UninstallAutostart(); err != nil {
			return fmt.Errorf("failed to uninstall auto-start: %w", err)
		}
		if err := daemon.SaveGlobalSettings(settings); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		fmt.Println("Auto-start on login disabled")

	default:
		return fmt.Errorf("invalid --login-start value %q: must be 'on' or 'off'", value)
	}

	return nil
}

// handleLoggingConfig handles the --logging flag
func handleLoggingConfig(settings *daemon.GlobalSettings, value string) error {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "none": true, "": true,
	}
	normalizedLevel := value
	if normalizedLevel == "off" {
		normalizedLevel = "none"
	}
	if !validLevels[normalizedLevel] {
		return fmt.Errorf("invalid log level %q: must be one of trace, debug, info, warn, none", value)
	}

	if normalizedLevel == "none" {
		settings.LogLevel = ""
	} else {
		settings.LogLevel = normalizedLevel
	}

	if err := daemon.SaveGlobalSettings(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	fmt.Printf("Log level set to: %s\n", displayLogLevel(settings.LogLevel))

	if daemon.IsDaemonRunning() {
		err := withClient(func(c *daemon.Client) error { return c.ReloadConfig() })
		if err != nil {
			fmt.Printf("Note: Failed to notify daemon: %v\n", err)
			fmt.Println("Restart the daemon for the new log level to take effect:")
			fmt.Println("  offlinecache daemon start --restart")
		} else {
			fmt.Println("Daemon notified to reload configuration")
		}
	}

	return nil
}
