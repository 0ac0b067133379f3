//go:build darwin

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// AutostartPath returns the path to the LaunchAgent plist file
func AutostartPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "LaunchAgents", autostartLabel+".plist")
}

// InstallAutostart writes the LaunchAgent plist.
// The daemon reads its settings on startup.
func InstallAutostart() error {
	return writeAutostart(AutostartPath(), "launchagent", launchAgentTemplate)
}

// UninstallAutostart unloads and removes the LaunchAgent plist
func UninstallAutostart() error {
	if IsAutostartLoaded() {
		_ = UnloadAutostart()
	}
	err := os.Remove(AutostartPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove plist: %w", err)
	}
	return nil
}

// LoadAutostart loads the LaunchAgent using launchctl
func LoadAutostart() error {
	output, err := exec.Command("launchctl", "load", AutostartPath()).CombinedOutput()
	if err != nil {
		return fmt.Errorf("launchctl load failed: %w: %s", err, string(output))
	}
	return nil
}

// UnloadAutostart unloads the LaunchAgent using launchctl
func UnloadAutostart() error {
	output, err := exec.Command("launchctl", "unload", AutostartPath()).CombinedOutput()
	if err != nil {
		return fmt.Errorf("launchctl unload failed: %w: %s", err, string(output))
	}
	return nil
}

// IsAutostartLoaded checks if the LaunchAgent is currently loaded
func IsAutostartLoaded() bool {
	return exec.Command("launchctl", "list", autostartLabel).Run() == nil
}

// AutostartSupported returns true on macOS
func AutostartSupported() bool {
	return true
}
