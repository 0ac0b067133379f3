//go:build linux

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const systemdUnitName = "offlinecache.service"

// AutostartPath returns the path to the systemd user unit
func AutostartPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "systemd", "user", systemdUnitName)
}

// InstallAutostart writes the systemd user unit and reloads the user
// manager.
func InstallAutostart() error {
	if err := writeAutostart(AutostartPath(), "systemd", systemdUnitTemplate); err != nil {
		return err
	}
	return systemctl("daemon-reload")
}

// UninstallAutostart disables and removes the systemd user unit
func UninstallAutostart() error {
	if IsAutostartLoaded() {
		_ = UnloadAutostart()
	}
	err := os.Remove(AutostartPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove unit: %w", err)
	}
	return systemctl("daemon-reload")
}

// LoadAutostart enables the unit for login
func LoadAutostart() error {
	return systemctl("enable", systemdUnitName)
}

// UnloadAutostart disables the unit
func UnloadAutostart() error {
	return systemctl("disable", systemdUnitName)
}

// IsAutostartLoaded checks if the unit is enabled
func IsAutostartLoaded() bool {
	return exec.Command("systemctl", "--user", "is-enabled", "--quiet", systemdUnitName).Run() == nil
}

// AutostartSupported returns true when systemctl is available
func AutostartSupported() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}

func systemctl(args ...string) error {
	output, err := exec.Command("systemctl", append([]string{"--user"}, args...)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %v failed: %w: %s", args, err, string(output))
	}
	return nil
}
