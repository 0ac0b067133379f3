//go:build !darwin && !linux

package daemon

// AutostartPath returns empty string on unsupported platforms
func AutostartPath() string {
	return ""
}

// InstallAutostart returns an error on unsupported platforms
func InstallAutostart() error {
	return ErrAutostartNotSupported
}

// UninstallAutostart returns an error on unsupported platforms
func UninstallAutostart() error {
	return ErrAutostartNotSupported
}

// LoadAutostart returns an error on unsupported platforms
func LoadAutostart() error {
	return ErrAutostartNotSupported
}

// UnloadAutostart returns an error on unsupported platforms
func UnloadAutostart() error {
	return ErrAutostartNotSupported
}

// IsAutostartLoaded returns false on unsupported platforms
func IsAutostartLoaded() bool {
	return false
}

// AutostartSupported returns false on unsupported platforms
func AutostartSupported() bool {
	return false
}
