package daemon

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"offlinecache/internal/artifacts"
	"offlinecache/internal/clients"
	"offlinecache/internal/controller"
)

// Storage modes.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// envConfigDir overrides the config directory.
const envConfigDir = "OFFLINECACHE_CONFIG_DIR"

// getConfigDir returns the config directory path.
// Uses OFFLINECACHE_CONFIG_DIR env var if set, otherwise defaults to
// ~/.offlinecache. Computed on each call so tests can isolate it.
func getConfigDir() string {
	if dir := os.Getenv(envConfigDir); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".offlinecache")
}

// daemonName returns the fixed daemon name "daemon".
func daemonName() string {
	return "daemon"
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// SocketPath returns the Unix socket path
func SocketPath() string {
	return filepath.Join(getConfigDir(), daemonName()+".sock")
}

// PidPath returns the PID file path
func PidPath() string {
	return filepath.Join(getConfigDir(), daemonName()+".pid")
}

// LogPath returns the log file path.
// Uses OFFLINECACHE_DAEMON_LOG env var if set, otherwise config_dir/daemon.log.
func LogPath() string {
	if envPath := os.Getenv("OFFLINECACHE_DAEMON_LOG"); envPath != "" {
		return envPath
	}
	return filepath.Join(getConfigDir(), daemonName()+".log")
}

// LockPath returns the lock file path
func LockPath() string {
	return filepath.Join(getConfigDir(), daemonName()+".lock")
}

// GlobalSettingsPath returns the settings file path
func GlobalSettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// CacheFilePath returns the path of the persistent cache storage.
func CacheFilePath() string {
	return filepath.Join(getConfigDir(), "cache.db")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// InitConfigDir creates the config directory and writes the default
// settings file when none exists.
func InitConfigDir() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	settingsPath := GlobalSettingsPath()
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, artifacts.GlobalSettings, 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}

// NotificationSettings configures push notification presentation.
type NotificationSettings struct {
	Title       string `yaml:"title"`
	DefaultBody string `yaml:"default_body"`
	Icon        string `yaml:"icon"`
	Badge       string `yaml:"badge"`
}

// GlobalSettings represents the daemon settings file.
type GlobalSettings struct {
	Listen               string               `yaml:"listen"`                  // Front server address
	Origin               string               `yaml:"origin"`                  // Site origin
	SiteDir              string               `yaml:"site_dir"`                // Serve the site from disk instead of origin
	Generation           string               `yaml:"generation"`              // Current cache generation
	Precache             []string             `yaml:"precache"`                // Precache manifest
	OfflinePath          string               `yaml:"offline_path"`            // Offline document
	NoCache              []string             `yaml:"no_cache"`                // gitignore-style paths never cached
	SkipWaitingOnInstall *bool                `yaml:"skip_waiting_on_install"` // default: true
	PrecacheAttempts     uint                 `yaml:"precache_attempts"`       // default: 1
	Storage              string               `yaml:"storage"`                 // sqlite or memory
	ClientTTL            time.Duration        `yaml:"client_ttl"`              // Idle time before a page counts as closed
	OpenCommand          string               `yaml:"open_command"`            // Opener for new windows
	Notification         NotificationSettings `yaml:"notification"`
	LoginStart           bool                 `yaml:"login_start"`
	LogLevel             string               `yaml:"log_level"`           // trace, debug, info, warn, off
	DaemonBusyTimeout    int                  `yaml:"daemon_busy_timeout"` // SQLite busy_timeout for daemon (ms), 0 = use default
	CLIBusyTimeout       int                  `yaml:"cli_busy_timeout"`    // SQLite busy_timeout for CLI (ms), 0 = use default
}

// loadDefaultGlobalSettings parses default settings from embedded artifact.
func loadDefaultGlobalSettings() GlobalSettings {
	var settings GlobalSettings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &settings); err != nil {
		panic("failed to parse embedded global settings: " + err.Error())
	}
	return settings
}

// LoadGlobalSettings loads ~/.offlinecache/settings.yaml on top of the
// embedded defaults. Always reads from file to get the latest config.
func LoadGlobalSettings() (*GlobalSettings, error) {
	settings := loadDefaultGlobalSettings()
	data, err := os.ReadFile(GlobalSettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &settings, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", GlobalSettingsPath(), err)
	}
	return &settings, nil
}

// SaveGlobalSettings saves the settings to ~/.offlinecache/settings.yaml
func SaveGlobalSettings(settings *GlobalSettings) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	header := []byte("# offlinecache daemon settings\n# See: offlinecache daemon config --help\n\n")
	return os.WriteFile(GlobalSettingsPath(), append(header, data...), 0600)
}

// LoggingEnabled returns whether logging is enabled.
func (s *GlobalSettings) LoggingEnabled() bool {
	level := strings.ToLower(s.LogLevel)
	return level != "" && level != "none" && level != "off"
}

// OriginURL parses the configured origin.
func (s *GlobalSettings) OriginURL() (*url.URL, error) {
	u, err := url.Parse(s.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", s.Origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid origin %q: scheme must be http or https", s.Origin)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid origin %q: missing host", s.Origin)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// EffectiveClientTTL returns the client TTL or the registry default.
func (s *GlobalSettings) EffectiveClientTTL() time.Duration {
	if s.ClientTTL <= 0 {
		return clients.DefaultTTL
	}
	return s.ClientTTL
}

// ControllerConfig translates the settings into a validated controller
// configuration.
func (s *GlobalSettings) ControllerConfig() (controller.Config, error) {
	origin, err := s.OriginURL()
	if err != nil {
		return controller.Config{}, err
	}
	cfg := controller.DefaultConfig(origin)
	if s.Generation != "" {
		cfg.Generation = s.Generation
	}
	if s.Precache != nil {
		cfg.Precache = append([]string(nil), s.Precache...)
	}
	if s.OfflinePath != "" {
		cfg.OfflinePath = s.OfflinePath
	}
	cfg.NoCache = append([]string(nil), s.NoCache...)
	if s.SkipWaitingOnInstall != nil {
		cfg.SkipWaitingOnInstall = *s.SkipWaitingOnInstall
	}
	if s.PrecacheAttempts > 0 {
		cfg.FetchAttempts = s.PrecacheAttempts
	}

	n := s.Notification
	if n.Title != "" {
		cfg.Notification.Title = n.Title
	}
	if n.DefaultBody != "" {
		cfg.Notification.DefaultBody = n.DefaultBody
	}
	if n.Icon != "" {
		cfg.Notification.Icon = n.Icon
	}
	if n.Badge != "" {
		cfg.Notification.Badge = n.Badge
	}

	if err := cfg.Validate(); err != nil {
		return controller.Config{}, err
	}
	return cfg, nil
}
