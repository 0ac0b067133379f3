// Copyright 2026 OfflineCache Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package daemon

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// ErrAutostartNotSupported is returned on platforms without a user
// service manager integration.
var ErrAutostartNotSupported = errors.New("auto-start is only supported on macOS and Linux")

const autostartLabel = "com.offlinecache.daemon"

// launchd plist for macOS
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Executable}}</string>
        <string>daemon</string>
        <string>start</string>
        <string>--foreground</string>
    </array>
{{- if .ConfigDir}}
    <key>EnvironmentVariables</key>
    <dict>
        <key>{{.ConfigEnv}}</key>
        <string>{{.ConfigDir}}</string>
    </dict>
{{- end}}
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>
    <key>StandardErrorPath</key>
    <string>{{.LogPath}}</string>
</dict>
</plist>
`

// systemd user unit for Linux
const systemdUnitTemplate = `[Unit]
Description=offlinecache daemon ({{.Label}})
After=network.target

[Service]
Type=simple
ExecStart={{.Executable}} daemon start --foreground
{{- if .ConfigDir}}
Environment={{.ConfigEnv}}={{.ConfigDir}}
{{- end}}
Restart=on-failure
StandardOutput=append:{{.LogPath}}
StandardError=append:{{.LogPath}}

[Install]
WantedBy=default.target
`

type autostartConfig struct {
	Label      string
	Executable string
	LogPath    string
	ConfigEnv  string
	ConfigDir  string // set only when overridden through the environment
}

// renderAutostart renders a service definition for the current
// executable.
func renderAutostart(name, text string) ([]byte, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable path: %w", err)
	}
	return renderAutostartFor(name, text, exe)
}

func renderAutostartFor(name, text, exe string) ([]byte, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	config := autostartConfig{
		Label:      autostartLabel,
		Executable: exe,
		LogPath:    LogPath(),
		ConfigEnv:  envConfigDir,
		ConfigDir:  os.Getenv(envConfigDir),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// writeAutostart writes a rendered service definition to path.
func writeAutostart(path, name, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	data, err := renderAutostart(name, text)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// IsAutostartInstalled checks if the service definition exists
func IsAutostartInstalled() bool {
	path := AutostartPath()
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// GetAutostartStatus returns a human-readable status of the service
func GetAutostartStatus() string {
	if !AutostartSupported() {
		return "not supported on this platform"
	}
	if !IsAutostartInstalled() {
		return "not installed"
	}
	if IsAutostartLoaded() {
		return "installed and loaded"
	}
	return "installed but not loaded"
}
