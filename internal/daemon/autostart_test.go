package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderLaunchAgent(t *testing.T) {
	t.Setenv(envConfigDir, "")
	data, err := renderAutostartFor("launchagent", launchAgentTemplate, "/usr/local/bin/offlinecache")
	require.NoError(t, err)

	plist := string(data)
	assert.Contains(t, plist, "<string>com.offlinecache.daemon</string>")
	assert.Contains(t, plist, "<string>/usr/local/bin/offlinecache</string>")
	assert.Contains(t, plist, "<string>--foreground</string>")
	assert.Contains(t, plist, "<string>"+LogPath()+"</string>")
	assert.NotContains(t, plist, "EnvironmentVariables")
}

func TestRenderLaunchAgentConfigDir(t *testing.T) {
	t.Setenv(envConfigDir, "/tmp/oc-test")
	data, err := renderAutostartFor("launchagent", launchAgentTemplate, "/bin/offlinecache")
	require.NoError(t, err)
	assert.Contains(t, string(data), "<key>OFFLINECACHE_CONFIG_DIR</key>")
	assert.Contains(t, string(data), "<string>/tmp/oc-test</string>")
}

func TestRenderSystemdUnit(t *testing.T) {
	t.Setenv(envConfigDir, "/tmp/oc-test")
	t.Setenv("OFFLINECACHE_DAEMON_LOG", "")
	data, err := renderAutostartFor("systemd", systemdUnitTemplate, "/usr/bin/offlinecache")
	require.NoError(t, err)

	unit := string(data)
	assert.Contains(t, unit, "ExecStart=/usr/bin/offlinecache daemon start --foreground\n")
	assert.Contains(t, unit, "Environment=OFFLINECACHE_CONFIG_DIR=/tmp/oc-test\n")
	assert.Contains(t, unit, "StandardOutput=append:/tmp/oc-test/")
	assert.Contains(t, unit, "WantedBy=default.target")
}

func TestAutostartStatusWithoutInstall(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	assert.False(t, IsAutostartInstalled())
	if AutostartSupported() {
		assert.Equal(t, "not installed", GetAutostartStatus())
	}
}
