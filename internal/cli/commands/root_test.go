package commands

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemonManaged(t *testing.T) {
	root := &cobra.Command{Use: "offlinecache"}
	d := &cobra.Command{Use: "daemon"}
	start := &cobra.Command{Use: "start"}
	push := &cobra.Command{Use: "push"}
	d.AddCommand(start)
	root.AddCommand(d, push)

	assert.True(t, daemonManaged(d))
	assert.True(t, daemonManaged(start))
	assert.False(t, daemonManaged(push))
	assert.False(t, daemonManaged(root))
}

func TestReadsLocally(t *testing.T) {
	cmd := &cobra.Command{Use: "generations"}
	var local bool
	cmd.Flags().BoolVar(&local, "local", false, "")
	assert.False(t, readsLocally(cmd))

	require.NoError(t, cmd.Flags().Set("local", "true"))
	assert.True(t, readsLocally(cmd))
	assert.False(t, readsLocally(&cobra.Command{Use: "update"}))
}

func TestVersionString(t *testing.T) {
	defer func(v, c, d string) { version, commit, date = v, c, d }(version, commit, date)

	day := time.Unix(1760000000, 0).Format("2006-01-02")
	version, commit, date = "1.2.0", "abc123", "1760000000"
	assert.Equal(t, "1.2.0 ("+day+")", versionString())

	version = "1.3.0-dev"
	assert.Equal(t, "1.3.0-dev ("+day+", epoch: 1760000000, commit: abc123)", versionString())

	version, date = "1.2.0", "unknown"
	assert.Equal(t, "1.2.0 (unknown)", versionString())
}
