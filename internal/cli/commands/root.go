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

package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"offlinecache/internal/daemon"
	"offlinecache/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion records build info from ldflags for --version.
func SetVersion(v, c, d string) {
	version, commit, date = v, c, d
	rootCmd.Version = versionString()
}

// versionString renders the build date from its epoch; -dev builds also
// carry the raw epoch and commit.
func versionString() string {
	built := date
	if ts, err := strconv.ParseInt(date, 10, 64); err == nil {
		built = time.Unix(ts, 0).Format("2006-01-02")
	}
	if strings.HasSuffix(version, "-dev") {
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, built, date, commit)
	}
	return fmt.Sprintf("%s (%s)", version, built)
}

var rootCmd = &cobra.Command{
	Use:   "offlinecache",
	Short: "Offline cache controller for a static site",
	Long: `offlinecache runs a local daemon in front of a site and keeps it
usable without a network.

Open the front URL printed by "offlinecache daemon status" in a browser.
Every GET is tried against the network first and the answer is copied
into the current cache generation. With the network gone, visited pages
come from the cache and navigations fall back to the offline page.

New generations are rolled out with "update" and retired once no page
is controlled by the old one, or at once with "skip-waiting".`,
	PersistentPreRunE: prepareCLI,
}

// daemonManaged reports whether cmd is the daemon command tree, which
// starts and stops the daemon itself.
func daemonManaged(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "daemon" {
			return true
		}
	}
	return false
}

// readsLocally reports whether cmd was asked to read the cache file
// without the daemon.
func readsLocally(cmd *cobra.Command) bool {
	f := cmd.Flags().Lookup("local")
	return f != nil && f.Changed
}

func prepareCLI(cmd *cobra.Command, args []string) error {
	switch {
	case cmd.Name() == "help", cmd.Name() == "completion":
		return nil
	case daemonManaged(cmd):
		return nil
	}

	if err := daemon.InitConfigDir(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	// --local opens the cache file next to a running daemon.
	if settings, err := daemon.LoadGlobalSettings(); err == nil {
		storage.SetConfigBusyTimeouts(settings.DaemonBusyTimeout, settings.CLIBusyTimeout)
	}
	if readsLocally(cmd) || daemon.IsDaemonRunning() {
		return nil
	}
	// Control commands report their own error when the daemon is absent.
	if err := StartDaemonIfNeeded(true); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not auto-start daemon: %v\n", err)
	}
	return nil
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("offlinecache version {{.Version}}\n")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
