package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"offlinecache/internal/controller"
	"offlinecache/internal/daemon"
)

var skipWaitingCmd = &cobra.Command{
	Use:   "skip-waiting",
	Short: "Activate the waiting controller now",
	Long: `Posts SKIP_WAITING to the waiting controller so it replaces the
active one without waiting for open pages to close.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *daemon.Client) error {
			resp, err := c.PostMessage(controller.MessageSkipWaiting)
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Install a controller from the current settings",
	Long: `Re-reads the settings file and installs a new controller version.

The new generation is precached first; if that fails the active
controller keeps serving. With skip_waiting_on_install the new version
activates at once and evicts the old generation.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *daemon.Client) error {
			resp, err := c.Update()
			if resp != nil {
				printController(os.Stdout, "Active", resp.Active)
				printController(os.Stdout, "Waiting", resp.Waiting)
			}
			if err != nil {
				return fmt.Errorf("update failed: %w", err)
			}
			fmt.Println(resp.Message)
			return nil
		})
	},
}

var networkCmd = &cobra.Command{
	Use:       "network online|offline",
	Short:     "Simulate losing or regaining the network",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"online", "offline"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var offline bool
		switch args[0] {
		case "online":
		case "offline":
			offline = true
		default:
			return fmt.Errorf("invalid network state %q: must be 'online' or 'offline'", args[0])
		}
		return withClient(func(c *daemon.Client) error {
			resp, err := c.SetOffline(offline)
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync [tag]",
	Short: "Fire a background sync",
	Long: `Fires a background sync on the active controller. The default tag,
sync-posts, refreshes every precached URL from the network.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tag := controller.SyncPosts
		if len(args) > 0 {
			tag = args[0]
		}
		return withClient(func(c *daemon.Client) error {
			resp, err := c.Sync(tag)
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(skipWaitingCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(networkCmd)
	rootCmd.AddCommand(syncCmd)
}
