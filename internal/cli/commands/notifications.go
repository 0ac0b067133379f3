package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"offlinecache/internal/daemon"
)

var pushCmd = &cobra.Command{
	Use:   "push [text]",
	Short: "Deliver a push message",
	Long: `Delivers a push event to the active controller, which shows a
notification. Without text the configured default body is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload *string
		if len(args) > 0 {
			payload = &args[0]
		}
		return withClient(func(c *daemon.Client) error {
			n, err := c.Push(payload)
			if err != nil {
				return err
			}
			printNotification(os.Stdout, *n)
			return nil
		})
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List shown notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *daemon.Client) error {
			list, err := c.Notifications()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No notifications")
				return nil
			}
			for _, n := range list {
				printNotification(os.Stdout, n)
			}
			return nil
		})
	},
}

var clickCmd = &cobra.Command{
	Use:   "click <id>",
	Short: "Click a notification",
	Long:  `Clicks a shown notification: it is closed and the site root is opened or focused.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *daemon.Client) error {
			resp, err := c.ClickNotification(args[0])
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(clickCmd)
}
