package cli

import (
	"net/url"

	"github.com/spf13/cobra"

	"github.com/lazypower/resonance/internal/client"
)

var (
	setPresence presenceFlags
	decideTo    string
)

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "Show or set presence",
}

var presenceGetCmd = &cobra.Command{
	Use:   "get [user]",
	Short: "Show a user's presence (default: local user)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/presence"
		if len(args) == 1 {
			path += "/" + url.PathEscape(args[0])
		}
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Get(path) })
	},
}

var presenceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known presence",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Get("/api/presences") })
	},
}

var presenceSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the local presence",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) {
			return c.Put("/api/presence", body(setPresence.values()))
		})
	},
}

var decideCmd = &cobra.Command{
	Use:   "decide <pulse-type>",
	Short: "Show how a pulse would be delivered to a receiver",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{"type": {args[0]}}
		if decideTo != "" {
			q.Set("receiver", decideTo)
		}
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Get("/api/decide?" + q.Encode()) })
	},
}

func init() {
	setPresence.bind(presenceSetCmd, "")
	decideCmd.Flags().StringVar(&decideTo, "receiver", "", "Receiving user (default: local user)")

	presenceCmd.AddCommand(presenceGetCmd)
	presenceCmd.AddCommand(presenceListCmd)
	presenceCmd.AddCommand(presenceSetCmd)
}
