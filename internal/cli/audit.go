package cli

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lazypower/resonance/internal/client"
)

var (
	auditLimit    int
	auditContract string
)

var auditCmd = &cobra.Command{
	Use:       "audit <pulses|deliveries|contracts|rituals>",
	Short:     "Read the persisted audit log",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"pulses", "deliveries", "contracts", "rituals"},
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{"limit": {strconv.Itoa(auditLimit)}}
		if auditContract != "" {
			q.Set("contract", auditContract)
		}
		path := "/api/audit/" + args[0] + "?" + q.Encode()
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Get(path) })
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire pulses and contracts and deliver ready messages now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Post("/api/sweep", nil) })
	},
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 50, "Maximum number of rows")
	auditCmd.Flags().StringVar(&auditContract, "contract", "", "Only events of this contract")
}
