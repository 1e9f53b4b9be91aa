package cli

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/resonance/internal/client"
)

var (
	contractParties  []string
	contractRequired presenceFlags
	contractTerms    string
	contractDeadline time.Duration
	contractStatus   string
	signParty        string
)

var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Create and drive presence contracts",
}

var contractCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pending contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{
			"parties":  contractParties,
			"required": contractRequired.values(),
			"terms":    contractTerms,
		}
		if contractDeadline > 0 {
			req["deadline"] = time.Now().Add(contractDeadline).UTC()
		}
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Post("/api/contracts", body(req)) })
	},
}

var contractListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contracts",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/contracts"
		if contractStatus != "" {
			path += "?" + url.Values{"status": {contractStatus}}.Encode()
		}
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Get(path) })
	},
}

var contractShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) {
			return c.Get("/api/contracts/" + url.PathEscape(args[0]))
		})
	},
}

var contractHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show a contract's event history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) {
			return c.Get("/api/contracts/" + url.PathEscape(args[0]) + "/history")
		})
	},
}

var contractSignCmd = &cobra.Command{
	Use:   "sign <id>",
	Short: "Sign a contract (default party: local user)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]string{"party": signParty}
		return call(cmd, func(c *client.Client) ([]byte, error) {
			return c.Post("/api/contracts/"+url.PathEscape(args[0])+"/sign", body(req))
		})
	},
}

// contractActionCmd builds a sub-command for a body-less lifecycle action.
func contractActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/contracts/%s/%s", url.PathEscape(args[0]), action)
			return call(cmd, func(c *client.Client) ([]byte, error) { return c.Post(path, nil) })
		},
	}
}

func init() {
	contractCreateCmd.Flags().StringSliceVarP(&contractParties, "party", "p", nil, "Signing parties (repeatable)")
	contractRequired.bind(contractCreateCmd, "")
	contractCreateCmd.Flags().StringVar(&contractTerms, "terms", "", "Agreement text")
	contractCreateCmd.Flags().DurationVar(&contractDeadline, "expires-in", 0, "Expire the contract if still open after this long")
	contractListCmd.Flags().StringVar(&contractStatus, "status", "", "Only contracts in this status")
	contractSignCmd.Flags().StringVar(&signParty, "party", "", "Signing party")

	contractCmd.AddCommand(contractCreateCmd)
	contractCmd.AddCommand(contractListCmd)
	contractCmd.AddCommand(contractShowCmd)
	contractCmd.AddCommand(contractHistoryCmd)
	contractCmd.AddCommand(contractSignCmd)
	contractCmd.AddCommand(contractActionCmd("activate", "Activate against the local presence"))
	contractCmd.AddCommand(contractActionCmd("suspend", "Suspend if the local presence no longer matches"))
	contractCmd.AddCommand(contractActionCmd("reactivate", "Reactivate a suspended contract"))
	contractCmd.AddCommand(contractActionCmd("complete", "Mark a contract completed"))
	contractCmd.AddCommand(contractActionCmd("cancel", "Cancel a contract"))
}
