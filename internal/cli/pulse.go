package cli

import (
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/resonance/internal/client"
)

var (
	emitEnergy float64
	emitTo     []string
	emitTTL    time.Duration
	emitNote   string
	pulseView  string
)

var pulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Emit and inspect pulses",
}

var pulseEmitCmd = &cobra.Command{
	Use:   "emit <type>",
	Short: "Emit a pulse from the local user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{
			"type":   args[0],
			"energy": emitEnergy,
			"to":     emitTo,
			"ttl_ms": emitTTL.Milliseconds(),
			"note":   emitNote,
		}
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Post("/api/pulses", body(req)) })
	},
}

var pulseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pulses (active, emitted or received)",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/pulses?" + url.Values{"view": {pulseView}}.Encode()
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Get(path) })
	},
}

var pulseResonanceCmd = &cobra.Command{
	Use:   "resonance",
	Short: "Show the current resonance level",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Get("/api/resonance") })
	},
}

var pulseCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Drop expired pulses",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Post("/api/pulses/cleanup", nil) })
	},
}

func init() {
	pulseEmitCmd.Flags().Float64VarP(&emitEnergy, "energy", "e", 0.5, "Initial energy in [0,1]")
	pulseEmitCmd.Flags().StringSliceVar(&emitTo, "to", nil, "Recipients (default: everyone)")
	pulseEmitCmd.Flags().DurationVar(&emitTTL, "ttl", 0, "Time to live (default from server)")
	pulseEmitCmd.Flags().StringVar(&emitNote, "note", "", "Free-form note")
	pulseListCmd.Flags().StringVar(&pulseView, "view", "active", "active, emitted or received")

	pulseCmd.AddCommand(pulseEmitCmd)
	pulseCmd.AddCommand(pulseListCmd)
	pulseCmd.AddCommand(pulseResonanceCmd)
	pulseCmd.AddCommand(pulseCleanupCmd)
}
