package cli

import (
	"github.com/spf13/cobra"

	"github.com/lazypower/resonance/internal/client"
)

var (
	breathPresence  presenceFlags
	whisperFlags    messageFlags
	objectTo        []string
	broadcastEnergy float64
)

var ritualCmd = &cobra.Command{
	Use:   "ritual",
	Short: "Run interaction rituals",
}

// startRitual posts req to the ritual's start route.
func startRitual(cmd *cobra.Command, mode string, req any) error {
	return call(cmd, func(c *client.Client) ([]byte, error) { return c.Post("/api/rituals/"+mode, body(req)) })
}

var ritualBreathCmd = &cobra.Command{
	Use:   "breath",
	Short: "Breathe in a new presence",
	RunE: func(cmd *cobra.Command, args []string) error {
		return startRitual(cmd, "breath", breathPresence.values())
	},
}

var ritualWhisperCmd = &cobra.Command{
	Use:   "whisper <recipient> <body>",
	Short: "Whisper a quiet message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return startRitual(cmd, "whisper", whisperFlags.request(args[0], args[1]))
	},
}

var ritualObjectCmd = &cobra.Command{
	Use:   "object <object-id>",
	Short: "Share presence through an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return startRitual(cmd, "object", map[string]any{"object_id": args[0], "to": objectTo})
	},
}

var ritualContractCmd = &cobra.Command{
	Use:   "contract <contract-id>",
	Short: "Activate a contract against the local presence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return startRitual(cmd, "contract_activation", map[string]string{"contract_id": args[0]})
	},
}

var ritualBroadcastCmd = &cobra.Command{
	Use:   "broadcast <pulse-type>",
	Short: "Broadcast a pulse to everyone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return startRitual(cmd, "pulse_broadcast", map[string]any{"type": args[0], "energy": broadcastEnergy})
	},
}

var ritualEndCmd = &cobra.Command{
	Use:   "end",
	Short: "Complete the running ritual",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Post("/api/rituals/end", nil) })
	},
}

var ritualCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the running ritual",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Get("/api/rituals/current") })
	},
}

var ritualHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List finished rituals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Get("/api/rituals/history") })
	},
}

func init() {
	breathPresence.bind(ritualBreathCmd, "")
	whisperFlags.bind(ritualWhisperCmd)
	ritualObjectCmd.Flags().StringSliceVar(&objectTo, "to", nil, "Recipients (default: everyone)")
	ritualBroadcastCmd.Flags().Float64VarP(&broadcastEnergy, "energy", "e", 0.5, "Initial energy in [0,1]")

	ritualCmd.AddCommand(ritualBreathCmd)
	ritualCmd.AddCommand(ritualWhisperCmd)
	ritualCmd.AddCommand(ritualObjectCmd)
	ritualCmd.AddCommand(ritualContractCmd)
	ritualCmd.AddCommand(ritualBroadcastCmd)
	ritualCmd.AddCommand(ritualEndCmd)
	ritualCmd.AddCommand(ritualCurrentCmd)
	ritualCmd.AddCommand(ritualHistoryCmd)
}
