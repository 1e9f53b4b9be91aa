package cli

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/resonance/internal/client"
)

// messageFlags are shared by "message send" and "ritual whisper".
type messageFlags struct {
	tone      string
	suppress  bool
	condition string
	delay     time.Duration
	required  presenceFlags
}

func (m *messageFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&m.tone, "tone", "subtle_chime", "silent, vibration, subtle_chime or alert")
	cmd.Flags().BoolVar(&m.suppress, "suppress", false, "Suppress the notification sound")
	cmd.Flags().StringVar(&m.condition, "when", "", "Reveal condition: presence_match, timed_delay or on_open")
	cmd.Flags().DurationVar(&m.delay, "delay", 0, "Delay for timed_delay")
	m.required.bind(cmd, "require-")
}

func (m messageFlags) request(recipient, text string) map[string]any {
	req := map[string]any{
		"recipient":             recipient,
		"body":                  text,
		"tone":                  m.tone,
		"suppress_notification": m.suppress,
	}
	switch m.condition {
	case "":
	case "presence_match":
		req["condition"] = map[string]any{"kind": m.condition, "required": m.required.values()}
	default:
		req["condition"] = map[string]any{"kind": m.condition, "delay_ms": m.delay.Milliseconds()}
	}
	return req
}

var sendFlags messageFlags

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Send and manage quiet messages",
}

var messageSendCmd = &cobra.Command{
	Use:   "send <recipient> <body>",
	Short: "Queue a quiet message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := sendFlags.request(args[0], args[1])
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Post("/api/messages", body(req)) })
	},
}

var messagePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List messages waiting on their reveal condition",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Get("/api/messages/pending") })
	},
}

var messageDeliveredCmd = &cobra.Command{
	Use:   "delivered",
	Short: "List revealed messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Get("/api/messages/delivered") })
	},
}

var messageDeliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Run a delivery pass now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Post("/api/messages/deliver", nil) })
	},
}

var messageOpenCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Open a pending message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/api/messages/%s/open", url.PathEscape(args[0]))
		return call(cmd, func(c *client.Client) ([]byte, error) { return c.Post(path, nil) })
	},
}

var messageCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(c *client.Client) ([]byte, error) {
			return c.Delete("/api/messages/" + url.PathEscape(args[0]))
		})
	},
}

func init() {
	sendFlags.bind(messageSendCmd)

	messageCmd.AddCommand(messageSendCmd)
	messageCmd.AddCommand(messagePendingCmd)
	messageCmd.AddCommand(messageDeliveredCmd)
	messageCmd.AddCommand(messageDeliverCmd)
	messageCmd.AddCommand(messageOpenCmd)
	messageCmd.AddCommand(messageCancelCmd)
}
