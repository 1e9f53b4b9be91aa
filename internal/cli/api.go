package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/resonance/internal/client"
)

// api returns a client for the configured server. --server wins, then
// RESONANCE_URL, then the listen address from config.
func api() *client.Client {
	url := serverURL
	if url == "" && os.Getenv("RESONANCE_URL") == "" && cfg != nil {
		url = "http://" + cfg.ListenAddr()
	}
	return client.New(url)
}

// printJSON writes an API response indented. Non-JSON bodies are written as is.
func printJSON(cmd *cobra.Command, data []byte) error {
	out := cmd.OutOrStdout()
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = out.Write(data)
		return err
	}
	_, err := fmt.Fprintln(out, buf.String())
	return err
}

// call runs fn against the server and prints its response.
func call(cmd *cobra.Command, fn func(c *client.Client) ([]byte, error)) error {
	data, err := fn(api())
	if err != nil {
		return err
	}
	return printJSON(cmd, data)
}

// body marshals v for a request.
func body(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal request: %v", err))
	}
	return b
}

// presenceFlags are the four presence dimensions as command flags.
type presenceFlags struct {
	mode, tone, focus, social string
}

func (p *presenceFlags) bind(cmd *cobra.Command, prefix string) {
	cmd.Flags().StringVar(&p.mode, prefix+"mode", "calm", "Presence mode")
	cmd.Flags().StringVar(&p.tone, prefix+"tone", "neutral", "Emotional tone")
	cmd.Flags().StringVar(&p.focus, prefix+"focus", "medium", "Focus level")
	cmd.Flags().StringVar(&p.social, prefix+"social", "alone", "Social context")
}

func (p presenceFlags) values() map[string]string {
	return map[string]string{"mode": p.mode, "tone": p.tone, "focus": p.focus, "social": p.social}
}
