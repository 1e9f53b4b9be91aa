package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/config"
	"github.com/lazypower/resonance/internal/logging"
)

var (
	cfgPath   string
	serverURL string
	verbose   bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "resonance",
	Short: "Presence-gated signals between people",
	Long: "Resonance brokers pulses, quiet messages and presence contracts between users, " +
		"delivering each one only as loudly as the receiver's presence allows.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		path := cfgPath
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
		}
		var err error
		if cfg, err = config.Load(path); err != nil {
			return err
		}
		if logger, err = logging.New(cfg.Log, verbose); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (default ~/.resonance/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL (or set RESONANCE_URL; default from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(presenceCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(pulseCmd)
	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(contractCmd)
	rootCmd.AddCommand(ritualCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(sweepCmd)
}

func stderr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}
