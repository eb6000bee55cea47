package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/antoniostano/voicebot/internal/config"
	"github.com/antoniostano/voicebot/internal/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "voicebot",
		Short:         "Multilingual vehicle sales voicebot",
		Long:          "voicebot answers customer questions about two- and four-wheelers by text or voice in Indian languages.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "log level (trace|debug|info|warn|error); overrides LOG_LEVEL")
	root.PersistentFlags().String("log-format", "", "log format (json|console); overrides LOG_FORMAT")

	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSayCmd(),
		newLanguagesCmd(),
		newPerfCmd(),
	)
	return root
}

// loadConfig reads the environment, applies persistent flag overrides and
// configures logging.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	observability.SetupLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	return cfg, nil
}
