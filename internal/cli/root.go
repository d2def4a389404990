// Package cli is the podcaster command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apresai/newsletter-podcaster/internal/config"
	"github.com/apresai/newsletter-podcaster/internal/observability"
	"github.com/apresai/newsletter-podcaster/internal/tts"
)

var Version = "dev"

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "podcaster",
	Short:         "Turn newsletter markdown into a two-host podcast",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "podcaster %s\n", Version)
	},
}

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List available voices for the speech providers",
	RunE:  runVoices,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.AddCommand(versionCmd, voicesCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads --config and applies --log-level.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if flagLogLevel != "" {
		cfg.Telemetry.LogLevel = flagLogLevel
	}
	return cfg, nil
}

// commandLogger logs JSON to stderr and becomes the process default.
func commandLogger(level string) *slog.Logger {
	logger := observability.NewLogger(os.Stderr, level)
	slog.SetDefault(logger)
	return logger
}

func runVoices(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	providers := []struct {
		name  string
		label string
	}{
		{"gemini", "GEMINI"},
		{"cloud", "GOOGLE CLOUD TTS (Chirp 3 HD)"},
	}

	fmt.Fprintln(out, "\nAvailable voices:")
	for _, p := range providers {
		voices, err := tts.AvailableVoices(p.name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n  %s\n", p.label)
		fmt.Fprintf(out, "  %s\n", strings.Repeat("─", 50))
		fmt.Fprintf(out, "  %-14s %-8s %s\n", "ID", "GENDER", "DESCRIPTION")
		for _, v := range voices {
			fmt.Fprintf(out, "  %-14s %-8s %s\n", v.ID, v.Gender, v.Description)
		}
	}
	fmt.Fprintln(out)
	return nil
}
