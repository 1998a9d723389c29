package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	mlog "github.com/haowjy/meridian-ollama-go/internal/log"
)

// Global flag values.
var (
	verbose   bool
	quiet     bool
	noColor   bool
	logFormat string
)

// rootCmd is the base command for meridian-generate.
var rootCmd = &cobra.Command{
	Use:   "meridian-generate",
	Short: "Stream completions from an Ollama-compatible generate service",
	Long: `meridian-generate sends prompts to an Ollama-compatible /api/generate
endpoint, assembles the streamed NDJSON reply and retries failed attempts.
The conversation context returned by the service can be saved and passed
back on the next call to continue a conversation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if noColor {
			color.NoColor = true
		}
		if err := mlog.Setup(cmd.ErrOrStderr(), verbose, quiet, logFormat); err != nil {
			return exitError(ExitInvalidArgs, "meridian-generate: %v", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", mlog.FormatText, "log format: text or json")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
