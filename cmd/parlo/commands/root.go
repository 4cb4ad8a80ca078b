package commands

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "parlo",
	Short: "Voice-assistant backend with a streaming tool-calling orchestrator",
	Long: `parlo - a voice-assistant backend.

The server drives multi-round LLM/tool exchanges per user turn, streams
incremental events over SSE or websocket, and decomposes the reply into
speakable segments for low-latency speech synthesis.

Configuration is a YAML file (see --config); secrets may reference
environment variables as $VAR, loaded from the environment or a local
.env file.

Examples:
  # Run the backend
  parlo serve --config parlo.yaml

  # Talk to the orchestrator from the terminal
  parlo chat --config parlo.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "parlo.yaml", "config file path")
}

func initEnv() {
	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
