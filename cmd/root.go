package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"visionproxy/internal/config"
	"visionproxy/internal/logger"
)

var version = "1.0.0"

var (
	appConfig    *config.Config
	appConfigErr error
)

var rootCmd = &cobra.Command{
	Use:   "visionproxy",
	Short: "visionproxy - forward base64 images to Google Cloud Vision OCR",
	Long: `visionproxy exposes a single HTTP endpoint that accepts a base64-encoded
image, forwards it to the Google Cloud Vision images:annotate API for text
detection and relays the result to the caller.

Run "visionproxy serve" to start the HTTP server, or "visionproxy annotate"
to send a local image through the same pipeline.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("visionproxy executed")

		_ = cmd.Help()
	},
}

// Execute runs the root command with the configuration loaded by main.
func Execute(cfg *config.Config, cfgErr error) {
	log := logger.WithComponent("cmd")

	appConfig, appConfigErr = cfg, cfgErr

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

// requireConfig returns the loaded configuration or the reason it is missing.
func requireConfig() (*config.Config, error) {
	if appConfigErr != nil {
		return nil, appConfigErr
	}
	if appConfig == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return appConfig, nil
}
