package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/q-controller/imagestore/src/pkg/config"
	"github.com/q-controller/imagestore/src/pkg/logging"
	"github.com/spf13/cobra"
)

var cfg *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "imagestored",
	Short:         "Keeps a local collection of images and relays them to an upload endpoint",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configPathErr := cmd.Flags().GetString("config")
		if configPathErr != nil {
			return fmt.Errorf("failed to get config: %w", configPathErr)
		}

		loaded, loadErr := config.Load(configPath)
		if loadErr != nil {
			return fmt.Errorf("wrong config: %w", loadErr)
		}
		cfg = loaded

		if cfg.LogLevel != "" {
			slog.SetDefault(logging.CreateLogger(logging.ParseLevel(cfg.LogLevel, logging.LevelFromEnv())))
		}
		slog.Debug("Read config", "images", cfg.ImagesPath(), "endpoint", cfg.Endpoint)
		return nil
	},
}

func Execute() {
	slog.SetDefault(logging.CreateLogger(logging.LevelFromEnv()))
	err := rootCmd.Execute()
	if err != nil {
		slog.Error("failed to execute command", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML config file")
}
