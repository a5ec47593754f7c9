// Package cmd implements the gridprobe command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gridprobe/gridprobe/internal/config"
	"github.com/gridprobe/gridprobe/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "gridprobe",
	Short: "Dispatch abstract reasoning puzzles to LLM providers and score the answers",
	Long: `gridprobe sends grid-transformation puzzles to configured LLM providers,
streams the model's partial output as it arrives, and validates the predicted
output grids against the puzzle's ground truth.

Run 'gridprobe serve' for the HTTP API or 'gridprobe analyze' for a one-shot
analysis from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .gridprobe.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (auto, text, json)")
}

// loadConfig builds the effective configuration from file, environment and
// flags, validates it, and returns a logger alongside. The third return
// value is the config file actually read, empty when running on defaults.
func loadConfig() (*config.Config, *logging.Logger, string, error) {
	v := viper.New()
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	loader := config.NewLoaderWithViper(v)
	if cfgFile != "" {
		loader = loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, "", err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	return cfg, logger, loader.ConfigFile(), nil
}
