// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paper-fetch CLI: rate-limited
// search and download of academic documents from arXiv, IEEE Xplore,
// 3GPP FTP mirrors, and USPTO.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-fetch/internal/secrets"
	"github.com/pdiddy/paper-fetch/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the paper-fetch CLI.
var rootCmd = &cobra.Command{
	Use:   "paper-fetch",
	Short: "Rate-limited search and download of academic documents",
	Long: `paper-fetch searches and downloads documents from four sources: arXiv,
IEEE Xplore, 3GPP FTP mirrors, and USPTO patents. Every source enforces a
jittered cooldown between requests so batch runs stay polite to the
upstream servers.

Each operation is a subcommand: search, count, and download. Search
results can be saved as JSON and fed back into download.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paper-fetch.yaml or ~/.config/paper-fetch/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paper-fetch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paper-fetch"))
		}
	}

	viper.SetEnvPrefix("PAPER_FETCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// buildConfig assembles the immutable runtime config: built-in defaults,
// overlaid with the config file and environment, with the USPTO key
// falling back to the secrets directory.
func buildConfig() types.Config {
	cfg := types.DefaultConfig()

	if v := viper.GetDuration("timeout"); v > 0 {
		cfg.Timeout = v
	}
	if v := viper.GetString("user_agent"); v != "" {
		cfg.UserAgent = v
	}
	if v := viper.GetString("output_dir"); v != "" {
		cfg.OutputDir = v
	}
	if v := viper.GetInt("search_limit"); v > 0 {
		cfg.SearchLimit = v
	}
	if viper.IsSet("convert_to_md") {
		cfg.ConvertToMarkdown = viper.GetBool("convert_to_md")
	}
	if viper.IsSet("3gpp.convert_to_pdf") {
		cfg.ThreeGPP.ConvertToPDF = viper.GetBool("3gpp.convert_to_pdf")
	}
	if v := viper.GetString("history_path"); v != "" {
		cfg.HistoryPath = v
	}

	readWaitRange("rate.search_wait", &cfg.Rate.SearchWait)
	readWaitRange("rate.download_wait", &cfg.Rate.DownloadWait)
	readWaitRange("3gpp_rate.search_wait", &cfg.ThreeGPPRate.SearchWait)
	readWaitRange("3gpp_rate.download_wait", &cfg.ThreeGPPRate.DownloadWait)

	cfg.Keys.USPTO = viper.GetString("api_keys.uspto")
	if cfg.Keys.USPTO == "" {
		cfg.Keys.USPTO = loadedSecrets["uspto-api-key"]
	}

	return cfg
}

func readWaitRange(key string, r *types.WaitRange) {
	if viper.IsSet(key + ".min") {
		r.Min = viper.GetFloat64(key + ".min")
	}
	if viper.IsSet(key + ".max") {
		r.Max = viper.GetFloat64(key + ".max")
	}
}

// newLogger builds the CLI logger: console writer on stderr, debug level
// behind --verbose.
func newLogger(cmd *cobra.Command) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
