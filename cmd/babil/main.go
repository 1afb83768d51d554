// Package main provides the babil CLI: the wiki server and its maintenance
// commands.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"babil/internal/config"
	"babil/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// configFile is set by the --config flag.
	configFile string

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "babil",
	Short: "Babil is a small wiki that reads its page titles aloud",
	Long: `Babil is a wiki with append-only page histories, markdown and org
markup, search, a recent changes feed and spoken page titles.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./babil.yaml or /etc/babil/babil.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(pageCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "babil", version)
	},
}

// initConfig loads the configuration and builds the logger.
func initConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
