package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uhyunpark/proxygov/params"
	"github.com/uhyunpark/proxygov/pkg/util"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "govnode",
	Short: "Sequencer for a multisig-governed upgradeable proxy",
	Long: `govnode runs a single-sequencer ledger hosting an upgradeable proxy,
its storage implementations and the multisig that schedules upgrades.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to a .env file (default: ./.env if present)")
}

func loadConfig() (params.Config, error) {
	cfg := params.LoadFromEnv(envFile)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg params.Config) (*zap.Logger, error) {
	if cfg.Node.LogFile != "" {
		return util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	}
	return util.NewLogger(cfg.Node.Verbose)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
