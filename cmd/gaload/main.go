package main

import (
	"fmt"
	"os"

	"github.com/dataside/gaload/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gaload",
	Short: "gaload - idempotent loader for web-analytics sessions and hits",
	Long: `gaload ingests web-analytics session and hit records from bulk snapshots
and incremental JSON batches, reconciles referential gaps between them, and
loads the result into a relational store idempotently.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .gaload/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`gaload {{.Version}}
Build time: ` + BuildTime + `
`)

	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(incrementalCmd)
	rootCmd.AddCommand(initdbCmd)
	rootCmd.AddCommand(statusCmd)
}
