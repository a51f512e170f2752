package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buildflow/invoicepipe/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "invoicepipe",
	Short: "Construction invoice processing pipeline",
	Long:  "Extracts structured data from uploaded invoices with dual strategies, matches vendors, classifies line items to cost codes, and drives the review workflow.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
