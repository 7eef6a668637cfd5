package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tripmatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tripmatch",
	Short: "Travel document normalization and trip matching",
	Long:  "Extracts travel items from confirmation emails via Claude, normalizes dates and locations, and assigns each document to an own trip, a travel group member's trip, or a new trip.",
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
