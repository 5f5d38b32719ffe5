package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/songscout/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "songscout",
	Short: "Crowd-sourced song discovery pipeline",
	Long:  "Mines \"tip of my tongue\" forum threads for songs people were searching for, extracts identifications via Claude, and builds a searchable catalog.",
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
