package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docchat/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "docchat",
	Short:        "Ask questions about your PDF documents",
	Long:         `docchat indexes PDF (and optionally text) documents and answers questions about them with a language model, either over HTTP (serve) or in the terminal (chat).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/docchat/config.yaml if not provided)")
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
