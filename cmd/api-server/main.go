// Package main запускает сервис закупок: HTTP API, рассылку RFP и опрос почтового ящика.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath - YAML с настройками; переменные PROCUREMENT_* имеют приоритет
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "api-server",
	Short: "Procurement RFP workflow service",
	Long: `api-server turns free-text purchase requests into RFPs, sends them to vendors
by email, records vendor replies as proposals and ranks them.

Configuration is read from an optional YAML file and PROCUREMENT_* environment
variables (PROCUREMENT_DATABASE_URL, PROCUREMENT_LLM_API_KEY, ...).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
