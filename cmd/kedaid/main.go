package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	pgDSN      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kedaid",
		Short: "Kedai cache service",
		Long:  "Run the kedai cache layer: bounded store, Redis tier, warming and health endpoints",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&pgDSN, "pg-dsn", "", "Postgres DSN for usage statistics")
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(warmCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
