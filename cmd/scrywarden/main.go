// Command scrywarden runs the collect and investigate processes of the
// anomaly-detection pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "scrywarden",
	Short: "scrywarden - behavioral anomaly detection over message streams",
	Long: `scrywarden runs two cooperating processes against a shared
Postgres store: collect ingests messages through configured transports and
scores them against behavioral profiles, and investigate claims windows of
scored events, runs them through an analyzer, and ships confirmed findings.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "scrywarden.yml",
		"path to the config file or a directory containing scrywarden.yml")
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(investigateCmd)
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "no .env file loaded: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// shutdownContext returns a context cancelled on SIGINT/SIGTERM, mirroring
// the ctx.Done()-driven worker loops the teacher's queue workers use in
// place of a threading.Event.
func shutdownContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
