package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/livecaption/wsbroadcast/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(classify(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "wsbroadcast",
		Short: "Broadcast text to WebSocket clients on one or more ports",
		Long: `wsbroadcast runs a pool of WebSocket broadcast servers.

Each configured port gets its own server and event loop. Every client
connecting on any path receives every message broadcast to that port.

  • One event loop per port, pinned to an OS thread
  • Drop-on-overflow backpressure per connection
  • Prometheus metrics and health checks on the admin address`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile, cmd.Flags().Changed("env-file"))
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading WSBROADCAST_* variables")

	rootCmd.AddCommand(
		serveCmd(),
		listenCmd(),
		configCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return errors.New("E301").
			WithDetail(fmt.Sprintf("Cannot read env file %s", path)).
			Wrap(err)
	}
	if err := godotenv.Load(path); err != nil {
		return errors.New("E106").Wrap(err)
	}
	return nil
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}
