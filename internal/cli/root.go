// Package cli wires the command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// NewRootCmd creates the root command for telcobridge
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "telcobridge",
		Short: "telcobridge - telecom OAuth token broker",
		Long: `telcobridge fronts a fleet of telecom providers with a single OAuth-style
token endpoint. It routes each request to the right provider by subscriber
number prefix, exchanges the caller's authorization code for a provider
token, and returns a broker-signed token wrapping the result. Tokens are
cached so repeated requests are served without another provider round trip.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: ./configs/telcobridge.yaml)")

	// Add subcommands
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
