// Command askrelay-client discovers experts for a question, prompts
// the best bid, pays its quote, and prints the reply.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "askrelay-client",
	Short: "Ask a question on the askrelay marketplace",
	Long: `askrelay-client runs the client side of the protocol: it publishes
an Ask, collects bids over a discovery window, prompts the cheapest
bidder, pays the quote it returns, and prints the reply.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (default: environment-based lookup)")

	// Subcommands registered in their own files:
	// - ask.go: askCmd
	// - keygen.go: keygenCmd
}
