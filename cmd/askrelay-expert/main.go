// Command askrelay-expert runs an expert's profile lifecycle and
// prompt-handling loop against a configured relay pool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "askrelay-expert",
	Short: "Run an askrelay expert node",
	Long: `askrelay-expert answers prompts for sale over a pool of nostr-style
relays: it publishes an ExpertProfile, bids on matching Asks, prices and
answers Prompts once payment is proven, and replies inline or streamed
depending on answer size.`,
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
	// - serve.go: serveCmd
	// - keygen.go: keygenCmd
}
