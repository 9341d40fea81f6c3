package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nostrask/askrelay/client"
	"github.com/nostrask/askrelay/config"
	"github.com/nostrask/askrelay/event"
	"github.com/nostrask/askrelay/internal/logger"
	"github.com/nostrask/askrelay/payment"
	"github.com/nostrask/askrelay/relay"
)

var (
	topicsFlag    string
	discoveryWait time.Duration
	maxAmount     int64
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Publish an ask, pick the cheapest bid, and print the reply",
	Long: `ask discovers bidding experts, prompts the cheapest one, pays its
quote, and prints the reply. Payment uses payment.MemoryWallet, a fake
that mints its own preimage per invoice string rather than talking to a
real Lightning node. askrelay-expert quotes stand-in invoice strings
rather than BOLT-11 invoices, so against it ask stops at quote
validation with a PaymentRejected error, even when both sides share one
wallet instance in-process.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVar(&topicsFlag, "topics", "", "comma-separated topics (required)")
	askCmd.Flags().DurationVar(&discoveryWait, "discovery-wait", 0, "how long to collect bids (default: config client.discovery_wait)")
	askCmd.Flags().Int64Var(&maxAmount, "max-sats", 0, "refuse quotes above this amount (default: config payment.max_amount_sats)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]
	topics := splitTopics(topicsFlag)
	if len(topics) == 0 {
		return fmt.Errorf("ask: --topics is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.NewDefaultLogger()

	pool := relay.NewPool(cfg.Relay.URLs, log)
	defer pool.Close()

	c := client.New(pool)
	c.DiscoveryWait = cfg.Client.DiscoveryWait
	c.ProfileFetchWin = cfg.Client.ProfileFetchWin
	c.QuoteWait = cfg.Client.QuoteWait
	c.ReplyWait = cfg.Client.ReplyWait
	c.MaxAmountSats = cfg.Payment.MaxAmountSats
	if maxAmount > 0 {
		c.MaxAmountSats = maxAmount
	}

	wait := discoveryWait
	if wait <= 0 {
		wait = c.DiscoveryWait
	}

	ctx, cancel := context.WithTimeout(context.Background(), wait+cfg.Client.ReplyWait+cfg.Client.QuoteWait)
	defer cancel()

	fmt.Fprintf(os.Stderr, "discovering experts for %d seconds...\n", int(wait.Seconds()))
	bids, err := c.FindExperts(ctx, question, topics, wait)
	if err != nil {
		return fmt.Errorf("find experts: %w", err)
	}
	if len(bids) == 0 {
		return fmt.Errorf("no experts bid on this ask")
	}

	sort.Slice(bids, func(i, j int) bool { return bids[i].EstimateSat < bids[j].EstimateSat })
	best := bids[0]
	fmt.Fprintf(os.Stderr, "selected expert %s, estimate %d sats (%s)\n", best.ExpertPub, best.EstimateSat, best.EstimateText)

	wallet := payment.NewMemoryWallet()
	onQuote := func(quote *event.Quote) (bool, error) {
		if quote.Error != "" {
			return false, fmt.Errorf("expert quote error: %s", quote.Error)
		}
		return payment.DefaultOnQuote(quote.Invoices, c.MaxAmountSats)
	}
	onPay := func(quote *event.Quote) (*payment.Proof, error) {
		return payment.DefaultOnPay(ctx, wallet, quote.Invoices)
	}

	replies, err := c.AskExpert(ctx, best, []byte(question), onQuote, onPay)
	if err != nil {
		return fmt.Errorf("ask expert: %w", err)
	}
	for _, r := range replies {
		if r.Error != "" {
			fmt.Printf("error: %s\n", r.Error)
			continue
		}
		fmt.Println(string(r.Payload))
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func splitTopics(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
