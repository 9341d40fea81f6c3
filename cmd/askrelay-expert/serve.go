package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nostrask/askrelay/config"
	"github.com/nostrask/askrelay/event"
	"github.com/nostrask/askrelay/expert"
	"github.com/nostrask/askrelay/internal/logger"
	"github.com/nostrask/askrelay/payment"
	"github.com/nostrask/askrelay/relay"
)

var (
	identityHex  string
	priceSats    int64
	answerFormat string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Publish a profile and answer prompts",
	Long: `serve publishes this expert's profile to its configured relays, bids
on every matching Ask, quotes a fixed price for every Prompt, and answers
once payment is verified with a canned reply. It is meant as a runnable
reference expert, not a production answer engine: wire Callbacks.OnPromptPaid
to a real model or knowledge base for anything beyond smoke-testing the
protocol.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&identityHex, "identity", "", "hex-encoded private key (default: $ASKRELAY_EXPERT_IDENTITY, else ephemeral)")
	serveCmd.Flags().Int64Var(&priceSats, "price-sats", 100, "flat price quoted for every prompt")
	serveCmd.Flags().StringVar(&answerFormat, "answer", "thanks for your question, here is a canned reply", "canned answer text")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.NewDefaultLogger()
	log.SetLevel(parseLevel(cfg.Logging.Level))

	identity, err := loadIdentity(identityHex)
	if err != nil {
		return err
	}
	log.Info("expert identity", logger.String("pubkey", identity.PublicKeyHex()))

	pool := relay.NewPool(cfg.Relay.URLs, log)
	defer pool.Close()

	wallet := payment.NewMemoryWallet()

	callbacks := expert.Callbacks{
		OnAsk: func(ask *event.Ask) (*expert.BidOffer, error) {
			return &expert.BidOffer{
				EstimateSat:  uint64(priceSats),
				EstimateText: "flat-rate reply",
			}, nil
		},
		OnPromptPrice: func(prompt *event.Prompt, content []byte) (expert.Price, error) {
			return expert.Price{AmountSats: priceSats, Description: "flat rate"}, nil
		},
		OnPromptPaid: func(prompt *event.Prompt, quote *event.Quote, content []byte) (expert.Answer, error) {
			payload, err := encodeAnswer(answerFormat)
			if err != nil {
				return expert.Answer{}, err
			}
			return expert.Answer{Payload: payload}, nil
		},
	}

	srv := expert.New(pool, identity, wallet, callbacks, log)
	srv.Name = cfg.Expert.Name
	srv.About = cfg.Expert.About
	srv.Topics = cfg.Expert.Topics
	srv.Relays = cfg.Expert.Relays
	if srv.Name == "" {
		srv.Name = "askrelay-expert"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("serving", logger.Any("relays", cfg.Relay.URLs), logger.Any("topics", srv.Topics))
	return srv.Run(ctx)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func parseLevel(level string) logger.Level {
	switch level {
	case "debug":
		return logger.DebugLevel
	case "warn":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}

func encodeAnswer(text string) ([]byte, error) {
	return json.Marshal(text)
}
