package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a file, trying YAML first and
// falling back to JSON since either can be handed to an operator
// without renaming the file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("config: parse file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes configuration to path, choosing JSON or YAML by
// the file extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

// setDefaults fills in every unset nested config and every zero-value
// field with the concrete defaults named in the protocol's
// concurrency and resource model.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Relay == nil {
		cfg.Relay = &RelayConfig{}
	}
	if len(cfg.Relay.URLs) == 0 {
		cfg.Relay.URLs = []string{"wss://relay.askrelay.example"}
	}
	if cfg.Relay.DialTimeout == 0 {
		cfg.Relay.DialTimeout = 10 * time.Second
	}
	if cfg.Relay.PublishTimeout == 0 {
		cfg.Relay.PublishTimeout = 5 * time.Second
	}

	if cfg.Client == nil {
		cfg.Client = &ClientConfig{}
	}
	if cfg.Client.DiscoveryWait == 0 {
		cfg.Client.DiscoveryWait = 10 * time.Second
	}
	if cfg.Client.ProfileFetchWin == 0 {
		cfg.Client.ProfileFetchWin = 5 * time.Second
	}
	if cfg.Client.QuoteWait == 0 {
		cfg.Client.QuoteWait = 10 * time.Second
	}
	if cfg.Client.ReplyWait == 0 {
		cfg.Client.ReplyWait = 60 * time.Second
	}
	if cfg.Client.StreamThreshold == 0 {
		cfg.Client.StreamThreshold = 48 * 1024
	}

	if cfg.Expert == nil {
		cfg.Expert = &ExpertConfig{}
	}
	if cfg.Expert.AskWindow == 0 {
		cfg.Expert.AskWindow = 60 * time.Second
	}
	if cfg.Expert.PromptWindow == 0 {
		cfg.Expert.PromptWindow = 60 * time.Second
	}
	if cfg.Expert.ProofWait == 0 {
		cfg.Expert.ProofWait = 60 * time.Second
	}
	if cfg.Expert.RepublishInterval == 0 {
		cfg.Expert.RepublishInterval = 12 * time.Hour
	}
	if cfg.Expert.StreamThreshold == 0 {
		cfg.Expert.StreamThreshold = 48 * 1024
	}

	if cfg.Stream == nil {
		cfg.Stream = &StreamConfig{}
	}
	if cfg.Stream.ReorderWindow == 0 {
		cfg.Stream.ReorderWindow = 32
	}
	if cfg.Stream.MinChunkSize == 0 {
		cfg.Stream.MinChunkSize = 8 * 1024
	}
	if cfg.Stream.MaxChunkSize == 0 {
		cfg.Stream.MaxChunkSize = 40 * 1024
	}
	if cfg.Stream.MinChunkInterval == 0 {
		cfg.Stream.MinChunkInterval = 200 * time.Millisecond
	}
	if cfg.Stream.MaxStreamSize == 0 {
		cfg.Stream.MaxStreamSize = 64 * 1024 * 1024
	}
	if cfg.Stream.IdleTimeout == 0 {
		cfg.Stream.IdleTimeout = 60 * time.Second
	}

	if cfg.Payment == nil {
		cfg.Payment = &PaymentConfig{}
	}
	if cfg.Payment.MaxAmountSats == 0 {
		cfg.Payment.MaxAmountSats = 1_000_000
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}
