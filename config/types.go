// Package config provides configuration management for askrelay: a
// YAML-or-JSON file load, environment-variable overlay, and
// defaults-filling pass covering every timeout and size ceiling named
// in the protocol's concurrency and resource model.
package config

import "time"

// Config is the top-level configuration structure. Every nested
// struct is a pointer so a partial file (only [relay] overridden, say)
// leaves the rest nil until setDefaults fills it in.
type Config struct {
	Environment string         `yaml:"environment" json:"environment"`
	Relay       *RelayConfig   `yaml:"relay" json:"relay"`
	Client      *ClientConfig  `yaml:"client" json:"client"`
	Expert      *ExpertConfig  `yaml:"expert" json:"expert"`
	Stream      *StreamConfig  `yaml:"stream" json:"stream"`
	Payment     *PaymentConfig `yaml:"payment" json:"payment"`
	Logging     *LoggingConfig `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig `yaml:"metrics" json:"metrics"`
}

// RelayConfig names the relay.Pool's URL set and per-connection
// timeouts.
type RelayConfig struct {
	URLs           []string      `yaml:"urls" json:"urls"`
	DialTimeout    time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout" json:"publish_timeout"`
}

// ClientConfig names client.Client's discovery and exchange timeouts.
type ClientConfig struct {
	DiscoveryWait   time.Duration `yaml:"discovery_wait" json:"discovery_wait"`
	ProfileFetchWin time.Duration `yaml:"profile_fetch_window" json:"profile_fetch_window"`
	QuoteWait       time.Duration `yaml:"quote_wait" json:"quote_wait"`
	ReplyWait       time.Duration `yaml:"reply_wait" json:"reply_wait"`
	StreamThreshold int           `yaml:"stream_threshold" json:"stream_threshold"`
}

// ExpertConfig names an expert.Server's identity, advertised topics,
// and per-prompt timeouts.
type ExpertConfig struct {
	Name              string        `yaml:"name" json:"name"`
	About             string        `yaml:"about" json:"about"`
	Topics            []string      `yaml:"topics" json:"topics"`
	Relays            []string      `yaml:"relays" json:"relays"`
	AskWindow         time.Duration `yaml:"ask_window" json:"ask_window"`
	PromptWindow      time.Duration `yaml:"prompt_window" json:"prompt_window"`
	ProofWait         time.Duration `yaml:"proof_wait" json:"proof_wait"`
	RepublishInterval time.Duration `yaml:"republish_interval" json:"republish_interval"`
	StreamThreshold   int           `yaml:"stream_threshold" json:"stream_threshold"`
}

// StreamConfig names the chunked transport's batching, reorder-window,
// and bomb-defense ceilings.
type StreamConfig struct {
	ReorderWindow    int           `yaml:"reorder_window" json:"reorder_window"`
	MinChunkSize     int           `yaml:"min_chunk_size" json:"min_chunk_size"`
	MaxChunkSize     int           `yaml:"max_chunk_size" json:"max_chunk_size"`
	MinChunkInterval time.Duration `yaml:"min_chunk_interval" json:"min_chunk_interval"`
	MaxStreamSize    int64         `yaml:"max_stream_size" json:"max_stream_size"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// PaymentConfig bounds what a client will pay; quotes above the
// maximum are refused.
type PaymentConfig struct {
	MaxAmountSats int64 `yaml:"max_amount_sats" json:"max_amount_sats"`
}

// LoggingConfig configures internal/logger's default logger.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig configures internal/metrics' standalone HTTP exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}
