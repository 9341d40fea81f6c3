package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoaderOptions configures the configuration loader.
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default: ./config).
	ConfigDir string
	// Environment overrides automatic environment detection.
	Environment string
	// EnvFile is a .env-style file loaded into the process environment
	// before overrides are applied; empty skips this step.
	EnvFile string
	// SkipEnvSubstitution disables ${VAR} substitution inside the file.
	SkipEnvSubstitution bool
}

// DefaultLoaderOptions returns the default loader options.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{ConfigDir: "config", EnvFile: ".env"}
}

// Load loads configuration with automatic environment detection: an
// environment-specific file (config/<env>.yaml), falling back to
// config/default.yaml, then config/config.yaml, then bare defaults.
// A .env file is loaded first (if present) so its values are visible
// to both ${VAR} substitution and the final environment-variable
// override pass, which always wins.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	if options.EnvFile != "" {
		if _, err := os.Stat(options.EnvFile); err == nil {
			_ = godotenv.Load(options.EnvFile)
		}
	}

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	cfg, err := loadConfigFile(filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env)))
	if err != nil {
		cfg, err = loadConfigFile(filepath.Join(options.ConfigDir, "default.yaml"))
		if err != nil {
			cfg, err = loadConfigFile(filepath.Join(options.ConfigDir, "config.yaml"))
			if err != nil {
				cfg = &Config{}
			}
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = env
	}
	setDefaults(cfg)

	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}
	applyEnvironmentOverrides(cfg)

	return cfg, nil
}

func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config: file not found: %s", path)
	}
	return LoadFromFile(path)
}

// applyEnvironmentOverrides overrides config fields with ASKRELAY_*
// environment variables, the highest-priority source.
func applyEnvironmentOverrides(cfg *Config) {
	if urls := os.Getenv("ASKRELAY_RELAY_URLS"); urls != "" {
		cfg.Relay.URLs = strings.Split(urls, ",")
	}
	if v := os.Getenv("ASKRELAY_MAX_AMOUNT_SATS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Payment.MaxAmountSats = n
		}
	}
	if v := os.Getenv("ASKRELAY_STREAM_REORDER_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.ReorderWindow = n
		}
	}
	if v := os.Getenv("ASKRELAY_EXPERT_NAME"); v != "" {
		cfg.Expert.Name = v
	}
	if v := os.Getenv("ASKRELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ASKRELAY_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("ASKRELAY_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("ASKRELAY_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// LoadForEnvironment loads configuration for a specific environment.
func LoadForEnvironment(environment string) (*Config, error) {
	return Load(LoaderOptions{ConfigDir: "config", Environment: environment})
}

// MustLoad loads configuration or panics on error.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("config: load failed: %v", err))
	}
	return cfg
}
