package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(LoaderOptions{ConfigDir: filepath.Join(dir, "nonexistent"), Environment: "test"})
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 10*time.Second, cfg.Client.DiscoveryWait)
}

func TestLoadReadsEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "staging.yaml"),
		[]byte("expert:\n  name: staging-expert\n"),
		0644,
	))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "staging-expert", cfg.Expert.Name)
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ASKRELAY_EXPERT_NAME", "overridden")
	t.Setenv("ASKRELAY_MAX_AMOUNT_SATS", "777")
	t.Setenv("ASKRELAY_RELAY_URLS", "wss://a.example,wss://b.example")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test"})
	require.NoError(t, err)
	assert.Equal(t, "overridden", cfg.Expert.Name)
	assert.EqualValues(t, 777, cfg.Payment.MaxAmountSats)
	assert.Equal(t, []string{"wss://a.example", "wss://b.example"}, cfg.Relay.URLs)
}

func TestLoadForEnvironment(t *testing.T) {
	cfg, err := LoadForEnvironment("test")
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
}

func TestMustLoadPanicsNever(t *testing.T) {
	// Load never actually returns an error today (it falls back to bare
	// defaults), so MustLoad should never panic in practice.
	assert.NotPanics(t, func() { MustLoad() })
}
