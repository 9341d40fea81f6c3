package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("ASKRELAY_TEST_VAR", "resolved")

	assert.Equal(t, "resolved", SubstituteEnvVars("${ASKRELAY_TEST_VAR}"))
	assert.Equal(t, "fallback", SubstituteEnvVars("${ASKRELAY_UNSET_VAR:fallback}"))
	assert.Equal(t, "", SubstituteEnvVars("${ASKRELAY_UNSET_VAR}"))
	assert.Equal(t, "plain text", SubstituteEnvVars("plain text"))
}

func TestSubstituteEnvVarsInConfig(t *testing.T) {
	t.Setenv("ASKRELAY_TEST_NAME", "nostrbot")

	cfg := &Config{
		Relay:  &RelayConfig{URLs: []string{"${ASKRELAY_TEST_NAME}.example"}},
		Expert: &ExpertConfig{Name: "${ASKRELAY_TEST_NAME}"},
	}
	SubstituteEnvVarsInConfig(cfg)

	assert.Equal(t, "nostrbot.example", cfg.Relay.URLs[0])
	assert.Equal(t, "nostrbot", cfg.Expert.Name)
}

func TestSubstituteEnvVarsInConfigNil(t *testing.T) {
	assert.NotPanics(t, func() { SubstituteEnvVarsInConfig(nil) })
}

func TestGetEnvironment(t *testing.T) {
	os.Unsetenv("ASKRELAY_ENV")
	os.Unsetenv("ENVIRONMENT")
	assert.Equal(t, "development", GetEnvironment())

	t.Setenv("ENVIRONMENT", "Staging")
	assert.Equal(t, "staging", GetEnvironment())

	t.Setenv("ASKRELAY_ENV", "Production")
	assert.Equal(t, "production", GetEnvironment())
}

func TestIsProductionAndDevelopment(t *testing.T) {
	t.Setenv("ASKRELAY_ENV", "production")
	assert.True(t, IsProduction())
	assert.False(t, IsDevelopment())

	t.Setenv("ASKRELAY_ENV", "local")
	assert.False(t, IsProduction())
	assert.True(t, IsDevelopment())
}
