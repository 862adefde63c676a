package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://1click.chaindefuser.com", cfg.BaseURL)
	assert.Equal(t, "intents.near", cfg.IntentsContract)
	assert.Equal(t, time.Second, cfg.QuoteInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.SignDeadline)
	assert.Equal(t, 7*24*time.Hour, cfg.DealTTL)
	assert.Equal(t, 3, cfg.MaxPollFailures)
	assert.Equal(t, "file", cfg.History.Driver)
	assert.Equal(t, "intents", cfg.SwapMode)
	assert.Error(t, cfg.RequireOneClick())
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("NEAR_INTENTS_JWT_TOKEN", "jwt")
	t.Setenv("NEAR_INTENTS_POLL_INTERVAL", "250ms")
	t.Setenv("NEAR_INTENTS_SIGNER_CHAIN", "EVM")
	t.Setenv("NEAR_INTENTS_SIGNER_PRIVATE_KEY", "0xabc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "evm", cfg.Signer.Chain)
	assert.NoError(t, cfg.RequireOneClick())
	assert.NoError(t, cfg.RequireSigner())
}

func TestLoadFileWithAutoDeposit(t *testing.T) {
	dir := chdirTemp(t)
	content := `
history:
  driver: redis
auto_deposit:
  enabled: true
  evm:
    networks:
      eth:
        rpc_url: https://eth.example
        chain_id: 1
  solana:
    rpc_url: https://sol.example
    commitment: finalized
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".near-intents.yaml"), []byte(content), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.History.Driver)
	assert.True(t, cfg.AutoDeposit.Enabled)
	assert.Equal(t, int64(1), cfg.AutoDeposit.EVM.Networks["eth"].ChainID)
	assert.Equal(t, "finalized", cfg.AutoDeposit.Solana.Commitment)
}

func TestValidateRejectsBadValues(t *testing.T) {
	for env, value := range map[string]string{
		"NEAR_INTENTS_SIGNER_CHAIN":   "bitcoin",
		"NEAR_INTENTS_SWAP_MODE":      "rfq",
		"NEAR_INTENTS_HISTORY_DRIVER": "sqlite",
		"NEAR_INTENTS_DEAL_TTL":       "0s",
	} {
		t.Run(env, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv(env, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
