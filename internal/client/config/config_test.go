package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, "keystore", c.KeystoreDir)
	assert.Equal(t, "http://127.0.0.1:8545", c.ChainRPCURL)
	assert.Empty(t, c.RegistryAddress)
	assert.Equal(t, int64(11155111), c.ExpectedChainID)
	assert.Equal(t, "chainanchor.db", c.SessionDBPath)
	assert.Equal(t, "https://ipfs.io", c.GatewayBaseURL)
	assert.Equal(t, 90*time.Second, c.ConfirmTimeout)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
	assert.Equal(t, 90*time.Second, cfg.ConfirmTimeout)
}
