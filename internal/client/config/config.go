package config

import "time"

// Config holds runtime settings for the ChainAnchor CLI.
//
// Fields:
//   - ServerURL: base URL of the backend verifier, e.g. http://127.0.0.1:8080.
//   - KeystoreDir: directory holding encrypted wallet key files.
//   - ChainRPCURL: JSON-RPC endpoint of the chain node.
//   - RegistryAddress: hex address of the content registry contract. Empty
//     disables on-chain anchoring.
//   - ExpectedChainID: the chain id the client is provisioned for.
//   - SessionDBPath: sqlite file holding the cached binding and anchor records.
//   - GatewayBaseURL: public gateway used to build shareable content URLs.
//   - ConfirmTimeout: how long to wait for an attach transaction to confirm.
type Config struct {
	ServerURL       string
	KeystoreDir     string
	ChainRPCURL     string
	RegistryAddress string
	ExpectedChainID int64
	SessionDBPath   string
	GatewayBaseURL  string
	ConfirmTimeout  time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.KeystoreDir = "keystore"
	c.ChainRPCURL = "http://127.0.0.1:8545"
	c.RegistryAddress = ""
	c.ExpectedChainID = 11155111
	c.SessionDBPath = "chainanchor.db"
	c.GatewayBaseURL = "https://ipfs.io"
	c.ConfirmTimeout = 90 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
