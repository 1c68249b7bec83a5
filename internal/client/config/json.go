package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/akarpov91/chainanchor/internal/flagx"
	"github.com/akarpov91/chainanchor/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify the confirmation timeout either as a
// string like "90s" or as integer nanoseconds.
type JsonConfig struct {
	ServerURL       string         `json:"server_url"`
	KeystoreDir     string         `json:"keystore_dir"`
	ChainRPCURL     string         `json:"chain_rpc_url"`
	RegistryAddress string         `json:"registry_address"`
	ExpectedChainID int64          `json:"expected_chain_id"`
	SessionDBPath   string         `json:"session_db_path"`
	GatewayBaseURL  string         `json:"gateway_base_url"`
	ConfirmTimeout  timex.Duration `json:"confirm_timeout"`
}

// parseJson overlays cfg with values from the JSON file selected via the
// -c/-config flags. Absent file path means no JSON source. Only fields
// present in the file override defaults. Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.KeystoreDir != "" {
		cfg.KeystoreDir = jc.KeystoreDir
	}
	if jc.ChainRPCURL != "" {
		cfg.ChainRPCURL = jc.ChainRPCURL
	}
	if jc.RegistryAddress != "" {
		cfg.RegistryAddress = jc.RegistryAddress
	}
	if jc.ExpectedChainID != 0 {
		cfg.ExpectedChainID = jc.ExpectedChainID
	}
	if jc.SessionDBPath != "" {
		cfg.SessionDBPath = jc.SessionDBPath
	}
	if jc.GatewayBaseURL != "" {
		cfg.GatewayBaseURL = jc.GatewayBaseURL
	}
	if jc.ConfirmTimeout.Duration != 0 {
		cfg.ConfirmTimeout = time.Duration(jc.ConfirmTimeout.Duration)
	}
}
