// Package config loads runtime configuration for the ChainAnchor CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the backend verifier
//	-k string   wallet keystore directory
//	-r string   chain JSON-RPC endpoint
//	-g string   content registry contract address
//	-n int      expected chain id
//	-d string   path to the local session database
//	-w string   public gateway base URL
//	-t int      attach confirmation timeout (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for the timeout, so the value can be
// either a string like "90s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "chain_rpc_url": "http://127.0.0.1:8545",
//	  "registry_address": "0x...",
//	  "expected_chain_id": 11155111,
//	  "confirm_timeout": "90s"
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
