package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/akarpov91/chainanchor/internal/flagx"
	"github.com/akarpov91/chainanchor/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "5m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr              string         `json:"endpoint_addr"`
	DatabaseDSN               string         `json:"database_dsn"`
	SecretKey                 string         `json:"secret_key"`
	ExpectedChainID           int64          `json:"expected_chain_id"`
	ChallengeValidityDuration timex.Duration `json:"challenge_validity_duration"`
	SessionValidityDuration   timex.Duration `json:"session_validity_duration"`
	S3RootUser                string         `json:"s3_root_user"`
	S3RootPassword            string         `json:"s3_root_password"`
	S3Bucket                  string         `json:"s3_bucket"`
	S3Region                  string         `json:"s3_region"`
	S3BaseEndpoint            string         `json:"s3_base_endpoint"`
	GatewayBaseURL            string         `json:"gateway_base_url"`
	CookieSecure              *bool          `json:"cookie_secure"`
}

// parseJson loads configuration values from the JSON file selected via the
// -c or -config command-line flags. If no file is named, nothing is loaded.
// Only fields present in the file override earlier values. Panics on read or
// unmarshal errors.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddr != "" {
		config.EndpointAddr = c.EndpointAddr
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.ExpectedChainID != 0 {
		config.ExpectedChainID = c.ExpectedChainID
	}
	if c.ChallengeValidityDuration.Duration != 0 {
		config.ChallengeValidityDuration = time.Duration(c.ChallengeValidityDuration.Duration)
	}
	if c.SessionValidityDuration.Duration != 0 {
		config.SessionValidityDuration = time.Duration(c.SessionValidityDuration.Duration)
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
	if c.GatewayBaseURL != "" {
		config.GatewayBaseURL = c.GatewayBaseURL
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
}
