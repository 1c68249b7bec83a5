package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK",
			args:        []string{"cmd", "-a", "http://127.0.0.1:9090", "-g", "0x8ba1f109551bD432803012645Ac136ddd64DBA72", "-n", "1", "-t", "30"},
			expectPanic: false,
			expected: &Config{
				ServerURL:       "http://127.0.0.1:9090",
				RegistryAddress: "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
				ExpectedChainID: 1,
				ConfirmTimeout:  30 * time.Second,
			}},
		{name: "Test2 incorrect confirm timeout",
			args:        []string{"cmd", "-a", "http://127.0.0.1:9090", "-t", "abc"},
			expectPanic: true, expected: &Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
