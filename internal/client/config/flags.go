package config

import (
	"flag"
	"os"
	"time"

	"github.com/akarpov91/chainanchor/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the backend verifier (default from Config)
//	-k string   wallet keystore directory
//	-r string   chain JSON-RPC endpoint
//	-g string   content registry contract address
//	-n int      expected chain id
//	-d string   path to the local session database
//	-w string   public gateway base URL
//	-t int      attach confirmation timeout in seconds
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-k", "-r", "-g", "-n", "-d", "-w", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the backend verifier")
	fs.StringVar(&cfg.KeystoreDir, "k", cfg.KeystoreDir, "wallet keystore directory")
	fs.StringVar(&cfg.ChainRPCURL, "r", cfg.ChainRPCURL, "chain JSON-RPC endpoint")
	fs.StringVar(&cfg.RegistryAddress, "g", cfg.RegistryAddress, "content registry contract address")
	fs.Int64Var(&cfg.ExpectedChainID, "n", cfg.ExpectedChainID, "expected chain id")
	fs.StringVar(&cfg.SessionDBPath, "d", cfg.SessionDBPath, "path to the local session database")
	fs.StringVar(&cfg.GatewayBaseURL, "w", cfg.GatewayBaseURL, "public gateway base URL")
	confirmTimeout := fs.Int("t", int(cfg.ConfirmTimeout.Seconds()), "attach confirmation timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.ConfirmTimeout = time.Duration(*confirmTimeout) * time.Second
}
