package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/akarpov91/chainanchor/internal/client/anchor"
	"github.com/akarpov91/chainanchor/internal/client/api"
	"github.com/akarpov91/chainanchor/internal/client/config"
	"github.com/akarpov91/chainanchor/internal/client/identity"
	"github.com/akarpov91/chainanchor/internal/client/session"
	"github.com/akarpov91/chainanchor/internal/common"
	"github.com/akarpov91/chainanchor/internal/ethsign"
	"github.com/akarpov91/chainanchor/internal/logging"
	"github.com/akarpov91/chainanchor/internal/registry"
)

// defaultDocumentClass keys the anchor record when the user does not name
// one explicitly.
const defaultDocumentClass = "document"

type App struct {
	config *config.Config
	logger logging.Logger

	signer ethsign.Signer
	auth   *identity.Authenticator
	anchor *anchor.Client
	store  *session.Store
	reader *bufio.Reader

	stopWatch func()
}

// NewApp wires the CLI: the local session database, the backend API client,
// the keystore-backed signer, and (when a registry contract is configured)
// the on-chain anchoring client.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	store, err := session.Open(ctx, cfg.SessionDBPath)
	if err != nil {
		return nil, err
	}

	apiClient, err := api.NewHTTPClient(cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	signer := ethsign.NewKeystoreSigner(cfg.KeystoreDir, big.NewInt(cfg.ExpectedChainID),
		func() ([]byte, error) { return GetPassword(os.Stdout) })

	app := &App{
		config: cfg,
		logger: logger,
		signer: signer,
		auth:   identity.New(signer, apiClient, store, logger, cfg.ExpectedChainID),
		store:  store,
		reader: bufio.NewReader(os.Stdin),
	}

	reg, err := registry.Dial(ctx, cfg.ChainRPCURL, cfg.RegistryAddress)
	if err != nil {
		if !errors.Is(err, common.ErrRegistryNotConfigured) {
			_ = store.Close()
			return nil, err
		}
		logger.Warn(ctx, "no registry contract configured, anchoring disabled")
	} else {
		app.anchor = anchor.New(signer, reg, apiClient, store, logger,
			cfg.ExpectedChainID, cfg.ConfirmTimeout, cfg.GatewayBaseURL)
	}

	return app, nil
}

// Run restores a previous session if one exists, then hands control to the
// REPL until the user exits.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	a.auth.RestoreSession(ctx)
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(os.Stdin))
}

func (a *App) Close() {
	if a.stopWatch != nil {
		a.stopWatch()
		a.stopWatch = nil
	}
	_ = a.signer.Close()
	_ = a.store.Close()
}

func (a *App) isVerified() bool {
	return a.auth.Status() == identity.StatusVerified
}

func (a *App) getStatus() string {
	b := a.auth.Binding()
	if b.Address == "" {
		return ""
	}
	return fmt.Sprintf("(%s %s)", shortAddress(b.Address), b.VerificationStatus)
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
