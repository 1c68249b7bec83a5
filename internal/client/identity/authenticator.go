// Package identity implements the challenge/response authenticator binding
// a local user to a wallet address.
//
// The state machine is Idle → Connecting → Connected → Challenging →
// Verifying → Verified, with Error reachable from any state and Idle
// reachable again via Disconnect. Account and chain change events from the
// signer are applied atomically: a "verified" status never survives an
// address swap, and a chain switch demotes Verified to Connected because
// each chain id is a distinct verification domain.
package identity

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/akarpov91/chainanchor/internal/client/api"
	"github.com/akarpov91/chainanchor/internal/client/models"
	"github.com/akarpov91/chainanchor/internal/client/session"
	"github.com/akarpov91/chainanchor/internal/common"
	"github.com/akarpov91/chainanchor/internal/ethsign"
	"github.com/akarpov91/chainanchor/internal/logging"
)

// Status is the authenticator's position in the binding flow. It is richer
// than models.VerificationStatus, which only captures the persisted outcome.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusConnecting  Status = "connecting"
	StatusConnected   Status = "connected"
	StatusChallenging Status = "challenging"
	StatusVerifying   Status = "verifying"
	StatusVerified    Status = "verified"
	StatusErrored     Status = "error"
)

// DID derives the decentralized identifier for an address on a chain using
// the did:pkh method. The backend's DID remains authoritative after a
// successful verification.
func DID(chainID int64, address string) string {
	return fmt.Sprintf("did:pkh:eip155:%d:%s", chainID, address)
}

type Authenticator struct {
	signer          ethsign.Signer
	api             api.Client
	store           *session.Store
	logger          logging.Logger
	expectedChainID int64

	mu          sync.Mutex
	busy        bool
	status      Status
	binding     models.IdentityBinding
	outstanding *models.Challenge
	lastErr     error
	unsubscribe func()
}

// New constructs an Authenticator. The signer and API client are injected
// rather than reached ambiently so the one-outstanding-request rule is
// enforceable and tests can substitute fakes.
func New(signer ethsign.Signer, apiClient api.Client, store *session.Store, logger logging.Logger, expectedChainID int64) *Authenticator {
	return &Authenticator{
		signer:          signer,
		api:             apiClient,
		store:           store,
		logger:          logger.With("module", "identity"),
		expectedChainID: expectedChainID,
		status:          StatusIdle,
		binding:         models.IdentityBinding{VerificationStatus: models.StatusUnverified},
	}
}

// RestoreSession attempts to adopt a previously established server-side
// session (backed by the secure session cookie). Any failure is absorbed:
// the app is usable unauthenticated, so restore problems are logged and the
// authenticator stays Idle.
func (a *Authenticator) RestoreSession(ctx context.Context) {
	info, err := a.api.Session(ctx)
	if err != nil {
		a.logger.Warn(ctx, "session restore failed, continuing unauthenticated", "error", err.Error())
		return
	}
	if info == nil || !gethcommon.IsHexAddress(info.Address) {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	verifiedAt := info.VerifiedAt
	a.binding = models.IdentityBinding{
		Address:            gethcommon.HexToAddress(info.Address).Hex(),
		ChainID:            info.ChainID,
		DecentralizedID:    info.DID,
		VerificationStatus: models.StatusVerified,
		VerifiedAt:         &verifiedAt,
	}
	a.status = StatusVerified
	a.subscribeLocked()
	a.persistLocked(ctx)
	a.logger.Info(ctx, "session restored", "address", a.binding.Address, "did", a.binding.DecentralizedID)
}

// Connect requests account access from the signer, canonicalizes the first
// returned address, and records the current chain id. A chain id other than
// the configured one is a warning, not a failure.
func (a *Authenticator) Connect(ctx context.Context) (models.IdentityBinding, error) {
	if err := a.begin(); err != nil {
		return a.Binding(), err
	}
	defer a.end()

	a.setStatus(StatusConnecting)

	accounts, err := a.signer.RequestAccounts(ctx)
	if err != nil {
		a.fail(err)
		return a.Binding(), err
	}
	if len(accounts) == 0 {
		a.fail(common.ErrNoAccount)
		return a.Binding(), common.ErrNoAccount
	}

	chainID, err := a.signer.ChainID(ctx)
	if err != nil {
		a.fail(fmt.Errorf("chain id lookup error: %w", err))
		return a.Binding(), err
	}
	if chainID.Int64() != a.expectedChainID {
		a.logger.Warn(ctx, "connected to unexpected chain",
			"chainId", chainID.Int64(), "expected", a.expectedChainID)
	}

	address := accounts[0].Hex()

	a.mu.Lock()
	a.binding = models.IdentityBinding{
		Address:            address,
		ChainID:            chainID.Int64(),
		DecentralizedID:    DID(chainID.Int64(), address),
		VerificationStatus: models.StatusConnected,
	}
	a.status = StatusConnected
	a.lastErr = nil
	a.subscribeLocked()
	a.persistLocked(ctx)
	binding := a.binding
	a.mu.Unlock()

	a.logger.Info(ctx, "wallet connected", "address", address, "chainId", chainID.Int64())
	return binding, nil
}

// RequestChallenge asks the backend for a fresh single-use challenge for
// the currently connected address. The challenge becomes the only
// outstanding one; a later Verify against any other request id is rejected.
func (a *Authenticator) RequestChallenge(ctx context.Context) (*models.Challenge, error) {
	if err := a.begin(); err != nil {
		return nil, err
	}
	defer a.end()

	a.mu.Lock()
	if a.binding.Address == "" {
		a.mu.Unlock()
		return nil, common.ErrNoAccount
	}
	address, chainID, did := a.binding.Address, a.binding.ChainID, a.binding.DecentralizedID
	a.status = StatusChallenging
	a.mu.Unlock()

	ch, err := a.api.RequestChallenge(ctx, address, chainID, did)
	if err != nil {
		a.fail(err)
		return nil, err
	}

	a.mu.Lock()
	a.outstanding = ch
	a.status = StatusConnected
	a.mu.Unlock()
	return ch, nil
}

// Verify submits the signature over the challenge message. The challenge is
// single-use: whatever the outcome, its request id is forgotten and a new
// challenge is required for another attempt. On success the backend's DID is
// adopted as authoritative and the binding becomes verified.
func (a *Authenticator) Verify(ctx context.Context, ch *models.Challenge, signature []byte) error {
	if err := a.begin(); err != nil {
		return err
	}
	defer a.end()

	return a.verify(ctx, ch, signature)
}

// verify is Verify without the busy guard, for callers that already hold it.
func (a *Authenticator) verify(ctx context.Context, ch *models.Challenge, signature []byte) error {
	a.mu.Lock()
	if a.outstanding == nil || ch == nil || ch.RequestID != a.outstanding.RequestID {
		a.mu.Unlock()
		return common.ErrRequestIDMismatch
	}
	a.outstanding = nil // consumed now, regardless of outcome
	req := &api.VerifyRequest{
		Message:         ch.Message,
		Signature:       hexutil.Encode(signature),
		Address:         a.binding.Address,
		ChainID:         a.binding.ChainID,
		DecentralizedID: a.binding.DecentralizedID,
		RequestID:       ch.RequestID,
	}
	a.status = StatusVerifying
	a.mu.Unlock()

	info, err := a.api.Verify(ctx, req)
	if err != nil {
		a.fail(err)
		return err
	}

	a.mu.Lock()
	verifiedAt := info.VerifiedAt
	a.binding.DecentralizedID = info.DID
	a.binding.VerificationStatus = models.StatusVerified
	a.binding.VerifiedAt = &verifiedAt
	a.status = StatusVerified
	a.lastErr = nil
	a.persistLocked(ctx)
	a.mu.Unlock()

	a.logger.Info(ctx, "identity verified", "address", req.Address, "did", info.DID)
	return nil
}

// SignAndVerify signs the outstanding challenge with the connected account
// and submits it. The busy guard covers the whole composition, so at most
// one wallet signature request is outstanding at a time.
func (a *Authenticator) SignAndVerify(ctx context.Context) error {
	if err := a.begin(); err != nil {
		return err
	}
	defer a.end()

	a.mu.Lock()
	ch := a.outstanding
	address := a.binding.Address
	a.mu.Unlock()

	if ch == nil {
		return common.ErrRequestIDMismatch
	}
	if address == "" {
		return common.ErrNoAccount
	}

	sig, err := a.signer.SignPersonal(ctx, gethcommon.HexToAddress(address), []byte(ch.Message))
	if err != nil {
		a.fail(err)
		return err
	}
	return a.verify(ctx, ch, sig)
}

// Disconnect clears all local identity state and best-effort invalidates
// the server-side session. A failing logout call is logged and ignored:
// local revocation takes priority over remote cleanup.
func (a *Authenticator) Disconnect(ctx context.Context) error {
	if err := a.begin(); err != nil {
		return err
	}
	defer a.end()

	if err := a.api.Logout(ctx); err != nil {
		a.logger.Warn(ctx, "server-side logout failed, clearing local state anyway", "error", err.Error())
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked(ctx)
	a.logger.Info(ctx, "disconnected")
	return nil
}

// Binding returns a copy of the current identity binding.
func (a *Authenticator) Binding() models.IdentityBinding {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.binding
}

// Status returns the current state-machine position.
func (a *Authenticator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Busy reports whether a primary operation is in flight.
func (a *Authenticator) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// Err returns the error recorded by the last failed operation, if any.
func (a *Authenticator) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// AccountsChanged implements ethsign.ChangeListener. A different (or no)
// address invalidates the whole binding immediately: the old session cookie
// is revoked best-effort in the background and local state is cleared in one
// atomic step.
func (a *Authenticator) AccountsChanged(accounts []gethcommon.Address) {
	ctx := context.Background()

	a.mu.Lock()
	current := a.binding.Address
	if current == "" {
		a.mu.Unlock()
		return
	}
	if len(accounts) > 0 && accounts[0].Hex() == current {
		a.mu.Unlock()
		return
	}
	a.resetLocked(ctx)
	a.mu.Unlock()

	a.logger.Warn(ctx, "wallet account changed, session cleared", "previous", current)
	go func() {
		if err := a.api.Logout(ctx); err != nil {
			a.logger.Warn(ctx, "logout after account change failed", "error", err.Error())
		}
	}()
}

// ChainChanged implements ethsign.ChangeListener. The DID is recomputed for
// the new chain and a verified binding is demoted to connected: each chain
// requires its own verification.
func (a *Authenticator) ChainChanged(chainID *big.Int) {
	ctx := context.Background()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.binding.Address == "" {
		return
	}

	a.binding.ChainID = chainID.Int64()
	a.binding.DecentralizedID = DID(chainID.Int64(), a.binding.Address)
	if a.binding.VerificationStatus == models.StatusVerified {
		a.binding.VerificationStatus = models.StatusConnected
		a.binding.VerifiedAt = nil
		a.status = StatusConnected
	}
	a.outstanding = nil
	a.persistLocked(ctx)

	if chainID.Int64() != a.expectedChainID {
		a.logger.Warn(ctx, "switched to unexpected chain", "chainId", chainID.Int64(), "expected", a.expectedChainID)
	}
}

// --- helpers below ---

func (a *Authenticator) begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		return common.ErrBusy
	}
	a.busy = true
	return nil
}

func (a *Authenticator) end() {
	a.mu.Lock()
	a.busy = false
	a.mu.Unlock()
}

func (a *Authenticator) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

func (a *Authenticator) fail(err error) {
	a.mu.Lock()
	a.status = StatusErrored
	a.lastErr = err
	if a.binding.VerificationStatus == models.StatusVerified {
		a.binding.VerificationStatus = models.StatusError
	}
	a.mu.Unlock()
}

// resetLocked clears binding, challenge, and persisted state. Callers hold mu.
func (a *Authenticator) resetLocked(ctx context.Context) {
	a.binding = models.IdentityBinding{VerificationStatus: models.StatusUnverified}
	a.outstanding = nil
	a.status = StatusIdle
	a.lastErr = nil
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	if err := a.store.ClearBinding(ctx); err != nil {
		a.logger.Error(ctx, "failed to clear persisted binding", "error", err.Error())
	}
}

func (a *Authenticator) subscribeLocked() {
	if a.unsubscribe == nil {
		a.unsubscribe = a.signer.Subscribe(a)
	}
}

func (a *Authenticator) persistLocked(ctx context.Context) {
	b := a.binding
	if err := a.store.SaveBinding(ctx, &b); err != nil {
		a.logger.Error(ctx, "failed to persist binding", "error", err.Error())
	}
}
