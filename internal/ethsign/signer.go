// Package ethsign abstracts the external wallet: account access, EIP-191
// message signing, transaction signing, and account/chain change
// notifications. The authenticator and anchoring client receive a Signer as
// an explicit dependency so the single-outstanding-request rule and tests
// stay manageable.
package ethsign

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ChangeListener receives wallet-side change notifications. Callbacks are
// invoked from the signer's own goroutine; implementations must not block.
type ChangeListener interface {
	// AccountsChanged fires when the set of unlocked accounts changes.
	// An empty slice means the wallet was disconnected.
	AccountsChanged(accounts []common.Address)

	// ChainChanged fires when the wallet switches networks.
	ChainChanged(chainID *big.Int)
}

// Signer is the external signing capability.
type Signer interface {
	// RequestAccounts asks the wallet for account access and returns the
	// available addresses. No wallet present yields ErrNoSigner; a wallet
	// with no accounts yields ErrNoAccount.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// ChainID reports the chain the wallet is currently connected to.
	ChainID(ctx context.Context) (*big.Int, error)

	// SignPersonal signs msg for addr per EIP-191 (personal_sign): the
	// message is prefixed, keccak-hashed, and signed; the returned 65-byte
	// signature carries v in {27,28}.
	SignPersonal(ctx context.Context, addr common.Address, msg []byte) ([]byte, error)

	// TransactOpts returns signing options for on-chain writes from addr.
	TransactOpts(ctx context.Context, addr common.Address, chainID *big.Int) (*bind.TransactOpts, error)

	// Subscribe registers l for change notifications and returns an
	// unsubscribe function.
	Subscribe(l ChangeListener) (unsubscribe func())

	// Close releases wallet resources.
	Close() error
}

// Notifier implements the Subscribe half of Signer and fans change events
// out to listeners. Signer implementations embed it.
type Notifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]ChangeListener
}

func (n *Notifier) Subscribe(l ChangeListener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = make(map[int]ChangeListener)
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

// EmitAccountsChanged delivers an accounts-changed event to all listeners.
func (n *Notifier) EmitAccountsChanged(accounts []common.Address) {
	for _, l := range n.snapshot() {
		l.AccountsChanged(accounts)
	}
}

// EmitChainChanged delivers a chain-changed event to all listeners.
func (n *Notifier) EmitChainChanged(chainID *big.Int) {
	for _, l := range n.snapshot() {
		l.ChainChanged(chainID)
	}
}

func (n *Notifier) snapshot() []ChangeListener {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ChangeListener, 0, len(n.listeners))
	for _, l := range n.listeners {
		out = append(out, l)
	}
	return out
}
