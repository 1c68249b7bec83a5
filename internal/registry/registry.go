// Package registry wraps the on-chain content registry contract: one
// content id per owner address, replaced by each successful attach call and
// announced through the ContentIdAttached event.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"

	appcommon "github.com/akarpov91/chainanchor/internal/common"
)

// ABI of the registry contract's external surface. The bytecode itself is
// out of scope; only this call/event contract is used.
const registryABI = `[
  {"type":"function","name":"attachContentId","stateMutability":"nonpayable",
   "inputs":[{"name":"contentId","type":"string"}],"outputs":[]},
  {"type":"function","name":"contentIdOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"string"}]},
  {"type":"event","name":"ContentIdAttached","anonymous":false,
   "inputs":[{"name":"owner","type":"address","indexed":true},
             {"name":"contentId","type":"string","indexed":false}]}
]`

// Attached is a decoded ContentIdAttached event.
type Attached struct {
	Owner     common.Address
	ContentID string
	TxHash    common.Hash
}

type Registry struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	address  common.Address
}

// Dial connects to the chain RPC endpoint and binds the registry contract.
// An empty contract address yields ErrRegistryNotConfigured.
func Dial(ctx context.Context, rpcURL, contractAddr string) (*Registry, error) {
	if contractAddr == "" {
		return nil, appcommon.ErrRegistryNotConfigured
	}
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("%w: bad contract address %q", appcommon.ErrRegistryNotConfigured, contractAddr)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain rpc dial error: %w", err)
	}
	return bindRegistry(client, common.HexToAddress(contractAddr))
}

func bindRegistry(client *ethclient.Client, addr common.Address) (*Registry, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("registry abi parse error: %w", err)
	}
	contract := bind.NewBoundContract(addr, parsed, client, client, client)
	return &Registry{client: client, contract: contract, address: addr}, nil
}

// ChainID reports the chain id of the connected RPC endpoint.
func (r *Registry) ChainID(ctx context.Context) (*big.Int, error) {
	return r.client.ChainID(ctx)
}

// ContentIDOf reads the current content id registered for owner.
// Returns an empty string when nothing has been attached.
func (r *Registry) ContentIDOf(ctx context.Context, owner common.Address) (string, error) {
	var out []any
	err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "contentIdOf", owner)
	if err != nil {
		return "", fmt.Errorf("contentIdOf call error: %w", err)
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// AttachContentID submits an attach transaction under opts' account.
func (r *Registry) AttachContentID(ctx context.Context, opts *bind.TransactOpts, contentID string) (*types.Transaction, error) {
	opts.Context = ctx
	tx, err := r.contract.Transact(opts, "attachContentId", contentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appcommon.ErrTransactionFailed, err)
	}
	return tx, nil
}

// WaitMined waits for tx to be mined, bounded by timeout. A deadline yields
// ErrTransactionTimedOut; the transaction may still confirm later and the
// caller must keep its hash for reconciliation. A mined-but-reverted receipt
// yields ErrTransactionFailed.
func (r *Registry) WaitMined(ctx context.Context, tx *types.Transaction, timeout time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, r.client, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, appcommon.ErrTransactionTimedOut
		}
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: tx %s", appcommon.ErrTransactionFailed, tx.Hash().Hex())
	}
	return receipt, nil
}

// WatchAttached subscribes to ContentIdAttached events for owner and decodes
// them into sink until ctx is canceled. The returned stop function tears the
// subscription down.
func (r *Registry) WatchAttached(ctx context.Context, owner common.Address, sink chan<- Attached) (stop func(), err error) {
	logs, sub, err := r.contract.WatchLogs(&bind.WatchOpts{Context: ctx}, "ContentIdAttached", []any{owner})
	if err != nil {
		return nil, fmt.Errorf("event subscription error: %w", err)
	}
	return r.forward(ctx, logs, sub, sink), nil
}

// forward pumps decoded logs into sink until ctx is canceled, the
// subscription fails, or the returned stop function is called. Stop is safe
// to call from multiple goroutines.
func (r *Registry) forward(ctx context.Context, logs chan types.Log, sub event.Subscription, sink chan<- Attached) (stop func()) {
	done := make(chan struct{})
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case lg := <-logs:
				ev, err := r.DecodeAttached(lg)
				if err != nil {
					continue
				}
				select {
				case sink <- *ev:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			case <-sub.Err():
				return
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// DecodeAttached unpacks a raw log into an Attached event.
func (r *Registry) DecodeAttached(lg types.Log) (*Attached, error) {
	ev := struct {
		Owner     common.Address
		ContentId string
	}{}
	if err := r.contract.UnpackLog(&ev, "ContentIdAttached", lg); err != nil {
		return nil, fmt.Errorf("event unpack error: %w", err)
	}
	return &Attached{Owner: ev.Owner, ContentID: ev.ContentId, TxHash: lg.TxHash}, nil
}

// Address returns the bound contract address.
func (r *Registry) Address() common.Address {
	return r.address
}
