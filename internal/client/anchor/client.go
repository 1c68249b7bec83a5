// Package anchor ties the pieces of document anchoring together: optional
// wallet-signature-derived encryption, upload to content-addressed storage,
// the on-chain attach transaction, and reconciliation between the local
// record and chain state.
package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/akarpov91/chainanchor/internal/client/models"
	"github.com/akarpov91/chainanchor/internal/client/session"
	"github.com/akarpov91/chainanchor/internal/common"
	"github.com/akarpov91/chainanchor/internal/ethsign"
	"github.com/akarpov91/chainanchor/internal/logging"
	"github.com/akarpov91/chainanchor/internal/registry"
	"github.com/akarpov91/chainanchor/internal/vaultx"
)

// DisclosurePrompt is the fixed message whose wallet signature derives the
// document encryption key. It never varies: the same wallet must always
// produce the same key material, and the text warns the user what the
// signature unlocks.
const DisclosurePrompt = "ChainAnchor encryption key\n\n" +
	"Signing this message derives the key that protects your anchored documents. " +
	"Anyone holding this signature can read them. Only sign inside the ChainAnchor app."

// ChainRegistry is the on-chain surface the anchoring client needs.
// *registry.Registry satisfies it.
type ChainRegistry interface {
	ChainID(ctx context.Context) (*big.Int, error)
	ContentIDOf(ctx context.Context, owner gethcommon.Address) (string, error)
	AttachContentID(ctx context.Context, opts *bind.TransactOpts, contentID string) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction, timeout time.Duration) (*types.Receipt, error)
	WatchAttached(ctx context.Context, owner gethcommon.Address, sink chan<- registry.Attached) (stop func(), err error)
}

// Storage uploads and fetches content-addressed blobs. api.Client satisfies it.
type Storage interface {
	Upload(ctx context.Context, data []byte, fileName string) (contentID, gatewayURL string, err error)
	Fetch(ctx context.Context, contentID string) ([]byte, error)
}

type Client struct {
	signer          ethsign.Signer
	registry        ChainRegistry
	storage         Storage
	store           *session.Store
	logger          logging.Logger
	expectedChainID int64
	confirmTimeout  time.Duration
	gatewayBase     string

	mu   sync.Mutex
	busy bool
}

func New(signer ethsign.Signer, reg ChainRegistry, storage Storage, store *session.Store,
	logger logging.Logger, expectedChainID int64, confirmTimeout time.Duration, gatewayBase string) *Client {
	return &Client{
		signer:          signer,
		registry:        reg,
		storage:         storage,
		store:           store,
		logger:          logger.With("module", "anchor"),
		expectedChainID: expectedChainID,
		confirmTimeout:  confirmTimeout,
		gatewayBase:     gatewayBase,
	}
}

// Attach uploads data, then registers the resulting content id on-chain for
// owner. With encrypt set, the data is sealed under a key derived from the
// wallet's signature over DisclosurePrompt before upload.
//
// A wrong chain aborts before anything is uploaded: an attach transaction on
// the wrong network would burn gas binding the content id to the wrong
// verification domain. A confirmation timeout keeps the transaction hash in
// a pending local record so Reconcile can pick the result up later.
func (c *Client) Attach(ctx context.Context, owner, documentClass string, data []byte, fileName string, encrypt bool) (*models.AnchorRecord, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	ownerAddr := gethcommon.HexToAddress(owner)

	chainID, err := c.registry.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id lookup error: %w", err)
	}
	if chainID.Int64() != c.expectedChainID {
		return nil, fmt.Errorf("%w: connected to chain %d, expected %d",
			common.ErrWrongChain, chainID.Int64(), c.expectedChainID)
	}

	upload := data
	if encrypt {
		upload, err = c.seal(ctx, ownerAddr, data)
		if err != nil {
			return nil, err
		}
	}

	contentID, gatewayURL, err := c.storage.Upload(ctx, upload, fileName)
	if err != nil {
		return nil, err
	}
	c.logger.Info(ctx, "document uploaded", "cid", contentID, "encrypted", encrypt)

	opts, err := c.signer.TransactOpts(ctx, ownerAddr, chainID)
	if err != nil {
		return nil, err
	}
	tx, err := c.registry.AttachContentID(ctx, opts, contentID)
	if err != nil {
		return nil, err
	}

	record := &models.AnchorRecord{
		ContentID:       contentID,
		GatewayURL:      gatewayURL,
		TransactionHash: tx.Hash().Hex(),
		AttachedAt:      time.Now().UTC(),
		Encrypted:       encrypt,
		OwnerAddress:    ownerAddr.Hex(),
		DocumentClass:   documentClass,
	}

	if _, err := c.registry.WaitMined(ctx, tx, c.confirmTimeout); err != nil {
		if errors.Is(err, common.ErrTransactionTimedOut) {
			// the tx may still confirm; keep the hash so reconciliation
			// can resolve the outcome later
			record.Pending = true
			if saveErr := c.store.SaveAnchor(ctx, record); saveErr != nil {
				c.logger.Error(ctx, "failed to persist pending anchor", "error", saveErr.Error())
			}
			c.logger.Warn(ctx, "attach confirmation timed out", "tx", record.TransactionHash)
			return record, err
		}
		// mined but reverted, or wait failure: the previous local record,
		// if any, still reflects chain state and must not be overwritten
		return nil, err
	}

	if err := c.store.SaveAnchor(ctx, record); err != nil {
		c.logger.Error(ctx, "failed to persist anchor", "error", err.Error())
	}
	c.logger.Info(ctx, "content id attached", "cid", contentID, "tx", record.TransactionHash)
	return record, nil
}

// Load fetches the anchored document for (owner, documentClass) and, when
// the record marks it encrypted, unseals it with a fresh disclosure
// signature from the wallet.
func (c *Client) Load(ctx context.Context, owner, documentClass string) ([]byte, *models.AnchorRecord, error) {
	if err := c.begin(); err != nil {
		return nil, nil, err
	}
	defer c.end()

	record, err := c.store.LoadAnchor(ctx, gethcommon.HexToAddress(owner).Hex(), documentClass)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, common.ErrorNotFound
	}

	raw, err := c.storage.Fetch(ctx, record.ContentID)
	if err != nil {
		return nil, record, err
	}
	if !record.Encrypted {
		return raw, record, nil
	}

	data, err := c.unseal(ctx, gethcommon.HexToAddress(owner), raw)
	if err != nil {
		return nil, record, err
	}
	return data, record, nil
}

// Reconcile aligns the local record with chain state. The chain wins: a
// different on-chain content id replaces the local record (last on-chain
// write is authoritative). When the ids match, the richer local record is
// kept since the chain read cannot recover the transaction hash.
func (c *Client) Reconcile(ctx context.Context, owner, documentClass string) (*models.AnchorRecord, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	ownerAddr := gethcommon.HexToAddress(owner)

	chainCID, err := c.registry.ContentIDOf(ctx, ownerAddr)
	if err != nil {
		return nil, err
	}
	local, err := c.store.LoadAnchor(ctx, ownerAddr.Hex(), documentClass)
	if err != nil {
		return nil, err
	}

	if chainCID == "" {
		// nothing registered on-chain; a pending local record stays
		// pending until its transaction lands
		return local, nil
	}

	if local != nil && local.ContentID == chainCID {
		if local.Pending {
			local.Pending = false
			if err := c.store.SaveAnchor(ctx, local); err != nil {
				return nil, err
			}
			c.logger.Info(ctx, "pending anchor confirmed on-chain", "cid", chainCID)
		}
		return local, nil
	}

	adopted := &models.AnchorRecord{
		ContentID:     chainCID,
		GatewayURL:    c.gatewayURL(chainCID),
		AttachedAt:    time.Now().UTC(),
		OwnerAddress:  ownerAddr.Hex(),
		DocumentClass: documentClass,
	}
	if local != nil {
		adopted.Encrypted = local.Encrypted
	}
	if err := c.store.SaveAnchor(ctx, adopted); err != nil {
		return nil, err
	}
	c.logger.Info(ctx, "adopted on-chain anchor", "cid", chainCID)
	return adopted, nil
}

// Watch subscribes to attach events for owner and keeps the local record for
// documentClass current until ctx is canceled or stop is called.
func (c *Client) Watch(ctx context.Context, owner, documentClass string) (stop func(), err error) {
	ownerAddr := gethcommon.HexToAddress(owner)
	sink := make(chan registry.Attached, 8)

	stopWatch, err := c.registry.WatchAttached(ctx, ownerAddr, sink)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev := <-sink:
				record := &models.AnchorRecord{
					ContentID:       ev.ContentID,
					GatewayURL:      c.gatewayURL(ev.ContentID),
					TransactionHash: ev.TxHash.Hex(),
					AttachedAt:      time.Now().UTC(),
					OwnerAddress:    ownerAddr.Hex(),
					DocumentClass:   documentClass,
				}
				if err := c.store.SaveAnchor(ctx, record); err != nil {
					c.logger.Error(ctx, "failed to persist watched anchor", "error", err.Error())
					continue
				}
				c.logger.Info(ctx, "anchor updated from chain event", "cid", ev.ContentID, "tx", record.TransactionHash)
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		stopWatch()
		once.Do(func() { close(done) })
	}, nil
}

// Record returns the local anchor record without touching the network.
func (c *Client) Record(ctx context.Context, owner, documentClass string) (*models.AnchorRecord, error) {
	return c.store.LoadAnchor(ctx, gethcommon.HexToAddress(owner).Hex(), documentClass)
}

func (c *Client) seal(ctx context.Context, owner gethcommon.Address, data []byte) ([]byte, error) {
	sig, err := c.signer.SignPersonal(ctx, owner, []byte(DisclosurePrompt))
	if err != nil {
		return nil, err
	}
	payload, err := vaultx.Encrypt(data, hexutil.Encode(sig))
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

func (c *Client) unseal(ctx context.Context, owner gethcommon.Address, raw []byte) ([]byte, error) {
	var payload vaultx.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: not a sealed payload", common.ErrDecryptionFailed)
	}
	sig, err := c.signer.SignPersonal(ctx, owner, []byte(DisclosurePrompt))
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := vaultx.Decrypt(&payload, hexutil.Encode(sig), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) gatewayURL(contentID string) string {
	if c.gatewayBase == "" {
		return ""
	}
	return c.gatewayBase + "/ipfs/" + contentID
}

func (c *Client) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return common.ErrBusy
	}
	c.busy = true
	return nil
}

func (c *Client) end() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}
