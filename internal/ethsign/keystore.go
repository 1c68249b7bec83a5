package ethsign

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"

	appcommon "github.com/akarpov91/chainanchor/internal/common"
)

// PassphraseFunc supplies the keystore passphrase on demand, e.g. a terminal
// prompt. It is called at most once; the result is cached for the lifetime
// of the signer.
type PassphraseFunc func() ([]byte, error)

// KeystoreSigner is a Signer backed by a go-ethereum encrypted keystore
// directory. It serves the CLI, where no browser wallet exists; account and
// chain changes never fire for a static keystore, but the subscription
// surface is still honored.
type KeystoreSigner struct {
	Notifier

	ks         *keystore.KeyStore
	chainID    *big.Int
	passphrase PassphraseFunc

	cached []byte
}

// NewKeystoreSigner opens the keystore directory at dir. chainID is the
// network this signer considers itself connected to (the CLI resolves it
// from its RPC endpoint).
func NewKeystoreSigner(dir string, chainID *big.Int, passphrase PassphraseFunc) *KeystoreSigner {
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	return &KeystoreSigner{ks: ks, chainID: chainID, passphrase: passphrase}
}

func (s *KeystoreSigner) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if s.ks == nil {
		return nil, appcommon.ErrNoSigner
	}
	accs := s.ks.Accounts()
	if len(accs) == 0 {
		return nil, appcommon.ErrNoAccount
	}
	out := make([]common.Address, len(accs))
	for i, a := range accs {
		out[i] = a.Address
	}
	return out, nil
}

func (s *KeystoreSigner) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(s.chainID), nil
}

func (s *KeystoreSigner) SignPersonal(ctx context.Context, addr common.Address, msg []byte) ([]byte, error) {
	pass, err := s.getPassphrase()
	if err != nil {
		return nil, err
	}

	hash := accounts.TextHash(msg)
	sig, err := s.ks.SignHashWithPassphrase(accounts.Account{Address: addr}, string(pass), hash)
	if err != nil {
		if errors.Is(err, keystore.ErrNoMatch) {
			return nil, appcommon.ErrNoAccount
		}
		return nil, err
	}

	// Wallets report v as 27/28; crypto.Sign yields 0/1.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

func (s *KeystoreSigner) TransactOpts(ctx context.Context, addr common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	pass, err := s.getPassphrase()
	if err != nil {
		return nil, err
	}
	account := accounts.Account{Address: addr}
	if err := s.ks.Unlock(account, string(pass)); err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(s.ks, account, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

func (s *KeystoreSigner) Close() error {
	appcommon.WipeByteArray(s.cached)
	s.cached = nil
	return nil
}

func (s *KeystoreSigner) getPassphrase() ([]byte, error) {
	if s.cached != nil {
		return s.cached, nil
	}
	if s.passphrase == nil {
		return nil, appcommon.ErrNoSigner
	}
	pass, err := s.passphrase()
	if err != nil {
		return nil, err
	}
	s.cached = pass
	return pass, nil
}
