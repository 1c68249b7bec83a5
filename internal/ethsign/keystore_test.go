package ethsign

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	appcommon "github.com/akarpov91/chainanchor/internal/common"
)

func lightKeystoreSigner(t *testing.T, passphrase string) (*KeystoreSigner, common.Address) {
	t.Helper()
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	acc, err := ks.NewAccount(passphrase)
	require.NoError(t, err)

	s := &KeystoreSigner{
		ks:         ks,
		chainID:    big.NewInt(1),
		passphrase: func() ([]byte, error) { return []byte(passphrase), nil },
	}
	return s, acc.Address
}

func TestKeystoreSigner_RequestAccounts(t *testing.T) {
	s, addr := lightKeystoreSigner(t, "pw")

	accs, err := s.RequestAccounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, []common.Address{addr}, accs)
}

func TestKeystoreSigner_NoAccounts(t *testing.T) {
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	s := &KeystoreSigner{ks: ks, chainID: big.NewInt(1)}

	_, err := s.RequestAccounts(context.Background())
	require.ErrorIs(t, err, appcommon.ErrNoAccount)
}

func TestKeystoreSigner_SignPersonal_Recoverable(t *testing.T) {
	s, addr := lightKeystoreSigner(t, "pw")
	msg := []byte("sign in to chainanchor")

	sig, err := s.SignPersonal(context.Background(), addr, msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.GreaterOrEqual(t, sig[64], byte(27))

	// recover like the verifier does
	rec := make([]byte, 65)
	copy(rec, sig)
	rec[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(msg), rec)
	require.NoError(t, err)
	require.Equal(t, addr, crypto.PubkeyToAddress(*pub))
}

func TestKeystoreSigner_ChainID(t *testing.T) {
	s, _ := lightKeystoreSigner(t, "pw")
	id, err := s.ChainID(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), id.Int64())
}

type recordingListener struct {
	mu       sync.Mutex
	accounts [][]common.Address
	chains   []*big.Int
}

func (r *recordingListener) AccountsChanged(a []common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = append(r.accounts, a)
}

func (r *recordingListener) ChainChanged(id *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains = append(r.chains, id)
}

func TestNotifier_SubscribeUnsubscribe(t *testing.T) {
	var n Notifier
	l := &recordingListener{}

	unsub := n.Subscribe(l)
	n.EmitAccountsChanged([]common.Address{{0x01}})
	n.EmitChainChanged(big.NewInt(5))

	require.Len(t, l.accounts, 1)
	require.Len(t, l.chains, 1)

	unsub()
	n.EmitAccountsChanged(nil)
	require.Len(t, l.accounts, 1)
}
