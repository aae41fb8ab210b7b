package anchor

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	sent    *types.Transaction
	pending bool
	sendErr error
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 7, nil }
func (f *fakeChain) SuggestGasTipCap(context.Context) (*big.Int, error)             { return big.NewInt(2), nil }
func (f *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(10)}, nil
}
func (f *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21512, nil
}
func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = tx
	return nil
}
func (f *fakeChain) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if f.sent == nil || f.sent.Hash() != hash {
		return nil, false, ethereum.NotFound
	}
	return f.sent, f.pending, nil
}

func newTestAnchor(t *testing.T, chain *fakeChain) *EthereumAnchor {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	a, err := newEthereumAnchor(chain, "0x"+hex.EncodeToString(crypto.FromECDSA(key)), 11155111, nil)
	require.NoError(t, err)
	return a
}

func TestHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Hash(nil))
	assert.Equal(t, Hash([]byte("abc")), Hash([]byte("abc")))
	assert.NotEqual(t, Hash([]byte("abc")), Hash([]byte("abd")))
}

func TestAnchorRoundTrip(t *testing.T) {
	chain := &fakeChain{}
	a := newTestAnchor(t, chain)
	hash := Hash([]byte(`{"sections":[]}`))

	txHash, err := a.Anchor(context.Background(), hash)
	require.NoError(t, err)
	require.NotNil(t, chain.sent)

	tx := chain.sent
	assert.Equal(t, txHash, tx.Hash().Hex())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, a.Address(), tx.To().Hex())
	assert.Equal(t, int64(0), tx.Value().Int64())
	assert.Equal(t, int64(22), tx.GasFeeCap().Int64())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), tx)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), sender.Hex())

	read, err := a.ReadAnchor(context.Background(), txHash)
	require.NoError(t, err)
	assert.Equal(t, hash, read)
}

func TestAnchorRejectsMalformedHash(t *testing.T) {
	a := newTestAnchor(t, &fakeChain{})
	_, err := a.Anchor(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestAnchorSendFailure(t *testing.T) {
	a := newTestAnchor(t, &fakeChain{sendErr: errors.New("insufficient funds")})
	_, err := a.Anchor(context.Background(), Hash([]byte("x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestReadAnchorNotFoundAndPending(t *testing.T) {
	chain := &fakeChain{}
	a := newTestAnchor(t, chain)
	_, err := a.ReadAnchor(context.Background(), "0x01")
	assert.ErrorIs(t, err, ErrTxNotFound)

	txHash, err := a.Anchor(context.Background(), Hash([]byte("y")))
	require.NoError(t, err)
	chain.pending = true
	_, err = a.ReadAnchor(context.Background(), txHash)
	assert.ErrorIs(t, err, ErrTxPending)
}

func TestNewEthereumAnchorInvalidKey(t *testing.T) {
	_, err := newEthereumAnchor(&fakeChain{}, "not-hex", 1, nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestDialRequiresConfig(t *testing.T) {
	_, err := Dial(context.Background(), "", "", 1, nil)
	assert.ErrorIs(t, err, ErrChainMissing)
}
