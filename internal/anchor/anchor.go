// Package anchor records document content hashes on an Ethereum-compatible
// chain and reads them back for verification.
package anchor

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

var (
	ErrInvalidHash  = errors.New("anchor hash must be 32 bytes of hex")
	ErrTxNotFound   = errors.New("anchor transaction not found")
	ErrTxPending    = errors.New("anchor transaction still pending")
	ErrNotAnchorTx  = errors.New("transaction does not carry an anchor hash")
	ErrInvalidKey   = errors.New("invalid chain private key")
	ErrChainMissing = errors.New("chain anchoring not configured")
)

// Hash returns the hex SHA-256 of payload.
func Hash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Anchorer writes and reads content hashes on chain.
type Anchorer interface {
	Anchor(ctx context.Context, hash string) (string, error)
	ReadAnchor(ctx context.Context, txHash string) (string, error)
}

// chainClient is the subset of ethclient.Client used for anchoring.
type chainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// EthereumAnchor sends a zero-value transaction from the configured account to
// itself with the content hash as calldata.
type EthereumAnchor struct {
	client  chainClient
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	logger  *zap.Logger
	closeFn func()
}

// Dial connects to rpcURL and prepares a signer for privateKeyHex.
func Dial(ctx context.Context, rpcURL, privateKeyHex string, chainID int64, logger *zap.Logger) (*EthereumAnchor, error) {
	if strings.TrimSpace(rpcURL) == "" || strings.TrimSpace(privateKeyHex) == "" {
		return nil, ErrChainMissing
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	anchor, err := newEthereumAnchor(client, privateKeyHex, chainID, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	anchor.closeFn = client.Close
	return anchor, nil
}

func newEthereumAnchor(client chainClient, privateKeyHex string, chainID int64, logger *zap.Logger) (*EthereumAnchor, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, ErrInvalidKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EthereumAnchor{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		logger:  logger.With(zap.String("component", "anchor")),
	}, nil
}

// Address is the account that signs anchor transactions.
func (a *EthereumAnchor) Address() string {
	return a.from.Hex()
}

// Anchor submits hash and returns the transaction hash without waiting for
// inclusion.
func (a *EthereumAnchor) Anchor(ctx context.Context, hash string) (string, error) {
	data, err := decodeHash(hash)
	if err != nil {
		return "", err
	}

	nonce, err := a.client.PendingNonceAt(ctx, a.from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	tipCap, err := a.client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas tip: %w", err)
	}
	head, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tipCap)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	to := a.from
	gas, err := a.client.EstimateGas(ctx, ethereum.CallMsg{
		From:      a.from,
		To:        &to,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Value:     big.NewInt(0),
		Data:      data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   a.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.key)
	if err != nil {
		return "", fmt.Errorf("sign anchor tx: %w", err)
	}
	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send anchor tx: %w", err)
	}

	txHash := signed.Hash().Hex()
	a.logger.Info("hash anchored",
		zap.String("tx_hash", txHash),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
	)
	return txHash, nil
}

// ReadAnchor returns the hex hash carried by the transaction's calldata.
func (a *EthereumAnchor) ReadAnchor(ctx context.Context, txHash string) (string, error) {
	tx, pending, err := a.client.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return "", ErrTxNotFound
		}
		return "", fmt.Errorf("fetch anchor tx: %w", err)
	}
	if pending {
		return "", ErrTxPending
	}
	if len(tx.Data()) != sha256.Size {
		return "", ErrNotAnchorTx
	}
	return hex.EncodeToString(tx.Data()), nil
}

func (a *EthereumAnchor) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func decodeHash(hash string) ([]byte, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hash)), "0x"))
	if err != nil || len(data) != sha256.Size {
		return nil, ErrInvalidHash
	}
	return data, nil
}
