package eth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// NonceSource is satisfied by *Client.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Call is one unsigned transaction the wallet will sign.
type Call struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

// Wallet holds the searcher's signing key. Nonce lookup and signing run
// under one lock so concurrent callers never sign with the same nonce.
type Wallet struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
	nonces  NonceSource
}

func NewWallet(key *ecdsa.PrivateKey, chainID *big.Int, nonces NonceSource) (*Wallet, error) {
	if key == nil {
		return nil, fmt.Errorf("wallet key is nil")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id %v", chainID)
	}
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
		nonces:  nonces,
	}, nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

// SignCalls signs one legacy tx per call with consecutive nonces starting
// at the account's pending nonce.
func (w *Wallet) SignCalls(ctx context.Context, calls []Call) ([]*types.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	nonce, err := w.nonces.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	txs := make([]*types.Transaction, 0, len(calls))
	for i, call := range calls {
		value := call.Value
		if value == nil {
			value = new(big.Int)
		}
		to := call.To
		tx, err := types.SignNewTx(w.key, w.signer, &types.LegacyTx{
			Nonce:    nonce + uint64(i),
			To:       &to,
			Value:    value,
			Gas:      call.Gas,
			GasPrice: call.GasPrice,
			Data:     call.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("sign tx %d: %w", i, err)
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

// ParsePrivateKey accepts a hex key with or without the 0x prefix.
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}
