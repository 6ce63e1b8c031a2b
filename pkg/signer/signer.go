// Package signer provides a local private-key implementation of the signing
// backend contract. Production deployments plug in hardware or remote
// keystores behind the same interface.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/orb-labs/orchestrator/pkg/models"
)

// DefaultGasPrice is used when no gas price has been configured (1 gwei).
var DefaultGasPrice = big.NewInt(1_000_000_000)

// Local signs normalized transaction payloads with an in-process secp256k1
// key. Nonces are tracked per chain in memory; callers must sign same-chain
// operations in order, which the submitter guarantees.
type Local struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	gasPrice *big.Int

	mu     sync.Mutex
	nonces map[int64]uint64
}

// NewLocal creates a signer from a hex-encoded private key.
func NewLocal(hexKey string) (*Local, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}

	return &Local{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		gasPrice: DefaultGasPrice,
		nonces:   make(map[int64]uint64),
	}, nil
}

// Address returns the signing address.
func (l *Local) Address() common.Address {
	return l.address
}

// SetGasPrice overrides the gas price attached to signed transactions.
func (l *Local) SetGasPrice(price *big.Int) {
	l.gasPrice = price
}

// SetNonce seeds the nonce counter for a chain, typically from the account's
// current on-chain transaction count.
func (l *Local) SetNonce(chainID int64, nonce uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nonces[chainID] = nonce
}

// SignTransaction signs the payload and returns the hex-encoded signed
// transaction together with the echoed raw payload.
func (l *Local) SignTransaction(_ context.Context, payload models.TxPayload) (models.SignedOperation, error) {
	if payload.From != "" && !strings.EqualFold(payload.From, l.address.Hex()) {
		return models.SignedOperation{}, fmt.Errorf("payload from %s does not match signer address %s", payload.From, l.address.Hex())
	}

	value, err := parseQuantity(payload.Value)
	if err != nil {
		return models.SignedOperation{}, fmt.Errorf("invalid value %q: %v", payload.Value, err)
	}

	data, err := parseData(payload.Data)
	if err != nil {
		return models.SignedOperation{}, fmt.Errorf("invalid call data: %v", err)
	}

	var to *common.Address
	if payload.To != "" {
		addr := common.HexToAddress(payload.To)
		to = &addr
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    l.nextNonce(payload.ChainID),
		GasPrice: l.gasPrice,
		Gas:      payload.GasLimit,
		To:       to,
		Value:    value,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(payload.ChainID)), l.key)
	if err != nil {
		return models.SignedOperation{}, fmt.Errorf("failed to sign transaction: %v", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return models.SignedOperation{}, fmt.Errorf("failed to encode signed transaction: %v", err)
	}

	return models.SignedOperation{
		SignedPayload: hexutil.Encode(raw),
		Raw:           payload,
		ChainID:       payload.ChainID,
	}, nil
}

func (l *Local) nextNonce(chainID int64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	nonce := l.nonces[chainID]
	l.nonces[chainID] = nonce + 1
	return nonce
}

// parseQuantity accepts hex quantities ("0x0") and decimal strings.
func parseQuantity(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return hexutil.DecodeBig(s)
	}
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal quantity")
	}
	return value, nil
}

func parseData(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
