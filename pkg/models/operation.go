package models

import (
	"fmt"
)

// OperationKind identifies the role of a single on-chain operation within a
// multi-step plan.
type OperationKind string

const (
	// KindNativeTransfer moves native currency on the source chain
	KindNativeTransfer OperationKind = "NATIVE_TRANSFER"
	// KindApproveToken grants a token allowance required by a later step
	KindApproveToken OperationKind = "APPROVE_TOKEN"
	// KindSubmitIntent submits the bridging intent to the cross-chain network
	KindSubmitIntent OperationKind = "SUBMIT_INTENT"
	// KindFinalTransaction is the destination-chain call the user asked for
	KindFinalTransaction OperationKind = "FINAL_TRANSACTION"
)

// OperationStatus is the local lifecycle state of an operation.
type OperationStatus string

const (
	StatusInitial    OperationStatus = "INITIAL"
	StatusSubmitting OperationStatus = "SUBMITTING"
	StatusSuccessful OperationStatus = "SUCCESSFUL"
	StatusFailed     OperationStatus = "FAILED"
)

// Token describes a fungible token on a specific chain.
type Token struct {
	ChainID  int64  `json:"chain_id"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	IsNative bool   `json:"is_native"`
	LogoURL  string `json:"logo_url,omitempty"`
}

// TokenAmount pairs a token with a raw integer amount in the token's
// smallest unit.
type TokenAmount struct {
	Token     Token  `json:"token"`
	RawAmount string `json:"raw_amount"`
}

// Operation is one atomic on-chain call within a request's plan.
type Operation struct {
	ChainID      int64           `json:"chain_id"`
	From         string          `json:"from,omitempty"`
	To           string          `json:"to,omitempty"`
	Data         string          `json:"data,omitempty"`
	Value        string          `json:"value,omitempty"`
	GasLimit     uint64          `json:"gas_limit,omitempty"`
	Kind         OperationKind   `json:"kind"`
	TokenAmounts []TokenAmount   `json:"token_amounts,omitempty"`
	Status       OperationStatus `json:"status"`
	SubmittedID  string          `json:"submitted_id,omitempty"`
}

// Operations is the ordered operation list of one request entry.
type Operations []Operation

// FinalIndex returns the index of the FINAL_TRANSACTION operation. A valid
// plan has exactly one, and it is the last element.
func (ops Operations) FinalIndex() (int, error) {
	if len(ops) == 0 {
		return 0, fmt.Errorf("empty operation list")
	}
	count := 0
	for _, op := range ops {
		if op.Kind == KindFinalTransaction {
			count++
		}
	}
	if count != 1 {
		return 0, fmt.Errorf("expected exactly one final transaction, found %d", count)
	}
	last := len(ops) - 1
	if ops[last].Kind != KindFinalTransaction {
		return 0, fmt.Errorf("final transaction is not the last operation")
	}
	return last, nil
}

// Statuses snapshots the current status vector of the list.
func (ops Operations) Statuses() []StatusUpdate {
	updates := make([]StatusUpdate, len(ops))
	for i, op := range ops {
		updates[i] = StatusUpdate{Status: op.Status, SubmittedID: op.SubmittedID}
	}
	return updates
}

// StatusUpdate is one element of a whole-list status batch.
type StatusUpdate struct {
	Status      OperationStatus `json:"status"`
	SubmittedID string          `json:"submitted_id,omitempty"`
}

// SubmittingStatuses builds a batch marking n operations SUBMITTING.
func SubmittingStatuses(n int) []StatusUpdate {
	updates := make([]StatusUpdate, n)
	for i := range updates {
		updates[i] = StatusUpdate{Status: StatusSubmitting}
	}
	return updates
}

// FailedStatuses builds a batch marking n operations FAILED.
func FailedStatuses(n int) []StatusUpdate {
	updates := make([]StatusUpdate, n)
	for i := range updates {
		updates[i] = StatusUpdate{Status: StatusFailed}
	}
	return updates
}

// TransactionIntent is the raw transaction request handed over by a dApp.
type TransactionIntent struct {
	ChainID              int64   `json:"chain_id"`
	From                 string  `json:"from"`
	To                   string  `json:"to,omitempty"`
	Data                 string  `json:"data,omitempty"`
	Value                string  `json:"value,omitempty"`
	GasLimit             uint64  `json:"gas_limit,omitempty"`
	GasPrice             string  `json:"gas_price,omitempty"`
	MaxFeePerGas         string  `json:"max_fee_per_gas,omitempty"`
	MaxPriorityFeePerGas string  `json:"max_priority_fee_per_gas,omitempty"`
	Nonce                *uint64 `json:"nonce,omitempty"`
}

// Eligible reports whether the intent can be expanded into a multi-step
// plan. Intents without call data or a destination chain are passed through
// to the wallet unchanged.
func (i TransactionIntent) Eligible() bool {
	return i.ChainID != 0 && i.Data != "" && i.Data != "0x"
}

// TxPayload is the normalized payload handed to the signing backend.
type TxPayload struct {
	From     string `json:"from"`
	To       string `json:"to,omitempty"`
	Value    string `json:"value"`
	Data     string `json:"data"`
	ChainID  int64  `json:"chain_id"`
	GasLimit uint64 `json:"gas_limit"`
}

// SignedOperation is a signed payload together with the raw transaction the
// signing backend echoed back.
type SignedOperation struct {
	SignedPayload string        `json:"signed_payload"`
	Raw           TxPayload     `json:"raw"`
	Kind          OperationKind `json:"kind"`
	ChainID       int64         `json:"chain_id"`
}
