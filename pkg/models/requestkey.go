package models

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// ComputeRequestKey derives the deterministic identifier of a logical
// transaction intent from its destination chain, sender, recipient and call
// data. The call data is replaced with its keccak256 hash so keys stay short
// while remaining collision-resistant for practical purposes. Addresses are
// lowercased so checksum casing does not split identical intents.
func ComputeRequestKey(chainID int64, from, to, data string) string {
	hash := crypto.Keccak256Hash([]byte(data))
	return fmt.Sprintf("%d:%s:%s:%s", chainID, strings.ToLower(from), strings.ToLower(to), hash.Hex())
}

// OperationID derives the stable identifier of a submitted operation from
// its signed payload. The status service is queried by these ids.
func OperationID(signedPayload string) string {
	return crypto.Keccak256Hash([]byte(signedPayload)).Hex()
}
