package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// positionKeyTag namespaces position keys inside the vault contract's
// storage. The derivation scheme belongs to the ledger; the core only needs
// it to address read calls.
var positionKeyTag = []byte("position")

// PositionKey derives the vault storage key for an owner's position.
func PositionKey(owner common.Address) common.Hash {
	return crypto.Keccak256Hash(positionKeyTag, owner.Bytes())
}

// symbolTo32 right-pads an asset symbol into a bytes32 argument.
func symbolTo32(symbol string) [32]byte {
	var out [32]byte
	copy(out[:], symbol)
	return out
}

// symbolFrom32 trims the zero padding back off.
func symbolFrom32(b [32]byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// paymentIDTo32 hashes a free-form payment identifier into the contract's
// fixed-width replay key.
func paymentIDTo32(id string) [32]byte {
	return crypto.Keccak256Hash([]byte(id))
}
