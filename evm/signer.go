package evm

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	txtracker "github.com/uliana1one/keypass-txtracker"
)

// Tx wraps an unsigned go-ethereum transaction for tracking. From is the
// sender address, used only for fee estimation.
type Tx struct {
	Inner *types.Transaction
	From  common.Address
}

// NewTx wraps an unsigned transaction.
func NewTx(inner *types.Transaction, from common.Address) *Tx {
	return &Tx{Inner: inner, From: from}
}

// Kind reports the confirmation-count chain family.
func (t *Tx) Kind() txtracker.ChainKind {
	return txtracker.ChainKindConfirmationCount
}

// Signer signs EVM transactions with a raw ECDSA private key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner builds a signer from a private key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// ID returns the checksummed hex address of the signing key.
func (s *Signer) ID() string {
	return s.address.Hex()
}

// Address returns the signer's address.
func (s *Signer) Address() common.Address {
	return s.address
}
