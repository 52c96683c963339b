package testutil

import (
	"math/big"
)

// ============================================================
// Test Transaction Hashes
// ============================================================

const (
	// TestHash1 is a well-formed hash for the first submission
	TestHash1 = "0x1111111111111111111111111111111111111111111111111111111111111111"
	// TestHash2 is a well-formed hash for a second submission or a retry
	TestHash2 = "0x2222222222222222222222222222222222222222222222222222222222222222"
	// TestHash3 is an additional well-formed hash
	TestHash3 = "0x3333333333333333333333333333333333333333333333333333333333333333"
	// TestHash4 is an additional well-formed hash
	TestHash4 = "0x4444444444444444444444444444444444444444444444444444444444444444"
)

// ============================================================
// Test Block References
// ============================================================

const (
	// TestBlockHash is a block hash for inclusion events
	TestBlockHash = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	// TestBlockNumber is a block height for inclusion events
	TestBlockNumber = uint64(1_234_567)
)

// ============================================================
// Operation Labels
// ============================================================

const (
	// LabelDIDRegistration labels a DID anchoring transaction
	LabelDIDRegistration = "DID Registration"
	// LabelSBTMinting labels a soulbound token mint
	LabelSBTMinting = "SBT Minting"
)

// ============================================================
// Common Fee Amounts
// ============================================================

var (
	// FeeSmall is a small chain-native fee amount
	FeeSmall = big.NewInt(1_000_000)
	// FeeLarge is a larger chain-native fee amount
	FeeLarge = big.NewInt(5_000_000)
)
