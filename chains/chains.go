// Package chains holds the static chain registry: which family and curve a
// chain tag maps to, its block time, and its cost characteristics. The
// registry backs meta-address validation (tag -> curve), intent expiry
// handling (block time), and the fee helpers the settlement adapters use.
package chains

import (
	"strings"

	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// Tag is a chain identifier as it appears in meta-addresses and intent
// envelopes (e.g. "ethereum", "solana", "near").
type Tag = string

// Family represents the blockchain family.
type Family string

const (
	FamilySolana  Family = "solana"
	FamilyEVM     Family = "evm"
	FamilyNear    Family = "near"
	FamilyBitcoin Family = "bitcoin"
	FamilyCosmos  Family = "cosmos"
)

// Characteristics describes a chain's properties.
type Characteristics struct {
	Family      Family
	Curve       curve.Curve
	BlockTime   float64 // seconds
	HasEIP1559  bool
	IsL2        bool
	CostTier    int // 1=cheapest, 5=most expensive
	NativeToken string
}

// Chain characteristics database
var registry = map[Tag]Characteristics{
	"solana": {
		Family:      FamilySolana,
		Curve:       curve.Ed25519,
		BlockTime:   0.4,
		CostTier:    1,
		NativeToken: "SOL",
	},
	"ethereum": {
		Family:      FamilyEVM,
		Curve:       curve.Secp256k1,
		BlockTime:   12.0,
		HasEIP1559:  true,
		CostTier:    5,
		NativeToken: "ETH",
	},
	"arbitrum": {
		Family:      FamilyEVM,
		Curve:       curve.Secp256k1,
		BlockTime:   0.25,
		HasEIP1559:  true,
		IsL2:        true,
		CostTier:    2,
		NativeToken: "ETH",
	},
	"optimism": {
		Family:      FamilyEVM,
		Curve:       curve.Secp256k1,
		BlockTime:   2.0,
		HasEIP1559:  true,
		IsL2:        true,
		CostTier:    2,
		NativeToken: "ETH",
	},
	"base": {
		Family:      FamilyEVM,
		Curve:       curve.Secp256k1,
		BlockTime:   2.0,
		HasEIP1559:  true,
		IsL2:        true,
		CostTier:    2,
		NativeToken: "ETH",
	},
	"polygon": {
		Family:      FamilyEVM,
		Curve:       curve.Secp256k1,
		BlockTime:   2.0,
		HasEIP1559:  true,
		IsL2:        true,
		CostTier:    2,
		NativeToken: "MATIC",
	},
	"bsc": {
		Family:      FamilyEVM,
		Curve:       curve.Secp256k1,
		BlockTime:   3.0,
		CostTier:    1,
		NativeToken: "BNB",
	},
	"near": {
		Family:      FamilyNear,
		Curve:       curve.Ed25519,
		BlockTime:   1.0,
		CostTier:    1,
		NativeToken: "NEAR",
	},
}

// Known reports whether the tag is in the registry.
func Known(tag Tag) bool {
	_, ok := registry[normalize(tag)]
	return ok
}

// Get returns characteristics for a chain tag.
func Get(tag Tag) (Characteristics, error) {
	if c, ok := registry[normalize(tag)]; ok {
		return c, nil
	}
	return Characteristics{}, siperr.InvalidMetaAddress.Errorf("unknown chain tag %q", tag)
}

// CurveFor returns the curve a chain tag uses.
func CurveFor(tag Tag) (curve.Curve, error) {
	c, err := Get(tag)
	if err != nil {
		return 0, err
	}
	return c.Curve, nil
}

// DetectFamily guesses the chain family from an identifier, defaulting to
// EVM the way the SDK does.
func DetectFamily(tag Tag) Family {
	normalized := normalize(tag)
	switch {
	case strings.Contains(normalized, "solana"):
		return FamilySolana
	case strings.Contains(normalized, "near"):
		return FamilyNear
	case strings.Contains(normalized, "bitcoin"), strings.Contains(normalized, "btc"):
		return FamilyBitcoin
	case strings.Contains(normalized, "cosmos"), strings.Contains(normalized, "osmosis"):
		return FamilyCosmos
	}
	return FamilyEVM
}

func normalize(tag Tag) string {
	normalized := strings.ToLower(tag)
	if _, ok := registry[normalized]; ok {
		return normalized
	}
	// Try base name ("solana-devnet" -> "solana").
	if idx := strings.IndexByte(normalized, '-'); idx > 0 {
		return normalized[:idx]
	}
	return normalized
}
