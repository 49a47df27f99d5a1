// Package curve provides the two-curve primitive layer the rest of the
// protocol is built on: scalars and points on secp256k1 (Ethereum-family
// chains) and ed25519 (Solana-family chains), domain-separated hashing into
// both structures, and the authenticated encryption used for viewing-key
// payloads.
//
// The two curves are deliberately not abstracted behind a generic interface;
// values carry a Curve tag and every operation rejects cross-curve mixing.
package curve

import (
	"github.com/sip-protocol/sip-core/siperr"
)

// Curve identifies one of the two supported curves.
type Curve uint8

const (
	// Secp256k1 is the Ethereum-family curve (ECDSA, Keccak addresses).
	Secp256k1 Curve = 1
	// Ed25519 is the Solana-family curve (EdDSA, base58 addresses).
	Ed25519 Curve = 2
)

// String returns the curve name.
func (c Curve) String() string {
	switch c {
	case Secp256k1:
		return "secp256k1"
	case Ed25519:
		return "ed25519"
	default:
		return "unknown"
	}
}

// Valid reports whether c is a supported curve.
func (c Curve) Valid() bool { return c == Secp256k1 || c == Ed25519 }

// DomainByte is the curve identifier mixed into domain-separated hashing.
func (c Curve) DomainByte() byte { return byte(c) }

// PointSize returns the compressed point encoding size in bytes.
func (c Curve) PointSize() int {
	if c == Secp256k1 {
		return 33
	}
	return 32
}

// ScalarSize is the encoded scalar size for both curves.
const ScalarSize = 32

func checkSameCurve(a, b Curve) error {
	if a != b {
		return siperr.ChainMismatch.Errorf("curve mismatch: %s vs %s", a, b)
	}
	return nil
}
