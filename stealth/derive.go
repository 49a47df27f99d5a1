package stealth

import (
	"fmt"
	"io"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"

	"github.com/sip-protocol/sip-core/chains"
	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// Address is a chain-native address derived from a one-time key.
type Address struct {
	Chain   chains.Tag
	Bytes   []byte // 20 bytes for EVM chains, 32 for ed25519 chains
	Encoded string // EIP-55 hex or base58
}

// Derivation is the sender-side output of a stealth derivation: everything
// that gets published alongside the payment.
type Derivation struct {
	Address            Address
	EphemeralPublicKey *curve.Point
	ViewTag            uint8
}

// Derive derives a one-time stealth address from a recipient meta-address
// and an ephemeral private scalar.
//
// Protocol:
//  1. Shared secret s = hash_to_scalar("SIP-STEALTH-v1", e * viewing_pub)
//  2. One-time key P = spending_pub + s*G
//  3. Chain-native address from P; view tag from hash of s
func Derive(meta *MetaAddress, ephemeralPriv *curve.Scalar) (*Derivation, error) {
	if meta == nil {
		return nil, siperr.InvalidMetaAddress.Errorf("nil meta-address")
	}
	if ephemeralPriv == nil || ephemeralPriv.IsZero() {
		return nil, siperr.InvalidScalar.Errorf("ephemeral key must be non-zero")
	}
	if ephemeralPriv.Curve() != meta.SpendingPub.Curve() {
		return nil, siperr.ChainMismatch.Errorf("ephemeral key curve %s, meta-address curve %s",
			ephemeralPriv.Curve(), meta.SpendingPub.Curve())
	}

	shared, err := sharedSecret(meta.ViewingPub, ephemeralPriv)
	if err != nil {
		return nil, err
	}
	defer shared.Zeroize()

	oneTime, err := oneTimeKey(meta.SpendingPub, shared)
	if err != nil {
		return nil, err
	}
	addr, err := addressFromKey(meta.Chain, oneTime)
	if err != nil {
		return nil, err
	}
	tag, err := viewTag(shared)
	if err != nil {
		return nil, err
	}

	return &Derivation{
		Address:            addr,
		EphemeralPublicKey: curve.ScalarBaseMult(ephemeralPriv),
		ViewTag:            tag,
	}, nil
}

// DeriveFresh generates an ephemeral keypair internally, derives the stealth
// address, and destroys the ephemeral private key before returning. This is
// the call senders normally use.
func DeriveFresh(meta *MetaAddress, rand io.Reader) (*Derivation, error) {
	if meta == nil {
		return nil, siperr.InvalidMetaAddress.Errorf("nil meta-address")
	}
	ephemeralPriv, err := curve.RandomScalar(meta.SpendingPub.Curve(), rand)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	defer ephemeralPriv.Zeroize()
	return Derive(meta, ephemeralPriv)
}

// sharedSecret computes hash_to_scalar("SIP-STEALTH-v1", priv * pub).
func sharedSecret(pub *curve.Point, priv *curve.Scalar) (*curve.Scalar, error) {
	ecdh, err := pub.Mul(priv)
	if err != nil {
		return nil, err
	}
	if ecdh.IsIdentity() {
		return nil, siperr.DegenerateKey.Errorf("degenerate ECDH result")
	}
	enc, err := ecdh.Bytes()
	if err != nil {
		return nil, err
	}
	return curve.HashToScalar(pub.Curve(), sharedSecretDomain, enc)
}

// oneTimeKey computes P = spending_pub + s*G, rejecting the (astronomically
// improbable) identity result.
func oneTimeKey(spendingPub *curve.Point, shared *curve.Scalar) (*curve.Point, error) {
	tweak := curve.ScalarBaseMult(shared)
	p, err := spendingPub.Add(tweak)
	if err != nil {
		return nil, err
	}
	if p.IsIdentity() {
		return nil, siperr.DegenerateKey.Errorf("one-time key is the identity")
	}
	return p, nil
}

// viewTag is the first byte of hash_to_scalar("SIP-VIEWTAG-v1", s), a cheap
// scanning filter with a ~1/256 false-positive rate.
func viewTag(shared *curve.Scalar) (uint8, error) {
	t, err := curve.HashToScalar(shared.Curve(), viewTagDomain, shared.Bytes())
	if err != nil {
		return 0, err
	}
	return t.Bytes()[0], nil
}

// AddressForKey derives the chain-native address for a public key using the
// chain's canonical rule. The proof layer uses it to assert key-address
// bindings.
func AddressForKey(tag chains.Tag, p *curve.Point) (Address, error) {
	return addressFromKey(tag, p)
}

// addressFromKey derives the chain-native address for a one-time key.
func addressFromKey(tag chains.Tag, p *curve.Point) (Address, error) {
	chain, err := chains.Get(tag)
	if err != nil {
		return Address{}, err
	}
	switch chain.Curve {
	case curve.Secp256k1:
		return ethAddress(tag, p)
	case curve.Ed25519:
		enc, err := p.Bytes()
		if err != nil {
			return Address{}, err
		}
		return Address{Chain: tag, Bytes: enc, Encoded: base58.Encode(enc)}, nil
	}
	return Address{}, siperr.ChainMismatch.Errorf("no address rule for curve %s", chain.Curve)
}

// ethAddress converts a secp256k1 public key to an Ethereum address.
//
// Algorithm (EIP-55):
//  1. Decompress the public key to uncompressed form (65 bytes)
//  2. Remove the 0x04 prefix (take last 64 bytes)
//  3. keccak256 hash of the 64 bytes
//  4. Take the last 20 bytes as the address
//  5. Apply EIP-55 checksum
func ethAddress(tag chains.Tag, p *curve.Point) (Address, error) {
	uncompressed, err := p.UncompressedBytes()
	if err != nil {
		return Address{}, err
	}

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(uncompressed[1:])
	hash := hasher.Sum(nil)
	addressBytes := hash[12:]

	return Address{
		Chain:   tag,
		Bytes:   addressBytes,
		Encoded: checksumHex(addressBytes),
	}, nil
}

// checksumHex applies the EIP-55 mixed-case checksum.
func checksumHex(addressBytes []byte) string {
	addressHex := fmt.Sprintf("%x", addressBytes)

	checksumHasher := sha3.NewLegacyKeccak256()
	checksumHasher.Write([]byte(addressHex))
	checksumHash := checksumHasher.Sum(nil)

	var checksummed strings.Builder
	for i, c := range addressHex {
		if c >= '0' && c <= '9' {
			checksummed.WriteByte(byte(c))
		} else {
			nibble := (checksumHash[i/2] >> (4 * (1 - uint(i%2)))) & 0x0f
			if nibble >= 8 {
				checksummed.WriteByte(byte(c - 32)) // Uppercase
			} else {
				checksummed.WriteByte(byte(c))
			}
		}
	}

	return "0x" + checksummed.String()
}
