// Package stealth implements ECDH-based unlinkable addressing: recipients
// publish a long-lived meta-address, senders derive a fresh one-time address
// per payment, and recipients scan announcements with their viewing key.
// secp256k1 chains follow EIP-5564 semantics; ed25519 chains use the
// analogous construction with base58 addresses.
package stealth

import (
	"fmt"
	"io"
	"strings"

	"github.com/sip-protocol/sip-core/chains"
	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// Domain separation tags for stealth derivation.
const (
	sharedSecretDomain = "SIP-STEALTH-v1"
	viewTagDomain      = "SIP-VIEWTAG-v1"
	masterSpendDomain  = "SIP-STEALTH-SPEND-v1"
	masterViewDomain   = "SIP-STEALTH-VIEW-v1"
)

// MetaAddress contains the public keys for generating one-time addresses.
// Created once by a recipient, long-lived, published.
type MetaAddress struct {
	Chain       chains.Tag
	SpendingPub *curve.Point
	ViewingPub  *curve.Point
}

// Keys holds the recipient's private counterpart of a meta-address.
type Keys struct {
	SpendingPriv *curve.Scalar
	ViewingPriv  *curve.Scalar
}

// Zeroize wipes both private scalars.
func (k *Keys) Zeroize() {
	if k.SpendingPriv != nil {
		k.SpendingPriv.Zeroize()
	}
	if k.ViewingPriv != nil {
		k.ViewingPriv.Zeroize()
	}
}

// GenerateMetaAddress generates a fresh meta-address keypair for a chain.
func GenerateMetaAddress(tag chains.Tag, rand io.Reader) (*MetaAddress, *Keys, error) {
	crv, err := chains.CurveFor(tag)
	if err != nil {
		return nil, nil, err
	}
	spendingPriv, err := curve.RandomScalar(crv, rand)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate spending key: %w", err)
	}
	viewingPriv, err := curve.RandomScalar(crv, rand)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate viewing key: %w", err)
	}
	return assemble(tag, spendingPriv, viewingPriv)
}

// KeysFromMaster derives the meta-address keypair deterministically from a
// 32-byte master secret.
func KeysFromMaster(tag chains.Tag, master []byte) (*MetaAddress, *Keys, error) {
	if len(master) != 32 {
		return nil, nil, siperr.InvalidInput.Errorf("master secret must be 32 bytes, got %d", len(master))
	}
	crv, err := chains.CurveFor(tag)
	if err != nil {
		return nil, nil, err
	}
	spendingPriv, err := curve.HashToScalar(crv, masterSpendDomain, master)
	if err != nil {
		return nil, nil, err
	}
	viewingPriv, err := curve.HashToScalar(crv, masterViewDomain, master)
	if err != nil {
		return nil, nil, err
	}
	return assemble(tag, spendingPriv, viewingPriv)
}

func assemble(tag chains.Tag, spendingPriv, viewingPriv *curve.Scalar) (*MetaAddress, *Keys, error) {
	meta := &MetaAddress{
		Chain:       tag,
		SpendingPub: curve.ScalarBaseMult(spendingPriv),
		ViewingPub:  curve.ScalarBaseMult(viewingPriv),
	}
	if meta.SpendingPub.IsIdentity() || meta.ViewingPub.IsIdentity() {
		return nil, nil, siperr.DegenerateKey.Errorf("derived identity public key")
	}
	return meta, &Keys{SpendingPriv: spendingPriv, ViewingPriv: viewingPriv}, nil
}

// Encode encodes the meta-address to SIP format:
// sip:<chain>:<spending_key>:<viewing_key>
func (m *MetaAddress) Encode() (string, error) {
	spend, err := m.SpendingPub.Bytes()
	if err != nil {
		return "", err
	}
	view, err := m.ViewingPub.Bytes()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("sip:%s:%s:%s", m.Chain, curve.ToHex(spend), curve.ToHex(view)), nil
}

// DecodeMetaAddress decodes a SIP-encoded stealth meta-address. It rejects
// unknown chain tags, non-canonical point encodings, and points encoded for
// the wrong curve.
func DecodeMetaAddress(encoded string) (*MetaAddress, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 4 || parts[0] != "sip" {
		return nil, siperr.InvalidMetaAddress.Errorf("want sip:<chain>:<spending>:<viewing>")
	}
	tag := parts[1]
	crv, err := chains.CurveFor(tag)
	if err != nil {
		return nil, err
	}

	spendBytes, err := curve.FromHex(parts[2])
	if err != nil {
		return nil, siperr.InvalidMetaAddress.WrapMsg(err, "spending key")
	}
	viewBytes, err := curve.FromHex(parts[3])
	if err != nil {
		return nil, siperr.InvalidMetaAddress.WrapMsg(err, "viewing key")
	}
	if len(spendBytes) != crv.PointSize() || len(viewBytes) != crv.PointSize() {
		return nil, siperr.ChainMismatch.Errorf("key length does not match curve %s", crv)
	}

	spendingPub, err := curve.PointFromBytes(crv, spendBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid spending public key: %w", err)
	}
	viewingPub, err := curve.PointFromBytes(crv, viewBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid viewing public key: %w", err)
	}

	return &MetaAddress{Chain: tag, SpendingPub: spendingPub, ViewingPub: viewingPub}, nil
}
