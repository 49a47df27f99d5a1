package curve

import (
	"crypto/sha256"

	"filippo.io/edwards25519"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/blake2b"

	"github.com/sip-protocol/sip-core/siperr"
)

// HashToScalar hashes a domain-separated message into the scalar field.
// BLAKE2b-512 wide output, reduced modulo the curve order.
func HashToScalar(c Curve, domain string, msg []byte) (*Scalar, error) {
	if !c.Valid() {
		return nil, siperr.InvalidInput.Errorf("unknown curve %d", c)
	}
	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, siperr.InvalidInput.Wrap(err)
	}
	h.Write([]byte(domain))
	h.Write([]byte{c.DomainByte()})
	h.Write(msg)
	return reduceWide(c, h.Sum(nil)), nil
}

// HashToPoint hashes a domain-separated message onto the curve using
// try-and-increment with a counter, the same procedure the SDK uses to
// derive the Pedersen H generator. The result is guaranteed to be a
// non-identity element of the prime-order subgroup; no one knows its
// discrete log with respect to G.
func HashToPoint(c Curve, domain string, msg []byte) (*Point, error) {
	if !c.Valid() {
		return nil, siperr.InvalidInput.Errorf("unknown curve %d", c)
	}
	for counter := 0; counter < 256; counter++ {
		h := sha256.New()
		h.Write([]byte(domain))
		h.Write([]byte{c.DomainByte()})
		h.Write(msg)
		h.Write([]byte{byte(counter)})
		digest := h.Sum(nil)

		switch c {
		case Secp256k1:
			candidate := make([]byte, 33)
			candidate[0] = 0x02 // even y
			copy(candidate[1:], digest)
			pub, err := secp256k1.ParsePubKey(candidate)
			if err != nil {
				continue
			}
			p := &Point{curve: Secp256k1}
			pub.AsJacobian(&p.k256)
			p.k256.ToAffine()
			return p, nil
		case Ed25519:
			ed, err := new(edwards25519.Point).SetBytes(digest)
			if err != nil {
				continue
			}
			// Clear the cofactor so the result lands in the prime-order
			// subgroup.
			ed.MultByCofactor(ed)
			p := &Point{curve: Ed25519, ed: ed}
			if p.IsIdentity() {
				continue
			}
			return p, nil
		}
	}
	return nil, siperr.InvalidPoint.Errorf("hash-to-point exhausted counter space for %q", domain)
}
