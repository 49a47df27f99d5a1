package curve

import (
	"bytes"

	"filippo.io/edwards25519"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/sip-protocol/sip-core/siperr"
)

// Point is a curve element. The identity is representable internally (it can
// arise from homomorphic arithmetic) but is rejected as a public key: Bytes
// refuses to encode it and PointFromBytes refuses to decode it.
type Point struct {
	curve Curve
	k256  secp256k1.JacobianPoint // affine form, valid when curve == Secp256k1 && !inf
	inf   bool
	ed    *edwards25519.Point
}

// ed25519 group order L = 2^252 + edGroupOrderTail.
// Tail bytes are little-endian.
var edGroupOrderTail = [32]byte{
	0xed, 0xd3, 0xf5, 0x5c, 0x1a, 0x63, 0x12, 0x58,
	0xd6, 0x9c, 0xf7, 0xa2, 0xde, 0xf9, 0xde, 0x14,
}

// Curve returns the curve this point belongs to.
func (p *Point) Curve() Curve { return p.curve }

// IsIdentity reports whether the point is the group identity.
func (p *Point) IsIdentity() bool {
	switch p.curve {
	case Secp256k1:
		return p.inf
	case Ed25519:
		return p.ed.Equal(edwards25519.NewIdentityPoint()) == 1
	}
	return false
}

// Generator returns the base point G of the curve.
func Generator(c Curve) *Point {
	switch c {
	case Secp256k1:
		p := &Point{curve: Secp256k1}
		secp256k1.Generator().AsJacobian(&p.k256)
		p.k256.ToAffine()
		return p
	case Ed25519:
		return &Point{curve: Ed25519, ed: edwards25519.NewGeneratorPoint()}
	}
	return nil
}

// identity returns the group identity, for internal arithmetic only.
func identity(c Curve) *Point {
	switch c {
	case Secp256k1:
		return &Point{curve: Secp256k1, inf: true}
	case Ed25519:
		return &Point{curve: Ed25519, ed: edwards25519.NewIdentityPoint()}
	}
	return nil
}

// PointFromBytes parses a canonical compressed point encoding. It rejects
// the identity, off-curve encodings, non-canonical encodings, and (for
// ed25519) points outside the prime-order subgroup.
func PointFromBytes(c Curve, b []byte) (*Point, error) {
	switch c {
	case Secp256k1:
		if len(b) != 33 || (b[0] != 0x02 && b[0] != 0x03) {
			return nil, siperr.InvalidPoint.Errorf("want 33-byte compressed encoding")
		}
		pub, err := secp256k1.ParsePubKey(b)
		if err != nil {
			return nil, siperr.InvalidPoint.Wrap(err)
		}
		p := &Point{curve: Secp256k1}
		pub.AsJacobian(&p.k256)
		p.k256.ToAffine()
		return p, nil
	case Ed25519:
		if len(b) != 32 {
			return nil, siperr.InvalidPoint.Errorf("want 32-byte encoding")
		}
		ed, err := new(edwards25519.Point).SetBytes(b)
		if err != nil {
			return nil, siperr.InvalidPoint.Wrap(err)
		}
		// Canonical encodings only.
		if !bytes.Equal(ed.Bytes(), b) {
			return nil, siperr.InvalidPoint.Errorf("non-canonical encoding")
		}
		p := &Point{curve: Ed25519, ed: ed}
		if p.IsIdentity() {
			return nil, siperr.InvalidPoint.Errorf("identity point")
		}
		if !edTorsionFree(ed) {
			return nil, siperr.InvalidPoint.Errorf("point not in prime-order subgroup")
		}
		return p, nil
	}
	return nil, siperr.InvalidInput.Errorf("unknown curve %d", c)
}

// edTorsionFree checks [L]P == identity by computing [2^252]P + [tail]P.
func edTorsionFree(p *edwards25519.Point) bool {
	tail, err := new(edwards25519.Scalar).SetCanonicalBytes(edGroupOrderTail[:])
	if err != nil {
		return false
	}
	acc := new(edwards25519.Point).Set(p)
	for i := 0; i < 252; i++ {
		acc.Add(acc, acc)
	}
	tp := new(edwards25519.Point).ScalarMult(tail, p)
	acc.Add(acc, tp)
	return acc.Equal(edwards25519.NewIdentityPoint()) == 1
}

// Bytes returns the canonical compressed encoding. The identity cannot be
// encoded as a public value.
func (p *Point) Bytes() ([]byte, error) {
	if p.IsIdentity() {
		return nil, siperr.InvalidPoint.Errorf("cannot encode identity point")
	}
	switch p.curve {
	case Secp256k1:
		pub := secp256k1.NewPublicKey(&p.k256.X, &p.k256.Y)
		return pub.SerializeCompressed(), nil
	case Ed25519:
		return p.ed.Bytes(), nil
	}
	return nil, siperr.InvalidInput.Errorf("unknown curve %d", p.curve)
}

// UncompressedBytes returns the 65-byte uncompressed encoding for secp256k1
// points (needed for Ethereum address derivation).
func (p *Point) UncompressedBytes() ([]byte, error) {
	if p.curve != Secp256k1 {
		return nil, siperr.ChainMismatch.Errorf("uncompressed encoding is secp256k1-only")
	}
	if p.IsIdentity() {
		return nil, siperr.InvalidPoint.Errorf("cannot encode identity point")
	}
	pub := secp256k1.NewPublicKey(&p.k256.X, &p.k256.Y)
	return pub.SerializeUncompressed(), nil
}

// Equal reports whether two points are the same element on the same curve.
func (p *Point) Equal(q *Point) bool {
	if p.curve != q.curve {
		return false
	}
	switch p.curve {
	case Secp256k1:
		if p.inf || q.inf {
			return p.inf == q.inf
		}
		return p.k256.X.Equals(&q.k256.X) && p.k256.Y.Equals(&q.k256.Y)
	case Ed25519:
		return p.ed.Equal(q.ed) == 1
	}
	return false
}

// Add returns p + q.
func (p *Point) Add(q *Point) (*Point, error) {
	if err := checkSameCurve(p.curve, q.curve); err != nil {
		return nil, err
	}
	switch p.curve {
	case Secp256k1:
		if p.inf {
			return q.clone(), nil
		}
		if q.inf {
			return p.clone(), nil
		}
		var sum secp256k1.JacobianPoint
		secp256k1.AddNonConst(&p.k256, &q.k256, &sum)
		return fromJacobian(&sum), nil
	case Ed25519:
		out := new(edwards25519.Point).Add(p.ed, q.ed)
		return &Point{curve: Ed25519, ed: out}, nil
	}
	return nil, siperr.InvalidInput.Errorf("unknown curve %d", p.curve)
}

// Sub returns p - q.
func (p *Point) Sub(q *Point) (*Point, error) {
	return p.Add(q.Neg())
}

// Neg returns -p.
func (p *Point) Neg() *Point {
	switch p.curve {
	case Secp256k1:
		if p.inf {
			return p.clone()
		}
		out := p.clone()
		out.k256.Y.Negate(1)
		out.k256.Y.Normalize()
		return out
	case Ed25519:
		return &Point{curve: Ed25519, ed: new(edwards25519.Point).Negate(p.ed)}
	}
	return nil
}

// Mul returns s * p. The scalar must live on the same curve.
func (p *Point) Mul(s *Scalar) (*Point, error) {
	if err := checkSameCurve(p.curve, s.curve); err != nil {
		return nil, err
	}
	switch p.curve {
	case Secp256k1:
		if p.inf || s.IsZero() {
			return identity(Secp256k1), nil
		}
		var out secp256k1.JacobianPoint
		secp256k1.ScalarMultNonConst(&s.k256, &p.k256, &out)
		return fromJacobian(&out), nil
	case Ed25519:
		out := new(edwards25519.Point).ScalarMult(&s.ed, p.ed)
		return &Point{curve: Ed25519, ed: out}, nil
	}
	return nil, siperr.InvalidInput.Errorf("unknown curve %d", p.curve)
}

// ScalarBaseMult returns s * G.
func ScalarBaseMult(s *Scalar) *Point {
	switch s.curve {
	case Secp256k1:
		if s.IsZero() {
			return identity(Secp256k1)
		}
		var out secp256k1.JacobianPoint
		secp256k1.ScalarBaseMultNonConst(&s.k256, &out)
		return fromJacobian(&out)
	case Ed25519:
		return &Point{curve: Ed25519, ed: new(edwards25519.Point).ScalarBaseMult(&s.ed)}
	}
	return nil
}

func (p *Point) clone() *Point {
	out := &Point{curve: p.curve, inf: p.inf}
	if p.curve == Secp256k1 {
		out.k256 = p.k256
	} else if p.ed != nil {
		out.ed = new(edwards25519.Point).Set(p.ed)
	}
	return out
}

// fromJacobian normalizes a secp256k1 Jacobian result, mapping the point at
// infinity to the internal identity representation.
func fromJacobian(j *secp256k1.JacobianPoint) *Point {
	z := j.Z
	z.Normalize()
	if z.IsZero() {
		return identity(Secp256k1)
	}
	j.ToAffine()
	return &Point{curve: Secp256k1, k256: *j}
}
