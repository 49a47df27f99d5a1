package curve

import (
	"crypto/subtle"
	"io"
	"math/big"

	"filippo.io/edwards25519"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/sip-protocol/sip-core/siperr"
)

// Scalar is an integer modulo the order of its curve's prime-order subgroup.
// Zero is a valid scalar. The canonical encoding is 32 bytes: big-endian for
// secp256k1, little-endian for ed25519 (each curve's native form).
type Scalar struct {
	curve Curve
	k256  secp256k1.ModNScalar
	ed    edwards25519.Scalar
}

// Curve returns the curve this scalar belongs to.
func (s *Scalar) Curve() Curve { return s.curve }

// ScalarFromBytes parses a canonical 32-byte scalar encoding. Encodings that
// are not fully reduced modulo the curve order are rejected.
func ScalarFromBytes(c Curve, b []byte) (*Scalar, error) {
	if !c.Valid() {
		return nil, siperr.InvalidInput.Errorf("unknown curve %d", c)
	}
	if len(b) != ScalarSize {
		return nil, siperr.InvalidScalar.Errorf("scalar must be %d bytes, got %d", ScalarSize, len(b))
	}
	s := &Scalar{curve: c}
	switch c {
	case Secp256k1:
		if overflow := s.k256.SetByteSlice(b); overflow {
			return nil, siperr.InvalidScalar.Errorf("encoding not reduced mod curve order")
		}
	case Ed25519:
		if _, err := s.ed.SetCanonicalBytes(b); err != nil {
			return nil, siperr.InvalidScalar.Wrap(err)
		}
	}
	return s, nil
}

// ScalarFromUint64 lifts a small integer into the scalar field.
func ScalarFromUint64(c Curve, v uint64) *Scalar {
	s := &Scalar{curve: c}
	var buf [ScalarSize]byte
	switch c {
	case Secp256k1:
		// Big-endian.
		for i := 0; i < 8; i++ {
			buf[31-i] = byte(v >> (8 * i))
		}
		s.k256.SetBytes(&buf)
	case Ed25519:
		// Little-endian.
		for i := 0; i < 8; i++ {
			buf[i] = byte(v >> (8 * i))
		}
		_, _ = s.ed.SetCanonicalBytes(buf[:])
	}
	return s
}

// RandomScalar samples a uniform non-zero scalar by rejection sampling.
func RandomScalar(c Curve, rand io.Reader) (*Scalar, error) {
	if !c.Valid() {
		return nil, siperr.InvalidInput.Errorf("unknown curve %d", c)
	}
	s := &Scalar{curve: c}
	switch c {
	case Secp256k1:
		var buf [ScalarSize]byte
		for {
			if _, err := io.ReadFull(rand, buf[:]); err != nil {
				return nil, siperr.InvalidInput.WrapMsg(err, "read random scalar")
			}
			if overflow := s.k256.SetByteSlice(buf[:]); overflow || s.k256.IsZero() {
				continue
			}
			wipe(buf[:])
			return s, nil
		}
	case Ed25519:
		var wide [64]byte
		for {
			if _, err := io.ReadFull(rand, wide[:]); err != nil {
				return nil, siperr.InvalidInput.WrapMsg(err, "read random scalar")
			}
			if _, err := s.ed.SetUniformBytes(wide[:]); err != nil {
				return nil, siperr.InvalidScalar.Wrap(err)
			}
			if s.IsZero() {
				continue
			}
			wipe(wide[:])
			return s, nil
		}
	}
	return nil, siperr.InvalidInput.Errorf("unreachable")
}

// Bytes returns the canonical 32-byte encoding.
func (s *Scalar) Bytes() []byte {
	switch s.curve {
	case Secp256k1:
		b := s.k256.Bytes()
		return b[:]
	case Ed25519:
		return s.ed.Bytes()
	}
	return nil
}

// IsZero reports whether the scalar is zero.
func (s *Scalar) IsZero() bool {
	switch s.curve {
	case Secp256k1:
		return s.k256.IsZero()
	case Ed25519:
		var zero edwards25519.Scalar
		return s.ed.Equal(&zero) == 1
	}
	return false
}

// Equal reports whether two scalars are the same value on the same curve.
func (s *Scalar) Equal(t *Scalar) bool {
	if s.curve != t.curve {
		return false
	}
	switch s.curve {
	case Secp256k1:
		return s.k256.Equals(&t.k256)
	case Ed25519:
		return s.ed.Equal(&t.ed) == 1
	}
	return false
}

// Clone returns an independent copy.
func (s *Scalar) Clone() *Scalar {
	dup := &Scalar{curve: s.curve}
	dup.k256.Set(&s.k256)
	dup.ed.Set(&s.ed)
	return dup
}

// Add returns s + t mod order.
func (s *Scalar) Add(t *Scalar) (*Scalar, error) {
	if err := checkSameCurve(s.curve, t.curve); err != nil {
		return nil, err
	}
	out := &Scalar{curve: s.curve}
	switch s.curve {
	case Secp256k1:
		out.k256.Set(&s.k256)
		out.k256.Add(&t.k256)
	case Ed25519:
		out.ed.Add(&s.ed, &t.ed)
	}
	return out, nil
}

// Sub returns s - t mod order.
func (s *Scalar) Sub(t *Scalar) (*Scalar, error) {
	if err := checkSameCurve(s.curve, t.curve); err != nil {
		return nil, err
	}
	out := &Scalar{curve: s.curve}
	switch s.curve {
	case Secp256k1:
		neg := t.k256
		neg.Negate()
		out.k256.Set(&s.k256)
		out.k256.Add(&neg)
	case Ed25519:
		out.ed.Subtract(&s.ed, &t.ed)
	}
	return out, nil
}

// Mul returns s * t mod order.
func (s *Scalar) Mul(t *Scalar) (*Scalar, error) {
	if err := checkSameCurve(s.curve, t.curve); err != nil {
		return nil, err
	}
	out := &Scalar{curve: s.curve}
	switch s.curve {
	case Secp256k1:
		out.k256.Set(&s.k256)
		out.k256.Mul(&t.k256)
	case Ed25519:
		out.ed.Multiply(&s.ed, &t.ed)
	}
	return out, nil
}

// Negate returns -s mod order.
func (s *Scalar) Negate() *Scalar {
	out := &Scalar{curve: s.curve}
	switch s.curve {
	case Secp256k1:
		out.k256.Set(&s.k256)
		out.k256.Negate()
	case Ed25519:
		out.ed.Negate(&s.ed)
	}
	return out
}

// Invert returns s^-1 mod order. Inverting zero is an error.
func (s *Scalar) Invert() (*Scalar, error) {
	if s.IsZero() {
		return nil, siperr.InvalidScalar.Errorf("cannot invert zero")
	}
	out := &Scalar{curve: s.curve}
	switch s.curve {
	case Secp256k1:
		out.k256.InverseValNonConst(&s.k256)
	case Ed25519:
		out.ed.Invert(&s.ed)
	}
	return out, nil
}

// Zeroize clears the scalar value in place. Holders of private scalars call
// this on every exit path.
func (s *Scalar) Zeroize() {
	s.k256.Zero()
	var zero edwards25519.Scalar
	s.ed.Set(&zero)
}

// ScalarReduce reduces arbitrary bytes into the scalar field. Unlike
// ScalarFromBytes it never rejects; it is for lifting non-scalar material
// (address bytes, hash outputs) into field arithmetic.
func ScalarReduce(c Curve, b []byte) *Scalar {
	wide := make([]byte, 64)
	copy(wide[64-len(b):], b)
	if len(b) > 64 {
		copy(wide, b[len(b)-64:])
	}
	return reduceWide(c, wide)
}

// reduceWide reduces a 64-byte hash output into the scalar field.
func reduceWide(c Curve, wide []byte) *Scalar {
	s := &Scalar{curve: c}
	switch c {
	case Secp256k1:
		n := secp256k1.S256().N
		v := new(big.Int).SetBytes(wide)
		v.Mod(v, n)
		var buf [ScalarSize]byte
		v.FillBytes(buf[:])
		s.k256.SetBytes(&buf)
	case Ed25519:
		_, _ = s.ed.SetUniformBytes(wide)
	}
	return s
}

func wipe(b []byte) {
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
