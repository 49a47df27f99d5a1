package viewing

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// Share is one Shamir point on a polynomial whose constant term is a
// viewing-key secret, together with the Feldman commitments that let anyone
// verify the share without reconstructing the secret.
type Share struct {
	// ID identifies the sharing this share belongs to (hash of the Feldman
	// commitments); all shares of one Split carry the same ID.
	ID string
	// HolderID names the custodian the share was issued to.
	HolderID string
	// Index is the x-coordinate, always >= 1.
	Index uint32
	// Value is P(Index), the secret share.
	Value *curve.Scalar
	// Commitments are C_j = a_j * G for each polynomial coefficient.
	Commitments []*curve.Point
}

// Zeroize wipes the share value.
func (s *Share) Zeroize() {
	if s.Value != nil {
		s.Value.Zeroize()
	}
}

// Split shares a viewing-key secret into total shares with the given
// reconstruction threshold, using Feldman verifiable secret sharing:
// a random polynomial of degree threshold-1 with P(0) = secret, plus
// commitments to every coefficient.
func Split(secret *curve.Scalar, threshold, total int, holders []string, rand io.Reader) ([]*Share, error) {
	if secret == nil {
		return nil, siperr.InvalidInput.Errorf("nil secret")
	}
	if threshold < 1 || total < threshold {
		return nil, siperr.InvalidInput.Errorf("need 1 <= threshold <= total, got t=%d n=%d", threshold, total)
	}
	if holders != nil && len(holders) != total {
		return nil, siperr.InvalidInput.Errorf("holder list length %d does not match total %d", len(holders), total)
	}

	crv := secret.Curve()
	coeffs := make([]*curve.Scalar, threshold)
	coeffs[0] = secret.Clone()
	for j := 1; j < threshold; j++ {
		c, err := curve.RandomScalar(crv, rand)
		if err != nil {
			return nil, fmt.Errorf("failed to sample polynomial coefficient: %w", err)
		}
		coeffs[j] = c
	}
	defer func() {
		for _, c := range coeffs {
			c.Zeroize()
		}
	}()

	commitments := make([]*curve.Point, threshold)
	for j, c := range coeffs {
		commitments[j] = curve.ScalarBaseMult(c)
	}
	id := sharingID(commitments)

	shares := make([]*Share, 0, total)
	for i := 1; i <= total; i++ {
		value, err := evalPoly(crv, coeffs, uint32(i))
		if err != nil {
			return nil, err
		}
		holder := ""
		if holders != nil {
			holder = holders[i-1]
		}
		shares = append(shares, &Share{
			ID:          id,
			HolderID:    holder,
			Index:       uint32(i),
			Value:       value,
			Commitments: commitments,
		})
	}
	return shares, nil
}

// VerifyShare checks P(i)*G == sum_j i^j * C_j. A tampered value or
// commitment vector fails.
func VerifyShare(sh *Share) error {
	if sh == nil || sh.Value == nil || len(sh.Commitments) == 0 {
		return siperr.InvalidShare.Errorf("incomplete share")
	}
	if sh.Index == 0 {
		return siperr.InvalidShare.Errorf("share index must be >= 1")
	}
	crv := sh.Value.Curve()

	expected := curve.ScalarBaseMult(sh.Value)

	// sum_j i^j * C_j, Horner style from the top coefficient down:
	// acc = C_{t-1}; acc = i*acc + C_{j} ...
	x := curve.ScalarFromUint64(crv, uint64(sh.Index))
	acc := sh.Commitments[len(sh.Commitments)-1]
	for j := len(sh.Commitments) - 2; j >= 0; j-- {
		scaled, err := acc.Mul(x)
		if err != nil {
			return siperr.InvalidShare.Wrap(err)
		}
		acc, err = scaled.Add(sh.Commitments[j])
		if err != nil {
			return siperr.InvalidShare.Wrap(err)
		}
	}

	if !expected.Equal(acc) {
		return siperr.InvalidShare.Errorf("share %d fails Feldman verification", sh.Index)
	}
	return nil
}

// Reconstruct recovers the secret from at least threshold valid shares by
// Lagrange interpolation at x = 0. Shares are verified first; corrupted
// shares are rejected before any reconstruction is attempted.
func Reconstruct(shares []*Share, threshold int) (*curve.Scalar, error) {
	if threshold < 1 {
		return nil, siperr.InvalidInput.Errorf("threshold must be >= 1")
	}

	// Deduplicate by index and verify.
	seen := make(map[uint32]bool)
	valid := make([]*Share, 0, len(shares))
	for _, sh := range shares {
		if sh == nil || seen[sh.Index] {
			continue
		}
		if err := VerifyShare(sh); err != nil {
			return nil, err
		}
		seen[sh.Index] = true
		valid = append(valid, sh)
	}
	if len(valid) < threshold {
		return nil, siperr.BelowThreshold.Errorf("have %d valid shares, need %d", len(valid), threshold)
	}
	valid = valid[:threshold]

	crv := valid[0].Value.Curve()
	secret := curve.ScalarFromUint64(crv, 0)
	for i, si := range valid {
		// lambda_i = prod_{j != i} x_j / (x_j - x_i)
		num := curve.ScalarFromUint64(crv, 1)
		den := curve.ScalarFromUint64(crv, 1)
		xi := curve.ScalarFromUint64(crv, uint64(si.Index))
		for j, sj := range valid {
			if j == i {
				continue
			}
			xj := curve.ScalarFromUint64(crv, uint64(sj.Index))
			var err error
			if num, err = num.Mul(xj); err != nil {
				return nil, err
			}
			diff, err := xj.Sub(xi)
			if err != nil {
				return nil, err
			}
			if den, err = den.Mul(diff); err != nil {
				return nil, err
			}
		}
		denInv, err := den.Invert()
		if err != nil {
			return nil, siperr.InvalidShare.WrapMsg(err, "duplicate share indices")
		}
		lambda, err := num.Mul(denInv)
		if err != nil {
			return nil, err
		}
		term, err := lambda.Mul(si.Value)
		if err != nil {
			return nil, err
		}
		if secret, err = secret.Add(term); err != nil {
			return nil, err
		}
	}
	return secret, nil
}

// evalPoly computes P(x) for x = index via Horner's rule.
func evalPoly(crv curve.Curve, coeffs []*curve.Scalar, index uint32) (*curve.Scalar, error) {
	x := curve.ScalarFromUint64(crv, uint64(index))
	acc := coeffs[len(coeffs)-1].Clone()
	for j := len(coeffs) - 2; j >= 0; j-- {
		mul, err := acc.Mul(x)
		if err != nil {
			return nil, err
		}
		acc, err = mul.Add(coeffs[j])
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// sharingID hashes the Feldman commitment vector into a stable identifier.
func sharingID(commitments []*curve.Point) string {
	h := sha256.New()
	for _, c := range commitments {
		enc, err := c.Bytes()
		if err != nil {
			continue
		}
		h.Write(enc)
	}
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(commitments)))
	h.Write(count[:])
	return curve.ToHex(h.Sum(nil))
}

// SealShare encrypts a share value for transport to its holder under a
// 32-byte holder key. The share ID and index are bound as AAD.
func SealShare(sh *Share, holderKey []byte, rand io.Reader) (nonce, ciphertext []byte, err error) {
	if sh == nil || sh.Value == nil {
		return nil, nil, siperr.InvalidShare.Errorf("incomplete share")
	}
	nonce = make([]byte, curve.AEADNonceSize)
	if _, err := io.ReadFull(rand, nonce); err != nil {
		return nil, nil, siperr.InvalidInput.WrapMsg(err, "nonce")
	}
	ciphertext, err = curve.AEADSeal(holderKey, nonce, shareAAD(sh), sh.Value.Bytes())
	if err != nil {
		return nil, nil, err
	}
	return nonce, ciphertext, nil
}

// OpenShare decrypts a sealed share value back into the share.
func OpenShare(sh *Share, holderKey, nonce, ciphertext []byte) error {
	if sh == nil {
		return siperr.InvalidShare.Errorf("nil share")
	}
	plaintext, err := curve.AEADOpen(holderKey, nonce, shareAAD(sh), ciphertext)
	if err != nil {
		return err
	}
	crv := curve.Secp256k1
	if len(sh.Commitments) > 0 {
		crv = sh.Commitments[0].Curve()
	}
	value, err := curve.ScalarFromBytes(crv, plaintext)
	if err != nil {
		return siperr.InvalidShare.Wrap(err)
	}
	sh.Value = value
	return nil
}

func shareAAD(sh *Share) []byte {
	aad := []byte(sh.ID)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], sh.Index)
	return append(aad, idx[:]...)
}
