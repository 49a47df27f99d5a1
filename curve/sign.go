package curve

import (
	"crypto/sha512"

	"filippo.io/edwards25519"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/sip-protocol/sip-core/siperr"
)

// SignatureSize is the compact signature size on both curves: r||s for
// secp256k1 ECDSA, R||s for ed25519 Schnorr.
const SignatureSize = 64

const edNonceDomain = "SIP-EDSIG-NONCE-v1"

// Sign produces a compact 64-byte signature over a 32-byte message hash.
//
// secp256k1 signatures are canonical low-S ECDSA. ed25519 signatures are
// Schnorr signatures over the scalar key (R || s), verifiable with the
// standard cofactorless Ed25519 equation [s]B = R + [k]A.
func Sign(priv *Scalar, hash []byte) ([]byte, error) {
	if priv == nil || priv.IsZero() {
		return nil, siperr.InvalidScalar.Errorf("signing key must be non-zero")
	}
	if len(hash) != 32 {
		return nil, siperr.InvalidInput.Errorf("message hash must be 32 bytes, got %d", len(hash))
	}
	switch priv.curve {
	case Secp256k1:
		key := secp256k1.NewPrivateKey(&priv.k256)
		defer key.Zero()
		compact := ecdsa.SignCompact(key, hash, true)
		// Strip the recovery byte; signatures here are (r || s).
		sig := make([]byte, SignatureSize)
		copy(sig, compact[1:])
		return sig, nil
	case Ed25519:
		pub := ScalarBaseMult(priv)
		pubEnc, err := pub.Bytes()
		if err != nil {
			return nil, err
		}
		// Deterministic nonce from the key and message.
		nonce, err := HashToScalar(Ed25519, edNonceDomain, append(priv.Bytes(), hash...))
		if err != nil {
			return nil, err
		}
		defer nonce.Zeroize()
		R := ScalarBaseMult(nonce)
		rEnc, err := R.Bytes()
		if err != nil {
			return nil, err
		}
		k := edChallenge(rEnc, pubEnc, hash)
		ka := new(edwards25519.Scalar).Multiply(k, &priv.ed)
		s := new(edwards25519.Scalar).Add(&nonce.ed, ka)

		sig := make([]byte, 0, SignatureSize)
		sig = append(sig, rEnc...)
		sig = append(sig, s.Bytes()...)
		return sig, nil
	}
	return nil, siperr.InvalidInput.Errorf("unknown curve %d", priv.curve)
}

// VerifySignature checks a compact signature over a 32-byte message hash.
// secp256k1 signatures with s > order/2 are rejected as SignatureMalleable
// even when the underlying ECDSA relation holds.
func VerifySignature(pub *Point, hash, sig []byte) error {
	if pub == nil || pub.IsIdentity() {
		return siperr.DegenerateKey.Errorf("verification key is degenerate")
	}
	if len(hash) != 32 {
		return siperr.InvalidInput.Errorf("message hash must be 32 bytes, got %d", len(hash))
	}
	if len(sig) != SignatureSize {
		return siperr.InvalidInput.Errorf("signature must be %d bytes, got %d", SignatureSize, len(sig))
	}
	switch pub.curve {
	case Secp256k1:
		var r, s secp256k1.ModNScalar
		if overflow := r.SetByteSlice(sig[:32]); overflow || r.IsZero() {
			return siperr.InvalidInput.Errorf("signature r out of range")
		}
		if overflow := s.SetByteSlice(sig[32:]); overflow || s.IsZero() {
			return siperr.InvalidInput.Errorf("signature s out of range")
		}
		if s.IsOverHalfOrder() {
			return siperr.SignatureMalleable.Errorf("high-S signature")
		}
		key := secp256k1.NewPublicKey(&pub.k256.X, &pub.k256.Y)
		if !ecdsa.NewSignature(&r, &s).Verify(hash, key) {
			return siperr.ProofVerificationFailed.Errorf("ecdsa verification failed")
		}
		return nil
	case Ed25519:
		R, err := new(edwards25519.Point).SetBytes(sig[:32])
		if err != nil {
			return siperr.InvalidInput.WrapMsg(err, "signature R")
		}
		s, err := new(edwards25519.Scalar).SetCanonicalBytes(sig[32:])
		if err != nil {
			return siperr.InvalidInput.WrapMsg(err, "signature s")
		}
		pubEnc, err := pub.Bytes()
		if err != nil {
			return err
		}
		k := edChallenge(sig[:32], pubEnc, hash)
		// [s]B == R + [k]A
		sB := new(edwards25519.Point).ScalarBaseMult(s)
		kA := new(edwards25519.Point).ScalarMult(k, pub.ed)
		rhs := new(edwards25519.Point).Add(R, kA)
		if sB.Equal(rhs) != 1 {
			return siperr.ProofVerificationFailed.Errorf("ed25519 verification failed")
		}
		return nil
	}
	return siperr.InvalidInput.Errorf("unknown curve %d", pub.curve)
}

// IsLowS reports whether a compact secp256k1 signature has s < order/2.
func IsLowS(sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return false
	}
	return !s.IsOverHalfOrder()
}

// edChallenge computes the Ed25519 challenge scalar k = SHA-512(R||A||M)
// reduced mod the group order.
func edChallenge(rEnc, pubEnc, msg []byte) *edwards25519.Scalar {
	h := sha512.New()
	h.Write(rEnc)
	h.Write(pubEnc)
	h.Write(msg)
	k, _ := new(edwards25519.Scalar).SetUniformBytes(h.Sum(nil))
	return k
}
