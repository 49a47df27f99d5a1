package proof

import (
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// Sigma-protocol building blocks. All challenges are Fiat-Shamir: the
// verifier recomputes them from the public inputs and the prover's
// commitment points, so transcripts cannot be replayed across statements or
// assembled without knowing the witnesses.

// Domain separation tags for the transcripts.
const (
	openingDomain = "SIP-SIGMA-OPEN-H-v1"
	bitDomain     = "SIP-SIGMA-BIT-v1"
	rangeDomain   = "SIP-SIGMA-RANGE-v1"
)

// transcriptSeed hashes the statement context (public-input encoding plus
// any statement points) into the prefix every challenge in a proof is bound
// to.
func transcriptSeed(domain string, parts ...[]byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(domain))
	for _, part := range parts {
		var n [4]byte
		n[0] = byte(len(part) >> 16)
		n[1] = byte(len(part) >> 8)
		n[2] = byte(len(part))
		h.Write(n[:3])
		h.Write(part)
	}
	return h.Sum(nil)
}

// openingProof is a Schnorr proof of knowledge of r such that D = r*H.
type openingProof struct {
	a *curve.Point
	z *curve.Scalar
}

// proveOpeningH proves knowledge of the discrete log of D base H.
func proveOpeningH(h, d *curve.Point, r *curve.Scalar, seed []byte, rand io.Reader) (*openingProof, error) {
	crv := h.Curve()
	k, err := curve.RandomScalar(crv, rand)
	if err != nil {
		return nil, err
	}
	defer k.Zeroize()

	a, err := h.Mul(k)
	if err != nil {
		return nil, err
	}
	c, err := openingChallenge(crv, seed, d, a)
	if err != nil {
		return nil, err
	}
	cr, err := c.Mul(r)
	if err != nil {
		return nil, err
	}
	z, err := k.Add(cr)
	if err != nil {
		return nil, err
	}
	return &openingProof{a: a, z: z}, nil
}

// verifyOpeningH checks z*H == A + c*D with a recomputed challenge.
func verifyOpeningH(h, d *curve.Point, pf *openingProof, seed []byte) error {
	crv := h.Curve()
	c, err := openingChallenge(crv, seed, d, pf.a)
	if err != nil {
		return err
	}
	left, err := h.Mul(pf.z)
	if err != nil {
		return err
	}
	cd, err := d.Mul(c)
	if err != nil {
		return err
	}
	right, err := pf.a.Add(cd)
	if err != nil {
		return err
	}
	if !left.Equal(right) {
		return siperr.ProofVerificationFailed.Errorf("opening proof does not verify")
	}
	return nil
}

func openingChallenge(crv curve.Curve, seed []byte, d, a *curve.Point) (*curve.Scalar, error) {
	dEnc, err := pointOrIdentity(d)
	if err != nil {
		return nil, err
	}
	aEnc, err := pointOrIdentity(a)
	if err != nil {
		return nil, err
	}
	msg := make([]byte, 0, len(seed)+len(dEnc)+len(aEnc))
	msg = append(msg, seed...)
	msg = append(msg, dEnc...)
	msg = append(msg, aEnc...)
	return curve.HashToScalar(crv, openingDomain, msg)
}

// pointOrIdentity encodes a point, mapping the identity (legal inside
// intermediate sigma algebra, e.g. a commitment to value zero with the
// exact matching blinding) to a fixed marker byte.
func pointOrIdentity(p *curve.Point) ([]byte, error) {
	if p.IsIdentity() {
		return []byte{0x00}, nil
	}
	return p.Bytes()
}

// bitProof is a CDS OR-proof that a commitment C opens to 0 or 1:
// either C = r*H or C - G = r*H.
type bitProof struct {
	c      *curve.Point // the bit commitment itself
	a0, a1 *curve.Point
	c0     *curve.Scalar
	z0, z1 *curve.Scalar
}

// proveBit builds the OR-proof for bit b with blinding r.
func proveBit(g, h, cmt *curve.Point, b uint8, r *curve.Scalar, seed []byte, index int, rand io.Reader) (*bitProof, error) {
	crv := h.Curve()

	// Statement 0: cmt = r*H. Statement 1: cmt - G = r*H.
	cmtMinusG, err := cmt.Sub(g)
	if err != nil {
		return nil, err
	}

	k, err := curve.RandomScalar(crv, rand)
	if err != nil {
		return nil, err
	}
	defer k.Zeroize()
	cSim, err := curve.RandomScalar(crv, rand)
	if err != nil {
		return nil, err
	}
	zSim, err := curve.RandomScalar(crv, rand)
	if err != nil {
		return nil, err
	}

	aReal, err := h.Mul(k)
	if err != nil {
		return nil, err
	}
	// Simulated branch: A_sim = z_sim*H - c_sim*target_sim.
	simTarget := cmtMinusG
	if b == 1 {
		simTarget = cmt
	}
	zh, err := h.Mul(zSim)
	if err != nil {
		return nil, err
	}
	ct, err := simTarget.Mul(cSim)
	if err != nil {
		return nil, err
	}
	aSim, err := zh.Sub(ct)
	if err != nil {
		return nil, err
	}

	var a0, a1 *curve.Point
	if b == 0 {
		a0, a1 = aReal, aSim
	} else {
		a0, a1 = aSim, aReal
	}

	c, err := bitChallenge(crv, seed, index, a0, a1)
	if err != nil {
		return nil, err
	}
	cReal, err := c.Sub(cSim)
	if err != nil {
		return nil, err
	}
	crTimes, err := cReal.Mul(r)
	if err != nil {
		return nil, err
	}
	zReal, err := k.Add(crTimes)
	if err != nil {
		return nil, err
	}

	pf := &bitProof{c: cmt, a0: a0, a1: a1}
	if b == 0 {
		pf.c0 = cReal
		pf.z0, pf.z1 = zReal, zSim
	} else {
		pf.c0 = cSim
		pf.z0, pf.z1 = zSim, zReal
	}
	return pf, nil
}

// verifyBit checks both branches of the OR-proof against a recomputed
// challenge split.
func verifyBit(g, h *curve.Point, pf *bitProof, seed []byte, index int) error {
	crv := h.Curve()
	c, err := bitChallenge(crv, seed, index, pf.a0, pf.a1)
	if err != nil {
		return err
	}
	c1, err := c.Sub(pf.c0)
	if err != nil {
		return err
	}

	// z0*H == A0 + c0*C
	left0, err := h.Mul(pf.z0)
	if err != nil {
		return err
	}
	c0C, err := pf.c.Mul(pf.c0)
	if err != nil {
		return err
	}
	right0, err := pf.a0.Add(c0C)
	if err != nil {
		return err
	}
	if !left0.Equal(right0) {
		return siperr.ProofVerificationFailed.Errorf("bit %d branch 0 fails", index)
	}

	// z1*H == A1 + c1*(C - G)
	cmtMinusG, err := pf.c.Sub(g)
	if err != nil {
		return err
	}
	left1, err := h.Mul(pf.z1)
	if err != nil {
		return err
	}
	c1T, err := cmtMinusG.Mul(c1)
	if err != nil {
		return err
	}
	right1, err := pf.a1.Add(c1T)
	if err != nil {
		return err
	}
	if !left1.Equal(right1) {
		return siperr.ProofVerificationFailed.Errorf("bit %d branch 1 fails", index)
	}
	return nil
}

func bitChallenge(crv curve.Curve, seed []byte, index int, a0, a1 *curve.Point) (*curve.Scalar, error) {
	a0Enc, err := pointOrIdentity(a0)
	if err != nil {
		return nil, err
	}
	a1Enc, err := pointOrIdentity(a1)
	if err != nil {
		return nil, err
	}
	msg := make([]byte, 0, len(seed)+4+len(a0Enc)+len(a1Enc))
	msg = append(msg, seed...)
	msg = append(msg, byte(index>>8), byte(index))
	msg = append(msg, a0Enc...)
	msg = append(msg, a1Enc...)
	return curve.HashToScalar(crv, bitDomain, msg)
}

// rangeProof shows a target commitment opens to a value in [0, 2^64): one
// bit commitment per position, each carrying an OR-proof, with the
// power-of-two combination of the bit commitments equal to the target.
type rangeProof struct {
	bits []*bitProof
}

const rangeBits = 64

// proveRange builds the range proof for value v with blinding r on
// target = v*G + r*H.
func proveRange(g, h, target *curve.Point, v uint64, r *curve.Scalar, seed []byte, rand io.Reader) (*rangeProof, error) {
	crv := h.Curve()

	// Per-bit blindings r_i with sum(2^i * r_i) == r: random for all but
	// the top bit, which absorbs the remainder.
	blindings := make([]*curve.Scalar, rangeBits)
	acc := curve.ScalarFromUint64(crv, 0)
	pow := curve.ScalarFromUint64(crv, 1)
	for i := 0; i < rangeBits-1; i++ {
		ri, err := curve.RandomScalar(crv, rand)
		if err != nil {
			return nil, err
		}
		blindings[i] = ri
		term, err := pow.Mul(ri)
		if err != nil {
			return nil, err
		}
		if acc, err = acc.Add(term); err != nil {
			return nil, err
		}
		if pow, err = pow.Add(pow); err != nil {
			return nil, err
		}
	}
	// pow is now 2^63.
	rest, err := r.Sub(acc)
	if err != nil {
		return nil, err
	}
	powInv, err := pow.Invert()
	if err != nil {
		return nil, err
	}
	if blindings[rangeBits-1], err = rest.Mul(powInv); err != nil {
		return nil, err
	}

	// Bit commitments.
	cmts := make([]*curve.Point, rangeBits)
	for i := 0; i < rangeBits; i++ {
		bit := uint8(v >> uint(i) & 1)
		rh, err := h.Mul(blindings[i])
		if err != nil {
			return nil, err
		}
		if bit == 1 {
			if rh, err = rh.Add(g); err != nil {
				return nil, err
			}
		}
		cmts[i] = rh
	}

	innerSeed, err := rangeSeed(seed, target, cmts)
	if err != nil {
		return nil, err
	}

	pf := &rangeProof{bits: make([]*bitProof, rangeBits)}
	for i := 0; i < rangeBits; i++ {
		bit := uint8(v >> uint(i) & 1)
		bp, err := proveBit(g, h, cmts[i], bit, blindings[i], innerSeed, i, rand)
		if err != nil {
			return nil, err
		}
		pf.bits[i] = bp
	}
	for _, b := range blindings {
		b.Zeroize()
	}
	return pf, nil
}

// verifyRange checks every bit OR-proof and the recombination equation
// sum(2^i * C_i) == target.
func verifyRange(g, h, target *curve.Point, pf *rangeProof, seed []byte) error {
	if len(pf.bits) != rangeBits {
		return siperr.MalformedProof.Errorf("range proof has %d bits, want %d", len(pf.bits), rangeBits)
	}
	crv := h.Curve()

	cmts := make([]*curve.Point, rangeBits)
	for i, bp := range pf.bits {
		cmts[i] = bp.c
	}
	innerSeed, err := rangeSeed(seed, target, cmts)
	if err != nil {
		return err
	}

	// Recombination: the verifier folds the bit commitments itself.
	sum := curve.ScalarBaseMult(curve.ScalarFromUint64(crv, 0)) // identity
	pow := curve.ScalarFromUint64(crv, 1)
	for i := 0; i < rangeBits; i++ {
		term, err := cmts[i].Mul(pow)
		if err != nil {
			return err
		}
		if sum, err = sum.Add(term); err != nil {
			return err
		}
		if i < rangeBits-1 {
			if pow, err = pow.Add(pow); err != nil {
				return err
			}
		}
	}
	if !sum.Equal(target) {
		return siperr.ProofVerificationFailed.Errorf("range recombination does not match target")
	}

	for i, bp := range pf.bits {
		if err := verifyBit(g, h, bp, innerSeed, i); err != nil {
			return err
		}
	}
	return nil
}

func rangeSeed(seed []byte, target *curve.Point, cmts []*curve.Point) ([]byte, error) {
	parts := make([][]byte, 0, len(cmts)+2)
	parts = append(parts, seed)
	tEnc, err := pointOrIdentity(target)
	if err != nil {
		return nil, err
	}
	parts = append(parts, tEnc)
	for _, c := range cmts {
		enc, err := pointOrIdentity(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, enc)
	}
	return transcriptSeed(rangeDomain, parts...), nil
}

// --- Wire encoding ---

func (w *wireWriter) openingProof(pf *openingProof) error {
	if err := w.pointOrIdentity(pf.a); err != nil {
		return err
	}
	w.scalar(pf.z)
	return nil
}

func (r *wireReader) openingProof(crv curve.Curve) (*openingProof, error) {
	a, err := r.pointOrIdentity(crv)
	if err != nil {
		return nil, err
	}
	z, err := r.scalar(crv)
	if err != nil {
		return nil, err
	}
	return &openingProof{a: a, z: z}, nil
}

func (w *wireWriter) rangeProof(pf *rangeProof) error {
	for _, bp := range pf.bits {
		if err := w.pointOrIdentity(bp.c); err != nil {
			return err
		}
		if err := w.pointOrIdentity(bp.a0); err != nil {
			return err
		}
		if err := w.pointOrIdentity(bp.a1); err != nil {
			return err
		}
		w.scalar(bp.c0)
		w.scalar(bp.z0)
		w.scalar(bp.z1)
	}
	return nil
}

func (r *wireReader) rangeProof(crv curve.Curve) (*rangeProof, error) {
	pf := &rangeProof{bits: make([]*bitProof, rangeBits)}
	for i := 0; i < rangeBits; i++ {
		c, err := r.pointOrIdentity(crv)
		if err != nil {
			return nil, err
		}
		a0, err := r.pointOrIdentity(crv)
		if err != nil {
			return nil, err
		}
		a1, err := r.pointOrIdentity(crv)
		if err != nil {
			return nil, err
		}
		c0, err := r.scalar(crv)
		if err != nil {
			return nil, err
		}
		z0, err := r.scalar(crv)
		if err != nil {
			return nil, err
		}
		z1, err := r.scalar(crv)
		if err != nil {
			return nil, err
		}
		pf.bits[i] = &bitProof{c: c, a0: a0, a1: a1, c0: c0, z0: z0, z1: z1}
	}
	return pf, nil
}

// pointOrIdentity writes a point, encoding the group identity as an empty
// field (sigma algebra can legitimately pass through it).
func (w *wireWriter) pointOrIdentity(p *curve.Point) error {
	if p.IsIdentity() {
		w.bytes(nil)
		return nil
	}
	return w.point(p)
}

func (r *wireReader) pointOrIdentity(crv curve.Curve) (*curve.Point, error) {
	enc, err := r.bytes()
	if err != nil {
		return nil, err
	}
	if len(enc) == 0 {
		zero := curve.ScalarFromUint64(crv, 0)
		return curve.ScalarBaseMult(zero), nil
	}
	p, err := curve.PointFromBytes(crv, enc)
	if err != nil {
		return nil, siperr.MalformedProof.WrapMsg(err, "proof point")
	}
	return p, nil
}
