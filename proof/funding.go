package proof

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/sip-protocol/sip-core/commit"
	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// Domain tag binding a commitment point and asset to a funding proof.
const commitBindDomain = "SIP-COMMIT-BIND-v1"

// FundingPublic is what the verifier sees for a Funding proof.
type FundingPublic struct {
	// CommitmentHash binds the hidden commitment point and the asset:
	// hash_to_scalar("SIP-COMMIT-BIND-v1", C_x || C_y || asset_id).
	CommitmentHash [32]byte
	// MinimumRequired is the floor the committed balance must reach.
	MinimumRequired uint64
	// AssetID prevents reusing a commitment across assets.
	AssetID string
	// Curve is the curve the commitment lives on.
	Curve curve.Curve
}

// CircuitID implements PublicInputs.
func (p *FundingPublic) CircuitID() CircuitID { return CircuitFunding }

// PublicBytes implements PublicInputs with a deterministic encoding.
func (p *FundingPublic) PublicBytes() []byte {
	out := make([]byte, 0, 32+8+1+len(p.AssetID))
	out = append(out, p.CommitmentHash[:]...)
	out = binary.BigEndian.AppendUint64(out, p.MinimumRequired)
	out = append(out, p.Curve.DomainByte())
	out = append(out, []byte(p.AssetID)...)
	return out
}

// FundingWitness is the prover's secret: the balance and the blinding factor
// of the commitment the public hash binds.
type FundingWitness struct {
	Balance  uint64
	Blinding *curve.Scalar
}

// Zeroize wipes the witness.
func (w *FundingWitness) Zeroize() {
	if w.Blinding != nil {
		w.Blinding.Zeroize()
	}
	w.Balance = 0
}

// CommitmentBinding computes the public commitment hash for a commitment
// point and asset identifier.
func CommitmentBinding(c *curve.Point, assetID string) ([32]byte, error) {
	coords, err := pointCoordinates(c)
	if err != nil {
		return [32]byte{}, err
	}
	msg := append(coords, []byte(assetID)...)
	s, err := curve.HashToScalar(c.Curve(), commitBindDomain, msg)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], s.Bytes())
	return out, nil
}

// pointCoordinates returns the coordinate bytes hashed into commitment
// bindings: x||y for secp256k1 (uncompressed encoding minus the prefix),
// the canonical 32-byte encoding for ed25519.
func pointCoordinates(p *curve.Point) ([]byte, error) {
	if p.Curve() == curve.Secp256k1 {
		unc, err := p.UncompressedBytes()
		if err != nil {
			return nil, err
		}
		return unc[1:], nil
	}
	return p.Bytes()
}

// ProveFunding generates a Funding proof: the committed balance is a valid
// u64, covers the required minimum, and the public commitment hash binds the
// recomputed commitment point for this asset.
//
// The proof discloses the commitment point C (already public in the intent
// envelope) and carries two range transcripts: balance on C and
// balance - minimum on C - minimum*G.
//
// An insufficient balance surfaces as RangeViolation before any proof is
// produced.
func ProveFunding(pub *FundingPublic, wit *FundingWitness, rand io.Reader) ([]byte, error) {
	if pub == nil || wit == nil || wit.Blinding == nil {
		return nil, siperr.InvalidInput.Errorf("nil funding inputs")
	}
	if wit.Blinding.Curve() != pub.Curve {
		return nil, siperr.ChainMismatch.Errorf("witness on %s, public inputs on %s",
			wit.Blinding.Curve(), pub.Curve)
	}

	// Prover-side constraint evaluation; refuse on any violated row.
	tr, c, err := fundingTrace(pub, wit)
	if err != nil {
		return nil, err
	}
	if class, bad := tr.firstViolation(); bad {
		return nil, class.errorFor().Errorf("funding witness does not satisfy circuit")
	}

	engine, err := commit.NewEngine(pub.Curve)
	if err != nil {
		return nil, err
	}
	g, h := engine.Generators()
	seed := transcriptSeed(rangeDomain, pub.PublicBytes())

	balanceRange, err := proveRange(g, h, c, wit.Balance, wit.Blinding, seed, rand)
	if err != nil {
		return nil, err
	}

	// slack = balance - minimum on D = C - minimum*G, same blinding.
	minG := curve.ScalarBaseMult(curve.ScalarFromUint64(pub.Curve, pub.MinimumRequired))
	d, err := c.Sub(minG)
	if err != nil {
		return nil, err
	}
	slackRange, err := proveRange(g, h, d, wit.Balance-pub.MinimumRequired, wit.Blinding, seed, rand)
	if err != nil {
		return nil, err
	}

	w := newWireWriter(CircuitFunding)
	if err := w.point(c); err != nil {
		return nil, err
	}
	if err := w.rangeProof(balanceRange); err != nil {
		return nil, err
	}
	if err := w.rangeProof(slackRange); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// VerifyFunding checks a Funding proof against its public inputs. The
// verifier recomputes the commitment-asset binding from the disclosed
// commitment point, re-derives every transcript challenge from the public
// inputs, and folds the bit commitments itself; no equation it accepts is
// assembled from blob bytes alone.
func VerifyFunding(pub *FundingPublic, blob []byte) (Result, error) {
	if pub == nil {
		return MalformedProof, siperr.InvalidInput.Errorf("nil public inputs")
	}
	r, err := openBlob(CircuitFunding, blob)
	if err != nil {
		return MalformedProof, err
	}
	c, err := r.point(pub.Curve)
	if err != nil {
		return MalformedProof, err
	}
	balanceRange, err := r.rangeProof(pub.Curve)
	if err != nil {
		return MalformedProof, err
	}
	slackRange, err := r.rangeProof(pub.Curve)
	if err != nil {
		return MalformedProof, err
	}
	if err := r.done(); err != nil {
		return MalformedProof, err
	}

	// Assertion 3: the public hash binds this commitment point and asset.
	binding, err := CommitmentBinding(c, pub.AssetID)
	if err != nil {
		return Invalid, siperr.ProofVerificationFailed.Wrap(err)
	}
	if !bytes.Equal(binding[:], pub.CommitmentHash[:]) {
		return Invalid, siperr.ProofVerificationFailed.Errorf("commitment hash does not bind disclosed point")
	}

	engine, err := commit.NewEngine(pub.Curve)
	if err != nil {
		return Invalid, err
	}
	g, h := engine.Generators()
	seed := transcriptSeed(rangeDomain, pub.PublicBytes())

	// Assertion 2: balance in [0, 2^64).
	if err := verifyRange(g, h, c, balanceRange, seed); err != nil {
		return Invalid, siperr.ProofVerificationFailed.WrapMsg(err, "balance range")
	}

	// Assertion 1: balance >= minimum, via the slack range on C - min*G.
	minG := curve.ScalarBaseMult(curve.ScalarFromUint64(pub.Curve, pub.MinimumRequired))
	d, err := c.Sub(minG)
	if err != nil {
		return Invalid, err
	}
	if err := verifyRange(g, h, d, slackRange, seed); err != nil {
		return Invalid, siperr.RangeViolation.WrapMsg(err, "minimum coverage")
	}

	return Valid, nil
}

// fundingTrace evaluates the Funding constraint system on a witness and
// returns the recomputed commitment point.
func fundingTrace(pub *FundingPublic, wit *FundingWitness) (*trace, *curve.Point, error) {
	tr := &trace{}

	// balance is a well-formed u64.
	rw, err := commit.NewRangeWitness(&commit.Opening{Value: wit.Balance, Blinding: wit.Blinding})
	if err != nil {
		return nil, nil, err
	}
	defer rw.Zeroize()
	for _, b := range rw.Bits {
		tr.addBool(b)
	}
	tr.addRecompose(rw.Bits[:], wit.Balance)

	// balance >= minimum_required, via a range-checked slack.
	var slack uint64
	if wit.Balance >= pub.MinimumRequired {
		slack = wit.Balance - pub.MinimumRequired
	}
	slackBits := decomposeBits(slack)
	for _, b := range slackBits {
		tr.addBool(b)
	}
	tr.addRecompose(slackBits[:], slack)
	tr.addComparison(ClassRange, wit.Balance, pub.MinimumRequired, slack)

	// The public hash binds C = balance*G + blinding*H for this asset.
	engine, err := commit.NewEngine(pub.Curve)
	if err != nil {
		return nil, nil, err
	}
	c, err := engine.Commit(wit.Balance, wit.Blinding)
	if err != nil {
		return nil, nil, err
	}
	binding, err := CommitmentBinding(c, pub.AssetID)
	if err != nil {
		return nil, nil, err
	}
	tr.addFlag(ClassBinding, bytes.Equal(binding[:], pub.CommitmentHash[:]))

	return tr, c, nil
}

func decomposeBits(v uint64) [commit.RangeBits]uint8 {
	var bits [commit.RangeBits]uint8
	for i := 0; i < commit.RangeBits; i++ {
		bits[i] = uint8(v >> uint(i) & 1)
	}
	return bits
}
