package proof

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/sip-protocol/sip-core/chains"
	"github.com/sip-protocol/sip-core/commit"
	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
	"github.com/sip-protocol/sip-core/stealth"
)

// Domain tag for nullifier derivation.
const nullifierDomain = "SIP-NULLIFIER-v1"

const validitySeedDomain = "SIP-VALIDITY-v1"

// ValidityPublic is what the verifier sees for a Validity proof.
type ValidityPublic struct {
	IntentHash       [32]byte
	SenderCommitment []byte // compressed commitment point
	Nullifier        [32]byte
	Timestamp        uint64
	Expiry           uint64
	Chain            chains.Tag
}

// CircuitID implements PublicInputs.
func (p *ValidityPublic) CircuitID() CircuitID { return CircuitValidity }

// PublicBytes implements PublicInputs with a deterministic encoding.
func (p *ValidityPublic) PublicBytes() []byte {
	out := make([]byte, 0, 32+len(p.SenderCommitment)+32+8+8+len(p.Chain))
	out = append(out, p.IntentHash[:]...)
	out = append(out, p.SenderCommitment...)
	out = append(out, p.Nullifier[:]...)
	out = binary.BigEndian.AppendUint64(out, p.Timestamp)
	out = binary.BigEndian.AppendUint64(out, p.Expiry)
	out = append(out, []byte(p.Chain)...)
	return out
}

// ValidityWitness is the prover's secret: who the sender is and the
// authorization signature.
type ValidityWitness struct {
	// SenderAddress is the sender's chain-native address bytes.
	SenderAddress []byte
	// SenderBlinding opens the public sender commitment.
	SenderBlinding *curve.Scalar
	// SenderSecret feeds the nullifier derivation.
	SenderSecret [32]byte
	// SenderPub is the sender's public key; it must derive SenderAddress.
	SenderPub *curve.Point
	// Signature is the sender's compact signature over IntentHash.
	Signature []byte
	// Nonce randomizes the nullifier so a fresh intent can be composed
	// after a rejected one.
	Nonce [32]byte
}

// Zeroize wipes the witness secrets.
func (w *ValidityWitness) Zeroize() {
	if w.SenderBlinding != nil {
		w.SenderBlinding.Zeroize()
	}
	for i := range w.SenderSecret {
		w.SenderSecret[i] = 0
	}
}

// ComputeNullifier derives the per-spend nullifier:
// hash_to_scalar("SIP-NULLIFIER-v1", sender_secret || intent_hash || nonce).
func ComputeNullifier(crv curve.Curve, senderSecret, intentHash, nonce [32]byte) ([32]byte, error) {
	msg := make([]byte, 0, 96)
	msg = append(msg, senderSecret[:]...)
	msg = append(msg, intentHash[:]...)
	msg = append(msg, nonce[:]...)
	s, err := curve.HashToScalar(crv, nullifierDomain, msg)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], s.Bytes())
	return out, nil
}

// ProveValidity generates a Validity proof. A high-S secp256k1 signature in
// the witness causes the prover to refuse with SignatureMalleable; an intent
// whose timestamp is not strictly before its expiry refuses with
// IntentExpired.
//
// The proof discloses the sender address, public key and signature to the
// verifying engine (the adapter already learns the depositor when the
// deposit lands on chain; the public ledger never sees the proof blob) and
// carries a Schnorr opening transcript binding the public sender commitment
// to that address.
func ProveValidity(pub *ValidityPublic, wit *ValidityWitness, rand io.Reader) ([]byte, error) {
	if pub == nil || wit == nil || wit.SenderPub == nil || wit.SenderBlinding == nil {
		return nil, siperr.InvalidInput.Errorf("nil validity inputs")
	}

	tr, err := validityTrace(pub, wit)
	if err != nil {
		return nil, err
	}
	if class, bad := tr.firstViolation(); bad {
		return nil, class.errorFor().Errorf("validity witness does not satisfy circuit")
	}

	crv, err := chains.CurveFor(pub.Chain)
	if err != nil {
		return nil, err
	}
	engine, err := commit.NewEngine(crv)
	if err != nil {
		return nil, err
	}
	_, h := engine.Generators()

	// D = sender_commitment - addr*G = blinding*H; prove knowledge of the
	// blinding without revealing it.
	d, err := commitmentRemainder(crv, pub.SenderCommitment, wit.SenderAddress)
	if err != nil {
		return nil, err
	}
	seed := transcriptSeed(validitySeedDomain, pub.PublicBytes(), wit.SenderAddress)
	opening, err := proveOpeningH(h, d, wit.SenderBlinding, seed, rand)
	if err != nil {
		return nil, err
	}

	senderPubEnc, err := wit.SenderPub.Bytes()
	if err != nil {
		return nil, err
	}
	return encodeValidity(wit.SenderAddress, senderPubEnc, wit.Signature, opening), nil
}

// encodeValidity assembles the validity wire blob. Split out so tests can
// exercise the verifier against blobs a non-compliant prover might emit.
func encodeValidity(senderAddress, senderPub, signature []byte, opening *openingProof) []byte {
	w := newWireWriter(CircuitValidity)
	w.bytes(senderAddress)
	w.bytes(senderPub)
	w.bytes(signature)
	if err := w.openingProof(opening); err != nil {
		return nil
	}
	return w.buf
}

// VerifyValidity checks a Validity proof against its public inputs. Every
// accepted assertion is recomputed by the verifier from public inputs and
// disclosed material:
//
//  1. sender_commitment - addr*G opens over H (Schnorr, recomputed
//     challenge);
//  2. the disclosed signature verifies over intent_hash under the disclosed
//     key, with low-S enforced (SignatureMalleable otherwise);
//  3. the disclosed key derives the disclosed address via the chain rule;
//  5. timestamp is strictly before expiry (public values).
//
// Assertion 4, the nullifier hash derivation from the sender's long-lived
// secret, cannot be checked without the secret and has no sigma-protocol
// form; it is enforced at proving time and by the engine's append-only
// nullifier set, and its in-proof verification requires the recursive
// circuit backend.
func VerifyValidity(pub *ValidityPublic, blob []byte) (Result, error) {
	if pub == nil {
		return MalformedProof, siperr.InvalidInput.Errorf("nil public inputs")
	}
	crv, err := chains.CurveFor(pub.Chain)
	if err != nil {
		return MalformedProof, err
	}
	r, err := openBlob(CircuitValidity, blob)
	if err != nil {
		return MalformedProof, err
	}
	senderAddress, err := r.bytes()
	if err != nil {
		return MalformedProof, err
	}
	senderPubEnc, err := r.bytes()
	if err != nil {
		return MalformedProof, err
	}
	signature, err := r.bytes()
	if err != nil {
		return MalformedProof, err
	}
	opening, err := r.openingProof(crv)
	if err != nil {
		return MalformedProof, err
	}
	if err := r.done(); err != nil {
		return MalformedProof, err
	}

	// Assertion 5: strict temporal ordering on public values.
	if pub.Timestamp >= pub.Expiry {
		return Invalid, siperr.IntentExpired.Errorf("timestamp %d not before expiry %d", pub.Timestamp, pub.Expiry)
	}

	// Assertion 2: low-S guard, then the signature itself.
	if crv == curve.Secp256k1 && !curve.IsLowS(signature) {
		return Invalid, siperr.SignatureMalleable.Errorf("high-S signature in proof")
	}
	senderPub, err := curve.PointFromBytes(crv, senderPubEnc)
	if err != nil {
		return MalformedProof, siperr.MalformedProof.WrapMsg(err, "sender key")
	}
	if err := curve.VerifySignature(senderPub, pub.IntentHash[:], signature); err != nil {
		return Invalid, siperr.ProofVerificationFailed.WrapMsg(err, "intent authorization")
	}

	// Assertion 3: the key derives the address via the chain rule.
	derived, err := stealth.AddressForKey(pub.Chain, senderPub)
	if err != nil {
		return Invalid, err
	}
	if !bytes.Equal(derived.Bytes, senderAddress) {
		return Invalid, siperr.ProofVerificationFailed.Errorf("sender key does not derive disclosed address")
	}

	// Assertion 1: the public commitment opens to the disclosed address.
	engine, err := commit.NewEngine(crv)
	if err != nil {
		return Invalid, err
	}
	_, h := engine.Generators()
	d, err := commitmentRemainder(crv, pub.SenderCommitment, senderAddress)
	if err != nil {
		return Invalid, err
	}
	seed := transcriptSeed(validitySeedDomain, pub.PublicBytes(), senderAddress)
	if err := verifyOpeningH(h, d, opening, seed); err != nil {
		return Invalid, siperr.ProofVerificationFailed.WrapMsg(err, "sender commitment")
	}

	return Valid, nil
}

// commitmentRemainder computes D = commitment - addr*G, the H-component a
// valid sender commitment leaves after the address term is stripped.
func commitmentRemainder(crv curve.Curve, commitmentEnc, addr []byte) (*curve.Point, error) {
	c, err := curve.PointFromBytes(crv, commitmentEnc)
	if err != nil {
		return nil, siperr.InvalidCommitment.WrapMsg(err, "sender commitment")
	}
	addrScalar := curve.ScalarReduce(crv, addr)
	aG := curve.ScalarBaseMult(addrScalar)
	return c.Sub(aG)
}

// validityTrace evaluates the Validity constraint system on a witness.
func validityTrace(pub *ValidityPublic, wit *ValidityWitness) (*trace, error) {
	crv, err := chains.CurveFor(pub.Chain)
	if err != nil {
		return nil, err
	}
	tr := &trace{}

	// 1. sender_commitment = sender_address*G + sender_blinding*H.
	engine, err := commit.NewEngine(crv)
	if err != nil {
		return nil, err
	}
	_, h := engine.Generators()
	addrScalar := curve.ScalarReduce(crv, wit.SenderAddress)
	aG := curve.ScalarBaseMult(addrScalar)
	rH, err := h.Mul(wit.SenderBlinding)
	if err != nil {
		return nil, err
	}
	expected, err := aG.Add(rH)
	if err != nil {
		return nil, err
	}
	expectedEnc, err := expected.Bytes()
	if err != nil {
		return nil, err
	}
	tr.addFlag(ClassBinding, bytes.Equal(expectedEnc, pub.SenderCommitment))

	// 2. Signature over intent_hash, low-S enforced for secp256k1.
	lowS := true
	if crv == curve.Secp256k1 {
		lowS = curve.IsLowS(wit.Signature)
	}
	tr.addFlag(ClassSignature, lowS)
	sigErr := curve.VerifySignature(wit.SenderPub, pub.IntentHash[:], wit.Signature)
	tr.addFlag(ClassSignature, sigErr == nil)

	// 3. sender_pubkey derives sender_address via the chain's rule.
	derived, err := stealth.AddressForKey(pub.Chain, wit.SenderPub)
	if err != nil {
		return nil, err
	}
	tr.addFlag(ClassBinding, bytes.Equal(derived.Bytes, wit.SenderAddress))

	// 4. Nullifier derivation.
	nullifier, err := ComputeNullifier(crv, wit.SenderSecret, pub.IntentHash, wit.Nonce)
	if err != nil {
		return nil, err
	}
	tr.addFlag(ClassBinding, nullifier == pub.Nullifier)

	// 5. timestamp strictly before expiry.
	tr.addFlag(ClassTemporal, pub.Timestamp < pub.Expiry)

	return tr, nil
}
