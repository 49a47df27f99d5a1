package proof

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/sip-protocol/sip-core/chains"
	"github.com/sip-protocol/sip-core/commit"
	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// Domain tags for the fulfillment circuit.
const (
	oracleDomain          = "SIP-ORACLE-v1"
	solverDomain          = "SIP-SOLVER-v1"
	fulfillmentSeedDomain = "SIP-FULFILLMENT-v1"
)

// Attestation is the oracle's signed statement that a delivery happened.
type Attestation struct {
	Recipient []byte // chain-native recipient address bytes
	Amount    uint64
	TxHash    [32]byte
	Block     uint64
}

// OracleConfig names the oracle keys fulfillment attestations must be
// signed under. Threshold mode accepts any k-of-n valid signatures.
type OracleConfig struct {
	Keys      []*curve.Point
	Threshold int
}

// SingleOracle is the common configuration: one key, one signature.
func SingleOracle(key *curve.Point) *OracleConfig {
	return &OracleConfig{Keys: []*curve.Point{key}, Threshold: 1}
}

// AttestationHash computes the signed oracle message body:
// "SIP-ORACLE-v1" || intent_id || recipient || amount_be || tx_hash || block_be.
// The intent binding is part of the signed message; attestations over a
// shorter body are non-compliant.
func AttestationHash(intentHash [32]byte, att *Attestation) [32]byte {
	body := make([]byte, 0, len(oracleDomain)+32+len(att.Recipient)+8+32+8)
	body = append(body, []byte(oracleDomain)...)
	body = append(body, intentHash[:]...)
	body = append(body, att.Recipient...)
	body = binary.BigEndian.AppendUint64(body, att.Amount)
	body = append(body, att.TxHash[:]...)
	body = binary.BigEndian.AppendUint64(body, att.Block)
	return sha256.Sum256(body)
}

// verifyOracle counts valid oracle signatures over the message hash and
// reports whether the threshold is met.
func (o *OracleConfig) verify(msgHash [32]byte, sigs [][]byte) bool {
	if o == nil || len(o.Keys) == 0 || o.Threshold < 1 {
		return false
	}
	used := make([]bool, len(o.Keys))
	valid := 0
	for _, sig := range sigs {
		for i, key := range o.Keys {
			if used[i] {
				continue
			}
			if curve.VerifySignature(key, msgHash[:], sig) == nil {
				used[i] = true
				valid++
				break
			}
		}
	}
	return valid >= o.Threshold
}

// FulfillmentPublic is what the verifier sees for a Fulfillment proof.
type FulfillmentPublic struct {
	IntentHash       [32]byte
	OutputCommitment []byte // compressed commitment point
	RecipientStealth []byte // chain-native address bytes
	MinOutput        uint64
	SolverID         [32]byte
	FulfillmentTime  uint64
	Expiry           uint64
	Chain            chains.Tag // destination chain
}

// CircuitID implements PublicInputs.
func (p *FulfillmentPublic) CircuitID() CircuitID { return CircuitFulfillment }

// PublicBytes implements PublicInputs with a deterministic encoding.
func (p *FulfillmentPublic) PublicBytes() []byte {
	out := make([]byte, 0, 128)
	out = append(out, p.IntentHash[:]...)
	out = append(out, p.OutputCommitment...)
	var rlen [2]byte
	binary.BigEndian.PutUint16(rlen[:], uint16(len(p.RecipientStealth)))
	out = append(out, rlen[:]...)
	out = append(out, p.RecipientStealth...)
	out = binary.BigEndian.AppendUint64(out, p.MinOutput)
	out = append(out, p.SolverID[:]...)
	out = binary.BigEndian.AppendUint64(out, p.FulfillmentTime)
	out = binary.BigEndian.AppendUint64(out, p.Expiry)
	out = append(out, []byte(p.Chain)...)
	return out
}

// FulfillmentWitness is the solver's secret: the actual delivered amount,
// the commitment opening, the solver identity preimage, and the oracle
// attestation with its signatures.
type FulfillmentWitness struct {
	OutputAmount     uint64
	OutputBlinding   *curve.Scalar
	SolverSecret     [32]byte
	Attestation      *Attestation
	OracleSignatures [][]byte
}

// Zeroize wipes the witness secrets.
func (w *FulfillmentWitness) Zeroize() {
	if w.OutputBlinding != nil {
		w.OutputBlinding.Zeroize()
	}
	for i := range w.SolverSecret {
		w.SolverSecret[i] = 0
	}
}

// SolverID derives the public solver identity from its secret:
// hash_to_scalar("SIP-SOLVER-v1", solver_secret).
func SolverID(crv curve.Curve, solverSecret [32]byte) ([32]byte, error) {
	s, err := curve.HashToScalar(crv, solverDomain, solverSecret[:])
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], s.Bytes())
	return out, nil
}

// ProveFulfillment generates a Fulfillment proof: the delivered amount
// meets the floor, the output commitment opens to it, the oracle attested
// this exact delivery for this intent, and the solver identity matches.
//
// The proof discloses the oracle attestation and its signatures (the
// fulfillment envelope already carries them in the clear) and a Schnorr
// transcript showing the output commitment opens to the attested amount.
func ProveFulfillment(pub *FulfillmentPublic, wit *FulfillmentWitness, oracle *OracleConfig, rand io.Reader) ([]byte, error) {
	if pub == nil || wit == nil || wit.OutputBlinding == nil || wit.Attestation == nil {
		return nil, siperr.InvalidInput.Errorf("nil fulfillment inputs")
	}

	tr, err := fulfillmentTrace(pub, wit, oracle)
	if err != nil {
		return nil, err
	}
	if class, bad := tr.firstViolation(); bad {
		return nil, class.errorFor().Errorf("fulfillment witness does not satisfy circuit")
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

	// D = output_commitment - amount*G = blinding*H.
	d, err := amountRemainder(crv, pub.OutputCommitment, wit.Attestation.Amount)
	if err != nil {
		return nil, err
	}
	seed := transcriptSeed(fulfillmentSeedDomain, pub.PublicBytes())
	opening, err := proveOpeningH(h, d, wit.OutputBlinding, seed, rand)
	if err != nil {
		return nil, err
	}

	return encodeFulfillment(wit.Attestation, wit.OracleSignatures, opening), nil
}

// encodeFulfillment assembles the fulfillment wire blob. Split out so tests
// can exercise the verifier against blobs a non-compliant prover might
// emit.
func encodeFulfillment(att *Attestation, sigs [][]byte, opening *openingProof) []byte {
	w := newWireWriter(CircuitFulfillment)
	w.bytes(att.Recipient)
	w.u64(att.Amount)
	w.bytes(att.TxHash[:])
	w.u64(att.Block)
	w.u64(uint64(len(sigs)))
	for _, sig := range sigs {
		w.bytes(sig)
	}
	if err := w.openingProof(opening); err != nil {
		return nil
	}
	return w.buf
}

// VerifyFulfillment checks a Fulfillment proof against its public inputs
// and the configured oracle set. Every accepted assertion is recomputed by
// the verifier from public inputs and disclosed material:
//
//  1. the attested amount meets min_output (disclosed value, public floor);
//  2. the output commitment opens to the attested amount (Schnorr over H,
//     recomputed challenge);
//  3. the attestation names the public recipient;
//  4. the oracle message hash is recomputed from the public intent hash and
//     the disclosed attestation;
//  5. a k-of-n quorum of the configured oracle keys signed it;
//  7. fulfillment_time <= expiry (public values).
//
// Assertion 6, the solver-id hash derivation from the solver's long-lived
// secret, cannot be checked without the secret and has no sigma-protocol
// form; it is enforced at proving time and its in-proof verification
// requires the recursive circuit backend.
func VerifyFulfillment(pub *FulfillmentPublic, oracle *OracleConfig, blob []byte) (Result, error) {
	if pub == nil {
		return MalformedProof, siperr.InvalidInput.Errorf("nil public inputs")
	}
	crv, err := chains.CurveFor(pub.Chain)
	if err != nil {
		return MalformedProof, err
	}
	r, err := openBlob(CircuitFulfillment, blob)
	if err != nil {
		return MalformedProof, err
	}
	att := &Attestation{}
	if att.Recipient, err = r.bytes(); err != nil {
		return MalformedProof, err
	}
	if att.Amount, err = r.u64(); err != nil {
		return MalformedProof, err
	}
	txHash, err := r.bytes()
	if err != nil {
		return MalformedProof, err
	}
	if len(txHash) != 32 {
		return MalformedProof, siperr.MalformedProof.Errorf("attestation tx hash must be 32 bytes")
	}
	copy(att.TxHash[:], txHash)
	if att.Block, err = r.u64(); err != nil {
		return MalformedProof, err
	}
	nsigs, err := r.u64()
	if err != nil {
		return MalformedProof, err
	}
	if nsigs > 64 {
		return MalformedProof, siperr.MalformedProof.Errorf("too many oracle signatures (%d)", nsigs)
	}
	sigs := make([][]byte, 0, nsigs)
	for i := uint64(0); i < nsigs; i++ {
		sig, err := r.bytes()
		if err != nil {
			return MalformedProof, err
		}
		sigs = append(sigs, sig)
	}
	opening, err := r.openingProof(crv)
	if err != nil {
		return MalformedProof, err
	}
	if err := r.done(); err != nil {
		return MalformedProof, err
	}

	// Assertion 7: temporal ordering on public values.
	if pub.FulfillmentTime > pub.Expiry {
		return Invalid, siperr.IntentExpired.Errorf("fulfillment at %d after expiry %d", pub.FulfillmentTime, pub.Expiry)
	}

	// Assertion 3: the attestation names this recipient.
	if !bytes.Equal(att.Recipient, pub.RecipientStealth) {
		return Invalid, siperr.OracleAttestationInvalid.Errorf("attestation recipient mismatch")
	}

	// Assertion 1: the attested amount covers the floor.
	if att.Amount < pub.MinOutput {
		return Invalid, siperr.RangeViolation.Errorf("attested amount %d below minimum %d", att.Amount, pub.MinOutput)
	}

	// Assertions 4+5: the oracle quorum signed the intent-bound message.
	msgHash := AttestationHash(pub.IntentHash, att)
	if !oracle.verify(msgHash, sigs) {
		return Invalid, siperr.OracleAttestationInvalid.Errorf("oracle quorum not met")
	}

	// Assertion 2: the output commitment opens to the attested amount.
	engine, err := commit.NewEngine(crv)
	if err != nil {
		return Invalid, err
	}
	_, h := engine.Generators()
	d, err := amountRemainder(crv, pub.OutputCommitment, att.Amount)
	if err != nil {
		return Invalid, err
	}
	seed := transcriptSeed(fulfillmentSeedDomain, pub.PublicBytes())
	if err := verifyOpeningH(h, d, opening, seed); err != nil {
		return Invalid, siperr.ProofVerificationFailed.WrapMsg(err, "output commitment")
	}

	return Valid, nil
}

// amountRemainder computes D = commitment - amount*G.
func amountRemainder(crv curve.Curve, commitmentEnc []byte, amount uint64) (*curve.Point, error) {
	c, err := curve.PointFromBytes(crv, commitmentEnc)
	if err != nil {
		return nil, siperr.InvalidCommitment.WrapMsg(err, "output commitment")
	}
	vG := curve.ScalarBaseMult(curve.ScalarFromUint64(crv, amount))
	return c.Sub(vG)
}

// fulfillmentTrace evaluates the Fulfillment constraint system on a witness.
func fulfillmentTrace(pub *FulfillmentPublic, wit *FulfillmentWitness, oracle *OracleConfig) (*trace, error) {
	crv, err := chains.CurveFor(pub.Chain)
	if err != nil {
		return nil, err
	}
	tr := &trace{}

	// output_amount is a well-formed u64 and >= min_output.
	bits := decomposeBits(wit.OutputAmount)
	for _, b := range bits {
		tr.addBool(b)
	}
	tr.addRecompose(bits[:], wit.OutputAmount)

	var slack uint64
	if wit.OutputAmount >= pub.MinOutput {
		slack = wit.OutputAmount - pub.MinOutput
	}
	slackBits := decomposeBits(slack)
	for _, b := range slackBits {
		tr.addBool(b)
	}
	tr.addRecompose(slackBits[:], slack)
	tr.addComparison(ClassRange, wit.OutputAmount, pub.MinOutput, slack)

	// output_commitment opens to output_amount.
	engine, err := commit.NewEngine(crv)
	if err != nil {
		return nil, err
	}
	c, err := engine.Commit(wit.OutputAmount, wit.OutputBlinding)
	if err != nil {
		return nil, err
	}
	cEnc, err := c.Bytes()
	if err != nil {
		return nil, err
	}
	tr.addFlag(ClassBinding, bytes.Equal(cEnc, pub.OutputCommitment))

	// The attestation names this recipient and this amount.
	tr.addFlag(ClassAttestation, bytes.Equal(wit.Attestation.Recipient, pub.RecipientStealth))
	tr.addFlag(ClassAttestation, wit.Attestation.Amount == wit.OutputAmount)

	// The oracle signed the intent-bound message.
	msgHash := AttestationHash(pub.IntentHash, wit.Attestation)
	tr.addFlag(ClassAttestation, oracle.verify(msgHash, wit.OracleSignatures))

	// solver_id = hash_to_scalar("SIP-SOLVER-v1", solver_secret).
	solverID, err := SolverID(crv, wit.SolverSecret)
	if err != nil {
		return nil, err
	}
	tr.addFlag(ClassBinding, solverID == pub.SolverID)

	// fulfillment_time <= expiry.
	tr.addFlag(ClassTemporal, pub.FulfillmentTime <= pub.Expiry)

	return tr, nil
}
