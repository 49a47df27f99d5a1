// Package proof implements the three-circuit validation protocol: Funding
// (the sender's committed balance covers the intent), Validity (the sender
// authorized this intent and its nullifier is well-formed), and Fulfillment
// (the solver delivered at least the promised output, attested by an
// oracle).
//
// Each circuit has two halves. The prover evaluates the full constraint
// system (expressed as trace rows over the bn254 scalar field) and refuses
// to produce a proof for an unsatisfied witness. The proof blob itself
// carries sigma-protocol transcripts over the payment curve - Schnorr
// opening proofs, bitwise OR-proofs for range assertions, and disclosed
// signature material - whose Fiat-Shamir challenges the verifier recomputes
// from the public inputs. Nothing the verifier checks is taken on faith
// from the blob: every accepted equation is over group elements the
// verifier combines itself, so a forger without the witness cannot satisfy
// them.
//
// Two derivation assertions (the nullifier and solver-id hash preimages)
// bind a long-lived secret through a plain hash and have no sigma-protocol
// rendition; they are enforced at proving time only and their verification
// requires the optional recursive circuit backend. See VerifyValidity and
// VerifyFulfillment for the exact coverage.
//
// Verification is deterministic: the same (public inputs, proof) pair
// always yields the same Valid / Invalid / MalformedProof result.
package proof

import (
	"encoding/binary"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/blake2b"

	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// Result is the outcome of proof verification.
type Result uint8

const (
	// Valid - the proof verifies against the public inputs.
	Valid Result = iota
	// Invalid - the proof is well-formed but does not verify.
	Invalid
	// MalformedProof - the blob is not a proof for this circuit.
	MalformedProof
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case MalformedProof:
		return "malformed"
	default:
		return "unknown"
	}
}

// CircuitID identifies one of the three protocol circuits.
type CircuitID uint8

const (
	CircuitFunding CircuitID = 1 + iota
	CircuitValidity
	CircuitFulfillment
)

// String returns the circuit name.
func (c CircuitID) String() string {
	switch c {
	case CircuitFunding:
		return "funding"
	case CircuitValidity:
		return "validity"
	case CircuitFulfillment:
		return "fulfillment"
	default:
		return "unknown"
	}
}

// ConstraintClass tags a constraint row with the failure family it
// enforces, so a refusing prover can surface the matching taxonomy error.
type ConstraintClass uint8

const (
	ClassArithmetic ConstraintClass = iota
	ClassRange
	ClassBinding
	ClassSignature
	ClassTemporal
	ClassAttestation
)

// errorFor maps a failing constraint class to its taxonomy template.
func (c ConstraintClass) errorFor() *siperr.Error {
	switch c {
	case ClassRange:
		return siperr.RangeViolation
	case ClassSignature:
		return siperr.SignatureMalleable
	case ClassTemporal:
		return siperr.IntentExpired
	case ClassAttestation:
		return siperr.OracleAttestationInvalid
	default:
		return siperr.ProofVerificationFailed
	}
}

// traceRow is one evaluated constraint: the row value is zero exactly when
// the constraint is satisfied by the witness.
type traceRow struct {
	class ConstraintClass
	value fr.Element
}

// trace is the prover-side evaluation of a circuit's constraint system. It
// never crosses the wire; the sigma transcripts carry soundness for the
// verifier.
type trace struct {
	rows []traceRow
}

func (t *trace) add(class ConstraintClass, value fr.Element) {
	t.rows = append(t.rows, traceRow{class: class, value: value})
}

// addFlag records a satisfied/violated constraint that is checked natively
// (point algebra, signatures, hash bindings) rather than arithmetically.
func (t *trace) addFlag(class ConstraintClass, satisfied bool) {
	var v fr.Element
	if !satisfied {
		v.SetOne()
	}
	t.add(class, v)
}

// addBool constrains bit to {0,1}: row = bit * (bit - 1).
func (t *trace) addBool(bit uint8) {
	var b, bm1, one, v fr.Element
	b.SetUint64(uint64(bit))
	one.SetOne()
	bm1.Sub(&b, &one)
	v.Mul(&b, &bm1)
	t.add(ClassRange, v)
}

// addRecompose constrains sum(bits_i * 2^i) == value.
func (t *trace) addRecompose(bits []uint8, value uint64) {
	var sum, term, coeff fr.Element
	coeff.SetOne()
	var two fr.Element
	two.SetUint64(2)
	for _, b := range bits {
		term.SetUint64(uint64(b & 1))
		term.Mul(&term, &coeff)
		sum.Add(&sum, &term)
		coeff.Mul(&coeff, &two)
	}
	var v fr.Element
	v.SetUint64(value)
	sum.Sub(&sum, &v)
	t.add(ClassRange, sum)
}

// addComparison constrains big >= small by asserting big - small - slack == 0
// where slack is the prover-supplied difference, itself range-constrained by
// the caller.
func (t *trace) addComparison(class ConstraintClass, big, small, slack uint64) {
	var b, s, sl fr.Element
	b.SetUint64(big)
	s.SetUint64(small)
	sl.SetUint64(slack)
	b.Sub(&b, &s)
	b.Sub(&b, &sl)
	t.add(class, b)
}

// firstViolation returns the class of the first non-zero row, if any.
func (t *trace) firstViolation() (ConstraintClass, bool) {
	for _, row := range t.rows {
		if !row.value.IsZero() {
			return row.class, true
		}
	}
	return 0, false
}

// --- Wire framing ---

var proofMagic = [4]byte{'S', 'I', 'P', 'P'}

const proofVersion = 2

const headerSize = 6

// wireWriter builds a proof blob with length-prefixed fields.
type wireWriter struct {
	buf []byte
}

func newWireWriter(circuit CircuitID) *wireWriter {
	w := &wireWriter{buf: make([]byte, 0, 512)}
	w.buf = append(w.buf, proofMagic[:]...)
	w.buf = append(w.buf, proofVersion, byte(circuit))
	return w
}

func (w *wireWriter) bytes(b []byte) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *wireWriter) u64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *wireWriter) point(p *curve.Point) error {
	enc, err := p.Bytes()
	if err != nil {
		return err
	}
	w.bytes(enc)
	return nil
}

func (w *wireWriter) scalar(s *curve.Scalar) {
	w.bytes(s.Bytes())
}

// wireReader parses a proof blob, surfacing every framing problem as
// MalformedProof.
type wireReader struct {
	buf []byte
	pos int
}

// openBlob checks the header and returns a reader over the body.
func openBlob(circuit CircuitID, blob []byte) (*wireReader, error) {
	if len(blob) < headerSize {
		return nil, siperr.MalformedProof.Errorf("truncated proof (%d bytes)", len(blob))
	}
	if [4]byte(blob[:4]) != proofMagic {
		return nil, siperr.MalformedProof.Errorf("bad magic")
	}
	if blob[4] != proofVersion {
		return nil, siperr.MalformedProof.Errorf("unsupported proof version %d", blob[4])
	}
	if CircuitID(blob[5]) != circuit {
		return nil, siperr.MalformedProof.Errorf("proof is for circuit %s, want %s", CircuitID(blob[5]), circuit)
	}
	return &wireReader{buf: blob, pos: headerSize}, nil
}

func (r *wireReader) bytes() ([]byte, error) {
	if r.pos+2 > len(r.buf) {
		return nil, siperr.MalformedProof.Errorf("truncated field length")
	}
	n := int(binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2]))
	r.pos += 2
	if r.pos+n > len(r.buf) {
		return nil, siperr.MalformedProof.Errorf("truncated field body")
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *wireReader) u64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, siperr.MalformedProof.Errorf("truncated u64")
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *wireReader) point(crv curve.Curve) (*curve.Point, error) {
	enc, err := r.bytes()
	if err != nil {
		return nil, err
	}
	p, err := curve.PointFromBytes(crv, enc)
	if err != nil {
		return nil, siperr.MalformedProof.WrapMsg(err, "proof point")
	}
	return p, nil
}

func (r *wireReader) scalar(crv curve.Curve) (*curve.Scalar, error) {
	enc, err := r.bytes()
	if err != nil {
		return nil, err
	}
	s, err := curve.ScalarFromBytes(crv, enc)
	if err != nil {
		return nil, siperr.MalformedProof.WrapMsg(err, "proof scalar")
	}
	return s, nil
}

func (r *wireReader) done() error {
	if r.pos != len(r.buf) {
		return siperr.MalformedProof.Errorf("%d trailing bytes", len(r.buf)-r.pos)
	}
	return nil
}

// blobDigest is the accumulator fold ingredient for one proof blob.
func blobDigest(blob []byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(blob)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
