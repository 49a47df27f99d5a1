package proof

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sip-protocol/sip-core/commit"
	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
	"github.com/sip-protocol/sip-core/stealth"
)

func fundingFixture(t *testing.T, balance, min uint64) (*FundingPublic, *FundingWitness) {
	t.Helper()
	engine, err := commit.NewEngine(curve.Secp256k1)
	require.NoError(t, err)
	c, blinding, err := engine.CommitRandom(balance, rand.Reader)
	require.NoError(t, err)
	binding, err := CommitmentBinding(c, "ETH")
	require.NoError(t, err)
	pub := &FundingPublic{
		CommitmentHash:  binding,
		MinimumRequired: min,
		AssetID:         "ETH",
		Curve:           curve.Secp256k1,
	}
	return pub, &FundingWitness{Balance: balance, Blinding: blinding}
}

func TestFundingProof(t *testing.T) {
	pub, wit := fundingFixture(t, 500, 100)

	blob, err := ProveFunding(pub, wit, rand.Reader)
	require.NoError(t, err)

	res, err := VerifyFunding(pub, blob)
	require.NoError(t, err)
	assert.Equal(t, Valid, res)

	t.Run("Idempotent", func(t *testing.T) {
		// Re-proving verifies too; the blobs differ (randomized sigma
		// nonces) but both are valid.
		blob2, err := ProveFunding(pub, wit, rand.Reader)
		require.NoError(t, err)
		assert.False(t, bytes.Equal(blob, blob2))
		res, err := VerifyFunding(pub, blob2)
		require.NoError(t, err)
		assert.Equal(t, Valid, res)
	})

	t.Run("WrongMinimumInvalid", func(t *testing.T) {
		// Raising the floor past the balance breaks the slack range.
		tampered := *pub
		tampered.MinimumRequired = 600
		res, err := VerifyFunding(&tampered, blob)
		assert.Equal(t, Invalid, res)
		require.Error(t, err)
	})

	t.Run("WrongAssetInvalid", func(t *testing.T) {
		tampered := *pub
		tampered.AssetID = "USDC"
		res, err := VerifyFunding(&tampered, blob)
		assert.Equal(t, Invalid, res)
		assert.ErrorIs(t, err, siperr.ProofVerificationFailed)
	})

	t.Run("TruncatedMalformed", func(t *testing.T) {
		res, err := VerifyFunding(pub, blob[:16])
		assert.Equal(t, MalformedProof, res)
		assert.ErrorIs(t, err, siperr.MalformedProof)
	})

	t.Run("WrongCircuitMalformed", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[5] = byte(CircuitValidity)
		res, _ := VerifyFunding(pub, bad)
		assert.Equal(t, MalformedProof, res)
	})

	t.Run("DeterministicVerification", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			res, err := VerifyFunding(pub, blob)
			require.NoError(t, err)
			assert.Equal(t, Valid, res)
		}
	})
}

func TestFundingInsufficientBalance(t *testing.T) {
	pub, wit := fundingFixture(t, 50, 100)
	_, err := ProveFunding(pub, wit, rand.Reader)
	assert.ErrorIs(t, err, siperr.RangeViolation)
}

func TestFundingCommitmentBindingMismatch(t *testing.T) {
	pub, wit := fundingFixture(t, 500, 100)
	// Commitment hash taken from a different commitment entirely.
	other, _ := fundingFixture(t, 500, 100)
	pub.CommitmentHash = other.CommitmentHash
	_, err := ProveFunding(pub, wit, rand.Reader)
	assert.ErrorIs(t, err, siperr.ProofVerificationFailed)
}

// A forger who knows only the public inputs and the wire format must not be
// able to assemble a Valid funding proof.
func TestFundingForgeryRejected(t *testing.T) {
	pub, wit := fundingFixture(t, 500, 100)
	blob, err := ProveFunding(pub, wit, rand.Reader)
	require.NoError(t, err)

	t.Run("AttackerCommitmentPoint", func(t *testing.T) {
		// The attacker substitutes a commitment they can open. The
		// verifier recomputes the asset binding from the disclosed point,
		// which no longer matches the public hash.
		engine, err := commit.NewEngine(curve.Secp256k1)
		require.NoError(t, err)
		attackerC, attackerR, err := engine.CommitRandom(500, rand.Reader)
		require.NoError(t, err)

		seed := transcriptSeed(rangeDomain, pub.PublicBytes())
		g, h := engine.Generators()
		balanceRange, err := proveRange(g, h, attackerC, 500, attackerR, seed, rand.Reader)
		require.NoError(t, err)
		minG := curve.ScalarBaseMult(curve.ScalarFromUint64(curve.Secp256k1, pub.MinimumRequired))
		d, err := attackerC.Sub(minG)
		require.NoError(t, err)
		slackRange, err := proveRange(g, h, d, 400, attackerR, seed, rand.Reader)
		require.NoError(t, err)

		w := newWireWriter(CircuitFunding)
		require.NoError(t, w.point(attackerC))
		require.NoError(t, w.rangeProof(balanceRange))
		require.NoError(t, w.rangeProof(slackRange))

		res, err := VerifyFunding(pub, w.buf)
		assert.Equal(t, Invalid, res)
		assert.ErrorIs(t, err, siperr.ProofVerificationFailed)
	})

	t.Run("CorruptedResponseScalar", func(t *testing.T) {
		// Flipping any sigma response breaks a group equation the
		// verifier computes itself.
		bad := append([]byte(nil), blob...)
		bad[len(bad)-1] ^= 0x01
		res, _ := VerifyFunding(pub, bad)
		assert.NotEqual(t, Valid, res)
	})

	t.Run("RangeProofFromOtherStatement", func(t *testing.T) {
		// Splicing the balance range proof of a different (valid) proof
		// into this one fails: challenges are bound to the statement.
		otherPub, otherWit := fundingFixture(t, 500, 100)
		otherBlob, err := ProveFunding(otherPub, otherWit, rand.Reader)
		require.NoError(t, err)
		res, err := VerifyFunding(pub, otherBlob)
		assert.Equal(t, Invalid, res)
		require.Error(t, err)
	})
}

type validityFixture struct {
	pub  *ValidityPublic
	wit  *ValidityWitness
	priv *curve.Scalar
}

func newValidityFixture(t *testing.T, timestamp, expiry uint64) *validityFixture {
	t.Helper()
	priv, err := curve.RandomScalar(curve.Secp256k1, rand.Reader)
	require.NoError(t, err)
	senderPub := curve.ScalarBaseMult(priv)
	addr, err := stealth.AddressForKey("ethereum", senderPub)
	require.NoError(t, err)

	engine, err := commit.NewEngine(curve.Secp256k1)
	require.NoError(t, err)
	_, h := engine.Generators()
	blinding, err := curve.RandomScalar(curve.Secp256k1, rand.Reader)
	require.NoError(t, err)
	addrScalar := curve.ScalarReduce(curve.Secp256k1, addr.Bytes)
	aG := curve.ScalarBaseMult(addrScalar)
	rH, err := h.Mul(blinding)
	require.NoError(t, err)
	senderCommitment, err := aG.Add(rH)
	require.NoError(t, err)
	commitmentEnc, err := senderCommitment.Bytes()
	require.NoError(t, err)

	var intentHash, senderSecret, nonce [32]byte
	_, _ = rand.Read(intentHash[:])
	_, _ = rand.Read(senderSecret[:])
	_, _ = rand.Read(nonce[:])

	nullifier, err := ComputeNullifier(curve.Secp256k1, senderSecret, intentHash, nonce)
	require.NoError(t, err)

	sig, err := curve.Sign(priv, intentHash[:])
	require.NoError(t, err)

	return &validityFixture{
		pub: &ValidityPublic{
			IntentHash:       intentHash,
			SenderCommitment: commitmentEnc,
			Nullifier:        nullifier,
			Timestamp:        timestamp,
			Expiry:           expiry,
			Chain:            "ethereum",
		},
		wit: &ValidityWitness{
			SenderAddress:  addr.Bytes,
			SenderBlinding: blinding,
			SenderSecret:   senderSecret,
			SenderPub:      senderPub,
			Signature:      sig,
			Nonce:          nonce,
		},
		priv: priv,
	}
}

func TestValidityProof(t *testing.T) {
	fx := newValidityFixture(t, 999, 1000)

	blob, err := ProveValidity(fx.pub, fx.wit, rand.Reader)
	require.NoError(t, err)

	res, err := VerifyValidity(fx.pub, blob)
	require.NoError(t, err)
	assert.Equal(t, Valid, res)

	t.Run("TamperedCommitmentInvalid", func(t *testing.T) {
		// A different public commitment no longer opens to the disclosed
		// address under the Schnorr transcript.
		engine, err := commit.NewEngine(curve.Secp256k1)
		require.NoError(t, err)
		otherC, _, err := engine.CommitRandom(7, rand.Reader)
		require.NoError(t, err)
		otherEnc, err := otherC.Bytes()
		require.NoError(t, err)

		tampered := *fx.pub
		tampered.SenderCommitment = otherEnc
		res, err := VerifyValidity(&tampered, blob)
		assert.Equal(t, Invalid, res)
		assert.ErrorIs(t, err, siperr.ProofVerificationFailed)
	})

	t.Run("TamperedIntentHashInvalid", func(t *testing.T) {
		tampered := *fx.pub
		tampered.IntentHash[0] ^= 1
		res, err := VerifyValidity(&tampered, blob)
		assert.Equal(t, Invalid, res)
		require.Error(t, err)
	})
}

// A forger who controls their own key but does not know the commitment
// blinding must not be able to assemble a Valid validity proof for someone
// else's public inputs.
func TestValidityForgeryRejected(t *testing.T) {
	fx := newValidityFixture(t, 999, 1000)

	attackerPriv, err := curve.RandomScalar(curve.Secp256k1, rand.Reader)
	require.NoError(t, err)
	attackerPub := curve.ScalarBaseMult(attackerPriv)
	attackerAddr, err := stealth.AddressForKey("ethereum", attackerPub)
	require.NoError(t, err)
	attackerSig, err := curve.Sign(attackerPriv, fx.pub.IntentHash[:])
	require.NoError(t, err)
	attackerPubEnc, err := attackerPub.Bytes()
	require.NoError(t, err)

	// The attacker has a real key, a real signature, a real address - but
	// no opening of the sender commitment, so the best they can do is
	// fabricate the Schnorr transcript.
	junkA := curve.ScalarBaseMult(curve.ScalarFromUint64(curve.Secp256k1, 3))
	junkZ := curve.ScalarFromUint64(curve.Secp256k1, 4)
	forged := encodeValidity(attackerAddr.Bytes, attackerPubEnc, attackerSig,
		&openingProof{a: junkA, z: junkZ})

	res, err := VerifyValidity(fx.pub, forged)
	assert.Equal(t, Invalid, res)
	assert.ErrorIs(t, err, siperr.ProofVerificationFailed)
}

// A witness carrying a high-S signature is refused by the prover; a blob a
// non-compliant prover assembled around a high-S signature is rejected by
// verification with SignatureMalleable.
func TestValiditySignatureMalleability(t *testing.T) {
	fx := newValidityFixture(t, 999, 1000)

	// Flip the signature to its high-S twin: s' = order - s.
	s, err := curve.ScalarFromBytes(curve.Secp256k1, fx.wit.Signature[32:])
	require.NoError(t, err)
	highS := append([]byte(nil), fx.wit.Signature[:32]...)
	highS = append(highS, s.Negate().Bytes()...)
	require.False(t, curve.IsLowS(highS))

	t.Run("ProverRefuses", func(t *testing.T) {
		wit := *fx.wit
		wit.Signature = highS
		_, err := ProveValidity(fx.pub, &wit, rand.Reader)
		assert.ErrorIs(t, err, siperr.SignatureMalleable)
	})

	t.Run("VerifierRejects", func(t *testing.T) {
		// Non-compliant prover: a structurally complete blob around the
		// malleable signature, with everything else legitimate.
		engine, err := commit.NewEngine(curve.Secp256k1)
		require.NoError(t, err)
		_, h := engine.Generators()
		d, err := commitmentRemainder(curve.Secp256k1, fx.pub.SenderCommitment, fx.wit.SenderAddress)
		require.NoError(t, err)
		seed := transcriptSeed(validitySeedDomain, fx.pub.PublicBytes(), fx.wit.SenderAddress)
		opening, err := proveOpeningH(h, d, fx.wit.SenderBlinding, seed, rand.Reader)
		require.NoError(t, err)
		pubEnc, err := fx.wit.SenderPub.Bytes()
		require.NoError(t, err)

		forged := encodeValidity(fx.wit.SenderAddress, pubEnc, highS, opening)
		res, err := VerifyValidity(fx.pub, forged)
		assert.Equal(t, Invalid, res)
		assert.ErrorIs(t, err, siperr.SignatureMalleable)
	})
}

// Expiry is strict: timestamp == expiry must fail, timestamp == expiry-1
// must pass. The temporal assertion is on public inputs, so even a forged
// blob cannot pass it.
func TestValidityExpiryStrictness(t *testing.T) {
	t.Run("EqualFails", func(t *testing.T) {
		fx := newValidityFixture(t, 1000, 1000)
		_, err := ProveValidity(fx.pub, fx.wit, rand.Reader)
		assert.ErrorIs(t, err, siperr.IntentExpired)

		pubEnc, err := fx.wit.SenderPub.Bytes()
		require.NoError(t, err)
		junkA := curve.ScalarBaseMult(curve.ScalarFromUint64(curve.Secp256k1, 1))
		forged := encodeValidity(fx.wit.SenderAddress, pubEnc, fx.wit.Signature,
			&openingProof{a: junkA, z: curve.ScalarFromUint64(curve.Secp256k1, 1)})
		res, err := VerifyValidity(fx.pub, forged)
		assert.Equal(t, Invalid, res)
		assert.ErrorIs(t, err, siperr.IntentExpired)
	})

	t.Run("StrictlyBeforePasses", func(t *testing.T) {
		fx := newValidityFixture(t, 999, 1000)
		blob, err := ProveValidity(fx.pub, fx.wit, rand.Reader)
		require.NoError(t, err)
		res, err := VerifyValidity(fx.pub, blob)
		require.NoError(t, err)
		assert.Equal(t, Valid, res)
	})
}

func TestValidityKeyAddressBinding(t *testing.T) {
	fx := newValidityFixture(t, 999, 1000)
	// Swap in a different key: signature and address no longer bind.
	otherPriv, _ := curve.RandomScalar(curve.Secp256k1, rand.Reader)
	fx.wit.SenderPub = curve.ScalarBaseMult(otherPriv)
	sig, err := curve.Sign(otherPriv, fx.pub.IntentHash[:])
	require.NoError(t, err)
	fx.wit.Signature = sig

	_, err = ProveValidity(fx.pub, fx.wit, rand.Reader)
	assert.ErrorIs(t, err, siperr.ProofVerificationFailed)

	// Verifier side: disclosed key that does not derive the disclosed
	// address is rejected.
	engine, err := commit.NewEngine(curve.Secp256k1)
	require.NoError(t, err)
	_, h := engine.Generators()
	d, err := commitmentRemainder(curve.Secp256k1, fx.pub.SenderCommitment, fx.wit.SenderAddress)
	require.NoError(t, err)
	seed := transcriptSeed(validitySeedDomain, fx.pub.PublicBytes(), fx.wit.SenderAddress)
	opening, err := proveOpeningH(h, d, fx.wit.SenderBlinding, seed, rand.Reader)
	require.NoError(t, err)
	pubEnc, err := fx.wit.SenderPub.Bytes()
	require.NoError(t, err)
	forged := encodeValidity(fx.wit.SenderAddress, pubEnc, sig, opening)

	res, err := VerifyValidity(fx.pub, forged)
	assert.Equal(t, Invalid, res)
	assert.ErrorIs(t, err, siperr.ProofVerificationFailed)
}

type fulfillmentFixture struct {
	pub    *FulfillmentPublic
	wit    *FulfillmentWitness
	oracle *OracleConfig
}

func newFulfillmentFixture(t *testing.T, amount, min, fulfillAt, expiry uint64) *fulfillmentFixture {
	t.Helper()
	engine, err := commit.NewEngine(curve.Secp256k1)
	require.NoError(t, err)
	c, blinding, err := engine.CommitRandom(amount, rand.Reader)
	require.NoError(t, err)
	cEnc, err := c.Bytes()
	require.NoError(t, err)

	var intentHash, solverSecret, txHash [32]byte
	_, _ = rand.Read(intentHash[:])
	_, _ = rand.Read(solverSecret[:])
	_, _ = rand.Read(txHash[:])

	solverID, err := SolverID(curve.Secp256k1, solverSecret)
	require.NoError(t, err)

	recipient := bytes.Repeat([]byte{0xaa}, 20)
	att := &Attestation{
		Recipient: recipient,
		Amount:    amount,
		TxHash:    txHash,
		Block:     12345,
	}

	oraclePriv, err := curve.RandomScalar(curve.Secp256k1, rand.Reader)
	require.NoError(t, err)
	oracle := SingleOracle(curve.ScalarBaseMult(oraclePriv))
	msgHash := AttestationHash(intentHash, att)
	oracleSig, err := curve.Sign(oraclePriv, msgHash[:])
	require.NoError(t, err)

	return &fulfillmentFixture{
		pub: &FulfillmentPublic{
			IntentHash:       intentHash,
			OutputCommitment: cEnc,
			RecipientStealth: recipient,
			MinOutput:        min,
			SolverID:         solverID,
			FulfillmentTime:  fulfillAt,
			Expiry:           expiry,
			Chain:            "ethereum",
		},
		wit: &FulfillmentWitness{
			OutputAmount:     amount,
			OutputBlinding:   blinding,
			SolverSecret:     solverSecret,
			Attestation:      att,
			OracleSignatures: [][]byte{oracleSig},
		},
		oracle: oracle,
	}
}

func TestFulfillmentProof(t *testing.T) {
	fx := newFulfillmentFixture(t, 900, 800, 5000, 6000)

	blob, err := ProveFulfillment(fx.pub, fx.wit, fx.oracle, rand.Reader)
	require.NoError(t, err)

	res, err := VerifyFulfillment(fx.pub, fx.oracle, blob)
	require.NoError(t, err)
	assert.Equal(t, Valid, res)

	t.Run("BelowMinimumRefused", func(t *testing.T) {
		fx := newFulfillmentFixture(t, 700, 800, 5000, 6000)
		_, err := ProveFulfillment(fx.pub, fx.wit, fx.oracle, rand.Reader)
		assert.ErrorIs(t, err, siperr.RangeViolation)
	})

	t.Run("AttestationAmountMismatchRefused", func(t *testing.T) {
		fx := newFulfillmentFixture(t, 900, 800, 5000, 6000)
		fx.wit.Attestation.Amount = 901
		_, err := ProveFulfillment(fx.pub, fx.wit, fx.oracle, rand.Reader)
		assert.ErrorIs(t, err, siperr.OracleAttestationInvalid)
	})

	t.Run("WrongOracleRefused", func(t *testing.T) {
		fx := newFulfillmentFixture(t, 900, 800, 5000, 6000)
		rogue, _ := curve.RandomScalar(curve.Secp256k1, rand.Reader)
		fx.oracle = SingleOracle(curve.ScalarBaseMult(rogue))
		_, err := ProveFulfillment(fx.pub, fx.wit, fx.oracle, rand.Reader)
		assert.ErrorIs(t, err, siperr.OracleAttestationInvalid)
	})

	t.Run("LateFulfillmentInvalid", func(t *testing.T) {
		fx := newFulfillmentFixture(t, 900, 800, 7000, 6000)
		_, err := ProveFulfillment(fx.pub, fx.wit, fx.oracle, rand.Reader)
		assert.ErrorIs(t, err, siperr.IntentExpired)

		// The temporal assertion is public; a forged blob fails it too.
		junkA := curve.ScalarBaseMult(curve.ScalarFromUint64(curve.Secp256k1, 1))
		forged := encodeFulfillment(fx.wit.Attestation, fx.wit.OracleSignatures,
			&openingProof{a: junkA, z: curve.ScalarFromUint64(curve.Secp256k1, 1)})
		res, err := VerifyFulfillment(fx.pub, fx.oracle, forged)
		assert.Equal(t, Invalid, res)
		assert.ErrorIs(t, err, siperr.IntentExpired)
	})
}

// A forger without the oracle keys or the commitment opening must not be
// able to assemble a Valid fulfillment proof.
func TestFulfillmentForgeryRejected(t *testing.T) {
	fx := newFulfillmentFixture(t, 900, 800, 5000, 6000)

	t.Run("FabricatedAttestation", func(t *testing.T) {
		// The attacker writes the attestation they want and signs it with
		// a key of their own; the configured oracle never signed it.
		rogue, err := curve.RandomScalar(curve.Secp256k1, rand.Reader)
		require.NoError(t, err)
		att := &Attestation{
			Recipient: fx.pub.RecipientStealth,
			Amount:    900,
			Block:     1,
		}
		msgHash := AttestationHash(fx.pub.IntentHash, att)
		rogueSig, err := curve.Sign(rogue, msgHash[:])
		require.NoError(t, err)

		junkA := curve.ScalarBaseMult(curve.ScalarFromUint64(curve.Secp256k1, 2))
		forged := encodeFulfillment(att, [][]byte{rogueSig},
			&openingProof{a: junkA, z: curve.ScalarFromUint64(curve.Secp256k1, 2)})
		res, err := VerifyFulfillment(fx.pub, fx.oracle, forged)
		assert.Equal(t, Invalid, res)
		assert.ErrorIs(t, err, siperr.OracleAttestationInvalid)
	})

	t.Run("RealAttestationFakeOpening", func(t *testing.T) {
		// Real oracle signatures, but the forger does not know the output
		// commitment's blinding, so the Schnorr opening cannot be built.
		junkA := curve.ScalarBaseMult(curve.ScalarFromUint64(curve.Secp256k1, 5))
		forged := encodeFulfillment(fx.wit.Attestation, fx.wit.OracleSignatures,
			&openingProof{a: junkA, z: curve.ScalarFromUint64(curve.Secp256k1, 6)})
		res, err := VerifyFulfillment(fx.pub, fx.oracle, forged)
		assert.Equal(t, Invalid, res)
		assert.ErrorIs(t, err, siperr.ProofVerificationFailed)
	})

	t.Run("InflatedAttestedAmount", func(t *testing.T) {
		// Bumping the disclosed amount invalidates the oracle signatures
		// (the amount is inside the signed body).
		att := *fx.wit.Attestation
		att.Amount = 2_000
		junkA := curve.ScalarBaseMult(curve.ScalarFromUint64(curve.Secp256k1, 7))
		forged := encodeFulfillment(&att, fx.wit.OracleSignatures,
			&openingProof{a: junkA, z: curve.ScalarFromUint64(curve.Secp256k1, 8)})
		res, err := VerifyFulfillment(fx.pub, fx.oracle, forged)
		assert.Equal(t, Invalid, res)
		assert.ErrorIs(t, err, siperr.OracleAttestationInvalid)
	})
}

func TestFulfillmentThresholdOracle(t *testing.T) {
	fx := newFulfillmentFixture(t, 900, 800, 5000, 6000)

	// Replace the single oracle with a 2-of-3 set.
	var privs []*curve.Scalar
	var keys []*curve.Point
	for i := 0; i < 3; i++ {
		p, err := curve.RandomScalar(curve.Secp256k1, rand.Reader)
		require.NoError(t, err)
		privs = append(privs, p)
		keys = append(keys, curve.ScalarBaseMult(p))
	}
	fx.oracle = &OracleConfig{Keys: keys, Threshold: 2}
	msgHash := AttestationHash(fx.pub.IntentHash, fx.wit.Attestation)

	sig0, err := curve.Sign(privs[0], msgHash[:])
	require.NoError(t, err)
	sig2, err := curve.Sign(privs[2], msgHash[:])
	require.NoError(t, err)

	t.Run("QuorumMet", func(t *testing.T) {
		fx.wit.OracleSignatures = [][]byte{sig0, sig2}
		blob, err := ProveFulfillment(fx.pub, fx.wit, fx.oracle, rand.Reader)
		require.NoError(t, err)
		res, err := VerifyFulfillment(fx.pub, fx.oracle, blob)
		require.NoError(t, err)
		assert.Equal(t, Valid, res)
	})

	t.Run("QuorumMissed", func(t *testing.T) {
		fx.wit.OracleSignatures = [][]byte{sig0}
		_, err := ProveFulfillment(fx.pub, fx.wit, fx.oracle, rand.Reader)
		assert.ErrorIs(t, err, siperr.OracleAttestationInvalid)
	})

	t.Run("DuplicateSignatureDoesNotDoubleCount", func(t *testing.T) {
		fx.wit.OracleSignatures = [][]byte{sig0, sig0}
		_, err := ProveFulfillment(fx.pub, fx.wit, fx.oracle, rand.Reader)
		assert.ErrorIs(t, err, siperr.OracleAttestationInvalid)
	})
}

func TestAccumulator(t *testing.T) {
	ffx := newFulfillmentFixture(t, 900, 800, 500, 1000)
	config := DefaultAccumulatorConfig()
	config.Oracle = ffx.oracle
	acc := NewAccumulator(config)

	fundingPub, fundingWit := fundingFixture(t, 500, 100)
	fundingBlob, err := ProveFunding(fundingPub, fundingWit, rand.Reader)
	require.NoError(t, err)

	vfx := newValidityFixture(t, 999, 1000)
	validityBlob, err := ProveValidity(vfx.pub, vfx.wit, rand.Reader)
	require.NoError(t, err)

	fulfillmentBlob, err := ProveFulfillment(ffx.pub, ffx.wit, ffx.oracle, rand.Reader)
	require.NoError(t, err)

	require.NoError(t, acc.Add(fundingPub, fundingBlob))
	require.NoError(t, acc.Add(vfx.pub, validityBlob))
	require.NoError(t, acc.Add(ffx.pub, fulfillmentBlob))
	assert.Equal(t, 3, acc.Len())

	res, err := acc.Finalize()
	require.NoError(t, err)
	assert.Equal(t, Valid, res)

	t.Run("FoldChangesPerProof", func(t *testing.T) {
		other := NewAccumulator(config)
		require.NoError(t, other.Add(fundingPub, fundingBlob))
		assert.NotEqual(t, acc.Fold(), other.Fold())
	})

	t.Run("BadMemberFailsBatch", func(t *testing.T) {
		bad := NewAccumulator(config)
		require.NoError(t, bad.Add(fundingPub, fundingBlob))
		// Valid structure, wrong publics for the blob.
		tampered := *vfx.pub
		tampered.IntentHash[0] ^= 1
		require.NoError(t, bad.Add(&tampered, validityBlob))
		res, _ := bad.Finalize()
		assert.Equal(t, Invalid, res)
	})

	t.Run("MalformedRejectedAtAdd", func(t *testing.T) {
		acc := NewAccumulator(config)
		err := acc.Add(fundingPub, fundingBlob[:10])
		assert.ErrorIs(t, err, siperr.MalformedProof)
	})

	t.Run("SerialMatchesParallel", func(t *testing.T) {
		serial := NewAccumulator(AccumulatorConfig{MaxProofs: 8, ParallelVerify: false, Oracle: ffx.oracle})
		require.NoError(t, serial.Add(fundingPub, fundingBlob))
		require.NoError(t, serial.Add(vfx.pub, validityBlob))
		res, err := serial.Finalize()
		require.NoError(t, err)
		assert.Equal(t, Valid, res)
	})
}

// The sigma layer's own guarantees.
func TestSigmaPrimitives(t *testing.T) {
	engine, err := commit.NewEngine(curve.Secp256k1)
	require.NoError(t, err)
	g, h := engine.Generators()

	t.Run("OpeningRoundTrip", func(t *testing.T) {
		r, err := curve.RandomScalar(curve.Secp256k1, rand.Reader)
		require.NoError(t, err)
		d, err := h.Mul(r)
		require.NoError(t, err)
		seed := transcriptSeed(openingDomain, []byte("stmt"))
		pf, err := proveOpeningH(h, d, r, seed, rand.Reader)
		require.NoError(t, err)
		require.NoError(t, verifyOpeningH(h, d, pf, seed))

		// Same transcript against a different statement fails.
		require.Error(t, verifyOpeningH(h, d, pf, transcriptSeed(openingDomain, []byte("other"))))
	})

	t.Run("RangeRoundTrip", func(t *testing.T) {
		r, err := curve.RandomScalar(curve.Secp256k1, rand.Reader)
		require.NoError(t, err)
		target, err := engine.Commit(0xdeadbeef, r)
		require.NoError(t, err)
		seed := transcriptSeed(rangeDomain, []byte("stmt"))
		pf, err := proveRange(g, h, target, 0xdeadbeef, r, seed, rand.Reader)
		require.NoError(t, err)
		require.NoError(t, verifyRange(g, h, target, pf, seed))

		// A proof for one commitment does not verify another.
		other, err := engine.Commit(0xdeadbeef+1, r)
		require.NoError(t, err)
		require.Error(t, verifyRange(g, h, other, pf, seed))
	})

	t.Run("ZeroValueRange", func(t *testing.T) {
		r, err := curve.RandomScalar(curve.Secp256k1, rand.Reader)
		require.NoError(t, err)
		target, err := engine.CommitZero(r)
		require.NoError(t, err)
		seed := transcriptSeed(rangeDomain, []byte("zero"))
		pf, err := proveRange(g, h, target, 0, r, seed, rand.Reader)
		require.NoError(t, err)
		require.NoError(t, verifyRange(g, h, target, pf, seed))
	})
}
