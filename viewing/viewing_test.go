package viewing

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

func testMaster() []byte {
	return bytes.Repeat([]byte{0x5a}, 32)
}

func TestDeriveKey(t *testing.T) {
	master := testMaster()

	incoming, err := DeriveKey(curve.Secp256k1, master, KeyIncoming)
	require.NoError(t, err)
	outgoing, err := DeriveKey(curve.Secp256k1, master, KeyOutgoing)
	require.NoError(t, err)
	full, err := DeriveKey(curve.Secp256k1, master, KeyFull)
	require.NoError(t, err)

	// Deterministic per type, distinct across types.
	again, err := DeriveKey(curve.Secp256k1, master, KeyIncoming)
	require.NoError(t, err)
	assert.True(t, incoming.Secret.Equal(again.Secret), "derivation must be deterministic")
	assert.False(t, incoming.Secret.Equal(outgoing.Secret), "incoming and outgoing must differ")

	// Full combines incoming and outgoing.
	combined, err := incoming.Secret.Add(outgoing.Secret)
	require.NoError(t, err)
	assert.True(t, full.Secret.Equal(combined), "full key should combine incoming and outgoing")

	// The key hash identifies the public key.
	hash, err := KeyHash(incoming.Public)
	require.NoError(t, err)
	assert.Equal(t, incoming.Hash, hash)

	// Different masters give unrelated keys.
	other, err := DeriveKey(curve.Secp256k1, bytes.Repeat([]byte{0x5b}, 32), KeyIncoming)
	require.NoError(t, err)
	assert.False(t, incoming.Secret.Equal(other.Secret))
}

func TestDeriveKeyRejectsBadMaster(t *testing.T) {
	_, err := DeriveKey(curve.Secp256k1, []byte("short"), KeyIncoming)
	require.Error(t, err)
}

func TestPayloadRoundTrip(t *testing.T) {
	key, err := DeriveKey(curve.Secp256k1, testMaster(), KeyIncoming)
	require.NoError(t, err)

	rec := &PaymentRecord{
		Sender:           "0xabc",
		RecipientStealth: "0xdef",
		Amount:           1_000_000,
		Blinding:         "0x11",
		Memo:             "invoice 42",
		Timestamp:        1700000000,
	}
	intentID := bytes.Repeat([]byte{0x07}, 32)

	payload, err := EncryptPayload(key.Public, intentID, rec.Timestamp, rec, rand.Reader)
	require.NoError(t, err)
	require.NotEmpty(t, payload.Ephemeral)
	require.NotEmpty(t, payload.Ciphertext)

	got, err := DecryptPayload(key.Secret, payload)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	t.Run("WrongKeyFails", func(t *testing.T) {
		other, err := DeriveKey(curve.Secp256k1, bytes.Repeat([]byte{0x5c}, 32), KeyIncoming)
		require.NoError(t, err)
		_, err = DecryptPayload(other.Secret, payload)
		assert.ErrorIs(t, err, siperr.ViewingKeyDecryptFailed)
	})

	t.Run("TamperedCiphertextFails", func(t *testing.T) {
		bad := *payload
		bad.Ciphertext = append([]byte(nil), payload.Ciphertext...)
		bad.Ciphertext[0] ^= 1
		_, err := DecryptPayload(key.Secret, &bad)
		assert.ErrorIs(t, err, siperr.ViewingKeyDecryptFailed)
	})

	t.Run("TamperedAADFails", func(t *testing.T) {
		bad := *payload
		bad.AAD = append([]byte(nil), payload.AAD...)
		bad.AAD[0] ^= 1
		_, err := DecryptPayload(key.Secret, &bad)
		assert.ErrorIs(t, err, siperr.ViewingKeyDecryptFailed)
	})
}

func TestPayloadEd25519(t *testing.T) {
	key, err := DeriveKey(curve.Ed25519, testMaster(), KeyIncoming)
	require.NoError(t, err)
	rec := &PaymentRecord{Amount: 7, Timestamp: 1}
	payload, err := EncryptPayload(key.Public, []byte("id"), 1, rec, rand.Reader)
	require.NoError(t, err)
	got, err := DecryptPayload(key.Secret, payload)
	require.NoError(t, err)
	assert.Equal(t, rec.Amount, got.Amount)
}

// Threshold disclosure: 2-of-3 shares of a viewing secret. Any two
// reconstruct; one does not; a corrupted share fails Feldman verification
// before reconstruction is attempted.
func TestThresholdDisclosure(t *testing.T) {
	key, err := DeriveKey(curve.Secp256k1, testMaster(), KeyFull)
	require.NoError(t, err)

	holders := []string{"custodian-a", "custodian-b", "auditor"}
	shares, err := Split(key.Secret, 2, 3, holders, rand.Reader)
	require.NoError(t, err)
	require.Len(t, shares, 3)
	for _, sh := range shares {
		require.NoError(t, VerifyShare(sh), "freshly issued shares must verify")
		assert.GreaterOrEqual(t, sh.Index, uint32(1))
	}

	t.Run("AnyTwoReconstruct", func(t *testing.T) {
		pairs := [][2]int{{0, 1}, {0, 2}, {1, 2}}
		for _, pair := range pairs {
			secret, err := Reconstruct([]*Share{shares[pair[0]], shares[pair[1]]}, 2)
			require.NoError(t, err)
			assert.True(t, secret.Equal(key.Secret), "shares %v should reconstruct the secret", pair)
		}
	})

	t.Run("OneIsBelowThreshold", func(t *testing.T) {
		_, err := Reconstruct([]*Share{shares[0]}, 2)
		assert.ErrorIs(t, err, siperr.BelowThreshold)
	})

	t.Run("CorruptedShareRejected", func(t *testing.T) {
		bad := &Share{
			ID:          shares[0].ID,
			HolderID:    shares[0].HolderID,
			Index:       shares[0].Index,
			Value:       curve.ScalarFromUint64(curve.Secp256k1, 1234),
			Commitments: shares[0].Commitments,
		}
		assert.ErrorIs(t, VerifyShare(bad), siperr.InvalidShare)
		_, err := Reconstruct([]*Share{bad, shares[1]}, 2)
		assert.ErrorIs(t, err, siperr.InvalidShare)
	})

	t.Run("DuplicateSharesDoNotCount", func(t *testing.T) {
		_, err := Reconstruct([]*Share{shares[0], shares[0]}, 2)
		assert.ErrorIs(t, err, siperr.BelowThreshold)
	})
}

func TestThresholdLargerQuorum(t *testing.T) {
	key, err := DeriveKey(curve.Ed25519, testMaster(), KeyIncoming)
	require.NoError(t, err)

	shares, err := Split(key.Secret, 3, 5, nil, rand.Reader)
	require.NoError(t, err)

	secret, err := Reconstruct(shares[1:4], 3)
	require.NoError(t, err)
	assert.True(t, secret.Equal(key.Secret))

	_, err = Reconstruct(shares[:2], 3)
	assert.ErrorIs(t, err, siperr.BelowThreshold)
}

func TestSealOpenShare(t *testing.T) {
	key, err := DeriveKey(curve.Secp256k1, testMaster(), KeyIncoming)
	require.NoError(t, err)
	shares, err := Split(key.Secret, 2, 2, nil, rand.Reader)
	require.NoError(t, err)

	holderKey := bytes.Repeat([]byte{0x33}, 32)
	nonce, ct, err := SealShare(shares[0], holderKey, rand.Reader)
	require.NoError(t, err)

	transported := &Share{
		ID:          shares[0].ID,
		Index:       shares[0].Index,
		Commitments: shares[0].Commitments,
	}
	require.NoError(t, OpenShare(transported, holderKey, nonce, ct))
	assert.True(t, transported.Value.Equal(shares[0].Value))
	require.NoError(t, VerifyShare(transported))

	t.Run("WrongHolderKey", func(t *testing.T) {
		bad := &Share{ID: shares[0].ID, Index: shares[0].Index, Commitments: shares[0].Commitments}
		err := OpenShare(bad, bytes.Repeat([]byte{0x34}, 32), nonce, ct)
		assert.ErrorIs(t, err, siperr.ViewingKeyDecryptFailed)
	})
}

func TestDisclosurePolicy(t *testing.T) {
	policy := DefaultDisclosurePolicy()

	balance, err := policy.ThresholdFor(PurposeViewBalance)
	require.NoError(t, err)
	full, err := policy.ThresholdFor(PurposeFullDisclosure)
	require.NoError(t, err)
	assert.Less(t, balance, full, "full disclosure should need a larger quorum")

	_, err = policy.ThresholdFor(Purpose("espionage"))
	require.Error(t, err)
}
