package viewing

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// Domain separation tags for payload encryption.
const (
	aeadDomain      = "SIP-VIEW-AEAD-v1"
	aeadKeyDomain   = "SIP-VIEW-AEAD-KEY-v1"
	aeadNonceDomain = "SIP-VIEW-AEAD-NONCE-v1"
)

// PaymentRecord is the per-payment metadata a viewing key holder can
// decrypt. Serialized as JSON inside the AEAD envelope.
type PaymentRecord struct {
	Sender           string `json:"sender"`
	RecipientStealth string `json:"recipient_stealth"`
	Amount           uint64 `json:"amount"`
	// Blinding is the commitment opening's blinding factor (hex) so the
	// viewer can verify the published commitment.
	Blinding  string `json:"blinding"`
	Memo      string `json:"memo,omitempty"`
	Timestamp uint64 `json:"timestamp"`
}

// Payload is the published ciphertext envelope: the ephemeral session point
// f*G, the AEAD ciphertext, and the additional authenticated data binding it
// to an intent.
type Payload struct {
	Ephemeral  []byte `json:"ephemeral"`
	Ciphertext []byte `json:"ciphertext"`
	AAD        []byte `json:"aad"`
}

// EncryptPayload encrypts a payment record to a viewer public key.
//
// An ephemeral session scalar f yields a shared secret
// hash_to_scalar("SIP-VIEW-AEAD-v1", f*V); the AEAD key and 24-byte nonce
// are derived from it under separate domain tags. The AAD binds the
// ciphertext to (intent_id, timestamp).
func EncryptPayload(viewerPub *curve.Point, intentID []byte, timestamp uint64, rec *PaymentRecord, rand io.Reader) (*Payload, error) {
	if viewerPub == nil {
		return nil, siperr.InvalidInput.Errorf("nil viewer key")
	}
	if rec == nil {
		return nil, siperr.InvalidInput.Errorf("nil payment record")
	}

	f, err := curve.RandomScalar(viewerPub.Curve(), rand)
	if err != nil {
		return nil, err
	}
	defer f.Zeroize()

	shared, err := sessionSecret(viewerPub, f)
	if err != nil {
		return nil, err
	}
	defer shared.Zeroize()

	key, nonce := deriveAEADMaterial(shared)
	aad := paymentAAD(intentID, timestamp)

	plaintext, err := json.Marshal(rec)
	if err != nil {
		return nil, siperr.InvalidInput.Wrap(err)
	}
	ciphertext, err := curve.AEADSeal(key, nonce, aad, plaintext)
	if err != nil {
		return nil, err
	}

	ephemeral, err := curve.ScalarBaseMult(f).Bytes()
	if err != nil {
		return nil, err
	}
	return &Payload{Ephemeral: ephemeral, Ciphertext: ciphertext, AAD: aad}, nil
}

// DecryptPayload decrypts a payload with the viewer's private scalar. An
// authentication failure (tampered ciphertext, nonce material, or AAD)
// surfaces as ViewingKeyDecryptFailed.
func DecryptPayload(viewerPriv *curve.Scalar, p *Payload) (*PaymentRecord, error) {
	if viewerPriv == nil {
		return nil, siperr.InvalidScalar.Errorf("nil viewing key")
	}
	if p == nil {
		return nil, siperr.InvalidInput.Errorf("nil payload")
	}

	ephemeral, err := curve.PointFromBytes(viewerPriv.Curve(), p.Ephemeral)
	if err != nil {
		return nil, err
	}
	shared, err := sessionSecret(ephemeral, viewerPriv)
	if err != nil {
		return nil, err
	}
	defer shared.Zeroize()

	key, nonce := deriveAEADMaterial(shared)
	plaintext, err := curve.AEADOpen(key, nonce, p.AAD, p.Ciphertext)
	if err != nil {
		return nil, err
	}

	var rec PaymentRecord
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return nil, siperr.ViewingKeyDecryptFailed.WrapMsg(err, "payload decode")
	}
	return &rec, nil
}

func sessionSecret(pub *curve.Point, priv *curve.Scalar) (*curve.Scalar, error) {
	ecdh, err := pub.Mul(priv)
	if err != nil {
		return nil, err
	}
	if ecdh.IsIdentity() {
		return nil, siperr.DegenerateKey.Errorf("degenerate session secret")
	}
	enc, err := ecdh.Bytes()
	if err != nil {
		return nil, err
	}
	return curve.HashToScalar(pub.Curve(), aeadDomain, enc)
}

func deriveAEADMaterial(shared *curve.Scalar) (key, nonce []byte) {
	k := blake2b.Sum256(append([]byte(aeadKeyDomain), shared.Bytes()...))
	n := blake2b.Sum256(append([]byte(aeadNonceDomain), shared.Bytes()...))
	return k[:], n[:curve.AEADNonceSize]
}

func paymentAAD(intentID []byte, timestamp uint64) []byte {
	aad := make([]byte, 0, len(intentID)+8)
	aad = append(aad, intentID...)
	aad = binary.BigEndian.AppendUint64(aad, timestamp)
	return aad
}
