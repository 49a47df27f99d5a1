package curve

import (
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/sip-protocol/sip-core/siperr"
)

// AEADKeySize is the XChaCha20-Poly1305 key size.
const AEADKeySize = chacha20poly1305.KeySize

// AEADNonceSize is the 24-byte extended nonce size.
const AEADNonceSize = chacha20poly1305.NonceSizeX

// AEADSeal encrypts plaintext with XChaCha20-Poly1305 under the given key,
// 24-byte nonce and additional authenticated data.
func AEADSeal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, siperr.InvalidInput.WrapMsg(err, "aead key")
	}
	if len(nonce) != AEADNonceSize {
		return nil, siperr.InvalidInput.Errorf("nonce must be %d bytes, got %d", AEADNonceSize, len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// AEADOpen decrypts and authenticates an AEADSeal ciphertext. Any tampering
// with ciphertext, nonce or aad fails authentication.
func AEADOpen(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, siperr.InvalidInput.WrapMsg(err, "aead key")
	}
	if len(nonce) != AEADNonceSize {
		return nil, siperr.InvalidInput.Errorf("nonce must be %d bytes, got %d", AEADNonceSize, len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, siperr.ViewingKeyDecryptFailed.Wrap(err)
	}
	return plaintext, nil
}
