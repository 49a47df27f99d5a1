package wallet

import (
	"crypto/rand"
	"encoding/json"
	"io"

	"github.com/dgraph-io/badger/v3"

	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

const masterSecretAAD = "sip-wallet-master-secret-v1"

type sealedSecret struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SealMasterSecret encrypts the 32-byte wallet master secret under a
// caller-supplied 32-byte storage key and records it. The master secret is
// never stored in the clear.
func (s *Store) SealMasterSecret(storageKey, master []byte) error {
	if len(master) != 32 {
		return siperr.InvalidInput.Errorf("master secret must be 32 bytes, got %d", len(master))
	}
	nonce := make([]byte, curve.AEADNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return siperr.InvalidInput.WrapMsg(err, "nonce")
	}
	ciphertext, err := curve.AEADSeal(storageKey, nonce, []byte(masterSecretAAD), master)
	if err != nil {
		return err
	}

	sealed := sealedSecret{Nonce: nonce, Ciphertext: ciphertext}
	raw, err := json.Marshal(sealed)
	if err != nil {
		return siperr.InvalidInput.Wrap(err)
	}
	_, err = s.append(EntryMasterSecret, sealed, map[string][]byte{
		string(keyMasterEntry): raw,
	})
	return err
}

// LoadMasterSecret decrypts the stored master secret. A wrong storage key or
// tampered record fails authentication.
func (s *Store) LoadMasterSecret(storageKey []byte) ([]byte, error) {
	var sealed sealedSecret
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyMasterEntry)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sealed)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, siperr.InvalidInput.Errorf("no master secret stored")
	}
	if err != nil {
		return nil, siperr.InvalidInput.WrapMsg(err, "load master secret")
	}
	return curve.AEADOpen(storageKey, sealed.Nonce, []byte(masterSecretAAD), sealed.Ciphertext)
}
