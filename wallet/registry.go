package wallet

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// MetaAddressRecord is one issued meta-address.
type MetaAddressRecord struct {
	Encoded   string `json:"encoded"`
	Label     string `json:"label,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// AddMetaAddress records an issued meta-address.
func (s *Store) AddMetaAddress(encoded, label string) error {
	rec := MetaAddressRecord{
		Encoded:   encoded,
		Label:     label,
		CreatedAt: time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return siperr.InvalidInput.Wrap(err)
	}
	sum := sha256.Sum256([]byte(encoded))
	key := string(prefixMeta) + curve.ToHex(sum[:])
	_, err = s.append(EntryMetaAddress, rec, map[string][]byte{key: raw})
	return err
}

// MetaAddresses lists all issued meta-addresses.
func (s *Store) MetaAddresses() ([]MetaAddressRecord, error) {
	var out []MetaAddressRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixMeta
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec MetaAddressRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, siperr.InvalidInput.WrapMsg(err, "scan meta-addresses")
	}
	return out, nil
}

// RecordNullifier journals a nullifier observed for the wallet's own spends.
// It implements the intent engine's NullifierJournal hook.
func (s *Store) RecordNullifier(n [32]byte) error {
	key := string(prefixNull) + curve.ToHex(n[:])
	_, err := s.append(EntryNullifier, curve.ToHex(n[:]), map[string][]byte{key: {1}})
	return err
}

// HasNullifier reports whether a nullifier was observed.
func (s *Store) HasNullifier(n [32]byte) (bool, error) {
	key := string(prefixNull) + curve.ToHex(n[:])
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, siperr.InvalidInput.WrapMsg(err, "nullifier lookup")
	}
	return found, nil
}

// ShareStatus tracks a viewing share through its policy lifecycle. The log
// is append-only: revocation marks a share inactive, it cannot "un-share"
// the underlying cryptography.
type ShareStatus string

const (
	ShareActive  ShareStatus = "active"
	ShareRevoked ShareStatus = "revoked"
	ShareRotated ShareStatus = "rotated"
)

// ShareRecord is the registry view of one issued viewing share.
type ShareRecord struct {
	ShareID   string      `json:"share_id"`
	HolderID  string      `json:"holder_id"`
	Index     uint32      `json:"index"`
	Status    ShareStatus `json:"status"`
	CreatedAt int64       `json:"created_at"`
	UpdatedAt int64       `json:"updated_at"`
}

func shareKey(shareID string, index uint32) string {
	return fmt.Sprintf("%s%s/%d", prefixShare, shareID, index)
}

// RecordShare registers a newly issued share as active.
func (s *Store) RecordShare(shareID, holderID string, index uint32) error {
	now := time.Now().UnixMilli()
	rec := ShareRecord{
		ShareID:   shareID,
		HolderID:  holderID,
		Index:     index,
		Status:    ShareActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return siperr.InvalidInput.Wrap(err)
	}
	_, err = s.append(EntryShare, rec, map[string][]byte{shareKey(shareID, index): raw})
	return err
}

// UpdateShareStatus transitions a share's registry status (revoked,
// rotated). The status change is itself a log entry.
func (s *Store) UpdateShareStatus(shareID string, index uint32, status ShareStatus) error {
	var rec ShareRecord
	key := shareKey(shareID, index)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return siperr.InvalidShare.Errorf("share %s[%d] not registered", shareID, index)
	}
	if err != nil {
		return siperr.InvalidInput.WrapMsg(err, "share lookup")
	}

	rec.Status = status
	rec.UpdatedAt = time.Now().UnixMilli()
	raw, err := json.Marshal(rec)
	if err != nil {
		return siperr.InvalidInput.Wrap(err)
	}
	_, err = s.append(EntryShareStatus, rec, map[string][]byte{key: raw})
	return err
}

// Shares lists the registry's current view of all issued shares.
func (s *Store) Shares() ([]ShareRecord, error) {
	var out []ShareRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixShare
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec ShareRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, siperr.InvalidInput.WrapMsg(err, "scan shares")
	}
	return out, nil
}
