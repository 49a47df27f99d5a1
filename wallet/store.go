// Package wallet persists per-wallet protocol state: the encrypted master
// secret, issued meta-addresses, nullifiers observed for the wallet's own
// spends, and the viewing-share registry. Everything is written through an
// append-only log whose entries are chained by SHA-256 previous-hash links
// for tamper evidence, stored in BadgerDB.
package wallet

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// StoreConfig configures the wallet store.
type StoreConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps the store in memory (tests, ephemeral wallets).
	InMemory bool
}

// Store wraps BadgerDB for wallet state.
type Store struct {
	db *badger.DB

	// appendMu serializes log appends so sequence numbers and hash links
	// never race.
	appendMu sync.Mutex
}

// Log key layout.
var (
	keyLogHead     = []byte("log-head")
	keyLogPrefix   = []byte("log/")
	keyMasterEntry = []byte("master-secret")
	prefixMeta     = []byte("meta/")
	prefixNull     = []byte("nullifier/")
	prefixShare    = []byte("share/")
)

// EntryKind labels what a log entry records.
type EntryKind string

const (
	EntryMasterSecret EntryKind = "master-secret"
	EntryMetaAddress  EntryKind = "meta-address"
	EntryNullifier    EntryKind = "nullifier"
	EntryShare        EntryKind = "share"
	EntryShareStatus  EntryKind = "share-status"
)

// LogEntry is one record in the tamper-evident log. PreviousHash equals the
// prior entry's content hash; the first entry chains from the empty string.
type LogEntry struct {
	Seq          uint64          `json:"seq"`
	Kind         EntryKind       `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    int64           `json:"timestamp"`
	PreviousHash string          `json:"previous_hash"`
	Hash         string          `json:"hash"`
}

// Open opens or creates a wallet store.
func Open(config StoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, siperr.InvalidInput.WrapMsg(err, "open wallet store")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// contentHash computes the canonical hash of an entry's content (everything
// except the Hash field itself).
func (e *LogEntry) contentHash() string {
	h := sha256.New()
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], e.Seq)
	h.Write(seq[:])
	h.Write([]byte(e.Kind))
	h.Write(e.Payload)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(e.Timestamp))
	h.Write(ts[:])
	h.Write([]byte(e.PreviousHash))
	return curve.ToHex(h.Sum(nil))
}

// append writes a new chained log entry and any index keys in one
// transaction.
func (s *Store) append(kind EntryKind, payload any, index map[string][]byte) (*LogEntry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, siperr.InvalidInput.Wrap(err)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	head, prevHash, err := s.head()
	if err != nil {
		return nil, err
	}

	entry := &LogEntry{
		Seq:          head + 1,
		Kind:         kind,
		Payload:      raw,
		Timestamp:    time.Now().UnixMilli(),
		PreviousHash: prevHash,
	}
	entry.Hash = entry.contentHash()

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, siperr.InvalidInput.Wrap(err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(logKey(entry.Seq), data); err != nil {
			return err
		}
		var headVal [8]byte
		binary.BigEndian.PutUint64(headVal[:], entry.Seq)
		if err := txn.Set(keyLogHead, headVal[:]); err != nil {
			return err
		}
		for k, v := range index {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, siperr.InvalidInput.WrapMsg(err, "append log entry")
	}
	return entry, nil
}

// head returns the latest sequence number and its entry hash.
func (s *Store) head() (uint64, string, error) {
	var seq uint64
	var hash string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyLogHead)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			seq = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return err
		}
		entry, err := s.entryTxn(txn, seq)
		if err != nil {
			return err
		}
		hash = entry.Hash
		return nil
	})
	if err != nil {
		return 0, "", siperr.InvalidInput.WrapMsg(err, "read log head")
	}
	return seq, hash, nil
}

func logKey(seq uint64) []byte {
	key := make([]byte, len(keyLogPrefix)+8)
	copy(key, keyLogPrefix)
	binary.BigEndian.PutUint64(key[len(keyLogPrefix):], seq)
	return key
}

func (s *Store) entryTxn(txn *badger.Txn, seq uint64) (*LogEntry, error) {
	item, err := txn.Get(logKey(seq))
	if err != nil {
		return nil, err
	}
	var entry LogEntry
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	}); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Entries returns the full log in sequence order.
func (s *Store) Entries() ([]*LogEntry, error) {
	head, _, err := s.head()
	if err != nil {
		return nil, err
	}
	entries := make([]*LogEntry, 0, head)
	err = s.db.View(func(txn *badger.Txn) error {
		for seq := uint64(1); seq <= head; seq++ {
			entry, err := s.entryTxn(txn, seq)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, siperr.InvalidInput.WrapMsg(err, "read log")
	}
	return entries, nil
}

// VerifyChain replays the log and checks every previous-hash link and
// content hash. A broken link means the store was tampered with.
func (s *Store) VerifyChain() error {
	entries, err := s.Entries()
	if err != nil {
		return err
	}
	prevHash := ""
	for _, entry := range entries {
		if entry.PreviousHash != prevHash {
			return siperr.InvalidInput.Errorf("log entry %d: previous-hash link broken", entry.Seq)
		}
		if entry.contentHash() != entry.Hash {
			return siperr.InvalidInput.Errorf("log entry %d: content hash mismatch", entry.Seq)
		}
		prevHash = entry.Hash
	}
	return nil
}
