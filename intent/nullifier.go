package intent

import (
	"sync"

	"github.com/sip-protocol/sip-core/siperr"
)

// NullifierJournal persists observed nullifiers. The in-memory set is
// authoritative for the atomic check; the journal is the durability hook
// (wallet.Store implements it).
type NullifierJournal interface {
	RecordNullifier(n [32]byte) error
}

// NullifierSet is the append-only set of spent nullifiers. Insertion of an
// already-present nullifier is the defining double-spend condition.
type NullifierSet struct {
	mu      sync.Mutex
	spent   map[[32]byte]struct{}
	journal NullifierJournal
}

// NewNullifierSet creates an empty set. journal may be nil for a purely
// in-memory set.
func NewNullifierSet(journal NullifierJournal) *NullifierSet {
	return &NullifierSet{
		spent:   make(map[[32]byte]struct{}),
		journal: journal,
	}
}

// CheckAndInsert atomically tests membership and inserts. A hit returns
// NullifierReuse and leaves the set unchanged. If the journal rejects the
// insert, the in-memory insert is rolled back so the set and the journal
// never disagree.
func (s *NullifierSet) CheckAndInsert(n [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.spent[n]; ok {
		return siperr.NullifierReuse.Errorf("nullifier already spent")
	}
	s.spent[n] = struct{}{}
	if s.journal != nil {
		if err := s.journal.RecordNullifier(n); err != nil {
			delete(s.spent, n)
			return siperr.InvalidInput.WrapMsg(err, "nullifier journal")
		}
	}
	return nil
}

// Contains reports membership without inserting.
func (s *NullifierSet) Contains(n [32]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.spent[n]
	return ok
}

// Len returns the number of spent nullifiers.
func (s *NullifierSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spent)
}
