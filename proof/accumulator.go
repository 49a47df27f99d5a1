package proof

import (
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/sip-protocol/sip-core/siperr"
)

// PublicInputs is implemented by the public-input structs of the three
// circuits.
type PublicInputs interface {
	CircuitID() CircuitID
	PublicBytes() []byte
}

// Verify dispatches verification by circuit. The oracle configuration is
// required for fulfillment proofs and ignored by the other circuits.
func Verify(pub PublicInputs, blob []byte, oracle *OracleConfig) (Result, error) {
	switch p := pub.(type) {
	case *FundingPublic:
		return VerifyFunding(p, blob)
	case *ValidityPublic:
		return VerifyValidity(p, blob)
	case *FulfillmentPublic:
		return VerifyFulfillment(p, oracle, blob)
	default:
		return MalformedProof, siperr.InvalidInput.Errorf("unknown public input type")
	}
}

// AccumulatorConfig controls batched proof accumulation.
type AccumulatorConfig struct {
	// MaxProofs is the maximum number of proofs per accumulator.
	MaxProofs int
	// ParallelVerify enables parallel verification at finalization.
	ParallelVerify bool
	// Oracle is the oracle set fulfillment members are verified against.
	Oracle *OracleConfig
}

// DefaultAccumulatorConfig returns an AccumulatorConfig with sensible
// defaults.
func DefaultAccumulatorConfig() AccumulatorConfig {
	return AccumulatorConfig{
		MaxProofs:      64,
		ParallelVerify: true,
	}
}

// Accumulator folds the digests of many proofs into a single object so a
// batch can be checked with one final pass. This is the non-recursive
// baseline: each proof is still individually verified at Finalize, but
// callers hand batches around as one object whose fold digest commits to
// every member. Accumulation is order-sensitive; the fold at step i commits
// to the accumulator state at step i-1.
type Accumulator struct {
	mu      sync.Mutex
	config  AccumulatorConfig
	entries []accEntry
	fold    [32]byte
}

type accEntry struct {
	pub  PublicInputs
	blob []byte
}

const accumulatorDomain = "SIP-PROOF-ACCUMULATOR-v1"

// NewAccumulator creates an empty accumulator.
func NewAccumulator(config AccumulatorConfig) *Accumulator {
	if config.MaxProofs <= 0 {
		config.MaxProofs = DefaultAccumulatorConfig().MaxProofs
	}
	acc := &Accumulator{config: config}
	h, _ := blake2b.New256(nil)
	h.Write([]byte(accumulatorDomain))
	copy(acc.fold[:], h.Sum(nil))
	return acc
}

// Add folds a proof into the accumulator. The blob's framing is validated
// here; full verification is deferred to Finalize.
func (a *Accumulator) Add(pub PublicInputs, blob []byte) error {
	if pub == nil {
		return siperr.InvalidInput.Errorf("nil public inputs")
	}
	if _, err := openBlob(pub.CircuitID(), blob); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) >= a.config.MaxProofs {
		return siperr.InvalidInput.Errorf("accumulator is full (%d proofs)", a.config.MaxProofs)
	}
	digest := blobDigest(blob)
	h, _ := blake2b.New256(nil)
	h.Write(a.fold[:])
	h.Write([]byte{byte(pub.CircuitID())})
	h.Write(digest[:])
	copy(a.fold[:], h.Sum(nil))
	a.entries = append(a.entries, accEntry{pub: pub, blob: blob})
	return nil
}

// Len returns the number of accumulated proofs.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Fold returns the current fold digest.
func (a *Accumulator) Fold() [32]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fold
}

// Finalize verifies every accumulated proof and re-derives the fold digest.
// It returns Valid only if all member proofs verify and the fold matches,
// with the first failure's detail otherwise.
func (a *Accumulator) Finalize() (Result, error) {
	a.mu.Lock()
	entries := make([]accEntry, len(a.entries))
	copy(entries, a.entries)
	fold := a.fold
	parallel := a.config.ParallelVerify
	oracle := a.config.Oracle
	a.mu.Unlock()

	if len(entries) == 0 {
		return MalformedProof, siperr.InvalidInput.Errorf("empty accumulator")
	}

	// Recompute the fold chain.
	var expected [32]byte
	h, _ := blake2b.New256(nil)
	h.Write([]byte(accumulatorDomain))
	copy(expected[:], h.Sum(nil))
	for _, e := range entries {
		digest := blobDigest(e.blob)
		h, _ := blake2b.New256(nil)
		h.Write(expected[:])
		h.Write([]byte{byte(e.pub.CircuitID())})
		h.Write(digest[:])
		copy(expected[:], h.Sum(nil))
	}
	if expected != fold {
		return Invalid, siperr.ProofVerificationFailed.Errorf("accumulator fold mismatch")
	}

	if !parallel {
		for _, e := range entries {
			if res, err := Verify(e.pub, e.blob, oracle); res != Valid {
				return res, err
			}
		}
		return Valid, nil
	}

	type outcome struct {
		res Result
		err error
	}
	results := make([]outcome, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e accEntry) {
			defer wg.Done()
			res, err := Verify(e.pub, e.blob, oracle)
			results[i] = outcome{res: res, err: err}
		}(i, e)
	}
	wg.Wait()
	for _, out := range results {
		if out.res != Valid {
			return out.res, out.err
		}
	}
	return Valid, nil
}
