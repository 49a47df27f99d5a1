package stealth

import (
	"sort"
	"strings"
	"sync"

	"github.com/sip-protocol/sip-core/chains"
	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// Announcement is one published payment candidate: the sender's ephemeral
// public key, the view tag, and the chain-native address that received the
// payment.
type Announcement struct {
	EphemeralPub []byte // compressed point encoding
	ViewTag      uint8
	Address      string
}

// Scan checks whether an announced payment belongs to the holder of the
// viewing private key.
//
// The view tag filters ~255/256 of non-matching candidates with a single
// hash before the expensive address recomputation.
func Scan(meta *MetaAddress, viewingPriv *curve.Scalar, ephemeralPub *curve.Point, tag uint8, candidate string) (bool, error) {
	if meta == nil {
		return false, siperr.InvalidMetaAddress.Errorf("nil meta-address")
	}
	if viewingPriv == nil {
		return false, siperr.InvalidScalar.Errorf("nil viewing key")
	}

	shared, err := sharedSecret(ephemeralPub, viewingPriv)
	if err != nil {
		return false, err
	}
	defer shared.Zeroize()

	// Quick view tag check
	expectedTag, err := viewTag(shared)
	if err != nil {
		return false, err
	}
	if expectedTag != tag {
		return false, nil
	}

	// Full verification: derive expected stealth address
	oneTime, err := oneTimeKey(meta.SpendingPub, shared)
	if err != nil {
		return false, err
	}
	addr, err := addressFromKey(meta.Chain, oneTime)
	if err != nil {
		return false, err
	}
	return addressesEqual(meta.Chain, addr.Encoded, candidate), nil
}

// addressesEqual compares chain-native address strings. EVM addresses are
// case-insensitive hex (EIP-55 only changes case); base58 is exact.
func addressesEqual(tag chains.Tag, a, b string) bool {
	chain, err := chains.Get(tag)
	if err != nil {
		return false
	}
	if chain.Curve == curve.Secp256k1 {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// DeriveSpendingKey derives the private key controlling a stealth address:
// k_stealth = (spending_priv + s') mod order, where s' is recomputed from
// the viewing key and the announced ephemeral public key.
func DeriveSpendingKey(spendingPriv, viewingPriv *curve.Scalar, ephemeralPub *curve.Point) (*curve.Scalar, error) {
	if spendingPriv == nil || viewingPriv == nil {
		return nil, siperr.InvalidScalar.Errorf("nil private key")
	}
	shared, err := sharedSecret(ephemeralPub, viewingPriv)
	if err != nil {
		return nil, err
	}
	defer shared.Zeroize()
	return spendingPriv.Add(shared)
}

// ScanBatch scans a block of announcements in parallel, partitioning the
// candidate set across workers. It returns the indices of matching
// announcements in ascending order. Announcements that fail to parse are
// skipped; scanning is best-effort over untrusted public data.
func ScanBatch(meta *MetaAddress, viewingPriv *curve.Scalar, anns []Announcement, workers int) ([]int, error) {
	if meta == nil {
		return nil, siperr.InvalidMetaAddress.Errorf("nil meta-address")
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(anns) {
		workers = len(anns)
	}
	if len(anns) == 0 {
		return nil, nil
	}

	crv := meta.SpendingPub.Curve()
	var (
		mu      sync.Mutex
		matches []int
		wg      sync.WaitGroup
	)
	chunk := (len(anns) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(anns) {
			hi = len(anns)
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			var local []int
			for i := lo; i < hi; i++ {
				eph, err := curve.PointFromBytes(crv, anns[i].EphemeralPub)
				if err != nil {
					continue
				}
				ok, err := Scan(meta, viewingPriv, eph, anns[i].ViewTag, anns[i].Address)
				if err == nil && ok {
					local = append(local, i)
				}
			}
			if len(local) > 0 {
				mu.Lock()
				matches = append(matches, local...)
				mu.Unlock()
			}
		}(lo, hi)
	}
	wg.Wait()
	sort.Ints(matches)
	return matches, nil
}
