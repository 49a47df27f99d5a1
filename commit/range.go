package commit

import (
	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// RangeBits is the bit width range assertions cover: values are u64.
const RangeBits = 64

// RangeWitness is the prover-side material for a 64-bit range assertion on a
// committed value: the bit decomposition of the value together with the
// commitment opening. The commitment primitive itself performs no range
// check; the Funding circuit consumes this witness.
type RangeWitness struct {
	Value    uint64
	Blinding *curve.Scalar
	Bits     [RangeBits]uint8
}

// NewRangeWitness decomposes an opening into range-proof witness columns.
func NewRangeWitness(opening *Opening) (*RangeWitness, error) {
	if opening == nil || opening.Blinding == nil {
		return nil, siperr.InvalidInput.Errorf("nil opening")
	}
	w := &RangeWitness{
		Value:    opening.Value,
		Blinding: opening.Blinding.Clone(),
	}
	for i := 0; i < RangeBits; i++ {
		w.Bits[i] = uint8(opening.Value >> uint(i) & 1)
	}
	return w, nil
}

// Recompose folds the bit columns back into the value; used by circuit
// construction to assert the decomposition is consistent.
func (w *RangeWitness) Recompose() uint64 {
	var v uint64
	for i := 0; i < RangeBits; i++ {
		v |= uint64(w.Bits[i]&1) << uint(i)
	}
	return v
}

// Zeroize wipes the witness secrets.
func (w *RangeWitness) Zeroize() {
	if w.Blinding != nil {
		w.Blinding.Zeroize()
	}
	for i := range w.Bits {
		w.Bits[i] = 0
	}
	w.Value = 0
}
