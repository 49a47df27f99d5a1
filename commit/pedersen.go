// Package commit implements Pedersen commitments: C = v*G + r*H with the
// independent generator H derived by hash-to-curve so that no one knows
// log_G(H). Commitments are computationally binding, information-
// theoretically hiding, and additively homomorphic.
package commit

import (
	"io"
	"sync"

	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/siperr"
)

// Domain separation tag for H generation
const hDomain = "SIP-PEDERSEN-GENERATOR-H-v1"

// Engine performs commitment operations on one curve. Engines are cheap to
// copy around and safe for concurrent use; the generators are fixed at
// construction.
type Engine struct {
	crv curve.Curve
	g   *curve.Point
	h   *curve.Point
}

var (
	engineMu sync.Mutex
	engines  = map[curve.Curve]*Engine{}
)

// NewEngine returns the commitment engine for a curve. Engines are cached
// per curve because H derivation walks the hash-to-point counter loop.
func NewEngine(c curve.Curve) (*Engine, error) {
	engineMu.Lock()
	defer engineMu.Unlock()
	if e, ok := engines[c]; ok {
		return e, nil
	}
	h, err := curve.HashToPoint(c, hDomain, nil)
	if err != nil {
		return nil, err
	}
	e := &Engine{crv: c, g: curve.Generator(c), h: h}
	engines[c] = e
	return e, nil
}

// Curve returns the engine's curve.
func (e *Engine) Curve() curve.Curve { return e.crv }

// Generators returns (G, H) for proof-system integration.
func (e *Engine) Generators() (*curve.Point, *curve.Point) { return e.g, e.h }

// Opening is the secret opening of a commitment.
type Opening struct {
	Value    uint64
	Blinding *curve.Scalar
}

// Zeroize wipes the blinding factor.
func (o *Opening) Zeroize() {
	if o.Blinding != nil {
		o.Blinding.Zeroize()
	}
}

// Commit creates C = value*G + blinding*H. A zero value commits to the
// blinding alone: C = r*H.
func (e *Engine) Commit(value uint64, blinding *curve.Scalar) (*curve.Point, error) {
	if blinding == nil {
		return nil, siperr.InvalidInput.Errorf("nil blinding")
	}
	if blinding.Curve() != e.crv {
		return nil, siperr.ChainMismatch.Errorf("blinding on %s, engine on %s", blinding.Curve(), e.crv)
	}
	rH, err := e.h.Mul(blinding)
	if err != nil {
		return nil, err
	}
	if value == 0 {
		return rH, nil
	}
	vG := curve.ScalarBaseMult(curve.ScalarFromUint64(e.crv, value))
	return vG.Add(rH)
}

// CommitRandom commits to value under a fresh uniformly random blinding.
func (e *Engine) CommitRandom(value uint64, rand io.Reader) (*curve.Point, *curve.Scalar, error) {
	blinding, err := curve.RandomScalar(e.crv, rand)
	if err != nil {
		return nil, nil, err
	}
	c, err := e.Commit(value, blinding)
	if err != nil {
		return nil, nil, err
	}
	return c, blinding, nil
}

// CommitZero creates a commitment to zero: C = blinding*H.
func (e *Engine) CommitZero(blinding *curve.Scalar) (*curve.Point, error) {
	return e.Commit(0, blinding)
}

// VerifyOpening recomputes value*G + blinding*H and compares to C.
func (e *Engine) VerifyOpening(c *curve.Point, value uint64, blinding *curve.Scalar) (bool, error) {
	if c == nil {
		return false, siperr.InvalidCommitment.Errorf("nil commitment")
	}
	expected, err := e.Commit(value, blinding)
	if err != nil {
		return false, err
	}
	return c.Equal(expected), nil
}

// Add combines two commitments homomorphically:
// C1 + C2 commits to v1+v2 under blinding r1+r2.
func (e *Engine) Add(c1, c2 *curve.Point) (*curve.Point, error) {
	if c1 == nil || c2 == nil {
		return nil, siperr.InvalidCommitment.Errorf("nil commitment")
	}
	return c1.Add(c2)
}

// Sub subtracts commitments homomorphically:
// C1 - C2 commits to v1-v2 under blinding r1-r2.
func (e *Engine) Sub(c1, c2 *curve.Point) (*curve.Point, error) {
	if c1 == nil || c2 == nil {
		return nil, siperr.InvalidCommitment.Errorf("nil commitment")
	}
	return c1.Sub(c2)
}

// AddBlindings returns r1 + r2 mod order, for use with Add.
func AddBlindings(r1, r2 *curve.Scalar) (*curve.Scalar, error) {
	return r1.Add(r2)
}

// SubBlindings returns r1 - r2 mod order, for use with Sub.
func SubBlindings(r1, r2 *curve.Scalar) (*curve.Scalar, error) {
	return r1.Sub(r2)
}
