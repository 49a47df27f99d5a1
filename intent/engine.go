package intent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sip-protocol/sip-core/chains"
	"github.com/sip-protocol/sip-core/curve"
	"github.com/sip-protocol/sip-core/proof"
	"github.com/sip-protocol/sip-core/siperr"
)

// EngineConfig holds configuration for the lifecycle engine.
type EngineConfig struct {
	// Logger receives structured engine events; defaults to a no-op logger.
	Logger *zap.Logger
	// MaxAttempts bounds adapter retries on transient errors.
	MaxAttempts int
	// BaseBackoff is the first retry window; it doubles per attempt with
	// full jitter.
	BaseBackoff time.Duration
	// Oracle is the oracle key set fulfillment proofs are verified
	// against. Fulfill rejects everything until it is configured.
	Oracle *proof.OracleConfig
}

// DefaultEngineConfig returns an EngineConfig with sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxAttempts: 5,
		BaseBackoff: 250 * time.Millisecond,
	}
}

// Engine orchestrates the intent lifecycle: it verifies the three proofs at
// the mandated points, tracks nullifiers, talks to the settlement adapter,
// and holds the canonical state machine. Operations on one intent are
// serialized; distinct intents proceed independently.
type Engine struct {
	config     EngineConfig
	log        *zap.Logger
	adapter    Adapter
	nullifiers *NullifierSet

	mu      sync.Mutex
	tracked map[string]*trackedIntent
}

type trackedIntent struct {
	mu       sync.Mutex
	intent   *Intent
	envelope *Envelope
	receipt  *Receipt
}

// NewEngine creates a lifecycle engine bound to one settlement adapter.
func NewEngine(adapter Adapter, nullifiers *NullifierSet, config EngineConfig) *Engine {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultEngineConfig().MaxAttempts
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = DefaultEngineConfig().BaseBackoff
	}
	if nullifiers == nil {
		nullifiers = NewNullifierSet(nil)
	}
	return &Engine{
		config:     config,
		log:        log,
		adapter:    adapter,
		nullifiers: nullifiers,
		tracked:    make(map[string]*trackedIntent),
	}
}

// Nullifiers exposes the engine's nullifier set.
func (e *Engine) Nullifiers() *NullifierSet { return e.nullifiers }

// Register starts tracking a draft intent.
func (e *Engine) Register(in *Intent) error {
	if in == nil || in.ID == "" {
		return siperr.InvalidInput.Errorf("intent must have an ID")
	}
	if in.State != StateDraft {
		return siperr.InvalidStateTransition.Errorf("can only register draft intents, got %s", in.State)
	}
	if in.Timestamp >= in.Expiry {
		return siperr.IntentExpired.Errorf("intent timestamp %d not before expiry %d", in.Timestamp, in.Expiry)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tracked[in.ID]; ok {
		return siperr.InvalidInput.Errorf("intent %s already registered", in.ID)
	}
	e.tracked[in.ID] = &trackedIntent{intent: in}
	e.log.Info("intent registered", zap.String("intent", in.ID))
	return nil
}

func (e *Engine) get(id string) (*trackedIntent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tracked[id]
	if !ok {
		return nil, siperr.InvalidInput.Errorf("unknown intent %s", id)
	}
	return t, nil
}

// Status returns the current state of an intent.
func (e *Engine) Status(id string) (State, error) {
	t, err := e.get(id)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.intent.State, nil
}

// transition applies the state machine with idempotent terminal no-ops.
func (e *Engine) transition(t *trackedIntent, to State) error {
	from := t.intent.State
	if from.Terminal() {
		// Duplicate events into a terminal state are no-ops.
		return nil
	}
	if !transitionAllowed(from, to) {
		return siperr.InvalidStateTransition.Errorf("intent %s: %s -> %s", t.intent.ID, from, to)
	}
	t.intent.State = to
	e.log.Info("intent transitioned",
		zap.String("intent", t.intent.ID),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	return nil
}

// Compose attaches a verified Funding proof, moving Draft -> Proposed.
func (e *Engine) Compose(id string, pub *proof.FundingPublic, fundingProof []byte) error {
	t, err := e.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.intent.State.Terminal() {
		return nil
	}
	if t.intent.State != StateDraft {
		return siperr.InvalidStateTransition.Errorf("compose requires draft, intent %s is %s", id, t.intent.State)
	}
	if res, err := proof.VerifyFunding(pub, fundingProof); res != proof.Valid {
		return err
	}
	return e.transition(t, StateProposed)
}

// Submit verifies the Validity proof, records the nullifier, and submits
// the deposit through the adapter, moving Proposed -> Funded. The proof is
// verified before the adapter ever sees the submission; a nullifier
// collision is rejected as NullifierReuse before any network I/O.
func (e *Engine) Submit(ctx context.Context, id string, pub *proof.ValidityPublic, envelope *Envelope) error {
	t, err := e.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.intent.State.Terminal() {
		return nil
	}
	if t.intent.State != StateProposed {
		return siperr.InvalidStateTransition.Errorf("submit requires proposed, intent %s is %s", id, t.intent.State)
	}
	if envelope == nil {
		return siperr.InvalidInput.Errorf("nil envelope")
	}

	if res, err := proof.VerifyValidity(pub, envelope.ValidityProof); res != proof.Valid {
		return err
	}
	if pub.Nullifier != t.intent.Nullifier {
		return siperr.InvalidInput.Errorf("envelope nullifier does not match intent")
	}
	if err := e.nullifiers.CheckAndInsert(t.intent.Nullifier); err != nil {
		return err
	}

	var receipt *Receipt
	submitErr := withRetry(ctx, e.log, "submit_deposit", e.config.MaxAttempts, e.config.BaseBackoff, func() error {
		var err error
		receipt, err = e.adapter.SubmitDeposit(ctx, id, envelope)
		return err
	})
	if submitErr != nil {
		// The nullifier stays recorded; re-submission needs a fresh nonce.
		e.log.Error("deposit submission failed", zap.String("intent", id), zap.Error(submitErr))
		return submitErr
	}
	t.envelope = envelope
	t.receipt = receipt
	return e.transition(t, StateFunded)
}

// OnDeposit handles the adapter reporting that the deposit landed on chain,
// moving Funded -> InFlight. blockTime is the adapter-reported block time.
func (e *Engine) OnDeposit(id string, blockTime uint64) error {
	t, err := e.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.intent.State.Terminal() {
		return nil
	}
	if blockTime > t.intent.Expiry {
		return e.transition(t, StateExpired)
	}
	return e.transition(t, StateInFlight)
}

// Fulfill verifies a solver's fulfillment envelope, moving InFlight ->
// Fulfilled. The Fulfillment proof must verify and the fulfillment time must
// not exceed the intent expiry.
func (e *Engine) Fulfill(id string, f *FulfillmentEnvelope) error {
	t, err := e.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.intent.State.Terminal() {
		return nil
	}
	if t.intent.State != StateInFlight {
		return siperr.InvalidStateTransition.Errorf("fulfill requires in-flight, intent %s is %s", id, t.intent.State)
	}
	if f == nil {
		return siperr.InvalidInput.Errorf("nil fulfillment envelope")
	}

	if e.config.Oracle == nil {
		return siperr.InvalidInput.Errorf("no oracle configured for fulfillment verification")
	}
	pub, err := e.fulfillmentPublic(t.intent, f)
	if err != nil {
		return err
	}
	if res, err := proof.VerifyFulfillment(pub, e.config.Oracle, f.FulfillmentProof); res != proof.Valid {
		return err
	}
	return e.transition(t, StateFulfilled)
}

// fulfillmentPublic reconstructs the Fulfillment public inputs an envelope
// claims, cross-checked against the tracked intent.
func (e *Engine) fulfillmentPublic(in *Intent, f *FulfillmentEnvelope) (*proof.FulfillmentPublic, error) {
	outputCommitment, err := curve.FromHex(f.OutputCommitment)
	if err != nil {
		return nil, siperr.InvalidInput.WrapMsg(err, "output commitment")
	}
	solverID, err := curve.FromHex(f.SolverID)
	if err != nil || len(solverID) != 32 {
		return nil, siperr.InvalidInput.Errorf("solver id must be 32 bytes")
	}
	pub := &proof.FulfillmentPublic{
		IntentHash:       in.Hash(),
		OutputCommitment: outputCommitment,
		RecipientStealth: in.RecipientStealth,
		MinOutput:        in.MinOutput,
		FulfillmentTime:  f.FulfillmentTime,
		Expiry:           in.Expiry,
		Chain:            in.Assets.ChainDst,
	}
	copy(pub.SolverID[:], solverID)
	return pub, nil
}

// Expire moves an intent past its deadline to Expired. blockTime is the
// adapter-reported block time; nothing happens while it is within expiry.
func (e *Engine) Expire(id string, blockTime uint64) error {
	t, err := e.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.intent.State.Terminal() {
		return nil
	}
	if blockTime <= t.intent.Expiry {
		return siperr.InvalidStateTransition.Errorf("intent %s not yet expired (block time %d, expiry %d)",
			id, blockTime, t.intent.Expiry)
	}
	return e.transition(t, StateExpired)
}

// OnRefund handles the adapter reporting a refund, moving Funded or
// InFlight -> Refunded.
func (e *Engine) OnRefund(id string) error {
	t, err := e.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.intent.State.Terminal() {
		return nil
	}
	return e.transition(t, StateRefunded)
}

// GetQuote fetches a quote through the adapter with transient-error retry
// and rejects quotes already past their deadline.
func (e *Engine) GetQuote(ctx context.Context, req *QuoteRequest) (*Quote, error) {
	if req == nil {
		return nil, siperr.InvalidInput.Errorf("nil quote request")
	}
	var quote *Quote
	err := withRetry(ctx, e.log, "get_quote", e.config.MaxAttempts, e.config.BaseBackoff, func() error {
		var err error
		quote, err = e.adapter.GetQuote(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !quote.Deadline.IsZero() && time.Now().After(quote.Deadline) {
		return nil, siperr.IntentExpired.Errorf("quote from %s expired at %s", quote.AdapterID, quote.Deadline)
	}

	// Adapters that do not price execution themselves get the engine's
	// fee plan for the deposit leg: one stealth transfer plus the
	// announcement recipients scan for.
	if quote.Fees == nil {
		profile := req.Profile
		if profile == "" {
			profile = chains.ProfileStandard
		}
		plan, planErr := chains.PlanFees(req.Assets.ChainSrc, profile, 1, true)
		if planErr != nil {
			e.log.Warn("fee planning failed", zap.String("chain", req.Assets.ChainSrc), zap.Error(planErr))
		} else {
			quote.Fees = plan
		}
	}
	return quote, nil
}

// PollStatus queries the adapter and applies any resulting transition.
func (e *Engine) PollStatus(ctx context.Context, id string) (*StatusReport, error) {
	if _, err := e.get(id); err != nil {
		return nil, err
	}
	var report *StatusReport
	err := withRetry(ctx, e.log, "poll_status", e.config.MaxAttempts, e.config.BaseBackoff, func() error {
		var err error
		report, err = e.adapter.PollStatus(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch report.Status {
	case StatusProcessing:
		_ = e.OnDeposit(id, report.BlockTime)
	case StatusRefunded:
		_ = e.OnRefund(id)
	}
	return report, nil
}
