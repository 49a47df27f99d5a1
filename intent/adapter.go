package intent

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/sip-protocol/sip-core/chains"
	"github.com/sip-protocol/sip-core/siperr"
)

// QuoteRequest asks an adapter to price a conversion. The adapter sees the
// input commitment and the minimum output threshold, never the plaintext
// amount.
type QuoteRequest struct {
	Assets          AssetPair
	InputCommitment []byte
	MinOutput       uint64
	Deadline        time.Time
	Profile         chains.Profile
}

// Quote is an adapter's priced offer. Quotes expire at Deadline; the core
// rejects stale quotes before submission. Fees is the execution envelope
// for the deposit; adapters may fill it themselves, otherwise the engine
// plans it from the chain registry.
type Quote struct {
	AdapterID   string
	Assets      AssetPair
	MinOutput   uint64
	FeeEstimate uint64
	Route       string
	Deadline    time.Time
	Fees        *chains.FeePlan
}

// Receipt acknowledges a deposit submission.
type Receipt struct {
	IntentID    string
	AdapterRef  string
	SubmittedAt time.Time
}

// Status is an adapter-reported settlement phase.
type Status uint8

const (
	StatusPendingDeposit Status = iota
	StatusProcessing
	StatusSettled
	StatusRefunded
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPendingDeposit:
		return "pending-deposit"
	case StatusProcessing:
		return "processing"
	case StatusSettled:
		return "settled"
	case StatusRefunded:
		return "refunded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StatusReport carries a status plus its chain evidence. BlockTime is the
// adapter's reported block time; expiry comparisons use it, not local time.
type StatusReport struct {
	Status    Status
	TxHash    string
	BlockTime uint64
}

// AdapterEvent is one entry in an adapter's event stream.
type AdapterEvent struct {
	IntentID string
	Report   StatusReport
}

// EventFilter restricts a subscription.
type EventFilter struct {
	IntentIDs []string
	Statuses  []Status
}

// Adapter is the settlement-adapter contract. Adapters are opaque to the
// core beyond this interface; routing to NEAR Intents, a local batch-auction
// solver, or any future backend is an implementation choice. All methods may
// block on network I/O and honor context cancellation.
type Adapter interface {
	GetQuote(ctx context.Context, req *QuoteRequest) (*Quote, error)
	SubmitDeposit(ctx context.Context, intentID string, envelope *Envelope) (*Receipt, error)
	PollStatus(ctx context.Context, intentID string) (*StatusReport, error)
	SubscribeEvents(ctx context.Context, filter EventFilter) (<-chan AdapterEvent, error)
}

// TransientError marks adapter failures worth retrying (network timeouts,
// rate limits). Anything else surfaces immediately.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

// Unwrap returns the wrapped error.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps an error as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether an error is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// withRetry runs fn with exponential backoff and jitter on transient
// failures, up to maxAttempts. Non-transient failures and context
// cancellation surface immediately.
func withRetry(ctx context.Context, log *zap.Logger, op string, maxAttempts int, base time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := base
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		// Full jitter on the exponential window.
		sleep := time.Duration(rand.Int63n(int64(backoff) + 1))
		log.Warn("adapter call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", sleep),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return siperr.InvalidInput.WrapMsg(ctx.Err(), "%s cancelled", op)
		case <-time.After(sleep):
		}
		backoff *= 2
	}
	return err
}
