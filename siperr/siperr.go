// Package siperr defines the stable SIP error taxonomy.
//
// Every protocol-visible failure carries a numeric code from the wire
// taxonomy, a symbolic name, and a retry hint. Codes identify the failure
// class (0100 input, 0200 addressing, 0300 commitments, 0400 viewing keys,
// 0500 privacy levels, 0600 proofs, 0700 lifecycle, 0800 attestations);
// names identify the specific condition within a class.
package siperr

import (
	"errors"
	"fmt"
	"time"
)

// RetryHint tells callers whether retrying can help and how.
type RetryHint uint8

const (
	// RetryNone - the operation will never succeed with these inputs.
	RetryNone RetryHint = iota
	// RetryImmediate - transient, retry right away.
	RetryImmediate
	// RetryBackoff - transient, retry after the suggested delay.
	RetryBackoff
	// RetryUserAction - recoverable, but only after the user changes something.
	RetryUserAction
)

// String returns a human-readable name for the retry hint.
func (h RetryHint) String() string {
	switch h {
	case RetryNone:
		return "none"
	case RetryImmediate:
		return "immediate"
	case RetryBackoff:
		return "backoff"
	case RetryUserAction:
		return "user-action"
	default:
		return "unknown"
	}
}

// Error is a typed SIP protocol error.
type Error struct {
	// Code is the stable taxonomy class (e.g. 0200).
	Code uint16
	// Name is the stable symbolic name (e.g. "InvalidMetaAddress").
	Name string
	// Hint tells the caller whether retrying can help.
	Hint RetryHint
	// Backoff is the suggested delay when Hint is RetryBackoff.
	Backoff time.Duration

	msg   string
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := fmt.Sprintf("sip %04d %s", e.Code, e.Name)
	if e.msg != "" {
		s += ": " + e.msg
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same Name, so that
// errors.Is(err, siperr.NullifierReuse) works on derived instances.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Name == e.Name
}

// Message returns the human message attached to the error.
func (e *Error) Message() string { return e.msg }

// Errorf returns a copy of the template error with a formatted message.
func (e *Error) Errorf(format string, args ...any) *Error {
	dup := *e
	dup.msg = fmt.Sprintf(format, args...)
	return &dup
}

// Wrap returns a copy of the template error with a cause attached.
func (e *Error) Wrap(err error) *Error {
	dup := *e
	dup.cause = err
	return &dup
}

// WrapMsg attaches both a message and a cause.
func (e *Error) WrapMsg(err error, format string, args ...any) *Error {
	dup := *e
	dup.msg = fmt.Sprintf(format, args...)
	dup.cause = err
	return &dup
}

func def(code uint16, name string, hint RetryHint) *Error {
	return &Error{Code: code, Name: name, Hint: hint}
}

// Taxonomy templates. Use errors.Is against these, and Errorf/Wrap to derive
// concrete instances.
var (
	InvalidInput = def(100, "InvalidInput", RetryNone)

	InvalidMetaAddress    = def(200, "InvalidMetaAddress", RetryNone)
	InvalidStealthAddress = def(200, "InvalidStealthAddress", RetryNone)
	DegenerateKey         = def(200, "DegenerateKey", RetryImmediate)
	ChainMismatch         = def(200, "ChainMismatch", RetryNone)
	InvalidScalar         = def(200, "InvalidScalar", RetryNone)
	InvalidPoint          = def(200, "InvalidPoint", RetryNone)

	InvalidCommitment = def(300, "InvalidCommitment", RetryNone)
	RangeViolation    = def(300, "RangeViolation", RetryUserAction)

	ViewingKeyDecryptFailed = def(400, "ViewingKeyDecryptFailed", RetryNone)
	InvalidShare            = def(400, "InvalidShare", RetryNone)
	BelowThreshold          = def(400, "BelowThreshold", RetryUserAction)

	InvalidPrivacyLevel = def(500, "InvalidPrivacyLevel", RetryNone)

	ProofVerificationFailed = def(600, "ProofVerificationFailed", RetryNone)
	MalformedProof          = def(600, "MalformedProof", RetryNone)

	NullifierReuse         = def(700, "NullifierReuse", RetryUserAction)
	IntentExpired          = def(700, "IntentExpired", RetryNone)
	InvalidStateTransition = def(700, "InvalidStateTransition", RetryNone)

	OracleAttestationInvalid = def(800, "OracleAttestationInvalid", RetryNone)
	SignatureMalleable       = def(800, "SignatureMalleable", RetryNone)
)

// CodeOf extracts the taxonomy code from err, or 0 if err is not a SIP error.
func CodeOf(err error) uint16 {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// HintOf extracts the retry hint from err. Non-SIP errors default to
// RetryNone.
func HintOf(err error) RetryHint {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return RetryNone
}
