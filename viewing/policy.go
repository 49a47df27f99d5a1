package viewing

import (
	"github.com/sip-protocol/sip-core/siperr"
)

// Purpose is a disclosure purpose. Purposes gate share issuance at the
// policy layer only: the holder of a reconstructed key can perform all
// viewer actions, so purpose-to-threshold mapping is access control, not
// cryptography.
type Purpose string

const (
	PurposeViewBalance        Purpose = "view-balance"
	PurposeViewTransactions   Purpose = "view-transactions"
	PurposeComplianceReport   Purpose = "compliance-report"
	PurposeFullDisclosure     Purpose = "full-disclosure"
	PurposeRealTimeMonitoring Purpose = "real-time-monitoring"
)

// DisclosurePolicy maps each disclosure purpose to the number of share
// holders that must cooperate.
type DisclosurePolicy map[Purpose]int

// DefaultDisclosurePolicy returns the graduated defaults: cheap read-only
// purposes need fewer holders than full disclosure.
func DefaultDisclosurePolicy() DisclosurePolicy {
	return DisclosurePolicy{
		PurposeViewBalance:        1,
		PurposeViewTransactions:   2,
		PurposeComplianceReport:   2,
		PurposeFullDisclosure:     3,
		PurposeRealTimeMonitoring: 3,
	}
}

// ThresholdFor returns the share threshold for a purpose.
func (p DisclosurePolicy) ThresholdFor(purpose Purpose) (int, error) {
	t, ok := p[purpose]
	if !ok {
		return 0, siperr.InvalidInput.Errorf("unknown disclosure purpose %q", purpose)
	}
	if t < 1 {
		return 0, siperr.InvalidInput.Errorf("purpose %q has invalid threshold %d", purpose, t)
	}
	return t, nil
}
