// Package intent binds the cryptographic layers together: it holds the
// canonical intent state machine, the append-only nullifier set, and the
// settlement-adapter contract. One engine serves many concurrent intents;
// operations on a single intent are serialized, operations on distinct
// intents are independent.
package intent

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sip-protocol/sip-core/chains"
	"github.com/sip-protocol/sip-core/siperr"
	"github.com/sip-protocol/sip-core/viewing"
)

// PrivacyLevel represents privacy levels for SIP transactions.
type PrivacyLevel string

const (
	// PrivacyTransparent - No privacy, all data public
	PrivacyTransparent PrivacyLevel = "transparent"
	// PrivacyShielded - Full privacy, sender/amount/recipient hidden
	PrivacyShielded PrivacyLevel = "shielded"
	// PrivacyCompliant - Privacy with viewing key for auditors
	PrivacyCompliant PrivacyLevel = "compliant"
)

// ParsePrivacyLevel normalizes a privacy level name. "off" is accepted as a
// legacy alias for transparent.
func ParsePrivacyLevel(s string) (PrivacyLevel, error) {
	switch strings.ToLower(s) {
	case "transparent", "off":
		return PrivacyTransparent, nil
	case "shielded":
		return PrivacyShielded, nil
	case "compliant":
		return PrivacyCompliant, nil
	}
	return "", siperr.InvalidPrivacyLevel.Errorf("unknown privacy level %q", s)
}

// ShouldEncrypt determines if payload encryption applies at a privacy level.
func ShouldEncrypt(level PrivacyLevel) bool {
	return level == PrivacyShielded || level == PrivacyCompliant
}

// ShouldIncludeViewingKey determines if viewing-key disclosure targets are
// attached at a privacy level.
func ShouldIncludeViewingKey(level PrivacyLevel) bool {
	return level == PrivacyCompliant
}

// AssetPair names the conversion an intent requests.
type AssetPair struct {
	ChainSrc chains.Tag `json:"chain_src"`
	ChainDst chains.Tag `json:"chain_dst"`
	AssetSrc string     `json:"asset_src"`
	AssetDst string     `json:"asset_dst"`
}

// Intent is a declarative transfer specification: convert AssetSrc on
// ChainSrc into AssetDst on ChainDst, deliver to the recipient's stealth
// address, before Expiry.
type Intent struct {
	// ID is the sip- prefixed random identifier.
	ID string
	// SenderStealth is the sender's own stealth address on the source chain.
	SenderStealth string
	// RecipientMeta is the recipient's encoded meta-address.
	RecipientMeta string
	// RecipientStealth is the derived one-time delivery address bytes.
	RecipientStealth []byte
	// InputCommitment and OutputCommitment are compressed Pedersen points.
	InputCommitment  []byte
	OutputCommitment []byte
	Assets           AssetPair
	MinOutput        uint64
	Nullifier        [32]byte
	Timestamp        uint64
	Expiry           uint64
	PrivacyLevel     PrivacyLevel
	State            State
}

// NewIntentID generates a unique sip- prefixed intent identifier
// (128-bit random, globally unique with negligible collision probability).
func NewIntentID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate intent ID: %w", err)
	}
	return "sip-" + hex.EncodeToString(bytes), nil
}

// Hash computes the canonical 32-byte intent hash the three proofs bind to.
func (i *Intent) Hash() [32]byte {
	h := sha256.New()
	h.Write([]byte(i.ID))
	h.Write([]byte(i.Assets.ChainSrc))
	h.Write([]byte(i.Assets.ChainDst))
	h.Write([]byte(i.Assets.AssetSrc))
	h.Write([]byte(i.Assets.AssetDst))
	h.Write(i.InputCommitment)
	h.Write(i.OutputCommitment)
	h.Write([]byte(i.RecipientMeta))
	h.Write(i.RecipientStealth)
	var u [8]byte
	binary.BigEndian.PutUint64(u[:], i.MinOutput)
	h.Write(u[:])
	binary.BigEndian.PutUint64(u[:], i.Timestamp)
	h.Write(u[:])
	binary.BigEndian.PutUint64(u[:], i.Expiry)
	h.Write(u[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Envelope is what crosses the trust boundary into a settlement adapter.
// The adapter sees commitments and thresholds, never plaintext amounts.
type Envelope struct {
	IntentID         string           `json:"intent_id"` // hex intent hash
	ChainSrc         chains.Tag       `json:"chain_src"`
	ChainDst         chains.Tag       `json:"chain_dst"`
	AssetSrc         string           `json:"asset_src"`
	AssetDst         string           `json:"asset_dst"`
	InputCommitment  string           `json:"input_commitment"`
	OutputCommitment string           `json:"output_commitment"`
	MinOutput        uint64           `json:"min_output"`
	RecipientStealth string           `json:"recipient_stealth"`
	EphemeralPub     string           `json:"ephemeral_pub"`
	ViewTag          uint8            `json:"view_tag"`
	ViewerPayload    *viewing.Payload `json:"viewer_payload,omitempty"`
	Nullifier        string           `json:"nullifier"`
	Expiry           uint64           `json:"expiry"`
	FundingProof     []byte           `json:"funding_proof"`
	ValidityProof    []byte           `json:"validity_proof"`
	ViewingKeyHashes []string         `json:"viewing_key_hashes,omitempty"`
}

// FulfillmentEnvelope is the solver's submission reporting delivery.
type FulfillmentEnvelope struct {
	IntentID         string `json:"intent_id"`
	OutputCommitment string `json:"output_commitment"`
	SolverID         string `json:"solver_id"`
	FulfillmentTime  uint64 `json:"fulfillment_time"`
	FulfillmentProof []byte `json:"fulfillment_proof"`

	// Oracle attestation fields.
	AttTxHash    string `json:"att_tx_hash"`
	AttBlock     uint64 `json:"att_block"`
	AttRecipient string `json:"att_recipient"`
	AttAmount    uint64 `json:"att_amount"`
}
