package curve

import (
	"encoding/hex"

	"github.com/sip-protocol/sip-core/siperr"
)

// ToHex encodes bytes as a lowercase hex string with 0x prefix.
func ToHex(data []byte) string {
	return "0x" + hex.EncodeToString(data)
}

// FromHex decodes a hex string with or without 0x prefix.
func FromHex(s string) ([]byte, error) {
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, siperr.InvalidInput.WrapMsg(err, "hex decode")
	}
	return b, nil
}
