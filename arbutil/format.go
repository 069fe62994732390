// Copyright 2023-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package arbutil

import (
	"encoding/hex"
	"unicode/utf8"
)

// ToStringOrHex renders input as text when it is valid UTF-8 and as hex otherwise.
func ToStringOrHex(input []byte) string {
	if input == nil {
		return ""
	}
	if utf8.Valid(input) {
		return string(input)
	}
	return hex.EncodeToString(input)
}

// TruncatedStringOrHex is ToStringOrHex limited to the first maxLen bytes of input,
// used when logging frames that may be arbitrarily large.
func TruncatedStringOrHex(input []byte, maxLen int) string {
	if maxLen >= 0 && len(input) > maxLen {
		return ToStringOrHex(input[:maxLen]) + "..."
	}
	return ToStringOrHex(input)
}
