// Package signature implements the courier webhook signing scheme:
// HMAC-SHA256 over "{timestamp}.{payload}", rendered as lowercase hex.
//
// The signed content and its rendering are a wire contract shared with every
// receiver. Changing either breaks verification on the other side, so both
// are frozen.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Sign computes the signature a receiver should expect for payload at the
// given Unix timestamp. Identical inputs always produce identical output.
func Sign(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
