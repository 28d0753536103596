package signature

import "crypto/hmac"

// Verify reports whether sig is the valid signature for payload at the given
// timestamp. The comparison is constant time, so it leaks nothing about how
// much of a forged signature matched.
func Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	want := Sign(payload, secret, timestamp)
	return hmac.Equal([]byte(sig), []byte(want))
}
