package signature

import (
	"crypto/rand"
	"encoding/hex"
)

// secretBytes is the entropy of a generated signing secret.
const secretBytes = 32

// SecretPrefix marks courier-generated signing secrets so operators can tell
// them apart from externally supplied ones.
const SecretPrefix = "whsec_"

// GenerateSecret returns a new signing secret: SecretPrefix followed by
// 32 random bytes in hex. Draws from crypto/rand and panics if the system
// random source is unreadable, since a predictable secret must never be
// handed out.
func GenerateSecret() string {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		panic("courier: read random source: " + err.Error())
	}
	return SecretPrefix + hex.EncodeToString(b)
}
