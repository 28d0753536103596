// Package secrets provides the decryption contract for signing secrets stored
// as ciphertext, plus a bounded TTL cache that amortizes decryption cost
// across delivery retries.
//
// KMS-backed or asymmetric decryption of a signing secret is orders of
// magnitude more expensive than the HMAC sign it feeds, and the same secret
// is re-read on every retry of every delivery to an endpoint. The Cache keeps
// decrypted plaintext in memory for a short TTL so repeated deliveries to the
// same endpoint decrypt once.
//
// Deployments that store secrets in plaintext (no encryption key configured)
// simply run without a Decrypter; the delivery executor then uses the stored
// secret as-is and never touches the cache.
package secrets

import "context"

// Decrypter decrypts a stored secret ciphertext into its plaintext.
// Implementations return an error on key-configuration problems, which the
// delivery executor treats as a retryable failure.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// Encrypter encrypts a plaintext secret for storage at rest.
type Encrypter interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
}

// Cipher combines encryption and decryption of stored secrets.
type Cipher interface {
	Encrypter
	Decrypter
}

// DecrypterFunc adapts a function to the Decrypter interface.
type DecrypterFunc func(ctx context.Context, ciphertext string) (string, error)

// Decrypt calls f.
func (f DecrypterFunc) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return f(ctx, ciphertext)
}
