package secrets_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/courier/secrets"
)

func TestAESRoundTrip(t *testing.T) {
	key, err := secrets.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	cipher, err := secrets.NewAES(key)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	plaintext := "whsec_1234567890abcdef"

	ct, err := cipher.Encrypt(ctx, plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if ct == plaintext {
		t.Error("ciphertext equals plaintext")
	}

	got, err := cipher.Decrypt(ctx, ct)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != plaintext {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestAESEncryptNotDeterministic(t *testing.T) {
	key, _ := secrets.GenerateKey()
	cipher, err := secrets.NewAES(key)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	first, _ := cipher.Encrypt(ctx, "same input")
	second, _ := cipher.Encrypt(ctx, "same input")

	if first == second {
		t.Error("two encryptions of the same plaintext produced identical ciphertexts (nonce reuse?)")
	}
}

func TestAESInvalidKeySize(t *testing.T) {
	if _, err := secrets.NewAES([]byte("short")); !errors.Is(err, secrets.ErrInvalidKeySize) {
		t.Errorf("expected ErrInvalidKeySize, got %v", err)
	}
}

func TestAESMalformedCiphertext(t *testing.T) {
	key, _ := secrets.GenerateKey()
	cipher, err := secrets.NewAES(key)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	if _, err := cipher.Decrypt(ctx, "not base64 !!!"); !errors.Is(err, secrets.ErrMalformedCiphertext) {
		t.Errorf("expected ErrMalformedCiphertext for bad base64, got %v", err)
	}

	if _, err := cipher.Decrypt(ctx, "c2hvcnQ="); !errors.Is(err, secrets.ErrMalformedCiphertext) {
		t.Errorf("expected ErrMalformedCiphertext for short input, got %v", err)
	}
}

func TestAESWrongKey(t *testing.T) {
	keyA, _ := secrets.GenerateKey()
	keyB, _ := secrets.GenerateKey()

	cipherA, _ := secrets.NewAES(keyA)
	cipherB, _ := secrets.NewAES(keyB)

	ctx := context.Background()
	ct, err := cipherA.Encrypt(ctx, "secret value")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cipherB.Decrypt(ctx, ct); err == nil {
		t.Error("decryption with the wrong key should fail")
	}
}
