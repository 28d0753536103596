package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/xraph/courier/signature"
)

func TestSignKnownVector(t *testing.T) {
	payload := []byte(`{"event":"test"}`)
	secret := "whsec_testsecret123"
	timestamp := int64(1700000000)

	got := signature.Sign(payload, secret, timestamp)

	// Compute expected HMAC-SHA256 independently.
	content := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	expected := hex.EncodeToString(mac.Sum(nil))

	if got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	payload := []byte(`{"invoice_id":"inv_01h2x","amount":9900}`)
	secret := "whsec_puresecret"
	timestamp := int64(1700000001)

	first := signature.Sign(payload, secret, timestamp)
	second := signature.Sign(payload, secret, timestamp)

	if first != second {
		t.Errorf("identical inputs produced different signatures: %q vs %q", first, second)
	}

	shifted := signature.Sign(payload, secret, timestamp+1)
	if shifted == first {
		t.Error("changing the timestamp by 1 should change the signature")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"invoice_id":"inv_01h2x","amount":9900}`)
	secret := "whsec_roundtripsecret"
	timestamp := int64(1700000002)

	sig := signature.Sign(payload, secret, timestamp)
	if !signature.Verify(payload, secret, timestamp, sig) {
		t.Error("Verify() returned false for valid signature")
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	payload := []byte(`{"original":true}`)
	secret := "whsec_tampersecret"
	timestamp := int64(1700000003)

	sig := signature.Sign(payload, secret, timestamp)

	tampered := []byte(`{"original":false}`)
	if signature.Verify(tampered, secret, timestamp, sig) {
		t.Error("Verify() returned true for tampered payload")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	payload := []byte(`{"data":"value"}`)
	secret := "whsec_correct"
	timestamp := int64(1700000004)

	sig := signature.Sign(payload, secret, timestamp)

	if signature.Verify(payload, "whsec_wrong", timestamp, sig) {
		t.Error("Verify() returned true for wrong secret")
	}
}

func TestVerifyWrongTimestamp(t *testing.T) {
	payload := []byte(`{"data":"value"}`)
	secret := "whsec_timestampsecret"
	timestamp := int64(1700000005)

	sig := signature.Sign(payload, secret, timestamp)

	if signature.Verify(payload, secret, timestamp+1, sig) {
		t.Error("Verify() returned true for wrong timestamp")
	}
}

func TestSignEmptySecret(t *testing.T) {
	// Empty secrets are permitted; callers own secret validity.
	sig := signature.Sign([]byte("test"), "", 123)

	// 64 lowercase hex chars (SHA256 = 32 bytes).
	if len(sig) != 64 {
		t.Errorf("expected signature length 64, got %d", len(sig))
	}
	for _, c := range sig {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Errorf("signature contains non-lowercase-hex character %q", c)
			break
		}
	}
}
