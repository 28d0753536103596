package endpoint_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/courier/endpoint"
	"github.com/xraph/courier/secrets"
	"github.com/xraph/courier/store/memory"
)

func ctx() context.Context { return context.Background() }

func validInput() endpoint.Input {
	return endpoint.Input{
		URL:        "https://example.com/webhook",
		EventTypes: []string{"invoice.*"},
	}
}

func TestCreateGeneratesSecret(t *testing.T) {
	svc := endpoint.NewService(memory.New(), nil, nil)

	ep, secret, err := svc.Create(ctx(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(secret, "whsec_") {
		t.Fatalf("expected whsec_ prefix, got %q", secret)
	}
	if len(secret) != len("whsec_")+64 {
		t.Fatalf("expected 64 hex chars after prefix, got %d", len(secret))
	}
	if !ep.Enabled {
		t.Fatal("new endpoints should be enabled")
	}

	// Without a cipher the stored secret is the plaintext.
	if ep.Secret != secret {
		t.Fatal("expected plaintext secret at rest without a cipher")
	}
}

func TestCreateUsesProvidedSecret(t *testing.T) {
	svc := endpoint.NewService(memory.New(), nil, nil)

	in := validInput()
	in.Secret = "whsec_custom"

	_, secret, err := svc.Create(ctx(), in)
	if err != nil {
		t.Fatal(err)
	}
	if secret != "whsec_custom" {
		t.Fatalf("got %q", secret)
	}
}

func TestCreateEncryptsSecretAtRest(t *testing.T) {
	key, err := secrets.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	cipher, err := secrets.NewAES(key)
	if err != nil {
		t.Fatal(err)
	}

	store := memory.New()
	svc := endpoint.NewService(store, cipher, nil)

	ep, secret, err := svc.Create(ctx(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	if ep.Secret == secret {
		t.Fatal("secret must not be stored in plaintext when a cipher is configured")
	}

	// The stored ciphertext decrypts back to the returned plaintext.
	plain, err := cipher.Decrypt(ctx(), ep.Secret)
	if err != nil {
		t.Fatal(err)
	}
	if plain != secret {
		t.Fatal("stored ciphertext does not decrypt to the returned secret")
	}
}

func TestCreateValidation(t *testing.T) {
	svc := endpoint.NewService(memory.New(), nil, nil)

	tests := []struct {
		name  string
		in    endpoint.Input
		field string
	}{
		{"invalid URL", endpoint.Input{URL: "not a url", EventTypes: []string{"*"}}, "url"},
		{"empty URL", endpoint.Input{EventTypes: []string{"*"}}, "url"},
		{"no event types", endpoint.Input{URL: "https://example.com"}, "event_types"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Create(ctx(), tt.in)
			var verr *endpoint.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestUpdateDoesNotTouchSecret(t *testing.T) {
	svc := endpoint.NewService(memory.New(), nil, nil)

	ep, secret, err := svc.Create(ctx(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.Update(ctx(), ep.ID, endpoint.Input{Description: "updated"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Description != "updated" {
		t.Fatalf("got %q", updated.Description)
	}
	if updated.Secret != secret {
		t.Fatal("Update must not change the signing secret")
	}
	if updated.URL != "https://example.com/webhook" {
		t.Fatal("unset fields must be preserved")
	}
}

func TestRotateSecret(t *testing.T) {
	store := memory.New()
	svc := endpoint.NewService(store, nil, nil)

	ep, oldSecret, err := svc.Create(ctx(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	newSecret, err := svc.RotateSecret(ctx(), ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if newSecret == oldSecret {
		t.Fatal("rotation must produce a new secret")
	}
	if !strings.HasPrefix(newSecret, "whsec_") {
		t.Fatalf("got %q", newSecret)
	}

	got, err := store.GetEndpoint(ctx(), ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Secret != newSecret {
		t.Fatal("store should hold the rotated secret")
	}
}

func TestRotateSecretEncrypted(t *testing.T) {
	key, _ := secrets.GenerateKey()
	cipher, err := secrets.NewAES(key)
	if err != nil {
		t.Fatal(err)
	}

	store := memory.New()
	svc := endpoint.NewService(store, cipher, nil)

	ep, _, err := svc.Create(ctx(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	newSecret, err := svc.RotateSecret(ctx(), ep.ID)
	if err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetEndpoint(ctx(), ep.ID)
	if got.Secret == newSecret {
		t.Fatal("rotated secret must be encrypted at rest")
	}
	plain, err := cipher.Decrypt(ctx(), got.Secret)
	if err != nil {
		t.Fatal(err)
	}
	if plain != newSecret {
		t.Fatal("stored ciphertext does not decrypt to the rotated secret")
	}
}

func TestSetEnabledAndList(t *testing.T) {
	svc := endpoint.NewService(memory.New(), nil, nil)

	ep, _, err := svc.Create(ctx(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.SetEnabled(ctx(), ep.ID, false); err != nil {
		t.Fatal(err)
	}

	enabled := true
	list, err := svc.List(ctx(), endpoint.ListOpts{Enabled: &enabled})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("expected 0 enabled endpoints, got %d", len(list))
	}
}

func TestDelete(t *testing.T) {
	svc := endpoint.NewService(memory.New(), nil, nil)

	ep, _, err := svc.Create(ctx(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx(), ep.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx(), ep.ID); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestSubscribed(t *testing.T) {
	ep := &endpoint.Endpoint{EventTypes: []string{"invoice.*", "user.created"}}

	if !ep.Subscribed("invoice.paid") {
		t.Fatal("expected match on invoice.*")
	}
	if !ep.Subscribed("user.created") {
		t.Fatal("expected exact match")
	}
	if ep.Subscribed("user.deleted") {
		t.Fatal("unexpected match")
	}
}
