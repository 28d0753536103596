package endpoint

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/secrets"
	"github.com/xraph/courier/signature"
)

// Service provides endpoint management operations.
//
// When a secret cipher is configured, signing secrets are encrypted before
// they reach the store and the plaintext is returned to the caller exactly
// once, on create or rotate. Without a cipher, secrets are stored as-is.
type Service struct {
	store  Store
	cipher secrets.Cipher
	logger *slog.Logger
}

// NewService creates a new endpoint service. cipher may be nil for
// plaintext-secret deployments.
func NewService(store Store, cipher secrets.Cipher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		cipher: cipher,
		logger: logger,
	}
}

// Create registers a new webhook endpoint. The returned secret is the
// plaintext signing secret; when encryption is configured this is the only
// time it is available.
func (svc *Service) Create(ctx context.Context, in Input) (*Endpoint, string, error) {
	if _, err := url.ParseRequestURI(in.URL); err != nil {
		return nil, "", &ValidationError{Field: "url", Message: "invalid URL"}
	}

	if len(in.EventTypes) == 0 {
		return nil, "", &ValidationError{Field: "event_types", Message: "at least one event type pattern required"}
	}

	secret := in.Secret
	if secret == "" {
		secret = signature.GenerateSecret()
	}

	stored, err := svc.sealSecret(ctx, secret)
	if err != nil {
		return nil, "", err
	}

	ep := &Endpoint{
		Entity:      entity.New(),
		ID:          id.NewEndpointID(),
		URL:         in.URL,
		Description: in.Description,
		Secret:      stored,
		EventTypes:  in.EventTypes,
		Headers:     in.Headers,
		Enabled:     true,
		RateLimit:   in.RateLimit,
		Metadata:    in.Metadata,
	}

	if err := svc.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, "", err
	}

	return ep, secret, nil
}

// Get returns an endpoint by ID.
func (svc *Service) Get(ctx context.Context, epID id.ID) (*Endpoint, error) {
	return svc.store.GetEndpoint(ctx, epID)
}

// Update modifies an existing endpoint. The signing secret is not updatable
// here; use RotateSecret.
func (svc *Service) Update(ctx context.Context, epID id.ID, in Input) (*Endpoint, error) {
	ep, err := svc.store.GetEndpoint(ctx, epID)
	if err != nil {
		return nil, err
	}

	if in.URL != "" {
		if _, err := url.ParseRequestURI(in.URL); err != nil {
			return nil, &ValidationError{Field: "url", Message: "invalid URL"}
		}
		ep.URL = in.URL
	}
	if in.Description != "" {
		ep.Description = in.Description
	}
	if len(in.EventTypes) > 0 {
		ep.EventTypes = in.EventTypes
	}
	if in.Headers != nil {
		ep.Headers = in.Headers
	}
	if in.RateLimit >= 0 {
		ep.RateLimit = in.RateLimit
	}
	if in.Metadata != nil {
		ep.Metadata = in.Metadata
	}
	ep.Touch()

	if err := svc.store.UpdateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	return ep, nil
}

// Delete removes an endpoint.
func (svc *Service) Delete(ctx context.Context, epID id.ID) error {
	return svc.store.DeleteEndpoint(ctx, epID)
}

// List returns registered endpoints.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Endpoint, error) {
	return svc.store.ListEndpoints(ctx, opts)
}

// SetEnabled enables or disables an endpoint.
func (svc *Service) SetEnabled(ctx context.Context, epID id.ID, enabled bool) error {
	return svc.store.SetEnabled(ctx, epID, enabled)
}

// RotateSecret generates a new signing secret for an endpoint and returns
// the plaintext. Deliveries signed with the old secret are not re-signed.
func (svc *Service) RotateSecret(ctx context.Context, epID id.ID) (string, error) {
	ep, err := svc.store.GetEndpoint(ctx, epID)
	if err != nil {
		return "", err
	}

	newSecret := signature.GenerateSecret()

	stored, err := svc.sealSecret(ctx, newSecret)
	if err != nil {
		return "", err
	}

	ep.Secret = stored
	ep.Touch()
	if err := svc.store.UpdateEndpoint(ctx, ep); err != nil {
		return "", err
	}

	return newSecret, nil
}

// sealSecret encrypts a plaintext secret when a cipher is configured.
func (svc *Service) sealSecret(ctx context.Context, plaintext string) (string, error) {
	if svc.cipher == nil {
		return plaintext, nil
	}
	return svc.cipher.Encrypt(ctx, plaintext)
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "endpoint validation: " + e.Field + ": " + e.Message
}
