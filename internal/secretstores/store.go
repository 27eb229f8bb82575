// Package secretstores persists key payloads in cloud secret managers.
//
// Each adapter maps the three operations the lifecycle controller needs
// (create, update, get) onto one backend and reports where the payload
// landed as a Location.
package secretstores

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned by Get and Update when the location does
// not exist. Adapters wrap it, so test with errors.Is.
var ErrSecretNotFound = errors.New("secret not found")

// Location identifies a stored secret and, after a payload write, the
// version that write produced.
type Location struct {
	// ID is the store's stable identifier (ARN, resource name, URL).
	ID string
	// VersionID is set when the call wrote a new payload.
	VersionID string
	// Replayed is set when the store recognised the RequestToken of an
	// earlier write and kept that write's payload instead of the new one.
	Replayed bool
}

// WriteOptions carries the mutable metadata of a secret. Nil fields are
// left unchanged on update and omitted on create.
type WriteOptions struct {
	Description *string
	// KeyRef names the encryption key protecting the secret at rest.
	KeyRef *string
	// RequestToken makes payload writes idempotent where the store
	// supports it.
	RequestToken string
}

// SecretStore is the persistence contract of the lifecycle controller.
type SecretStore interface {
	// Name returns the configured store type.
	Name() string
	// Create stores payload under a new secret called name.
	Create(ctx context.Context, name string, payload []byte, opts WriteOptions) (Location, error)
	// Update changes the secret at location. A nil payload updates only
	// the metadata in opts and leaves the stored value untouched.
	Update(ctx context.Context, location string, payload []byte, opts WriteOptions) (Location, error)
	// Get returns the current payload.
	Get(ctx context.Context, location string) ([]byte, error)
	// Validate checks credentials and connectivity.
	Validate(ctx context.Context) error
}
