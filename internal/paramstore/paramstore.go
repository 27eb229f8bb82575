// Package paramstore deletes parameters left behind by the previous
// storage scheme, where key material lived in a parameter store.
package paramstore

import (
	"context"
	"errors"
	"time"
)

// ErrParameterNotFound is returned by Delete when the parameter does not
// exist. Callers treat it as a completed cleanup.
var ErrParameterNotFound = errors.New("parameter not found")

// Store is the legacy parameter store.
type Store interface {
	Delete(ctx context.Context, name string) error
}

// Noop never finds a parameter. It is used when cleanup is disabled.
type Noop struct{}

// Delete reports ErrParameterNotFound.
func (Noop) Delete(context.Context, string) error {
	return ErrParameterNotFound
}

type timeoutStore struct {
	Store
	timeout time.Duration
}

// WithTimeout returns store with every Delete limited to timeout. A
// non-positive timeout returns store unchanged.
func WithTimeout(store Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return store
	}
	return &timeoutStore{Store: store, timeout: timeout}
}

func (s *timeoutStore) Delete(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.Store.Delete(ctx, name)
}
