package secretstores

import (
	"context"
	"time"
)

// timeoutStore bounds each call to the wrapped store.
type timeoutStore struct {
	SecretStore
	timeout time.Duration
}

// WithTimeout returns store with every call limited to timeout. A
// non-positive timeout returns store unchanged.
func WithTimeout(store SecretStore, timeout time.Duration) SecretStore {
	if timeout <= 0 {
		return store
	}
	return &timeoutStore{SecretStore: store, timeout: timeout}
}

func (s *timeoutStore) Create(ctx context.Context, name string, payload []byte, opts WriteOptions) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.SecretStore.Create(ctx, name, payload, opts)
}

func (s *timeoutStore) Update(ctx context.Context, location string, payload []byte, opts WriteOptions) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.SecretStore.Update(ctx, location, payload, opts)
}

func (s *timeoutStore) Get(ctx context.Context, location string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.SecretStore.Get(ctx, location)
}

func (s *timeoutStore) Validate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.SecretStore.Validate(ctx)
}
