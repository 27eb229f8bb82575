package secretstores

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MemoryStore keeps versioned secrets in process memory. It backs local
// runs and tests; locations have the form memory://<name>.
type MemoryStore struct {
	mu      sync.Mutex
	secrets map[string]*memorySecret
	tokens  map[string]Location
	fail    map[string]error
}

type memorySecret struct {
	versions    [][]byte
	description *string
	keyRef      *string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		secrets: make(map[string]*memorySecret),
		tokens:  make(map[string]Location),
		fail:    make(map[string]error),
	}
}

// FailOn makes every later call of op ("create", "update", "get") return
// err. A nil err clears the failure.
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Name returns the store type
func (s *MemoryStore) Name() string {
	return "memory"
}

// Create stores the first version of name.
func (s *MemoryStore) Create(_ context.Context, name string, payload []byte, opts WriteOptions) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["create"]; err != nil {
		return Location{}, err
	}
	if loc, ok := s.tokens[opts.RequestToken]; ok && opts.RequestToken != "" {
		loc.Replayed = true
		return loc, nil
	}

	location := "memory://" + name
	if _, exists := s.secrets[location]; exists {
		return Location{}, fmt.Errorf("secret %s already exists", name)
	}
	s.secrets[location] = &memorySecret{
		versions:    [][]byte{clone(payload)},
		description: opts.Description,
		keyRef:      opts.KeyRef,
	}
	return s.remember(opts.RequestToken, Location{ID: location, VersionID: "1"}), nil
}

// Update appends a version when payload is non-nil and applies non-nil
// metadata.
func (s *MemoryStore) Update(_ context.Context, location string, payload []byte, opts WriteOptions) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["update"]; err != nil {
		return Location{}, err
	}
	secret, ok := s.secrets[location]
	if !ok {
		return Location{}, fmt.Errorf("%s: %w", location, ErrSecretNotFound)
	}
	if payload != nil {
		if loc, ok := s.tokens[opts.RequestToken]; ok && opts.RequestToken != "" {
			loc.Replayed = true
			return loc, nil
		}
	}

	if opts.Description != nil {
		secret.description = opts.Description
	}
	if opts.KeyRef != nil {
		secret.keyRef = opts.KeyRef
	}
	if payload == nil {
		return Location{ID: location}, nil
	}
	secret.versions = append(secret.versions, clone(payload))
	loc := Location{ID: location, VersionID: strconv.Itoa(len(secret.versions))}
	return s.remember(opts.RequestToken, loc), nil
}

// Get returns the latest version.
func (s *MemoryStore) Get(_ context.Context, location string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["get"]; err != nil {
		return nil, err
	}
	secret, ok := s.secrets[location]
	if !ok {
		return nil, fmt.Errorf("%s: %w", location, ErrSecretNotFound)
	}
	return clone(secret.versions[len(secret.versions)-1]), nil
}

// Validate always succeeds.
func (s *MemoryStore) Validate(context.Context) error {
	return nil
}

// Versions reports how many payloads were written to location.
func (s *MemoryStore) Versions(location string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if secret, ok := s.secrets[location]; ok {
		return len(secret.versions)
	}
	return 0
}

// Metadata returns the description and key reference of location.
func (s *MemoryStore) Metadata(location string) (description, keyRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[location]
	if !ok {
		return "", ""
	}
	if secret.description != nil {
		description = *secret.description
	}
	if secret.keyRef != nil {
		keyRef = *secret.keyRef
	}
	return description, keyRef
}

func (s *MemoryStore) remember(token string, loc Location) Location {
	if token != "" {
		s.tokens[token] = loc
	}
	return loc
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
