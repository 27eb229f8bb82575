package secretstores

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	pserrors "github.com/systmms/pgpsecret/internal/errors"
	"github.com/systmms/pgpsecret/internal/logging"
)

// Annotation keys used for metadata on stores without native fields.
const (
	annotationDescription = "description"
	annotationKeyRef      = "key-encryption-ref"
)

// GCPSecretManagerClientAPI defines the GCP Secret Manager operations used by
// the adapter. *secretmanager.Client satisfies it.
type GCPSecretManagerClientAPI interface {
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	GetSecret(ctx context.Context, req *secretmanagerpb.GetSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	UpdateSecret(ctx context.Context, req *secretmanagerpb.UpdateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error
}

// GCPSecretManagerStore stores payloads as secret versions. Locations are
// resource names of the form projects/<project>/secrets/<name>.
//
// Secret Manager has no description field and fixes the CMEK key at
// creation, so Description and later KeyRef changes are kept as
// annotations.
type GCPSecretManagerStore struct {
	client    GCPSecretManagerClientAPI
	projectID string
	logger    *logging.Logger
}

// GCPOption is a functional option for configuring the GCP store
type GCPOption func(*GCPSecretManagerStore)

// WithGCPClient sets a custom client (for testing)
func WithGCPClient(client GCPSecretManagerClientAPI) GCPOption {
	return func(s *GCPSecretManagerStore) {
		s.client = client
	}
}

// WithGCPLogger sets the logger.
func WithGCPLogger(logger *logging.Logger) GCPOption {
	return func(s *GCPSecretManagerStore) {
		s.logger = logger
	}
}

// NewGCPSecretManagerStore creates the adapter. project_id falls back to
// GOOGLE_CLOUD_PROJECT.
func NewGCPSecretManagerStore(ctx context.Context, configMap map[string]interface{}, opts ...GCPOption) (*GCPSecretManagerStore, error) {
	s := &GCPSecretManagerStore{logger: logging.Discard()}
	if projectID, ok := configMap["project_id"].(string); ok {
		s.projectID = projectID
	}
	if s.projectID == "" {
		s.projectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if s.projectID == "" {
		return nil, pserrors.ConfigError{
			Field:      "secretStore.project_id",
			Message:    "project_id is required for GCP Secret Manager",
			Suggestion: "Set project_id in config or GOOGLE_CLOUD_PROJECT environment variable",
		}
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		var clientOptions []option.ClientOption
		if keyPath, ok := configMap["credentials_file"].(string); ok && keyPath != "" {
			clientOptions = append(clientOptions, option.WithCredentialsFile(keyPath))
		}
		if endpoint, ok := configMap["endpoint"].(string); ok && endpoint != "" {
			clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
		}
		if noAuth, ok := configMap["without_authentication"].(bool); ok && noAuth {
			clientOptions = append(clientOptions, option.WithoutAuthentication())
		}
		if account, ok := configMap["impersonate_service_account"].(string); ok && account != "" {
			ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
				TargetPrincipal: account,
				Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create impersonated credentials: %w", err)
			}
			clientOptions = append(clientOptions, option.WithTokenSource(ts))
		}
		client, err := secretmanager.NewClient(ctx, clientOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
		}
		s.client = client
	}

	return s, nil
}

// Name returns the store type
func (s *GCPSecretManagerStore) Name() string {
	return "gcp-secretmanager"
}

// Create creates the secret with automatic replication, encrypted under
// KeyRef when given, and adds the payload as its first version. A secret
// whose first version could not be written is deleted again so a retry can
// create it.
func (s *GCPSecretManagerStore) Create(ctx context.Context, name string, payload []byte, opts WriteOptions) (Location, error) {
	automatic := &secretmanagerpb.Replication_Automatic{}
	if opts.KeyRef != nil && *opts.KeyRef != "" {
		automatic.CustomerManagedEncryption = &secretmanagerpb.CustomerManagedEncryption{KmsKeyName: *opts.KeyRef}
	}

	secret, err := s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   "projects/" + s.projectID,
		SecretId: name,
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{Automatic: automatic},
			},
			Annotations: mergeAnnotations(nil, opts),
		},
	})
	if err != nil {
		return Location{}, s.handleError(err, name)
	}

	version, err := s.addVersion(ctx, secret.GetName(), payload)
	if err != nil {
		if delErr := s.client.DeleteSecret(context.WithoutCancel(ctx), &secretmanagerpb.DeleteSecretRequest{
			Name: secret.GetName(),
		}); delErr != nil {
			s.logger.Warn("Failed to delete empty secret %s after failed write: %v", secret.GetName(), delErr)
		}
		return Location{}, err
	}
	return Location{ID: secret.GetName(), VersionID: version}, nil
}

// Update adds a new version when payload is non-nil and merges metadata
// annotations.
func (s *GCPSecretManagerStore) Update(ctx context.Context, location string, payload []byte, opts WriteOptions) (Location, error) {
	loc := Location{ID: location}

	if opts.Description != nil || opts.KeyRef != nil {
		current, err := s.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: location})
		if err != nil {
			return Location{}, s.handleError(err, location)
		}
		if opts.KeyRef != nil {
			s.logger.Warn("GCP Secret Manager fixes the encryption key at creation; recording %s as an annotation only", *opts.KeyRef)
		}
		_, err = s.client.UpdateSecret(ctx, &secretmanagerpb.UpdateSecretRequest{
			Secret: &secretmanagerpb.Secret{
				Name:        location,
				Annotations: mergeAnnotations(current.GetAnnotations(), opts),
			},
			UpdateMask: &fieldmaskpb.FieldMask{Paths: []string{"annotations"}},
		})
		if err != nil {
			return Location{}, s.handleError(err, location)
		}
	}

	if payload != nil {
		version, err := s.addVersion(ctx, location, payload)
		if err != nil {
			return Location{}, err
		}
		loc.VersionID = version
	}
	return loc, nil
}

// Get accesses the latest version.
func (s *GCPSecretManagerStore) Get(ctx context.Context, location string) ([]byte, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: location + "/versions/latest",
	})
	if err != nil {
		return nil, s.handleError(err, location)
	}
	return resp.GetPayload().GetData(), nil
}

// Validate lists one secret when talking to the real service.
func (s *GCPSecretManagerStore) Validate(ctx context.Context) error {
	realClient, ok := s.client.(*secretmanager.Client)
	if !ok {
		return nil
	}
	it := realClient.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{
		Parent:   "projects/" + s.projectID,
		PageSize: 1,
	})
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("GCP authentication failed: %w", err)
	}
	return nil
}

func (s *GCPSecretManagerStore) addVersion(ctx context.Context, location string, payload []byte) (string, error) {
	version, err := s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  location,
		Payload: &secretmanagerpb.SecretPayload{Data: payload},
	})
	if err != nil {
		return "", s.handleError(err, location)
	}
	return path.Base(version.GetName()), nil
}

func (s *GCPSecretManagerStore) handleError(err error, location string) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w: %v", location, ErrSecretNotFound, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("GCP authentication/authorization failed: %w", err)
	}
	return fmt.Errorf("GCP Secret Manager error: %w", err)
}

func mergeAnnotations(current map[string]string, opts WriteOptions) map[string]string {
	merged := make(map[string]string, len(current)+2)
	for k, v := range current {
		merged[k] = v
	}
	setOrDelete(merged, annotationDescription, opts.Description)
	setOrDelete(merged, annotationKeyRef, opts.KeyRef)
	return merged
}

func setOrDelete(m map[string]string, key string, value *string) {
	if value == nil {
		return
	}
	if strings.TrimSpace(*value) == "" {
		delete(m, key)
		return
	}
	m[key] = *value
}
