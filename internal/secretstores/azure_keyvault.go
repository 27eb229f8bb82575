package secretstores

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	pserrors "github.com/systmms/pgpsecret/internal/errors"
	"github.com/systmms/pgpsecret/internal/logging"
)

// AzureKeyVaultClientAPI defines the Key Vault operations used by the
// adapter. *azsecrets.Client satisfies it.
type AzureKeyVaultClientAPI interface {
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	UpdateSecretProperties(ctx context.Context, name string, version string, parameters azsecrets.UpdateSecretPropertiesParameters, options *azsecrets.UpdateSecretPropertiesOptions) (azsecrets.UpdateSecretPropertiesResponse, error)
}

const payloadContentType = "application/json"

// AzureKeyVaultStore stores payloads as Key Vault secrets. Locations are
// unversioned secret URLs (https://<vault>/secrets/<name>). Key Vault
// encrypts with vault-managed keys, so Description and KeyRef are tags.
type AzureKeyVaultStore struct {
	client   AzureKeyVaultClientAPI
	vaultURL string
	logger   *logging.Logger
}

// AzureOption is a functional option for configuring the Azure store
type AzureOption func(*AzureKeyVaultStore)

// WithAzureKeyVaultClient sets a custom Key Vault client (for testing)
func WithAzureKeyVaultClient(client AzureKeyVaultClientAPI) AzureOption {
	return func(s *AzureKeyVaultStore) {
		s.client = client
	}
}

// WithAzureLogger sets the logger.
func WithAzureLogger(logger *logging.Logger) AzureOption {
	return func(s *AzureKeyVaultStore) {
		s.logger = logger
	}
}

// NewAzureKeyVaultStore creates the adapter. vault_url is required; a
// service principal is used when tenant_id, client_id and client_secret are
// all set, otherwise the default credential chain.
func NewAzureKeyVaultStore(configMap map[string]interface{}, opts ...AzureOption) (*AzureKeyVaultStore, error) {
	s := &AzureKeyVaultStore{logger: logging.Discard()}
	if u, ok := configMap["vault_url"].(string); ok {
		s.vaultURL = strings.TrimSuffix(u, "/")
	}
	if s.vaultURL == "" {
		return nil, pserrors.ConfigError{
			Field:      "secretStore.vault_url",
			Message:    "vault_url is required for Azure Key Vault",
			Suggestion: "Set vault_url to https://<vault-name>.vault.azure.net",
		}
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		var (
			cred azcore.TokenCredential
			err  error
		)
		tenantID, _ := configMap["tenant_id"].(string)
		clientID, _ := configMap["client_id"].(string)
		clientSecret, _ := configMap["client_secret"].(string)
		if tenantID != "" && clientID != "" && clientSecret != "" {
			cred, err = azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
		} else {
			cred, err = azidentity.NewDefaultAzureCredential(nil)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", err)
		}
		client, err := azsecrets.NewClient(s.vaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
		}
		s.client = client
	}

	return s, nil
}

// Name returns the store type
func (s *AzureKeyVaultStore) Name() string {
	return "azure-keyvault"
}

// Create sets the first version of secret name. SetSecret would add a
// version to an existing secret, so a name already in the vault is refused.
func (s *AzureKeyVaultStore) Create(ctx context.Context, name string, payload []byte, opts WriteOptions) (Location, error) {
	_, err := s.client.GetSecret(ctx, name, "", nil)
	switch {
	case err == nil:
		return Location{}, fmt.Errorf("secret %s already exists in Azure Key Vault", name)
	case !isAzureNotFound(err):
		return Location{}, s.handleError(err, name)
	}
	return s.set(ctx, name, payload, mergeTags(nil, opts))
}

// Update sets a new version when payload is non-nil, otherwise updates the
// tags of the current version.
func (s *AzureKeyVaultStore) Update(ctx context.Context, location string, payload []byte, opts WriteOptions) (Location, error) {
	name := s.secretName(location)

	current, err := s.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return Location{}, s.handleError(err, name)
	}
	tags := mergeTags(current.Tags, opts)

	if payload != nil {
		return s.set(ctx, name, payload, tags)
	}

	_, err = s.client.UpdateSecretProperties(ctx, name, "", azsecrets.UpdateSecretPropertiesParameters{
		Tags: tags,
	}, nil)
	if err != nil {
		return Location{}, s.handleError(err, name)
	}
	return Location{ID: s.location(name)}, nil
}

// Get returns the current version's value.
func (s *AzureKeyVaultStore) Get(ctx context.Context, location string) ([]byte, error) {
	name := s.secretName(location)
	resp, err := s.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return nil, s.handleError(err, name)
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("secret '%s' has no value", name)
	}
	return []byte(*resp.Value), nil
}

// Validate fetches the first page of secret properties when talking to the
// real service.
func (s *AzureKeyVaultStore) Validate(ctx context.Context) error {
	realClient, ok := s.client.(*azsecrets.Client)
	if !ok {
		return nil
	}
	pager := realClient.NewListSecretPropertiesPager(nil)
	if _, err := pager.NextPage(ctx); err != nil {
		return fmt.Errorf("failed to connect to Azure Key Vault: %w", err)
	}
	return nil
}

func (s *AzureKeyVaultStore) set(ctx context.Context, name string, payload []byte, tags map[string]*string) (Location, error) {
	value := string(payload)
	contentType := payloadContentType
	resp, err := s.client.SetSecret(ctx, name, azsecrets.SetSecretParameters{
		Value:       &value,
		ContentType: &contentType,
		Tags:        tags,
	}, nil)
	if err != nil {
		return Location{}, s.handleError(err, name)
	}

	loc := Location{ID: s.location(name)}
	if resp.ID != nil {
		loc.VersionID = resp.ID.Version()
	}
	return loc, nil
}

// secretName accepts a bare name or any secret URL, versioned or not.
func (s *AzureKeyVaultStore) secretName(location string) string {
	if _, rest, ok := strings.Cut(location, "/secrets/"); ok {
		name, _, _ := strings.Cut(rest, "/")
		return name
	}
	return location
}

func (s *AzureKeyVaultStore) location(name string) string {
	return s.vaultURL + "/secrets/" + name
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func (s *AzureKeyVaultStore) handleError(err error, name string) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %v", name, ErrSecretNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("Azure authentication/authorization failed: %w", err)
		}
	}
	return fmt.Errorf("Azure Key Vault error: %w", err)
}

func mergeTags(current map[string]*string, opts WriteOptions) map[string]*string {
	merged := make(map[string]*string, len(current)+2)
	for k, v := range current {
		merged[k] = v
	}
	for key, value := range map[string]*string{
		annotationDescription: opts.Description,
		annotationKeyRef:      opts.KeyRef,
	} {
		if value == nil {
			continue
		}
		if strings.TrimSpace(*value) == "" {
			delete(merged, key)
			continue
		}
		v := *value
		merged[key] = &v
	}
	return merged
}
