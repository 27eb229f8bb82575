package secretstores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/systmms/pgpsecret/internal/awsclient"
	"github.com/systmms/pgpsecret/internal/logging"
)

// SecretsManagerClientAPI defines the AWS Secrets Manager operations used
// by the adapter. This allows for mocking in tests.
type SecretsManagerClientAPI interface {
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	UpdateSecret(ctx context.Context, params *secretsmanager.UpdateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// AWSSecretsManagerStore stores payloads as SecretString values. Locations
// are secret ARNs.
type AWSSecretsManagerStore struct {
	client SecretsManagerClientAPI
	logger *logging.Logger
}

// AWSOption is a functional option for configuring the AWS store
type AWSOption func(*AWSSecretsManagerStore)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing)
func WithSecretsManagerClient(client SecretsManagerClientAPI) AWSOption {
	return func(s *AWSSecretsManagerStore) {
		s.client = client
	}
}

// WithAWSLogger sets the logger.
func WithAWSLogger(logger *logging.Logger) AWSOption {
	return func(s *AWSSecretsManagerStore) {
		s.logger = logger
	}
}

// NewAWSSecretsManagerStore creates the adapter, building a real client from
// configMap unless one is injected.
func NewAWSSecretsManagerStore(ctx context.Context, configMap map[string]interface{}, opts ...AWSOption) (*AWSSecretsManagerStore, error) {
	s := &AWSSecretsManagerStore{logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		awsOpts := awsclient.OptionsFromMap(configMap)
		cfg, err := awsclient.Load(ctx, awsOpts)
		if err != nil {
			return nil, err
		}
		var clientOpts []func(*secretsmanager.Options)
		if awsOpts.Endpoint != "" {
			endpoint := awsOpts.Endpoint
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		s.client = secretsmanager.NewFromConfig(cfg, clientOpts...)
	}

	return s, nil
}

// Name returns the store type
func (s *AWSSecretsManagerStore) Name() string {
	return "aws-secretsmanager"
}

// Create creates a new secret named name.
func (s *AWSSecretsManagerStore) Create(ctx context.Context, name string, payload []byte, opts WriteOptions) (Location, error) {
	input := &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(string(payload)),
		Description:  opts.Description,
		KmsKeyId:     opts.KeyRef,
	}
	if opts.RequestToken != "" {
		input.ClientRequestToken = aws.String(opts.RequestToken)
	}

	s.logger.Debug("Creating secret %s in AWS Secrets Manager", name)
	out, err := s.client.CreateSecret(ctx, input)
	if err != nil {
		return Location{}, s.handleError(err, name)
	}
	return Location{ID: aws.ToString(out.ARN), VersionID: aws.ToString(out.VersionId)}, nil
}

// Update updates the secret at location (ARN or name).
func (s *AWSSecretsManagerStore) Update(ctx context.Context, location string, payload []byte, opts WriteOptions) (Location, error) {
	input := &secretsmanager.UpdateSecretInput{
		SecretId:    aws.String(location),
		Description: opts.Description,
		KmsKeyId:    opts.KeyRef,
	}
	if payload != nil {
		input.SecretString = aws.String(string(payload))
		if opts.RequestToken != "" {
			input.ClientRequestToken = aws.String(opts.RequestToken)
		}
	}

	s.logger.Debug("Updating secret %s in AWS Secrets Manager (payload: %t)", location, payload != nil)
	out, err := s.client.UpdateSecret(ctx, input)
	if err != nil {
		return Location{}, s.handleError(err, location)
	}
	return Location{ID: aws.ToString(out.ARN), VersionID: aws.ToString(out.VersionId)}, nil
}

// Get returns the current SecretString (or SecretBinary) of location.
func (s *AWSSecretsManagerStore) Get(ctx context.Context, location string) ([]byte, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(location),
	})
	if err != nil {
		return nil, s.handleError(err, location)
	}
	switch {
	case out.SecretString != nil:
		return []byte(*out.SecretString), nil
	case out.SecretBinary != nil:
		return out.SecretBinary, nil
	}
	return nil, fmt.Errorf("secret '%s' has no value", location)
}

// Validate lists at most one secret to verify credentials.
func (s *AWSSecretsManagerStore) Validate(ctx context.Context) error {
	_, err := s.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{MaxResults: aws.Int32(1)})
	if err != nil {
		return fmt.Errorf("AWS authentication failed: %w", err)
	}
	return nil
}

// handleError converts AWS errors to store errors
func (s *AWSSecretsManagerStore) handleError(err error, location string) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w: %v", location, ErrSecretNotFound, err)
	}
	if isAuthError(err) {
		return fmt.Errorf("AWS authentication/authorization failed: %w", err)
	}
	return fmt.Errorf("AWS Secrets Manager error: %w", err)
}

func isAuthError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "AccessDenied") ||
		strings.Contains(errStr, "UnauthorizedOperation") ||
		strings.Contains(errStr, "InvalidUserID") ||
		strings.Contains(errStr, "Forbidden")
}
