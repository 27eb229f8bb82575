package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/systmms/pgpsecret/internal/awsclient"
	"github.com/systmms/pgpsecret/internal/logging"
)

// SSMClientAPI defines the SSM Parameter Store operations used for cleanup.
// This allows for mocking in tests
type SSMClientAPI interface {
	DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
}

// AWSSSMStore deletes parameters from AWS Systems Manager Parameter Store.
type AWSSSMStore struct {
	client SSMClientAPI
	logger *logging.Logger
}

// SSMOption is a functional option for configuring the SSM store
type SSMOption func(*AWSSSMStore)

// WithSSMClient sets a custom SSM client (for testing)
func WithSSMClient(client SSMClientAPI) SSMOption {
	return func(s *AWSSSMStore) {
		s.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) SSMOption {
	return func(s *AWSSSMStore) {
		s.logger = logger
	}
}

// NewAWSSSMStore creates the adapter from region, profile, endpoint and
// assume_role settings.
func NewAWSSSMStore(ctx context.Context, configMap map[string]interface{}, opts ...SSMOption) (*AWSSSMStore, error) {
	s := &AWSSSMStore{logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		awsOpts := awsclient.OptionsFromMap(configMap)
		cfg, err := awsclient.Load(ctx, awsOpts)
		if err != nil {
			return nil, err
		}
		var clientOpts []func(*ssm.Options)
		if awsOpts.Endpoint != "" {
			endpoint := awsOpts.Endpoint
			clientOpts = append(clientOpts, func(o *ssm.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		s.client = ssm.NewFromConfig(cfg, clientOpts...)
	}

	return s, nil
}

// Delete removes the parameter.
func (s *AWSSSMStore) Delete(ctx context.Context, name string) error {
	s.logger.Debug("Deleting legacy parameter %s", name)
	_, err := s.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{Name: aws.String(name)})
	if err == nil {
		return nil
	}
	if isParameterNotFoundError(err) {
		return fmt.Errorf("%s: %w", name, ErrParameterNotFound)
	}
	return fmt.Errorf("failed to delete parameter %s: %w", name, err)
}

// isParameterNotFoundError checks if the error is a parameter not found error
func isParameterNotFoundError(err error) bool {
	var notFound *types.ParameterNotFound
	if errors.As(err, &notFound) {
		return true
	}
	return strings.Contains(err.Error(), "ParameterNotFound")
}
