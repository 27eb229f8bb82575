// Package awsclient builds aws.Config values shared by the Secrets Manager
// and SSM adapters.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// DefaultRegion is used when neither config nor environment name a region.
const DefaultRegion = "us-east-1"

// Options holds AWS connection settings.
type Options struct {
	Region          string
	Profile         string
	Endpoint        string // custom endpoint for LocalStack or testing
	AccessKeyID     string
	SecretAccessKey string
	AssumeRole      string
	ExternalID      string
}

// OptionsFromMap reads Options from a store's inline YAML configuration.
func OptionsFromMap(configMap map[string]interface{}) Options {
	var opts Options
	if r, ok := configMap["region"].(string); ok {
		opts.Region = r
	}
	if p, ok := configMap["profile"].(string); ok {
		opts.Profile = p
	}
	if e, ok := configMap["endpoint"].(string); ok {
		opts.Endpoint = e
	}
	if ak, ok := configMap["access_key_id"].(string); ok {
		opts.AccessKeyID = ak
	}
	if sk, ok := configMap["secret_access_key"].(string); ok {
		opts.SecretAccessKey = sk
	}
	if role, ok := configMap["assume_role"].(string); ok {
		opts.AssumeRole = role
	}
	if id, ok := configMap["external_id"].(string); ok {
		opts.ExternalID = id
	}
	return opts
}

// Load resolves an aws.Config from the default credential chain, applying
// static credentials and role assumption when configured.
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	var configOpts []func(*awsconfig.LoadOptions) error

	if opts.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	if opts.AssumeRole != "" {
		stsClient := sts.NewFromConfig(cfg, func(o *sts.Options) {
			if opts.Endpoint != "" {
				o.BaseEndpoint = aws.String(opts.Endpoint)
			}
		})
		provider := stscreds.NewAssumeRoleProvider(stsClient, opts.AssumeRole, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = "pgpsecret"
			if opts.ExternalID != "" {
				o.ExternalID = aws.String(opts.ExternalID)
			}
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return cfg, nil
}
