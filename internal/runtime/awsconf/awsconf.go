// Package awsconf loads the AWS SDK configuration shared by the SNS/SQS
// substrate, the s3 pointer store and the s3 URL fetcher.
package awsconf

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// Settings exposes the AWS keys of the runtime configuration.
type Settings interface {
	GetAWSRegion() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// DefaultConfigLoader allows overriding the AWS config loader for testing.
var DefaultConfigLoader = awsconfig.LoadDefaultConfig

// Load builds an aws.Config from settings, falling back to the SDK default
// chain for anything unset.
func Load(ctx context.Context, settings Settings, logger watermill.LoggerAdapter) (*aws.Config, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	var opts []func(*awsconfig.LoadOptions) error

	if settings != nil {
		region := settings.GetAWSRegion()
		accessKey := settings.GetAWSAccessKeyID()
		secretKey := settings.GetAWSSecretAccessKey()

		if region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		if accessKey != "" && secretKey != "" {
			logger.Info("Using static AWS credentials from config", nil)
			opts = append(opts, awsconfig.WithCredentialsProvider(StaticCredentials(accessKey, secretKey)))
		}
	}

	awsCfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		fields := watermill.LogFields{}
		if settings != nil && settings.GetAWSRegion() != "" {
			fields["requested_region"] = settings.GetAWSRegion()
		}
		logger.Error("Failed to load AWS default config", err, fields)
		return nil, err
	}

	if settings != nil {
		if region := settings.GetAWSRegion(); region != "" {
			awsCfg.Region = region
		}
		endpoint, err := EndpointURL(settings)
		if err != nil {
			return nil, err
		}
		if endpoint != nil {
			awsCfg.BaseEndpoint = aws.String(endpoint.String())
		}
	}

	return &awsCfg, nil
}

// EndpointURL parses the custom endpoint, returning nil when none is set.
func EndpointURL(settings Settings) (*url.URL, error) {
	if settings == nil || settings.GetAWSEndpoint() == "" {
		return nil, nil
	}
	parsed, err := url.Parse(settings.GetAWSEndpoint())
	if err != nil {
		return nil, fmt.Errorf("failed to parse AWS endpoint: %w", err)
	}
	return parsed, nil
}

// HasCustomEndpoint reports whether cfg targets a non-default endpoint such
// as LocalStack.
func HasCustomEndpoint(cfg *aws.Config) bool {
	return cfg != nil && cfg.BaseEndpoint != nil && *cfg.BaseEndpoint != ""
}

// Region returns cfg's region, tolerating nil.
func Region(cfg *aws.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.Region
}

// StaticCredentials returns a provider for a fixed key pair.
func StaticCredentials(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}
