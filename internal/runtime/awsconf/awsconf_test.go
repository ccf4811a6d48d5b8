package awsconf

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settings struct {
	region, key, secret, endpoint string
}

func (s settings) GetAWSRegion() string          { return s.region }
func (s settings) GetAWSAccessKeyID() string     { return s.key }
func (s settings) GetAWSSecretAccessKey() string { return s.secret }
func (s settings) GetAWSEndpoint() string        { return s.endpoint }

func stubLoader(t *testing.T, err error) *int {
	t.Helper()
	original := DefaultConfigLoader
	t.Cleanup(func() { DefaultConfigLoader = original })

	calls := 0
	DefaultConfigLoader = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		calls++
		if err != nil {
			return aws.Config{}, err
		}
		var opts awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&opts))
		}
		return aws.Config{Region: opts.Region, Credentials: opts.Credentials}, nil
	}
	return &calls
}

func TestLoadAppliesSettings(t *testing.T) {
	calls := stubLoader(t, nil)

	cfg, err := Load(context.Background(), settings{
		region:   "eu-central-1",
		key:      "AKIA",
		secret:   "secret",
		endpoint: "http://localhost:4566",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, *calls)
	assert.Equal(t, "eu-central-1", Region(cfg))
	assert.True(t, HasCustomEndpoint(cfg))
	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIA", creds.AccessKeyID)
}

func TestLoadPropagatesLoaderError(t *testing.T) {
	stubLoader(t, errors.New("no credentials"))
	_, err := Load(context.Background(), settings{region: "us-east-1"}, nil)
	assert.EqualError(t, err, "no credentials")
}

func TestLoadRejectsBadEndpoint(t *testing.T) {
	stubLoader(t, nil)
	_, err := Load(context.Background(), settings{endpoint: "://bad"}, nil)
	assert.Error(t, err)
}

func TestHelpersTolerateNil(t *testing.T) {
	assert.Empty(t, Region(nil))
	assert.False(t, HasCustomEndpoint(nil))
	u, err := EndpointURL(nil)
	assert.NoError(t, err)
	assert.Nil(t, u)
}
