package pointer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/drblury/docflow/internal/runtime/awsconf"
	"github.com/drblury/docflow/internal/runtime/config"
)

// S3ClientFactory allows overriding the S3 client creation for testing.
var S3ClientFactory = func(ctx context.Context, cfg *config.Config, logger watermill.LoggerAdapter) (S3API, error) {
	return NewS3Client(ctx, cfg, logger)
}

// NewS3Client builds an S3 client from the runtime AWS settings. Custom
// endpoints use path-style addressing, as LocalStack requires.
func NewS3Client(ctx context.Context, cfg awsconf.Settings, logger watermill.LoggerAdapter) (*s3.Client, error) {
	awsCfg, err := awsconf.Load(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	custom := awsconf.HasCustomEndpoint(awsCfg)
	return s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		o.UsePathStyle = custom
	}), nil
}

// Open builds the store selected by cfg.StoreProvider.
func Open(ctx context.Context, cfg *config.Config, logger watermill.LoggerAdapter) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	provider := strings.ToLower(cfg.StoreProvider)
	logger.Info("Opening pointer store", watermill.LogFields{"provider": provider})

	switch provider {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLiteFile)
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresURL)
	case "nats":
		return NewNATSStore(cfg.NATSURL, cfg.NATSBucket)
	case "s3":
		client, err := S3ClientFactory(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return nil, fmt.Errorf("unknown pointer store provider %q", cfg.StoreProvider)
	}
}
