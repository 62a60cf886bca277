package s3

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appConfig "github.com/taxpilot/efile-service/internal/config"
)

// ExportRepository stores regulatory audit exports in object storage.
type ExportRepository struct {
	client *s3.Client
	bucket string
}

// NewExportRepository creates a new S3 export repository
func NewExportRepository(ctx context.Context, cfg appConfig.S3Config) (*ExportRepository, error) {
	// Custom resolver for MinIO/Localstack support
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				PartitionID:   "aws",
				URL:           cfg.Endpoint,
				SigningRegion: cfg.Region,
			}, nil
		}
		// returning EndpointNotFoundError will allow the service to fallback to it's default resolution
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithEndpointResolverWithOptions(customResolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true // Required for MinIO
	})

	return &ExportRepository{
		client: client,
		bucket: cfg.ExportBucket,
	}, nil
}

// StoreExport uploads one audit trail export. Key format: year/month/day/name.
func (r *ExportRepository) StoreExport(ctx context.Context, name string, data []byte) (string, error) {
	now := time.Now().UTC()
	key := fmt.Sprintf("%d/%02d/%02d/%s", now.Year(), now.Month(), now.Day(), name)

	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export to s3: %w", err)
	}

	return key, nil
}
