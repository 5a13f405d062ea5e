package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/upfleet/upfleet/internal/logging"
)

// S3Store writes reports to an S3 bucket
type S3Store struct {
	client *s3.Client
	bucket string
	region string
	prefix string
	logger *logging.Logger
}

// S3StoreConfig holds the configuration for S3Store.
// AWS credentials come from IAM roles, instance profiles, or environment
// variables; Endpoint is for LocalStack or custom endpoints.
type S3StoreConfig struct {
	Bucket   string `json:"bucket"`
	Region   string `json:"region"`
	Prefix   string `json:"prefix,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// NewS3Store creates an S3-backed report store
func NewS3Store(cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for LocalStack
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	store := &S3Store{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: cfg.Prefix,
		logger: logging.NewLogger("report-s3-store"),
	}

	if err := store.initializeBucket(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize S3 bucket: %w", err)
	}
	return store, nil
}

// initializeBucket checks bucket access and creates the bucket when missing
func (s *S3Store) initializeBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noBucket) || strings.Contains(err.Error(), "NotFound") {
			_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
				Bucket: aws.String(s.bucket),
				CreateBucketConfiguration: &types.CreateBucketConfiguration{
					LocationConstraint: types.BucketLocationConstraint(s.region),
				},
			})
			if err != nil {
				return fmt.Errorf("failed to create S3 bucket %s: %w", s.bucket, err)
			}
			return nil
		}
		return fmt.Errorf("failed to access S3 bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *S3Store) objectKey(name string) string {
	if s.prefix == "" {
		return "reports/" + name
	}
	return strings.TrimSuffix(s.prefix, "/") + "/reports/" + name
}

// Save uploads the report as JSON and returns the object URL
func (s *S3Store) Save(ctx context.Context, r *Report) (string, error) {
	data, err := r.JSON()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	key := s.objectKey(r.FileName())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"run-mode": r.Mode,
			"project":  r.Project,
			"saved-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to save report to S3: %w", err)
	}

	location := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	s.logger.Infof("Report written to %s", location)
	return location, nil
}
