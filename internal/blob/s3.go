package blob

import (
	"bytes"
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/prometheus/client_golang/prometheus"

	appconfig "github.com/medtrack/server/internal/config"
	"github.com/medtrack/server/pkg/metrics"
)

type s3Store struct {
	client  *s3.Client
	bucket  string
	metrics *metrics.Metrics
}

// NewS3Store creates an S3-backed blob store. The endpoint override supports
// local stacks; path style is forced for the same reason.
func NewS3Store(ctx context.Context, cfg appconfig.BlobConfig, m *metrics.Metrics) (Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	opts := s3.Options{
		Region:       awsCfg.Region,
		Credentials:  awsCfg.Credentials,
		HTTPClient:   awsCfg.HTTPClient,
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = &cfg.Endpoint
	}

	return &s3Store{
		client:  s3.New(opts),
		bucket:  cfg.Bucket,
		metrics: m,
	}, nil
}

func (s *s3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	timer := s.timer("put")
	defer timer.ObserveDuration()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		s.count("put", "error")
		return "", fmt.Errorf("failed to put blob: %w", err)
	}
	s.count("put", "success")
	return key, nil
}

func (s *s3Store) Remove(ctx context.Context, locators ...string) error {
	timer := s.timer("remove")
	defer timer.ObserveDuration()

	for _, locator := range locators {
		loc := locator
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: &s.bucket,
			Key:    &loc,
		})
		if err != nil {
			s.count("remove", "error")
			return fmt.Errorf("failed to remove blob %s: %w", locator, err)
		}
	}
	s.count("remove", "success")
	return nil
}

func (s *s3Store) timer(op string) *prometheus.Timer {
	if s.metrics == nil {
		return prometheus.NewTimer(prometheus.ObserverFunc(func(float64) {}))
	}
	return prometheus.NewTimer(s.metrics.BlobLatency.WithLabelValues(op))
}

func (s *s3Store) count(op, status string) {
	if s.metrics != nil {
		s.metrics.BlobOperations.WithLabelValues(op, status).Inc()
	}
}

// OwnerKey builds the owner-namespaced blob key for a new upload.
func OwnerKey(ownerID, name string) string {
	return fmt.Sprintf("%s/%d_%s", ownerID, time.Now().UnixNano(), name)
}
