package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/valgdash/backend/internal/ingestion"
	"github.com/valgdash/backend/internal/metrics"
	"github.com/valgdash/backend/pkg/circuitbreaker"
	appconfig "github.com/valgdash/backend/pkg/config"
	"github.com/valgdash/backend/pkg/logger"
	"github.com/valgdash/backend/pkg/retry"
)

// Client fetches CSV objects from an S3-compatible store. Fetches are
// bounded by a timeout and a byte cap, and routed through a circuit
// breaker so a flaky upstream does not hammer every batch.
type Client struct {
	cfg     appconfig.ObjectStoreConfig
	breaker *circuitbreaker.CircuitBreaker
}

func NewClient(cfg appconfig.ObjectStoreConfig) *Client {
	return &Client{
		cfg: cfg,
		breaker: circuitbreaker.NewCircuitBreaker("objectstore", circuitbreaker.Config{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			Logger:           logger.Log,
		}),
	}
}

// Fetch retrieves an object as text. endpoint overrides the configured
// endpoint when non-empty (the request may point at a different
// S3-compatible provider). A deadline overrun returns
// ingestion.ErrFetchTimeout; an object over the cap returns
// ingestion.ErrObjectTooLarge.
func (c *Client) Fetch(ctx context.Context, bucket, key, endpoint string) (string, error) {
	if endpoint == "" {
		endpoint = c.cfg.Endpoint
	}

	timeout := time.Duration(c.cfg.FetchTimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var body []byte
	err := c.breaker.Execute(ctx, func() error {
		var fetchErr error
		body, fetchErr = retry.DoWithResult(ctx, retry.Config{
			MaxAttempts:  2,
			InitialDelay: 500 * time.Millisecond,
			Logger:       logger.Log,
		}, func() ([]byte, error) {
			return c.getObject(ctx, bucket, key, endpoint)
		})
		return fetchErr
	})
	metrics.ObjectFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
			err = ingestion.ErrFetchTimeout
		} else if errors.Is(err, ingestion.ErrObjectTooLarge) {
			reason = "too_large"
		} else if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			reason = "circuit_open"
		}
		metrics.ObjectFetchFailures.WithLabelValues(reason).Inc()
		logger.Error("Object fetch failed",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Error(err),
		)
		return "", err
	}

	logger.Info("Object fetched",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("bytes", len(body)),
	)
	return string(body), nil
}

func (c *Client) getObject(ctx context.Context, bucket, key, endpoint string) ([]byte, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(c.cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.cfg.AccessKeyID, c.cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure object store client: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		// Path-style addressing is required by S3-compatible providers.
		o.UsePathStyle = true
	})

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	maxBytes := c.cfg.MaxObjectBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}

	body, err := io.ReadAll(io.LimitReader(out.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, ingestion.ErrObjectTooLarge
	}
	return body, nil
}
