package minio

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

// ObjectAPI is the part of the MinIO client this package calls.  GetObject
// returns a plain ReadCloser so fakes need not build a *minio.Object.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, cfg *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// sdkAPI adapts *minio.Client to ObjectAPI.
type sdkAPI struct {
	*minio.Client
}

func (a sdkAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return a.Client.GetObject(ctx, bucketName, objectName, opts)
}

const connectTimeout = 10 * time.Second

var ErrClientClosed = errors.New(errors.ErrCodeSinkUnavailable, "minio client is closed")

// Client owns the bucket that run archives are written to.
type Client struct {
	api    ObjectAPI
	cfg    config.MinIOConfig
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

// NewClient connects to cfg.Endpoint, creates the bucket when missing and
// installs the retention rule.  Without a static access key the credentials
// come from the MINIO_* or AWS_* environment, then from instance IAM.
func NewClient(ctx context.Context, cfg config.MinIOConfig, log logging.Logger) (*Client, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if cfg.Region == "" {
		cfg.Region = config.DefaultMinIORegion
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentialsFor(cfg),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSinkUnavailable, "failed to create minio client")
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	c := NewClientWithAPI(sdkAPI{mc}, cfg, log)
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	if err := c.SetupLifecycle(ctx); err != nil {
		return nil, err
	}

	log.Info("minio client connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

func credentialsFor(cfg config.MinIOConfig) *credentials.Credentials {
	if cfg.AccessKey != "" {
		return credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvMinio{},
		&credentials.EnvAWS{},
		&credentials.IAM{},
	})
}

// NewClientWithAPI wraps an existing API without touching the server.
func NewClientWithAPI(api ObjectAPI, cfg config.MinIOConfig, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Client{api: api, cfg: cfg, logger: log}
}

func (c *Client) Bucket() string { return c.cfg.Bucket }
func (c *Client) Prefix() string { return c.cfg.Prefix }

// API returns the underlying object API, or ErrClientClosed.
func (c *Client) API() (ObjectAPI, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	return c.api, nil
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkUnavailable, "failed to check bucket existence").
			WithDetail("bucket=" + c.cfg.Bucket)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.cfg.Bucket, minio.MakeBucketOptions{Region: c.cfg.Region}); err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkUnavailable, "failed to create bucket").
			WithDetail("bucket=" + c.cfg.Bucket)
	}
	c.logger.Info("created bucket", logging.String("bucket", c.cfg.Bucket))
	return nil
}

// SetupLifecycle expires archives under the prefix after RetentionDays.  A
// server that rejects lifecycle rules only produces a warning.
func (c *Client) SetupLifecycle(ctx context.Context) error {
	if c.cfg.RetentionDays <= 0 {
		return nil
	}
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:         "run-archive-expiry",
			Status:     "Enabled",
			RuleFilter: lifecycle.Filter{Prefix: c.cfg.Prefix},
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(c.cfg.RetentionDays),
			},
		},
	}
	if err := c.api.SetBucketLifecycle(ctx, c.cfg.Bucket, lc); err != nil {
		c.logger.Warn("failed to set bucket lifecycle",
			logging.String("bucket", c.cfg.Bucket), logging.Err(err))
	}
	return nil
}

// HealthCheck confirms the archive bucket is reachable and exists.  It
// needs no permission beyond the bucket itself.
func (c *Client) HealthCheck(ctx context.Context) error {
	api, err := c.API()
	if err != nil {
		return err
	}
	exists, err := api.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkUnavailable, "minio unreachable").WithDetail("bucket=" + c.cfg.Bucket)
	}
	if !exists {
		return errors.New(errors.ErrCodeSinkUnavailable, "bucket missing").WithDetail("bucket=" + c.cfg.Bucket)
	}
	return nil
}

// Close marks the client closed.  minio-go holds no connections to release.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

//Personal.AI order the ending
