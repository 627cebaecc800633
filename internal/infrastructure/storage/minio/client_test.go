package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/keyip-combinator/internal/config"
	pkgerrors "github.com/turtacn/keyip-combinator/pkg/errors"
)

type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockObjectAPI) SetBucketLifecycle(ctx context.Context, bucketName string, cfg *lifecycle.Configuration) error {
	return m.Called(ctx, bucketName, cfg).Error(0)
}

func (m *MockObjectAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockObjectAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *MockObjectAPI) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucketName, objectName, opts).Error(0)
}

// memoryAPI keeps objects in a map.
type memoryAPI struct {
	mu      sync.Mutex
	objects map[string][]byte
	opts    map[string]minio.PutObjectOptions
	putErr  error
	readErr error
}

func newMemoryAPI() *memoryAPI {
	return &memoryAPI{objects: map[string][]byte{}, opts: map[string]minio.PutObjectOptions{}}
}

func (m *memoryAPI) BucketExists(context.Context, string) (bool, error) { return true, nil }

func (m *memoryAPI) MakeBucket(context.Context, string, minio.MakeBucketOptions) error { return nil }

func (m *memoryAPI) SetBucketLifecycle(context.Context, string, *lifecycle.Configuration) error {
	return nil
}

func (m *memoryAPI) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if m.putErr != nil {
		return minio.UploadInfo{}, m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	m.opts[bucket+"/"+key] = opts
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func (m *memoryAPI) GetObject(_ context.Context, bucket, key string, _ minio.GetObjectOptions) (io.ReadCloser, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, minio.ErrorResponse{Code: "NoSuchKey", Key: key, BucketName: bucket}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryAPI) RemoveObject(_ context.Context, bucket, key string, _ minio.RemoveObjectOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

type ClientTestSuite struct {
	suite.Suite
	api *MockObjectAPI
	cfg config.MinIOConfig
}

func (s *ClientTestSuite) SetupTest() {
	s.api = new(MockObjectAPI)
	s.cfg = config.MinIOConfig{Bucket: "combinator", Region: "us-east-1", Prefix: "runs/"}
}

func (s *ClientTestSuite) TearDownTest() {
	s.api.AssertExpectations(s.T())
}

func (s *ClientTestSuite) TestEnsureBucket_Exists() {
	s.api.On("BucketExists", mock.Anything, "combinator").Return(true, nil)

	c := NewClientWithAPI(s.api, s.cfg, nil)
	s.NoError(c.EnsureBucket(context.Background()))
	s.api.AssertNotCalled(s.T(), "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ClientTestSuite) TestEnsureBucket_Creates() {
	s.api.On("BucketExists", mock.Anything, "combinator").Return(false, nil)
	s.api.On("MakeBucket", mock.Anything, "combinator", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)

	c := NewClientWithAPI(s.api, s.cfg, nil)
	s.NoError(c.EnsureBucket(context.Background()))
}

func (s *ClientTestSuite) TestEnsureBucket_CreateFails() {
	s.api.On("BucketExists", mock.Anything, "combinator").Return(false, nil)
	s.api.On("MakeBucket", mock.Anything, "combinator", mock.Anything).Return(errors.New("AccessDenied"))

	c := NewClientWithAPI(s.api, s.cfg, nil)
	err := c.EnsureBucket(context.Background())
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSinkUnavailable))
}

func (s *ClientTestSuite) TestSetupLifecycle_Disabled() {
	c := NewClientWithAPI(s.api, s.cfg, nil)
	s.NoError(c.SetupLifecycle(context.Background()))
	s.api.AssertNotCalled(s.T(), "SetBucketLifecycle", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ClientTestSuite) TestSetupLifecycle_ExpiresPrefix() {
	s.cfg.RetentionDays = 14
	s.api.On("SetBucketLifecycle", mock.Anything, "combinator", mock.MatchedBy(func(lc *lifecycle.Configuration) bool {
		if len(lc.Rules) != 1 {
			return false
		}
		r := lc.Rules[0]
		return r.Status == "Enabled" && r.RuleFilter.Prefix == "runs/" && r.Expiration.Days == 14
	})).Return(nil)

	c := NewClientWithAPI(s.api, s.cfg, nil)
	s.NoError(c.SetupLifecycle(context.Background()))
}

func (s *ClientTestSuite) TestSetupLifecycle_RejectedIsWarning() {
	s.cfg.RetentionDays = 1
	s.api.On("SetBucketLifecycle", mock.Anything, "combinator", mock.Anything).Return(errors.New("NotImplemented"))

	c := NewClientWithAPI(s.api, s.cfg, nil)
	s.NoError(c.SetupLifecycle(context.Background()))
}

func (s *ClientTestSuite) TestHealthCheck() {
	s.api.On("BucketExists", mock.Anything, "combinator").Return(true, nil).Once()
	s.api.On("BucketExists", mock.Anything, "combinator").Return(false, nil).Once()

	c := NewClientWithAPI(s.api, s.cfg, nil)
	s.NoError(c.HealthCheck(context.Background()))

	err := c.HealthCheck(context.Background())
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSinkUnavailable))
}

func (s *ClientTestSuite) TestHealthCheck_Unreachable() {
	s.api.On("BucketExists", mock.Anything, "combinator").Return(false, errors.New("dial tcp: refused"))

	c := NewClientWithAPI(s.api, s.cfg, nil)
	err := c.HealthCheck(context.Background())
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSinkUnavailable))
	s.Contains(err.Error(), "bucket=combinator")
}

func (s *ClientTestSuite) TestClosed() {
	c := NewClientWithAPI(s.api, s.cfg, nil)
	s.NoError(c.Close())

	_, err := c.API()
	s.Equal(ErrClientClosed, err)
	s.Equal(ErrClientClosed, c.HealthCheck(context.Background()))
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func TestCredentialsFor(t *testing.T) {
	t.Setenv("MINIO_ACCESS_KEY", "env-key")
	t.Setenv("MINIO_SECRET_KEY", "env-secret")

	v, err := credentialsFor(config.MinIOConfig{AccessKey: "static", SecretKey: "s"}).Get()
	require.NoError(t, err)
	assert.Equal(t, "static", v.AccessKeyID)

	v, err = credentialsFor(config.MinIOConfig{}).Get()
	require.NoError(t, err)
	assert.Equal(t, "env-key", v.AccessKeyID)
}

func TestClientAccessors(t *testing.T) {
	c := NewClientWithAPI(newMemoryAPI(), config.MinIOConfig{Bucket: "b", Prefix: "p/"}, nil)
	assert.Equal(t, "b", c.Bucket())
	assert.Equal(t, "p/", c.Prefix())
}

//Personal.AI order the ending
