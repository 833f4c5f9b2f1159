package minio

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/BOMMesh/internal/config"
	"github.com/turtacn/BOMMesh/internal/testutil"
	pkgerrors "github.com/turtacn/BOMMesh/pkg/errors"
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

func (m *MockObjectAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

type ClientTestSuite struct {
	suite.Suite
	api *MockObjectAPI
	log *testutil.MockLogger
	cfg config.MinIOConfig
}

func (s *ClientTestSuite) SetupTest() {
	s.api = new(MockObjectAPI)
	s.log = testutil.NewMockLogger()
	s.cfg = config.MinIOConfig{Bucket: "reports", Region: "us-east-1"}
}

func (s *ClientTestSuite) TearDownTest() {
	s.api.AssertExpectations(s.T())
}

func (s *ClientTestSuite) TestEnsureBucket_CreatesMissingBucket() {
	ctx := context.Background()
	s.api.On("BucketExists", ctx, "reports").Return(false, nil)
	s.api.On("MakeBucket", ctx, "reports", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)

	c := NewClientWithAPI(s.api, s.cfg, s.log)
	s.Require().NoError(c.EnsureBucket(ctx))
	s.True(s.log.HasMessage("info", "Created bucket"))
}

func (s *ClientTestSuite) TestEnsureBucket_ExistingBucketNoRetention() {
	ctx := context.Background()
	s.api.On("BucketExists", ctx, "reports").Return(true, nil)

	c := NewClientWithAPI(s.api, s.cfg, s.log)
	s.Require().NoError(c.EnsureBucket(ctx))
	s.api.AssertNotCalled(s.T(), "SetBucketLifecycle", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ClientTestSuite) TestEnsureBucket_InstallsExpiryRule() {
	ctx := context.Background()
	s.cfg.RetentionDays = 30
	s.api.On("BucketExists", ctx, "reports").Return(true, nil)
	s.api.On("SetBucketLifecycle", ctx, "reports", mock.MatchedBy(func(lc *lifecycle.Configuration) bool {
		return len(lc.Rules) == 1 &&
			lc.Rules[0].RuleFilter.Prefix == "runs/" &&
			lc.Rules[0].Expiration.Days == lifecycle.ExpirationDays(30)
	})).Return(nil)

	c := NewClientWithAPI(s.api, s.cfg, s.log)
	s.Require().NoError(c.EnsureBucket(ctx))
}

func (s *ClientTestSuite) TestEnsureBucket_LifecycleFailureIsOnlyLogged() {
	ctx := context.Background()
	s.cfg.RetentionDays = 7
	s.api.On("BucketExists", ctx, "reports").Return(true, nil)
	s.api.On("SetBucketLifecycle", ctx, "reports", mock.Anything).Return(errors.New("not implemented"))

	c := NewClientWithAPI(s.api, s.cfg, s.log)
	s.Require().NoError(c.EnsureBucket(ctx))
	s.True(s.log.HasMessage("warn", "Failed to set report lifecycle"))
}

func (s *ClientTestSuite) TestEnsureBucket_Unreachable() {
	ctx := context.Background()
	s.api.On("BucketExists", ctx, "reports").Return(false, errors.New("dial tcp: refused"))

	err := NewClientWithAPI(s.api, s.cfg, s.log).EnsureBucket(ctx)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeServiceUnavailable))
}

func (s *ClientTestSuite) TestEnsureBucket_MakeBucketFails() {
	ctx := context.Background()
	s.api.On("BucketExists", ctx, "reports").Return(false, nil)
	s.api.On("MakeBucket", ctx, "reports", mock.Anything).Return(errors.New("denied"))

	err := NewClientWithAPI(s.api, s.cfg, s.log).EnsureBucket(ctx)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeInternal))
}

func (s *ClientTestSuite) TestHealthCheck() {
	ctx := context.Background()
	c := NewClientWithAPI(s.api, s.cfg, s.log)

	s.api.On("BucketExists", ctx, "reports").Return(true, nil).Once()
	s.NoError(c.HealthCheck(ctx))

	s.api.On("BucketExists", ctx, "reports").Return(false, nil).Once()
	s.Error(c.HealthCheck(ctx))

	s.api.On("BucketExists", ctx, "reports").Return(false, errors.New("timeout")).Once()
	s.True(pkgerrors.IsCode(c.HealthCheck(ctx), pkgerrors.ErrCodeServiceUnavailable))
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}
