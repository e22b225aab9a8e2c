//go:build integration

package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycflow/internal/cases/lock"
	id "kycflow/pkg/domain"
	"kycflow/pkg/testutil/containers"
)

type RedisLockSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *lock.Redis
}

func TestRedisLockSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockSuite))
}

func (s *RedisLockSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.locker = lock.NewRedis(s.redis.Client, lock.WithTTL(time.Minute))
}

func (s *RedisLockSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockSuite) TestConflictAndRelease() {
	ctx := context.Background()
	caseID := id.NewCaseID()

	release, err := s.locker.TryAcquire(ctx, caseID)
	s.Require().NoError(err)

	_, err = s.locker.TryAcquire(ctx, caseID)
	s.True(lock.IsConflict(err))

	release()
	again, err := s.locker.TryAcquire(ctx, caseID)
	s.Require().NoError(err)
	again()
}

func (s *RedisLockSuite) TestLeaseExpires() {
	ctx := context.Background()
	caseID := id.NewCaseID()
	short := lock.NewRedis(s.redis.Client, lock.WithTTL(200*time.Millisecond))

	_, err := short.TryAcquire(ctx, caseID)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		release, err := short.TryAcquire(ctx, caseID)
		if err != nil {
			return false
		}
		release()
		return true
	}, 3*time.Second, 50*time.Millisecond)
}

func (s *RedisLockSuite) TestStaleReleaseDoesNotDropNewHolder() {
	ctx := context.Background()
	caseID := id.NewCaseID()
	short := lock.NewRedis(s.redis.Client, lock.WithTTL(100*time.Millisecond))

	staleRelease, err := short.TryAcquire(ctx, caseID)
	s.Require().NoError(err)
	time.Sleep(250 * time.Millisecond)

	release, err := s.locker.TryAcquire(ctx, caseID)
	s.Require().NoError(err)
	defer release()

	staleRelease()
	_, err = s.locker.TryAcquire(ctx, caseID)
	s.True(lock.IsConflict(err), "stale holder must not release the new lease")
}
