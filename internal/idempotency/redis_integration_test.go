//go:build integration

package idempotency_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fieldops/internal/idempotency"
	"fieldops/pkg/platform/sentinel"
	"fieldops/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *idempotency.Redis
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = idempotency.NewRedis(s.redis.Client, time.Minute)
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestLifecycle() {
	s.Run("fresh key reserves cleanly", func() {
		existing, err := s.store.Reserve(s.ctx, "key-1")
		s.Require().NoError(err)
		s.Empty(existing)
	})

	s.Run("in-flight reservation conflicts with empty id", func() {
		existing, err := s.store.Reserve(s.ctx, "key-1")
		s.Require().ErrorIs(err, sentinel.ErrConflict)
		s.Empty(existing)
	})

	s.Run("bound key replays the activity id", func() {
		s.Require().NoError(s.store.Bind(s.ctx, "key-1", "activity-42"))

		existing, err := s.store.Reserve(s.ctx, "key-1")
		s.Require().ErrorIs(err, sentinel.ErrConflict)
		s.Equal("activity-42", existing)
	})

	s.Run("release frees the key for a retry", func() {
		s.Require().NoError(s.store.Release(s.ctx, "key-1"))

		existing, err := s.store.Reserve(s.ctx, "key-1")
		s.Require().NoError(err)
		s.Empty(existing)
	})
}

func (s *RedisStoreSuite) TestReservationExpires() {
	short := idempotency.NewRedis(s.redis.Client, 200*time.Millisecond)

	_, err := short.Reserve(s.ctx, "key-ttl")
	s.Require().NoError(err)

	s.Eventually(func() bool {
		existing, err := short.Reserve(s.ctx, "key-ttl")
		return err == nil && existing == ""
	}, 2*time.Second, 50*time.Millisecond, "reservation should lapse after its TTL")
}
