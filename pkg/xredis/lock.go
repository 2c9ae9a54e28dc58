package xredis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"mdstream.com/pkg/logger"
)

// renewScript extends the lease only if this node still holds it.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type leaseClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// LeaderLock is a lease in redis: one node at a time holds key for ttl and
// keeps renewing it while alive.
type LeaderLock struct {
	rdb leaseClient
	id  string
}

func NewLeaderLock(rdb leaseClient) *LeaderLock {
	return &LeaderLock{rdb: rdb, id: fmt.Sprintf("%s-%d", uuid.NewString(), time.Now().UnixNano())}
}

func (l *LeaderLock) ID() string { return l.id }

// TryAcquireMaster takes the lease if free, or renews it if already ours.
func (l *LeaderLock) TryAcquireMaster(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := l.rdb.SetNX(ctx, key, l.id, ttl).Result()
	if err != nil {
		logger.Warn(ctx, "leader lock", zap.String("key", key), zap.Error(err))
		return false
	}
	if ok {
		return true
	}
	n, err := renewScript.Run(ctx, l.rdb, []string{key}, l.id, ttl.Milliseconds()).Int64()
	return err == nil && n == 1
}
