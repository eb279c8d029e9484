package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/utils"
)

const lockKeyPrefix = "sendqueue:drain:"

type localLocker struct {
	mu *utils.KeyedMutex
}

// NewLocalLocker serializes drains inside one process.
func NewLocalLocker() interfaces.Locker {
	return &localLocker{mu: utils.NewKeyedMutex()}
}

func (l *localLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	if !l.mu.TryLock(key) {
		return nil, false, nil
	}
	return func() { l.mu.Unlock(key) }, true, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var refreshScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

// NewRedisLocker serializes drains across replicas. The lock is renewed while held, so the ttl only bounds
// how long a crashed holder blocks the user.
func NewRedisLocker(client *redis.Client, ttl time.Duration, log logger.Logger) interfaces.Locker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisLocker{client: client, ttl: ttl, log: log}
}

func (l *redisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.New().String()
	redisKey := lockKeyPrefix + key

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(redisKey, token, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done

			// the caller's context may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Int(); err != nil {
				l.log.Warnf("failed to release drain lock %s: %v", redisKey, err)
			}
		})
	}
	return release, true, nil
}

// keepAlive pushes the expiry out every third of the ttl until stopped or until the lock belongs to someone else.
func (l *redisLocker) keepAlive(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := refreshScript.Run(ctx, l.client, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.log.Warnf("failed to refresh drain lock %s: %v", redisKey, err)
				continue
			}
			if n == 0 {
				l.log.Warnf("drain lock %s is no longer held", redisKey)
				return
			}
		}
	}
}

// NewLocker picks the redis locker when an address is configured.
func NewLocker(cfg *config.RedisConfig, log logger.Logger) (interfaces.Locker, *redis.Client) {
	if cfg == nil || cfg.Address == "" {
		return NewLocalLocker(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisLocker(client, time.Duration(cfg.LockTTL)*time.Second, log), client
}
