package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/playspot/internal/utils"
)

const (
	sessionLockTTL   = 10 * time.Second
	sessionLockRetry = 20 * time.Millisecond
)

// unlockScript deletes the lock key only while it still holds our owner
// token, so an expired lock taken over by another request is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisSessions stores sessions as JSON values that expire after TTL, so
// several API instances can serve the same booking attempt.
type RedisSessions struct {
	rdb    *redis.Client
	ttl    time.Duration
	clock  utils.Clock
	prefix string
}

func NewRedisSessions(rdb *redis.Client, ttl time.Duration, clock utils.Clock) *RedisSessions {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &RedisSessions{rdb: rdb, ttl: ttl, clock: clock, prefix: "booking:session:"}
}

func (r *RedisSessions) key(id string) string     { return r.prefix + id }
func (r *RedisSessions) lockKey(id string) string { return r.prefix + "lock:" + id }

func decodeSession(raw []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisSessions) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	s, err := decodeSession(raw)
	if err != nil {
		return nil, err
	}
	s.clock = r.clock
	return s, nil
}

// Save writes s under WATCH so that a concurrent writer makes either this
// save or its own fail with ErrStaleSession.
func (r *RedisSessions) Save(ctx context.Context, s *Session) error {
	if s.ID == "" {
		return errors.New("session has no id")
	}
	key := r.key(s.ID)
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get session: %w", err)
		default:
			stored, err := decodeSession(raw)
			if err != nil {
				return err
			}
			if stored.Version != s.Version {
				return ErrStaleSession
			}
		}
		next := *s
		next.Version++
		out, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		if _, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, out, r.ttl)
			return nil
		}); err != nil {
			return err
		}
		s.Version = next.Version
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStaleSession
	}
	if err != nil && !errors.Is(err, ErrStaleSession) {
		return fmt.Errorf("redis set session: %w", err)
	}
	return err
}

func (r *RedisSessions) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, r.key(id)).Err()
}

// Lock takes a short-lived lock key for id, polling until it is free or
// ctx ends.  The key expires on its own if the holder dies.
func (r *RedisSessions) Lock(ctx context.Context, id string) (func(), error) {
	key := r.lockKey(id)
	owner := uuid.NewString()
	t := time.NewTicker(sessionLockRetry)
	defer t.Stop()
	for {
		ok, err := r.rdb.SetNX(ctx, key, owner, sessionLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock session: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return func() {
		// the request context may already be done
		_ = unlockScript.Run(context.Background(), r.rdb, []string{key}, owner).Err()
	}, nil
}
