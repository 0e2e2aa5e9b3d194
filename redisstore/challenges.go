// Package redisstore keeps two factor challenges in Redis so they survive
// restarts and are shared between instances.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	signin "github.com/goliatone/go-signin"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is used when no key prefix is configured
const DefaultPrefix = "signin:2fa"

const maxRetries = 4

// Challenges is a signin.ChallengeStore backed by Redis
type Challenges struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ signin.ChallengeStore = (*Challenges)(nil)

// NewChallenges returns a store using client, keys are namespaced by prefix
func NewChallenges(client redis.UniversalClient, prefix string) *Challenges {
	if client == nil {
		panic("Missing redis client in challenge store...")
	}

	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Challenges{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the time source, used in tests
func (s *Challenges) WithClock(now func() time.Time) *Challenges {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Challenges) key(id string) string {
	return s.prefix + ":" + id
}

func (s *Challenges) Save(ctx context.Context, challenge signin.Challenge, ttl time.Duration) error {
	now := s.now()

	if ttl > 0 {
		expiresAt := now.Add(ttl)
		if challenge.ExpiresAt.IsZero() || expiresAt.Before(challenge.ExpiresAt) {
			challenge.ExpiresAt = expiresAt
		}
	}

	keyTTL := challenge.ExpiresAt.Sub(now)
	if keyTTL <= 0 {
		return signin.ErrChallengeExpired
	}

	data, err := json.Marshal(challenge)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(challenge.ID), data, keyTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", signin.ErrChallengeBackend, err)
	}

	return nil
}

func (s *Challenges) Get(ctx context.Context, id string) (signin.Challenge, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return signin.Challenge{}, signin.ErrChallengeNotFound
		}
		return signin.Challenge{}, fmt.Errorf("%w: %v", signin.ErrChallengeBackend, err)
	}

	challenge, err := decode(data)
	if err != nil {
		return signin.Challenge{}, err
	}

	if challenge.Expired(s.now()) {
		_, _ = s.redis.Del(ctx, s.key(id)).Result()
		return signin.Challenge{}, signin.ErrChallengeExpired
	}

	return challenge, nil
}

// RecordFailure increments the attempt counter under WATCH so concurrent
// guesses are all counted.
func (s *Challenges) RecordFailure(ctx context.Context, id string, maxAttempts int) (bool, error) {
	key := s.key(id)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			challenge, err := decode(data)
			if err != nil {
				return err
			}

			now := s.now()
			if challenge.Expired(now) {
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				}); err != nil {
					return err
				}
				return signin.ErrChallengeExpired
			}

			challenge.Attempts++
			if challenge.Attempts >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := json.Marshal(challenge)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, challenge.ExpiresAt.Sub(now))
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return false, signin.ErrChallengeNotFound
			case errors.Is(err, signin.ErrChallengeExpired):
				return false, err
			default:
				return false, fmt.Errorf("%w: %v", signin.ErrChallengeBackend, err)
			}
		}

		return exceeded, nil
	}

	return false, fmt.Errorf("%w: too many concurrent updates", signin.ErrChallengeBackend)
}

func (s *Challenges) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", signin.ErrChallengeBackend, err)
	}
	return n > 0, nil
}

func decode(data []byte) (signin.Challenge, error) {
	var challenge signin.Challenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return signin.Challenge{}, fmt.Errorf("%w: corrupt challenge: %v", signin.ErrChallengeBackend, err)
	}
	return challenge, nil
}
