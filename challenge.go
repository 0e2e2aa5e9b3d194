package signin

import (
	"context"
	"sync"
	"time"
)

// Challenge is a pending second factor verification. Only the hash of the
// one time code is kept.
type Challenge struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Identifier string    `json:"identifier"`
	CodeHash   string    `json:"code_hash"`
	ExpiresAt  time.Time `json:"expires_at"`
	Attempts   int       `json:"attempts"`
}

// Expired reports whether the challenge TTL elapsed at now
func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ChallengeStore persists two factor challenges
type ChallengeStore interface {
	Save(ctx context.Context, challenge Challenge, ttl time.Duration) error
	// Get returns ErrChallengeNotFound or ErrChallengeExpired
	Get(ctx context.Context, id string) (Challenge, error)
	// RecordFailure increments the attempt counter and reports whether
	// maxAttempts was reached, in which case the challenge is removed.
	RecordFailure(ctx context.Context, id string, maxAttempts int) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// MemoryChallengeStore is a process local ChallengeStore
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
	now        func() time.Time
}

var _ ChallengeStore = (*MemoryChallengeStore)(nil)

// NewMemoryChallengeStore returns an empty store
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: map[string]Challenge{},
		now:        time.Now,
	}
}

// WithClock overrides the time source, used in tests
func (s *MemoryChallengeStore) WithClock(now func() time.Time) *MemoryChallengeStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *MemoryChallengeStore) Save(_ context.Context, challenge Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl > 0 {
		expiresAt := s.now().Add(ttl)
		if challenge.ExpiresAt.IsZero() || expiresAt.Before(challenge.ExpiresAt) {
			challenge.ExpiresAt = expiresAt
		}
	}

	s.challenges[challenge.ID] = challenge
	return nil
}

func (s *MemoryChallengeStore) Get(_ context.Context, id string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[id]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}

	if ch.Expired(s.now()) {
		delete(s.challenges, id)
		return Challenge{}, ErrChallengeExpired
	}

	return ch, nil
}

func (s *MemoryChallengeStore) RecordFailure(_ context.Context, id string, maxAttempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[id]
	if !ok {
		return false, ErrChallengeNotFound
	}

	if ch.Expired(s.now()) {
		delete(s.challenges, id)
		return false, ErrChallengeExpired
	}

	ch.Attempts++
	if ch.Attempts >= maxAttempts {
		delete(s.challenges, id)
		return true, nil
	}

	s.challenges[id] = ch
	return false, nil
}

func (s *MemoryChallengeStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.challenges[id]
	delete(s.challenges, id)
	return ok, nil
}
