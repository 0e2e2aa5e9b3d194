package signin

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Two factor defaults
const (
	DefaultCodeLength       = 6
	DefaultCodeTTL          = 10 * time.Minute
	DefaultMaxCodeAttempts  = 5
	defaultTwoFactorChannel = TwoFactorEmail
)

// CodeTwoFactor is a TwoFactorService that sends a numeric one time code
// and keeps a Challenge until the code is verified, expires, or is
// guessed wrong too many times.
type CodeTwoFactor struct {
	store        ChallengeStore
	notifier     Notifier
	users        UserLookup
	tokens       TokenIssuer
	catalog      MessageCatalog
	logger       Logger
	activitySink ActivitySink
	codeLength   int
	ttl          time.Duration
	maxAttempts  int
	now          func() time.Time
	generateCode func(length int) (string, error)
}

var (
	_ TwoFactorService = (*CodeTwoFactor)(nil)
	_ CodeVerifier     = (*CodeTwoFactor)(nil)
)

// NewCodeTwoFactor returns a CodeTwoFactor with default settings
func NewCodeTwoFactor(store ChallengeStore, notifier Notifier, users UserLookup, tokens TokenIssuer, catalog MessageCatalog) *CodeTwoFactor {
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	if notifier == nil {
		notifier = LogNotifier{}
	}

	return &CodeTwoFactor{
		store:        store,
		notifier:     notifier,
		users:        users,
		tokens:       tokens,
		catalog:      catalog,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		codeLength:   DefaultCodeLength,
		ttl:          DefaultCodeTTL,
		maxAttempts:  DefaultMaxCodeAttempts,
		now:          time.Now,
		generateCode: randomDigits,
	}
}

// WithLogger sets the logger used for store and delivery failures
func (t *CodeTwoFactor) WithLogger(logger Logger) *CodeTwoFactor {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// WithActivitySink configures an ActivitySink for emitting verification events.
func (t *CodeTwoFactor) WithActivitySink(sink ActivitySink) *CodeTwoFactor {
	t.activitySink = normalizeActivitySink(sink)
	return t
}

// WithCodePolicy overrides code length, TTL, and allowed attempts.
// Zero values keep the current setting.
func (t *CodeTwoFactor) WithCodePolicy(length int, ttl time.Duration, maxAttempts int) *CodeTwoFactor {
	if length > 0 {
		t.codeLength = length
	}
	if ttl > 0 {
		t.ttl = ttl
	}
	if maxAttempts > 0 {
		t.maxAttempts = maxAttempts
	}
	return t
}

// WithClock overrides the time source, used in tests
func (t *CodeTwoFactor) WithClock(now func() time.Time) *CodeTwoFactor {
	if now != nil {
		t.now = now
	}
	return t
}

// WithCodeGenerator overrides how codes are generated, used in tests
func (t *CodeTwoFactor) WithCodeGenerator(gen func(length int) (string, error)) *CodeTwoFactor {
	if gen != nil {
		t.generateCode = gen
	}
	return t
}

// Request issues a challenge for user and delivers the code
func (t *CodeTwoFactor) Request(ctx context.Context, user *UserRecord) (StatusResult, error) {
	code, err := t.generateCode(t.codeLength)
	if err != nil {
		t.logger.Error("two factor code generation failed: %v", err)
		return newResult(t.catalog, StatusUnavailable, MsgServiceUnavailable), nil
	}

	challenge := Challenge{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Identifier: user.Identifier(),
		ExpiresAt:  t.now().Add(t.ttl),
	}
	challenge.CodeHash = hashCode(challenge.ID, code)

	if err := t.store.Save(ctx, challenge, t.ttl); err != nil {
		t.logger.Error("two factor challenge save failed for %s: %v", user.ID, err)
		return newResult(t.catalog, StatusUnavailable, MsgServiceUnavailable), nil
	}

	method := user.LoginInfo.TwoFactor.Method
	if method == "" {
		method = defaultTwoFactorChannel
	}

	if err := t.notifier.SendCode(ctx, user, method, code); err != nil {
		t.logger.Error("two factor code delivery failed for %s: %v", user.ID, err)
		if _, derr := t.store.Delete(ctx, challenge.ID); derr != nil {
			t.logger.Warn("two factor challenge cleanup failed: %v", derr)
		}
		return newResult(t.catalog, StatusUnavailable, MsgServiceUnavailable), nil
	}

	res := newResult(t.catalog, StatusTwoFactor, MsgTwoFactorCodeSent)
	res.ChallengeID = challenge.ID
	return res, nil
}

// Verify checks code against the challenge and issues a session token
// when it matches.
func (t *CodeTwoFactor) Verify(ctx context.Context, challengeID, code string) (StatusResult, error) {
	challenge, err := t.store.Get(ctx, challengeID)
	if err != nil {
		return t.challengeError(ctx, challengeID, err), nil
	}

	if subtle.ConstantTimeCompare([]byte(hashCode(challenge.ID, code)), []byte(challenge.CodeHash)) != 1 {
		exceeded, err := t.store.RecordFailure(ctx, challenge.ID, t.maxAttempts)
		if err != nil {
			return t.challengeError(ctx, challengeID, err), nil
		}

		res := newResult(t.catalog, StatusError, MsgTwoFactorCodeInvalid)
		if exceeded {
			res = newResult(t.catalog, StatusError, MsgTwoFactorExceeded)
		}
		t.emit(ctx, ActivityEventTwoFactorFailure, challenge, res)
		return res, nil
	}

	user, err := t.users.GetByIdentifier(ctx, challenge.Identifier)
	if err != nil && !IsNotFound(err) {
		t.logger.Error("two factor user lookup failed for %q: %v", challenge.Identifier, err)
		return newResult(t.catalog, StatusUnavailable, MsgServiceUnavailable), nil
	}

	if user == nil {
		t.discard(ctx, challenge)
		return newResult(t.catalog, StatusError, MsgUserNotFound), nil
	}

	if user.ID != challenge.UserID {
		t.logger.Warn("two factor challenge %s does not belong to %s", challenge.ID, user.ID)
		t.discard(ctx, challenge)
		return newResult(t.catalog, StatusError, MsgTwoFactorExpired), nil
	}

	if user.IsSuspended() {
		t.discard(ctx, challenge)
		res := newResult(t.catalog, StatusError, MsgAccountSuspended)
		t.emit(ctx, ActivityEventTwoFactorFailure, challenge, res)
		return res, nil
	}

	deleted, err := t.store.Delete(ctx, challenge.ID)
	if err != nil {
		t.logger.Error("two factor challenge delete failed: %v", err)
		return newResult(t.catalog, StatusUnavailable, MsgServiceUnavailable), nil
	}

	// a concurrent verification already consumed the code
	if !deleted {
		return newResult(t.catalog, StatusError, MsgTwoFactorExpired), nil
	}

	token, err := t.tokens.Generate(user)
	if err != nil {
		t.logger.Error("two factor token generation failed for %s: %v", user.ID, err)
		return newResult(t.catalog, StatusError, MsgAuthenticationError), nil
	}

	res := newResult(t.catalog, StatusAuthenticated, MsgAuthenticated)
	res.Token = token
	t.emit(ctx, ActivityEventTwoFactorVerified, challenge, res)
	return res, nil
}

// discard removes a challenge that can no longer succeed
func (t *CodeTwoFactor) discard(ctx context.Context, challenge Challenge) {
	if _, err := t.store.Delete(ctx, challenge.ID); err != nil {
		t.logger.Warn("two factor challenge cleanup failed: %v", err)
	}
}

func (t *CodeTwoFactor) challengeError(ctx context.Context, challengeID string, err error) StatusResult {
	switch {
	case errors.Is(err, ErrChallengeNotFound), errors.Is(err, ErrChallengeExpired):
		res := newResult(t.catalog, StatusError, MsgTwoFactorExpired)
		t.emit(ctx, ActivityEventTwoFactorFailure, Challenge{ID: challengeID}, res)
		return res
	default:
		t.logger.Error("two factor challenge store error: %v", err)
		return newResult(t.catalog, StatusUnavailable, MsgServiceUnavailable)
	}
}

func (t *CodeTwoFactor) emit(ctx context.Context, eventType ActivityEventType, challenge Challenge, res StatusResult) {
	recordActivity(ctx, t.activitySink, t.logger, t.now, ActivityEvent{
		EventType:  eventType,
		UserID:     challenge.UserID,
		Identifier: challenge.Identifier,
		Code:       res.Code,
		Metadata: map[string]any{
			"challenge_id": challenge.ID,
		},
	})
}

func hashCode(challengeID, code string) string {
	sum := sha256.Sum256([]byte(challengeID + ":" + code))
	return hex.EncodeToString(sum[:])
}

func randomDigits(length int) (string, error) {
	if length <= 0 || length > 18 {
		return "", fmt.Errorf("invalid code length %d", length)
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", length, n), nil
}
