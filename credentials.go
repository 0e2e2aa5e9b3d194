package signin

import (
	"context"
	"errors"
	"time"
)

// MaxLoginAttempts is the maximun number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// PasswordAuthenticator verifies credentials against bcrypt hashes kept in
// a CredentialStore and issues a session token on success.
type PasswordAuthenticator struct {
	store            CredentialStore
	tokens           TokenIssuer
	logger           Logger
	maxLoginAttempts int
	coolDownPeriod   string
	now              func() time.Time
}

var _ Authenticator = (*PasswordAuthenticator)(nil)

// NewPasswordAuthenticator will create a new PasswordAuthenticator
func NewPasswordAuthenticator(store CredentialStore, tokens TokenIssuer) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		store:            store,
		tokens:           tokens,
		logger:           defLogger{},
		maxLoginAttempts: MaxLoginAttempts,
		coolDownPeriod:   CoolDownPeriod,
		now:              time.Now,
	}
}

// WithLogger sets the logger used for bookkeeping failures
func (p *PasswordAuthenticator) WithLogger(l Logger) *PasswordAuthenticator {
	if l != nil {
		p.logger = l
	}
	return p
}

// WithLoginAttempts overrides the attempt limit and its cool down period
func (p *PasswordAuthenticator) WithLoginAttempts(max int, coolDown string) *PasswordAuthenticator {
	if max > 0 {
		p.maxLoginAttempts = max
	}
	if coolDown != "" {
		p.coolDownPeriod = coolDown
	}
	return p
}

// WithClock overrides the time source, used in tests
func (p *PasswordAuthenticator) WithClock(now func() time.Time) *PasswordAuthenticator {
	if now != nil {
		p.now = now
	}
	return p
}

// Verify will find the user, compare the secret to the stored hash
// and issue a session token.
func (p *PasswordAuthenticator) Verify(ctx context.Context, credential Credential) (AuthResult, error) {
	user, err := p.store.GetByIdentifier(ctx, credential.Identifier)
	if err != nil {
		if IsNotFound(err) {
			return AuthResult{Outcome: AuthInvalidCredentials}, nil
		}
		return AuthResult{}, internalError(err, "failed to retrieve user during verification")
	}

	if user == nil {
		return AuthResult{Outcome: AuthInvalidCredentials}, nil
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(p.now(), *user.LoginAttemptAt, p.coolDownPeriod)
		if err != nil {
			return AuthResult{}, internalError(err, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	//if we have too many attempts in the given window, cool off!
	if user.LoginAttempts >= p.maxLoginAttempts {
		return AuthResult{Outcome: AuthFailed, Reason: ErrTooManyLoginAttempts}, nil
	}

	if user.PasswordHash == "" {
		return AuthResult{Outcome: AuthInvalidCredentials}, nil
	}

	if err := ComparePasswordAndHash(credential.Secret, user.PasswordHash); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			return AuthResult{Outcome: AuthFailed, Reason: err}, nil
		}

		if err2 := p.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return AuthResult{}, internalError(err2, "failed to track login attempt")
		}

		return AuthResult{Outcome: AuthInvalidCredentials}, nil
	}

	if err := p.store.TrackSuccessfulLogin(ctx, user); err != nil {
		p.logger.Error("failed to track successful login: %v", err)
	}

	token, err := p.tokens.Generate(user)
	if err != nil {
		return AuthResult{Outcome: AuthFailed, Reason: err}, nil
	}

	return AuthResult{Outcome: AuthSucceeded, Token: token}, nil
}
