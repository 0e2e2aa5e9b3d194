package signin

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Credential is the identifier and secret pair submitted on sign in.
// It is never persisted.
type Credential struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"-"`
}

// UserLookup resolves user records from the user directory.
// A missing record is reported as ErrUserNotFound, not as a nil error.
type UserLookup interface {
	GetByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)
}

// CredentialStore is the directory view the password authenticator needs
type CredentialStore interface {
	UserLookup
	TrackAttemptedLogin(ctx context.Context, user *UserRecord) error
	TrackSuccessfulLogin(ctx context.Context, user *UserRecord) error
}

// TwoFactorService owns the second factor flow. The gate returns whatever
// Request produces without looking at it.
type TwoFactorService interface {
	Request(ctx context.Context, user *UserRecord) (StatusResult, error)
}

// CodeVerifier completes a pending second factor challenge
type CodeVerifier interface {
	Verify(ctx context.Context, challengeID, code string) (StatusResult, error)
}

// Authenticator verifies credentials. Recognized failures are reported in the
// AuthResult outcome, a non nil error means the failure was not recognized.
type Authenticator interface {
	Verify(ctx context.Context, credential Credential) (AuthResult, error)
}

// MessageCatalog maps stable message codes to user facing text
type MessageCatalog interface {
	Lookup(code string) string
}

// TokenIssuer mints the session token handed out after a successful sign in
type TokenIssuer interface {
	Generate(user *UserRecord) (string, error)
}

// AuthOutcome discriminates the result of a credential verification
type AuthOutcome int

const (
	// AuthFailed is a recognized failure that is not a credential mismatch
	AuthFailed AuthOutcome = iota
	// AuthSucceeded means the credential matched and a session was issued
	AuthSucceeded
	// AuthInvalidCredentials means the identifier or secret did not match
	AuthInvalidCredentials
)

func (o AuthOutcome) String() string {
	switch o {
	case AuthSucceeded:
		return "succeeded"
	case AuthInvalidCredentials:
		return "invalid_credentials"
	default:
		return "failed"
	}
}

// AuthResult is returned by Authenticator.Verify
type AuthResult struct {
	Outcome AuthOutcome
	Token   string
	// Reason carries the detail of an AuthFailed outcome. It is logged and
	// never shown to the caller.
	Reason error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SIGNIN "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SIGNIN "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SIGNIN "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SIGNIN "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
