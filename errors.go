package signin

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to the categorized errors
const (
	TextCodeUserNotFound       = "SIGNIN_USER_NOT_FOUND"
	TextCodeInvalidUserRecord  = "SIGNIN_INVALID_USER_RECORD"
	TextCodeTooManyAttempts    = "SIGNIN_TOO_MANY_ATTEMPTS"
	TextCodeTokenExpired       = "SIGNIN_TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "SIGNIN_TOKEN_MALFORMED"
	TextCodeChallengeNotFound  = "SIGNIN_CHALLENGE_NOT_FOUND"
	TextCodeChallengeExpired   = "SIGNIN_CHALLENGE_EXPIRED"
	TextCodeChallengeBackend   = "SIGNIN_CHALLENGE_BACKEND"
	TextCodeAuthenticationFail = "SIGNIN_AUTHENTICATION_FAILED"
)

// ErrUserNotFound is returned by a UserLookup when no record matches
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidUserRecord is returned when a directory document fails decoding
var ErrInvalidUserRecord = goerrors.New("invalid user record", goerrors.CategoryInternal).
	WithTextCode(TextCodeInvalidUserRecord).
	WithCode(goerrors.CodeInternal)

// ErrMismatchedHashAndPassword is returned when the password does not match
var ErrMismatchedHashAndPassword = errors.New("identity auth: password mismatch")

// ErrTooManyLoginAttempts is returned while the login cool down is active
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryAuth).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty")

// ErrTokenExpired is returned for expired session tokens
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that fail to parse or verify
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrChallengeNotFound is returned when a two factor challenge does not exist
var ErrChallengeNotFound = goerrors.New("two factor challenge not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeChallengeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrChallengeExpired is returned when a two factor challenge is past its TTL
var ErrChallengeExpired = goerrors.New("two factor challenge expired", goerrors.CategoryBadInput).
	WithTextCode(TextCodeChallengeExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrChallengeBackend wraps store failures for two factor challenges
var ErrChallengeBackend = goerrors.New("two factor challenge backend unavailable", goerrors.CategoryInternal).
	WithTextCode(TextCodeChallengeBackend).
	WithCode(goerrors.CodeInternal)

// IsNotFound reports whether err means the user does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// internalError categorizes an unrecognized failure, keeping err as source
func internalError(err error, message string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(goerrors.CodeInternal)
}
