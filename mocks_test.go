package signin_test

import (
	"context"
	"sync"

	signin "github.com/goliatone/go-signin"
	"github.com/stretchr/testify/mock"
)

// MockUserLookup implements signin.UserLookup and signin.CredentialStore
type MockUserLookup struct {
	mock.Mock
}

func (m *MockUserLookup) GetByIdentifier(ctx context.Context, identifier string) (*signin.UserRecord, error) {
	args := m.Called(ctx, identifier)
	user, _ := args.Get(0).(*signin.UserRecord)
	return user, args.Error(1)
}

func (m *MockUserLookup) TrackAttemptedLogin(ctx context.Context, user *signin.UserRecord) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserLookup) TrackSuccessfulLogin(ctx context.Context, user *signin.UserRecord) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockTwoFactor implements signin.TwoFactorService
type MockTwoFactor struct {
	mock.Mock
}

func (m *MockTwoFactor) Request(ctx context.Context, user *signin.UserRecord) (signin.StatusResult, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(signin.StatusResult), args.Error(1)
}

// MockAuthenticator implements signin.Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Verify(ctx context.Context, credential signin.Credential) (signin.AuthResult, error) {
	args := m.Called(ctx, credential)
	return args.Get(0).(signin.AuthResult), args.Error(1)
}

// MockCodeVerifier implements signin.CodeVerifier
type MockCodeVerifier struct {
	mock.Mock
}

func (m *MockCodeVerifier) Verify(ctx context.Context, challengeID, code string) (signin.StatusResult, error) {
	args := m.Called(ctx, challengeID, code)
	return args.Get(0).(signin.StatusResult), args.Error(1)
}

// MockTokenIssuer implements signin.TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) Generate(user *signin.UserRecord) (string, error) {
	args := m.Called(user)
	return args.String(0), args.Error(1)
}

// MockNotifier implements signin.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendCode(ctx context.Context, user *signin.UserRecord, method, code string) error {
	args := m.Called(ctx, user, method, code)
	return args.Error(0)
}

type recordingSink struct {
	mu     sync.Mutex
	events []signin.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event signin.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []signin.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]signin.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
