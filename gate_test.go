package signin_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	signin "github.com/goliatone/go-signin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type gateFixture struct {
	users     *MockUserLookup
	twoFactor *MockTwoFactor
	auth      *MockAuthenticator
	sink      *recordingSink
	gate      *signin.Gate
}

func newGateFixture() *gateFixture {
	f := &gateFixture{
		users:     new(MockUserLookup),
		twoFactor: new(MockTwoFactor),
		auth:      new(MockAuthenticator),
		sink:      &recordingSink{},
	}
	f.gate = signin.NewGate(f.users, f.twoFactor, f.auth, nil).
		WithLogger(nopLogger{}).
		WithActivitySink(f.sink)
	return f
}

func (f *gateFixture) assertExpectations(t *testing.T) {
	f.users.AssertExpectations(t)
	f.twoFactor.AssertExpectations(t)
	f.auth.AssertExpectations(t)
}

var credential = signin.Credential{Identifier: "jane@example.com", Secret: "s3cret"}

func activeUser() *signin.UserRecord {
	return &signin.UserRecord{ID: "user-1", Email: "jane@example.com", Role: signin.RoleMember}
}

func TestGate_UserNotFound(t *testing.T) {
	f := newGateFixture()
	f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).
		Return(nil, fmt.Errorf("%w: jane@example.com", signin.ErrUserNotFound))

	res, err := f.gate.Evaluate(context.Background(), credential)
	require.NoError(t, err)

	assert.Equal(t, signin.StatusError, res.Status)
	assert.Equal(t, signin.MsgUserNotFound, res.Code)
	assert.Equal(t, signin.DefaultCatalog().Lookup(signin.MsgUserNotFound), res.Message)

	f.auth.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	f.twoFactor.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)
	f.assertExpectations(t)
	assert.Equal(t, []signin.ActivityEventType{signin.ActivityEventSignInRejected}, f.sink.Types())
}

func TestGate_NilUserIsNotFound(t *testing.T) {
	f := newGateFixture()
	f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(nil, nil)

	res, err := f.gate.Evaluate(context.Background(), credential)
	require.NoError(t, err)
	assert.Equal(t, signin.MsgUserNotFound, res.Code)
	f.auth.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestGate_Suspended(t *testing.T) {
	f := newGateFixture()
	user := activeUser()
	user.LoginInfo.IsSuspended = true
	f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(user, nil)

	res, err := f.gate.Evaluate(context.Background(), credential)
	require.NoError(t, err)

	assert.Equal(t, signin.StatusError, res.Status)
	assert.Equal(t, signin.MsgAccountSuspended, res.Code)

	f.auth.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	f.twoFactor.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestGate_SuspendedWinsOverTwoFactor(t *testing.T) {
	f := newGateFixture()
	user := activeUser()
	user.LoginInfo.IsSuspended = true
	user.LoginInfo.TwoFactor = signin.TwoFactorSettings{IsEnabled: true, Method: signin.TwoFactorEmail}
	f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(user, nil)

	res, err := f.gate.Evaluate(context.Background(), credential)
	require.NoError(t, err)

	assert.Equal(t, signin.MsgAccountSuspended, res.Code)
	f.twoFactor.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)
	f.auth.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestGate_TwoFactorPassThrough(t *testing.T) {
	f := newGateFixture()
	user := activeUser()
	user.LoginInfo.TwoFactor = signin.TwoFactorSettings{IsEnabled: true, Method: signin.TwoFactorEmail}
	f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(user, nil)

	expected := signin.StatusResult{
		Status:      signin.StatusTwoFactor,
		Code:        "X999",
		Message:     "custom text from the second factor",
		ChallengeID: "challenge-1",
	}
	f.twoFactor.On("Request", mock.Anything, user).Return(expected, nil).Once()

	res, err := f.gate.Evaluate(context.Background(), credential)
	require.NoError(t, err)

	assert.Equal(t, expected, res)
	f.auth.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	f.assertExpectations(t)
	assert.Equal(t, []signin.ActivityEventType{signin.ActivityEventTwoFactorRequested}, f.sink.Types())
}

func TestGate_TwoFactorErrorPassThrough(t *testing.T) {
	f := newGateFixture()
	user := activeUser()
	user.LoginInfo.TwoFactor.IsEnabled = true
	f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(user, nil)

	boom := errors.New("second factor exploded")
	f.twoFactor.On("Request", mock.Anything, user).Return(signin.StatusResult{}, boom)

	_, err := f.gate.Evaluate(context.Background(), credential)
	assert.ErrorIs(t, err, boom)
	f.auth.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestGate_AuthenticationOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		result signin.AuthResult
		status signin.Status
		code   string
		token  string
		event  signin.ActivityEventType
	}{
		{
			name:   "succeeded",
			result: signin.AuthResult{Outcome: signin.AuthSucceeded, Token: "tok"},
			status: signin.StatusAuthenticated,
			code:   signin.MsgAuthenticated,
			token:  "tok",
			event:  signin.ActivityEventSignInSuccess,
		},
		{
			name:   "invalid credentials",
			result: signin.AuthResult{Outcome: signin.AuthInvalidCredentials},
			status: signin.StatusError,
			code:   signin.MsgInvalidCredentials,
			event:  signin.ActivityEventSignInFailure,
		},
		{
			name:   "other recognized failure",
			result: signin.AuthResult{Outcome: signin.AuthFailed, Reason: signin.ErrTooManyLoginAttempts},
			status: signin.StatusError,
			code:   signin.MsgAuthenticationError,
			event:  signin.ActivityEventSignInFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture()
			f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(activeUser(), nil)
			f.auth.On("Verify", mock.Anything, credential).Return(tt.result, nil).Once()

			res, err := f.gate.Evaluate(context.Background(), credential)
			require.NoError(t, err)

			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.code, res.Code)
			assert.Equal(t, tt.token, res.Token)
			assert.NotEmpty(t, res.Message)
			f.twoFactor.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)
			f.assertExpectations(t)
			assert.Equal(t, []signin.ActivityEventType{tt.event}, f.sink.Types())
		})
	}
}

func TestGate_UnrecognizedAuthenticationError(t *testing.T) {
	f := newGateFixture()
	f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(activeUser(), nil)

	boom := errors.New("directory timeout")
	f.auth.On("Verify", mock.Anything, credential).Return(signin.AuthResult{}, boom)

	res, err := f.gate.Evaluate(context.Background(), credential)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, signin.StatusError, res.Status)
	assert.Equal(t, signin.MsgAuthenticationError, res.Code)
}

func TestGate_LookupFailureIsUnavailable(t *testing.T) {
	f := newGateFixture()
	f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).
		Return(nil, fmt.Errorf("%w: bad document", signin.ErrInvalidUserRecord))

	res, err := f.gate.Evaluate(context.Background(), credential)
	require.NoError(t, err)

	assert.Equal(t, signin.StatusUnavailable, res.Status)
	assert.Equal(t, signin.MsgServiceUnavailable, res.Code)
	f.auth.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	f.twoFactor.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)
}

func TestGate_RepeatedRejectionsAreIdentical(t *testing.T) {
	f := newGateFixture()
	suspended := activeUser()
	suspended.Email = "suspended@example.com"
	suspended.LoginInfo.IsSuspended = true

	f.users.On("GetByIdentifier", mock.Anything, "ghost@example.com").Return(nil, signin.ErrUserNotFound)
	f.users.On("GetByIdentifier", mock.Anything, "suspended@example.com").Return(suspended, nil)

	for _, id := range []string{"ghost@example.com", "suspended@example.com"} {
		cred := signin.Credential{Identifier: id, Secret: "x"}
		first, err := f.gate.Evaluate(context.Background(), cred)
		require.NoError(t, err)
		second, err := f.gate.Evaluate(context.Background(), cred)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}

	f.auth.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestGate_CustomCatalog(t *testing.T) {
	users := new(MockUserLookup)
	users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(nil, signin.ErrUserNotFound)

	catalog := signin.NewCatalog(map[string]string{signin.MsgUserNotFound: "nope"})
	gate := signin.NewGate(users, new(MockTwoFactor), new(MockAuthenticator), catalog)

	res, err := gate.Evaluate(context.Background(), credential)
	require.NoError(t, err)
	assert.Equal(t, "nope", res.Message)
}

func TestNewGate_PanicsOnMissingCollaborators(t *testing.T) {
	assert.Panics(t, func() { signin.NewGate(nil, new(MockTwoFactor), new(MockAuthenticator), nil) })
	assert.Panics(t, func() { signin.NewGate(new(MockUserLookup), nil, new(MockAuthenticator), nil) })
	assert.Panics(t, func() { signin.NewGate(new(MockUserLookup), new(MockTwoFactor), nil, nil) })
}

func TestGate_SinkErrorsAreIgnored(t *testing.T) {
	users := new(MockUserLookup)
	users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(nil, signin.ErrUserNotFound)

	gate := signin.NewGate(users, new(MockTwoFactor), new(MockAuthenticator), nil).
		WithLogger(nopLogger{}).
		WithActivitySink(signin.ActivitySinkFunc(func(context.Context, signin.ActivityEvent) error {
			return errors.New("sink down")
		}))

	res, err := gate.Evaluate(context.Background(), credential)
	require.NoError(t, err)
	assert.Equal(t, signin.MsgUserNotFound, res.Code)
}
