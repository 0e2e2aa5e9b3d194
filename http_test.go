package signin_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	signin "github.com/goliatone/go-signin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func httpConfig() signin.BaseConfig {
	return signin.BaseConfig{
		SigningKey:            testSigningKey,
		ContextKey:            "jwt",
		TokenExpiration:       1,
		ExtendedTokenDuration: 48,
	}
}

type httpFixture struct {
	*gateFixture
	verifier *MockCodeVerifier
	app      *fiber.App
}

func newHTTPFixture() *httpFixture {
	f := &httpFixture{
		gateFixture: newGateFixture(),
		verifier:    new(MockCodeVerifier),
	}

	controller := signin.NewSignInController(f.gate, httpConfig(),
		signin.WithControllerLogger(nopLogger{}),
		signin.WithControllerTwoFactor(f.verifier),
		signin.WithSecureCookies(false),
	)

	f.app = fiber.New()
	signin.RegisterSignInRoutes(f.app, controller)
	return f
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	return send(t, app, req)
}

func send(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()

	res, err := app.Test(req)
	require.NoError(t, err)

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	out := map[string]any{}
	_ = json.Unmarshal(data, &out)
	return res, out
}

func sessionCookie(res *http.Response) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == "jwt" {
			return c
		}
	}
	return nil
}

func TestSignInController_Authenticated(t *testing.T) {
	f := newHTTPFixture()
	f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(activeUser(), nil)
	f.auth.On("Verify", mock.Anything, credential).Return(signin.AuthResult{Outcome: signin.AuthSucceeded, Token: "tok"}, nil)

	res, body := postJSON(t, f.app, "/sign-in", map[string]any{
		"identifier": credential.Identifier,
		"password":   credential.Secret,
	})

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "authenticated", body["status"])
	assert.Equal(t, signin.MsgAuthenticated, body["code"])
	assert.NotContains(t, body, "Token")

	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.Equal(t, "tok", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.WithinDuration(t, time.Now().Add(time.Hour), cookie.Expires, 2*time.Minute)
}

func TestSignInController_RememberMeExtendsCookie(t *testing.T) {
	f := newHTTPFixture()
	f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(activeUser(), nil)
	f.auth.On("Verify", mock.Anything, credential).Return(signin.AuthResult{Outcome: signin.AuthSucceeded, Token: "tok"}, nil)

	form := url.Values{}
	form.Set("identifier", credential.Identifier)
	form.Set("password", credential.Secret)
	form.Set("remember_me", "true")

	req := httptest.NewRequest(http.MethodPost, "/sign-in", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, _ := send(t, f.app, req)
	require.Equal(t, http.StatusOK, res.StatusCode)

	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), cookie.Expires, 2*time.Minute)
}

func TestSignInController_StatusMapping(t *testing.T) {
	suspended := activeUser()
	suspended.LoginInfo.IsSuspended = true

	tests := []struct {
		name   string
		setup  func(f *httpFixture)
		status int
		code   string
	}{
		{
			name: "not found",
			setup: func(f *httpFixture) {
				f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(nil, signin.ErrUserNotFound)
			},
			status: http.StatusUnauthorized,
			code:   signin.MsgUserNotFound,
		},
		{
			name: "suspended",
			setup: func(f *httpFixture) {
				f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(suspended, nil)
			},
			status: http.StatusForbidden,
			code:   signin.MsgAccountSuspended,
		},
		{
			name: "invalid credentials",
			setup: func(f *httpFixture) {
				f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(activeUser(), nil)
				f.auth.On("Verify", mock.Anything, credential).Return(signin.AuthResult{Outcome: signin.AuthInvalidCredentials}, nil)
			},
			status: http.StatusUnauthorized,
			code:   signin.MsgInvalidCredentials,
		},
		{
			name: "unavailable",
			setup: func(f *httpFixture) {
				f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(nil, errors.New("down"))
			},
			status: http.StatusServiceUnavailable,
			code:   signin.MsgServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHTTPFixture()
			tt.setup(f)

			res, body := postJSON(t, f.app, "/sign-in", map[string]any{
				"identifier": credential.Identifier,
				"password":   credential.Secret,
			})

			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.code, body["code"])
			assert.Nil(t, sessionCookie(res))
		})
	}
}

func TestSignInController_TwoFactorChallenge(t *testing.T) {
	f := newHTTPFixture()
	user := twoFactorUser()
	f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(user, nil)
	f.twoFactor.On("Request", mock.Anything, user).Return(signin.StatusResult{
		Status:      signin.StatusTwoFactor,
		Code:        signin.MsgTwoFactorCodeSent,
		ChallengeID: "challenge-1",
	}, nil)

	res, body := postJSON(t, f.app, "/sign-in", map[string]any{
		"identifier": credential.Identifier,
		"password":   credential.Secret,
	})

	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, "challenge-1", body["challenge_id"])
}

func TestSignInController_ValidationError(t *testing.T) {
	f := newHTTPFixture()

	res, body := postJSON(t, f.app, "/sign-in", map[string]any{"identifier": ""})

	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	validation, ok := body["validation"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, validation, "identifier")
	assert.Contains(t, validation, "password")
	f.users.AssertNotCalled(t, "GetByIdentifier", mock.Anything, mock.Anything)
}

func TestSignInController_MalformedBody(t *testing.T) {
	f := newHTTPFixture()

	req := httptest.NewRequest(http.MethodPost, "/sign-in", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")

	res, _ := send(t, f.app, req)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestSignInController_UnrecognizedErrorIs500(t *testing.T) {
	f := newHTTPFixture()
	f.users.On("GetByIdentifier", mock.Anything, credential.Identifier).Return(activeUser(), nil)
	f.auth.On("Verify", mock.Anything, credential).
		Return(signin.AuthResult{}, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	res, body := postJSON(t, f.app, "/sign-in", map[string]any{
		"identifier": credential.Identifier,
		"password":   credential.Secret,
	})

	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, signin.MsgAuthenticationError, body["code"])
	assert.Equal(t, string(signin.StatusError), body["status"])
	assert.Nil(t, sessionCookie(res))

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "10.0.0.5")
	assert.NotContains(t, string(raw), "connection refused")
}

func TestSignInController_VerifyErrorIsGeneric(t *testing.T) {
	f := newHTTPFixture()
	f.verifier.On("Verify", mock.Anything, "challenge-1", "123456").
		Return(signin.StatusResult{}, errors.New("redis: connection pool timeout"))

	res, body := postJSON(t, f.app, "/sign-in/verify", map[string]any{
		"challenge_id": "challenge-1",
		"code":         "123456",
	})

	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, signin.MsgAuthenticationError, body["code"])

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "redis")
}

func TestErrorHandler_HidesDetail(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: signin.ErrorHandler(nopLogger{}, nil),
	})
	app.Get("/internal", func(c *fiber.Ctx) error {
		return errors.New("pq: password authentication failed for user \"admin\"")
	})
	app.Get("/expired", func(c *fiber.Ctx) error {
		return signin.ErrTokenExpired
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadRequest, "unable to parse sign in payload")
	})

	res, body := send(t, app, httptest.NewRequest(http.MethodGet, "/internal", nil))
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, signin.MsgServiceUnavailable, body["code"])
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "admin")
	assert.NotContains(t, string(raw), "pq:")

	res, body = send(t, app, httptest.NewRequest(http.MethodGet, "/expired", nil))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, signin.MsgAuthenticationError, body["code"])
	assert.Equal(t, signin.TextCodeTokenExpired, body["text_code"])

	res, body = send(t, app, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "unable to parse sign in payload", body["message"])
}

func TestSignInController_VerifyCode(t *testing.T) {
	f := newHTTPFixture()
	f.verifier.On("Verify", mock.Anything, "challenge-1", "123456").Return(signin.StatusResult{
		Status: signin.StatusAuthenticated,
		Code:   signin.MsgAuthenticated,
		Token:  "tok",
	}, nil)

	res, body := postJSON(t, f.app, "/sign-in/verify", map[string]any{
		"challenge_id": "challenge-1",
		"code":         "123456",
	})

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, signin.MsgAuthenticated, body["code"])
	require.NotNil(t, sessionCookie(res))
	f.verifier.AssertExpectations(t)
}

func TestRegisterSignInRoutes_WithoutTwoFactor(t *testing.T) {
	gf := newGateFixture()
	controller := signin.NewSignInController(gf.gate, httpConfig(), signin.WithControllerLogger(nopLogger{}))

	app := fiber.New()
	signin.RegisterSignInRoutes(app, controller)

	res, _ := postJSON(t, app, "/sign-in/verify", map[string]any{"challenge_id": "x", "code": "123456"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, signin.HTTPStatus(signin.StatusResult{Status: signin.StatusAuthenticated}))
	assert.Equal(t, http.StatusAccepted, signin.HTTPStatus(signin.StatusResult{Status: signin.StatusTwoFactor}))
	assert.Equal(t, http.StatusServiceUnavailable, signin.HTTPStatus(signin.StatusResult{Status: signin.StatusUnavailable}))
	assert.Equal(t, http.StatusUnauthorized, signin.HTTPStatus(signin.StatusResult{Status: signin.StatusError, Code: signin.MsgInvalidCredentials}))
	assert.Equal(t, http.StatusForbidden, signin.HTTPStatus(signin.StatusResult{Status: signin.StatusError, Code: signin.MsgAccountSuspended}))
	assert.Equal(t, http.StatusInternalServerError, signin.HTTPStatus(signin.StatusResult{}))
}

func TestNewSignInController_PanicsWithoutGate(t *testing.T) {
	assert.Panics(t, func() { signin.NewSignInController(nil, httpConfig()) })
}
