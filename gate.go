package signin

import (
	"context"
	"time"
)

// Gate decides what happens to a sign in attempt. Checks run in a fixed
// order and the first one that matches produces the result:
//
//  1. unknown identifier
//  2. suspended account
//  3. second factor required, handed to the TwoFactorService
//  4. credential verification by the Authenticator
type Gate struct {
	users        UserLookup
	twoFactor    TwoFactorService
	auth         Authenticator
	catalog      MessageCatalog
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// NewGate returns a new Gate. All collaborators are required
func NewGate(users UserLookup, twoFactor TwoFactorService, auth Authenticator, catalog MessageCatalog) *Gate {
	if users == nil {
		panic("Missing UserLookup in sign in gate...")
	}

	if twoFactor == nil {
		panic("Missing TwoFactorService in sign in gate...")
	}

	if auth == nil {
		panic("Missing Authenticator in sign in gate...")
	}

	if catalog == nil {
		catalog = DefaultCatalog()
	}

	return &Gate{
		users:        users,
		twoFactor:    twoFactor,
		auth:         auth,
		catalog:      catalog,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

// WithLogger sets the logger used for lookup and verification failures
func (g *Gate) WithLogger(logger Logger) *Gate {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithActivitySink configures an ActivitySink for emitting sign in events.
func (g *Gate) WithActivitySink(sink ActivitySink) *Gate {
	g.activitySink = normalizeActivitySink(sink)
	return g
}

// Evaluate runs the sign in checks for credential.
//
// The returned StatusResult always carries a status and a message code.
// A non nil error is only returned when the Authenticator failed in a way
// it could not classify, the result is then a generic error.
func (g *Gate) Evaluate(ctx context.Context, credential Credential) (StatusResult, error) {
	user, err := g.users.GetByIdentifier(ctx, credential.Identifier)
	if err != nil && !IsNotFound(err) {
		g.logger.Error("sign in lookup failed for %q: %v", credential.Identifier, err)
		res := newResult(g.catalog, StatusUnavailable, MsgServiceUnavailable)
		g.emit(ctx, ActivityEventSignInFailure, nil, credential.Identifier, res, map[string]any{
			"error": err.Error(),
		})
		return res, nil
	}

	if user == nil {
		res := newResult(g.catalog, StatusError, MsgUserNotFound)
		g.emit(ctx, ActivityEventSignInRejected, nil, credential.Identifier, res, nil)
		return res, nil
	}

	if user.IsSuspended() {
		g.logger.Warn("sign in blocked, account %s is suspended", user.ID)
		res := newResult(g.catalog, StatusError, MsgAccountSuspended)
		g.emit(ctx, ActivityEventSignInRejected, user, credential.Identifier, res, nil)
		return res, nil
	}

	if user.TwoFactorEnabled() {
		res, err := g.twoFactor.Request(ctx, user)
		g.emit(ctx, ActivityEventTwoFactorRequested, user, credential.Identifier, res, map[string]any{
			"method": user.LoginInfo.TwoFactor.Method,
		})
		return res, err
	}

	outcome, err := g.auth.Verify(ctx, credential)
	if err != nil {
		g.logger.Error("sign in authentication error for %s: %v", user.ID, err)
		res := newResult(g.catalog, StatusError, MsgAuthenticationError)
		g.emit(ctx, ActivityEventSignInFailure, user, credential.Identifier, res, map[string]any{
			"error": err.Error(),
		})
		return res, err
	}

	switch outcome.Outcome {
	case AuthSucceeded:
		res := newResult(g.catalog, StatusAuthenticated, MsgAuthenticated)
		res.Token = outcome.Token
		g.emit(ctx, ActivityEventSignInSuccess, user, credential.Identifier, res, nil)
		return res, nil
	case AuthInvalidCredentials:
		res := newResult(g.catalog, StatusError, MsgInvalidCredentials)
		g.emit(ctx, ActivityEventSignInFailure, user, credential.Identifier, res, nil)
		return res, nil
	default:
		meta := map[string]any{}
		if outcome.Reason != nil {
			g.logger.Warn("sign in failed for %s: %v", user.ID, outcome.Reason)
			meta["error"] = outcome.Reason.Error()
		}
		res := newResult(g.catalog, StatusError, MsgAuthenticationError)
		g.emit(ctx, ActivityEventSignInFailure, user, credential.Identifier, res, meta)
		return res, nil
	}
}

func (g *Gate) emit(ctx context.Context, eventType ActivityEventType, user *UserRecord, identifier string, res StatusResult, meta map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Identifier: identifier,
		Code:       res.Code,
		Metadata:   meta,
	}
	if user != nil {
		event.UserID = user.ID
	}
	recordActivity(ctx, g.activitySink, g.logger, g.now, event)
}
