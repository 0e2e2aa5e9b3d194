package signin

import "context"

// Notifier delivers one time codes to the user
type Notifier interface {
	SendCode(ctx context.Context, user *UserRecord, method, code string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, user *UserRecord, method, code string) error

// SendCode implements Notifier.
func (f NotifierFunc) SendCode(ctx context.Context, user *UserRecord, method, code string) error {
	if f == nil {
		return nil
	}
	return f(ctx, user, method, code)
}

// LogNotifier writes codes to a Logger. Meant for local development only.
type LogNotifier struct {
	Logger Logger
}

func (n LogNotifier) SendCode(_ context.Context, user *UserRecord, method, code string) error {
	logger := n.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("two factor code for %s via %s: %s", user.Identifier(), method, code)
	return nil
}
