package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// Manager groups the repositories that share a database handle
type Manager struct {
	db    *bun.DB
	users *Users
}

// NewManager returns a Manager for db
func NewManager(db *bun.DB) *Manager {
	return &Manager{
		db:    db,
		users: NewUsers(db),
	}
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// Migrate creates missing tables
func (m *Manager) Migrate(ctx context.Context) error {
	return m.users.Migrate(ctx)
}

// RunInTx runs f inside a transaction, the Users handed to f are bound to it
func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, users *Users) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
			return f(ctx, m.users.bind(tx))
		})
	}
}

func (m *Manager) Users() *Users {
	return m.users
}
