// Package pgstore keeps user records as JSON documents in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	signin "github.com/goliatone/go-signin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of *pgxpool.Pool used by Documents
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

const schema = `CREATE TABLE IF NOT EXISTS user_documents (
	id UUID PRIMARY KEY,
	email TEXT UNIQUE,
	username TEXT UNIQUE,
	doc JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// an identifier can match several rows, id wins over email and email
// over username
const selectByIdentifier = `SELECT id::text, doc
	FROM user_documents
	WHERE id::text = $1 OR lower(email) = lower($1) OR username = $1
	ORDER BY CASE
		WHEN id::text = $1 THEN 0
		WHEN lower(email) = lower($1) THEN 1
		ELSE 2
	END
	LIMIT 1`

const upsertDocument = `INSERT INTO user_documents (id, email, username, doc)
	VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)
	ON CONFLICT (id) DO UPDATE
	SET email = EXCLUDED.email, username = EXCLUDED.username, doc = EXCLUDED.doc, updated_at = NOW()`

const trackAttempt = `UPDATE user_documents
	SET doc = doc || jsonb_build_object('loginAttempts', $2::int, 'loginAttemptAt', $3::timestamptz),
		updated_at = NOW()
	WHERE id = $1`

const trackSuccess = `UPDATE user_documents
	SET doc = (doc - 'loginAttemptAt') || jsonb_build_object('loginAttempts', 0, 'loggedInAt', $2::timestamptz),
		updated_at = NOW()
	WHERE id = $1`

// Documents is a UserLookup and CredentialStore over user_documents.
// Rows whose document does not decode into a valid record are reported
// as signin.ErrInvalidUserRecord.
type Documents struct {
	db  DB
	now func() time.Time
}

var _ signin.CredentialStore = (*Documents)(nil)

func NewDocuments(db DB) *Documents {
	return &Documents{db: db, now: time.Now}
}

// WithClock overrides the time source, used in tests
func (d *Documents) WithClock(now func() time.Time) *Documents {
	if now != nil {
		d.now = now
	}
	return d
}

// NewPool opens and pings a connection pool
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

// Migrate creates the user_documents table if needed
func (d *Documents) Migrate(ctx context.Context) error {
	_, err := d.db.Exec(ctx, schema)
	return err
}

func (d *Documents) GetByIdentifier(ctx context.Context, identifier string) (*signin.UserRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, signin.ErrUserNotFound
	}

	var (
		id  string
		doc []byte
	)

	err := d.db.QueryRow(ctx, selectByIdentifier, identifier).Scan(&id, &doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", signin.ErrUserNotFound, identifier)
		}
		return nil, err
	}

	return signin.DecodeUserRecord(id, doc)
}

// Put inserts or replaces the document of user
func (d *Documents) Put(ctx context.Context, user *signin.UserRecord) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", signin.ErrInvalidUserRecord, err)
	}

	doc, err := signin.EncodeUserDocument(user)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(ctx, upsertDocument, user.ID, strings.ToLower(user.Email), user.Username, doc)
	return err
}

func (d *Documents) TrackAttemptedLogin(ctx context.Context, user *signin.UserRecord) error {
	return d.exec(ctx, trackAttempt, user.ID, user.LoginAttempts+1, d.now())
}

func (d *Documents) TrackSuccessfulLogin(ctx context.Context, user *signin.UserRecord) error {
	return d.exec(ctx, trackSuccess, user.ID, d.now())
}

func (d *Documents) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := d.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return signin.ErrUserNotFound
	}

	return nil
}
