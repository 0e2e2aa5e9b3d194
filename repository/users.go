package repository

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	gorepo "github.com/goliatone/go-repository-bun"
	signin "github.com/goliatone/go-signin"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserModel is the Bun model for users.
type UserModel struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID             uuid.UUID        `bun:"id,pk,type:uuid"`
	Role           string           `bun:"user_role,notnull"`
	Username       string           `bun:"username,notnull,unique"`
	Email          string           `bun:"email,notnull,unique"`
	Phone          string           `bun:"phone_number"`
	PasswordHash   string           `bun:"password_hash"`
	LoginAttempts  int              `bun:"login_attempts,notnull,default:0"`
	LoginAttemptAt *time.Time       `bun:"login_attempt_at,nullzero"`
	LoggedInAt     *time.Time       `bun:"loggedin_at,nullzero"`
	LoginInfo      signin.LoginInfo `bun:"login_info,type:jsonb"`
	CreatedAt      time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time        `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt      *time.Time       `bun:"deleted_at,soft_delete,nullzero"`
}

// Users is a bun backed user directory. It implements signin.UserLookup
// and signin.CredentialStore.
type Users struct {
	records gorepo.Repository[*UserModel]
	db      bun.IDB
	now     func() time.Time
}

var (
	_ signin.UserLookup      = (*Users)(nil)
	_ signin.CredentialStore = (*Users)(nil)
)

// NewUsers creates a new repository.
func NewUsers(db *bun.DB) *Users {
	records := gorepo.NewRepository[*UserModel](db, gorepo.ModelHandlers[*UserModel]{
		NewRecord: func() *UserModel { return &UserModel{} },
		GetID: func(u *UserModel) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *UserModel, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &Users{records: records, db: db, now: time.Now}
}

// bind returns a copy of r that runs its queries on tx
func (r *Users) bind(tx bun.IDB) *Users {
	return &Users{records: r.records, db: tx, now: r.now}
}

// WithClock overrides the time source, used in tests
func (r *Users) WithClock(now func() time.Time) *Users {
	if now != nil {
		r.now = now
	}
	return r
}

// Migrate creates the users table if needed
func (r *Users) Migrate(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*UserModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// GetByIdentifier looks the user up by id, email, or username, in that
// order of preference.
func (r *Users) GetByIdentifier(ctx context.Context, identifier string) (*signin.UserRecord, error) {
	model, err := r.find(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return toUserRecord(model)
}

// Find is GetByIdentifier with extra select criteria applied to every
// lookup, e.g. to include soft deleted rows.
func (r *Users) Find(ctx context.Context, identifier string, criteria ...gorepo.SelectCriteria) (*signin.UserRecord, error) {
	model, err := r.find(ctx, identifier, criteria...)
	if err != nil {
		return nil, err
	}
	return toUserRecord(model)
}

func (r *Users) find(ctx context.Context, identifier string, criteria ...gorepo.SelectCriteria) (*UserModel, error) {
	for _, opt := range resolveUserIdentifier(identifier) {
		model := &UserModel{}
		q := r.db.NewSelect().Model(model)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(opt.where, opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if gorepo.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return model, nil
	}

	return nil, fmt.Errorf("%w: %w", signin.ErrUserNotFound, gorepo.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		}))
}

// Create inserts user. Without an ID one is derived from the email so the
// same account always gets the same ID.
func (r *Users) Create(ctx context.Context, user *signin.UserRecord) (*signin.UserRecord, error) {
	model, err := fromUserRecord(user)
	if err != nil {
		return nil, err
	}

	if model.Role == "" {
		model.Role = signin.RoleGuest
	}

	if model.Username == "" {
		model.Username = usernameFromEmail(model.Email)
	}

	if model.ID == uuid.Nil {
		if id, err := hashid.NewUUID(model.Email); err == nil {
			model.ID = id
		} else {
			model.ID = uuid.New()
		}
	}

	created, err := r.records.CreateTx(ctx, r.db, model)
	if err != nil {
		return nil, fmt.Errorf("could not create user: %w", err)
	}

	return toUserRecord(created)
}

// TrackAttemptedLogin increments the failed attempt counter
func (r *Users) TrackAttemptedLogin(ctx context.Context, user *signin.UserRecord) error {
	id, err := uuid.Parse(user.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", signin.ErrInvalidUserRecord, err)
	}

	now := r.now()
	_, err = r.db.NewUpdate().
		Model((*UserModel)(nil)).
		Set("login_attempts = ?", user.LoginAttempts+1).
		Set("login_attempt_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)

	return err
}

// TrackSuccessfulLogin resets the attempt counter and stamps the login
func (r *Users) TrackSuccessfulLogin(ctx context.Context, user *signin.UserRecord) error {
	id, err := uuid.Parse(user.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", signin.ErrInvalidUserRecord, err)
	}

	now := r.now()
	_, err = r.db.NewUpdate().
		Model((*UserModel)(nil)).
		Set("login_attempts = 0").
		Set("login_attempt_at = NULL").
		Set("loggedin_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)

	return err
}

// SetSuspended suspends or reinstates the account
func (r *Users) SetSuspended(ctx context.Context, identifier string, suspended bool) error {
	return r.updateLoginInfo(ctx, identifier, func(info *signin.LoginInfo) {
		info.IsSuspended = suspended
	})
}

// SetTwoFactor replaces the second factor settings of the account
func (r *Users) SetTwoFactor(ctx context.Context, identifier string, settings signin.TwoFactorSettings) error {
	return r.updateLoginInfo(ctx, identifier, func(info *signin.LoginInfo) {
		info.TwoFactor = settings
	})
}

func (r *Users) updateLoginInfo(ctx context.Context, identifier string, mutate func(*signin.LoginInfo)) error {
	model, err := r.find(ctx, identifier)
	if err != nil {
		return err
	}

	mutate(&model.LoginInfo)
	model.UpdatedAt = r.now()

	_, err = r.db.NewUpdate().
		Model(model).
		Column("login_info", "updated_at").
		WherePK().
		Exec(ctx)

	return err
}

func toUserRecord(model *UserModel) (*signin.UserRecord, error) {
	if model == nil {
		return nil, signin.ErrUserNotFound
	}

	record := &signin.UserRecord{
		ID:             model.ID.String(),
		Email:          model.Email,
		Username:       model.Username,
		Phone:          model.Phone,
		Role:           model.Role,
		PasswordHash:   model.PasswordHash,
		LoginAttempts:  model.LoginAttempts,
		LoginAttemptAt: model.LoginAttemptAt,
		LoggedInAt:     model.LoggedInAt,
		LoginInfo:      model.LoginInfo,
	}

	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", signin.ErrInvalidUserRecord, err)
	}

	return record, nil
}

func fromUserRecord(record *signin.UserRecord) (*UserModel, error) {
	if record == nil {
		return nil, signin.ErrInvalidUserRecord
	}

	model := &UserModel{
		Role:           record.Role,
		Username:       strings.TrimSpace(record.Username),
		Email:          normalizeEmail(record.Email),
		Phone:          record.Phone,
		PasswordHash:   record.PasswordHash,
		LoginAttempts:  record.LoginAttempts,
		LoginAttemptAt: record.LoginAttemptAt,
		LoggedInAt:     record.LoggedInAt,
		LoginInfo:      record.LoginInfo,
	}

	if record.ID != "" {
		id, err := uuid.Parse(record.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", signin.ErrInvalidUserRecord, err)
		}
		model.ID = id
	}

	return model, nil
}

type identifierOption struct {
	where string
	value string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			where: "?TableAlias.id = ?",
			value: trimmed,
		})
	}

	if isEmail(trimmed) {
		// rows written before emails were normalized may be mixed case
		options = append(options, identifierOption{
			where: "lower(?TableAlias.email) = ?",
			value: normalizeEmail(trimmed),
		})
	}

	options = append(options, identifierOption{
		where: "?TableAlias.username = ?",
		value: trimmed,
	})

	return options
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func usernameFromEmail(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
