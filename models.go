package signin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleGuest is an guest role (ie. view)
	RoleGuest UserRole = "guest"
	// RoleMember us a member (i.e. view, edit)
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin UserRole = "admin"
	// RoleOwner is an admin role (i.e. view, edit, create, delete)
	RoleOwner UserRole = "owner"
)

// Two factor delivery methods
const (
	TwoFactorEmail = "email"
	TwoFactorSMS   = "sms"
)

// DefaultPhoneRegion is used to parse phone numbers without a country prefix
var DefaultPhoneRegion = "US"

// TwoFactorSettings is the second factor configuration of an account
type TwoFactorSettings struct {
	IsEnabled bool   `json:"isEnabled"`
	Method    string `json:"method,omitempty"`
}

// LoginInfo holds the account state consulted by the sign in gate
type LoginInfo struct {
	IsSuspended bool              `json:"isSuspended"`
	TwoFactor   TwoFactorSettings `json:"twoFactor"`
}

// UserRecord is the strongly typed view of a user directory entry
type UserRecord struct {
	ID             string     `json:"id"`
	Email          string     `json:"email,omitempty"`
	Username       string     `json:"username,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Role           UserRole   `json:"role,omitempty"`
	PasswordHash   string     `json:"passwordHash,omitempty"`
	LoginAttempts  int        `json:"loginAttempts,omitempty"`
	LoginAttemptAt *time.Time `json:"loginAttemptAt,omitempty"`
	LoggedInAt     *time.Time `json:"loggedInAt,omitempty"`
	LoginInfo      LoginInfo  `json:"loginInfo"`
}

// IsSuspended reports whether the account was explicitly disabled
func (u *UserRecord) IsSuspended() bool {
	return u != nil && u.LoginInfo.IsSuspended
}

// TwoFactorEnabled reports whether sign in requires a second factor
func (u *UserRecord) TwoFactorEnabled() bool {
	return u != nil && u.LoginInfo.TwoFactor.IsEnabled
}

// Identifier returns the value used to address the user, email first
func (u *UserRecord) Identifier() string {
	if u.Email != "" {
		return u.Email
	}
	return u.Username
}

// Validate will run validation rules
func (u UserRecord) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.ID, validation.Required),
		validation.Field(&u.Email, is.Email),
		validation.Field(&u.Username, validation.By(requireIdentifier(u.Email))),
		validation.Field(&u.Role, validation.In(RoleOwner, RoleAdmin, RoleMember, RoleGuest)),
		validation.Field(&u.LoginAttempts, validation.Min(0)),
		validation.Field(&u.LoginInfo),
		validation.Field(&u.Phone, validation.By(validatePhone(u.LoginInfo.TwoFactor))),
	)
}

// Validate will run validation rules
func (l LoginInfo) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.TwoFactor),
	)
}

// Validate will run validation rules
func (t TwoFactorSettings) Validate() error {
	if !t.IsEnabled {
		return nil
	}
	return validation.ValidateStruct(&t,
		validation.Field(&t.Method, validation.In(TwoFactorEmail, TwoFactorSMS)),
	)
}

func requireIdentifier(email string) validation.RuleFunc {
	return func(value any) error {
		username, _ := value.(string)
		if username == "" && email == "" {
			return errors.New("email or username is required")
		}
		return nil
	}
}

func validatePhone(settings TwoFactorSettings) validation.RuleFunc {
	return func(value any) error {
		phone, _ := value.(string)
		if phone == "" {
			if settings.IsEnabled && settings.Method == TwoFactorSMS {
				return errors.New("phone is required for sms verification")
			}
			return nil
		}

		num, err := phonenumbers.Parse(phone, DefaultPhoneRegion)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}

// DecodeUserRecord decodes a user document and validates it. Unknown
// fields are ignored, a document that does not decode into a valid
// UserRecord is reported as ErrInvalidUserRecord.
func DecodeUserRecord(id string, document []byte) (*UserRecord, error) {
	record := &UserRecord{}

	dec := json.NewDecoder(bytes.NewReader(document))
	if err := dec.Decode(record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUserRecord, err)
	}

	if id != "" {
		record.ID = id
	}

	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUserRecord, err)
	}

	return record, nil
}

// EncodeUserDocument is the inverse of DecodeUserRecord. The ID is kept
// out of the document body.
func EncodeUserDocument(user *UserRecord) ([]byte, error) {
	if user == nil {
		return nil, ErrInvalidUserRecord
	}
	doc := *user
	doc.ID = ""
	return json.Marshal(doc)
}
