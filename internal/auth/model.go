package auth

import (
	"regexp"
	"strings"
	"time"

	appErrors "budgetbuddy/errors"
)

const (
	MAX_LENGTH_NAME     = 255
	MAX_LENGTH_LOGIN    = 255
	MIN_PASSWORD_LENGTH = 8
	MAX_PASSWORD_LENGTH = 72 // bcrypt input limit
)

type User struct {
	ID             string
	FirstName      string
	LastName       string
	Login          string // normalized: trimmed, lowercased
	PasswordHashed string
	IsVerified     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	VerifiedAt     *time.Time
}

type NewUser struct {
	FirstName     string
	LastName      string
	Login         string
	PasswordPlain string
}

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeLogin derives the stored key for a login so lookups never depend
// on query-time case folding.
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

func (newUser NewUser) ValidateFields() error {
	first := strings.TrimSpace(newUser.FirstName)
	last := strings.TrimSpace(newUser.LastName)
	login := NormalizeLogin(newUser.Login)

	if first == "" || last == "" || login == "" || newUser.PasswordPlain == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Missing required field(s).",
		}
	}
	if len(first) > MAX_LENGTH_NAME || len(last) > MAX_LENGTH_NAME {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Name is too long.",
		}
	}
	if len(login) > MAX_LENGTH_LOGIN {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Login is too long.",
		}
	}
	if !emailRegex.MatchString(login) {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Invalid email format.",
		}
	}
	return ValidatePassword(newUser.PasswordPlain)
}

func ValidatePassword(plain string) error {
	if len(plain) < MIN_PASSWORD_LENGTH {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Password must be at least 8 characters.",
		}
	}
	if len(plain) > MAX_PASSWORD_LENGTH {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Password is too long.",
		}
	}
	return nil
}

// TokenPurpose selects which token collection a one-time token lives in.
type TokenPurpose string

const (
	PurposeVerifyEmail   TokenPurpose = "email_verification"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// Token is a single-use, expiring secret delivered by email.
// Accepted only while Used is false and ExpireAt is in the future.
type Token struct {
	ID        string
	UserID    string
	Token     string
	ExpireAt  time.Time
	Used      bool
	CreatedAt time.Time
	UsedAt    *time.Time
}

type Identity struct {
	UserID string
	Login  string
}

func (id Identity) IsZero() bool {
	return id.UserID == "" && strings.TrimSpace(id.Login) == ""
}
