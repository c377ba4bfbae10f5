package budget

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	appErrors "budgetbuddy/errors"
	"budgetbuddy/internal/auth"
	"budgetbuddy/internal/contextutil"
	"budgetbuddy/logging"

	"github.com/google/uuid"
)

// Login failures for a missing account and a wrong password are deliberately
// indistinguishable; only the unverified-email case gets its own signal.
var (
	ErrNoRecords        = appErrors.ErrorResponse{Code: appErrors.ErrAuth, Message: "No Records Found"}
	ErrEmailNotVerified = appErrors.ErrorResponse{Code: appErrors.ErrAuth, Message: "Email not verified"}
)

type RegistrationResult struct {
	User      auth.User
	VerifyURL string
	MailError string // empty when the verification email went out
}

func (bb *BudgetBuddy) Register(ctx context.Context, newUser auth.NewUser) (RegistrationResult, error) {
	if err := newUser.ValidateFields(); err != nil {
		return RegistrationResult{}, err
	}

	hashedPassword, err := auth.HashPassword(newUser.PasswordPlain)
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("%w: failed to hash password: %v", appErrors.ErrInternal, err)
	}

	now := time.Now().UTC()
	user := auth.User{
		ID:             uuid.New().String(),
		FirstName:      strings.TrimSpace(newUser.FirstName),
		LastName:       strings.TrimSpace(newUser.LastName),
		Login:          auth.NormalizeLogin(newUser.Login),
		PasswordHashed: hashedPassword,
		IsVerified:     false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// The unique index on login decides races; no check-then-insert here.
	if err := bb.storage.SaveUser(ctx, user); err != nil {
		return RegistrationResult{}, err
	}

	result := RegistrationResult{User: user}
	result.VerifyURL, result.MailError = bb.sendVerification(ctx, user, now)
	return result, nil
}

func (bb *BudgetBuddy) Login(ctx context.Context, login, password string) (auth.User, error) {
	login = auth.NormalizeLogin(login)
	if login == "" || password == "" {
		return auth.User{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Missing login or password",
		}
	}

	user, err := bb.storage.GetUserByLogin(ctx, login)
	if err != nil {
		// Missing user folds into the generic failure.
		return auth.User{}, ErrNoRecords
	}
	if !auth.ComparePasswords(user.PasswordHashed, password) {
		return auth.User{}, ErrNoRecords
	}
	if !user.IsVerified {
		return auth.User{}, ErrEmailNotVerified
	}
	return user, nil
}

func (bb *BudgetBuddy) resolveIdentity(ctx context.Context, identity auth.Identity) (auth.User, error) {
	if identity.UserID != "" {
		return bb.storage.GetUserByID(ctx, identity.UserID)
	}
	if login := auth.NormalizeLogin(identity.Login); login != "" {
		return bb.storage.GetUserByLogin(ctx, login)
	}
	return auth.User{}, appErrors.ErrorResponse{
		Code:    appErrors.ErrInvalidInput,
		Message: "Provide X-User-Id header, id, or login",
	}
}

func (bb *BudgetBuddy) GetProfile(ctx context.Context, identity auth.Identity) (auth.User, error) {
	return bb.resolveIdentity(ctx, identity)
}

func (bb *BudgetBuddy) UpdateProfile(ctx context.Context, identity auth.Identity, firstName, lastName *string) (auth.User, error) {
	user, err := bb.resolveIdentity(ctx, identity)
	if err != nil {
		return auth.User{}, err
	}

	if firstName == nil && lastName == nil {
		return auth.User{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "No fields to update",
		}
	}
	if firstName != nil && strings.TrimSpace(*firstName) == "" {
		return auth.User{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "firstName cannot be empty",
		}
	}
	if lastName != nil && strings.TrimSpace(*lastName) == "" {
		return auth.User{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "lastName cannot be empty",
		}
	}

	return bb.storage.UpdateUserProfile(ctx, user.ID, trimmed(firstName), trimmed(lastName), time.Now().UTC())
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func (bb *BudgetBuddy) ChangePassword(ctx context.Context, identity auth.Identity, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "oldPassword and newPassword required",
		}
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := bb.resolveIdentity(ctx, identity)
	if err != nil {
		return err
	}
	if !auth.ComparePasswords(user.PasswordHashed, oldPassword) {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Current password is incorrect",
		}
	}

	hashed, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: failed to hash password: %v", appErrors.ErrInternal, err)
	}
	return bb.storage.SetUserPassword(ctx, user.ID, hashed, time.Now().UTC())
}

// sendVerification mints a verification token and mails its link.
// Delivery is best-effort: a failure is logged and reported back as a status
// string, never as the operation's error.
func (bb *BudgetBuddy) sendVerification(ctx context.Context, user auth.User, now time.Time) (verifyURL, mailError string) {
	token, err := auth.MintToken(user.ID, now)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to mint verification token: %v", contextutil.TraceIDFromContext(ctx), err)
		return "", "verification token could not be created"
	}
	if err := bb.storage.SaveToken(ctx, auth.PurposeVerifyEmail, token); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to save verification token: %v", contextutil.TraceIDFromContext(ctx), err)
		return "", "verification token could not be saved"
	}

	verifyURL = tokenURL("VERIFY_BASE_URL", "/api/email-verification", token.Token)
	html := fmt.Sprintf(`<p>Hi %s,</p>
<p>Please verify your email by clicking the link below:</p>
<p><a href="%s">Verify my email</a></p>
<p>This link expires in 1 hour.</p>`, user.FirstName, verifyURL)

	if err := bb.mailer.Send(ctx, user.Login, "Verify your email", html); err != nil {
		logging.Logger.Warnf("[TraceID=%s] | verification email to %s not delivered: %v", contextutil.TraceIDFromContext(ctx), user.Login, err)
		return verifyURL, err.Error()
	}
	return verifyURL, ""
}

func tokenURL(baseEnv, defaultPath, token string) string {
	base := os.Getenv(baseEnv)
	if base == "" {
		port := os.Getenv("APP_PORT")
		if port == "" {
			port = "8080"
		}
		base = "http://localhost:" + port + defaultPath
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + token
}
