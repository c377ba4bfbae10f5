package budget

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	appErrors "budgetbuddy/errors"
	"budgetbuddy/internal/auth"
	"budgetbuddy/internal/contextutil"
	"budgetbuddy/logging"
)

var errInvalidToken = appErrors.ErrorResponse{
	Code:    appErrors.ErrInvalidInput,
	Message: "Invalid or expired token",
}

// resendInvalidates reports whether minting a new token should retire the
// user's earlier outstanding ones. Historically resends left old links valid
// until natural expiry, so that stays the default.
func resendInvalidates() bool {
	v, err := strconv.ParseBool(os.Getenv("RESEND_INVALIDATES_TOKENS"))
	return err == nil && v
}

type ResendResult struct {
	AlreadyVerified bool
	VerifyURL       string
	MailError       string
}

func (bb *BudgetBuddy) ResendVerification(ctx context.Context, login string) (ResendResult, error) {
	login = auth.NormalizeLogin(login)
	if login == "" {
		return ResendResult{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Missing login",
		}
	}

	user, err := bb.storage.GetUserByLogin(ctx, login)
	if err != nil {
		return ResendResult{}, err
	}
	if user.IsVerified {
		return ResendResult{AlreadyVerified: true}, nil
	}

	now := time.Now().UTC()
	if resendInvalidates() {
		if err := bb.storage.InvalidateUserTokens(ctx, auth.PurposeVerifyEmail, user.ID, now); err != nil {
			logging.Logger.Warnf("[TraceID=%s] | failed to invalidate old verification tokens: %v", contextutil.TraceIDFromContext(ctx), err)
		}
	}

	result := ResendResult{}
	result.VerifyURL, result.MailError = bb.sendVerification(ctx, user, now)
	return result, nil
}

func (bb *BudgetBuddy) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Missing token",
		}
	}

	now := time.Now().UTC()
	tok, err := bb.storage.GetActiveToken(ctx, auth.PurposeVerifyEmail, token, now)
	if err != nil {
		return errInvalidToken
	}

	if err := bb.storage.MarkUserVerified(ctx, tok.UserID, now); err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	if err := bb.storage.MarkTokenUsed(ctx, auth.PurposeVerifyEmail, tok.ID, now); err != nil {
		return fmt.Errorf("failed to consume verification token: %w", err)
	}
	return nil
}

type ResetRequestResult struct {
	ResetURL string // empty when no such account; callers answer generically either way
}

func (bb *BudgetBuddy) RequestPasswordReset(ctx context.Context, login string) (ResetRequestResult, error) {
	login = auth.NormalizeLogin(login)
	if login == "" {
		return ResetRequestResult{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Missing login",
		}
	}

	user, err := bb.storage.GetUserByLogin(ctx, login)
	if err != nil {
		// Unknown account: succeed without minting anything.
		return ResetRequestResult{}, nil
	}

	now := time.Now().UTC()
	if resendInvalidates() {
		if err := bb.storage.InvalidateUserTokens(ctx, auth.PurposePasswordReset, user.ID, now); err != nil {
			logging.Logger.Warnf("[TraceID=%s] | failed to invalidate old reset tokens: %v", contextutil.TraceIDFromContext(ctx), err)
		}
	}

	token, err := auth.MintToken(user.ID, now)
	if err != nil {
		return ResetRequestResult{}, fmt.Errorf("%w: failed to mint reset token: %v", appErrors.ErrInternal, err)
	}
	if err := bb.storage.SaveToken(ctx, auth.PurposePasswordReset, token); err != nil {
		return ResetRequestResult{}, err
	}

	resetURL := tokenURL("RESET_BASE_URL", "/api/password", token.Token)
	html := fmt.Sprintf(`<p>Hi %s,</p>
<p>You requested to reset your password. Click the link below:</p>
<p><a href="%s">Reset my password</a></p>
<p>This link expires in 1 hour.</p>`, user.FirstName, resetURL)

	if err := bb.mailer.Send(ctx, user.Login, "Reset your password", html); err != nil {
		logging.Logger.Warnf("[TraceID=%s] | reset email to %s not delivered: %v", contextutil.TraceIDFromContext(ctx), user.Login, err)
	}
	return ResetRequestResult{ResetURL: resetURL}, nil
}

// ValidateResetToken checks a reset token without consuming it.
func (bb *BudgetBuddy) ValidateResetToken(ctx context.Context, token string) error {
	if token == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Missing token",
		}
	}
	if _, err := bb.storage.GetActiveToken(ctx, auth.PurposePasswordReset, token, time.Now().UTC()); err != nil {
		return errInvalidToken
	}
	return nil
}

func (bb *BudgetBuddy) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "token and newPassword required",
		}
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}

	now := time.Now().UTC()
	tok, err := bb.storage.GetActiveToken(ctx, auth.PurposePasswordReset, token, now)
	if err != nil {
		return errInvalidToken
	}

	hashed, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: failed to hash password: %v", appErrors.ErrInternal, err)
	}
	if err := bb.storage.SetUserPassword(ctx, tok.UserID, hashed, now); err != nil {
		return err
	}
	if err := bb.storage.MarkTokenUsed(ctx, auth.PurposePasswordReset, tok.ID, now); err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	return nil
}
