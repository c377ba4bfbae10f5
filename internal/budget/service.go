package budget

import (
	"context"
	"math"
	"time"

	"budgetbuddy/internal/auth"
	"budgetbuddy/internal/mail"
)

// BudgetBuddy is the application service: credential verification, budget and
// transaction management, and the summary calculator, all behind one Storage.
type BudgetBuddy struct {
	storage     Storage
	mailer      mail.Mailer
	StorageType string
}

func NewBudgetBuddy(s Storage, m mail.Mailer) BudgetBuddy {
	if m == nil {
		m = mail.Disabled{}
	}
	return BudgetBuddy{
		storage:     s,
		mailer:      m,
		StorageType: s.GetStorageType(),
	}
}

type Storage interface {
	// Identity store accessor.
	SaveUser(ctx context.Context, user auth.User) error
	GetUserByID(ctx context.Context, id string) (auth.User, error)
	GetUserByLogin(ctx context.Context, login string) (auth.User, error)
	UpdateUserProfile(ctx context.Context, id string, firstName, lastName *string, at time.Time) (auth.User, error)
	SetUserPassword(ctx context.Context, id string, passwordHashed string, at time.Time) error
	MarkUserVerified(ctx context.Context, id string, at time.Time) error

	// One-time tokens (email verification, password reset).
	SaveToken(ctx context.Context, purpose auth.TokenPurpose, t auth.Token) error
	GetActiveToken(ctx context.Context, purpose auth.TokenPurpose, token string, now time.Time) (auth.Token, error)
	MarkTokenUsed(ctx context.Context, purpose auth.TokenPurpose, tokenID string, at time.Time) error
	InvalidateUserTokens(ctx context.Context, purpose auth.TokenPurpose, userID string, at time.Time) error
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)

	// Budgets.
	SaveBudget(ctx context.Context, b Budget) error
	GetBudgetByID(ctx context.Context, userID, id string) (Budget, error)
	GetBudgetByPeriod(ctx context.Context, userID, period string) (Budget, error)
	HasOtherBudgetForPeriod(ctx context.Context, userID, period, excludeID string) (bool, error)
	ListBudgets(ctx context.Context, userID string, f BudgetFilter) ([]Budget, error)
	UpdateBudget(ctx context.Context, b Budget) error
	DeleteBudget(ctx context.Context, userID, id string) error

	// Transactions.
	SaveTransaction(ctx context.Context, t Transaction) error
	GetTransactionByID(ctx context.Context, userID, id string) (Transaction, error)
	ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]Transaction, error)
	UpdateTransaction(ctx context.Context, t Transaction) error
	DeleteTransaction(ctx context.Context, userID, id string) error

	GetStorageType() string
}

// PurgeExpiredTokens removes tokens past their expiry; it stands in for a
// document store's TTL index and is driven by the sweeper in main.
func (bb *BudgetBuddy) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return bb.storage.DeleteExpiredTokens(ctx, time.Now().UTC())
}

// round2 rounds to two decimal places; applied at output assembly only,
// accumulation keeps full precision.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
