package budget_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	appErrors "budgetbuddy/errors"
	"budgetbuddy/internal/auth"
	"budgetbuddy/internal/budget"
	"budgetbuddy/internal/mail"
	"budgetbuddy/internal/storage"
)

func newService() *budget.BudgetBuddy {
	bb := budget.NewBudgetBuddy(storage.NewInMemoryStorage(), mail.Disabled{})
	return &bb
}

func registerUser(t *testing.T, bb *budget.BudgetBuddy, login string) budget.RegistrationResult {
	t.Helper()
	result, err := bb.Register(context.Background(), auth.NewUser{
		FirstName:     "John",
		LastName:      "Doe",
		Login:         login,
		PasswordPlain: "secret123",
	})
	require.NoError(t, err)
	return result
}

// tokenFromURL pulls the token value out of a verification or reset link.
func tokenFromURL(t *testing.T, u string) string {
	t.Helper()
	i := strings.Index(u, "token=")
	require.GreaterOrEqual(t, i, 0, "no token in %q", u)
	return u[i+len("token="):]
}

func verifiedUser(t *testing.T, bb *budget.BudgetBuddy, login string) auth.User {
	t.Helper()
	ctx := context.Background()
	result := registerUser(t, bb, login)
	require.NoError(t, bb.VerifyEmail(ctx, tokenFromURL(t, result.VerifyURL)))
	user, err := bb.Login(ctx, login, "secret123")
	require.NoError(t, err)
	return user
}

func TestRegisterValidation(t *testing.T) {
	bb := newService()
	ctx := context.Background()

	tests := []struct {
		name        string
		input       auth.NewUser
		expectedMsg string
	}{
		{
			name:        "missing fields",
			input:       auth.NewUser{FirstName: "", LastName: "Doe", Login: "a@b.com", PasswordPlain: "secret123"},
			expectedMsg: "Missing required field(s).",
		},
		{
			name:        "bad email",
			input:       auth.NewUser{FirstName: "John", LastName: "Doe", Login: "nope", PasswordPlain: "secret123"},
			expectedMsg: "Invalid email format.",
		},
		{
			name:        "short password",
			input:       auth.NewUser{FirstName: "John", LastName: "Doe", Login: "short@pw.com", PasswordPlain: "short"},
			expectedMsg: "Password must be at least 8 characters.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bb.Register(ctx, tt.input)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.expectedMsg)
		})
	}

	// The short-password attempt must not have left a user behind.
	_, err := bb.Login(ctx, "short@pw.com", "short")
	require.ErrorIs(t, err, budget.ErrNoRecords)
}

func TestRegisterDuplicateLogin(t *testing.T) {
	bb := newService()
	ctx := context.Background()

	registerUser(t, bb, "dup@example.com")

	// Same address with different casing collides on the normalized key.
	_, err := bb.Register(ctx, auth.NewUser{
		FirstName:     "Jane",
		LastName:      "Doe",
		Login:         "DUP@Example.com",
		PasswordPlain: "secret123",
	})
	require.Error(t, err)
	require.ErrorIs(t, err, appErrors.ErrConflict)
	require.Contains(t, err.Error(), "Login already exists.")
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	bb := newService()
	ctx := context.Background()

	result := registerUser(t, bb, "john@example.com")
	require.NoError(t, bb.VerifyEmail(ctx, tokenFromURL(t, result.VerifyURL)))

	_, unknownErr := bb.Login(ctx, "nobody@example.com", "secret123")
	_, wrongPwErr := bb.Login(ctx, "john@example.com", "not-the-password")

	require.ErrorIs(t, unknownErr, budget.ErrNoRecords)
	require.ErrorIs(t, wrongPwErr, budget.ErrNoRecords)
	require.Equal(t, unknownErr.Error(), wrongPwErr.Error())
}

func TestLoginUnverifiedSignal(t *testing.T) {
	bb := newService()
	ctx := context.Background()

	registerUser(t, bb, "fresh@example.com")

	_, err := bb.Login(ctx, "fresh@example.com", "secret123")
	require.ErrorIs(t, err, budget.ErrEmailNotVerified)
	require.NotErrorIs(t, err, budget.ErrNoRecords)
}

func TestVerifyEmailTokenIsSingleUse(t *testing.T) {
	bb := newService()
	ctx := context.Background()

	result := registerUser(t, bb, "once@example.com")
	token := tokenFromURL(t, result.VerifyURL)

	require.NoError(t, bb.VerifyEmail(ctx, token))

	err := bb.VerifyEmail(ctx, token)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid or expired token")
}

func TestResendVerification(t *testing.T) {
	bb := newService()
	ctx := context.Background()

	registerUser(t, bb, "resend@example.com")

	result, err := bb.ResendVerification(ctx, "resend@example.com")
	require.NoError(t, err)
	require.False(t, result.AlreadyVerified)

	require.NoError(t, bb.VerifyEmail(ctx, tokenFromURL(t, result.VerifyURL)))

	// A second resend on a verified account is a no-op success.
	result, err = bb.ResendVerification(ctx, "resend@example.com")
	require.NoError(t, err)
	require.True(t, result.AlreadyVerified)

	_, err = bb.ResendVerification(ctx, "ghost@example.com")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestPasswordResetFlow(t *testing.T) {
	bb := newService()
	ctx := context.Background()

	verifiedUser(t, bb, "reset@example.com")

	// Unknown accounts succeed silently, with nothing minted.
	result, err := bb.RequestPasswordReset(ctx, "ghost@example.com")
	require.NoError(t, err)
	require.Empty(t, result.ResetURL)

	result, err = bb.RequestPasswordReset(ctx, "reset@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, result.ResetURL)
	token := tokenFromURL(t, result.ResetURL)

	// Validation does not consume the token.
	require.NoError(t, bb.ValidateResetToken(ctx, token))
	require.NoError(t, bb.ValidateResetToken(ctx, token))

	err = bb.ResetPassword(ctx, token, "short")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Password must be at least 8 characters.")

	require.NoError(t, bb.ResetPassword(ctx, token, "brandnewpass"))

	// Token consumed: a second reset fails.
	err = bb.ResetPassword(ctx, token, "anotherpass1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid or expired token")

	_, err = bb.Login(ctx, "reset@example.com", "secret123")
	require.ErrorIs(t, err, budget.ErrNoRecords)
	_, err = bb.Login(ctx, "reset@example.com", "brandnewpass")
	require.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	bb := newService()
	ctx := context.Background()

	user := verifiedUser(t, bb, "change@example.com")
	identity := auth.Identity{UserID: user.ID}

	err := bb.ChangePassword(ctx, identity, "wrong-old", "newpassword1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Current password is incorrect")

	require.NoError(t, bb.ChangePassword(ctx, identity, "secret123", "newpassword1"))

	_, err = bb.Login(ctx, "change@example.com", "newpassword1")
	require.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	bb := newService()
	ctx := context.Background()

	user := verifiedUser(t, bb, "profile@example.com")
	identity := auth.Identity{Login: "profile@example.com"}

	_, err := bb.UpdateProfile(ctx, identity, nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "No fields to update")

	blank := "   "
	_, err = bb.UpdateProfile(ctx, identity, &blank, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "firstName cannot be empty")

	newName := "Johnny"
	updated, err := bb.UpdateProfile(ctx, identity, &newName, nil)
	require.NoError(t, err)
	require.Equal(t, "Johnny", updated.FirstName)
	require.Equal(t, "Doe", updated.LastName)
	require.Equal(t, user.ID, updated.ID)
}

// --- budgets ---

func foodRentRequest() budget.CreateBudgetRequest {
	return budget.CreateBudgetRequest{
		Name:   "Main",
		Period: "monthly",
		Limit:  500,
		Categories: []budget.Category{
			{Name: "Food", Allocation: 200},
			{Name: "Rent", Allocation: 300},
		},
	}
}

func TestCreateBudgetValidation(t *testing.T) {
	bb := newService()
	ctx := context.Background()
	user := verifiedUser(t, bb, "budget@example.com")

	tests := []struct {
		name        string
		mutate      func(r *budget.CreateBudgetRequest)
		expectedMsg string
	}{
		{
			name:        "invalid period",
			mutate:      func(r *budget.CreateBudgetRequest) { r.Period = "daily" },
			expectedMsg: "Invalid period; use monthly, weekly, yearly, or custom",
		},
		{
			name:        "negative total",
			mutate:      func(r *budget.CreateBudgetRequest) { r.Limit = -1 },
			expectedMsg: "total/limit must be a non-negative number",
		},
		{
			name: "allocations do not match total",
			mutate: func(r *budget.CreateBudgetRequest) {
				r.Categories = []budget.Category{{Name: "Food", Allocation: 450}}
			},
			expectedMsg: "Category allocations (450) must equal total (500)",
		},
		{
			name: "duplicate category names",
			mutate: func(r *budget.CreateBudgetRequest) {
				r.Categories = []budget.Category{
					{Name: "Food", Allocation: 250},
					{Name: "food", Allocation: 250},
				}
			},
			expectedMsg: "Duplicate category name 'food'",
		},
		{
			name: "blank category name",
			mutate: func(r *budget.CreateBudgetRequest) {
				r.Categories = []budget.Category{{Name: "  ", Allocation: 500}}
			},
			expectedMsg: "Each category needs a non-empty name",
		},
		{
			name:        "no categories",
			mutate:      func(r *budget.CreateBudgetRequest) { r.Categories = nil },
			expectedMsg: "categories is required and must be a non-empty array",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := foodRentRequest()
			tt.mutate(&req)
			_, err := bb.CreateBudget(ctx, user.ID, req)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.expectedMsg)
		})
	}

	// Allocations within the tolerance pass.
	req := foodRentRequest()
	req.Categories = []budget.Category{
		{Name: "Food", Allocation: 200.004},
		{Name: "Rent", Allocation: 300},
	}
	_, err := bb.CreateBudget(ctx, user.ID, req)
	require.NoError(t, err)
}

func TestCreateBudgetDefaults(t *testing.T) {
	bb := newService()
	ctx := context.Background()
	user := verifiedUser(t, bb, "defaults@example.com")

	b, err := bb.CreateBudget(ctx, user.ID, budget.CreateBudgetRequest{
		Limit:      100,
		Categories: []budget.Category{{Name: "Other", Allocation: 100}},
	})
	require.NoError(t, err)
	require.Equal(t, "Main", b.Name)
	require.Equal(t, budget.PeriodMonthly, b.Period)
	require.NotEmpty(t, b.ID)
}

func TestBudgetPeriodConflict(t *testing.T) {
	bb := newService()
	ctx := context.Background()
	user := verifiedUser(t, bb, "conflict@example.com")

	_, err := bb.CreateBudget(ctx, user.ID, foodRentRequest())
	require.NoError(t, err)

	_, err = bb.CreateBudget(ctx, user.ID, foodRentRequest())
	require.ErrorIs(t, err, appErrors.ErrConflict)
	require.Contains(t, err.Error(), "A monthly budget already exists for this user")

	// A different user is free to use the same period.
	other := verifiedUser(t, bb, "other@example.com")
	_, err = bb.CreateBudget(ctx, other.ID, foodRentRequest())
	require.NoError(t, err)
}

func TestConcurrentBudgetCreatesOneWinner(t *testing.T) {
	bb := newService()
	ctx := context.Background()
	user := verifiedUser(t, bb, "race@example.com")

	const attempts = 16
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := bb.CreateBudget(ctx, user.ID, foodRentRequest())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var created, conflicts int
	for err := range results {
		switch {
		case err == nil:
			created++
		default:
			require.ErrorIs(t, err, appErrors.ErrConflict)
			conflicts++
		}
	}
	require.Equal(t, 1, created)
	require.Equal(t, attempts-1, conflicts)

	page, err := bb.ListBudgets(ctx, user.ID, budget.BudgetFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestUpdateBudget(t *testing.T) {
	bb := newService()
	ctx := context.Background()
	user := verifiedUser(t, bb, "update@example.com")

	monthly, err := bb.CreateBudget(ctx, user.ID, foodRentRequest())
	require.NoError(t, err)

	weeklyReq := foodRentRequest()
	weeklyReq.Period = "weekly"
	_, err = bb.CreateBudget(ctx, user.ID, weeklyReq)
	require.NoError(t, err)

	_, err = bb.UpdateBudget(ctx, user.ID, monthly.ID, budget.BudgetUpdate{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "No fields to update")

	// Moving onto an occupied period is a conflict.
	weekly := "weekly"
	_, err = bb.UpdateBudget(ctx, user.ID, monthly.ID, budget.BudgetUpdate{Period: &weekly})
	require.ErrorIs(t, err, appErrors.ErrConflict)

	// Changing categories alone re-checks the sum against the stored limit.
	_, err = bb.UpdateBudget(ctx, user.ID, monthly.ID, budget.BudgetUpdate{
		Categories: []budget.Category{{Name: "Food", Allocation: 100}},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "must equal total")

	// Changing both together is fine.
	newLimit := 100.0
	updated, err := bb.UpdateBudget(ctx, user.ID, monthly.ID, budget.BudgetUpdate{
		Limit:      &newLimit,
		Categories: []budget.Category{{Name: "Food", Allocation: 100}},
	})
	require.NoError(t, err)
	require.Equal(t, 100.0, updated.Limit)
	require.Len(t, updated.Categories, 1)

	// Unowned budgets stay invisible.
	stranger := verifiedUser(t, bb, "stranger@example.com")
	_, err = bb.UpdateBudget(ctx, stranger.ID, monthly.ID, budget.BudgetUpdate{Limit: &newLimit})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestListBudgets(t *testing.T) {
	bb := newService()
	ctx := context.Background()
	user := verifiedUser(t, bb, "list@example.com")

	for _, period := range []string{"monthly", "weekly", "yearly"} {
		req := foodRentRequest()
		req.Period = period
		req.Name = "Budget " + period
		_, err := bb.CreateBudget(ctx, user.ID, req)
		require.NoError(t, err)
	}

	page, err := bb.ListBudgets(ctx, user.ID, budget.BudgetFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	require.Nil(t, page.NextOffset)

	page, err = bb.ListBudgets(ctx, user.ID, budget.BudgetFilter{Period: "weekly"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "weekly", page.Items[0].Period)

	page, err = bb.ListBudgets(ctx, user.ID, budget.BudgetFilter{NameContains: "YEAR"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	// A full page advertises the next offset.
	page, err = bb.ListBudgets(ctx, user.ID, budget.BudgetFilter{Limit: 3})
	require.NoError(t, err)
	require.NotNil(t, page.NextOffset)
	require.Equal(t, 3, *page.NextOffset)
}

func TestDeleteBudget(t *testing.T) {
	bb := newService()
	ctx := context.Background()
	user := verifiedUser(t, bb, "delete@example.com")

	b, err := bb.CreateBudget(ctx, user.ID, foodRentRequest())
	require.NoError(t, err)

	require.NoError(t, bb.DeleteBudget(ctx, user.ID, b.ID))
	err = bb.DeleteBudget(ctx, user.ID, b.ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

// --- transactions ---

func serviceWithBudget(t *testing.T, categories ...budget.Category) (*budget.BudgetBuddy, auth.User) {
	t.Helper()
	bb := newService()
	user := verifiedUser(t, bb, "tx@example.com")

	var total float64
	for _, c := range categories {
		total += c.Allocation
	}
	_, err := bb.CreateBudget(context.Background(), user.ID, budget.CreateBudgetRequest{
		Period:     "monthly",
		Limit:      total,
		Categories: categories,
	})
	require.NoError(t, err)
	return bb, user
}

func TestCreateTransactionValidation(t *testing.T) {
	bb, user := serviceWithBudget(t,
		budget.Category{Name: "Food", Allocation: 200},
		budget.Category{Name: "Rent", Allocation: 300},
	)
	ctx := context.Background()

	tests := []struct {
		name        string
		req         budget.TransactionRequest
		expectedMsg string
	}{
		{
			name:        "bad type",
			req:         budget.TransactionRequest{Type: "transfer", Amount: 10},
			expectedMsg: `Invalid type (use "income" or "expense")`,
		},
		{
			name:        "zero amount",
			req:         budget.TransactionRequest{Type: "expense", Amount: 0, Category: "Food"},
			expectedMsg: "Invalid amount (must be > 0)",
		},
		{
			name:        "negative amount",
			req:         budget.TransactionRequest{Type: "expense", Amount: -5, Category: "Food"},
			expectedMsg: "Invalid amount (must be > 0)",
		},
		{
			name:        "no budget for period",
			req:         budget.TransactionRequest{Type: "expense", Amount: 10, Period: "weekly", Category: "Food"},
			expectedMsg: "No weekly budget found for this user",
		},
		{
			name:        "category not in budget and no Other",
			req:         budget.TransactionRequest{Type: "expense", Amount: 10, Category: "Toys"},
			expectedMsg: `Category not in budget (and no "Other" category found)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bb.CreateTransaction(ctx, user.ID, tt.req)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.expectedMsg)
		})
	}
}

// outageStorage fails budget-by-period lookups with a fixed error.
type outageStorage struct {
	budget.Storage
	periodErr error
}

func (s outageStorage) GetBudgetByPeriod(ctx context.Context, userID, period string) (budget.Budget, error) {
	return budget.Budget{}, s.periodErr
}

func TestTransactionBudgetLookupFailurePropagates(t *testing.T) {
	down := appErrors.ErrorResponse{Code: appErrors.ErrDependency, Message: "budget lookup failed"}
	bb := budget.NewBudgetBuddy(outageStorage{
		Storage:   storage.NewInMemoryStorage(),
		periodErr: down,
	}, mail.Disabled{})

	// A storage outage is not "you have no budget"; it keeps its code.
	_, err := bb.CreateTransaction(context.Background(), "u1", budget.TransactionRequest{
		Type: "expense", Amount: 10, Category: "Food",
	})
	require.Error(t, err)
	require.ErrorIs(t, err, appErrors.ErrDependency)
	require.NotErrorIs(t, err, appErrors.ErrInvalidInput)
	require.NotContains(t, err.Error(), "No monthly budget found")
}

func TestExpenseCategoryResolution(t *testing.T) {
	bb, user := serviceWithBudget(t,
		budget.Category{Name: "Food", Allocation: 200},
		budget.Category{Name: "Other", Allocation: 300},
	)
	ctx := context.Background()

	// Case-insensitive match keeps the stored casing.
	tx, err := bb.CreateTransaction(ctx, user.ID, budget.TransactionRequest{
		Type: "expense", Amount: 10, Category: "fOOd",
	})
	require.NoError(t, err)
	require.Equal(t, "Food", tx.Category)

	// Unknown categories fold into Other when it exists.
	tx, err = bb.CreateTransaction(ctx, user.ID, budget.TransactionRequest{
		Type: "expense", Amount: 10, Category: "Toys",
	})
	require.NoError(t, err)
	require.Equal(t, "Other", tx.Category)

	// Income keeps a free-form category but normalizes known ones.
	tx, err = bb.CreateTransaction(ctx, user.ID, budget.TransactionRequest{
		Type: "income", Amount: 1000, Category: "Salary",
	})
	require.NoError(t, err)
	require.Equal(t, "Salary", tx.Category)

	tx, err = bb.CreateTransaction(ctx, user.ID, budget.TransactionRequest{
		Type: "income", Amount: 5, Category: "food",
	})
	require.NoError(t, err)
	require.Equal(t, "Food", tx.Category)
}

func TestUpdateTransactionRevalidates(t *testing.T) {
	bb, user := serviceWithBudget(t,
		budget.Category{Name: "Food", Allocation: 500},
	)
	ctx := context.Background()

	tx, err := bb.CreateTransaction(ctx, user.ID, budget.TransactionRequest{
		Type: "expense", Amount: 20, Category: "Food",
	})
	require.NoError(t, err)

	// An update is re-validated like a create: no Other, unknown rejected.
	_, err = bb.UpdateTransaction(ctx, user.ID, tx.ID, budget.TransactionRequest{
		Type: "expense", Amount: 20, Category: "Toys",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Category not in budget")

	updated, err := bb.UpdateTransaction(ctx, user.ID, tx.ID, budget.TransactionRequest{
		Type: "expense", Amount: 35, Category: "food",
	})
	require.NoError(t, err)
	require.Equal(t, 35.0, updated.Amount)
	require.Equal(t, "Food", updated.Category)

	_, err = bb.UpdateTransaction(ctx, user.ID, "missing-id", budget.TransactionRequest{
		Type: "expense", Amount: 1, Category: "Food",
	})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestListTransactionsPagination(t *testing.T) {
	bb, user := serviceWithBudget(t,
		budget.Category{Name: "Food", Allocation: 500},
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := bb.CreateTransaction(ctx, user.ID, budget.TransactionRequest{
			Type: "expense", Amount: float64(i + 1), Category: "Food",
		})
		require.NoError(t, err)
	}

	page, err := bb.ListTransactions(ctx, user.ID, budget.TransactionFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotNil(t, page.NextOffset)
	require.Equal(t, 2, *page.NextOffset)

	page, err = bb.ListTransactions(ctx, user.ID, budget.TransactionFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Nil(t, page.NextOffset)

	_, err = bb.ListTransactions(ctx, user.ID, budget.TransactionFilter{Type: "transfer"})
	require.Error(t, err)
	require.Contains(t, err.Error(), `Invalid type (use "income" or "expense")`)
}

func TestDeleteTransactionOwnership(t *testing.T) {
	bb, user := serviceWithBudget(t,
		budget.Category{Name: "Food", Allocation: 500},
	)
	ctx := context.Background()

	tx, err := bb.CreateTransaction(ctx, user.ID, budget.TransactionRequest{
		Type: "expense", Amount: 20, Category: "Food",
	})
	require.NoError(t, err)

	stranger := verifiedUser(t, bb, "intruder@example.com")
	err = bb.DeleteTransaction(ctx, stranger.ID, tx.ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	require.NoError(t, bb.DeleteTransaction(ctx, user.ID, tx.ID))
	_, err = bb.GetTransaction(ctx, user.ID, tx.ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

// --- summary ---

func TestSummaryNoBudget(t *testing.T) {
	bb := newService()
	ctx := context.Background()
	user := verifiedUser(t, bb, "empty@example.com")

	s, err := bb.Summarize(ctx, user.ID, budget.SummaryQuery{})
	require.NoError(t, err)

	require.Nil(t, s.Budget)
	require.Nil(t, s.Totals.Window.Start)
	require.Nil(t, s.Totals.Window.End)
	require.Zero(t, s.Totals.Budgeted)
	require.Zero(t, s.Totals.Spent)
	require.Zero(t, s.Totals.Remaining)
	require.False(t, s.Totals.Overspent)
	require.NotNil(t, s.Categories)
	require.Empty(t, s.Categories)
	require.NotNil(t, s.Transactions)
	require.Empty(t, s.Transactions)
	require.Equal(t, "Other", s.Unknown.MappedTo)
	require.Zero(t, s.Unknown.Transactions)
}

func TestSummaryFoodRent(t *testing.T) {
	bb, user := serviceWithBudget(t,
		budget.Category{Name: "Food", Allocation: 200},
		budget.Category{Name: "Rent", Allocation: 300},
	)
	ctx := context.Background()

	_, err := bb.CreateTransaction(ctx, user.ID, budget.TransactionRequest{
		Type: "expense", Amount: 50, Category: "Food",
	})
	require.NoError(t, err)

	s, err := bb.Summarize(ctx, user.ID, budget.SummaryQuery{Period: "monthly"})
	require.NoError(t, err)
	require.NotNil(t, s.Budget)

	require.Equal(t, 500.0, s.Totals.Budgeted)
	require.Equal(t, 50.0, s.Totals.Spent)
	require.Equal(t, 450.0, s.Totals.Remaining)
	require.False(t, s.Totals.Overspent)
	require.Equal(t, 0.0, s.Totals.Income)
	require.Equal(t, 50.0, s.Totals.Expense)
	require.Equal(t, -50.0, s.Totals.Net)

	// Declared order, then the implicit Other.
	require.Len(t, s.Categories, 3)
	require.Equal(t, "Food", s.Categories[0].Name)
	require.Equal(t, 50.0, s.Categories[0].Spent)
	require.Equal(t, 150.0, s.Categories[0].Remaining)
	require.NotNil(t, s.Categories[0].PctUsed)
	require.Equal(t, 25.0, *s.Categories[0].PctUsed)
	require.False(t, s.Categories[0].Overspent)

	require.Equal(t, "Rent", s.Categories[1].Name)
	require.Equal(t, 0.0, s.Categories[1].Spent)

	require.Equal(t, "Other", s.Categories[2].Name)
	require.Nil(t, s.Categories[2].PctUsed) // zero allocation

	require.Zero(t, s.Unknown.Transactions)
	require.Len(t, s.Transactions, 1)
}

func TestSummaryUnknownFoldsIntoOther(t *testing.T) {
	bb, user := serviceWithBudget(t,
		budget.Category{Name: "Food", Allocation: 200},
		budget.Category{Name: "Other", Allocation: 300},
	)
	ctx := context.Background()

	_, err := bb.CreateTransaction(ctx, user.ID, budget.TransactionRequest{
		Type: "expense", Amount: 40, Category: "Gadgets",
	})
	require.NoError(t, err)

	s, err := bb.Summarize(ctx, user.ID, budget.SummaryQuery{})
	require.NoError(t, err)

	require.Equal(t, 1, s.Unknown.Transactions)
	require.Equal(t, 40.0, s.Unknown.Amount)

	// Other was declared, so it appears once, in declared position.
	require.Len(t, s.Categories, 2)
	require.Equal(t, "Other", s.Categories[1].Name)
	require.Equal(t, 40.0, s.Categories[1].Spent)
}

func TestSummaryOverspent(t *testing.T) {
	bb, user := serviceWithBudget(t,
		budget.Category{Name: "Food", Allocation: 100},
	)
	ctx := context.Background()

	_, err := bb.CreateTransaction(ctx, user.ID, budget.TransactionRequest{
		Type: "expense", Amount: 150, Category: "Food",
	})
	require.NoError(t, err)

	s, err := bb.Summarize(ctx, user.ID, budget.SummaryQuery{})
	require.NoError(t, err)

	require.True(t, s.Totals.Overspent)
	require.Equal(t, -50.0, s.Totals.Remaining)
	require.True(t, s.Categories[0].Overspent)
	require.Equal(t, 150.0, *s.Categories[0].PctUsed)
}

func TestPurgeExpiredTokens(t *testing.T) {
	bb := newService()
	ctx := context.Background()

	registerUser(t, bb, "sweep@example.com")

	// Fresh tokens survive the sweep.
	removed, err := bb.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)
}
