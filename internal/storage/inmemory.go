package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	appErrors "budgetbuddy/errors"
	"budgetbuddy/internal/auth"
	"budgetbuddy/internal/budget"
)

// InMemoryStorage keeps everything in process memory. It backs the service
// tests and the STORAGE_DRIVER=memory mode, and enforces the same unique
// keys the SQL backends enforce with indexes.
type InMemoryStorage struct {
	mu           sync.RWMutex
	users        map[string]auth.User
	budgets      map[string]budget.Budget
	transactions map[string]budget.Transaction
	tokens       map[auth.TokenPurpose]map[string]auth.Token // purpose -> token id -> token
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		users:        make(map[string]auth.User),
		budgets:      make(map[string]budget.Budget),
		transactions: make(map[string]budget.Transaction),
		tokens: map[auth.TokenPurpose]map[string]auth.Token{
			auth.PurposeVerifyEmail:   {},
			auth.PurposePasswordReset: {},
		},
	}
}

func (inMem *InMemoryStorage) GetStorageType() string {
	return "inmemory"
}

func notFound(what string) error {
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrNotFound,
		Message: what + " not found",
	}
}

// --- users ---

func (inMem *InMemoryStorage) SaveUser(ctx context.Context, user auth.User) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, u := range inMem.users {
		if u.Login == user.Login {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: "Login already exists.",
			}
		}
	}
	inMem.users[user.ID] = user
	return nil
}

func (inMem *InMemoryStorage) GetUserByID(ctx context.Context, id string) (auth.User, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	user, ok := inMem.users[id]
	if !ok {
		return auth.User{}, notFound("User")
	}
	return user, nil
}

func (inMem *InMemoryStorage) GetUserByLogin(ctx context.Context, login string) (auth.User, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	for _, u := range inMem.users {
		if u.Login == login {
			return u, nil
		}
	}
	return auth.User{}, notFound("User")
}

func (inMem *InMemoryStorage) UpdateUserProfile(ctx context.Context, id string, firstName, lastName *string, at time.Time) (auth.User, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	user, ok := inMem.users[id]
	if !ok {
		return auth.User{}, notFound("User")
	}
	if firstName != nil {
		user.FirstName = *firstName
	}
	if lastName != nil {
		user.LastName = *lastName
	}
	user.UpdatedAt = at
	inMem.users[id] = user
	return user, nil
}

func (inMem *InMemoryStorage) SetUserPassword(ctx context.Context, id string, passwordHashed string, at time.Time) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	user, ok := inMem.users[id]
	if !ok {
		return notFound("User")
	}
	user.PasswordHashed = passwordHashed
	user.UpdatedAt = at
	inMem.users[id] = user
	return nil
}

func (inMem *InMemoryStorage) MarkUserVerified(ctx context.Context, id string, at time.Time) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	user, ok := inMem.users[id]
	if !ok {
		return notFound("User")
	}
	user.IsVerified = true
	verifiedAt := at
	user.VerifiedAt = &verifiedAt
	user.UpdatedAt = at
	inMem.users[id] = user
	return nil
}

// --- tokens ---

func (inMem *InMemoryStorage) SaveToken(ctx context.Context, purpose auth.TokenPurpose, t auth.Token) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	bucket, ok := inMem.tokens[purpose]
	if !ok {
		return fmt.Errorf("unknown token purpose: %s", purpose)
	}
	for _, existing := range bucket {
		if existing.Token == t.Token {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: "Token already exists.",
			}
		}
	}
	bucket[t.ID] = t
	return nil
}

func (inMem *InMemoryStorage) GetActiveToken(ctx context.Context, purpose auth.TokenPurpose, token string, now time.Time) (auth.Token, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	for _, t := range inMem.tokens[purpose] {
		if t.Token == token && !t.Used && t.ExpireAt.After(now) {
			return t, nil
		}
	}
	return auth.Token{}, notFound("Token")
}

func (inMem *InMemoryStorage) MarkTokenUsed(ctx context.Context, purpose auth.TokenPurpose, tokenID string, at time.Time) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	t, ok := inMem.tokens[purpose][tokenID]
	if !ok {
		return notFound("Token")
	}
	t.Used = true
	usedAt := at
	t.UsedAt = &usedAt
	inMem.tokens[purpose][tokenID] = t
	return nil
}

func (inMem *InMemoryStorage) InvalidateUserTokens(ctx context.Context, purpose auth.TokenPurpose, userID string, at time.Time) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for id, t := range inMem.tokens[purpose] {
		if t.UserID == userID && !t.Used {
			t.Used = true
			usedAt := at
			t.UsedAt = &usedAt
			inMem.tokens[purpose][id] = t
		}
	}
	return nil
}

func (inMem *InMemoryStorage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	var removed int64
	for _, bucket := range inMem.tokens {
		for id, t := range bucket {
			if !t.ExpireAt.After(now) {
				delete(bucket, id)
				removed++
			}
		}
	}
	return removed, nil
}

// --- budgets ---

func (inMem *InMemoryStorage) SaveBudget(ctx context.Context, b budget.Budget) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, existing := range inMem.budgets {
		if existing.UserID == b.UserID && existing.Period == b.Period {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: fmt.Sprintf("A %s budget already exists for this user", b.Period),
			}
		}
	}
	inMem.budgets[b.ID] = b
	return nil
}

func (inMem *InMemoryStorage) GetBudgetByID(ctx context.Context, userID, id string) (budget.Budget, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	b, ok := inMem.budgets[id]
	if !ok || b.UserID != userID {
		return budget.Budget{}, notFound("Budget")
	}
	return b, nil
}

func (inMem *InMemoryStorage) GetBudgetByPeriod(ctx context.Context, userID, period string) (budget.Budget, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	var newest budget.Budget
	found := false
	for _, b := range inMem.budgets {
		if b.UserID == userID && b.Period == period {
			if !found || b.UpdatedAt.After(newest.UpdatedAt) {
				newest = b
				found = true
			}
		}
	}
	if !found {
		return budget.Budget{}, notFound("Budget")
	}
	return newest, nil
}

func (inMem *InMemoryStorage) HasOtherBudgetForPeriod(ctx context.Context, userID, period, excludeID string) (bool, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	for _, b := range inMem.budgets {
		if b.UserID == userID && b.Period == period && b.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (inMem *InMemoryStorage) ListBudgets(ctx context.Context, userID string, f budget.BudgetFilter) ([]budget.Budget, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	var result []budget.Budget
	for _, b := range inMem.budgets {
		if b.UserID != userID {
			continue
		}
		if f.Period != "" && b.Period != f.Period {
			continue
		}
		if f.NameContains != "" && !strings.Contains(strings.ToLower(b.Name), strings.ToLower(f.NameContains)) {
			continue
		}
		result = append(result, b)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return paginate(result, f.Limit, f.Offset), nil
}

func (inMem *InMemoryStorage) UpdateBudget(ctx context.Context, b budget.Budget) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	existing, ok := inMem.budgets[b.ID]
	if !ok || existing.UserID != b.UserID {
		return notFound("Budget")
	}
	for _, other := range inMem.budgets {
		if other.ID != b.ID && other.UserID == b.UserID && other.Period == b.Period {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: fmt.Sprintf("A %s budget already exists for this user", b.Period),
			}
		}
	}
	inMem.budgets[b.ID] = b
	return nil
}

func (inMem *InMemoryStorage) DeleteBudget(ctx context.Context, userID, id string) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	b, ok := inMem.budgets[id]
	if !ok || b.UserID != userID {
		return notFound("Budget")
	}
	delete(inMem.budgets, id)
	return nil
}

// --- transactions ---

func (inMem *InMemoryStorage) SaveTransaction(ctx context.Context, t budget.Transaction) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	inMem.transactions[t.ID] = t
	return nil
}

func (inMem *InMemoryStorage) GetTransactionByID(ctx context.Context, userID, id string) (budget.Transaction, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	t, ok := inMem.transactions[id]
	if !ok || t.UserID != userID {
		return budget.Transaction{}, notFound("Transaction")
	}
	return t, nil
}

func (inMem *InMemoryStorage) ListTransactions(ctx context.Context, userID string, f budget.TransactionFilter) ([]budget.Transaction, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	var result []budget.Transaction
	for _, t := range inMem.transactions {
		if t.UserID != userID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.Period != "" && t.Period != f.Period {
			continue
		}
		if f.From != nil && t.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && !t.Date.Before(*f.To) {
			continue
		}
		result = append(result, t)
	}

	// date desc, then id desc for a stable order within the same instant
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].ID > result[j].ID
	})
	return paginate(result, f.Limit, f.Offset), nil
}

func (inMem *InMemoryStorage) UpdateTransaction(ctx context.Context, t budget.Transaction) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	existing, ok := inMem.transactions[t.ID]
	if !ok || existing.UserID != t.UserID {
		return notFound("Transaction")
	}
	inMem.transactions[t.ID] = t
	return nil
}

func (inMem *InMemoryStorage) DeleteTransaction(ctx context.Context, userID, id string) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	t, ok := inMem.transactions[id]
	if !ok || t.UserID != userID {
		return notFound("Transaction")
	}
	delete(inMem.transactions, id)
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
