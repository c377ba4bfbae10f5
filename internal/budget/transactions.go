package budget

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	appErrors "budgetbuddy/errors"

	"github.com/google/uuid"
)

func parseTransactionType(t string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(t))
	if s == TypeIncome || s == TypeExpense {
		return s, nil
	}
	return "", appErrors.ErrorResponse{
		Code:    appErrors.ErrInvalidInput,
		Message: `Invalid type (use "income" or "expense")`,
	}
}

// resolveExpenseCategory maps a requested category onto the budget's declared
// list: case-insensitive match wins, a literal "Other" category absorbs the
// rest, and a budget with neither rejects the expense.
func resolveExpenseCategory(requested string, b Budget) (string, error) {
	if c, ok := b.FindCategory(requested); ok {
		return c.Name, nil
	}
	if c, ok := b.FindCategory(OtherCategory); ok {
		return c.Name, nil
	}
	return "", appErrors.ErrorResponse{
		Code:    appErrors.ErrInvalidInput,
		Message: `Category not in budget (and no "Other" category found)`,
	}
}

func (bb *BudgetBuddy) validateTransaction(ctx context.Context, userID string, req TransactionRequest) (TransactionRequest, error) {
	t, err := parseTransactionType(req.Type)
	if err != nil {
		return TransactionRequest{}, err
	}
	req.Type = t

	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return TransactionRequest{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Invalid amount (must be > 0)",
		}
	}
	if len(req.Description) > MAX_DESCRIPTION_LENGTH {
		return TransactionRequest{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Description is too long, the limit is: %d", MAX_DESCRIPTION_LENGTH),
		}
	}
	if len(req.PaymentMethod) > MAX_PAYMENT_METHOD_LENGTH {
		return TransactionRequest{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Payment method is too long, the limit is: %d", MAX_PAYMENT_METHOD_LENGTH),
		}
	}

	if req.Date.IsZero() {
		req.Date = time.Now().UTC()
	}
	req.Period = strings.ToLower(strings.TrimSpace(req.Period))
	if req.Period == "" {
		req.Period = PeriodMonthly
	}

	b, err := bb.storage.GetBudgetByPeriod(ctx, userID, req.Period)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return TransactionRequest{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrInvalidInput,
				Message: fmt.Sprintf("No %s budget found for this user", req.Period),
			}
		}
		return TransactionRequest{}, err
	}

	category := strings.TrimSpace(req.Category)
	if req.Type == TypeExpense {
		category, err = resolveExpenseCategory(category, b)
		if err != nil {
			return TransactionRequest{}, err
		}
	} else if category != "" {
		// Income categories are free-form; adopt the budget's casing when it
		// happens to match one.
		if c, ok := b.FindCategory(category); ok {
			category = c.Name
		}
	}
	req.Category = category
	return req, nil
}

func (bb *BudgetBuddy) CreateTransaction(ctx context.Context, userID string, req TransactionRequest) (Transaction, error) {
	req, err := bb.validateTransaction(ctx, userID, req)
	if err != nil {
		return Transaction{}, err
	}

	now := time.Now().UTC()
	txn := Transaction{
		ID:            uuid.New().String(),
		UserID:        userID,
		Amount:        req.Amount,
		Type:          req.Type,
		Category:      req.Category,
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
		Period:        req.Period,
		Date:          req.Date,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := bb.storage.SaveTransaction(ctx, txn); err != nil {
		return Transaction{}, fmt.Errorf("failed to save transaction: %w", err)
	}
	return txn, nil
}

// UpdateTransaction replaces the mutable fields of an owned transaction and
// re-runs the same category/budget validation as create.
func (bb *BudgetBuddy) UpdateTransaction(ctx context.Context, userID, id string, req TransactionRequest) (Transaction, error) {
	txn, err := bb.storage.GetTransactionByID(ctx, userID, id)
	if err != nil {
		return Transaction{}, err
	}

	req, err = bb.validateTransaction(ctx, userID, req)
	if err != nil {
		return Transaction{}, err
	}

	txn.Amount = req.Amount
	txn.Type = req.Type
	txn.Category = req.Category
	txn.Description = req.Description
	txn.PaymentMethod = req.PaymentMethod
	txn.Period = req.Period
	txn.Date = req.Date
	txn.UpdatedAt = time.Now().UTC()

	if err := bb.storage.UpdateTransaction(ctx, txn); err != nil {
		return Transaction{}, fmt.Errorf("failed to update transaction: %w", err)
	}
	return txn, nil
}

func (bb *BudgetBuddy) GetTransaction(ctx context.Context, userID, id string) (Transaction, error) {
	return bb.storage.GetTransactionByID(ctx, userID, id)
}

func (bb *BudgetBuddy) ListTransactions(ctx context.Context, userID string, f TransactionFilter) (TransactionPage, error) {
	if f.Type != "" {
		t, err := parseTransactionType(f.Type)
		if err != nil {
			return TransactionPage{}, err
		}
		f.Type = t
	}
	f.Category = strings.TrimSpace(f.Category)
	f.Period = strings.ToLower(strings.TrimSpace(f.Period))
	if f.Limit <= 0 {
		f.Limit = DEFAULT_TX_PAGE_SIZE
	}
	if f.Limit > MAX_TX_PAGE_SIZE {
		f.Limit = MAX_TX_PAGE_SIZE
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	items, err := bb.storage.ListTransactions(ctx, userID, f)
	if err != nil {
		return TransactionPage{}, fmt.Errorf("failed to list transactions: %w", err)
	}

	page := TransactionPage{Items: items, Limit: f.Limit, Offset: f.Offset}
	if len(items) == f.Limit {
		next := f.Offset + f.Limit
		page.NextOffset = &next
	}
	return page, nil
}

func (bb *BudgetBuddy) DeleteTransaction(ctx context.Context, userID, id string) error {
	return bb.storage.DeleteTransaction(ctx, userID, id)
}
