package budget

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	appErrors "budgetbuddy/errors"

	"github.com/google/uuid"
)

func validateCategories(raw []Category) ([]Category, error) {
	if len(raw) == 0 {
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "categories is required and must be a non-empty array",
		}
	}

	out := make([]Category, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, c := range raw {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, appErrors.ErrorResponse{
				Code:    appErrors.ErrInvalidInput,
				Message: "Each category needs a non-empty name",
			}
		}
		if len(name) > MAX_NAME_LENGTH {
			return nil, appErrors.ErrorResponse{
				Code:    appErrors.ErrInvalidInput,
				Message: fmt.Sprintf("Category name is too long, the limit is: %d", MAX_NAME_LENGTH),
			}
		}
		key := NormalizeKey(name)
		if seen[key] {
			return nil, appErrors.ErrorResponse{
				Code:    appErrors.ErrInvalidInput,
				Message: fmt.Sprintf("Duplicate category name '%s'", name),
			}
		}
		seen[key] = true
		if math.IsNaN(c.Allocation) || math.IsInf(c.Allocation, 0) || c.Allocation < 0 {
			return nil, appErrors.ErrorResponse{
				Code:    appErrors.ErrInvalidInput,
				Message: fmt.Sprintf("Invalid allocation for category '%s'", name),
			}
		}
		out = append(out, Category{Name: name, Allocation: c.Allocation})
	}
	return out, nil
}

func assertAllocationsEqualTotal(categories []Category, total float64) error {
	var sum float64
	for _, c := range categories {
		sum += c.Allocation
	}
	if math.Abs(sum-total) > AllocationTolerance {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Category allocations (%g) must equal total (%g)", sum, total),
		}
	}
	return nil
}

func (bb *BudgetBuddy) CreateBudget(ctx context.Context, userID string, req CreateBudgetRequest) (Budget, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Main"
	}
	period := strings.ToLower(strings.TrimSpace(req.Period))
	if period == "" {
		period = PeriodMonthly
	}
	if !IsValidPeriod(period) {
		return Budget{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Invalid period; use monthly, weekly, yearly, or custom",
		}
	}
	if math.IsNaN(req.Limit) || math.IsInf(req.Limit, 0) || req.Limit < 0 {
		return Budget{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "total/limit must be a non-negative number",
		}
	}

	categories, err := validateCategories(req.Categories)
	if err != nil {
		return Budget{}, err
	}
	if err := assertAllocationsEqualTotal(categories, req.Limit); err != nil {
		return Budget{}, err
	}

	now := time.Now().UTC()
	b := Budget{
		ID:         uuid.New().String(),
		UserID:     userID,
		Name:       name,
		Period:     period,
		Limit:      req.Limit,
		Categories: categories,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// The unique (user, period) index decides concurrent creates; the loser
	// surfaces as Conflict.
	if err := bb.storage.SaveBudget(ctx, b); err != nil {
		return Budget{}, err
	}
	return b, nil
}

func (bb *BudgetBuddy) GetBudget(ctx context.Context, userID, id string) (Budget, error) {
	return bb.storage.GetBudgetByID(ctx, userID, id)
}

func (bb *BudgetBuddy) UpdateBudget(ctx context.Context, userID, id string, update BudgetUpdate) (Budget, error) {
	if update.IsEmpty() {
		return Budget{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "No fields to update",
		}
	}

	b, err := bb.storage.GetBudgetByID(ctx, userID, id)
	if err != nil {
		return Budget{}, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return Budget{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrInvalidInput,
				Message: "name cannot be empty",
			}
		}
		b.Name = name
	}
	if update.Limit != nil {
		if math.IsNaN(*update.Limit) || math.IsInf(*update.Limit, 0) || *update.Limit < 0 {
			return Budget{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrInvalidInput,
				Message: "total/limit must be a non-negative number",
			}
		}
		b.Limit = *update.Limit
	}
	if update.Period != nil {
		period := strings.ToLower(strings.TrimSpace(*update.Period))
		if !IsValidPeriod(period) {
			return Budget{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrInvalidInput,
				Message: "Invalid period; use monthly, weekly, yearly, or custom",
			}
		}
		if period != b.Period {
			taken, err := bb.storage.HasOtherBudgetForPeriod(ctx, userID, period, b.ID)
			if err != nil {
				return Budget{}, err
			}
			if taken {
				return Budget{}, appErrors.ErrorResponse{
					Code:    appErrors.ErrConflict,
					Message: fmt.Sprintf("A %s budget already exists for this user", period),
				}
			}
		}
		b.Period = period
	}
	if update.ClearStart {
		b.StartDate = nil
	} else if update.StartDate != nil {
		b.StartDate = update.StartDate
	}
	if update.ClearEnd {
		b.EndDate = nil
	} else if update.EndDate != nil {
		b.EndDate = update.EndDate
	}

	if update.Categories != nil {
		categories, err := validateCategories(update.Categories)
		if err != nil {
			return Budget{}, err
		}
		b.Categories = categories
	}
	// Re-check the sum whenever either side of the invariant moved,
	// against whichever values are newest.
	if update.Categories != nil || update.Limit != nil {
		if err := assertAllocationsEqualTotal(b.Categories, b.Limit); err != nil {
			return Budget{}, err
		}
	}

	b.UpdatedAt = time.Now().UTC()
	if err := bb.storage.UpdateBudget(ctx, b); err != nil {
		return Budget{}, err
	}
	return b, nil
}

func (bb *BudgetBuddy) ListBudgets(ctx context.Context, userID string, f BudgetFilter) (BudgetPage, error) {
	if f.Limit <= 0 {
		f.Limit = DEFAULT_BUDGET_PAGE_SIZE
	}
	if f.Limit > MAX_BUDGET_PAGE_SIZE {
		f.Limit = MAX_BUDGET_PAGE_SIZE
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Period = strings.ToLower(strings.TrimSpace(f.Period))

	items, err := bb.storage.ListBudgets(ctx, userID, f)
	if err != nil {
		return BudgetPage{}, fmt.Errorf("failed to list budgets: %w", err)
	}

	page := BudgetPage{Items: items, Limit: f.Limit, Offset: f.Offset}
	if len(items) == f.Limit {
		next := f.Offset + f.Limit
		page.NextOffset = &next
	}
	return page, nil
}

func (bb *BudgetBuddy) DeleteBudget(ctx context.Context, userID, id string) error {
	return bb.storage.DeleteBudget(ctx, userID, id)
}
