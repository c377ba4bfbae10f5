package budget

import (
	"strings"
	"time"
)

const (
	PeriodMonthly = "monthly"
	PeriodWeekly  = "weekly"
	PeriodYearly  = "yearly"
	PeriodCustom  = "custom"

	// OtherCategory absorbs expenses whose category matches nothing declared.
	OtherCategory = "Other"

	// AllocationTolerance bounds the allowed drift between the category
	// allocation sum and the budget limit.
	AllocationTolerance = 0.005

	MAX_BUDGET_PAGE_SIZE      = 100
	DEFAULT_BUDGET_PAGE_SIZE  = 20
	MAX_TX_PAGE_SIZE          = 200
	DEFAULT_TX_PAGE_SIZE      = 50
	MAX_NAME_LENGTH           = 255
	MAX_DESCRIPTION_LENGTH    = 1000
	MAX_PAYMENT_METHOD_LENGTH = 255
)

func IsValidPeriod(period string) bool {
	switch period {
	case PeriodMonthly, PeriodWeekly, PeriodYearly, PeriodCustom:
		return true
	}
	return false
}

// NormalizeKey derives the case-insensitive comparison key for category names.
func NormalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// MODELS:

type Category struct {
	Name       string
	Allocation float64
}

type Budget struct {
	ID         string
	UserID     string
	Name       string
	Period     string
	Limit      float64 // serialized as both "limit" and "total" at the boundary
	Categories []Category
	StartDate  *time.Time
	EndDate    *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FindCategory matches a name against the budget's categories
// case-insensitively and returns the stored casing.
func (b Budget) FindCategory(name string) (Category, bool) {
	key := NormalizeKey(name)
	for _, c := range b.Categories {
		if NormalizeKey(c.Name) == key {
			return c, true
		}
	}
	return Category{}, false
}

const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

type Transaction struct {
	ID            string
	UserID        string
	Amount        float64
	Type          string
	Category      string
	Description   string
	PaymentMethod string
	Period        string // period of the budget it was validated against
	Date          time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// REQUESTS:

type CreateBudgetRequest struct {
	Name       string
	Period     string
	Limit      float64
	Categories []Category
	StartDate  *time.Time
	EndDate    *time.Time
}

// BudgetUpdate carries partial changes; nil pointers mean "leave alone".
// Dates can be cleared explicitly via the Clear flags.
type BudgetUpdate struct {
	Name       *string
	Limit      *float64
	Period     *string
	StartDate  *time.Time
	EndDate    *time.Time
	ClearStart bool
	ClearEnd   bool
	Categories []Category // nil means not provided
}

func (u BudgetUpdate) IsEmpty() bool {
	return u.Name == nil && u.Limit == nil && u.Period == nil &&
		u.StartDate == nil && u.EndDate == nil &&
		!u.ClearStart && !u.ClearEnd && u.Categories == nil
}

type TransactionRequest struct {
	Type          string
	Amount        float64
	Date          time.Time
	Period        string
	Category      string
	Description   string
	PaymentMethod string
}

// FILTERS:

type BudgetFilter struct {
	Period       string
	NameContains string
	Limit        int
	Offset       int
}

type TransactionFilter struct {
	Type     string
	Category string
	Period   string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// PAGES:

type BudgetPage struct {
	Items      []Budget
	Limit      int
	Offset     int
	NextOffset *int
}

type TransactionPage struct {
	Items      []Transaction
	Limit      int
	Offset     int
	NextOffset *int
}

// SUMMARY:

type SummaryQuery struct {
	Period   string
	BudgetID string
	From     *time.Time
	To       *time.Time
}

type Window struct {
	Start *time.Time
	End   *time.Time
}

type SummaryTotals struct {
	Window    Window
	Budgeted  float64
	Spent     float64
	Remaining float64
	Overspent bool
	Income    float64
	Expense   float64
	Net       float64
}

type CategorySummary struct {
	Name       string
	Allocation float64
	Spent      float64
	Remaining  float64
	PctUsed    *float64 // nil when allocation is zero
	Overspent  bool
}

type UnknownSummary struct {
	MappedTo     string
	Transactions int
	Amount       float64
}

type BudgetSummaryView struct {
	Budget
	Spent     float64
	Remaining float64
	Window    Window
}

type Summary struct {
	Totals       SummaryTotals
	Budget       *BudgetSummaryView // nil when the user has no matching budget
	Categories   []CategorySummary
	Unknown      UnknownSummary
	Transactions []Transaction
}
