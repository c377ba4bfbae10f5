package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	appErrors "budgetbuddy/errors"
)

// windowFor derives the concrete [start, end) range a period resolves to at
// the given instant. Monthly, weekly and yearly windows are calendar-aligned
// in UTC (ISO weeks start Monday); anything else is the trailing 30 days.
func windowFor(period string, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch period {
	case PeriodMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	case PeriodWeekly:
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // days since Monday
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case PeriodYearly:
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	default:
		return now.Add(-30 * 24 * time.Hour), now
	}
}

func emptySummary() Summary {
	return Summary{
		Totals:       SummaryTotals{},
		Budget:       nil,
		Categories:   []CategorySummary{},
		Unknown:      UnknownSummary{MappedTo: OtherCategory},
		Transactions: []Transaction{},
	}
}

// Summarize produces the per-category spent/remaining ledger plus aggregate
// income/expense/net for one budget window. A user with no matching budget
// gets the zeroed shape, never an error.
func (bb *BudgetBuddy) Summarize(ctx context.Context, userID string, q SummaryQuery) (Summary, error) {
	period := strings.ToLower(strings.TrimSpace(q.Period))
	if period == "" {
		period = PeriodMonthly
	}

	var b Budget
	var err error
	if q.BudgetID != "" {
		b, err = bb.storage.GetBudgetByID(ctx, userID, q.BudgetID)
	} else {
		b, err = bb.storage.GetBudgetByPeriod(ctx, userID, period)
	}
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return emptySummary(), nil
		}
		return Summary{}, fmt.Errorf("failed to resolve budget for summary: %w", err)
	}

	// Window precedence: explicit budget dates beat everything, then an
	// explicit from/to override, then the period-derived default.
	var start, end time.Time
	if q.From != nil && q.To != nil {
		start, end = q.From.UTC(), q.To.UTC()
	} else {
		start, end = windowFor(period, time.Now())
	}
	if b.StartDate != nil && b.EndDate != nil {
		start, end = b.StartDate.UTC(), b.EndDate.UTC()
	}

	// Every transaction in the window, newest first; Limit 0 means no page cap.
	tx, err := bb.storage.ListTransactions(ctx, userID, TransactionFilter{
		From: &start,
		To:   &end,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load transactions for summary: %w", err)
	}

	var income, expense float64
	for _, t := range tx {
		switch t.Type {
		case TypeIncome:
			income += t.Amount
		case TypeExpense:
			expense += t.Amount
		}
	}

	type ledgerRow struct {
		name       string
		allocation float64
		spent      float64
	}
	ledger := make(map[string]*ledgerRow, len(b.Categories)+1)
	for _, c := range b.Categories {
		key := NormalizeKey(c.Name)
		if key == "" {
			continue
		}
		ledger[key] = &ledgerRow{name: c.Name, allocation: c.Allocation}
	}
	otherKey := NormalizeKey(OtherCategory)
	if _, ok := ledger[otherKey]; !ok {
		ledger[otherKey] = &ledgerRow{name: OtherCategory}
	}

	unknown := UnknownSummary{MappedTo: OtherCategory}
	for _, t := range tx {
		if t.Type != TypeExpense {
			continue
		}
		key := NormalizeKey(t.Category)
		row, ok := ledger[key]
		if !ok {
			row = ledger[otherKey]
			unknown.Transactions++
			unknown.Amount += t.Amount
		}
		row.spent += t.Amount
	}

	categories := make([]CategorySummary, 0, len(ledger))
	appendRow := func(row *ledgerRow) {
		cs := CategorySummary{
			Name:       row.name,
			Allocation: row.allocation,
			Spent:      round2(row.spent),
			Remaining:  round2(row.allocation - row.spent),
			Overspent:  row.spent > row.allocation,
		}
		if row.allocation > 0 {
			pct := round2(100 * row.spent / row.allocation)
			cs.PctUsed = &pct
		}
		categories = append(categories, cs)
	}

	declaredOther := false
	for _, c := range b.Categories {
		key := NormalizeKey(c.Name)
		if key == "" {
			continue
		}
		if key == otherKey {
			declaredOther = true
		}
		appendRow(ledger[key])
	}
	if !declaredOther {
		appendRow(ledger[otherKey])
	}

	var spent float64
	for _, c := range categories {
		spent += c.Spent
	}

	win := Window{Start: &start, End: &end}
	totals := SummaryTotals{
		Window:    win,
		Budgeted:  b.Limit,
		Spent:     round2(spent),
		Remaining: round2(b.Limit - spent),
		Overspent: spent > b.Limit,
		Income:    round2(income),
		Expense:   round2(expense),
		Net:       round2(income - expense),
	}

	unknown.Amount = round2(unknown.Amount)

	return Summary{
		Totals: totals,
		Budget: &BudgetSummaryView{
			Budget:    b,
			Spent:     totals.Spent,
			Remaining: totals.Remaining,
			Window:    win,
		},
		Categories:   categories,
		Unknown:      unknown,
		Transactions: tx,
	}, nil
}
