package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	appErrors "budgetbuddy/errors"

	"budgetbuddy/internal/budget"

	"budgetbuddy/internal/auth"
)

// REQUESTS START:

type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Login     string `json:"login"`
	Email     string `json:"email"` // alias for login
	Password  string `json:"password"`
}

func (r RegisterRequest) login() string {
	if r.Login != "" {
		return r.Login
	}
	return r.Email
}

type LoginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) login() string {
	if r.Login != "" {
		return r.Login
	}
	return r.Email
}

type ResendVerificationRequest struct {
	Login string `json:"login"`
	Email string `json:"email"`
}

type PasswordResetRequestRequest struct {
	Login string `json:"login"`
	Email string `json:"email"`
}

type PasswordResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type PasswordChangeRequest struct {
	Login       string `json:"login"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type CategoryPayload struct {
	Name       string  `json:"name"`
	Allocation float64 `json:"allocation"`
}

type CreateBudgetRequest struct {
	UserID     string            `json:"userId"`
	Name       string            `json:"name"`
	Period     string            `json:"period"`
	Total      *float64          `json:"total"`
	Limit      *float64          `json:"limit"`
	Categories []CategoryPayload `json:"categories"`
	StartDate  *string           `json:"startDate"`
	EndDate    *string           `json:"endDate"`
}

// UpdateBudgetRequest uses pointers so absent fields stay untouched;
// an empty-string date clears it.
type UpdateBudgetRequest struct {
	UserID     string            `json:"userId"`
	ID         string            `json:"id"`
	Name       *string           `json:"name"`
	Total      *float64          `json:"total"`
	Limit      *float64          `json:"limit"`
	Period     *string           `json:"period"`
	StartDate  *string           `json:"startDate"`
	EndDate    *string           `json:"endDate"`
	Categories []CategoryPayload `json:"categories"`
}

type SaveTransactionRequest struct {
	UserID        string  `json:"userId"`
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	Date          string  `json:"date"`
	Period        string  `json:"period"`
	Category      string  `json:"category"`
	Description   string  `json:"description"`
	PaymentMethod string  `json:"paymentMethod"`
}

// REQUESTS END:

// RESPONSES:

type ErrorResponse struct {
	Error string `json:"error"`
}

type MailStatus struct {
	OK    int    `json:"ok"`
	Error string `json:"error"`
}

type RegisterResponse struct {
	ID            string      `json:"id"`
	FirstName     string      `json:"firstName"`
	LastName      string      `json:"lastName"`
	Error         string      `json:"error"`
	DevVerifyLink string      `json:"dev_verifyLink,omitempty"`
	Mail          *MailStatus `json:"mail,omitempty"`
}

type LoginResponse struct {
	ID               string `json:"id"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Error            string `json:"error"`
	NeedVerification bool   `json:"needVerification,omitempty"`
}

type OkResponse struct {
	OK            int         `json:"ok"`
	Mode          string      `json:"mode,omitempty"`
	Message       string      `json:"message,omitempty"`
	Error         string      `json:"error"`
	DevVerifyLink string      `json:"dev_verifyLink,omitempty"`
	DevResetLink  string      `json:"dev_resetLink,omitempty"`
	Mail          *MailStatus `json:"mail,omitempty"`
}

type UserItem struct {
	ID         string `json:"_id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Login      string `json:"login"`
	IsVerified bool   `json:"isVerified"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
	VerifiedAt string `json:"verifiedAt,omitempty"`
}

type UserItemResponse struct {
	Item  UserItem `json:"item"`
	Error string   `json:"error"`
}

type BudgetItem struct {
	ID         string            `json:"_id"`
	UserID     string            `json:"userId"`
	Name       string            `json:"name"`
	Limit      float64           `json:"limit"`
	Total      float64           `json:"total"` // same value as limit, kept for back-compat
	Period     string            `json:"period"`
	StartDate  *string           `json:"startDate"`
	EndDate    *string           `json:"endDate"`
	Categories []CategoryPayload `json:"categories"`
	CreatedAt  string            `json:"createdAt"`
	UpdatedAt  string            `json:"updatedAt"`
}

type BudgetItemResponse struct {
	Item  BudgetItem `json:"item"`
	Error string     `json:"error"`
}

type BudgetListResponse struct {
	Items      []BudgetItem `json:"items"`
	Limit      int          `json:"limit"`
	Offset     int          `json:"offset"`
	NextOffset *int         `json:"nextOffset"`
	Error      string       `json:"error"`
}

type TransactionItem struct {
	ID            string  `json:"_id"`
	UserID        string  `json:"userId"`
	Amount        float64 `json:"amount"`
	Type          string  `json:"type"`
	Category      string  `json:"category"`
	Description   string  `json:"description"`
	PaymentMethod string  `json:"paymentMethod"`
	Period        string  `json:"period"`
	Date          string  `json:"date"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

type TransactionItemResponse struct {
	Item  TransactionItem `json:"item"`
	Error string          `json:"error"`
}

type TransactionListResponse struct {
	Items      []TransactionItem `json:"items"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
	NextOffset *int              `json:"nextOffset"`
	Error      string            `json:"error"`
}

type DeleteResponse struct {
	OK        int    `json:"ok"`
	DeletedID string `json:"deletedId"`
	Error     string `json:"error"`
}

type WindowItem struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type SummaryTotalsItem struct {
	Period    WindowItem `json:"period"`
	Budgeted  float64    `json:"budgeted"`
	Spent     float64    `json:"spent"`
	Remaining float64    `json:"remaining"`
	Overspent bool       `json:"overspent"`
	Income    float64    `json:"income"`
	Expense   float64    `json:"expense"`
	Net       float64    `json:"net"`
}

type SummaryCategoryItem struct {
	Name       string   `json:"name"`
	Allocation float64  `json:"allocation"`
	Spent      float64  `json:"spent"`
	Remaining  float64  `json:"remaining"`
	PctUsed    *float64 `json:"pctUsed"`
	Overspent  bool     `json:"overspent"`
}

type SummaryUnknownItem struct {
	MappedTo     string  `json:"mappedTo"`
	Transactions int     `json:"transactions"`
	Amount       float64 `json:"amount"`
}

type SummaryBudgetItem struct {
	ID        string     `json:"_id"`
	Name      string     `json:"name"`
	Period    string     `json:"period"`
	Limit     float64    `json:"limit"`
	Spent     float64    `json:"spent"`
	Remaining float64    `json:"remaining"`
	Window    WindowItem `json:"window"`
	CreatedAt string     `json:"createdAt"`
	UpdatedAt string     `json:"updatedAt"`
	StartDate *string    `json:"startDate"`
	EndDate   *string    `json:"endDate"`
}

type SummaryResponse struct {
	Totals       SummaryTotalsItem     `json:"totals"`
	Budget       *SummaryBudgetItem    `json:"budget"`
	Categories   []SummaryCategoryItem `json:"categories"`
	Unknown      SummaryUnknownItem    `json:"unknown"`
	Transactions []TransactionItem     `json:"transactions"`
	Error        string                `json:"error"`
}

func httpStatusFromError(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrNotFound):
		return 404 // not found
	case errors.Is(err, appErrors.ErrInvalidInput):
		return 400 // bad request
	case errors.Is(err, appErrors.ErrAuth):
		return 401 // unauthorized
	case errors.Is(err, appErrors.ErrConflict):
		return 409 // conflict
	default:
		return 500 //internal error
	}
}

// errorMessage strips the sentinel prefix fmt.Errorf wrapping leaves behind
// so clients see only the human text.
func errorMessage(err error) string {
	var resp appErrors.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Message
	}
	msg := err.Error()
	for _, code := range []error{
		appErrors.ErrNotFound, appErrors.ErrInvalidInput, appErrors.ErrAuth,
		appErrors.ErrConflict, appErrors.ErrDependency, appErrors.ErrInternal,
	} {
		prefix := code.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

const dateOnlyLayout = "2006-01-02"

// ParseDateMaybe accepts RFC3339 or a plain date; empty means "not set".
func ParseDateMaybe(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse(dateOnlyLayout, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	return nil, fmt.Errorf("%w: Invalid date format: %s", appErrors.ErrInvalidInput, v)
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func isoTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := isoTime(*t)
	return &s
}

func categoriesToHttp(categories []budget.Category) []CategoryPayload {
	out := make([]CategoryPayload, 0, len(categories))
	for _, c := range categories {
		out = append(out, CategoryPayload{Name: c.Name, Allocation: c.Allocation})
	}
	return out
}

func categoriesFromHttp(payload []CategoryPayload) []budget.Category {
	if payload == nil {
		return nil
	}
	out := make([]budget.Category, 0, len(payload))
	for _, c := range payload {
		out = append(out, budget.Category{Name: c.Name, Allocation: c.Allocation})
	}
	return out
}

func UserToHttp(user auth.User) UserItem {
	item := UserItem{
		ID:         user.ID,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Login:      user.Login,
		IsVerified: user.IsVerified,
	}
	if !user.CreatedAt.IsZero() {
		item.CreatedAt = isoTime(user.CreatedAt)
	}
	if !user.UpdatedAt.IsZero() {
		item.UpdatedAt = isoTime(user.UpdatedAt)
	}
	if user.VerifiedAt != nil {
		item.VerifiedAt = isoTime(*user.VerifiedAt)
	}
	return item
}

func BudgetToHttp(b budget.Budget) BudgetItem {
	return BudgetItem{
		ID:         b.ID,
		UserID:     b.UserID,
		Name:       b.Name,
		Limit:      b.Limit,
		Total:      b.Limit,
		Period:     b.Period,
		StartDate:  isoTimePtr(b.StartDate),
		EndDate:    isoTimePtr(b.EndDate),
		Categories: categoriesToHttp(b.Categories),
		CreatedAt:  isoTime(b.CreatedAt),
		UpdatedAt:  isoTime(b.UpdatedAt),
	}
}

func TransactionToHttp(t budget.Transaction) TransactionItem {
	return TransactionItem{
		ID:            t.ID,
		UserID:        t.UserID,
		Amount:        t.Amount,
		Type:          t.Type,
		Category:      t.Category,
		Description:   t.Description,
		PaymentMethod: t.PaymentMethod,
		Period:        t.Period,
		Date:          isoTime(t.Date),
		CreatedAt:     isoTime(t.CreatedAt),
		UpdatedAt:     isoTime(t.UpdatedAt),
	}
}

func windowToHttp(w budget.Window) WindowItem {
	return WindowItem{Start: isoTimePtr(w.Start), End: isoTimePtr(w.End)}
}

func SummaryToHttp(s budget.Summary) SummaryResponse {
	resp := SummaryResponse{
		Totals: SummaryTotalsItem{
			Period:    windowToHttp(s.Totals.Window),
			Budgeted:  s.Totals.Budgeted,
			Spent:     s.Totals.Spent,
			Remaining: s.Totals.Remaining,
			Overspent: s.Totals.Overspent,
			Income:    s.Totals.Income,
			Expense:   s.Totals.Expense,
			Net:       s.Totals.Net,
		},
		Categories:   make([]SummaryCategoryItem, 0, len(s.Categories)),
		Unknown:      SummaryUnknownItem{MappedTo: s.Unknown.MappedTo, Transactions: s.Unknown.Transactions, Amount: s.Unknown.Amount},
		Transactions: make([]TransactionItem, 0, len(s.Transactions)),
	}
	for _, c := range s.Categories {
		resp.Categories = append(resp.Categories, SummaryCategoryItem{
			Name:       c.Name,
			Allocation: c.Allocation,
			Spent:      c.Spent,
			Remaining:  c.Remaining,
			PctUsed:    c.PctUsed,
			Overspent:  c.Overspent,
		})
	}
	for _, t := range s.Transactions {
		resp.Transactions = append(resp.Transactions, TransactionToHttp(t))
	}
	if s.Budget != nil {
		resp.Budget = &SummaryBudgetItem{
			ID:        s.Budget.ID,
			Name:      s.Budget.Name,
			Period:    s.Budget.Period,
			Limit:     s.Budget.Limit,
			Spent:     s.Budget.Spent,
			Remaining: s.Budget.Remaining,
			Window:    windowToHttp(s.Budget.Window),
			CreatedAt: isoTime(s.Budget.CreatedAt),
			UpdatedAt: isoTime(s.Budget.UpdatedAt),
			StartDate: isoTimePtr(s.Budget.StartDate),
			EndDate:   isoTimePtr(s.Budget.EndDate),
		}
	}
	return resp
}

// BudgetListCheckParams validates ?period=&q=&limit=&offset= for listing.
func BudgetListCheckParams(params url.Values) (budget.BudgetFilter, error) {
	var filter budget.BudgetFilter
	filter.Period = strings.ToLower(strings.TrimSpace(params.Get("period")))
	filter.NameContains = strings.TrimSpace(params.Get("q"))

	limit, offset, err := pageParams(params, budget.DEFAULT_BUDGET_PAGE_SIZE, budget.MAX_BUDGET_PAGE_SIZE)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}

// TransactionListCheckParams validates the listing filters; date range is
// half-open [from, to).
func TransactionListCheckParams(params url.Values) (budget.TransactionFilter, error) {
	var filter budget.TransactionFilter

	if t := params.Get("type"); t != "" {
		s := strings.ToLower(strings.TrimSpace(t))
		if s != budget.TypeIncome && s != budget.TypeExpense {
			return filter, fmt.Errorf(`%w: Invalid type (use "income" or "expense")`, appErrors.ErrInvalidInput)
		}
		filter.Type = s
	}
	filter.Category = strings.TrimSpace(params.Get("category"))
	filter.Period = strings.ToLower(strings.TrimSpace(params.Get("period")))

	from, err := ParseDateMaybe(params.Get("from"))
	if err != nil {
		return filter, fmt.Errorf("%w: Invalid from date", appErrors.ErrInvalidInput)
	}
	filter.From = from

	to, err := ParseDateMaybe(params.Get("to"))
	if err != nil {
		return filter, fmt.Errorf("%w: Invalid to date", appErrors.ErrInvalidInput)
	}
	filter.To = to

	limit, offset, err := pageParams(params, budget.DEFAULT_TX_PAGE_SIZE, budget.MAX_TX_PAGE_SIZE)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}

func pageParams(params url.Values, def, max int) (limit, offset int, err error) {
	limit = def
	if v := params.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: invalid limit: %s", appErrors.ErrInvalidInput, v)
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > max {
		limit = max
	}
	if v := params.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: invalid offset: %s", appErrors.ErrInvalidInput, v)
		}
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset, nil
}
