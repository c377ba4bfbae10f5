package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	appErrors "budgetbuddy/errors"
	"budgetbuddy/internal/auth"
	"budgetbuddy/internal/budget"
	"budgetbuddy/internal/contextutil"
	"budgetbuddy/logging"
)

// sqlStore holds the queries shared by the MySQL and SQLite backends; both
// speak database/sql with ? placeholders, only duplicate-key detection
// differs per driver.
type sqlStore struct {
	db          *sql.DB
	isDuplicate func(error) bool
}

func internalError(ctx context.Context, op string, err error, msg string) error {
	logging.Logger.Errorf("[TraceID=%s] | %s failed | Error: %v", contextutil.TraceIDFromContext(ctx), op, err)
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrDependency,
		Message: msg,
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

// --- users ---

func (s *sqlStore) SaveUser(ctx context.Context, user auth.User) error {
	query := `INSERT INTO users (id, first_name, last_name, login, hashed_password, is_verified, created_at, updated_at, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.FirstName, user.LastName, user.Login, user.PasswordHashed,
		user.IsVerified, user.CreatedAt, user.UpdatedAt, nullTime(user.VerifiedAt))
	if err != nil {
		if s.isDuplicate(err) {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: "Login already exists.",
			}
		}
		return internalError(ctx, "Storage.SaveUser()", err, "Registration failed, try again later.")
	}
	return nil
}

const userColumns = `id, first_name, last_name, login, hashed_password, is_verified, created_at, updated_at, verified_at`

func (s *sqlStore) scanUser(row *sql.Row) (auth.User, error) {
	var u dbUser
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Login, &u.PasswordHashed,
		&u.IsVerified, &u.CreatedAt, &u.UpdatedAt, &u.VerifiedAt)
	if err != nil {
		return auth.User{}, err
	}
	return auth.User{
		ID:             u.ID,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Login:          u.Login,
		PasswordHashed: u.PasswordHashed,
		IsVerified:     u.IsVerified,
		CreatedAt:      u.CreatedAt.Time,
		UpdatedAt:      u.UpdatedAt.Time,
		VerifiedAt:     timePtr(u.VerifiedAt),
	}, nil
}

func (s *sqlStore) getUser(ctx context.Context, where string, arg any) (auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	user, err := s.scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrNotFound,
				Message: "User not found",
			}
		}
		return auth.User{}, internalError(ctx, "Storage.getUser()", err, "Failed to load user, try again later.")
	}
	return user, nil
}

func (s *sqlStore) GetUserByID(ctx context.Context, id string) (auth.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *sqlStore) GetUserByLogin(ctx context.Context, login string) (auth.User, error) {
	return s.getUser(ctx, "login = ?", login)
}

func (s *sqlStore) UpdateUserProfile(ctx context.Context, id string, firstName, lastName *string, at time.Time) (auth.User, error) {
	set := []string{"updated_at = ?"}
	args := []any{at}
	if firstName != nil {
		set = append(set, "first_name = ?")
		args = append(args, *firstName)
	}
	if lastName != nil {
		set = append(set, "last_name = ?")
		args = append(args, *lastName)
	}
	args = append(args, id)

	query := "UPDATE users SET " + strings.Join(set, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return auth.User{}, internalError(ctx, "Storage.UpdateUserProfile()", err, "Failed to update profile, try again later.")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.User{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "User not found",
		}
	}
	return s.GetUserByID(ctx, id)
}

func (s *sqlStore) SetUserPassword(ctx context.Context, id string, passwordHashed string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET hashed_password = ?, updated_at = ? WHERE id = ?",
		passwordHashed, at, id)
	if err != nil {
		return internalError(ctx, "Storage.SetUserPassword()", err, "Failed to update password, try again later.")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "User not found",
		}
	}
	return nil
}

func (s *sqlStore) MarkUserVerified(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_verified = ?, verified_at = ?, updated_at = ? WHERE id = ?",
		true, at, at, id)
	if err != nil {
		return internalError(ctx, "Storage.MarkUserVerified()", err, "Failed to verify user, try again later.")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "User not found",
		}
	}
	return nil
}

// --- tokens ---

// tokenTable whitelists the purpose -> table mapping.
func tokenTable(purpose auth.TokenPurpose) (string, error) {
	switch purpose {
	case auth.PurposeVerifyEmail:
		return "email_verification", nil
	case auth.PurposePasswordReset:
		return "password_reset", nil
	}
	return "", fmt.Errorf("unknown token purpose: %s", purpose)
}

func (s *sqlStore) SaveToken(ctx context.Context, purpose auth.TokenPurpose, t auth.Token) error {
	table, err := tokenTable(purpose)
	if err != nil {
		return err
	}
	query := "INSERT INTO " + table + " (id, user_id, token, expire_at, used, created_at, used_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
	_, err = s.db.ExecContext(ctx, query, t.ID, t.UserID, t.Token, t.ExpireAt, t.Used, t.CreatedAt, nullTime(t.UsedAt))
	if err != nil {
		if s.isDuplicate(err) {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: "Token already exists.",
			}
		}
		return internalError(ctx, "Storage.SaveToken()", err, "Failed to save token, try again later.")
	}
	return nil
}

func (s *sqlStore) GetActiveToken(ctx context.Context, purpose auth.TokenPurpose, token string, now time.Time) (auth.Token, error) {
	table, err := tokenTable(purpose)
	if err != nil {
		return auth.Token{}, err
	}
	query := "SELECT id, user_id, token, expire_at, used, created_at, used_at FROM " + table +
		" WHERE token = ? AND used = ? AND expire_at > ?"

	var t dbToken
	err = s.db.QueryRowContext(ctx, query, token, false, now).
		Scan(&t.ID, &t.UserID, &t.Token, &t.ExpireAt, &t.Used, &t.CreatedAt, &t.UsedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Token{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrNotFound,
				Message: "Token not found",
			}
		}
		return auth.Token{}, internalError(ctx, "Storage.GetActiveToken()", err, "Failed to check token, try again later.")
	}
	return auth.Token{
		ID:        t.ID,
		UserID:    t.UserID,
		Token:     t.Token,
		ExpireAt:  t.ExpireAt.Time,
		Used:      t.Used,
		CreatedAt: t.CreatedAt.Time,
		UsedAt:    timePtr(t.UsedAt),
	}, nil
}

func (s *sqlStore) MarkTokenUsed(ctx context.Context, purpose auth.TokenPurpose, tokenID string, at time.Time) error {
	table, err := tokenTable(purpose)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET used = ?, used_at = ? WHERE id = ? AND used = ?",
		true, at, tokenID, false)
	if err != nil {
		return internalError(ctx, "Storage.MarkTokenUsed()", err, "Failed to consume token, try again later.")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "Token not found",
		}
	}
	return nil
}

func (s *sqlStore) InvalidateUserTokens(ctx context.Context, purpose auth.TokenPurpose, userID string, at time.Time) error {
	table, err := tokenTable(purpose)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE "+table+" SET used = ?, used_at = ? WHERE user_id = ? AND used = ?",
		true, at, userID, false)
	if err != nil {
		return internalError(ctx, "Storage.InvalidateUserTokens()", err, "Failed to invalidate tokens, try again later.")
	}
	return nil
}

func (s *sqlStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	for _, purpose := range []auth.TokenPurpose{auth.PurposeVerifyEmail, auth.PurposePasswordReset} {
		table, err := tokenTable(purpose)
		if err != nil {
			return removed, err
		}
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE expire_at <= ?", now)
		if err != nil {
			return removed, internalError(ctx, "Storage.DeleteExpiredTokens()", err, "Failed to purge tokens.")
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

// --- budgets ---

func marshalCategories(categories []budget.Category) (string, error) {
	type categoryDoc struct {
		Name       string  `json:"name"`
		Allocation float64 `json:"allocation"`
	}
	docs := make([]categoryDoc, 0, len(categories))
	for _, c := range categories {
		docs = append(docs, categoryDoc{Name: c.Name, Allocation: c.Allocation})
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("failed to encode categories: %w", err)
	}
	return string(raw), nil
}

func unmarshalCategories(raw string) ([]budget.Category, error) {
	if raw == "" {
		return nil, nil
	}
	var docs []struct {
		Name       string  `json:"name"`
		Allocation float64 `json:"allocation"`
	}
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	categories := make([]budget.Category, 0, len(docs))
	for _, d := range docs {
		categories = append(categories, budget.Category{Name: d.Name, Allocation: d.Allocation})
	}
	return categories, nil
}

const budgetColumns = `id, user_id, name, period, limit_total, categories, start_date, end_date, created_at, updated_at`

func (s *sqlStore) SaveBudget(ctx context.Context, b budget.Budget) error {
	categories, err := marshalCategories(b.Categories)
	if err != nil {
		return err
	}
	query := `INSERT INTO budgets (` + budgetColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		b.ID, b.UserID, b.Name, b.Period, b.Limit, categories,
		nullTime(b.StartDate), nullTime(b.EndDate), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if s.isDuplicate(err) {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: fmt.Sprintf("A %s budget already exists for this user", b.Period),
			}
		}
		return internalError(ctx, "Storage.SaveBudget()", err, "Failed to save the budget, try again later.")
	}
	return nil
}

func budgetFromRow(row dbBudget) (budget.Budget, error) {
	categories, err := unmarshalCategories(row.Categories)
	if err != nil {
		return budget.Budget{}, err
	}
	return budget.Budget{
		ID:         row.ID,
		UserID:     row.UserID,
		Name:       row.Name,
		Period:     row.Period,
		Limit:      row.LimitTotal,
		Categories: categories,
		StartDate:  timePtr(row.StartDate),
		EndDate:    timePtr(row.EndDate),
		CreatedAt:  row.CreatedAt.Time,
		UpdatedAt:  row.UpdatedAt.Time,
	}, nil
}

func (s *sqlStore) getBudget(ctx context.Context, query string, args ...any) (budget.Budget, error) {
	var row dbBudget
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&row.ID, &row.UserID, &row.Name, &row.Period, &row.LimitTotal, &row.Categories,
		&row.StartDate, &row.EndDate, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return budget.Budget{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrNotFound,
				Message: "Budget not found",
			}
		}
		return budget.Budget{}, internalError(ctx, "Storage.getBudget()", err, "Failed to load budget, try again later.")
	}
	return budgetFromRow(row)
}

func (s *sqlStore) GetBudgetByID(ctx context.Context, userID, id string) (budget.Budget, error) {
	return s.getBudget(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
}

func (s *sqlStore) GetBudgetByPeriod(ctx context.Context, userID, period string) (budget.Budget, error) {
	return s.getBudget(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? AND period = ? ORDER BY updated_at DESC LIMIT 1`,
		userID, period)
}

func (s *sqlStore) HasOtherBudgetForPeriod(ctx context.Context, userID, period, excludeID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM budgets WHERE user_id = ? AND period = ? AND id <> ? LIMIT 1`,
		userID, period, excludeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, internalError(ctx, "Storage.HasOtherBudgetForPeriod()", err, "Failed to check budgets, try again later.")
	}
	return true, nil
}

func (s *sqlStore) ListBudgets(ctx context.Context, userID string, f budget.BudgetFilter) ([]budget.Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets WHERE user_id = ?`
	args := []any{userID}
	if f.Period != "" {
		query += " AND period = ?"
		args = append(args, f.Period)
	}
	if f.NameContains != "" {
		query += " AND LOWER(name) LIKE ?"
		args = append(args, "%"+strings.ToLower(f.NameContains)+"%")
	}
	query += " ORDER BY updated_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, internalError(ctx, "Storage.ListBudgets()", err, "Failed to list budgets, try again later.")
	}
	defer rows.Close()

	var result []budget.Budget
	for rows.Next() {
		var row dbBudget
		if err := rows.Scan(&row.ID, &row.UserID, &row.Name, &row.Period, &row.LimitTotal,
			&row.Categories, &row.StartDate, &row.EndDate, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, internalError(ctx, "Storage.ListBudgets() scan", err, "Failed to list budgets, try again later.")
		}
		b, err := budgetFromRow(row)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *sqlStore) UpdateBudget(ctx context.Context, b budget.Budget) error {
	categories, err := marshalCategories(b.Categories)
	if err != nil {
		return err
	}
	query := `UPDATE budgets SET name = ?, period = ?, limit_total = ?, categories = ?,
		start_date = ?, end_date = ?, updated_at = ? WHERE id = ? AND user_id = ?`
	res, err := s.db.ExecContext(ctx, query,
		b.Name, b.Period, b.Limit, categories,
		nullTime(b.StartDate), nullTime(b.EndDate), b.UpdatedAt, b.ID, b.UserID)
	if err != nil {
		if s.isDuplicate(err) {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: fmt.Sprintf("A %s budget already exists for this user", b.Period),
			}
		}
		return internalError(ctx, "Storage.UpdateBudget()", err, "Failed to update the budget, try again later.")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "Budget not found",
		}
	}
	return nil
}

func (s *sqlStore) DeleteBudget(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return internalError(ctx, "Storage.DeleteBudget()", err, "Failed to delete the budget, try again later.")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "Budget not found",
		}
	}
	return nil
}

// --- transactions ---

const txColumns = `id, user_id, amount, type, category, description, payment_method, period, date, created_at, updated_at`

func (s *sqlStore) SaveTransaction(ctx context.Context, t budget.Transaction) error {
	query := `INSERT INTO transactions (` + txColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.Amount, t.Type, t.Category, t.Description,
		t.PaymentMethod, t.Period, t.Date, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return internalError(ctx, "Storage.SaveTransaction()", err, "Failed to save the transaction, try again later.")
	}
	return nil
}

func txFromRow(row dbTransaction) budget.Transaction {
	return budget.Transaction{
		ID:            row.ID,
		UserID:        row.UserID,
		Amount:        row.Amount,
		Type:          row.Type,
		Category:      row.Category,
		Description:   row.Description,
		PaymentMethod: row.PaymentMethod,
		Period:        row.Period,
		Date:          row.Date.Time,
		CreatedAt:     row.CreatedAt.Time,
		UpdatedAt:     row.UpdatedAt.Time,
	}
}

func (s *sqlStore) GetTransactionByID(ctx context.Context, userID, id string) (budget.Transaction, error) {
	var row dbTransaction
	err := s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&row.ID, &row.UserID, &row.Amount, &row.Type, &row.Category, &row.Description,
			&row.PaymentMethod, &row.Period, &row.Date, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return budget.Transaction{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrNotFound,
				Message: "Transaction not found",
			}
		}
		return budget.Transaction{}, internalError(ctx, "Storage.GetTransactionByID()", err, "Failed to load transaction, try again later.")
	}
	return txFromRow(row), nil
}

func (s *sqlStore) ListTransactions(ctx context.Context, userID string, f budget.TransactionFilter) ([]budget.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, f.Type)
	}
	if f.Category != "" {
		query += " AND category = ?"
		args = append(args, f.Category)
	}
	if f.Period != "" {
		query += " AND period = ?"
		args = append(args, f.Period)
	}
	if f.From != nil {
		query += " AND date >= ?"
		args = append(args, *f.From)
	}
	if f.To != nil {
		query += " AND date < ?"
		args = append(args, *f.To)
	}
	query += " ORDER BY date DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, internalError(ctx, "Storage.ListTransactions()", err, "Failed to list transactions, try again later.")
	}
	defer rows.Close()

	var result []budget.Transaction
	for rows.Next() {
		var row dbTransaction
		if err := rows.Scan(&row.ID, &row.UserID, &row.Amount, &row.Type, &row.Category, &row.Description,
			&row.PaymentMethod, &row.Period, &row.Date, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, internalError(ctx, "Storage.ListTransactions() scan", err, "Failed to list transactions, try again later.")
		}
		result = append(result, txFromRow(row))
	}
	return result, rows.Err()
}

func (s *sqlStore) UpdateTransaction(ctx context.Context, t budget.Transaction) error {
	query := `UPDATE transactions SET amount = ?, type = ?, category = ?, description = ?,
		payment_method = ?, period = ?, date = ?, updated_at = ? WHERE id = ? AND user_id = ?`
	res, err := s.db.ExecContext(ctx, query,
		t.Amount, t.Type, t.Category, t.Description, t.PaymentMethod, t.Period,
		t.Date, t.UpdatedAt, t.ID, t.UserID)
	if err != nil {
		return internalError(ctx, "Storage.UpdateTransaction()", err, "Failed to update the transaction, try again later.")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "Transaction not found",
		}
	}
	return nil
}

func (s *sqlStore) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return internalError(ctx, "Storage.DeleteTransaction()", err, "Failed to delete the transaction, try again later.")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "Transaction not found",
		}
	}
	return nil
}
