package storage

import "database/sql"

type dbUser struct {
	ID             string
	FirstName      string
	LastName       string
	Login          string
	PasswordHashed string
	IsVerified     bool
	CreatedAt      sql.NullTime
	UpdatedAt      sql.NullTime
	VerifiedAt     sql.NullTime
}

type dbToken struct {
	ID        string
	UserID    string
	Token     string
	ExpireAt  sql.NullTime
	Used      bool
	CreatedAt sql.NullTime
	UsedAt    sql.NullTime
}

type dbBudget struct {
	ID         string
	UserID     string
	Name       string
	Period     string
	LimitTotal float64
	Categories string // JSON document, ordered [{name, allocation}]
	StartDate  sql.NullTime
	EndDate    sql.NullTime
	CreatedAt  sql.NullTime
	UpdatedAt  sql.NullTime
}

type dbTransaction struct {
	ID            string
	UserID        string
	Amount        float64
	Type          string
	Category      string
	Description   string
	PaymentMethod string
	Period        string
	Date          sql.NullTime
	CreatedAt     sql.NullTime
	UpdatedAt     sql.NullTime
}
