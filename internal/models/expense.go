package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when an expense or budget is stored without one.
const DefaultCurrency = "INR"

// DefaultCategory is the legacy category name given to expenses added without one.
const DefaultCategory = "Other"

// Expense represents a single monetary transaction owned by a user.
type Expense struct {
	ID          int64           `json:"id"`
	UUID        string          `json:"uuid"`
	UserID      int64           `json:"user_id"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Category    string          `json:"category"`
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	Notes       *string         `json:"notes,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Date        Date            `json:"date"`
	ReceiptURL  *string         `json:"receipt_url,omitempty"`
	IsRecurring bool            `json:"is_recurring"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CategoryTotal is the amount spent in one category over a period.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
	Count    int
}
