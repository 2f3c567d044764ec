package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultColor is assigned to categories created without a color.
const DefaultColor = "#667eea"

// Category is a user-owned label for grouping expenses.
type Category struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Color       string    `json:"color"`
	Icon        *string   `json:"icon,omitempty"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BudgetPeriod is the length of the window a budget limit applies to.
type BudgetPeriod string

const (
	PeriodDaily   BudgetPeriod = "daily"
	PeriodWeekly  BudgetPeriod = "weekly"
	PeriodMonthly BudgetPeriod = "monthly"
	PeriodYearly  BudgetPeriod = "yearly"
)

// Valid reports whether p is one of the known periods.
func (p BudgetPeriod) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly:
		return true
	}
	return false
}

// Budget is a spending limit for a user, optionally narrowed to one category.
type Budget struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Name        string          `json:"name"`
	LimitAmount decimal.Decimal `json:"limit_amount"`
	SpentAmount decimal.Decimal `json:"spent_amount"`
	Currency    string          `json:"currency"`
	Period      BudgetPeriod    `json:"period"`
	StartDate   Date            `json:"start_date"`
	EndDate     *Date           `json:"end_date,omitempty"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
