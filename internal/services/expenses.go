package services

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"expense-api/internal/models"
	"expense-api/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)
	// NUMERIC(10, 2) holds at most eight integer digits.
	maxAmount = decimal.RequireFromString("99999999.99")
)

// ExpenseStore is the persistence the Ledger needs.
type ExpenseStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetCategoryByName(ctx context.Context, userID int64, name string) (*models.Category, error)
	CreateExpense(ctx context.Context, e *models.Expense) (*models.Expense, error)
	ListExpenses(ctx context.Context, userID int64, f storage.ExpenseFilter) ([]models.Expense, error)
	DeleteExpense(ctx context.Context, userID, id int64) error
	CategoryTotals(ctx context.Context, userID int64, from, to models.Date) ([]models.CategoryTotal, error)
}

// Ledger records and queries expenses.
type Ledger struct {
	log   *slog.Logger
	store ExpenseStore
}

func NewLedger(log *slog.Logger, store ExpenseStore) *Ledger {
	return &Ledger{log: log, store: store}
}

// AddExpenseInput carries the raw request values; parsing happens in Add.
type AddExpenseInput struct {
	UserID      string
	Title       string
	Amount      string
	Date        string
	Category    string
	Description string
	Currency    string
}

// Add validates and stores a new expense.
func (l *Ledger) Add(ctx context.Context, in AddExpenseInput) (*models.Expense, error) {
	const op = "services.Ledger.Add"

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"title", in.Title},
		{"amount", in.Amount},
		{"user_id", in.UserID},
		{"date", in.Date},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	if err != nil {
		return nil, &FormatError{Field: "amount", Err: err}
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(in.UserID), 10, 64)
	if err != nil {
		return nil, &FormatError{Field: "user_id", Err: err}
	}
	date, err := models.ParseDate(strings.TrimSpace(in.Date))
	if err != nil {
		return nil, &FormatError{Field: "date", Err: err}
	}

	amount = amount.Round(2)
	if amount.Abs().GreaterThan(maxAmount) {
		return nil, invalid("Amount must not exceed %s", maxAmount.StringFixed(2))
	}
	if amount.IsNegative() {
		l.log.Warn("accepting negative expense amount", slog.Int64("user_id", userID), slog.String("amount", amount.StringFixed(2)))
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}
	if !currencyRe.MatchString(currency) {
		return nil, invalid("Currency must be a 3-letter code")
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = models.DefaultCategory
	}

	if _, err := l.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, invalid("user_id does not match an existing user")
		}
		return nil, persistence(op, err)
	}

	e := &models.Expense{
		UUID:        uuid.NewString(),
		UserID:      userID,
		Category:    category,
		Title:       strings.TrimSpace(in.Title),
		Description: optional(in.Description),
		Amount:      amount,
		Currency:    currency,
		Date:        date,
	}

	// The legacy name stays on the row; the id is linked when the user owns a
	// category of that name.
	cat, err := l.store.GetCategoryByName(ctx, userID, category)
	switch {
	case err == nil:
		e.CategoryID = &cat.ID
	case !errors.Is(err, storage.ErrNotFound):
		return nil, persistence(op, err)
	}

	e, err = l.store.CreateExpense(ctx, e)
	if err != nil {
		return nil, persistence(op, err)
	}

	l.log.Debug("expense added", slog.Int64("expense_id", e.ID), slog.Int64("user_id", userID))
	return e, nil
}

// ListForUser returns the user's expenses, optionally bounded by inclusive
// YYYY-MM-DD start and end dates. Empty bounds are ignored.
func (l *Ledger) ListForUser(ctx context.Context, userID int64, startDate, endDate string) ([]models.Expense, error) {
	const op = "services.Ledger.ListForUser"

	var f storage.ExpenseFilter
	if startDate != "" {
		d, err := models.ParseDate(startDate)
		if err != nil {
			return nil, &FormatError{Field: "start_date", Err: err}
		}
		f.From = &d
	}
	if endDate != "" {
		d, err := models.ParseDate(endDate)
		if err != nil {
			return nil, &FormatError{Field: "end_date", Err: err}
		}
		f.To = &d
	}

	expenses, err := l.store.ListExpenses(ctx, userID, f)
	if err != nil {
		return nil, persistence(op, err)
	}
	return expenses, nil
}

// DeleteByID removes the expense when it exists and belongs to userID.
func (l *Ledger) DeleteByID(ctx context.Context, userID, id int64) error {
	const op = "services.Ledger.DeleteByID"

	if err := l.store.DeleteExpense(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return newError(ErrNotFound, "Expense not found")
		}
		return persistence(op, err)
	}

	l.log.Debug("expense deleted", slog.Int64("expense_id", id), slog.Int64("user_id", userID))
	return nil
}

// CategorySummary is one category's share of a month's spending.
type CategorySummary struct {
	Category   string          `json:"category"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	Percentage float64         `json:"percentage"`
}

// MonthSummary aggregates a user's spending for one calendar month.
type MonthSummary struct {
	Year       int               `json:"year"`
	Month      int               `json:"month"`
	MonthName  string            `json:"month_name"`
	Total      decimal.Decimal   `json:"total"`
	Categories []CategorySummary `json:"categories"`
}

// Summary totals the user's expenses per category for the given month. A zero
// year or month selects the current one.
func (l *Ledger) Summary(ctx context.Context, userID int64, year, month int) (*MonthSummary, error) {
	const op = "services.Ledger.Summary"

	now := time.Now().UTC()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 {
		return nil, invalid("Month must be between 1 and 12")
	}
	if year < 1 || year > 9999 {
		return nil, invalid("Year is out of range")
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	totals, err := l.store.CategoryTotals(ctx, userID, models.NewDate(first), models.NewDate(last))
	if err != nil {
		return nil, persistence(op, err)
	}

	s := &MonthSummary{
		Year:       year,
		Month:      month,
		MonthName:  first.Month().String(),
		Total:      decimal.Zero,
		Categories: make([]CategorySummary, 0, len(totals)),
	}
	for _, ct := range totals {
		s.Total = s.Total.Add(ct.Total)
	}
	s.Total = s.Total.Round(2)

	for _, ct := range totals {
		var pct float64
		if s.Total.IsPositive() {
			pct = ct.Total.Div(s.Total).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		s.Categories = append(s.Categories, CategorySummary{
			Category:   ct.Category,
			Total:      ct.Total.Round(2),
			Count:      ct.Count,
			Percentage: pct,
		})
	}
	return s, nil
}
