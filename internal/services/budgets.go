package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"expense-api/internal/models"
	"expense-api/internal/storage"

	"github.com/shopspring/decimal"
)

// BudgetStore is the persistence Budgets needs.
type BudgetStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	CreateBudget(ctx context.Context, b *models.Budget) (*models.Budget, error)
	ListBudgets(ctx context.Context, userID int64) ([]models.Budget, error)
}

// Budgets manages spending limits.
type Budgets struct {
	log   *slog.Logger
	store BudgetStore
}

func NewBudgets(log *slog.Logger, store BudgetStore) *Budgets {
	return &Budgets{log: log, store: store}
}

type BudgetInput struct {
	UserID     int64
	CategoryID *int64
	Name       string
	Limit      string
	Currency   string
	Period     string
	StartDate  string
	EndDate    string
}

// Create validates and stores a budget. Period defaults to monthly and the
// start date to today.
func (b *Budgets) Create(ctx context.Context, in BudgetInput) (*models.Budget, error) {
	const op = "services.Budgets.Create"

	var missing []string
	if in.UserID <= 0 {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(in.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(in.Limit) == "" {
		missing = append(missing, "limit_amount")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	limit, err := decimal.NewFromString(strings.TrimSpace(in.Limit))
	if err != nil {
		return nil, &FormatError{Field: "limit_amount", Err: err}
	}
	limit = limit.Round(2)
	if limit.IsNegative() {
		return nil, invalid("Limit amount must not be negative")
	}
	if limit.GreaterThan(maxAmount) {
		return nil, invalid("Limit amount must not exceed %s", maxAmount.StringFixed(2))
	}

	period := models.BudgetPeriod(strings.ToLower(strings.TrimSpace(in.Period)))
	if period == "" {
		period = models.PeriodMonthly
	}
	if !period.Valid() {
		return nil, invalid("Period must be one of daily, weekly, monthly, yearly")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}
	if !currencyRe.MatchString(currency) {
		return nil, invalid("Currency must be a 3-letter code")
	}

	start := models.NewDate(time.Now().UTC())
	if s := strings.TrimSpace(in.StartDate); s != "" {
		if start, err = models.ParseDate(s); err != nil {
			return nil, &FormatError{Field: "start_date", Err: err}
		}
	}
	var end *models.Date
	if s := strings.TrimSpace(in.EndDate); s != "" {
		d, err := models.ParseDate(s)
		if err != nil {
			return nil, &FormatError{Field: "end_date", Err: err}
		}
		if d.Before(start.Time) {
			return nil, invalid("End date must not be before start date")
		}
		end = &d
	}

	if err := ensureUser(ctx, op, b.store, in.UserID); err != nil {
		return nil, err
	}
	if in.CategoryID != nil {
		cat, err := b.store.GetCategory(ctx, *in.CategoryID)
		switch {
		case errors.Is(err, storage.ErrNotFound), err == nil && cat.UserID != in.UserID:
			return nil, newError(ErrNotFound, "Category not found")
		case err != nil:
			return nil, persistence(op, err)
		}
	}

	budget, err := b.store.CreateBudget(ctx, &models.Budget{
		UserID:      in.UserID,
		CategoryID:  in.CategoryID,
		Name:        strings.TrimSpace(in.Name),
		LimitAmount: limit,
		SpentAmount: decimal.Zero,
		Currency:    currency,
		Period:      period,
		StartDate:   start,
		EndDate:     end,
		IsActive:    true,
	})
	if err != nil {
		return nil, persistence(op, err)
	}

	b.log.Debug("budget created", slog.Int64("budget_id", budget.ID), slog.Int64("user_id", in.UserID))
	return budget, nil
}

// ListForUser returns the user's budgets with spent amounts as stored.
func (b *Budgets) ListForUser(ctx context.Context, userID int64) ([]models.Budget, error) {
	const op = "services.Budgets.ListForUser"

	budgets, err := b.store.ListBudgets(ctx, userID)
	if err != nil {
		return nil, persistence(op, err)
	}
	return budgets, nil
}
