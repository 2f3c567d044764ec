package storage

import (
	"context"
	"database/sql"

	"expense-api/internal/models"
)

const budgetColumns = `id, user_id, category_id, name, limit_amount, spent_amount, currency, period, start_date, end_date, is_active, created_at, updated_at`

func scanBudget(row rowScanner) (*models.Budget, error) {
	var b models.Budget
	if err := row.Scan(
		&b.ID, &b.UserID, &b.CategoryID, &b.Name, &b.LimitAmount, &b.SpentAmount, &b.Currency,
		&b.Period, &b.StartDate, &b.EndDate, &b.IsActive, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBudget inserts a budget.
func (db *DB) CreateBudget(ctx context.Context, b *models.Budget) (*models.Budget, error) {
	const op = "storage.CreateBudget"

	ts := utcNow()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, db.rebind(`
			INSERT INTO budgets (user_id, category_id, name, limit_amount, spent_amount, currency, period, start_date, end_date, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			b.UserID, b.CategoryID, b.Name, b.LimitAmount, b.SpentAmount, b.Currency,
			string(b.Period), b.StartDate, b.EndDate, b.IsActive, ts, ts,
		).Scan(&b.ID)
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}

	b.CreatedAt, b.UpdatedAt = ts, ts
	return b, nil
}

// ListBudgets returns all budgets owned by userID.
func (db *DB) ListBudgets(ctx context.Context, userID int64) ([]models.Budget, error) {
	const op = "storage.ListBudgets"

	rows, err := db.conn.QueryContext(ctx, db.rebind(`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY id`), userID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	budgets := []models.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		budgets = append(budgets, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return budgets, nil
}
