package storage

import (
	"context"
	"database/sql"
	"strings"

	"expense-api/internal/models"
)

const expenseColumns = `id, uuid, user_id, category_id, category, title, description, notes, amount, currency, date, receipt_url, is_recurring, created_at, updated_at`

// ExpenseFilter narrows ListExpenses. Nil bounds are open; both are inclusive.
type ExpenseFilter struct {
	From *models.Date
	To   *models.Date
}

func scanExpense(row rowScanner) (*models.Expense, error) {
	var (
		e        models.Expense
		category sql.NullString
	)
	if err := row.Scan(
		&e.ID, &e.UUID, &e.UserID, &e.CategoryID, &category, &e.Title, &e.Description, &e.Notes,
		&e.Amount, &e.Currency, &e.Date, &e.ReceiptURL, &e.IsRecurring, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Category = category.String
	return &e, nil
}

// CreateExpense inserts a new expense into the database. e.ID and the
// timestamps are filled in on success; nothing is written on failure.
func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) (*models.Expense, error) {
	const op = "storage.CreateExpense"

	ts := utcNow()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, db.rebind(`
			INSERT INTO expenses (uuid, user_id, category_id, category, title, description, notes, amount, currency, date, receipt_url, is_recurring, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			e.UUID, e.UserID, e.CategoryID, e.Category, e.Title, e.Description, e.Notes,
			e.Amount, e.Currency, e.Date, e.ReceiptURL, e.IsRecurring, ts, ts,
		).Scan(&e.ID)
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}

	e.CreatedAt, e.UpdatedAt = ts, ts
	return e, nil
}

// GetExpense retrieves a single expense by ID.
func (db *DB) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	const op = "storage.GetExpense"

	e, err := scanExpense(db.conn.QueryRowContext(ctx, db.rebind(`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`), id))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return e, nil
}

// ListExpenses retrieves the user's expenses within the filter, ordered by
// date and then id.
func (db *DB) ListExpenses(ctx context.Context, userID int64, f ExpenseFilter) ([]models.Expense, error) {
	const op = "storage.ListExpenses"

	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.From != nil {
		where = append(where, "date >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, "date <= ?")
		args = append(args, *f.To)
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(
		`SELECT `+expenseColumns+` FROM expenses WHERE `+strings.Join(where, " AND ")+` ORDER BY date, id`), args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		expenses = append(expenses, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return expenses, nil
}

// DeleteExpense removes the expense with the given id when it belongs to
// userID. The existence check runs first so a missing or foreign row is
// reported as ErrNotFound rather than silently ignored.
func (db *DB) DeleteExpense(ctx context.Context, userID, id int64) error {
	const op = "storage.DeleteExpense"

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var found int64
		err := tx.QueryRowContext(ctx, db.rebind(`SELECT id FROM expenses WHERE id = ? AND user_id = ?`), id, userID).Scan(&found)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, db.rebind(`DELETE FROM expenses WHERE id = ?`), id)
		return err
	})
	if err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// CategoryTotals sums the user's expenses per legacy category name over the
// inclusive date range, largest total first.
func (db *DB) CategoryTotals(ctx context.Context, userID int64, from, to models.Date) ([]models.CategoryTotal, error) {
	const op = "storage.CategoryTotals"

	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT COALESCE(category, ''), SUM(amount), COUNT(*)
		FROM expenses
		WHERE user_id = ? AND date >= ? AND date <= ?
		GROUP BY COALESCE(category, '')
		ORDER BY SUM(amount) DESC`), userID, from, to)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	totals := []models.CategoryTotal{}
	for rows.Next() {
		var ct models.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total, &ct.Count); err != nil {
			return nil, wrapErr(op, err)
		}
		totals = append(totals, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return totals, nil
}
