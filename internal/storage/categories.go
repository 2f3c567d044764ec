package storage

import (
	"context"
	"database/sql"
	"errors"

	"expense-api/internal/models"
)

const categoryColumns = `id, user_id, name, description, color, icon, is_default, created_at, updated_at`

func scanCategory(row rowScanner) (*models.Category, error) {
	var c models.Category
	if err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &c.Description, &c.Color, &c.Icon, &c.IsDefault, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

// insertCategory adds c inside tx. With skipExisting set, a name the user
// already owns is left untouched and reported as not inserted.
func (db *DB) insertCategory(ctx context.Context, tx *sql.Tx, c *models.Category, skipExisting bool) (bool, error) {
	ts := utcNow()
	query := `
		INSERT INTO categories (user_id, name, description, color, icon, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if skipExisting {
		query += ` ON CONFLICT (user_id, name) DO NOTHING`
	}
	query += ` RETURNING id`

	err := tx.QueryRowContext(ctx, db.rebind(query),
		c.UserID, c.Name, c.Description, c.Color, c.Icon, c.IsDefault, ts, ts,
	).Scan(&c.ID)
	if skipExisting && errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.CreatedAt, c.UpdatedAt = ts, ts
	return true, nil
}

// CreateCategory inserts a category. A duplicate (user_id, name) pair yields
// ErrConflict.
func (db *DB) CreateCategory(ctx context.Context, c *models.Category) (*models.Category, error) {
	const op = "storage.CreateCategory"

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := db.insertCategory(ctx, tx, c, false)
		return err
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return c, nil
}

// SeedCategories inserts every category in cats the user does not own yet and
// returns how many were added.
func (db *DB) SeedCategories(ctx context.Context, userID int64, cats []models.Category) (int, error) {
	const op = "storage.SeedCategories"

	added := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		added = 0
		for i := range cats {
			cats[i].UserID = userID
			ok, err := db.insertCategory(ctx, tx, &cats[i], true)
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrapErr(op, err)
	}
	return added, nil
}

// ListCategories returns all categories owned by userID.
func (db *DB) ListCategories(ctx context.Context, userID int64) ([]models.Category, error) {
	const op = "storage.ListCategories"

	rows, err := db.conn.QueryContext(ctx, db.rebind(`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? ORDER BY id`), userID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return categories, nil
}

// GetCategory retrieves a category by id.
func (db *DB) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	const op = "storage.GetCategory"

	c, err := scanCategory(db.conn.QueryRowContext(ctx, db.rebind(`SELECT `+categoryColumns+` FROM categories WHERE id = ?`), id))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return c, nil
}

// GetCategoryByName retrieves the user's category with the given name.
func (db *DB) GetCategoryByName(ctx context.Context, userID int64, name string) (*models.Category, error) {
	const op = "storage.GetCategoryByName"

	c, err := scanCategory(db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? AND name = ?`), userID, name))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return c, nil
}

// DeleteCategory removes a category owned by userID. Inside one transaction
// its expenses are deleted, budgets pointing at it are detached, and the
// category row goes last. A missing or foreign category yields ErrNotFound.
func (db *DB) DeleteCategory(ctx context.Context, userID, id int64) error {
	const op = "storage.DeleteCategory"

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var found int64
		err := tx.QueryRowContext(ctx, db.rebind(`SELECT id FROM categories WHERE id = ? AND user_id = ?`), id, userID).Scan(&found)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, db.rebind(`DELETE FROM expenses WHERE category_id = ?`), id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, db.rebind(`UPDATE budgets SET category_id = NULL, updated_at = ? WHERE category_id = ?`), utcNow(), id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, db.rebind(`DELETE FROM categories WHERE id = ?`), id)
		return err
	})
	if err != nil {
		return wrapErr(op, err)
	}
	return nil
}
