package storage

import (
	"context"
	"database/sql"
	"fmt"

	"expense-api/internal/models"
)

const userColumns = `id, uuid, username, email, password_hash, full_name, is_active, is_verified, created_at, updated_at, last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(
		&u.ID, &u.UUID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName,
		&u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts u together with its starter categories in a single
// transaction. u.ID and the timestamps are filled in on success.
func (db *DB) CreateUser(ctx context.Context, u *models.User, categories []models.Category) (*models.User, error) {
	const op = "storage.CreateUser"

	ts := utcNow()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, db.rebind(`
			INSERT INTO users (uuid, username, email, password_hash, full_name, is_active, is_verified, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			u.UUID, u.Username, u.Email, u.PasswordHash, u.FullName, u.IsActive, u.IsVerified, ts, ts,
		).Scan(&u.ID)
		if err != nil {
			return err
		}
		for i := range categories {
			categories[i].UserID = u.ID
			if _, err := db.insertCategory(ctx, tx, &categories[i], true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}

	u.CreatedAt, u.UpdatedAt = ts, ts
	return u, nil
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.GetUserByID"

	u, err := scanUser(db.conn.QueryRowContext(ctx, db.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by exact, case-sensitive username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.GetUserByUsername"

	u, err := scanUser(db.conn.QueryRowContext(ctx, db.rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`), username))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"

	u, err := scanUser(db.conn.QueryRowContext(ctx, db.rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return u, nil
}

// MarkUserVerified sets the verified flag on the user with the given id.
func (db *DB) MarkUserVerified(ctx context.Context, id int64) error {
	const op = "storage.MarkUserVerified"

	return db.updateUser(ctx, op, `UPDATE users SET is_verified = ?, updated_at = ? WHERE id = ?`, true, utcNow(), id)
}

// TouchLastLogin records a successful login for the user.
func (db *DB) TouchLastLogin(ctx context.Context, id int64) error {
	const op = "storage.TouchLastLogin"

	ts := utcNow()
	return db.updateUser(ctx, op, `UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`, ts, ts, id)
}

func (db *DB) updateUser(ctx context.Context, op, query string, args ...any) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, db.rebind(query), args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	if err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// DeleteUser removes a user and everything the user owns. Dependent rows are
// removed child-first inside one transaction: sessions, transcriptions,
// budgets, expenses, categories and finally the user row.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	const op = "storage.DeleteUser"

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int64
		if err := tx.QueryRowContext(ctx, db.rebind(`SELECT id FROM users WHERE id = ?`), id).Scan(&exists); err != nil {
			return err
		}
		for _, table := range []string{"sessions", "transcriptions", "budgets", "expenses", "categories"} {
			if _, err := tx.ExecContext(ctx, db.rebind(fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?`, table)), id); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		_, err := tx.ExecContext(ctx, db.rebind(`DELETE FROM users WHERE id = ?`), id)
		return err
	})
	if err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}
