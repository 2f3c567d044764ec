package storage

import (
	"context"
	"time"

	"expense-api/internal/models"
)

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	LastActivity time.Time
	ExpiresAt    time.Time
}

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	const op = "storage.CreateSession"

	_, err := db.conn.ExecContext(ctx, db.rebind(
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)"),
		token, userID, expiresAt.UTC(), utcNow(),
	)
	if err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// ValidateSession checks if a session token is valid and returns the associated user.
func (db *DB) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	info, err := db.ValidateSessionWithInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	return info.User, nil
}

// ValidateSessionWithInfo checks if a session token is valid and returns session details.
func (db *DB) ValidateSessionWithInfo(ctx context.Context, token string) (*SessionInfo, error) {
	const op = "storage.ValidateSessionWithInfo"

	row := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT u.id, u.uuid, u.username, u.email, u.password_hash, u.full_name, u.is_active, u.is_verified,
			u.created_at, u.updated_at, u.last_login, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?
	`), token, utcNow())

	var (
		u                       models.User
		lastActivity, expiresAt time.Time
	)
	if err := row.Scan(
		&u.ID, &u.UUID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.IsActive, &u.IsVerified,
		&u.CreatedAt, &u.UpdatedAt, &u.LastLogin, &lastActivity, &expiresAt,
	); err != nil {
		return nil, wrapErr(op, err)
	}
	return &SessionInfo{
		User:         &u,
		LastActivity: lastActivity,
		ExpiresAt:    expiresAt,
	}, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	const op = "storage.RenewSession"

	_, err := db.conn.ExecContext(ctx, db.rebind(
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?"),
		utcNow(), newExpiresAt.UTC(), token,
	)
	if err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	const op = "storage.DeleteSession"

	if _, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM sessions WHERE token = ?"), token); err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// CleanExpiredSessions removes all expired sessions and reports how many went.
func (db *DB) CleanExpiredSessions(ctx context.Context) (int64, error) {
	const op = "storage.CleanExpiredSessions"

	res, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM sessions WHERE expires_at <= ?"), utcNow())
	if err != nil {
		return 0, wrapErr(op, err)
	}
	return res.RowsAffected()
}
