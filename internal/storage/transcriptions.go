package storage

import (
	"context"

	"expense-api/internal/models"
)

// SaveTranscription stores the text produced for an uploaded file.
func (db *DB) SaveTranscription(ctx context.Context, t *models.Transcription) (*models.Transcription, error) {
	const op = "storage.SaveTranscription"

	ts := utcNow()
	err := db.conn.QueryRowContext(ctx, db.rebind(
		`INSERT INTO transcriptions (user_id, filename, text, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		t.UserID, t.Filename, t.Text, ts,
	).Scan(&t.ID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	t.CreatedAt = ts
	return t, nil
}

// ListTranscriptions returns the user's transcriptions, newest first.
func (db *DB) ListTranscriptions(ctx context.Context, userID int64) ([]models.Transcription, error) {
	const op = "storage.ListTranscriptions"

	rows, err := db.conn.QueryContext(ctx, db.rebind(
		`SELECT id, user_id, filename, text, created_at FROM transcriptions WHERE user_id = ? ORDER BY created_at DESC, id DESC`), userID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	list := []models.Transcription{}
	for rows.Next() {
		var t models.Transcription
		if err := rows.Scan(&t.ID, &t.UserID, &t.Filename, &t.Text, &t.CreatedAt); err != nil {
			return nil, wrapErr(op, err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return list, nil
}
