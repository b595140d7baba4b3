package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"darkdrop/internal/model"
)

func (s *SQLiteDatabase) CreateSession(ctx context.Context, session *model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, token, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Token, utc(session.ExpiresAt), utc(session.CreatedAt))
	if err != nil {
		return constraintErr("creating session", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetSessionByToken(ctx context.Context, token string) (*model.Session, *model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.token, s.expires_at, s.created_at,
		        u.id, u.email, u.password_hash, u.name, u.created_at, u.last_login
		 FROM sessions s JOIN users u ON u.id = s.user_id
		 WHERE s.token = ?`, token)

	var sess model.Session
	var user model.User
	var lastLogin sql.NullTime
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Token, &sess.ExpiresAt, &sess.CreatedAt,
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.CreatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil // Not found
		}
		return nil, nil, fmt.Errorf("finding session: %w", err)
	}
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	sess.CreatedAt = sess.CreatedAt.UTC()
	user.CreatedAt = user.CreatedAt.UTC()
	user.LastLogin = timePtr(lastLogin)
	return &sess, &user, nil
}

func (s *SQLiteDatabase) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, utc(before))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}
