package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"stocktrack/backend/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, user_id, token_hash, token_id, session_type, device_info, ip_address, geo_city, geo_country, active, last_activity_at, expires_at, created_at`

func scanSession(scan func(dest ...any) error) (*domain.Session, error) {
	var s domain.Session
	err := scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.TokenID, &s.Type, &s.DeviceInfo,
		&s.IPAddress, &s.Geo.City, &s.Geo.Country, &s.Active,
		&s.LastActivityAt, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Create inserts the session after invalidating any prior active sessions for
// the same user, in one transaction. This is what makes the single-active-
// session invariant hold even when two logins race: whichever transaction
// commits second deactivates the other's row before inserting its own.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET active = FALSE WHERE user_id = $1 AND active`, s.UserID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID, s.UserID, s.TokenHash, s.TokenID, s.Type, s.DeviceInfo,
		s.IPAddress, s.Geo.City, s.Geo.Country, s.Active,
		s.LastActivityAt, s.ExpiresAt, s.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row.Scan)
}

// FindLiveByTokenID returns the active, unexpired session with the given token
// fingerprint, or nil. Expiry is filtered inline as defense in depth; the
// sweeper handles rows that are never queried.
func (r *PostgresRepository) FindLiveByTokenID(ctx context.Context, tokenID string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE token_id = $1 AND active AND expires_at > now()`, tokenID)
	return scanSession(row.Scan)
}

// Touch sets last_activity_at to now. Expiry is absolute and never extended.
func (r *PostgresRepository) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = $2 WHERE id = $1`, id, time.Now().UTC())
	return err
}

// Invalidate sets active=false for the session. Idempotent; reports whether a
// live row was actually changed.
func (r *PostgresRepository) Invalidate(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET active = FALSE WHERE id = $1 AND active`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InvalidateAllForUser sets active=false on all the user's live sessions.
func (r *PostgresRepository) InvalidateAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET active = FALSE WHERE user_id = $1 AND active`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InvalidateAllForUserExcept spares the session with id keepID.
func (r *PostgresRepository) InvalidateAllForUserExcept(ctx context.Context, userID, keepID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET active = FALSE WHERE user_id = $1 AND id <> $2 AND active`, userID, keepID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListActiveForUser returns the user's active, unexpired sessions, most recent
// activity first.
func (r *PostgresRepository) ListActiveForUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND active AND expires_at > now()
		 ORDER BY last_activity_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SweepExpired marks all expired-but-still-active sessions inactive.
func (r *PostgresRepository) SweepExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET active = FALSE WHERE active AND expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
