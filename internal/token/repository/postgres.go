package repository

import (
	"context"
	"database/sql"
	"errors"

	"stocktrack/backend/internal/token/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an ephemeral-token repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tokenColumns = `id, user_id, token_hash, code_hash, purpose, used, geo_city, geo_country, expires_at, created_at`

func scanToken(row *sql.Row) (*domain.EphemeralToken, error) {
	var t domain.EphemeralToken
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.CodeHash, &t.Purpose, &t.Used,
		&t.Geo.City, &t.Geo.Country, &t.ExpiresAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// Create persists the token. The token must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.EphemeralToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ephemeral_tokens (`+tokenColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.UserID, t.TokenHash, t.CodeHash, t.Purpose, t.Used,
		t.Geo.City, t.Geo.Country, t.ExpiresAt, t.CreatedAt,
	)
	return err
}

// ConsumeByTokenHash finds the unused, unexpired token matching hash and
// purpose and marks it used, all in one conditional update. Of two concurrent
// consumes exactly one gets the row back; the other sees no rows and gets
// (nil, nil) like any other miss.
func (r *PostgresRepository) ConsumeByTokenHash(ctx context.Context, tokenHash string, purpose domain.Purpose) (*domain.EphemeralToken, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE ephemeral_tokens SET used = TRUE
		 WHERE token_hash = $1 AND purpose = $2 AND NOT used AND expires_at > now()
		 RETURNING `+tokenColumns, tokenHash, purpose)
	return scanToken(row)
}

// ConsumeByUserAndCodeHash is the offline path: the caller has no opaque
// token, only the user and the entered code.
func (r *PostgresRepository) ConsumeByUserAndCodeHash(ctx context.Context, userID, codeHash string, purpose domain.Purpose) (*domain.EphemeralToken, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE ephemeral_tokens SET used = TRUE
		 WHERE user_id = $1 AND code_hash = $2 AND code_hash <> '' AND purpose = $3
		   AND NOT used AND expires_at > now()
		 RETURNING `+tokenColumns, userID, codeHash, purpose)
	return scanToken(row)
}

// MarkUsed marks the token used by id. Idempotent.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ephemeral_tokens SET used = TRUE WHERE id = $1`, id)
	return err
}

// MarkAllUsedForUser invalidates every live token of the given purpose for the
// user, superseding them before a fresh issue.
func (r *PostgresRepository) MarkAllUsedForUser(ctx context.Context, userID string, purpose domain.Purpose) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ephemeral_tokens SET used = TRUE
		 WHERE user_id = $1 AND purpose = $2 AND NOT used`, userID, purpose)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SweepExpired marks all expired-but-unused tokens as used.
func (r *PostgresRepository) SweepExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ephemeral_tokens SET used = TRUE WHERE NOT used AND expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
