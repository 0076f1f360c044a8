package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/models"
)

type ProfileRepo struct {
	DB DBTX
}

const upsertProfile = `-- name: UpsertProfile
INSERT INTO profiles (id, email, role)
VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET role = EXCLUDED.role
RETURNING id, email, role, created_at
`

func (r *ProfileRepo) UpsertProfile(ctx context.Context, email string, role models.Role) (models.Profile, error) {
	rows, _ := r.DB.Query(ctx, upsertProfile, uuid.New(), email, role)
	profile, err := pgx.CollectOneRow(rows, rowToProfile)
	if err != nil {
		return profile, fmt.Errorf("db error: %w", err)
	}

	return profile, nil
}

const getProfileByEmail = `-- name: GetProfileByEmail
SELECT id, email, role, created_at FROM profiles
WHERE email = $1
`

func (r *ProfileRepo) GetProfileByEmail(ctx context.Context, email string) (models.Profile, error) {
	rows, _ := r.DB.Query(ctx, getProfileByEmail, email)
	profile, err := pgx.CollectOneRow(rows, rowToProfile)

	switch {
	case err == nil:
		return profile, nil
	case errors.Is(err, pgx.ErrNoRows):
		return profile, apperrors.ErrProfileNotFound
	default:
		return profile, fmt.Errorf("db error: %w", err)
	}
}

func rowToProfile(row pgx.CollectableRow) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.Email, &p.Role, &p.CreatedAt)
	return p, err
}
