package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docbook/docbook/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const profileCols = `id, full_name, user_name, email, avatar, is_doctor, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.FullName, &p.UserName, &p.Email, &p.Avatar, &p.IsDoctor, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE id = $1`, id))
}

func (r *repoPG) Insert(ctx context.Context, p *Profile) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO profiles (id, full_name, user_name, email, avatar, is_doctor)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.FullName, p.UserName, p.Email, p.Avatar, p.IsDoctor)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Update(ctx context.Context, p *Profile) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE profiles SET full_name = $2, user_name = $3, email = $4, avatar = $5, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.FullName, p.UserName, p.Email, p.Avatar)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SetDoctor(ctx context.Context, id uuid.UUID, isDoctor bool) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE profiles SET is_doctor = $2, updated_at = NOW() WHERE id = $1`, id, isDoctor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
