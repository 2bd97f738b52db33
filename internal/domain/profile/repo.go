package profile

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	// Insert creates p unless a row with the same id exists; it reports
	// whether a row was created.
	Insert(ctx context.Context, p *Profile) (bool, error)
	Update(ctx context.Context, p *Profile) error
	SetDoctor(ctx context.Context, id uuid.UUID, isDoctor bool) error
}
