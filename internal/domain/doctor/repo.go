package doctor

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	UpdateSchedule(ctx context.Context, d *Doctor) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Doctor, int, error)
	Specialties(ctx context.Context) ([]string, error)
}
