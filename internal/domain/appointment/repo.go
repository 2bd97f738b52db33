package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/doctor"
)

type Repository interface {
	// Create inserts a with status upcoming. It returns ErrSlotTaken when
	// another upcoming appointment holds the same slot.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpcomingTimes returns the labels held by upcoming appointments of
	// doctorID on day, ignoring excludeID.
	UpcomingTimes(ctx context.Context, doctorID uuid.UUID, day time.Time, excludeID uuid.UUID) ([]doctor.TimeLabel, error)
	// UpdateStatus moves id from one status to another. It returns
	// ErrInvalidTransition when the row is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (time.Time, error)
	// Reschedule rewrites date, time and address and sets status upcoming.
	Reschedule(ctx context.Context, a *Appointment) error
	List(ctx context.Context, q ListQuery) ([]*Appointment, int, error)
}
