// Package events fans appointment changes out to live subscribers. Writes
// commit first; publishing is best-effort and never undoes a write.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	AppointmentBooked      = "appointment.booked"
	AppointmentCancelled   = "appointment.cancelled"
	AppointmentCompleted   = "appointment.completed"
	AppointmentRescheduled = "appointment.rescheduled"
)

// Event describes one appointment change.
type Event struct {
	ID            uuid.UUID `json:"id"`
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	// DoctorUserID is the doctor's account, when the doctor has one.
	DoctorUserID *uuid.UUID `json:"doctor_user_id,omitempty"`
	ClientID     uuid.UUID  `json:"client_id"`
	Status       string     `json:"status"`
	Date         string     `json:"date"`
	Time         string     `json:"time"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// UserTopic is the topic a user's websocket connections are subscribed to.
func UserTopic(id uuid.UUID) string {
	return "user:" + id.String()
}

// Topics lists the user topics that should receive e.
func (e Event) Topics() []string {
	topics := []string{UserTopic(e.ClientID)}
	if e.DoctorUserID != nil && *e.DoctorUserID != e.ClientID {
		topics = append(topics, UserTopic(*e.DoctorUserID))
	}
	return topics
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// MultiPublisher delivers to every publisher and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// BestEffort wraps a Publisher so failures are logged instead of returned.
type BestEffort struct {
	Next   Publisher
	Logger zerolog.Logger
}

func (b BestEffort) Publish(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := b.Next.Publish(ctx, event); err != nil {
		b.Logger.Warn().Err(err).
			Str("event", event.Type).
			Str("appointment_id", event.AppointmentID.String()).
			Msg("publish event failed")
	}
	return nil
}
