package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docbook/docbook/internal/domain/doctor"
	"github.com/docbook/docbook/internal/domain/profile"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/db"
	"github.com/docbook/docbook/internal/platform/events"
)

// Doctors is the directory lookup the booking flow needs.
type Doctors interface {
	Get(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*doctor.Doctor, error)
}

// Profiles resolves the client's display name.
type Profiles interface {
	Get(ctx context.Context, id uuid.UUID) (*profile.Profile, error)
}

type Service struct {
	repo     Repository
	doctors  Doctors
	profiles Profiles
	tx       db.TxRunner
	events   events.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, doctors Doctors, profiles Profiles, tx db.TxRunner, pub events.Publisher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		repo:     repo,
		doctors:  doctors,
		profiles: profiles,
		tx:       tx,
		events:   events.BestEffort{Next: pub, Logger: logger},
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the clock used to reject dates in the past.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// -- Availability --

// IsSlotFree reports whether no upcoming appointment of doctorID other
// than excludeID holds label on day. A failed lookup is returned as an
// error and never treated as free.
func (s *Service) IsSlotFree(ctx context.Context, doctorID uuid.UUID, day time.Time, label doctor.TimeLabel, excludeID uuid.UUID) (bool, error) {
	taken, err := s.repo.UpcomingTimes(ctx, doctorID, day, excludeID)
	if err != nil {
		return false, fmt.Errorf("check slot availability: %w", err)
	}
	for _, t := range taken {
		if t == label {
			return false, nil
		}
	}
	return true, nil
}

// FreeSlots lists the doctor's working-hour labels on date that no upcoming
// appointment holds. Days the doctor does not work and past days have none.
func (s *Service) FreeSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]doctor.TimeLabel, error) {
	day, err := parseDate(strings.TrimSpace(date))
	if err != nil {
		return nil, invalid("date must be YYYY-MM-DD")
	}
	d, err := s.doctors.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	free := []doctor.TimeLabel{}
	if s.isPast(day) || !d.WorkingDays.Contains(day.Weekday()) {
		return free, nil
	}

	taken, err := s.repo.UpcomingTimes(ctx, doctorID, day, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}
	held := make(map[doctor.TimeLabel]bool, len(taken))
	for _, t := range taken {
		held[t] = true
	}
	for _, l := range d.WorkingHours {
		if !held[l] {
			free = append(free, l)
		}
	}
	return free, nil
}

func (s *Service) isPast(day time.Time) bool {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return day.Before(today)
}

// slot validates a requested date and time against the doctor's schedule.
func (s *Service) slot(d *doctor.Doctor, date, clock string) (time.Time, doctor.TimeLabel, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, "", invalid("date is required")
	}
	if strings.TrimSpace(clock) == "" {
		return time.Time{}, "", invalid("time is required")
	}
	day, err := parseDate(date)
	if err != nil {
		return time.Time{}, "", invalid("date must be YYYY-MM-DD")
	}
	if s.isPast(day) {
		return time.Time{}, "", invalid("date %s is in the past", date)
	}
	label, err := doctor.ParseTimeLabel(clock)
	if err != nil {
		return time.Time{}, "", invalid("%v", err)
	}
	if !d.WorkingDays.Contains(day.Weekday()) {
		return time.Time{}, "", invalid("%s does not see patients on %s", d.Name, day.Weekday())
	}
	if !d.WorkingHours.Contains(label) {
		return time.Time{}, "", invalid("%s is not one of %s's working hours", label, d.Name)
	}
	return day, label, nil
}

// -- Booking --

// Book reserves a slot for the session user. The slot is checked first so
// the caller gets a clear conflict; the insert itself is guarded by the
// unique index on upcoming slots.
func (s *Service) Book(ctx context.Context, sess auth.Session, req BookRequest) (*Appointment, error) {
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return nil, invalid("address is required")
	}
	if req.DoctorID == uuid.Nil {
		return nil, invalid("doctor_id is required")
	}

	d, err := s.doctors.Get(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if d.IsUser(sess.UserID) {
		return nil, ErrSelfBooking
	}
	if !d.Availability {
		return nil, invalid("%s is not accepting appointments", d.Name)
	}
	day, label, err := s.slot(d, req.Date, req.Time)
	if err != nil {
		return nil, err
	}

	free, err := s.IsSlotFree(ctx, d.ID, day, label, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, fmt.Errorf("%w: %s at %s is already booked", ErrSlotTaken, day.Format(DateLayout), label)
	}

	name, err := s.clientName(ctx, sess)
	if err != nil {
		return nil, err
	}

	a := &Appointment{
		DoctorID:      d.ID,
		ClientID:      sess.UserID,
		ClientName:    name,
		ClientAddress: address,
		Date:          day.Format(DateLayout),
		Time:          label,
		Status:        StatusUpcoming,
		Doctor:        summarize(d),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.publish(ctx, events.AppointmentBooked, a)
	return a, nil
}

func (s *Service) clientName(ctx context.Context, sess auth.Session) (string, error) {
	p, err := s.profiles.Get(ctx, sess.UserID)
	if errors.Is(err, profile.ErrNotFound) {
		return sess.Email, nil
	}
	if err != nil {
		return "", fmt.Errorf("load client profile: %w", err)
	}
	if name := p.DisplayName(); name != "" {
		return name, nil
	}
	return sess.Email, nil
}

func summarize(d *doctor.Doctor) *DoctorSummary {
	return &DoctorSummary{
		ID:           d.ID,
		UserID:       d.UserID,
		Name:         d.Name,
		MedicalField: d.MedicalField,
		Location:     d.Location,
		Rating:       d.Rating,
		Reviews:      d.Reviews,
	}
}

// -- Transitions --

func (s *Service) Cancel(ctx context.Context, sess auth.Session, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, sess, id, StatusCancelled, events.AppointmentCancelled)
}

func (s *Service) Complete(ctx context.Context, sess auth.Session, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, sess, id, StatusCompleted, events.AppointmentCompleted)
}

// transition moves an upcoming appointment to a terminal status. Only the
// status changes.
func (s *Service) transition(ctx context.Context, sess auth.Session, id uuid.UUID, to Status, eventType string) (*Appointment, error) {
	a, err := s.participantAppointment(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusUpcoming {
		return nil, fmt.Errorf("%w: cannot move %s appointment to %s", ErrInvalidTransition, a.Status, to)
	}
	updated, err := s.repo.UpdateStatus(ctx, id, StatusUpcoming, to)
	if err != nil {
		return nil, err
	}
	a.Status = to
	a.UpdatedAt = updated

	s.publish(ctx, eventType, a)
	return a, nil
}

// Reschedule moves an appointment of any status to a new slot and makes it
// upcoming again. The appointment's own slot does not count as taken.
func (s *Service) Reschedule(ctx context.Context, sess auth.Session, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	var a *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.participantAppointment(ctx, sess, id)
		if err != nil {
			return err
		}
		d, err := s.doctors.Get(ctx, a.DoctorID)
		if err != nil {
			return err
		}
		day, label, err := s.slot(d, req.Date, req.Time)
		if err != nil {
			return err
		}

		free, err := s.IsSlotFree(ctx, a.DoctorID, day, label, a.ID)
		if err != nil {
			return err
		}
		if !free {
			return fmt.Errorf("%w: %s at %s is already booked", ErrSlotTaken, day.Format(DateLayout), label)
		}

		a.Date = day.Format(DateLayout)
		a.Time = label
		if addr := strings.TrimSpace(req.Address); addr != "" {
			a.ClientAddress = addr
		}
		return s.repo.Reschedule(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.AppointmentRescheduled, a)
	return a, nil
}

// -- Queries --

func (s *Service) Get(ctx context.Context, sess auth.Session, id uuid.UUID) (*Appointment, error) {
	return s.participantAppointment(ctx, sess, id)
}

func (s *Service) participantAppointment(ctx context.Context, sess auth.Session, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsParticipant(sess.UserID) {
		return nil, ErrForbidden
	}
	return a, nil
}

// List returns the viewer's appointments. A viewer with a doctor record
// also sees the appointments booked with them. When the doctor lookup
// fails the listing falls back to the viewer's own bookings.
func (s *Service) List(ctx context.Context, sess auth.Session, f ListFilter) ([]*Appointment, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, invalid("status must be one of upcoming, cancelled, completed")
	}
	q := ListQuery{ClientID: sess.UserID, Status: f.Status, Limit: f.Limit, Offset: f.Offset}

	d, err := s.doctors.GetByUser(ctx, sess.UserID)
	switch {
	case err == nil:
		q.DoctorID = &d.ID
	case errors.Is(err, doctor.ErrNotFound):
	default:
		s.logger.Warn().Err(err).Str("user_id", sess.UserID.String()).
			Msg("doctor lookup failed, listing client appointments only")
	}

	return s.repo.List(ctx, q)
}

func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	ev := events.Event{
		Type:          eventType,
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		ClientID:      a.ClientID,
		Status:        string(a.Status),
		Date:          a.Date,
		Time:          string(a.Time),
	}
	if a.Doctor != nil {
		ev.DoctorUserID = a.Doctor.UserID
	}
	s.events.Publish(ctx, ev)
}
