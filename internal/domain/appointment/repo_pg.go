package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docbook/docbook/internal/domain/doctor"
	"github.com/docbook/docbook/internal/platform/db"
)

const slotConstraint = "appointments_doctor_slot_upcoming_key"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const appointmentSelect = `SELECT a.id, a.doctor_id, a.client_id, a.client_name, a.client_address,
	a.appointment_date, a.appointment_time, a.status, a.created_at, a.updated_at,
	d.user_id, d.name, d.medical_field, d.location, d.rating, d.reviews
	FROM appointments a JOIN doctors d ON d.id = a.doctor_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var day time.Time
	var label, status string
	doc := &DoctorSummary{}
	err := row.Scan(&a.ID, &a.DoctorID, &a.ClientID, &a.ClientName, &a.ClientAddress,
		&day, &label, &status, &a.CreatedAt, &a.UpdatedAt,
		&doc.UserID, &doc.Name, &doc.MedicalField, &doc.Location, &doc.Rating, &doc.Reviews)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Date = day.Format(DateLayout)
	a.Time = doctor.TimeLabel(label)
	a.Status = Status(status)
	doc.ID = a.DoctorID
	a.Doctor = doc
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	day, err := parseDate(a.Date)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	a.Status = StatusUpcoming
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, client_id, client_name, client_address,
			appointment_date, appointment_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.ClientID, a.ClientName, a.ClientAddress, day, string(a.Time), string(a.Status),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, slotConstraint) {
		return fmt.Errorf("%w: %s at %s is already booked", ErrSlotTaken, a.Date, a.Time)
	}
	if db.IsForeignKeyViolation(err) {
		return doctor.ErrNotFound
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
}

func (r *repoPG) UpcomingTimes(ctx context.Context, doctorID uuid.UUID, day time.Time, excludeID uuid.UUID) ([]doctor.TimeLabel, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT appointment_time FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND status = 'upcoming' AND id <> $3`,
		doctorID, day, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []doctor.TimeLabel
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		out = append(out, doctor.TimeLabel(label))
	}
	return out, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (time.Time, error) {
	var updated time.Time
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`, id, string(from), string(to)).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: appointment is not %s", ErrInvalidTransition, from)
	}
	if db.IsUniqueViolation(err, slotConstraint) {
		return time.Time{}, ErrSlotTaken
	}
	return updated, err
}

func (r *repoPG) Reschedule(ctx context.Context, a *Appointment) error {
	day, err := parseDate(a.Date)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	a.Status = StatusUpcoming
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $2, appointment_time = $3, client_address = $4, status = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, day, string(a.Time), a.ClientAddress, string(a.Status)).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if db.IsUniqueViolation(err, slotConstraint) {
		return fmt.Errorf("%w: %s at %s is already booked", ErrSlotTaken, a.Date, a.Time)
	}
	return err
}

func (r *repoPG) List(ctx context.Context, q ListQuery) ([]*Appointment, int, error) {
	where := ` WHERE (a.client_id = $1`
	args := []interface{}{q.ClientID}
	if q.DoctorID != nil {
		args = append(args, *q.DoctorID)
		where += fmt.Sprintf(` OR a.doctor_id = $%d`, len(args))
	}
	where += `)`
	if q.Status != "" {
		args = append(args, string(q.Status))
		where += fmt.Sprintf(` AND a.status = $%d`, len(args))
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, q.Limit, q.Offset)
	query := appointmentSelect + where +
		` ORDER BY a.appointment_date, to_timestamp(a.appointment_time, 'HH12:MI AM')::time, a.created_at` +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
