package appointment

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/doctor"
)

type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var validStatuses = map[Status]bool{
	StatusUpcoming:  true,
	StatusCancelled: true,
	StatusCompleted: true,
}

// DateLayout is the calendar-day format of Appointment.Date.
const DateLayout = "2006-01-02"

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrSlotTaken         = errors.New("slot taken")
	ErrSelfBooking       = errors.New("doctors cannot book an appointment with themselves")
	ErrForbidden         = errors.New("not a participant of this appointment")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalid           = errors.New("invalid appointment")
)

// DoctorSummary is the doctor data listed alongside each appointment.
type DoctorSummary struct {
	ID           uuid.UUID       `json:"id"`
	UserID       *uuid.UUID      `json:"user_id,omitempty"`
	Name         string          `json:"name"`
	MedicalField string          `json:"medical_field"`
	Location     doctor.Location `json:"location"`
	Rating       float64         `json:"rating"`
	Reviews      int             `json:"reviews"`
}

type Appointment struct {
	ID            uuid.UUID        `json:"id"`
	DoctorID      uuid.UUID        `json:"doctor_id"`
	ClientID      uuid.UUID        `json:"client_id"`
	ClientName    string           `json:"client_name"`
	ClientAddress string           `json:"client_address"`
	Date          string           `json:"date"`
	Time          doctor.TimeLabel `json:"time"`
	Status        Status           `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Doctor        *DoctorSummary   `json:"doctor,omitempty"`
}

// IsParticipant reports whether userID is the client or the doctor's account.
func (a *Appointment) IsParticipant(userID uuid.UUID) bool {
	if a.ClientID == userID {
		return true
	}
	return a.Doctor != nil && a.Doctor.UserID != nil && *a.Doctor.UserID == userID
}

type BookRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" validate:"required"`
	Date     string    `json:"date" validate:"required,datetime=2006-01-02"`
	Time     string    `json:"time" validate:"required"`
	Address  string    `json:"address" validate:"required,max=500"`
}

// RescheduleRequest moves an appointment. An empty Address keeps the
// current one.
type RescheduleRequest struct {
	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
	Time    string `json:"time" validate:"required"`
	Address string `json:"address" validate:"max=500"`
}

type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// ListQuery is what the repository filters on. Rows match when
// client_id = ClientID, or doctor_id = DoctorID when DoctorID is set.
type ListQuery struct {
	ClientID uuid.UUID
	DoctorID *uuid.UUID
	Status   Status
	Limit    int
	Offset   int
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
