package doctor

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("doctor not found")
	ErrAlreadyRegistered = errors.New("doctor already registered for this user")
	ErrForbidden         = errors.New("not allowed to modify this doctor")
	ErrInvalid           = errors.New("invalid doctor")
)

type Location struct {
	Address string   `json:"address"`
	City    string   `json:"city"`
	State   string   `json:"state"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

type Doctor struct {
	ID              uuid.UUID    `json:"id"`
	UserID          *uuid.UUID   `json:"user_id,omitempty"`
	Name            string       `json:"name"`
	Email           string       `json:"email"`
	MedicalField    string       `json:"medical_field"`
	LicenseNumber   string       `json:"license_number"`
	YearsExperience int          `json:"years_experience"`
	AboutMe         string       `json:"about_me"`
	Location        Location     `json:"location"`
	Rating          float64      `json:"rating"`
	Reviews         int          `json:"reviews"`
	Verified        bool         `json:"verified"`
	TopDoctor       bool         `json:"top_doctor"`
	Availability    bool         `json:"availability"`
	WorkingHours    WorkingHours `json:"working_hours"`
	WorkingDays     WorkingDays  `json:"working_days"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IsUser reports whether the doctor record belongs to the given account.
func (d *Doctor) IsUser(userID uuid.UUID) bool {
	return d.UserID != nil && *d.UserID == userID
}

// AcceptsAt reports whether day and label fall inside the doctor's schedule.
func (d *Doctor) AcceptsAt(day time.Time, label TimeLabel) bool {
	return d.WorkingDays.Contains(day.Weekday()) && d.WorkingHours.Contains(label)
}

type RegisterRequest struct {
	Name            string   `json:"name" validate:"required"`
	Email           string   `json:"email" validate:"required,email"`
	MedicalField    string   `json:"medical_field" validate:"required"`
	LicenseNumber   string   `json:"license_number" validate:"required"`
	YearsExperience *int     `json:"years_experience" validate:"required,gte=0,lte=80"`
	AboutMe         string   `json:"about_me"`
	Location        Location `json:"location"`
	WorkingHours    []string `json:"working_hours"`
	WorkingDays     []int    `json:"working_days" validate:"omitempty,dive,gte=0,lte=6"`
}

type ScheduleRequest struct {
	WorkingHours []string `json:"working_hours" validate:"required,min=1"`
	WorkingDays  []int    `json:"working_days" validate:"omitempty,dive,gte=0,lte=6"`
}

// Filter narrows the directory listing.
type Filter struct {
	Specialty string
	Name      string
}
