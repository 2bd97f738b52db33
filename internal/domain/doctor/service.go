package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/db"
)

// ProfileMarker flags an account as a doctor.
type ProfileMarker interface {
	MarkDoctor(ctx context.Context, userID uuid.UUID, email string) error
}

// forgetter is implemented by repositories that cache lookups.
type forgetter interface {
	Forget(d *Doctor)
}

type Service struct {
	repo     Repository
	profiles ProfileMarker
	tx       db.TxRunner
}

func NewService(repo Repository, profiles ProfileMarker, tx db.TxRunner) *Service {
	return &Service{repo: repo, profiles: profiles, tx: tx}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// -- Directory --

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByUser returns the doctor record owned by userID or ErrNotFound.
func (s *Service) GetByUser(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return s.repo.GetByUserID(ctx, userID)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Doctor, int, error) {
	f.Specialty = strings.TrimSpace(f.Specialty)
	f.Name = strings.TrimSpace(f.Name)
	if strings.EqualFold(f.Specialty, "all") {
		f.Specialty = ""
	}
	return s.repo.List(ctx, f, limit, offset)
}

// Specialties lists the distinct medical fields present in the directory.
func (s *Service) Specialties(ctx context.Context) ([]string, error) {
	return s.repo.Specialties(ctx)
}

// -- Registration --

// Register creates the session user's doctor record and marks their
// profile as a doctor in the same transaction.
func (s *Service) Register(ctx context.Context, sess auth.Session, req RegisterRequest) (*Doctor, error) {
	d := &Doctor{
		Name:          strings.TrimSpace(req.Name),
		Email:         strings.TrimSpace(req.Email),
		MedicalField:  strings.ToLower(strings.TrimSpace(req.MedicalField)),
		LicenseNumber: strings.TrimSpace(req.LicenseNumber),
		AboutMe:       strings.TrimSpace(req.AboutMe),
		Location:      req.Location,
		Availability:  true,
	}
	switch {
	case d.Name == "":
		return nil, invalid("name is required")
	case d.Email == "":
		return nil, invalid("email is required")
	case d.MedicalField == "":
		return nil, invalid("medical_field is required")
	case d.LicenseNumber == "":
		return nil, invalid("license_number is required")
	case req.YearsExperience == nil:
		return nil, invalid("years_experience is required")
	case *req.YearsExperience < 0:
		return nil, invalid("years_experience cannot be negative")
	}
	d.YearsExperience = *req.YearsExperience

	var err error
	if d.WorkingHours, d.WorkingDays, err = parseSchedule(req.WorkingHours, req.WorkingDays); err != nil {
		return nil, err
	}

	uid := sess.UserID
	d.UserID = &uid

	_, err = s.repo.GetByUserID(ctx, uid)
	if err == nil {
		return nil, ErrAlreadyRegistered
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, d); err != nil {
			return err
		}
		return s.profiles.MarkDoctor(ctx, uid, sess.Email)
	})
	if f, ok := s.repo.(forgetter); ok {
		f.Forget(d)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// SetSchedule replaces working hours and days. Only the doctor's own
// account may change them. Existing appointments are left as booked.
func (s *Service) SetSchedule(ctx context.Context, sess auth.Session, id uuid.UUID, req ScheduleRequest) (*Doctor, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.IsUser(sess.UserID) {
		return nil, ErrForbidden
	}
	if len(req.WorkingHours) == 0 {
		return nil, invalid("working_hours is required")
	}
	if d.WorkingHours, d.WorkingDays, err = parseSchedule(req.WorkingHours, req.WorkingDays); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSchedule(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func parseSchedule(hours []string, days []int) (WorkingHours, WorkingDays, error) {
	wh := DefaultWorkingHours()
	if len(hours) > 0 {
		parsed, err := ParseWorkingHours(hours)
		if err != nil {
			return nil, nil, invalid("%v", err)
		}
		wh = parsed
	}

	wd := DefaultWorkingDays()
	if len(days) > 0 {
		wd = make(WorkingDays, 0, len(days))
		seen := make(map[int]bool)
		for _, d := range days {
			if d < 0 || d > 6 {
				return nil, nil, invalid("working_days must be 0 (Sunday) to 6 (Saturday), got %d", d)
			}
			if !seen[d] {
				seen[d] = true
				wd = append(wd, time.Weekday(d))
			}
		}
	}
	return wh, wd, nil
}
