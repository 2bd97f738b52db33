package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/platform/auth"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetCurrent(ctx context.Context, sess auth.Session) (*Profile, error) {
	return s.repo.GetByID(ctx, sess.UserID)
}

// Get returns any user's profile; used to resolve display names.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// Ensure creates the session user's profile on first sign-in and returns
// the stored row. Calling it again leaves an existing profile untouched.
func (s *Service) Ensure(ctx context.Context, sess auth.Session, fullName string) (*Profile, bool, error) {
	p := &Profile{
		ID:       sess.UserID,
		FullName: strings.TrimSpace(fullName),
		Email:    sess.Email,
	}
	created, err := s.repo.Insert(ctx, p)
	if err != nil {
		return nil, false, fmt.Errorf("create profile: %w", err)
	}
	stored, err := s.repo.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Service) Update(ctx context.Context, sess auth.Session, req UpdateRequest) (*Profile, error) {
	p, err := s.repo.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, fmt.Errorf("%w: full_name cannot be empty", ErrInvalid)
		}
		p.FullName = name
	}
	if req.UserName != nil {
		p.UserName = strings.TrimSpace(*req.UserName)
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: email is invalid", ErrInvalid)
		}
		p.Email = email
	}
	if req.Avatar != nil {
		p.Avatar = *req.Avatar
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// MarkDoctor flags the user as a doctor, creating a bare profile first
// when the user never signed in through the app.
func (s *Service) MarkDoctor(ctx context.Context, userID uuid.UUID, email string) error {
	err := s.repo.SetDoctor(ctx, userID, true)
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := s.repo.Insert(ctx, &Profile{ID: userID, Email: email, IsDoctor: true}); err != nil {
		return err
	}
	return s.repo.SetDoctor(ctx, userID, true)
}
