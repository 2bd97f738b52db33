package doctor

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/db"
)

type mockRepo struct {
	doctors  map[uuid.UUID]*Doctor
	getCalls int
	err      error
}

func newMockRepo() *mockRepo {
	return &mockRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockRepo) Create(_ context.Context, d *Doctor) error {
	if m.err != nil {
		return m.err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	for _, existing := range m.doctors {
		if d.UserID != nil && existing.UserID != nil && *existing.UserID == *d.UserID {
			return ErrAlreadyRegistered
		}
	}
	m.doctors[d.ID] = clone(d)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.getCalls++
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(d), nil
}

func (m *mockRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	m.getCalls++
	if m.err != nil {
		return nil, m.err
	}
	for _, d := range m.doctors {
		if d.IsUser(userID) {
			return clone(d), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) UpdateSchedule(_ context.Context, d *Doctor) error {
	existing, ok := m.doctors[d.ID]
	if !ok {
		return ErrNotFound
	}
	existing.WorkingHours = d.WorkingHours
	existing.WorkingDays = d.WorkingDays
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Doctor, int, error) {
	var out []*Doctor
	for _, d := range m.doctors {
		if f.Specialty != "" && !strings.EqualFold(d.MedicalField, f.Specialty) {
			continue
		}
		if f.Name != "" && !strings.Contains(strings.ToLower(d.Name), strings.ToLower(f.Name)) {
			continue
		}
		out = append(out, clone(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockRepo) Specialties(_ context.Context) ([]string, error) {
	set := map[string]bool{}
	for _, d := range m.doctors {
		set[strings.ToLower(d.MedicalField)] = true
	}
	var out []string
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

type mockProfiles struct {
	marked map[uuid.UUID]bool
	err    error
}

func (m *mockProfiles) MarkDoctor(_ context.Context, userID uuid.UUID, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.marked[userID] = true
	return nil
}

func newTestService() (*Service, *mockRepo, *mockProfiles) {
	repo := newMockRepo()
	profiles := &mockProfiles{marked: make(map[uuid.UUID]bool)}
	return NewService(repo, profiles, db.NoTx{}), repo, profiles
}

func intPtr(i int) *int { return &i }

func validRegister() RegisterRequest {
	return RegisterRequest{
		Name:            "Dr. Amara Okafor",
		Email:           "amara@clinic.test",
		MedicalField:    "Cardiology",
		LicenseNumber:   "MD-44120",
		YearsExperience: intPtr(12),
		Location:        Location{City: "Lagos", Country: "Nigeria"},
	}
}

func seedDoctor(repo *mockRepo, name, field string, userID *uuid.UUID) *Doctor {
	d := &Doctor{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         name,
		MedicalField: field,
		WorkingHours: DefaultWorkingHours(),
		WorkingDays:  DefaultWorkingDays(),
	}
	repo.doctors[d.ID] = d
	return d
}

func TestRegister(t *testing.T) {
	svc, repo, profiles := newTestService()
	sess := auth.Session{UserID: uuid.New(), Email: "amara@clinic.test"}

	d, err := svc.Register(context.Background(), sess, validRegister())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID == uuid.Nil || !d.IsUser(sess.UserID) {
		t.Errorf("unexpected doctor %+v", d)
	}
	if d.MedicalField != "cardiology" {
		t.Errorf("expected normalized specialty, got %s", d.MedicalField)
	}
	if len(d.WorkingHours) != 10 || len(d.WorkingDays) != 5 {
		t.Errorf("expected default schedule, got %v %v", d.WorkingHours, d.WorkingDays)
	}
	if !profiles.marked[sess.UserID] {
		t.Error("expected profile marked as doctor")
	}
	if len(repo.doctors) != 1 {
		t.Errorf("expected 1 doctor stored, got %d", len(repo.doctors))
	}
}

// readBeforeCommitTx runs fn, then lets reader look up userID while the
// writes made by fn are still invisible, as another connection would.
type readBeforeCommitTx struct {
	repo   *mockRepo
	reader Repository
	userID uuid.UUID
}

func (tx readBeforeCommitTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	committed := make(map[uuid.UUID]*Doctor, len(tx.repo.doctors))
	for id, d := range tx.repo.doctors {
		committed[id] = d
	}
	if err := fn(ctx); err != nil {
		return err
	}
	pending := tx.repo.doctors
	tx.repo.doctors = committed
	if _, err := tx.reader.GetByUserID(ctx, tx.userID); !errors.Is(err, ErrNotFound) {
		return err
	}
	tx.repo.doctors = pending
	return nil
}

func TestRegister_CachedMissBeforeCommitIsCleared(t *testing.T) {
	repo := newMockRepo()
	cached := NewCachedRepository(repo, 16, time.Minute)
	profiles := &mockProfiles{marked: make(map[uuid.UUID]bool)}
	sess := auth.Session{UserID: uuid.New(), Email: "amara@clinic.test"}
	tx := readBeforeCommitTx{repo: repo, reader: cached, userID: sess.UserID}
	svc := NewService(cached, profiles, tx)

	d, err := svc.Register(context.Background(), sess, validRegister())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.GetByUser(context.Background(), sess.UserID)
	if err != nil {
		t.Fatalf("expected registered doctor after commit, got %v", err)
	}
	if got.ID != d.ID {
		t.Errorf("expected doctor %s, got %s", d.ID, got.ID)
	}
}

func TestRegister_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *RegisterRequest)
	}{
		{"name", func(r *RegisterRequest) { r.Name = " " }},
		{"email", func(r *RegisterRequest) { r.Email = "" }},
		{"medical_field", func(r *RegisterRequest) { r.MedicalField = "" }},
		{"license_number", func(r *RegisterRequest) { r.LicenseNumber = "" }},
		{"years_experience", func(r *RegisterRequest) { r.YearsExperience = nil }},
		{"negative years", func(r *RegisterRequest) { r.YearsExperience = intPtr(-1) }},
		{"bad hours", func(r *RegisterRequest) { r.WorkingHours = []string{"teatime"} }},
		{"bad days", func(r *RegisterRequest) { r.WorkingDays = []int{7} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService()
			req := validRegister()
			tt.mutate(&req)
			_, err := svc.Register(context.Background(), auth.Session{UserID: uuid.New()}, req)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
			if len(repo.doctors) != 0 {
				t.Error("expected no write on validation failure")
			}
		})
	}
}

func TestRegister_CustomSchedule(t *testing.T) {
	svc, _, _ := newTestService()
	req := validRegister()
	req.WorkingHours = []string{"10:00 am", "09:00 AM"}
	req.WorkingDays = []int{6, 6}

	d, err := svc.Register(context.Background(), auth.Session{UserID: uuid.New()}, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.WorkingHours) != 2 || d.WorkingHours[0] != "09:00 AM" {
		t.Errorf("unexpected hours %v", d.WorkingHours)
	}
	if len(d.WorkingDays) != 1 {
		t.Errorf("expected deduped days, got %v", d.WorkingDays)
	}
}

func TestRegister_Twice(t *testing.T) {
	svc, _, _ := newTestService()
	sess := auth.Session{UserID: uuid.New()}

	if _, err := svc.Register(context.Background(), sess, validRegister()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Register(context.Background(), sess, validRegister()); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRegister_ProfileFailureSurfaces(t *testing.T) {
	svc, _, profiles := newTestService()
	profiles.err = errors.New("profiles unavailable")

	if _, err := svc.Register(context.Background(), auth.Session{UserID: uuid.New()}, validRegister()); err == nil {
		t.Fatal("expected error")
	}
}

func TestList_FiltersBySpecialtyAndName(t *testing.T) {
	svc, repo, _ := newTestService()
	seedDoctor(repo, "Amara Okafor", "cardiology", nil)
	seedDoctor(repo, "Ben Carter", "cardiology", nil)
	seedDoctor(repo, "Chen Wei", "dentistry", nil)

	items, total, err := svc.List(context.Background(), Filter{Specialty: "Cardiology"}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 cardiologists, got %d", total)
	}

	items, total, _ = svc.List(context.Background(), Filter{Name: "  CHEN "}, 20, 0)
	if total != 1 || items[0].Name != "Chen Wei" {
		t.Errorf("expected case-insensitive name match, got %v", items)
	}

	_, total, _ = svc.List(context.Background(), Filter{Specialty: "all"}, 20, 0)
	if total != 3 {
		t.Errorf("expected 'all' to disable the specialty filter, got %d", total)
	}
}

func TestSpecialties(t *testing.T) {
	svc, repo, _ := newTestService()
	seedDoctor(repo, "A", "neurology", nil)
	seedDoctor(repo, "B", "Cardiology", nil)
	seedDoctor(repo, "C", "cardiology", nil)

	got, err := svc.Specialties(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "cardiology" || got[1] != "neurology" {
		t.Errorf("unexpected specialties %v", got)
	}
}

func TestSetSchedule(t *testing.T) {
	svc, repo, _ := newTestService()
	owner := uuid.New()
	d := seedDoctor(repo, "Amara", "cardiology", &owner)

	updated, err := svc.SetSchedule(context.Background(), auth.Session{UserID: owner}, d.ID,
		ScheduleRequest{WorkingHours: []string{"01:00 PM"}, WorkingDays: []int{1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.WorkingHours) != 1 || repo.doctors[d.ID].WorkingHours[0] != "01:00 PM" {
		t.Errorf("expected stored schedule updated, got %v", repo.doctors[d.ID].WorkingHours)
	}
}

func TestSetSchedule_NotOwner(t *testing.T) {
	svc, repo, _ := newTestService()
	owner := uuid.New()
	d := seedDoctor(repo, "Amara", "cardiology", &owner)

	_, err := svc.SetSchedule(context.Background(), auth.Session{UserID: uuid.New()}, d.ID,
		ScheduleRequest{WorkingHours: []string{"01:00 PM"}})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestGetByUser_NotDoctor(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.GetByUser(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
