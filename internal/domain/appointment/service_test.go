package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docbook/docbook/internal/domain/doctor"
	"github.com/docbook/docbook/internal/domain/profile"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/db"
	"github.com/docbook/docbook/internal/platform/events"
)

// mockRepo enforces the one-upcoming-appointment-per-slot rule the way the
// partial unique index does.
type mockRepo struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*Appointment
	doctors  *mockDoctors
	writes   int
	timesErr error
}

func newMockRepo(doctors *mockDoctors) *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Appointment), doctors: doctors}
}

func (m *mockRepo) slotHeld(a *Appointment) bool {
	for _, other := range m.items {
		if other.ID != a.ID && other.Status == StatusUpcoming &&
			other.DoctorID == a.DoctorID && other.Date == a.Date && other.Time == a.Time {
			return true
		}
	}
	return false
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Status = StatusUpcoming
	if m.slotHeld(a) {
		return ErrSlotTaken
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.items[a.ID] = &cp
	m.writes++
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	if d, ok := m.doctors.byID[a.DoctorID]; ok {
		cp.Doctor = summarize(d)
	}
	return &cp, nil
}

func (m *mockRepo) UpcomingTimes(_ context.Context, doctorID uuid.UUID, day time.Time, excludeID uuid.UUID) ([]doctor.TimeLabel, error) {
	if m.timesErr != nil {
		return nil, m.timesErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	date := day.Format(DateLayout)
	var out []doctor.TimeLabel
	for _, a := range m.items {
		if a.DoctorID == doctorID && a.Date == date && a.Status == StatusUpcoming && a.ID != excludeID {
			out = append(out, a.Time)
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok || a.Status != from {
		return time.Time{}, ErrInvalidTransition
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	m.writes++
	return a.UpdatedAt, nil
}

func (m *mockRepo) Reschedule(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.items[a.ID]
	if !ok {
		return ErrNotFound
	}
	a.Status = StatusUpcoming
	if m.slotHeld(a) {
		return ErrSlotTaken
	}
	existing.Date = a.Date
	existing.Time = a.Time
	existing.ClientAddress = a.ClientAddress
	existing.Status = StatusUpcoming
	m.writes++
	return nil
}

func (m *mockRepo) List(_ context.Context, q ListQuery) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.items {
		match := a.ClientID == q.ClientID || (q.DoctorID != nil && a.DoctorID == *q.DoctorID)
		if !match || (q.Status != "" && a.Status != q.Status) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time.Minutes() < out[j].Time.Minutes()
	})
	return out, len(out), nil
}

type mockDoctors struct {
	byID map[uuid.UUID]*doctor.Doctor
	err  error
}

func (m *mockDoctors) Get(_ context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	d, ok := m.byID[id]
	if !ok {
		return nil, doctor.ErrNotFound
	}
	return d, nil
}

func (m *mockDoctors) GetByUser(_ context.Context, userID uuid.UUID) (*doctor.Doctor, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, d := range m.byID {
		if d.IsUser(userID) {
			return d, nil
		}
	}
	return nil, doctor.ErrNotFound
}

type mockProfiles struct {
	byID map[uuid.UUID]*profile.Profile
}

func (m *mockProfiles) Get(_ context.Context, id uuid.UUID) (*profile.Profile, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return p, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// 2025-08-30 is a Saturday; 2025-09-01 the following Monday.
var testNow = time.Date(2025, 8, 30, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	repo     *mockRepo
	doctors  *mockDoctors
	profiles *mockProfiles
	pub      *recordingPublisher
	doctor   *doctor.Doctor
	doctorUser uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	doctorUser := uuid.New()
	d := &doctor.Doctor{
		ID:           uuid.New(),
		UserID:       &doctorUser,
		Name:         "Dr. Amara Okafor",
		MedicalField: "cardiology",
		Availability: true,
		WorkingHours: doctor.WorkingHours{"08:00 AM", "09:00 AM"},
		WorkingDays:  doctor.DefaultWorkingDays(),
	}
	doctors := &mockDoctors{byID: map[uuid.UUID]*doctor.Doctor{d.ID: d}}
	profiles := &mockProfiles{byID: make(map[uuid.UUID]*profile.Profile)}
	repo := newMockRepo(doctors)
	pub := &recordingPublisher{}
	svc := NewService(repo, doctors, profiles, db.NoTx{}, pub, zerolog.Nop()).
		WithClock(func() time.Time { return testNow })
	return &fixture{svc: svc, repo: repo, doctors: doctors, profiles: profiles, pub: pub, doctor: d, doctorUser: doctorUser}
}

func client() auth.Session {
	return auth.Session{UserID: uuid.New(), Email: "client@example.test"}
}

func (f *fixture) book(t *testing.T, sess auth.Session, date, clock string) *Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), sess, BookRequest{
		DoctorID: f.doctor.ID, Date: date, Time: clock, Address: "12 Marina Rd",
	})
	if err != nil {
		t.Fatalf("book %s %s: %v", date, clock, err)
	}
	return a
}

func TestBook_SecondClientGetsSlotTaken(t *testing.T) {
	f := newFixture(t)

	a := f.book(t, client(), "2025-09-01", "08:00 AM")
	if a.Status != StatusUpcoming {
		t.Errorf("expected upcoming, got %s", a.Status)
	}

	_, err := f.svc.Book(context.Background(), client(), BookRequest{
		DoctorID: f.doctor.ID, Date: "2025-09-01", Time: "08:00 AM", Address: "4 Allen Ave",
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if f.repo.writes != 1 {
		t.Errorf("expected only the first booking written, got %d writes", f.repo.writes)
	}
}

func TestBook_ConcurrentClientsNeverShareSlot(t *testing.T) {
	f := newFixture(t)
	const n = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	var booked, taken int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), client(), BookRequest{
				DoctorID: f.doctor.ID, Date: "2025-09-01", Time: "09:00 AM", Address: "addr",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked++
			case errors.Is(err, ErrSlotTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if booked != 1 || taken != n-1 {
		t.Fatalf("expected 1 booking and %d conflicts, got %d and %d", n-1, booked, taken)
	}
}

func TestBook_SelfBookingRejectedBeforeWrite(t *testing.T) {
	f := newFixture(t)
	sess := auth.Session{UserID: f.doctorUser}

	_, err := f.svc.Book(context.Background(), sess, BookRequest{
		DoctorID: f.doctor.ID, Date: "2025-09-01", Time: "08:00 AM", Address: "clinic",
	})
	if !errors.Is(err, ErrSelfBooking) {
		t.Fatalf("expected ErrSelfBooking, got %v", err)
	}
	if f.repo.writes != 0 {
		t.Errorf("expected no writes, got %d", f.repo.writes)
	}
}

func TestBook_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  func(f *fixture) BookRequest
		want error
	}{
		{"missing address", func(f *fixture) BookRequest {
			return BookRequest{DoctorID: f.doctor.ID, Date: "2025-09-01", Time: "08:00 AM"}
		}, ErrInvalid},
		{"missing date", func(f *fixture) BookRequest {
			return BookRequest{DoctorID: f.doctor.ID, Time: "08:00 AM", Address: "a"}
		}, ErrInvalid},
		{"bad date", func(f *fixture) BookRequest {
			return BookRequest{DoctorID: f.doctor.ID, Date: "01/09/2025", Time: "08:00 AM", Address: "a"}
		}, ErrInvalid},
		{"past date", func(f *fixture) BookRequest {
			return BookRequest{DoctorID: f.doctor.ID, Date: "2025-08-29", Time: "08:00 AM", Address: "a"}
		}, ErrInvalid},
		{"outside working hours", func(f *fixture) BookRequest {
			return BookRequest{DoctorID: f.doctor.ID, Date: "2025-09-01", Time: "10:00 AM", Address: "a"}
		}, ErrInvalid},
		{"weekend", func(f *fixture) BookRequest {
			return BookRequest{DoctorID: f.doctor.ID, Date: "2025-09-06", Time: "08:00 AM", Address: "a"}
		}, ErrInvalid},
		{"unknown doctor", func(f *fixture) BookRequest {
			return BookRequest{DoctorID: uuid.New(), Date: "2025-09-01", Time: "08:00 AM", Address: "a"}
		}, doctor.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Book(context.Background(), client(), tt.req(f))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if f.repo.writes != 0 {
				t.Errorf("expected no writes, got %d", f.repo.writes)
			}
		})
	}
}

func TestBook_TodayIsAllowed(t *testing.T) {
	f := newFixture(t)
	f.doctor.WorkingDays = append(f.doctor.WorkingDays, time.Saturday)
	f.book(t, client(), "2025-08-30", "08:00 AM")
}

func TestBook_AvailabilityCheckFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.repo.timesErr = errors.New("connection reset")

	_, err := f.svc.Book(context.Background(), client(), BookRequest{
		DoctorID: f.doctor.ID, Date: "2025-09-01", Time: "08:00 AM", Address: "a",
	})
	if err == nil || errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected check failure, got %v", err)
	}
	if f.repo.writes != 0 {
		t.Errorf("expected no writes, got %d", f.repo.writes)
	}
}

func TestBook_ClientName(t *testing.T) {
	f := newFixture(t)
	named := client()
	f.profiles.byID[named.UserID] = &profile.Profile{ID: named.UserID, FullName: "Ngozi Eze"}

	a := f.book(t, named, "2025-09-01", "08:00 AM")
	if a.ClientName != "Ngozi Eze" {
		t.Errorf("expected profile name, got %q", a.ClientName)
	}

	anon := client()
	b := f.book(t, anon, "2025-09-01", "09:00 AM")
	if b.ClientName != anon.Email {
		t.Errorf("expected email fallback, got %q", b.ClientName)
	}
}

func TestBook_PublishesEvent(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, client(), "2025-09-01", "08:00 AM")

	if len(f.pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(f.pub.events))
	}
	ev := f.pub.events[0]
	if ev.Type != events.AppointmentBooked || ev.AppointmentID != a.ID {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.DoctorUserID == nil || *ev.DoctorUserID != f.doctorUser {
		t.Error("expected doctor account on event")
	}
}

func TestCancel_OnlyChangesStatus(t *testing.T) {
	f := newFixture(t)
	sess := client()
	a := f.book(t, sess, "2025-09-01", "08:00 AM")

	got, err := f.svc.Cancel(context.Background(), sess, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	stored := f.repo.items[a.ID]
	if stored.Date != a.Date || stored.Time != a.Time || stored.ClientAddress != a.ClientAddress {
		t.Errorf("cancel changed slot fields: %+v", stored)
	}

	// A cancelled appointment frees its slot.
	f.book(t, client(), "2025-09-01", "08:00 AM")
}

func TestTransitions_FromTerminalStates(t *testing.T) {
	f := newFixture(t)
	sess := client()
	a := f.book(t, sess, "2025-09-01", "08:00 AM")

	if _, err := f.svc.Complete(context.Background(), auth.Session{UserID: f.doctorUser}, a.ID); err != nil {
		t.Fatalf("doctor complete: %v", err)
	}
	if _, err := f.svc.Cancel(context.Background(), sess, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.svc.Complete(context.Background(), sess, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitions_NonParticipantForbidden(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, client(), "2025-09-01", "08:00 AM")

	if _, err := f.svc.Cancel(context.Background(), client(), a.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Get(context.Background(), client(), a.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestReschedule_ToOwnSlot(t *testing.T) {
	f := newFixture(t)
	sess := client()
	a := f.book(t, sess, "2025-09-01", "08:00 AM")

	got, err := f.svc.Reschedule(context.Background(), sess, a.ID, RescheduleRequest{Date: "2025-09-01", Time: "08:00 AM"})
	if err != nil {
		t.Fatalf("expected own slot to be free, got %v", err)
	}
	if got.ClientAddress != "12 Marina Rd" {
		t.Errorf("expected address kept, got %q", got.ClientAddress)
	}
}

func TestReschedule_RevivesCancelled(t *testing.T) {
	f := newFixture(t)
	sess := client()
	a := f.book(t, sess, "2025-09-01", "08:00 AM")
	if _, err := f.svc.Cancel(context.Background(), sess, a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := f.svc.Reschedule(context.Background(), sess, a.ID,
		RescheduleRequest{Date: "2025-09-02", Time: "09:00 AM", Address: "New address"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored := f.repo.items[a.ID]
	if got.Status != StatusUpcoming || stored.Status != StatusUpcoming {
		t.Errorf("expected upcoming, got %s", stored.Status)
	}
	if stored.Date != "2025-09-02" || stored.Time != "09:00 AM" || stored.ClientAddress != "New address" {
		t.Errorf("unexpected stored appointment %+v", stored)
	}
	if last := f.pub.events[len(f.pub.events)-1]; last.Type != events.AppointmentRescheduled {
		t.Errorf("expected rescheduled event, got %s", last.Type)
	}
}

func TestReschedule_IntoTakenSlot(t *testing.T) {
	f := newFixture(t)
	f.book(t, client(), "2025-09-01", "09:00 AM")
	sess := client()
	a := f.book(t, sess, "2025-09-01", "08:00 AM")

	_, err := f.svc.Reschedule(context.Background(), sess, a.ID, RescheduleRequest{Date: "2025-09-01", Time: "09:00 AM"})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if f.repo.items[a.ID].Time != "08:00 AM" {
		t.Error("expected appointment left in place")
	}
}

func TestList_DoctorSeesBothRoles(t *testing.T) {
	f := newFixture(t)
	doctorSess := auth.Session{UserID: f.doctorUser}
	patient := client()
	f.book(t, patient, "2025-09-01", "09:00 AM")

	// The doctor books another doctor as a client.
	other := &doctor.Doctor{
		ID: uuid.New(), Name: "Dr. Chen", Availability: true,
		WorkingHours: doctor.DefaultWorkingHours(), WorkingDays: doctor.DefaultWorkingDays(),
	}
	f.doctors.byID[other.ID] = other
	if _, err := f.svc.Book(context.Background(), doctorSess, BookRequest{
		DoctorID: other.ID, Date: "2025-09-01", Time: "08:00 AM", Address: "a",
	}); err != nil {
		t.Fatalf("book other doctor: %v", err)
	}

	items, total, err := f.svc.List(context.Background(), doctorSess, ListFilter{Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected doctor to see 2 rows, got %d", total)
	}
	if items[0].Time != "08:00 AM" || items[1].Time != "09:00 AM" {
		t.Errorf("expected ordering by time, got %s then %s", items[0].Time, items[1].Time)
	}

	_, total, _ = f.svc.List(context.Background(), patient, ListFilter{Limit: 20})
	if total != 1 {
		t.Errorf("expected client to see only their row, got %d", total)
	}
}

func TestList_StatusFilter(t *testing.T) {
	f := newFixture(t)
	sess := client()
	a := f.book(t, sess, "2025-09-01", "08:00 AM")
	f.book(t, sess, "2025-09-01", "09:00 AM")
	f.svc.Cancel(context.Background(), sess, a.ID)

	items, total, err := f.svc.List(context.Background(), sess, ListFilter{Status: StatusCancelled, Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].ID != a.ID {
		t.Errorf("expected only the cancelled appointment, got %d", total)
	}

	if _, _, err := f.svc.List(context.Background(), sess, ListFilter{Status: "pending"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestList_DoctorLookupFailureDegrades(t *testing.T) {
	f := newFixture(t)
	patient := client()
	f.book(t, patient, "2025-09-01", "08:00 AM")
	f.doctors.err = errors.New("directory down")

	_, total, err := f.svc.List(context.Background(), auth.Session{UserID: f.doctorUser}, ListFilter{Limit: 20})
	if err != nil {
		t.Fatalf("expected degraded listing, got %v", err)
	}
	if total != 0 {
		t.Errorf("expected client-only rows, got %d", total)
	}
}

func TestFreeSlots(t *testing.T) {
	f := newFixture(t)
	f.book(t, client(), "2025-09-01", "08:00 AM")

	slots, err := f.svc.FreeSlots(context.Background(), f.doctor.ID, "2025-09-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 1 || slots[0] != "09:00 AM" {
		t.Errorf("expected [09:00 AM], got %v", slots)
	}

	slots, _ = f.svc.FreeSlots(context.Background(), f.doctor.ID, "2025-09-07")
	if len(slots) != 0 {
		t.Errorf("expected no slots on Sunday, got %v", slots)
	}
	slots, _ = f.svc.FreeSlots(context.Background(), f.doctor.ID, "2025-08-01")
	if len(slots) != 0 {
		t.Errorf("expected no slots in the past, got %v", slots)
	}
	if _, err := f.svc.FreeSlots(context.Background(), f.doctor.ID, "tomorrow"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}
