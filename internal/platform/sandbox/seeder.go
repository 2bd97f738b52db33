// Package sandbox generates a reproducible demo doctor directory for
// development environments, UI demos and integration tests.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docbook/docbook/internal/domain/doctor"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls how many doctors are generated and from which seed.
type SeedConfig struct {
	DoctorCount int   `json:"doctor_count"`
	Seed        int64 `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{DoctorCount: 24}
}

// SeedResult summarizes one seeding run.
type SeedResult struct {
	Doctors     int            `json:"doctors"`
	BySpecialty map[string]int `json:"by_specialty"`
	DurationMs  int64          `json:"duration_ms"`
}

// ---------------------------------------------------------------------------
// Reference data
// ---------------------------------------------------------------------------

// Specialties is the category list shown on the home screen.
var Specialties = []string{
	"cardiology", "dentistry", "gastroenterology", "general",
	"laboratory", "neurology", "pulmono", "vaccine",
}

var (
	firstNames = []string{
		"David", "Jessica", "Michael", "Emily", "Robert", "Sarah", "James",
		"Olivia", "Amara", "Chen", "Ngozi", "Daniel", "Priya", "Samuel",
		"Fatima", "Lucas", "Hannah", "Mateo", "Aisha", "Noah",
	}
	lastNames = []string{
		"Patel", "Turner", "Johnson", "Walker", "Chen", "Williams", "Wilson",
		"Martinez", "Okafor", "Eze", "Garcia", "Kim", "Nguyen", "Adeyemi",
		"Rossi", "Schmidt", "Haddad", "Silva", "Kowalski", "Sato",
	}
	clinics = []string{
		"Cardiology Center", "Women's Clinic", "Maple Associates",
		"Serenity Clinic", "Brain Health Institute", "Skin Care Center",
		"City General Hospital", "Wellness Center",
	}
	places = []struct {
		City, State, Country string
		Lat, Lng             float64
	}{
		{"Seattle", "WA", "USA", 47.6062, -122.3321},
		{"New York", "NY", "USA", 40.7128, -74.0060},
		{"Austin", "TX", "USA", 30.2672, -97.7431},
		{"Denver", "CO", "USA", 39.7392, -104.9903},
		{"Miami", "FL", "USA", 25.7617, -80.1918},
		{"Lagos", "Lagos", "Nigeria", 6.5244, 3.3792},
		{"San Jose", "CA", "USA", 37.3382, -121.8863},
	}
	bios = map[string]string{
		"cardiology":       "Treats heart rhythm disorders, hypertension and coronary disease.",
		"dentistry":        "General and cosmetic dentistry for adults and children.",
		"gastroenterology": "Digestive health, endoscopy and liver care.",
		"general":          "Primary care, preventive check-ups and chronic disease follow-up.",
		"laboratory":       "Blood work, diagnostics and test result consultations.",
		"neurology":        "Headaches, epilepsy, stroke recovery and nerve disorders.",
		"pulmono":          "Asthma, COPD and sleep-related breathing disorders.",
		"vaccine":          "Routine and travel immunizations for all ages.",
	}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic demo doctors.
type DataGenerator struct {
	rng     *rand.Rand
	counter uint64
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// GenerateDoctor produces a doctor without an account, spread across the
// specialties in round-robin order.
func (g *DataGenerator) GenerateDoctor() *doctor.Doctor {
	specialty := Specialties[g.counter%uint64(len(Specialties))]
	g.counter++

	first, last := g.pick(firstNames), g.pick(lastNames)
	place := places[g.rng.Intn(len(places))]
	lat, lng := place.Lat, place.Lng
	rating := 3.5 + float64(g.rng.Intn(16))/10
	years := 2 + g.rng.Intn(30)

	return &doctor.Doctor{
		ID:              uuid.New(),
		Name:            fmt.Sprintf("Dr. %s %s", first, last),
		Email:           fmt.Sprintf("%s.%s.%d@docbook.test", strings.ToLower(first), strings.ToLower(last), g.counter),
		MedicalField:    specialty,
		LicenseNumber:   fmt.Sprintf("MD-%06d", g.rng.Intn(1000000)),
		YearsExperience: years,
		AboutMe:         bios[specialty],
		Location: doctor.Location{
			Address: fmt.Sprintf("%s, %d %s St", g.pick(clinics), 1+g.rng.Intn(999), g.pick(lastNames)),
			City:    place.City,
			State:   place.State,
			Country: place.Country,
			Lat:     &lat,
			Lng:     &lng,
		},
		Rating:       rating,
		Reviews:      g.rng.Intn(5000),
		Verified:     g.rng.Intn(4) != 0,
		TopDoctor:    rating >= 4.8,
		Availability: true,
		WorkingHours: doctor.DefaultWorkingHours(),
		WorkingDays:  doctor.DefaultWorkingDays(),
	}
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// DoctorCreator is the write side of the doctor repository.
type DoctorCreator interface {
	Create(ctx context.Context, d *doctor.Doctor) error
}

// SeedDoctors inserts cfg.DoctorCount generated doctors.
func SeedDoctors(ctx context.Context, repo DoctorCreator, cfg SeedConfig) (*SeedResult, error) {
	start := time.Now()
	if cfg.DoctorCount <= 0 {
		return nil, fmt.Errorf("doctor count must be positive, got %d", cfg.DoctorCount)
	}

	gen := NewDataGenerator(cfg.Seed)
	result := &SeedResult{BySpecialty: make(map[string]int)}
	for i := 0; i < cfg.DoctorCount; i++ {
		d := gen.GenerateDoctor()
		if err := repo.Create(ctx, d); err != nil {
			return result, fmt.Errorf("seed doctor %d: %w", i+1, err)
		}
		result.Doctors++
		result.BySpecialty[d.MedicalField]++
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// SeedHandler exposes seeding over HTTP in development.
type SeedHandler struct {
	repo DoctorCreator
	mu   sync.Mutex
}

func NewSeedHandler(repo DoctorCreator) *SeedHandler {
	return &SeedHandler{repo: repo}
}

func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/sandbox/doctors", h.handleSeed)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	cfg := DefaultSeedConfig()
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid seed config")
		}
	}
	if cfg.DoctorCount <= 0 || cfg.DoctorCount > 500 {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_count must be between 1 and 500")
	}

	// One seeding run at a time.
	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := SeedDoctors(c.Request().Context(), h.repo, cfg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}
