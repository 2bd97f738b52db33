package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestSessionFromContext(t *testing.T) {
	if _, ok := SessionFromContext(context.Background()); ok {
		t.Error("expected no session on bare context")
	}

	s := Session{UserID: uuid.New(), Email: "a@b.c"}
	got, ok := SessionFromContext(WithSession(context.Background(), s))
	if !ok {
		t.Fatal("expected session")
	}
	if got != s {
		t.Errorf("expected %+v, got %+v", s, got)
	}
}

func TestSessionFromContext_ZeroSession(t *testing.T) {
	if _, ok := SessionFromContext(WithSession(context.Background(), Session{})); ok {
		t.Error("expected zero session to be treated as missing")
	}
}

func TestRequireSession(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := RequireSession()(func(c echo.Context) error { return nil })(c)
	expectStatus(t, err, http.StatusUnauthorized)

	req = req.WithContext(WithSession(req.Context(), Session{UserID: uuid.New()}))
	c = e.NewContext(req, httptest.NewRecorder())
	if err := RequireSession()(func(c echo.Context) error { return nil })(c); err != nil {
		t.Errorf("expected pass with session, got %v", err)
	}
}

func TestIssueToken_RoundTrip(t *testing.T) {
	uid := uuid.New()
	token, err := IssueToken(testSigningKey, "", uid, "ada@example.com", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, err := runMiddleware(t, JWTMiddleware(JWTConfig{Secret: testSigningKey}), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.UserID != uid || sess.Email != "ada@example.com" {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestIssueToken_RequiresSecret(t *testing.T) {
	if _, err := IssueToken(nil, "", uuid.New(), "", time.Hour); err == nil {
		t.Error("expected error without secret")
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/metrics") {
		t.Error("expected /metrics to be public")
	}
	if !IsPublicPath("/health") {
		t.Error("expected /health to be public")
	}
	if IsPublicPath("/api/v1/appointments") {
		t.Error("expected appointments to require auth")
	}
}
