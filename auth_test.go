package main

import (
	"errors"
	"testing"
	"time"
)

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	a, err := NewAuth(openTestDB(t), "")
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return a
}

func TestAuthSecretPersists(t *testing.T) {
	db := openTestDB(t)
	a1, err := NewAuth(db, "")
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	a2, err := NewAuth(db, "")
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	if string(a1.jwtSecret) != string(a2.jwtSecret) || len(a1.jwtSecret) != 32 {
		t.Error("secret should be generated once and reused")
	}

	fixed, _ := NewAuth(db, "configured")
	if string(fixed.jwtSecret) != "configured" {
		t.Error("explicit secret ignored")
	}
}

func TestAuthRegisterLogin(t *testing.T) {
	a := newTestAuth(t)

	id, token, err := a.Register("  ana ", "secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	gotID, user, err := a.ValidateToken(token)
	if err != nil || gotID != id || user != "ana" {
		t.Errorf("ValidateToken = %d, %q, %v", gotID, user, err)
	}

	if _, _, err := a.Register("ANA", "other"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}

	loginID, token, err := a.Login("Ana", "secret", "1.2.3.4")
	if err != nil || loginID != id {
		t.Fatalf("Login = %d, %v", loginID, err)
	}
	if _, _, err := a.ValidateToken(token); err != nil {
		t.Errorf("login token invalid: %v", err)
	}

	if _, _, err := a.Login("ana", "wrong", "1.2.3.4"); !errors.Is(err, ErrBadLogin) {
		t.Errorf("expected ErrBadLogin, got %v", err)
	}
	if _, _, err := a.Login("nobody", "secret", "1.2.3.4"); !errors.Is(err, ErrBadLogin) {
		t.Errorf("expected ErrBadLogin for unknown user, got %v", err)
	}
}

func TestAuthRegisterValidation(t *testing.T) {
	a := newTestAuth(t)
	if _, _, err := a.Register("a", "secret"); !errors.Is(err, ErrBadUsername) {
		t.Errorf("short name: %v", err)
	}
	if _, _, err := a.Register("abcdefghijklmnopq", "secret"); !errors.Is(err, ErrBadUsername) {
		t.Errorf("long name: %v", err)
	}
	if _, _, err := a.Register("ana", "abc"); !errors.Is(err, ErrBadPassword) {
		t.Errorf("short password: %v", err)
	}
}

func TestAuthRateLimit(t *testing.T) {
	a := newTestAuth(t)
	now := time.Unix(1_700_000_000, 0)
	a.now = func() time.Time { return now }

	for i := 0; i < maxLoginAttempts; i++ {
		if _, _, err := a.Login("ghost", "x", "9.9.9.9"); !errors.Is(err, ErrBadLogin) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, _, err := a.Login("ghost", "x", "9.9.9.9"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if _, _, err := a.Login("ghost", "x", "8.8.8.8"); !errors.Is(err, ErrBadLogin) {
		t.Errorf("other IPs should not be limited: %v", err)
	}

	now = now.Add(loginRateWindow + time.Second)
	if _, _, err := a.Login("ghost", "x", "9.9.9.9"); !errors.Is(err, ErrBadLogin) {
		t.Errorf("limit should reset after the window: %v", err)
	}
}

func TestAuthTokenExpiry(t *testing.T) {
	a := newTestAuth(t)
	now := time.Now()
	a.now = func() time.Time { return now }

	token, err := a.generateToken(1, "ana")
	if err != nil {
		t.Fatalf("generateToken: %v", err)
	}
	now = now.Add(jwtExpiry + time.Minute)
	if _, _, err := a.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected expired token to fail, got %v", err)
	}
	if _, _, err := a.ValidateToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for garbage, got %v", err)
	}

	other, _ := NewAuth(a.db, "different")
	now = time.Now()
	token, _ = a.generateToken(1, "ana")
	if _, _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token signed with another secret accepted: %v", err)
	}
}
