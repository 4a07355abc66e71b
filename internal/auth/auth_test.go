package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"palaver/internal/models"
	"palaver/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc, err := NewService(ctx, Config{Secret: "test-secret"}, store)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty secret")
	}

	cfg = Config{Secret: "s"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.TokenExpiry != DefaultTokenExpiry {
		t.Errorf("expected default expiry, got %v", cfg.TokenExpiry)
	}
}

func TestRegister(t *testing.T) {
	svc := newTestService(t)

	user, token, err := svc.Register("Alice", "  Alice@Example.COM ", "secret123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.ID == "" || token == "" {
		t.Fatalf("expected id and token, got %+v / %q", user, token)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}

	t.Run("DuplicateEmail", func(t *testing.T) {
		_, _, err := svc.Register("Other Alice", "alice@example.com", "different")
		if !errors.Is(err, ErrUserExists) {
			t.Errorf("expected ErrUserExists, got %v", err)
		}
	})

	t.Run("TokenResolvesToUser", func(t *testing.T) {
		got, err := svc.Verify(token)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if got.ID != user.ID {
			t.Errorf("token resolved to %s, want %s", got.ID, user.ID)
		}
	})
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)

	registered, _, err := svc.Register("Bob", "bob@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	t.Run("ValidCredentials", func(t *testing.T) {
		user, token, err := svc.Login("BOB@example.com", "hunter2")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if user.ID != registered.ID || token == "" {
			t.Errorf("unexpected result: %+v / %q", user, token)
		}
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, _, err := svc.Login("bob@example.com", "wrong")
		if !errors.Is(err, models.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		_, _, err := svc.Login("nobody@example.com", "hunter2")
		if !errors.Is(err, models.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestVerify(t *testing.T) {
	svc := newTestService(t)

	_, token, err := svc.Register("Carol", "carol@example.com", "pass")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	t.Run("Garbage", func(t *testing.T) {
		_, err := svc.Verify("not-a-token")
		if !errors.Is(err, models.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := newTestService(t)
		other.Secret = "different-secret"
		_, err := other.Verify(token)
		if !errors.Is(err, models.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("UnknownIdentity", func(t *testing.T) {
		other := newTestService(t)
		_, err := other.Verify(token)
		if !errors.Is(err, models.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
		defer func() { svc.now = time.Now }()

		_, err := svc.Verify(token)
		if !errors.Is(err, models.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized for expired token, got %v", err)
		}
	})
}
