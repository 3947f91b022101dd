package auth_test

import (
	"errors"
	"testing"
	"time"

	"taskboard/internal/engine/auth"
)

func TestUnlockAndVerify(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g, err := auth.NewGate("open sesame", "secret", time.Hour)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	g.Now = func() time.Time { return now }

	if _, err := g.Unlock("wrong"); !errors.As(err, &auth.IncorrectPassphraseError{}) {
		t.Fatalf("expected incorrect passphrase, got %v", err)
	}
	s, err := g.Unlock("open sesame")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if !s.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", s.ExpiresAt)
	}
	if _, err := g.Verify(s.Token); err != nil {
		t.Fatalf("verify: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := g.Verify(s.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestVerifyRejectsForeignToken(t *testing.T) {
	a, _ := auth.NewGate("pw", "one", time.Hour)
	b, _ := auth.NewGate("pw", "two", time.Hour)
	s, err := a.Unlock("pw")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := b.Verify(s.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected signature failure, got %v", err)
	}
	if _, err := a.Verify("not-a-token"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected parse failure, got %v", err)
	}
}

func TestDisabledGate(t *testing.T) {
	g, err := auth.NewGate("", "", 0)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	if g.Enabled() {
		t.Fatalf("empty passphrase should disable the gate")
	}
	if len(g.Secret) != 32 {
		t.Fatalf("expected generated secret")
	}
	if _, err := g.Unlock(""); err == nil {
		t.Fatalf("unlock on disabled gate should fail")
	}
}
