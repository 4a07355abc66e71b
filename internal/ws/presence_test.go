package ws

import "testing"

func TestPresenceTracker(t *testing.T) {
	t.Run("FirstSessionBecomesOnline", func(t *testing.T) {
		p := NewPresenceTracker()

		if !p.OpenSession("u1", "s1") {
			t.Error("expected becameOnline for first session")
		}
		if p.SessionCount("u1") != 1 {
			t.Errorf("expected 1 session, got %d", p.SessionCount("u1"))
		}
	})

	t.Run("SecondSessionIsNotATransition", func(t *testing.T) {
		p := NewPresenceTracker()

		p.OpenSession("u1", "s1")
		if p.OpenSession("u1", "s2") {
			t.Error("second session must not report becameOnline")
		}
		if p.SessionCount("u1") != 2 {
			t.Errorf("expected 2 sessions, got %d", p.SessionCount("u1"))
		}
	})

	t.Run("OfflineOnlyWhenLastSessionCloses", func(t *testing.T) {
		p := NewPresenceTracker()

		p.OpenSession("u1", "s1")
		p.OpenSession("u1", "s2")

		if p.CloseSession("u1", "s1") {
			t.Error("closing one of two sessions must not report becameOffline")
		}
		if !p.CloseSession("u1", "s2") {
			t.Error("closing the last session must report becameOffline")
		}
		if p.SessionCount("u1") != 0 {
			t.Errorf("expected 0 sessions, got %d", p.SessionCount("u1"))
		}
	})

	t.Run("CloseUnknownIdentityIsOffline", func(t *testing.T) {
		p := NewPresenceTracker()

		if !p.CloseSession("ghost", "s1") {
			t.Error("closing a session for an unknown identity must report becameOffline")
		}
	})

	t.Run("IdentitiesAreIndependent", func(t *testing.T) {
		p := NewPresenceTracker()

		p.OpenSession("u1", "s1")
		if !p.OpenSession("u2", "s2") {
			t.Error("expected becameOnline for u2's first session")
		}
		if p.CloseSession("u1", "s1") != true {
			t.Error("u1 should be offline after its only session closes")
		}
		if p.SessionCount("u2") != 1 {
			t.Error("u2 sessions must be unaffected")
		}
	})
}
