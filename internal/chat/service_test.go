package chat

import (
	"errors"
	"path/filepath"
	"testing"

	"palaver/internal/models"
	"palaver/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.BboltStorage) {
	t.Helper()

	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return NewService(store), store
}

func addUser(t *testing.T, store *storage.BboltStorage, id, name string) {
	t.Helper()
	err := store.UpsertUser(storage.UserRecord{
		User: models.User{ID: id, Name: name, Email: id + "@example.com"},
	})
	if err != nil {
		t.Fatalf("failed to add user %s: %v", id, err)
	}
}

func TestAccessOrCreateDirect(t *testing.T) {
	svc, store := newTestService(t)
	addUser(t, store, "alice", "Alice")
	addUser(t, store, "bob", "Bob")

	t.Run("UnknownOtherIdentity", func(t *testing.T) {
		_, err := svc.AccessOrCreateDirect("alice", "ghost")
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected NotFound, got %v", err)
		}
	})

	t.Run("SelfChatRejected", func(t *testing.T) {
		_, err := svc.AccessOrCreateDirect("alice", "alice")
		if !errors.Is(err, models.ErrValidation) {
			t.Errorf("expected Validation, got %v", err)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		first, err := svc.AccessOrCreateDirect("alice", "bob")
		if err != nil {
			t.Fatalf("first access failed: %v", err)
		}
		if len(first.Members) != 2 {
			t.Errorf("expected 2 members, got %d", len(first.Members))
		}

		second, err := svc.AccessOrCreateDirect("alice", "bob")
		if err != nil {
			t.Fatalf("second access failed: %v", err)
		}
		if first.ID != second.ID {
			t.Errorf("expected same chat id, got %s and %s", first.ID, second.ID)
		}

		// The pair is unordered: bob looking up alice finds the same chat.
		fromBob, err := svc.AccessOrCreateDirect("bob", "alice")
		if err != nil {
			t.Fatalf("access from other side failed: %v", err)
		}
		if fromBob.ID != first.ID {
			t.Errorf("pair must map to one chat, got %s and %s", fromBob.ID, first.ID)
		}
	})
}

func TestCreateGroup(t *testing.T) {
	svc, store := newTestService(t)
	addUser(t, store, "alice", "Alice")
	addUser(t, store, "bob", "Bob")
	addUser(t, store, "carol", "Carol")

	t.Run("RequiresName", func(t *testing.T) {
		_, err := svc.CreateGroup("alice", "   ", []string{"bob", "carol"})
		if !errors.Is(err, models.ErrValidation) {
			t.Errorf("expected Validation, got %v", err)
		}
	})

	t.Run("RequiresTwoOtherMembers", func(t *testing.T) {
		_, err := svc.CreateGroup("alice", "Team", []string{"bob"})
		if !errors.Is(err, models.ErrValidation) {
			t.Errorf("expected Validation for 1 member, got %v", err)
		}

		// Duplicates and the requester don't count toward the floor.
		_, err = svc.CreateGroup("alice", "Team", []string{"bob", "bob", "alice"})
		if !errors.Is(err, models.ErrValidation) {
			t.Errorf("expected Validation for deduplicated members, got %v", err)
		}
	})

	t.Run("CreatorBecomesAdmin", func(t *testing.T) {
		view, err := svc.CreateGroup("alice", "Team", []string{"bob", "carol"})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if len(view.Members) != 3 {
			t.Errorf("expected 3 members, got %d", len(view.Members))
		}
		if view.Admin == nil || view.Admin.ID != "alice" {
			t.Errorf("expected alice as admin, got %+v", view.Admin)
		}
		if view.Name != "Team" {
			t.Errorf("expected name Team, got %q", view.Name)
		}
	})
}

func TestGroupMutations(t *testing.T) {
	svc, store := newTestService(t)
	addUser(t, store, "alice", "Alice")
	addUser(t, store, "bob", "Bob")
	addUser(t, store, "carol", "Carol")
	addUser(t, store, "dave", "Dave")
	addUser(t, store, "mallory", "Mallory")

	group, err := svc.CreateGroup("alice", "Team", []string{"bob", "carol"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	direct, err := svc.AccessOrCreateDirect("alice", "bob")
	if err != nil {
		t.Fatalf("direct create failed: %v", err)
	}

	t.Run("UnknownChat", func(t *testing.T) {
		_, err := svc.RenameGroup("alice", "no-such-chat", "X")
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected NotFound, got %v", err)
		}
	})

	t.Run("NotAGroup", func(t *testing.T) {
		_, err := svc.RenameGroup("alice", direct.ID, "X")
		if !errors.Is(err, models.ErrValidation) {
			t.Errorf("expected Validation, got %v", err)
		}
	})

	t.Run("NonMemberForbiddenBeforeAdminCheck", func(t *testing.T) {
		// Mallory is not a member; membership is checked before the admin
		// rule for every mutation.
		if _, err := svc.RenameGroup("mallory", group.ID, "X"); !errors.Is(err, models.ErrForbidden) {
			t.Errorf("rename: expected Forbidden, got %v", err)
		}
		if _, err := svc.AddMember("mallory", group.ID, "dave"); !errors.Is(err, models.ErrForbidden) {
			t.Errorf("add: expected Forbidden, got %v", err)
		}
		if _, _, err := svc.RemoveMember("mallory", group.ID, "bob"); !errors.Is(err, models.ErrForbidden) {
			t.Errorf("remove: expected Forbidden, got %v", err)
		}
	})

	t.Run("NonAdminMemberForbidden", func(t *testing.T) {
		if _, err := svc.RenameGroup("bob", group.ID, "X"); !errors.Is(err, models.ErrForbidden) {
			t.Errorf("rename: expected Forbidden, got %v", err)
		}
		if _, err := svc.AddMember("bob", group.ID, "dave"); !errors.Is(err, models.ErrForbidden) {
			t.Errorf("add: expected Forbidden, got %v", err)
		}
		if _, _, err := svc.RemoveMember("bob", group.ID, "carol"); !errors.Is(err, models.ErrForbidden) {
			t.Errorf("remove other: expected Forbidden, got %v", err)
		}
	})

	t.Run("AdminRenames", func(t *testing.T) {
		view, err := svc.RenameGroup("alice", group.ID, "New Team")
		if err != nil {
			t.Fatalf("rename failed: %v", err)
		}
		if view.Name != "New Team" {
			t.Errorf("expected New Team, got %q", view.Name)
		}
	})

	t.Run("AddMember", func(t *testing.T) {
		view, err := svc.AddMember("alice", group.ID, "dave")
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if len(view.Members) != 4 {
			t.Errorf("expected 4 members, got %d", len(view.Members))
		}

		// Adding an existing member is a no-op, not an error.
		view, err = svc.AddMember("alice", group.ID, "dave")
		if err != nil {
			t.Fatalf("re-add failed: %v", err)
		}
		if len(view.Members) != 4 {
			t.Errorf("expected 4 members after no-op re-add, got %d", len(view.Members))
		}
	})

	t.Run("SelfRemovalAlwaysAllowed", func(t *testing.T) {
		view, deleted, err := svc.RemoveMember("dave", group.ID, "dave")
		if err != nil {
			t.Fatalf("self-removal failed: %v", err)
		}
		if deleted {
			t.Fatal("chat must survive with 3 members")
		}
		if len(view.Members) != 3 {
			t.Errorf("expected 3 members, got %d", len(view.Members))
		}
	})
}

func TestRemoveMember_AdminReassignmentAndCollapse(t *testing.T) {
	svc, store := newTestService(t)
	addUser(t, store, "alice", "Alice")
	addUser(t, store, "bob", "Bob")
	addUser(t, store, "carol", "Carol")

	group, err := svc.CreateGroup("alice", "Team", []string{"bob", "carol"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	t.Run("AdminLeavingReassignsPositionally", func(t *testing.T) {
		// Persisted member order is [bob, carol, alice]; admin alice leaving
		// promotes the first remaining member.
		view, deleted, err := svc.RemoveMember("alice", group.ID, "alice")
		if err != nil {
			t.Fatalf("admin self-removal failed: %v", err)
		}
		if deleted {
			t.Fatal("chat must survive with 2 members")
		}
		if view.Admin == nil || view.Admin.ID != "bob" {
			t.Errorf("expected bob promoted to admin, got %+v", view.Admin)
		}
		for _, m := range view.Members {
			if m.ID == "alice" {
				t.Error("removed identity still in member list")
			}
		}
	})

	t.Run("CollapseDeletesChat", func(t *testing.T) {
		_, deleted, err := svc.RemoveMember("bob", group.ID, "carol")
		if err != nil {
			t.Fatalf("removal failed: %v", err)
		}
		if !deleted {
			t.Fatal("expected deleted=true when fewer than 2 members remain")
		}

		// The chat is gone for every former member.
		for _, userID := range []string{"alice", "bob", "carol"} {
			chats, err := svc.ListChats(userID)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			for _, c := range chats {
				if c.ID == group.ID {
					t.Errorf("deleted chat still listed for %s", userID)
				}
			}
		}

		// Terminal: further operations report NotFound.
		if _, err := svc.RenameGroup("bob", group.ID, "X"); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected NotFound after deletion, got %v", err)
		}
	})
}

func TestListChats_OrderedByActivity(t *testing.T) {
	svc, store := newTestService(t)
	addUser(t, store, "alice", "Alice")
	addUser(t, store, "bob", "Bob")
	addUser(t, store, "carol", "Carol")

	direct, err := svc.AccessOrCreateDirect("alice", "bob")
	if err != nil {
		t.Fatalf("direct create failed: %v", err)
	}
	group, err := svc.CreateGroup("alice", "Team", []string{"bob", "carol"})
	if err != nil {
		t.Fatalf("group create failed: %v", err)
	}

	// Bump the direct chat's activity well past the group's.
	chat, err := store.GetChat(direct.ID)
	if err != nil {
		t.Fatalf("get chat failed: %v", err)
	}
	chat.UpdatedAt = group.UpdatedAt + 1000
	if err := store.UpsertChat(chat); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	chats, err := svc.ListChats("alice")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0].ID != direct.ID {
		t.Errorf("expected most recently active chat first, got %s", chats[0].ID)
	}

	// Carol is only in the group.
	carolChats, err := svc.ListChats("carol")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(carolChats) != 1 || carolChats[0].ID != group.ID {
		t.Errorf("expected only the group for carol, got %+v", carolChats)
	}
}
