package state

import "testing"

func TestAddUserRetainsInRegistry(t *testing.T) {
	reg := NewRegistry()
	ch := NewChannel("#test", reg)

	ch.AddUser("alice")

	if reg.Len() != 1 {
		t.Fatalf("expected registry to hold 1 user, got %d", reg.Len())
	}
	if _, ok := ch.GetUser("alice"); !ok {
		t.Error("expected alice in channel roster")
	}
}

func TestRemoveUserReleasesFromRegistry(t *testing.T) {
	reg := NewRegistry()
	ch := NewChannel("#test", reg)
	ch.AddUser("alice")

	ch.RemoveUser("alice")

	if _, ok := ch.GetUser("alice"); ok {
		t.Error("alice should no longer be in the channel")
	}
	if reg.Len() != 0 {
		t.Errorf("expected registry to have released alice, got %d entries", reg.Len())
	}
}

func TestRenameUserPreservesPrefixMask(t *testing.T) {
	reg := NewRegistry()
	ch := NewChannel("#test", reg)
	ch.AddUser("alice")
	ch.SetPrefixBit("alice", 0, true)

	ch.RenameUser("alice", "alicia")

	if _, ok := ch.GetUser("alice"); ok {
		t.Error("old nick should be gone")
	}
	if !ch.PrefixBit("alicia", 0) {
		t.Error("renamed user should keep its prefix bit")
	}
}

func TestRenameUserFailsSilentlyIfTargetExists(t *testing.T) {
	reg := NewRegistry()
	ch := NewChannel("#test", reg)
	ch.AddUser("alice")
	ch.AddUser("bob")
	ch.SetPrefixBit("alice", 0, true)

	ch.RenameUser("alice", "bob")

	if _, ok := ch.GetUser("alice"); !ok {
		t.Error("rename onto an existing nick must be a silent no-op")
	}
	if ch.PrefixBit("bob", 0) {
		t.Error("bob's own prefix mask should be untouched by the failed rename")
	}
}

func TestRemoveAllUsersReleasesEveryone(t *testing.T) {
	reg := NewRegistry()
	ch := NewChannel("#test", reg)
	ch.AddUser("alice")
	ch.AddUser("bob")

	ch.RemoveAllUsers()

	if ch.UserCount() != 0 {
		t.Errorf("expected 0 users after RemoveAllUsers, got %d", ch.UserCount())
	}
	if reg.Len() != 0 {
		t.Errorf("expected registry emptied, got %d entries", reg.Len())
	}
}

func TestHighestPrefixIndex(t *testing.T) {
	reg := NewRegistry()
	ch := NewChannel("#test", reg)
	ch.AddUser("alice")

	if idx := ch.HighestPrefixIndex("alice"); idx != -1 {
		t.Errorf("expected -1 with no bits set, got %d", idx)
	}

	ch.SetPrefixBit("alice", 1, true)
	ch.SetPrefixBit("alice", 0, true)
	if idx := ch.HighestPrefixIndex("alice"); idx != 0 {
		t.Errorf("expected lowest set bit 0, got %d", idx)
	}
}
