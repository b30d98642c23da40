package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServerStoreFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srv")
	store, err := LoadServerStore(path)
	if err != nil {
		t.Fatalf("LoadServerStore: %v", err)
	}

	if got := store.Int(GroupServer, KeyPort, -1); got != 6667 {
		t.Errorf("default port = %d, want 6667", got)
	}
	if store.Bool(GroupServer, KeySSL, true) {
		t.Error("default ssl should be false")
	}
	if store.String(GroupServer, KeyNick, "") == "" {
		t.Error("default nick should be filled from the OS user")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestLoadServerStoreIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srv")
	if _, err := LoadServerStore(path); err != nil {
		t.Fatalf("first load: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if _, err := LoadServerStore(path); err != nil {
		t.Fatalf("second load: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("reloading an already-defaulted file changed its contents:\n%s\nvs\n%s", first, second)
	}
}

func TestChannelKeyNeverOverwrittenExceptByExplicitSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srv")
	store, err := LoadServerStore(path)
	if err != nil {
		t.Fatalf("LoadServerStore: %v", err)
	}

	store.SetChannelKey("#test", "secret")
	if got := store.String("#test", KeyKey, ""); got != "secret" {
		t.Fatalf("got key %q, want secret", got)
	}

	// An empty key (the "never infer from server traffic" case) must not
	// clear a previously-set user-provided key.
	store.SetChannelKey("#test", "")
	if got := store.String("#test", KeyKey, ""); got != "secret" {
		t.Errorf("empty SetChannelKey call erased the existing key: got %q, want secret", got)
	}
}

func TestChannelsReflectsAutojoinAndKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srv")
	store, err := LoadServerStore(path)
	if err != nil {
		t.Fatalf("LoadServerStore: %v", err)
	}
	store.SetChannelAutojoin("#a", true)
	store.SetChannelKey("#b", "k")

	channels := store.Channels()
	byName := make(map[string]ChannelParams)
	for _, c := range channels {
		byName[c.Name] = c
	}

	if !byName["#a"].Autojoin {
		t.Error("#a should have autojoin=true")
	}
	if byName["#b"].Key != "k" {
		t.Errorf("#b key = %q, want k", byName["#b"].Key)
	}
	if _, ok := byName[GroupServer]; ok {
		t.Error("the server group itself must not be reported as a channel")
	}
}

func TestStringListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srv")
	store, err := LoadServerStore(path)
	if err != nil {
		t.Fatalf("LoadServerStore: %v", err)
	}

	store.SetStringList(GroupServer, KeyIgnores, []string{"*!*@spam.example", "troll!*@*"})
	got := store.StringList(GroupServer, KeyIgnores)
	want := []string{"*!*@spam.example", "troll!*@*"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
