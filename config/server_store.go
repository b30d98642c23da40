// Package config implements the two persistent stores spec.md §4.2 and
// §6 describe: a per-server grouped key/value file (ServerStore) and
// the daemon-wide root config (RootConfig).
package config

import (
	"fmt"
	"os"
	"os/user"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

// Server-group key names, spec.md §6.
const (
	GroupServer = "server"

	KeyAddress        = "address"
	KeyPort           = "port"
	KeySSL            = "ssl"
	KeyNick           = "nick"
	KeyUser           = "user"
	KeyName           = "name"
	KeyNickServ       = "nickserv"
	KeyNickServGhost  = "nickserv_ghost"
	KeyAutoconnect    = "autoconnect"
	KeyCommands       = "commands"
	KeyIgnores        = "ignores"

	// channel-group keys
	KeyAutojoin = "autojoin"
	KeyKey      = "key"
)

// ServerStore is a grouped, typed, file-backed key/value store for one
// server's configuration. Every mutator persists to disk immediately
// with mode 0600 (spec.md §4.2: "mode restricted to the owner"), and
// access is serialised by mu so it may be called from any goroutine,
// not only the owning Server's task (spec.md §5: "ServerConfig ...
// wrapped in their own mutex").
type ServerStore struct {
	mu   sync.Mutex
	path string
	file *ini.File
}

// LoadServerStore opens (or creates) the server config file at path and
// applies the default-filling rules of spec.md §4.2. The function is
// idempotent: re-loading an already-complete file changes nothing.
func LoadServerStore(path string) (*ServerStore, error) {
	f, err := ini.LooseLoad(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	s := &ServerStore{path: path, file: f}
	if err := s.applyDefaults(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ServerStore) applyDefaults() error {
	sec := s.file.Section(GroupServer)

	osUser := "guest"
	if u, err := user.Current(); err == nil && u.Username != "" {
		osUser = u.Username
	}

	defaults := map[string]string{
		KeyPort:          "6667",
		KeySSL:           "false",
		KeyNick:          osUser,
		KeyUser:          osUser,
		KeyName:          osUser,
		KeyNickServGhost: "false",
		KeyAutoconnect:   "false",
	}
	changed := false
	for k, v := range defaults {
		if !sec.HasKey(k) {
			sec.Key(k).SetValue(v)
			changed = true
		}
	}
	if changed {
		return s.persistLocked()
	}
	return nil
}

// persistLocked writes the file to disk with owner-only permissions.
// Callers must hold mu.
func (s *ServerStore) persistLocked() error {
	if err := s.file.SaveTo(s.path); err != nil {
		return fmt.Errorf("config: save %s: %w", s.path, err)
	}
	return os.Chmod(s.path, 0o600)
}

// Bool returns a boolean value from group/key, or def if absent/unset.
func (s *ServerStore) Bool(group, key string, def bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.file.Section(group).Key(key)
	if k.String() == "" {
		return def
	}
	v, err := k.Bool()
	if err != nil {
		return def
	}
	return v
}

// Int returns an integer value from group/key, or def if absent/unset.
func (s *ServerStore) Int(group, key string, def int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.file.Section(group).Key(key)
	if k.String() == "" {
		return def
	}
	v, err := k.Int()
	if err != nil {
		return def
	}
	return v
}

// String returns a string value from group/key, or def if absent.
func (s *ServerStore) String(group, key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.file.Section(group).Key(key)
	if k.String() == "" {
		return def
	}
	return k.String()
}

// StringList returns a comma-separated list value from group/key.
func (s *ServerStore) StringList(group, key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := s.file.Section(group).Key(key).String()
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SetBool sets a boolean value and persists immediately. Returns false
// (spec.md §7 ConfigError: "mutations return a boolean false") if the
// write to disk fails.
func (s *ServerStore) SetBool(group, key string, v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Section(group).Key(key).SetValue(fmt.Sprintf("%t", v))
	return s.persistLocked() == nil
}

// SetInt sets an integer value and persists immediately.
func (s *ServerStore) SetInt(group, key string, v int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Section(group).Key(key).SetValue(fmt.Sprintf("%d", v))
	return s.persistLocked() == nil
}

// SetString sets a string value and persists immediately.
func (s *ServerStore) SetString(group, key, v string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Section(group).Key(key).SetValue(v)
	return s.persistLocked() == nil
}

// SetStringList sets a comma-joined list value and persists immediately.
func (s *ServerStore) SetStringList(group, key string, v []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Section(group).Key(key).SetValue(strings.Join(v, ","))
	return s.persistLocked() == nil
}

// Remove deletes key from group and persists immediately.
func (s *ServerStore) Remove(group, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Section(group).DeleteKey(key)
	return s.persistLocked() == nil
}

// Exists reports whether group/key has a value set.
func (s *ServerStore) Exists(group, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Section(group).HasKey(key)
}

// Groups returns every group name in the file except DEFAULT, i.e. the
// "server" group plus one per configured channel.
func (s *ServerStore) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, sec := range s.file.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		out = append(out, sec.Name())
	}
	return out
}

// Keys returns every key name currently set within group.
func (s *ServerStore) Keys(group string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.file.Section(group)
	out := make([]string, 0, len(sec.Keys()))
	for _, k := range sec.Keys() {
		out = append(out, k.Name())
	}
	return out
}

// ChannelGroups returns the configured channel names, i.e. every group
// other than "server".
func (s *ServerStore) ChannelGroups() []string {
	groups := s.Groups()
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if g != GroupServer {
			out = append(out, g)
		}
	}
	return out
}

// RemoveGroup deletes an entire group (e.g. dropping a channel's saved
// autojoin/key when the user removes it from config).
func (s *ServerStore) RemoveGroup(group string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.DeleteSection(group)
	return s.persistLocked() == nil
}
