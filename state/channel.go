package state

import (
	"github.com/bits-and-blooms/bitset"
)

// Channel is per-channel state: the joined roster, topic, and each
// user's membership-prefix bitmask (bit i set means the user holds the
// i-th prefix mode/character pair from the server's PREFIX ISUPPORT
// token). Channel.key (spec.md §3) is not stored here; it lives in
// config.ServerStore, persisted independently of runtime state.
type Channel struct {
	Name   string
	Joined bool
	Topic  string

	registry *Registry
	users    map[string]*User
	prefixes map[string]*bitset.BitSet
}

// NewChannel constructs an empty Channel backed by reg, the server's
// shared user registry. Every user added to this channel is Retain'd
// in reg and Release'd when removed, maintaining spec.md §3's
// invariant that "every Channel.users value is also present in
// Server.users".
func NewChannel(name string, reg *Registry) *Channel {
	return &Channel{
		Name:     name,
		registry: reg,
		users:    make(map[string]*User),
		prefixes: make(map[string]*bitset.BitSet),
	}
}

// AddUser inserts nick into the channel roster, retaining it in the
// owning registry. A fresh, all-clear prefix mask is created if one
// did not already exist for this nick.
func (c *Channel) AddUser(nick string) *User {
	key := FoldNick(nick)
	u := c.registry.Retain(nick)
	c.users[key] = u
	if _, ok := c.prefixes[key]; !ok {
		c.prefixes[key] = bitset.New(8)
	}
	return u
}

// GetUser returns the channel's handle for nick, if present.
func (c *Channel) GetUser(nick string) (*User, bool) {
	u, ok := c.users[FoldNick(nick)]
	return u, ok
}

// RemoveUser removes nick from the roster and releases it from the
// owning registry. It is a no-op if nick is not present.
func (c *Channel) RemoveUser(nick string) {
	key := FoldNick(nick)
	if _, ok := c.users[key]; !ok {
		return
	}
	delete(c.users, key)
	delete(c.prefixes, key)
	c.registry.Release(nick)
}

// RemoveAllUsers clears the roster, releasing every user from the
// registry.
func (c *Channel) RemoveAllUsers() {
	for key := range c.users {
		c.registry.Release(c.users[key].Nick)
	}
	c.users = make(map[string]*User)
	c.prefixes = make(map[string]*bitset.BitSet)
}

// RenameUser moves a user from oldNick to newNick, preserving the
// prefix mask. Per spec.md §4.3, this fails silently if newNick
// already exists in the channel, and is a no-op if oldNick is absent.
func (c *Channel) RenameUser(oldNick, newNick string) {
	oldKey := FoldNick(oldNick)
	newKey := FoldNick(newNick)

	if _, exists := c.users[newKey]; exists {
		return
	}
	u, ok := c.users[oldKey]
	if !ok {
		return
	}

	mask := c.prefixes[oldKey]
	delete(c.users, oldKey)
	delete(c.prefixes, oldKey)

	renamed := *u
	renamed.Nick = newNick
	c.users[newKey] = &renamed
	c.prefixes[newKey] = mask
}

// UserCount reports the number of users currently in the channel.
func (c *Channel) UserCount() int {
	return len(c.users)
}

// Nicks returns a snapshot of nicks currently in the channel.
func (c *Channel) Nicks() []string {
	out := make([]string, 0, len(c.users))
	for _, u := range c.users {
		out = append(out, u.Nick)
	}
	return out
}

// PrefixBit reports whether bit pos of nick's prefix mask is set.
func (c *Channel) PrefixBit(nick string, pos uint) bool {
	mask, ok := c.prefixes[FoldNick(nick)]
	if !ok {
		return false
	}
	return mask.Test(pos)
}

// SetPrefixBit sets or clears bit pos of nick's prefix mask. It is a
// no-op if nick is not in the channel.
func (c *Channel) SetPrefixBit(nick string, pos uint, set bool) {
	mask, ok := c.prefixes[FoldNick(nick)]
	if !ok {
		return
	}
	if set {
		mask.Set(pos)
	} else {
		mask.Clear(pos)
	}
}

// SetPrefixMask replaces nick's entire prefix mask, used by the NAMES
// reply parser (spec.md §4.5's RPL_NAMREPLY handling) which computes
// the full mask from a block of leading prefix characters in one pass.
func (c *Channel) SetPrefixMask(nick string, mask *bitset.BitSet) {
	key := FoldNick(nick)
	if _, ok := c.users[key]; !ok {
		return
	}
	c.prefixes[key] = mask
}

// HighestPrefixIndex returns the lowest set bit index in nick's prefix
// mask (bit 0 is the highest-ranked prefix, e.g. operator), or -1 if
// no prefix bit is set.
func (c *Channel) HighestPrefixIndex(nick string) int {
	mask, ok := c.prefixes[FoldNick(nick)]
	if !ok {
		return -1
	}
	if i, has := mask.NextSet(0); has {
		return int(i)
	}
	return -1
}
