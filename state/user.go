// Package state holds the per-server, in-memory IRC state: users and
// channels. Values are treated as immutable snapshots; mutation always
// happens by inserting a replacement handle into a Registry, never by
// writing through a pointer shared with callers.
package state

import "strings"

// User is a value snapshot of one nickname known to a server: its
// nick/user/host triple and away status. Two Users are never the same
// *User when either's nick, user, host, or away state differs —
// renaming or updating a user replaces its handle in the owning
// Registry rather than mutating the existing one in place.
type User struct {
	Nick        string
	User        string
	Host        string
	Away        bool
	AwayMessage string
}

// From renders the canonical "nick!user@host" form, falling back to the
// bare nick when user or host are not yet known (e.g. a user seen only
// as a NAMES entry, never as a message prefix).
func (u *User) From() string {
	if u == nil {
		return ""
	}
	if u.User == "" || u.Host == "" {
		return u.Nick
	}
	var b strings.Builder
	b.WriteString(u.Nick)
	b.WriteByte('!')
	b.WriteString(u.User)
	b.WriteByte('@')
	b.WriteString(u.Host)
	return b.String()
}

// FoldNick returns the case-folded form of a nickname, used as the map
// key for nick comparisons everywhere in this package. RFC 1459 folds
// "{|}" onto "[\]" in addition to ASCII case; this implementation uses
// plain ASCII case folding, which the glossary notes is sufficient
// absent a specific legacy-server requirement.
func FoldNick(nick string) string {
	return strings.ToLower(nick)
}
