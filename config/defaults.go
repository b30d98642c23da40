package config

// ServerParams is a typed snapshot of the "server" group, read once at
// Server construction time and whenever a reload is requested.
type ServerParams struct {
	Address       string
	Port          int
	SSL           bool
	Nick          string
	User          string
	Name          string
	NickServ      string
	NickServGhost bool
	Autoconnect   bool
	Commands      []string
	Ignores       []string
}

// Params reads the "server" group into a ServerParams snapshot.
func (s *ServerStore) Params() ServerParams {
	return ServerParams{
		Address:       s.String(GroupServer, KeyAddress, ""),
		Port:          s.Int(GroupServer, KeyPort, 6667),
		SSL:           s.Bool(GroupServer, KeySSL, false),
		Nick:          s.String(GroupServer, KeyNick, "guest"),
		User:          s.String(GroupServer, KeyUser, "guest"),
		Name:          s.String(GroupServer, KeyName, "guest"),
		NickServ:      s.String(GroupServer, KeyNickServ, ""),
		NickServGhost: s.Bool(GroupServer, KeyNickServGhost, false),
		Autoconnect:   s.Bool(GroupServer, KeyAutoconnect, false),
		Commands:      s.StringList(GroupServer, KeyCommands),
		Ignores:       s.StringList(GroupServer, KeyIgnores),
	}
}

// ChannelParams is a typed snapshot of one channel group.
type ChannelParams struct {
	Name     string
	Autojoin bool
	Key      string
}

// Channels reads every configured channel group.
func (s *ServerStore) Channels() []ChannelParams {
	groups := s.ChannelGroups()
	out := make([]ChannelParams, 0, len(groups))
	for _, g := range groups {
		out = append(out, ChannelParams{
			Name:     g,
			Autojoin: s.Bool(g, KeyAutojoin, false),
			Key:      s.String(g, KeyKey, ""),
		})
	}
	return out
}

// SetChannelKey persists key for channel, but only when key is
// non-empty: spec.md §9's resolved open question forbids overwriting a
// user-provided key with one inferred from server traffic, so callers
// must never call this from dispatch code, only from an explicit
// user-issued join(server, channel, key) command.
func (s *ServerStore) SetChannelKey(channel, key string) bool {
	if key == "" {
		return true
	}
	return s.SetString(channel, KeyKey, key)
}

// SetChannelAutojoin persists the autojoin flag for channel.
func (s *ServerStore) SetChannelAutojoin(channel string, autojoin bool) bool {
	return s.SetBool(channel, KeyAutojoin, autojoin)
}
