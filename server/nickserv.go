package server

import (
	"time"

	"github.com/sushinet/sushid/irc"
	"github.com/sushinet/sushid/state"
)

// handlePostLogin implements spec.md §4.4.2's post-login sequence,
// triggered once by RPL_ENDOFMOTD (376) or ERR_NOMOTD (422): identify
// with NickServ if configured, rejoin channels after a short delay,
// replay configured server commands, restore AWAY, and start the
// periodic WHO ticker.
func (s *Server) handlePostLogin() {
	s.mu.Lock()
	s.loggedIn = true
	wasAway, awayMsg := s.away, s.awayMsg
	s.mu.Unlock()

	s.runNickServIdentify()

	for _, cmd := range s.store.Params().Commands {
		_, _ = s.conn.Send(cmd)
	}

	time.AfterFunc(3*time.Second, func() {
		s.enqueue(s.rejoinChannels)
	})

	if wasAway {
		_, _ = s.conn.Send(mustMarshal(irc.NewMessage(irc.CmdAway, awayMsg)))
	}

	s.startWhoTicker()
}

// rejoinChannels sends JOIN for every channel whose autojoin is
// configured, or that we were tracking as joined before this connect
// (retained across a reconnect because it had autojoin or a key set —
// see handlePart/handleKick), per spec.md §4.4.2's "schedule 3-second
// delayed JOIN for every channel whose autojoin or joined is true".
func (s *Server) rejoinChannels() {
	keys := make(map[string]string)
	sent := make(map[string]bool)

	for _, c := range s.store.Channels() {
		if c.Key != "" {
			keys[state.FoldNick(c.Name)] = c.Key
		}
		if c.Autojoin {
			s.sendJoin(c.Name, c.Key)
			sent[state.FoldNick(c.Name)] = true
		}
	}

	s.eachChannel(func(ch *state.Channel) {
		key := state.FoldNick(ch.Name)
		if sent[key] {
			return
		}
		sent[key] = true
		s.sendJoin(ch.Name, keys[key])
	})
}

func (s *Server) sendJoin(channel, key string) {
	if key != "" {
		_, _ = s.conn.Send(mustMarshal(irc.JoinWithKey(channel, key)))
		return
	}
	_, _ = s.conn.Send(mustMarshal(irc.Join(channel)))
}

// runNickServIdentify implements spec.md §4.4.6: ghost the configured
// nick if it's currently taken by someone else and nickserv_ghost is
// set, then identify.
func (s *Server) runNickServIdentify() {
	params := s.store.Params()
	if params.NickServ == "" {
		return
	}

	s.mu.Lock()
	nick := s.selfNick
	s.mu.Unlock()

	if nick != s.configuredNick && params.NickServGhost {
		_, _ = s.conn.Send(mustMarshal(irc.Msg("NickServ", "GHOST "+s.configuredNick+" "+params.NickServ)))
		_, _ = s.conn.Send(mustMarshal(irc.Nick(s.configuredNick)))
		s.mu.Lock()
		s.selfNick = s.configuredNick
		s.mu.Unlock()
	}

	_, _ = s.conn.Send(mustMarshal(irc.Msg("NickServ", "IDENTIFY "+params.NickServ)))
}
