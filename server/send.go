package server

import (
	"strings"
	"unicode/utf8"

	"github.com/sushinet/sushid/irc"
	"github.com/sushinet/sushid/state"
)

// lineBudget computes the usable byte budget for one PRIVMSG/NOTICE
// piece, per spec.md §4.4.4: the 512-byte wire limit minus the worst
// case framing overhead of ":nick!09chars@63chars <cmd> <target> :"
// and the trailing CRLF.
func (s *Server) lineBudget(cmd irc.Command, target string) int {
	s.mu.Lock()
	nick := s.selfNick
	s.mu.Unlock()
	framing := len(":" + nick + "!09chars@63chars " + string(cmd) + " " + target + " :")
	budget := 512 - framing - 2
	if budget < 1 {
		budget = 1
	}
	return budget
}

// splitUTF8 splits text into pieces no longer than budget bytes,
// cutting only at UTF-8 character boundaries (spec.md P4).
func splitUTF8(text string, budget int) []string {
	if budget <= 0 || text == "" {
		return nil
	}
	var pieces []string
	for len(text) > budget {
		cut := budget
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			// The leading rune itself is wider than budget: take it whole
			// rather than slice into its byte sequence.
			_, width := utf8.DecodeRuneInString(text)
			cut = width
		}
		pieces = append(pieces, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}

// sendText implements spec.md §4.4.4's outbound text path: split on
// embedded newlines, then on the 512-byte wire budget, sending the
// first piece via send_or_queue and every subsequent piece via queue
// so the burst throttle in transport.Conn applies once a split has
// begun.
func (s *Server) sendText(cmd irc.Command, target, text string, build func(piece string) *irc.Message) {
	budget := s.lineBudget(cmd, target)
	first := true
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, piece := range splitUTF8(line, budget) {
			wire := mustMarshal(build(piece))
			if first {
				_ = s.conn.SendOrQueue(wire)
				first = false
				continue
			}
			s.conn.Queue(wire)
		}
	}
}

// Message sends a PRIVMSG to target, splitting per spec.md §4.4.4, and
// writes/emits one message event per resulting line.
func (s *Server) Message(target, text string) {
	s.enqueue(func() {
		s.sendText(irc.CmdPrivmsg, target, text, func(piece string) *irc.Message {
			return irc.Msg(target, piece)
		})
		s.logAndEmitOutbound("message", target, text)
	})
}

// Action sends a CTCP ACTION to target.
func (s *Server) Action(target, text string) {
	s.enqueue(func() {
		s.sendText(irc.CmdPrivmsg, target, text, func(piece string) *irc.Message {
			return irc.Describe(target, piece)
		})
		s.logAndEmitOutbound("action", target, text)
	})
}

// Notice sends a NOTICE to target.
func (s *Server) Notice(target, text string) {
	s.enqueue(func() {
		s.sendText(irc.CmdNotice, target, text, func(piece string) *irc.Message {
			return irc.Notice(target, piece)
		})
		s.logAndEmitOutbound("notice", target, text)
	})
}

// Ctcp sends a raw CTCP query to target.
func (s *Server) Ctcp(target, command, text string) {
	s.enqueue(func() {
		_, _ = s.conn.Send(mustMarshal(irc.CTCP(target, command, text)))
	})
}

func (s *Server) logAndEmitOutbound(event, target, text string) {
	s.mu.Lock()
	nick := s.selfNick
	s.mu.Unlock()
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		_ = s.chatlog.Write(target, nick+" "+line)
		s.emit(event, map[string]any{"source": nick, "target": target, "text": line})
	}
}

// Join sends JOIN for channel, with key if non-empty.
func (s *Server) Join(channel, key string) {
	s.enqueue(func() {
		if key != "" {
			_, _ = s.conn.Send(mustMarshal(irc.JoinWithKey(channel, key)))
			_ = s.store.SetChannelKey(channel, key)
		} else {
			_, _ = s.conn.Send(mustMarshal(irc.Join(channel)))
		}
	})
}

// Part sends PART for channel with an optional reason.
func (s *Server) Part(channel, message string) {
	s.enqueue(func() {
		if message != "" {
			_, _ = s.conn.Send(mustMarshal(irc.PartWithReason(channel, message)))
		} else {
			_, _ = s.conn.Send(mustMarshal(irc.Part(channel)))
		}
	})
}

// Kick sends KICK for who from channel with an optional reason.
func (s *Server) Kick(channel, who, message string) {
	s.enqueue(func() {
		if message != "" {
			_, _ = s.conn.Send(mustMarshal(irc.KickWithReason(channel, who, message)))
		} else {
			_, _ = s.conn.Send(mustMarshal(irc.Kick(channel, who)))
		}
	})
}

// Invite sends INVITE for who to channel.
func (s *Server) Invite(channel, who string) {
	s.enqueue(func() {
		_, _ = s.conn.Send(mustMarshal(irc.Invite(who, channel)))
	})
}

// Mode sends a raw MODE command; mode may carry a modestring plus any
// number of space-separated parameters (e.g. "+o alice" or "+b *!*@host").
func (s *Server) Mode(target, mode string) {
	s.enqueue(func() {
		if mode == "" {
			_, _ = s.conn.Send(mustMarshal(irc.ModeQuery(target)))
			return
		}
		args := append([]string{target}, strings.Fields(mode)...)
		_, _ = s.conn.Send(mustMarshal(irc.NewMessage(irc.CmdMode, args...)))
	})
}

// Names requests a NAMES reply for channel.
func (s *Server) Names(channel string) {
	s.enqueue(func() {
		_, _ = s.conn.Send(mustMarshal(irc.NewMessage(irc.CmdNames, channel)))
	})
}

// Topic sets or queries a channel's topic.
func (s *Server) Topic(channel, topic string) {
	s.enqueue(func() {
		if topic == "" {
			_, _ = s.conn.Send(mustMarshal(irc.NewMessage(irc.CmdTopic, channel)))
			return
		}
		_, _ = s.conn.Send(mustMarshal(irc.NewMessage(irc.CmdTopic, channel, topic)))
	})
}

// List requests the server's channel list, optionally scoped to one channel.
func (s *Server) List(channel string) {
	s.enqueue(func() {
		if channel == "" {
			_, _ = s.conn.Send(mustMarshal(irc.NewMessage(irc.CmdList)))
			return
		}
		_, _ = s.conn.Send(mustMarshal(irc.NewMessage(irc.CmdList, channel)))
	})
}

// SetNick requests a nick change.
func (s *Server) SetNick(nick string) {
	s.enqueue(func() {
		_, _ = s.conn.Send(mustMarshal(irc.Nick(nick)))
	})
}

// Away sets or clears (if msg is empty) the away status.
func (s *Server) Away(msg string) {
	s.enqueue(func() {
		s.mu.Lock()
		s.away = msg != ""
		s.awayMsg = msg
		s.mu.Unlock()
		if msg == "" {
			_, _ = s.conn.Send(mustMarshal(irc.NewMessage(irc.CmdAway)))
			return
		}
		_, _ = s.conn.Send(mustMarshal(irc.NewMessage(irc.CmdAway, msg)))
	})
}

// Whois requests WHOIS information for mask.
func (s *Server) Whois(mask string) {
	s.enqueue(func() {
		_, _ = s.conn.Send(mustMarshal(irc.NewMessage(irc.CmdWhoIs, mask)))
	})
}

// ChannelTopic returns the last known topic for channel.
func (s *Server) ChannelTopic(channel string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[state.FoldNick(channel)]; ok {
		return ch.Topic
	}
	return ""
}

// UserAway reports whether nick is currently marked away.
func (s *Server) UserAway(nick string) bool {
	u, ok := s.registry.Get(nick)
	if !ok {
		return false
	}
	return u.Away
}
