// Package server implements the per-server state machine (spec.md
// §4.4): connection lifecycle, reconnect policy, the outbound send
// path, periodic WHO, NickServ handling, and ParserDispatch (dispatch.go).
//
// Each Server owns a dedicated goroutine ("task" in spec.md §5) that
// serializes all mutation of its channels/users/logs; external callers
// enqueue closures onto that task rather than touching state directly,
// and read a mutex-guarded snapshot for anything they need synchronously.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sushinet/sushid/chatlog"
	"github.com/sushinet/sushid/config"
	"github.com/sushinet/sushid/irc"
	"github.com/sushinet/sushid/state"
	"github.com/sushinet/sushid/transport"
)

// Status is the connection state machine of spec.md §4.4.2.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Event is an abstract notification emitted toward the IPC-facing event
// bus (spec.md §6). Every event carries Time (seconds since epoch) and
// the originating Server's Name; Fields holds the remaining
// event-specific payload.
type Event struct {
	Name   string
	Server string
	Time   int64
	Fields map[string]any
}

// EventSink receives events emitted by a Server. instance.EventBus
// implements this.
type EventSink interface {
	Emit(Event)
}

// DCCSink receives forwarded DCC sub-commands parsed out of CTCP
// bodies (spec.md §1: "the core merely parses CTCP messages and
// forwards file-transfer sub-commands to an opaque transfer manager").
// instance.TransferManager implements this.
type DCCSink interface {
	HandleDCC(server, nick, verb, rest string)
}

// Clock abstracts time.Now so tests can control it; nil means time.Now.
type Clock func() time.Time

// Server is the heart of the daemon (spec.md §2: 45% of the core). It
// owns one transport.Conn, one config.ServerStore, a state.Registry, a
// set of state.Channel values, and a chatlog.Store.
type Server struct {
	Name string

	store   *config.ServerStore
	chatlog *chatlog.Store
	log     *logrus.Entry
	sink    EventSink
	dccSink DCCSink
	clock   Clock

	conn *transport.Conn

	reconnectTimeout time.Duration
	maxRetries       int

	// task is the single goroutine's work queue; every mutation of the
	// fields below this point happens only inside a closure drained
	// from cmds, matching spec.md §5's single-writer rule.
	cmds chan func()
	done chan struct{}
	wg   sync.WaitGroup

	mu        sync.Mutex // guards the snapshot fields only
	status    Status
	loggedIn  bool
	selfNick  string
	away      bool
	awayMsg   string
	retries   int

	chanTypes   string
	chanModes   string // "A,B,C,D" groups, verbatim from ISUPPORT
	prefixModes string // e.g. "ohv"
	prefixChars string // e.g. "@%+"

	registry *state.Registry
	channels map[string]*state.Channel // keyed by folded channel name

	reconnectTimer *time.Timer
	whoTicker      *time.Ticker

	namesBuf map[string][]string // accumulating NAMES nicks, keyed by folded channel

	configuredNick string // the nick from config, used by nickserv.go
}

// New constructs a Server for one configured connection. It does not
// connect; call Connect to begin the lifecycle.
func New(name string, store *config.ServerStore, logStore *chatlog.Store, log *logrus.Entry, sink EventSink) *Server {
	params := store.Params()
	s := &Server{
		Name:             name,
		store:            store,
		chatlog:          logStore,
		log:              log,
		sink:             sink,
		reconnectTimeout: 10 * time.Second,
		maxRetries:       3,
		cmds:             make(chan func(), 64),
		done:             make(chan struct{}),
		registry:         state.NewRegistry(),
		channels:         make(map[string]*state.Channel),
		selfNick:         params.Nick,
		configuredNick:   params.Nick,
	}
	s.registry.Retain(params.Nick)
	s.conn = &transport.Conn{
		Addr:   fmt.Sprintf("%s:%d", params.Address, params.Port),
		TLS:    params.SSL,
		OnConnect: func() {
			s.enqueue(s.handleTransportConnected)
		},
		OnDisconnect: func() {
			s.enqueue(s.handleTransportDisconnected)
		},
		OnRead: func(line string) {
			s.enqueue(func() { s.handleLine(line) })
		},
	}
	s.conn.SetTimeout(60)
	return s
}

// SetDCCSink registers the transfer manager that receives forwarded
// DCC sub-commands.
func (s *Server) SetDCCSink(sink DCCSink) {
	s.dccSink = sink
}

// SetReconnectPolicy overrides the default reconnect timeout/retry
// count, normally sourced from config.RootConfig.
func (s *Server) SetReconnectPolicy(timeout time.Duration, retries int) {
	s.reconnectTimeout = timeout
	s.maxRetries = retries
}

// Run starts the Server's task loop. It blocks until Stop is called or
// ctx is cancelled, so callers should run it in its own goroutine
// (instance.Instance does this via errgroup).
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-s.done:
			return
		case fn := <-s.cmds:
			fn()
		}
	}
}

// enqueue posts fn onto the task queue. It never blocks the caller
// indefinitely: if the Server has already stopped, fn is dropped.
func (s *Server) enqueue(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

// Stop terminates the task loop without waiting for network I/O to
// finish; use Disconnect first for a graceful QUIT.
func (s *Server) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Server) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

func (s *Server) emit(name string, fields map[string]any) {
	if s.sink == nil {
		return
	}
	s.sink.Emit(Event{
		Name:   name,
		Server: s.Name,
		Time:   s.now().Unix(),
		Fields: fields,
	})
}

// Connect requests a connection (spec.md §4.4.2: Disconnected →
// Connecting). It resets the retry counter, matching spec.md §4.4.3
// ("An explicit user connect resets retries to the configured maximum").
func (s *Server) Connect() {
	s.enqueue(func() {
		s.mu.Lock()
		if s.status != StatusDisconnected {
			s.mu.Unlock()
			return
		}
		s.status = StatusConnecting
		s.retries = s.maxRetries
		s.mu.Unlock()

		s.cancelReconnectTimer()
		s.emit("connect", map[string]any{})

		if err := s.conn.Connect(context.Background()); err != nil {
			s.log.WithError(err).Warn("connect failed")
		}
	})
}

// Disconnect requests a graceful shutdown with msg as the QUIT reason
// (spec.md §4.4.2). It cancels any pending reconnect timer outright.
func (s *Server) Disconnect(msg string) {
	s.enqueue(func() {
		s.cancelReconnectTimer()

		s.mu.Lock()
		wasConnected := s.status == StatusConnected
		s.mu.Unlock()

		if wasConnected {
			_, _ = s.conn.Send(mustMarshal(irc.Quit(msg)))
			s.eachChannel(func(ch *state.Channel) {
				_ = s.chatlog.Write(ch.Name, "» You quit ("+msg+")")
				ch.Joined = false
			})
		}
		_ = s.conn.Close()

		s.mu.Lock()
		s.status = StatusDisconnected
		s.loggedIn = false
		s.mu.Unlock()

		s.emit("quit", map[string]any{"message": msg})
	})
}

func (s *Server) shutdown() {
	s.cancelReconnectTimer()
	if s.whoTicker != nil {
		s.whoTicker.Stop()
	}
	_ = s.conn.Close()
	_ = s.chatlog.Close()
}

// handleTransportConnected runs on the task when LineTransport's
// on_connect fires: Connecting → Connected (spec.md §4.4.2).
func (s *Server) handleTransportConnected() {
	s.mu.Lock()
	s.status = StatusConnected
	nick := s.selfNick
	s.mu.Unlock()

	params := s.store.Params()
	if pass := s.store.String(config.GroupServer, "pass", ""); pass != "" {
		_, _ = s.conn.Send(mustMarshal(irc.Pass(pass)))
	}
	_, _ = s.conn.Send(mustMarshal(irc.Nick(nick)))
	_, _ = s.conn.Send(mustMarshal(irc.User(params.User, params.Name)))

	s.emit("connected", map[string]any{})
	s.emit("nick", map[string]any{"old": "", "new": nick})
}

// handleTransportDisconnected runs when LineTransport's on_disconnect
// fires, whether from Connecting or Connected (spec.md §4.4.2): both
// transitions go to Disconnected and schedule a reconnect if retries
// remain.
func (s *Server) handleTransportDisconnected() {
	s.mu.Lock()
	wasConnecting := s.status != StatusDisconnected
	s.status = StatusDisconnected
	s.loggedIn = false
	for _, ch := range s.channels {
		ch.Joined = false
	}
	s.mu.Unlock()

	if !wasConnecting {
		return
	}
	s.scheduleReconnect()
}

// scheduleReconnect implements spec.md §4.4.3.
func (s *Server) scheduleReconnect() {
	s.mu.Lock()
	retries := s.retries
	s.mu.Unlock()

	if retries <= 0 {
		return
	}

	s.cancelReconnectTimer()
	s.reconnectTimer = time.AfterFunc(s.reconnectTimeout, func() {
		s.enqueue(s.reconnectTick)
	})
}

func (s *Server) reconnectTick() {
	s.mu.Lock()
	if s.retries <= 0 {
		s.mu.Unlock()
		return
	}
	s.retries--
	retriesLeft := s.retries
	s.status = StatusConnecting
	s.mu.Unlock()

	s.emit("reconnect", map[string]any{"retries_left": retriesLeft})

	if err := s.conn.Connect(context.Background()); err != nil {
		s.log.WithError(err).Warn("reconnect attempt failed")
	}
}

// cancelReconnectTimer unregisters any pending reconnect timer. Per
// spec.md §5, the timer must be unregistered before any new connect
// attempt races it.
func (s *Server) cancelReconnectTimer() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

// Snapshot is the thread-safe read-only view of Server state exposed to
// foreign callers (spec.md §5: "public getters acquire a mutex and
// return a snapshot").
type Snapshot struct {
	Status   Status
	LoggedIn bool
	SelfNick string
	Away     bool
	AwayMsg  string
}

// Snapshot returns a snapshot of the Server's current state.
func (s *Server) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Status:   s.status,
		LoggedIn: s.loggedIn,
		SelfNick: s.selfNick,
		Away:     s.away,
		AwayMsg:  s.awayMsg,
	}
}

// ChannelNames returns the names of every known channel (joined or parted
// but retained for its key/autojoin).
func (s *Server) ChannelNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch.Name)
	}
	return out
}

// ChannelNicks returns the roster and highest-prefix-per-nick for
// channel, matching the IPC channel_nicks command (spec.md §6).
func (s *Server) ChannelNicks(channel string) (nicks []string, prefixes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[state.FoldNick(channel)]
	if !ok {
		return nil, nil
	}
	for _, nick := range ch.Nicks() {
		nicks = append(nicks, nick)
		prefixes = append(prefixes, s.prefixCharFor(ch, nick))
	}
	return nicks, prefixes
}

func (s *Server) prefixCharFor(ch *state.Channel, nick string) string {
	idx := ch.HighestPrefixIndex(nick)
	if idx < 0 || idx >= len(s.prefixChars) {
		return ""
	}
	return string(s.prefixChars[idx])
}

// AutoConnect reports whether this server is configured to connect
// automatically when the daemon starts.
func (s *Server) AutoConnect() bool {
	return s.store.Params().Autoconnect
}

func mustMarshal(m *irc.Message) string {
	b, err := m.MarshalText()
	if err != nil {
		return ""
	}
	return string(b)
}
