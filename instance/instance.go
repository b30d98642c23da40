// Package instance implements the multi-server supervisor (spec.md
// §4, §6): a registry of named server.Server values, the daemon-wide
// configuration, the plugin extension point, and the DCC transfer
// manager. It replaces the C source's global-singleton makiInstance
// (instance.c) with an explicit handle threaded by the caller.
package instance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sushinet/sushid/chatlog"
	"github.com/sushinet/sushid/config"
	"github.com/sushinet/sushid/server"
)

// ErrUnknownServer is returned when a command names a server that is
// not registered (spec.md §7's CommandError kind).
var ErrUnknownServer = fmt.Errorf("instance: unknown server")

// Instance is the root object: one per running daemon process. It
// owns every configured server.Server, the daemon-wide RootConfig,
// the plugin registry, the DCC transfer manager, and the event bus
// that fans server.Event out to front-ends.
type Instance struct {
	ConfigDir string
	DataDir   string

	Root   *config.RootConfig
	Events *EventBus
	Plugin PluginRegistry

	log *logrus.Logger

	mu      sync.Mutex
	servers map[string]*managedServer

	transfer *TransferManager

	group  *errgroup.Group
	cancel context.CancelFunc
}

type managedServer struct {
	srv    *server.Server
	cancel context.CancelFunc
}

// New constructs an Instance rooted at configDir/dataDir, loading (or
// creating with defaults) the daemon config file, matching
// maki_instance_new's config-dir/servers-dir bootstrap.
func New(configDir, dataDir string, log *logrus.Logger) (*Instance, error) {
	if err := os.MkdirAll(filepath.Join(configDir, "servers"), 0o777); err != nil {
		return nil, fmt.Errorf("instance: creating config dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o777); err != nil {
		return nil, fmt.Errorf("instance: creating data dir: %w", err)
	}

	root, err := config.LoadRootConfig(configDir, dataDir)
	if err != nil {
		return nil, fmt.Errorf("instance: loading root config: %w", err)
	}

	if log == nil {
		log = logrus.New()
	}

	inst := &Instance{
		ConfigDir: configDir,
		DataDir:   dataDir,
		Root:      root,
		Plugin:    NoopPluginRegistry{},
		log:       log,
		servers:   make(map[string]*managedServer),
		transfer:  NewTransferManager(),
	}
	inst.Events = NewEventBus(256)
	return inst, nil
}

// SetPluginRegistry overrides the default no-op plugin registry.
func (in *Instance) SetPluginRegistry(p PluginRegistry) {
	in.Plugin = p
}

// Transfer returns the instance's DCC transfer manager.
func (in *Instance) Transfer() *TransferManager {
	return in.transfer
}

// AddServer loads (or creates) servers/<name>'s config and registers a
// new server.Server, matching maki_instance_add_server. It does not
// start the server's task; Run starts the tasks of the servers
// registered when it is called, and a server added after Run has
// started is not started by it.
func (in *Instance) AddServer(name string) (*server.Server, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, exists := in.servers[name]; exists {
		return nil, fmt.Errorf("instance: server %q already exists", name)
	}

	storePath := filepath.Join(in.ConfigDir, "servers", name)
	store, err := config.LoadServerStore(storePath)
	if err != nil {
		return nil, fmt.Errorf("instance: loading server store for %q: %w", name, err)
	}

	logStore := chatlog.NewStore(in.DataDir, name, in.Root.LogFormat())

	entry := in.log.WithField("server", name)
	srv := server.New(name, store, logStore, entry, in.Events)
	srv.SetDCCSink(in.transfer)
	srv.SetReconnectPolicy(time.Duration(in.Root.ReconnectTimeoutSeconds())*time.Second, in.Root.ReconnectRetries())

	in.servers[name] = &managedServer{srv: srv}
	return srv, nil
}

// GetServer looks up a registered server by name, matching
// maki_instance_get_server.
func (in *Instance) GetServer(name string) (*server.Server, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	m, ok := in.servers[name]
	if !ok {
		return nil, false
	}
	return m.srv, true
}

// RemoveServer disconnects and forgets a server, matching
// maki_instance_remove_server.
func (in *Instance) RemoveServer(name string) bool {
	in.mu.Lock()
	m, ok := in.servers[name]
	if ok {
		delete(in.servers, name)
	}
	in.mu.Unlock()

	if !ok {
		return false
	}
	m.srv.Disconnect("removed")
	if m.cancel != nil {
		m.cancel()
	}
	m.srv.Stop()
	return true
}

// RenameServer atomically re-keys a server's name, failing silently
// (returning false) if new_name is taken or old_name is unknown,
// matching maki_instance_rename_server.
func (in *Instance) RenameServer(oldName, newName string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, exists := in.servers[newName]; exists {
		return false
	}
	m, ok := in.servers[oldName]
	if !ok {
		return false
	}
	delete(in.servers, oldName)
	in.servers[newName] = m
	return true
}

// ServerNames returns every registered server's name, matching
// maki_instance_servers_iter's enumeration use.
func (in *Instance) ServerNames() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]string, 0, len(in.servers))
	for name := range in.servers {
		out = append(out, name)
	}
	return out
}

// ServerCount reports how many servers are registered, matching
// maki_instance_servers_count.
func (in *Instance) ServerCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.servers)
}

// Run starts every registered server's task on its own goroutine,
// supervised by an errgroup so a parent context cancellation fans out
// to every server (spec.md DESIGN NOTES §9: "one cooperative task per
// server on a shared thread-pool runtime"). Run blocks until ctx is
// cancelled or Shutdown is called.
func (in *Instance) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	in.cancel = cancel

	group, gctx := errgroup.WithContext(ctx)
	in.group = group

	in.mu.Lock()
	for _, m := range in.servers {
		srv := m.srv
		sctx, scancel := context.WithCancel(gctx)
		m.cancel = scancel
		group.Go(func() error {
			srv.Run(sctx)
			return nil
		})
		if srv.AutoConnect() {
			srv.Connect()
		}
	}
	in.mu.Unlock()

	return group.Wait()
}

// Shutdown implements spec.md §6's "Exit": disconnect every server
// with message as the QUIT reason, emit a final shutdown event and
// close the event bus, and cancel the supervisor so Run returns.
// Per-server settings are already on disk, since every ServerStore
// mutator persists immediately; Shutdown itself writes no file, so
// root config values changed through RootConfig.Set are not saved.
func (in *Instance) Shutdown(message string) {
	in.mu.Lock()
	servers := make([]*managedServer, 0, len(in.servers))
	for _, m := range in.servers {
		servers = append(servers, m)
	}
	in.mu.Unlock()

	for _, m := range servers {
		m.srv.Disconnect(message)
	}
	in.Events.Emit(server.Event{Name: "shutdown", Fields: map[string]any{"message": message}})
	in.Events.Close()

	if in.cancel != nil {
		in.cancel()
	}
}
