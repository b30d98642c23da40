// Package chatlog implements the append-only, per-(server,target) log
// sink described in spec.md §6, grounded in the original source's
// log.c: files are opened lazily on first write, kept open for the
// life of the Server, and every line is flushed immediately.
package chatlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Store manages one log file per target (channel or nick) for a single
// server. Directories are created lazily with 0777 (matching the
// original source's g_mkdir_with_parents mode; unlike ServerStore's
// config files, spec.md does not ask for restrictive log permissions).
type Store struct {
	mu     sync.Mutex
	dir    string // <data-dir>/sushi/logs/<server>
	format string // e.g. "$n.txt"; $n is replaced by the target name
	files  map[string]*os.File
}

// NewStore returns a Store rooted at dataDir/sushi/logs/server, using
// format as the per-target filename template. format may additionally
// contain strftime-style codes (%Y, %m, %d, ...), expanded against the
// time of each write so that a daily-rotating template such as
// "$n-%Y-%m-%d.txt" opens a new file once the day rolls over.
func NewStore(dataDir, server, format string) *Store {
	return &Store{
		dir:    filepath.Join(dataDir, "sushi", "logs", server),
		format: format,
		files:  make(map[string]*os.File),
	}
}

// Write appends one line to target's log: "YYYY-MM-DD HH:MM:SS <text>\n".
func (s *Store) Write(target, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	name := s.filename(target, now)

	f, ok := s.files[name]
	if !ok {
		if err := os.MkdirAll(s.dir, 0o777); err != nil {
			return fmt.Errorf("chatlog: mkdir %s: %w", s.dir, err)
		}
		path := filepath.Join(s.dir, name)
		var err error
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
		if err != nil {
			return fmt.Errorf("chatlog: open %s: %w", path, err)
		}
		s.files[name] = f
	}

	line := fmt.Sprintf("%s %s\n", now.Format("2006-01-02 15:04:05"), text)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("chatlog: write %s: %w", name, err)
	}
	return f.Sync()
}

// filename expands the format template for target at time t.
func (s *Store) filename(target string, t time.Time) string {
	name := strings.ReplaceAll(s.format, "$n", sanitize(target))
	name = strftime(name, t)
	return name
}

// sanitize strips path separators from a target name so it cannot
// escape the log directory (e.g. a channel named "../../etc").
func sanitize(target string) string {
	target = strings.ReplaceAll(target, "/", "_")
	target = strings.ReplaceAll(target, string(filepath.Separator), "_")
	return target
}

// strftime expands the small subset of strftime codes the logging
// format needs.
func strftime(format string, t time.Time) string {
	r := strings.NewReplacer(
		"%Y", t.Format("2006"),
		"%m", t.Format("01"),
		"%d", t.Format("02"),
		"%H", t.Format("15"),
	)
	return r.Replace(format)
}

// Close closes every open log file. Safe to call once at Server
// shutdown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for name, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, name)
	}
	return firstErr
}
