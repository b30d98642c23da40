package chatlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteCreatesFileLazilyAndAppends(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "freenode", "$n.txt")

	if err := s.Write("#test", "alice hello"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write("#test", "bob hi"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	path := filepath.Join(dir, "sushi", "logs", "freenode", "#test.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}
	if !strings.HasSuffix(lines[0], "alice hello") || !strings.HasSuffix(lines[1], "bob hi") {
		t.Errorf("unexpected log contents: %q", lines)
	}
}

func TestWriteKeepsSeparateFilesPerTarget(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "freenode", "$n.txt")

	_ = s.Write("#test", "a")
	_ = s.Write("bob", "b")

	if _, err := os.Stat(filepath.Join(dir, "sushi", "logs", "freenode", "#test.txt")); err != nil {
		t.Errorf("missing #test log: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sushi", "logs", "freenode", "bob.txt")); err != nil {
		t.Errorf("missing bob log: %v", err)
	}
}

func TestSanitizeStripsPathSeparators(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "freenode", "$n.txt")

	if err := s.Write("../../etc/passwd", "x"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	escaped := filepath.Join(dir, "..", "..", "etc", "passwd.txt")
	if _, err := os.Stat(escaped); err == nil {
		t.Error("log write escaped the log directory")
	}

	entries, err := os.ReadDir(filepath.Join(dir, "sushi", "logs", "freenode"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one sanitized log file, got %d", len(entries))
	}
}

func TestCloseClosesAllOpenFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "freenode", "$n.txt")
	_ = s.Write("#test", "a")

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(s.files) != 0 {
		t.Errorf("expected files map cleared after Close, got %d entries", len(s.files))
	}
}
