package instance

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestInstance(t *testing.T) *Instance {
	t.Helper()
	dir := t.TempDir()
	log := logrus.New()
	log.SetOutput(testingWriter{t})

	inst, err := New(filepath.Join(dir, "config"), filepath.Join(dir, "data"), log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return inst
}

type testingWriter struct{ t *testing.T }

func (w testingWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestAddServerThenGetServer(t *testing.T) {
	inst := newTestInstance(t)

	if _, err := inst.AddServer("freenode"); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	if _, ok := inst.GetServer("freenode"); !ok {
		t.Error("expected to find freenode after AddServer")
	}
	if inst.ServerCount() != 1 {
		t.Errorf("ServerCount = %d, want 1", inst.ServerCount())
	}
}

func TestAddServerRejectsDuplicateName(t *testing.T) {
	inst := newTestInstance(t)
	if _, err := inst.AddServer("freenode"); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	if _, err := inst.AddServer("freenode"); err == nil {
		t.Error("expected an error adding a duplicate server name")
	}
}

func TestRenameServerAtomic(t *testing.T) {
	inst := newTestInstance(t)
	inst.AddServer("old")
	inst.AddServer("taken")

	if inst.RenameServer("old", "taken") {
		t.Error("rename onto an existing name must fail")
	}
	if !inst.RenameServer("old", "new") {
		t.Fatal("expected rename to succeed")
	}
	if _, ok := inst.GetServer("old"); ok {
		t.Error("old name should no longer resolve")
	}
	if _, ok := inst.GetServer("new"); !ok {
		t.Error("new name should resolve to the renamed server")
	}
}

func TestRemoveServerForgetsIt(t *testing.T) {
	inst := newTestInstance(t)
	inst.AddServer("freenode")

	if !inst.RemoveServer("freenode") {
		t.Fatal("expected RemoveServer to succeed")
	}
	if _, ok := inst.GetServer("freenode"); ok {
		t.Error("server should be gone after RemoveServer")
	}
	if inst.RemoveServer("freenode") {
		t.Error("removing an already-removed server should report false")
	}
}
