package instance

import "testing"

func TestHandleDCCSendCreatesPendingTransfer(t *testing.T) {
	tm := NewTransferManager()
	tm.HandleDCC("srv", "bob", "SEND", "file.zip 3232235777 5000 1024")

	list := tm.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(list))
	}
	tr := list[0]
	if tr.Status != TransferPending || tr.Nick != "bob" {
		t.Errorf("got %+v, want pending transfer from bob", tr)
	}
	if tr.UUID.String() == "" {
		t.Error("expected a non-empty UUID handle")
	}
}

func TestHandleDCCAcceptUpdatesMatchingTransfer(t *testing.T) {
	tm := NewTransferManager()
	tm.HandleDCC("srv", "bob", "SEND", "file.zip 3232235777 5000 1024")

	tm.HandleDCC("srv", "bob", "ACCEPT", "file.zip 5000")

	list := tm.List()
	if list[0].Status != TransferAccepted {
		t.Errorf("got status %v, want accepted", list[0].Status)
	}
}

func TestTransferIDsAreMonotonic(t *testing.T) {
	tm := NewTransferManager()
	tm.HandleDCC("srv", "bob", "SEND", "a.zip 1 1 1")
	tm.HandleDCC("srv", "carol", "SEND", "b.zip 1 1 1")

	list := tm.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(list))
	}
	ids := map[uint64]bool{}
	for _, tr := range list {
		ids[tr.ID] = true
	}
	if !ids[1] || !ids[2] {
		t.Errorf("expected ids 1 and 2, got %v", ids)
	}
}

func TestRemoveForgetsTransfer(t *testing.T) {
	tm := NewTransferManager()
	tm.HandleDCC("srv", "bob", "SEND", "a.zip 1 1 1")

	if !tm.Remove(1) {
		t.Fatal("expected Remove to succeed")
	}
	if tm.Count() != 0 {
		t.Errorf("expected 0 transfers after Remove, got %d", tm.Count())
	}
	if tm.Remove(1) {
		t.Error("removing an already-removed transfer should report false")
	}
}
