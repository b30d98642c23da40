package instance

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TransferStatus mirrors the makiDCCSend status enum (dcc-send.c),
// reduced to the states a forwarding-only implementation can observe.
type TransferStatus int

const (
	TransferPending TransferStatus = iota
	TransferAccepted
	TransferResumed
)

// Transfer is an opaque DCC file transfer record. The daemon core
// only parses and forwards DCC sub-commands (spec.md §1: "the core
// merely parses CTCP messages and forwards file-transfer sub-commands
// to an opaque transfer manager"); the actual socket/file handling is
// a Non-goal and is never implemented here.
type Transfer struct {
	ID     uint64
	UUID   uuid.UUID
	Server string
	Nick   string
	Verb   string
	Rest   string
	Status TransferStatus
}

// TransferManager is the DCC placeholder described in SPEC_FULL.md
// §4's Instance data model: an id counter plus an opaque transfer
// list, forwarding only. It implements server.DCCSink.
//
// Two ids are kept per transfer: a monotonic uint64 (spec.md §4.6,
// taken by Accept and Remove) and a `github.com/google/uuid` value.
// Both are stored on each Transfer and returned by List; no event
// carrying either id is emitted.
type TransferManager struct {
	mu      sync.Mutex
	nextID  uint64
	byID    map[uint64]*Transfer
}

// NewTransferManager returns an empty TransferManager, matching
// maki_instance_new's dcc.id=0/dcc.list=NULL initialisation.
func NewTransferManager() *TransferManager {
	return &TransferManager{byID: make(map[uint64]*Transfer)}
}

// HandleDCC implements server.DCCSink: it parses the already-split
// verb (SEND/RESUME/ACCEPT) and creates or updates an opaque Transfer
// record. rest is the remainder of the CTCP DCC body (e.g.
// "filename ip port size" for SEND).
func (t *TransferManager) HandleDCC(serverName, nick, verb, rest string) {
	switch verb {
	case "SEND":
		t.add(serverName, nick, verb, rest)
	case "ACCEPT", "RESUME":
		t.updateByToken(rest, verb)
	}
}

func (t *TransferManager) add(serverName, nick, verb, rest string) *Transfer {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	tr := &Transfer{
		ID:     t.nextID,
		UUID:   uuid.New(),
		Server: serverName,
		Nick:   nick,
		Verb:   verb,
		Rest:   rest,
		Status: TransferPending,
	}
	t.byID[tr.ID] = tr
	return tr
}

// updateByToken matches a RESUME/ACCEPT sub-command's port/token
// field against a pending transfer's rest field, matching
// maki_instance_resume_accept_dcc_send's linear scan.
func (t *TransferManager) updateByToken(rest, verb string) bool {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return false
	}
	port := fields[len(fields)-1]

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tr := range t.byID {
		if strings.Contains(tr.Rest, port) {
			if verb == "ACCEPT" {
				tr.Status = TransferAccepted
			} else {
				tr.Status = TransferResumed
			}
			return true
		}
	}
	return false
}

// Accept marks id's transfer accepted, matching
// maki_instance_accept_dcc_send.
func (t *TransferManager) Accept(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.byID[id]
	if !ok {
		return false
	}
	tr.Status = TransferAccepted
	return true
}

// Remove forgets id's transfer, matching maki_instance_remove_dcc_send.
func (t *TransferManager) Remove(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[id]; !ok {
		return false
	}
	delete(t.byID, id)
	return true
}

// List returns a snapshot of every known transfer, matching
// maki_instance_dcc_sends_xxx's bulk enumeration.
func (t *TransferManager) List() []Transfer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Transfer, 0, len(t.byID))
	for _, tr := range t.byID {
		out = append(out, *tr)
	}
	return out
}

// Count reports the number of known transfers, matching
// maki_instance_dcc_sends_count.
func (t *TransferManager) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
