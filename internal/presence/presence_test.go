package presence

import (
	"errors"
	"testing"
	"time"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"
)

type fakePersister struct {
	presenceWrites int
	shareWrites    int
	lastStatus     models.UserStatus
	lastSeen       int64
	err            error
}

func (f *fakePersister) UpdateUserPresence(id string, status models.UserStatus, lastSeen int64) error {
	f.presenceWrites++
	f.lastStatus = status
	f.lastSeen = lastSeen
	return f.err
}

func (f *fakePersister) SetShareStatus(id string, share bool) error {
	f.shareWrites++
	return f.err
}

func newTestStore(t *testing.T) (*Store, *fakePersister, *time.Time) {
	t.Helper()
	p := &fakePersister{}
	s := NewStore(p)
	currentTime := time.Unix(1700000000, 0)
	s.now = func() time.Time { return currentTime }
	s.Seed([]models.User{
		{ID: "alice", ShareStatus: true, Presence: models.Presence{LastSeen: 100}},
		{ID: "bob", ShareStatus: true},
		{ID: "carol", ShareStatus: false},
	})
	return s, p, &currentTime
}

func TestOnlineOffline(t *testing.T) {
	s, p, now := newTestStore(t)

	s.SetOnline("alice")
	got := s.Get("alice")
	if got.Status != models.StatusOnline {
		t.Errorf("expected ONLINE, got %s", got.Status)
	}
	if got.LastSeen != 0 {
		t.Errorf("expected zero lastSeen while online, got %d", got.LastSeen)
	}
	if p.presenceWrites != 1 || p.lastStatus != models.StatusOnline {
		t.Errorf("expected write-through of ONLINE, got %d writes, %s", p.presenceWrites, p.lastStatus)
	}

	s.SetOffline("alice")
	got = s.Get("alice")
	if got.Status != models.StatusOffline {
		t.Errorf("expected OFFLINE, got %s", got.Status)
	}
	if got.LastSeen != now.Unix() {
		t.Errorf("expected lastSeen %d, got %d", now.Unix(), got.LastSeen)
	}
}

func TestSeedStartsOffline(t *testing.T) {
	s, _, _ := newTestStore(t)

	got := s.Get("alice")
	if got.Status != models.StatusOffline {
		t.Errorf("seeded user should start OFFLINE, got %s", got.Status)
	}
	if got.LastSeen != 100 {
		t.Errorf("seed should keep lastSeen, got %d", got.LastSeen)
	}
}

func TestSetStatus(t *testing.T) {
	s, _, now := newTestStore(t)

	if err := s.SetStatus("alice", models.StatusBusy); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if got := s.Get("alice"); got.Status != models.StatusBusy {
		t.Errorf("expected BUSY, got %s", got.Status)
	}

	if err := s.SetStatus("alice", "SLEEPING"); err != models.ErrInvalidStatus {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}

	// Explicitly going OFFLINE records a last-seen time.
	if err := s.SetStatus("alice", models.StatusOffline); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if got := s.Get("alice"); got.LastSeen != now.Unix() {
		t.Errorf("expected lastSeen %d, got %d", now.Unix(), got.LastSeen)
	}
}

func TestTouch(t *testing.T) {
	s, _, now := newTestStore(t)

	// Touch on an offline user is a no-op.
	s.Touch("alice")
	if got := s.Get("alice"); got.LastSeen != 100 {
		t.Errorf("touch should not update offline user, got %d", got.LastSeen)
	}

	s.SetOnline("alice")
	*now = now.Add(time.Minute)
	s.Touch("alice")
	if got := s.Get("alice"); got.LastSeen != now.Unix() {
		t.Errorf("expected lastSeen %d, got %d", now.Unix(), got.LastSeen)
	}
}

func TestView(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.SetOnline("alice")
	s.SetOnline("carol")

	// Sharing user is visible as-is.
	if got := s.View("bob", "alice"); got.Status != models.StatusOnline {
		t.Errorf("expected ONLINE view, got %s", got.Status)
	}

	// Opted-out user appears offline with no lastSeen to others.
	got := s.View("bob", "carol")
	if got.Status != models.StatusOffline || got.LastSeen != 0 {
		t.Errorf("expected synthetic OFFLINE view, got %+v", got)
	}

	// But sees their own real status.
	if got := s.View("carol", "carol"); got.Status != models.StatusOnline {
		t.Errorf("expected self view ONLINE, got %s", got.Status)
	}

	// INVISIBLE shows as OFFLINE to others.
	if err := s.SetStatus("alice", models.StatusInvisible); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if got := s.View("bob", "alice"); got.Status != models.StatusOffline {
		t.Errorf("expected OFFLINE view of invisible user, got %s", got.Status)
	}
	if got := s.View("alice", "alice"); got.Status != models.StatusInvisible {
		t.Errorf("expected self view INVISIBLE, got %s", got.Status)
	}

	// Unknown users read as offline.
	if got := s.View("bob", "nobody"); got.Status != models.StatusOffline {
		t.Errorf("expected OFFLINE for unknown user, got %s", got.Status)
	}
}

func TestUnseededUserSharesByDefault(t *testing.T) {
	s, _, _ := newTestStore(t)

	// dave was provisioned after startup, so Seed never saw him. His
	// account was persisted with sharing on; the store must agree.
	if !s.Shares("dave") {
		t.Error("expected unseeded user to share presence")
	}

	s.SetOnline("dave")
	if !s.Shares("dave") {
		t.Error("coming online must not flip an unseeded user to opted-out")
	}
	if got := s.View("bob", "dave"); got.Status != models.StatusOnline {
		t.Errorf("expected ONLINE view of unseeded user, got %s", got.Status)
	}

	// An explicit opt-out still sticks.
	s.SetSharing("dave", false)
	if got := s.View("bob", "dave"); got.Status != models.StatusOffline {
		t.Errorf("expected synthetic OFFLINE after opt-out, got %s", got.Status)
	}
}

func TestSetSharing(t *testing.T) {
	s, p, _ := newTestStore(t)
	s.SetOnline("alice")

	s.SetSharing("alice", false)
	if s.Shares("alice") {
		t.Error("expected sharing off")
	}
	if got := s.View("bob", "alice"); got.Status != models.StatusOffline {
		t.Errorf("expected OFFLINE view after opt-out, got %s", got.Status)
	}
	if p.shareWrites != 1 {
		t.Errorf("expected 1 share write, got %d", p.shareWrites)
	}

	s.SetSharing("alice", true)
	if got := s.View("bob", "alice"); got.Status != models.StatusOnline {
		t.Errorf("expected ONLINE view after opt-in, got %s", got.Status)
	}
}

func TestPersistenceFailureKeepsMemoryState(t *testing.T) {
	s, p, _ := newTestStore(t)
	p.err = errors.New("disk full")

	s.SetOnline("alice")
	if got := s.Get("alice"); got.Status != models.StatusOnline {
		t.Errorf("memory state should update despite persist failure, got %s", got.Status)
	}
}
