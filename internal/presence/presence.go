// Package presence keeps the authoritative in-memory availability state
// of every user and writes changes through to persistent storage.
package presence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"
)

// Persister receives write-through updates. Persistence failures are
// logged, not returned: the in-memory state stays authoritative.
type Persister interface {
	UpdateUserPresence(id string, status models.UserStatus, lastSeen int64) error
	SetShareStatus(id string, share bool) error
}

type entry struct {
	status   models.UserStatus
	lastSeen int64
	sharing  bool
}

type Store struct {
	mu        sync.RWMutex
	users     map[string]entry
	persister Persister
	now       func() time.Time
}

func NewStore(persister Persister) *Store {
	return &Store{
		users:     make(map[string]entry),
		persister: persister,
		now:       time.Now,
	}
}

// Seed loads known users at startup. Everyone starts offline regardless
// of the status persisted before shutdown; lastSeen is kept.
func (s *Store) Seed(users []models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.users[u.ID] = entry{
			status:   models.StatusOffline,
			lastSeen: u.Presence.LastSeen,
			sharing:  u.ShareStatus,
		}
	}
}

// SetOnline marks a user online. lastSeen is zeroed: a connected user
// has no meaningful last-seen time.
func (s *Store) SetOnline(userID string) {
	s.set(userID, models.StatusOnline, 0)
}

// SetOffline marks a user offline and records the disconnect time.
func (s *Store) SetOffline(userID string) {
	s.set(userID, models.StatusOffline, s.now().Unix())
}

// SetStatus applies a user-chosen status. Choosing OFFLINE while
// connected also stamps lastSeen, mirroring a real disconnect.
func (s *Store) SetStatus(userID string, status models.UserStatus) error {
	if !models.ValidStatus(status) {
		return models.ErrInvalidStatus
	}
	var lastSeen int64
	if status == models.StatusOffline {
		lastSeen = s.now().Unix()
	}
	s.set(userID, status, lastSeen)
	return nil
}

// entryFor returns the tracked entry for a user. Users provisioned after
// Seed have no entry yet; they default to offline with sharing on, the
// same state AddUser persists. Opting out always writes an entry, so a
// missing one never hides a real opt-out.
func (s *Store) entryFor(userID string) entry {
	if e, ok := s.users[userID]; ok {
		return e
	}
	return entry{status: models.StatusOffline, sharing: true}
}

func (s *Store) set(userID string, status models.UserStatus, lastSeen int64) {
	s.mu.Lock()
	e := s.entryFor(userID)
	e.status = status
	e.lastSeen = lastSeen
	s.users[userID] = e
	s.mu.Unlock()

	if err := s.persister.UpdateUserPresence(userID, status, lastSeen); err != nil {
		slog.Error("failed to persist presence", "user_id", userID, "error", err)
	}
}

// Touch refreshes the last-seen timestamp without changing status. Used
// for activity pings from connected clients.
func (s *Store) Touch(userID string) {
	now := s.now().Unix()
	s.mu.Lock()
	e, ok := s.users[userID]
	if !ok || e.status == models.StatusOffline {
		s.mu.Unlock()
		return
	}
	e.lastSeen = now
	s.users[userID] = e
	s.mu.Unlock()
}

// SetSharing flips the presence-sharing opt-out.
func (s *Store) SetSharing(userID string, sharing bool) {
	s.mu.Lock()
	e := s.entryFor(userID)
	e.sharing = sharing
	s.users[userID] = e
	s.mu.Unlock()

	if err := s.persister.SetShareStatus(userID, sharing); err != nil {
		slog.Error("failed to persist share status", "user_id", userID, "error", err)
	}
}

// Shares reports whether a user exposes their presence to others.
func (s *Store) Shares(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entryFor(userID).sharing
}

// Get returns the raw, unfiltered presence of a user. Callers presenting
// this to other users must go through View.
func (s *Store) Get(userID string) models.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.users[userID]
	if !ok {
		return models.Presence{Status: models.StatusOffline}
	}
	return models.Presence{Status: e.status, LastSeen: e.lastSeen}
}

// View returns target's presence as seen by viewer. Users who opted out
// of sharing appear offline with no last-seen time to everyone but
// themselves, and INVISIBLE is never shown to others.
func (s *Store) View(viewerID, targetID string) models.Presence {
	p := s.Get(targetID)
	if viewerID == targetID {
		return p
	}
	if !s.Shares(targetID) {
		return models.Presence{Status: models.StatusOffline}
	}
	if p.Status == models.StatusInvisible {
		return models.Presence{Status: models.StatusOffline, LastSeen: p.LastSeen}
	}
	return p
}
