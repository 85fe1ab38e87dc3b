package ws

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/content"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/presence"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/typing"

	"github.com/c-pro/geche"
)

const audienceTTL = 30 * time.Second

// Store is the slice of persistent storage the hub needs to route and
// record events.
type Store interface {
	ConversationIDsForUser(userID string) ([]string, error)
	GetParticipant(conversationID, userID string) (models.Participant, error)
	ListParticipants(conversationID string) ([]models.Participant, error)
	ListFriendships(userID string) ([]models.Friendship, error)
	UpsertMessage(message models.Message) error
	GetMessage(messageID string) (models.Message, error)
	ToggleReaction(reaction models.Reaction) (bool, error)
	ListReactions(messageID string) ([]models.Reaction, error)
	InsertNotification(n models.Notification) error
	GetUser(id string) (models.User, error)
}

// Notifier delivers a notification out-of-band when the recipient has no
// live connection.
type Notifier interface {
	Enabled() bool
	SendToUser(userID string, n models.Notification)
}

// Hub tracks live sessions, their room subscriptions, and fans events
// out to them.
type Hub struct {
	mu sync.RWMutex
	// All live sessions, the per-user index, and per-conversation rooms.
	sessions map[*Session]struct{}
	byUser   map[string]map[*Session]struct{}
	rooms    map[string]map[*Session]struct{}

	store    Store
	presence *presence.Store
	typing   *typing.Cache
	push     Notifier
	// audience caches the set of users interested in someone's presence.
	audience geche.Geche[string, []string]
	log      *slog.Logger
}

func NewHub(ctx context.Context, store Store, presenceStore *presence.Store, push Notifier, typingTTL, typingSweep time.Duration, log *slog.Logger) *Hub {
	h := &Hub{
		sessions: make(map[*Session]struct{}),
		byUser:   make(map[string]map[*Session]struct{}),
		rooms:    make(map[string]map[*Session]struct{}),
		store:    store,
		presence: presenceStore,
		push:     push,
		audience: geche.NewMapTTLCache[string, []string](ctx, audienceTTL, audienceTTL),
		log:      log,
	}
	h.typing = typing.New(typingTTL, typingSweep, h.typingExpired)
	return h
}

// Run drives the typing sweeper until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.typing.Run(ctx)
}

// Register adds an authenticated session: it is indexed by user, joined
// into the rooms of every conversation the user participates in, and the
// user is flipped online if this is their first session.
func (h *Hub) Register(s *Session) {
	conversationIDs, err := h.store.ConversationIDsForUser(s.userID)
	if err != nil {
		h.log.Error("failed to list conversations for session", "user_id", s.userID, "error", err)
	}

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	userSessions, ok := h.byUser[s.userID]
	if !ok {
		userSessions = make(map[*Session]struct{})
		h.byUser[s.userID] = userSessions
	}
	first := len(userSessions) == 0
	userSessions[s] = struct{}{}
	for _, conversationID := range conversationIDs {
		h.joinRoomLocked(s, conversationID)
	}
	h.mu.Unlock()

	if first {
		h.presence.SetOnline(s.userID)
		h.broadcastPresence(s.userID)
	}
}

// Unregister removes a session. When it was the user's last one their
// typing entries are cleared, the rooms hear about it, and the user goes
// offline.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	userSessions := h.byUser[s.userID]
	delete(userSessions, s)
	last := len(userSessions) == 0
	if last {
		delete(h.byUser, s.userID)
	}
	for conversationID := range s.joined {
		if room, ok := h.rooms[conversationID]; ok {
			delete(room, s)
			if len(room) == 0 {
				delete(h.rooms, conversationID)
			}
		}
	}
	h.mu.Unlock()

	if !last {
		return
	}
	for _, conversationID := range h.typing.StopAll(s.userID) {
		h.BroadcastToRoom(conversationID, ServerEvent{
			Event: EventUserStopTyping,
			Data:  UserTypingPayload{UserID: s.userID, ConversationID: conversationID},
		}, nil)
	}
	h.presence.SetOffline(s.userID)
	h.broadcastPresence(s.userID)
}

// JoinConversation subscribes a session to a conversation room after
// verifying active membership.
func (h *Hub) JoinConversation(s *Session, conversationID string) error {
	p, err := h.store.GetParticipant(conversationID, s.userID)
	if err != nil {
		return err
	}
	if !p.Active() {
		return models.ErrForbidden
	}

	h.mu.Lock()
	h.joinRoomLocked(s, conversationID)
	h.mu.Unlock()
	return nil
}

func (h *Hub) joinRoomLocked(s *Session, conversationID string) {
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*Session]struct{})
		h.rooms[conversationID] = room
	}
	room[s] = struct{}{}
	s.joined[conversationID] = struct{}{}
}

func (h *Hub) LeaveConversation(s *Session, conversationID string) {
	h.mu.Lock()
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, s)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	delete(s.joined, conversationID)
	h.mu.Unlock()
}

// BroadcastToRoom delivers an event to every session in a conversation
// room, except skip.
func (h *Hub) BroadcastToRoom(conversationID string, evt ServerEvent, skip *Session) {
	h.mu.RLock()
	room := h.rooms[conversationID]
	targets := make([]*Session, 0, len(room))
	for s := range room {
		if s != skip {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(evt)
	}
}

// SendToUser delivers an event to every session of one user. Reports
// whether the user had at least one live session.
func (h *Hub) SendToUser(userID string, evt ServerEvent) bool {
	h.mu.RLock()
	userSessions := h.byUser[userID]
	targets := make([]*Session, 0, len(userSessions))
	for s := range userSessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(evt)
	}
	return len(targets) > 0
}

// Connected reports whether a user has at least one live session.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

// DisconnectUser force-closes every live session a user has. Each
// session unregisters itself as its pumps wind down.
func (h *Hub) DisconnectUser(userID string) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.byUser[userID]))
	for s := range h.byUser[userID] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}

// NotifyUser persists a notification, pushes it to live sessions, and
// falls back to web push when the user is not connected.
func (h *Hub) NotifyUser(n models.Notification) {
	if err := h.store.InsertNotification(n); err != nil {
		h.log.Error("failed to store notification", "user_id", n.UserID, "error", err)
	}

	delivered := h.SendToUser(n.UserID, ServerEvent{Event: EventNewNotification, Data: n})
	if !delivered && h.push != nil && h.push.Enabled() {
		h.push.SendToUser(n.UserID, n)
	}
}

// HandleNewMessage persists a message from a live session and fans it out
// to the conversation room.
func (h *Hub) HandleNewMessage(s *Session, message models.Message) error {
	p, err := h.store.GetParticipant(message.ConversationID, s.userID)
	if err != nil {
		return err
	}
	if !p.Active() {
		return models.ErrForbidden
	}

	if err := h.store.UpsertMessage(message); err != nil {
		return err
	}

	// Sending implies no longer typing.
	if h.typing.Stop(s.userID, message.ConversationID) {
		h.BroadcastToRoom(message.ConversationID, ServerEvent{
			Event: EventUserStopTyping,
			Data:  UserTypingPayload{UserID: s.userID, ConversationID: message.ConversationID},
		}, nil)
	}

	if message.Kind == models.MessageText {
		if html, err := content.RenderMarkdown(message.Content); err == nil {
			message.HTML = html
		}
	}

	// The sender's session gets the event too: it carries the persisted
	// message with its assigned id.
	h.BroadcastToRoom(message.ConversationID, ServerEvent{Event: EventMessageReceived, Data: message}, nil)
	return nil
}

// HandleMessageUpdated re-announces an edit that was persisted through
// the REST API. The stored record is broadcast, never the client's copy.
func (h *Hub) HandleMessageUpdated(s *Session, conversationID, messageID string) error {
	message, err := h.verifiedMessage(s, conversationID, messageID)
	if err != nil {
		return err
	}
	if message.Kind == models.MessageText && !message.IsDeleted {
		if html, err := content.RenderMarkdown(message.Content); err == nil {
			message.HTML = html
		}
	}
	h.BroadcastToRoom(conversationID, ServerEvent{Event: EventMessageUpdated, Data: message}, s)
	return nil
}

// HandleFileShared announces a file message that was uploaded through the
// REST API to the rest of the room.
func (h *Hub) HandleFileShared(s *Session, conversationID, messageID string) error {
	message, err := h.verifiedMessage(s, conversationID, messageID)
	if err != nil {
		return err
	}
	if message.Kind != models.MessageFile {
		return models.ErrForbidden
	}
	h.BroadcastToRoom(conversationID, ServerEvent{Event: EventFileReceived, Data: message}, s)
	return nil
}

// HandleConversationUpdated tells the rest of the room to refetch a
// conversation a member changed over REST.
func (h *Hub) HandleConversationUpdated(s *Session, conversationID string) error {
	p, err := h.store.GetParticipant(conversationID, s.userID)
	if err != nil {
		return err
	}
	if !p.Active() {
		return models.ErrForbidden
	}
	h.BroadcastToRoom(conversationID, ServerEvent{Event: EventConversationUpdated, Data: ConversationRef{ConversationID: conversationID}}, s)
	return nil
}

// verifiedMessage loads a stored message and checks that it belongs to
// the claimed conversation and that the session user is an active member.
func (h *Hub) verifiedMessage(s *Session, conversationID, messageID string) (models.Message, error) {
	message, err := h.store.GetMessage(messageID)
	if err != nil {
		return models.Message{}, err
	}
	if message.ConversationID != conversationID {
		return models.Message{}, models.ErrForbidden
	}
	p, err := h.store.GetParticipant(conversationID, s.userID)
	if err != nil {
		return models.Message{}, err
	}
	if !p.Active() {
		return models.Message{}, models.ErrForbidden
	}
	return message, nil
}

// HandleReaction toggles a reaction and broadcasts the resulting reaction
// set of the message.
func (h *Hub) HandleReaction(s *Session, messageID, emoji string) error {
	message, err := h.store.GetMessage(messageID)
	if err != nil {
		return err
	}
	p, err := h.store.GetParticipant(message.ConversationID, s.userID)
	if err != nil {
		return err
	}
	if !p.Active() {
		return models.ErrForbidden
	}

	if _, err := h.store.ToggleReaction(models.Reaction{
		MessageID: messageID,
		UserID:    s.userID,
		Emoji:     emoji,
		CreatedAt: time.Now().Unix(),
	}); err != nil {
		return err
	}

	reactions, err := h.store.ListReactions(messageID)
	if err != nil {
		return err
	}
	h.BroadcastToRoom(message.ConversationID, ServerEvent{
		Event: EventReactionUpdated,
		Data:  ReactionUpdatedPayload{MessageID: messageID, Reactions: reactions},
	}, nil)
	return nil
}

// StartTyping records a typing indicator and broadcasts it on the first
// start. Refreshes are silent; the indicator is already showing. skip is
// the session the indicator came from, nil for REST callers.
func (h *Hub) StartTyping(userID, conversationID string, skip *Session) {
	if fresh := h.typing.Start(userID, conversationID); !fresh {
		return
	}
	h.BroadcastToRoom(conversationID, ServerEvent{
		Event: EventUserTyping,
		Data:  UserTypingPayload{UserID: userID, ConversationID: conversationID},
	}, skip)
}

func (h *Hub) StopTyping(userID, conversationID string, skip *Session) {
	if stopped := h.typing.Stop(userID, conversationID); !stopped {
		return
	}
	h.BroadcastToRoom(conversationID, ServerEvent{
		Event: EventUserStopTyping,
		Data:  UserTypingPayload{UserID: userID, ConversationID: conversationID},
	}, skip)
}

// TypingUsers returns who is currently typing in a conversation.
func (h *Hub) TypingUsers(conversationID string) []string {
	return h.typing.Active(conversationID)
}

// typingExpired is the sweeper callback: the client never sent a stop, so
// the room hears one on their behalf.
func (h *Hub) typingExpired(userID, conversationID string) {
	h.BroadcastToRoom(conversationID, ServerEvent{
		Event: EventUserStopTyping,
		Data:  UserTypingPayload{UserID: userID, ConversationID: conversationID},
	}, nil)
}

// SetStatus applies a user-chosen availability status and broadcasts it.
func (h *Hub) SetStatus(userID string, status models.UserStatus) error {
	if err := h.presence.SetStatus(userID, status); err != nil {
		return err
	}
	h.broadcastPresence(userID)
	return nil
}

// Touch refreshes a user's last-seen timestamp.
func (h *Hub) Touch(userID string) {
	h.presence.Touch(userID)
}

// HandleParticipantAdded enrolls the new participant's live sessions into
// the room and tells the room about the change.
func (h *Hub) HandleParticipantAdded(conversationID, userID string) {
	h.mu.Lock()
	for s := range h.byUser[userID] {
		h.joinRoomLocked(s, conversationID)
	}
	h.mu.Unlock()
	h.audience.Del(userID)

	h.broadcastParticipants(conversationID)
}

// HandleParticipantRemoved evicts the removed participant's sessions from
// the room and tells the remaining members.
func (h *Hub) HandleParticipantRemoved(conversationID, userID string) {
	h.mu.Lock()
	for s := range h.byUser[userID] {
		if room, ok := h.rooms[conversationID]; ok {
			delete(room, s)
			if len(room) == 0 {
				delete(h.rooms, conversationID)
			}
		}
		delete(s.joined, conversationID)
	}
	h.mu.Unlock()
	h.audience.Del(userID)

	h.broadcastParticipants(conversationID)
}

func (h *Hub) broadcastParticipants(conversationID string) {
	participants, err := h.store.ListParticipants(conversationID)
	if err != nil {
		h.log.Error("failed to list participants", "conversation_id", conversationID, "error", err)
		return
	}
	active := participants[:0]
	for _, p := range participants {
		if p.Active() {
			active = append(active, p)
		}
	}
	h.BroadcastToRoom(conversationID, ServerEvent{
		Event: EventParticipantsUpdated,
		Data:  ParticipantsUpdatedPayload{ConversationID: conversationID, Participants: active},
	}, nil)
}

// broadcastPresence tells everyone who might care that a user's presence
// changed: accepted friends and co-participants with a live session.
// Users who opted out of sharing broadcast nothing.
func (h *Hub) broadcastPresence(userID string) {
	if !h.presence.Shares(userID) {
		return
	}
	p := h.presence.Get(userID)
	status := p.Status
	if status == models.StatusInvisible {
		status = models.StatusOffline
	}
	evt := ServerEvent{
		Event: EventUserStatusChange,
		Data:  UserStatusChangePayload{UserID: userID, Status: status, LastSeen: p.LastSeen},
	}
	for _, audienceID := range h.audienceFor(userID) {
		h.SendToUser(audienceID, evt)
	}
}

// Observes reports whether a viewer belongs to a user's presence
// audience: themselves, an accepted friend, or an active co-participant.
func (h *Hub) Observes(viewerID, targetID string) bool {
	if viewerID == targetID {
		return true
	}
	return slices.Contains(h.audienceFor(targetID), viewerID)
}

// SharedTyping returns the conversations a user is typing in that the
// viewer is an active participant of.
func (h *Hub) SharedTyping(viewerID, targetID string) []string {
	shared := make([]string, 0, 2)
	for _, conversationID := range h.typing.TypingIn(targetID) {
		p, err := h.store.GetParticipant(conversationID, viewerID)
		if err == nil && p.Active() {
			shared = append(shared, conversationID)
		}
	}
	return shared
}

// audienceFor computes (with a short cache) the users interested in
// someone's presence: accepted friends plus active co-participants.
func (h *Hub) audienceFor(userID string) []string {
	if cached, err := h.audience.Get(userID); err == nil {
		return cached
	}

	seen := map[string]struct{}{}

	friendships, err := h.store.ListFriendships(userID)
	if err != nil {
		h.log.Error("failed to list friendships", "user_id", userID, "error", err)
	}
	for _, f := range friendships {
		if f.Status == models.FriendAccepted {
			seen[f.Other(userID)] = struct{}{}
		}
	}

	conversationIDs, err := h.store.ConversationIDsForUser(userID)
	if err != nil {
		h.log.Error("failed to list conversations", "user_id", userID, "error", err)
	}
	for _, conversationID := range conversationIDs {
		participants, err := h.store.ListParticipants(conversationID)
		if err != nil {
			h.log.Error("failed to list participants", "conversation_id", conversationID, "error", err)
			continue
		}
		for _, p := range participants {
			if p.Active() {
				seen[p.UserID] = struct{}{}
			}
		}
	}
	delete(seen, userID)

	audience := make([]string, 0, len(seen))
	for id := range seen {
		audience = append(audience, id)
	}
	h.audience.Set(userID, audience)
	return audience
}
