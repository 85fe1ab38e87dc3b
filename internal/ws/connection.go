package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/content"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 32 << 10
	sendBufferSize = 100
)

type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Session is one websocket connection of one authenticated user. The
// user identity is fixed at creation from the validated token and never
// read from client events.
type Session struct {
	hub    *Hub
	ws     wsConn
	userID string
	send   chan []byte
	// joined is the set of conversation rooms this session is in,
	// guarded by the hub mutex.
	joined map[string]struct{}
	log    *slog.Logger
}

func NewSession(hub *Hub, ws wsConn, userID string, log *slog.Logger) *Session {
	return &Session{
		hub:    hub,
		ws:     ws,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		joined: make(map[string]struct{}),
		log:    log.With("user_id", userID),
	}
}

// Run registers the session with the hub and pumps the connection until
// either side drops.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.hub.Register(s)
	defer s.hub.Unregister(s)

	errorCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Go(func() {
		errorCh <- s.readPump()
		cancel()
	})

	wg.Go(func() {
		errorCh <- s.writePump(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-errorCh:
	case <-ctx.Done():
	}
	s.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) &&
		!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return err
	}
	return nil
}

// Close tears down the underlying connection, which unwinds Run.
func (s *Session) Close() {
	if s.ws != nil {
		_ = s.ws.Close()
	}
}

func (s *Session) readPump() error {
	s.ws.SetReadLimit(maxMessageSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return err
		}
		s.handleEvent(data)
	}
}

func (s *Session) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// enqueue hands an event to the session's write pump. A slow consumer
// with a full buffer loses the event rather than blocking the sender.
func (s *Session) enqueue(evt ServerEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.log.Error("failed to marshal event", "event", evt.Event, "error", err)
		return
	}
	select {
	case s.send <- data:
	default:
		s.log.Warn("send buffer full, dropping event", "event", evt.Event)
	}
}

func (s *Session) handleEvent(data []byte) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.sendError("malformed event")
		return
	}

	switch envelope.Event {
	// The session identity was bound from the validated token at upgrade;
	// the event is accepted for client compatibility and carries no
	// authority.
	case EventAuthenticate:

	case EventJoinConversation:
		var payload ConversationRef
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ConversationID == "" {
			s.sendError("malformed event")
			return
		}
		if err := s.hub.JoinConversation(s, payload.ConversationID); err != nil {
			s.sendError("not a participant of this conversation")
		}

	case EventLeaveConversation:
		var payload ConversationRef
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ConversationID == "" {
			s.sendError("malformed event")
			return
		}
		s.hub.LeaveConversation(s, payload.ConversationID)

	case EventNewMessage:
		var payload NewMessagePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ConversationID == "" || payload.Content == "" {
			s.sendError("malformed event")
			return
		}
		message := models.Message{
			ID:             uuid.NewString(),
			ConversationID: payload.ConversationID,
			SenderID:       s.userID,
			Kind:           models.MessageText,
			Content:        content.Sanitize(payload.Content),
			ParentID:       payload.ParentID,
			CreatedAt:      time.Now().UnixNano(),
		}
		if err := s.hub.HandleNewMessage(s, message); err != nil {
			s.log.Warn("failed to handle message", "conversation_id", payload.ConversationID, "error", err)
			s.sendError("failed to send message")
		}

	case EventMessageRead:
		var payload MessageReadPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ConversationID == "" {
			s.sendError("malformed event")
			return
		}
		payload.UserID = s.userID
		s.hub.BroadcastToRoom(payload.ConversationID, ServerEvent{Event: EventMessageRead, Data: payload}, s)

	case EventMessageReaction:
		var payload ReactionPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.MessageID == "" || payload.Emoji == "" {
			s.sendError("malformed event")
			return
		}
		if err := s.hub.HandleReaction(s, payload.MessageID, payload.Emoji); err != nil {
			s.sendError("failed to toggle reaction")
		}

	case EventTypingStart:
		var payload TypingPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ConversationID == "" {
			s.sendError("malformed event")
			return
		}
		s.hub.StartTyping(s.userID, payload.ConversationID, s)

	case EventTypingStop:
		var payload TypingPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ConversationID == "" {
			s.sendError("malformed event")
			return
		}
		s.hub.StopTyping(s.userID, payload.ConversationID, s)

	case EventStatusChange:
		var payload StatusChangePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			s.sendError("malformed event")
			return
		}
		if err := s.hub.SetStatus(s.userID, payload.Status); err != nil {
			s.sendError("invalid status")
		}

	case EventUserActivity:
		s.hub.Touch(s.userID)

	// Edits, file shares, and conversation changes are persisted through
	// the REST API; these events re-announce the stored record to the
	// rest of the room.
	case EventMessageUpdated:
		var payload MessageRef
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ConversationID == "" || payload.MessageID == "" {
			s.sendError("malformed event")
			return
		}
		if err := s.hub.HandleMessageUpdated(s, payload.ConversationID, payload.MessageID); err != nil {
			s.sendError("unknown message")
		}

	case EventFileShared:
		var payload MessageRef
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ConversationID == "" || payload.MessageID == "" {
			s.sendError("malformed event")
			return
		}
		if err := s.hub.HandleFileShared(s, payload.ConversationID, payload.MessageID); err != nil {
			s.sendError("unknown file message")
		}

	case EventConversationUpdated:
		var payload ConversationRef
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ConversationID == "" {
			s.sendError("malformed event")
			return
		}
		if err := s.hub.HandleConversationUpdated(s, payload.ConversationID); err != nil {
			s.sendError("not a participant of this conversation")
		}

	// Participant changes are persisted through the REST API; the socket
	// events only ask the hub to re-sync rooms, and are verified against
	// storage before anything happens.
	case EventParticipantAdded:
		var payload ParticipantPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ConversationID == "" || payload.UserID == "" {
			s.sendError("malformed event")
			return
		}
		if p, err := s.hub.store.GetParticipant(payload.ConversationID, payload.UserID); err != nil || !p.Active() {
			s.sendError("not a participant of this conversation")
			return
		}
		s.hub.HandleParticipantAdded(payload.ConversationID, payload.UserID)

	case EventParticipantRemove:
		var payload ParticipantPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ConversationID == "" || payload.UserID == "" {
			s.sendError("malformed event")
			return
		}
		if p, err := s.hub.store.GetParticipant(payload.ConversationID, payload.UserID); err == nil && p.Active() {
			s.sendError("still a participant of this conversation")
			return
		}
		s.hub.HandleParticipantRemoved(payload.ConversationID, payload.UserID)

	case EventNotificationSent:
		var payload NotificationPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.UserID == "" {
			s.sendError("malformed event")
			return
		}
		n := payload.Notification
		n.UserID = payload.UserID
		n.SenderID = s.userID
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt == 0 {
			n.CreatedAt = time.Now().Unix()
		}
		s.hub.NotifyUser(n)

	default:
		s.log.Debug("unknown event", "event", envelope.Event)
	}
}

func (s *Session) sendError(message string) {
	s.enqueue(ServerEvent{Event: EventError, Data: ErrorPayload{Message: message}})
}
