package ws

import (
	"encoding/json"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"
)

// Client-to-server event names. Message updates, file shares, and
// conversation updates reuse the server-side names: clients re-announce
// a REST-persisted change under the same event.
const (
	EventAuthenticate      = "authenticate"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventNewMessage        = "new_message"
	EventMessageRead       = "message_read"
	EventMessageReaction   = "message_reaction"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventStatusChange      = "status_change"
	EventUserActivity      = "user_activity"
	EventParticipantAdded  = "participant_added"
	EventParticipantRemove = "participant_removed"
	EventNotificationSent  = "notification_sent"
	EventFileShared        = "file_shared"
)

// Server-to-client event names.
const (
	EventMessageReceived     = "message_received"
	EventFileReceived        = "file_received"
	EventMessageUpdated      = "message_updated"
	EventReactionUpdated     = "reaction_updated"
	EventUserTyping          = "user_typing"
	EventUserStopTyping      = "user_stop_typing"
	EventUserStatusChange    = "user_status_change"
	EventParticipantsUpdated = "participants_updated"
	EventConversationUpdated = "conversation_updated"
	EventNewNotification     = "new_notification"
	EventError               = "error"
)

// Envelope is the wire frame for client events.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is the wire frame for server events.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

type MessageRef struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type NewMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	ParentID       string `json:"parentId,omitempty"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type ReactionUpdatedPayload struct {
	MessageID string            `json:"messageId"`
	Reactions []models.Reaction `json:"reactions"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
}

type UserTypingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type StatusChangePayload struct {
	Status models.UserStatus `json:"status"`
}

type UserStatusChangePayload struct {
	UserID   string            `json:"userId"`
	Status   models.UserStatus `json:"status"`
	LastSeen int64             `json:"lastSeen,omitempty"`
}

type ParticipantPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type ParticipantsUpdatedPayload struct {
	ConversationID string               `json:"conversationId"`
	Participants   []models.Participant `json:"participants"`
}

type NotificationPayload struct {
	UserID       string              `json:"userId"`
	Notification models.Notification `json:"notification"`
}

type MessageReadPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	UserID         string `json:"userId,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
