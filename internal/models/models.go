package models

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrInvalidStatus = errors.New("invalid status")
)

// UserStatus is a user's availability status.
type UserStatus string

const (
	StatusOnline    UserStatus = "ONLINE"
	StatusAway      UserStatus = "AWAY"
	StatusBusy      UserStatus = "BUSY"
	StatusOffline   UserStatus = "OFFLINE"
	StatusInvisible UserStatus = "INVISIBLE"
)

// ValidStatus reports whether s is one of the known availability statuses.
func ValidStatus(s UserStatus) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline, StatusInvisible:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountCreated AccountStatus = "created"
	AccountActive  AccountStatus = "active"
	AccountDeleted AccountStatus = "deleted"
)

// User represents a user in the system.
type User struct {
	ID          string        `json:"id"`
	UserName    string        `json:"userName"`
	DisplayName string        `json:"displayName"`
	AvatarURL   string        `json:"avatarUrl"`
	Presence    Presence      `json:"presence"`
	ShareStatus bool          `json:"shareStatus"`
	Account     AccountStatus `json:"-"`
}

// Presence is a user's availability status plus last-seen timestamp.
// LastSeen is zero while the user is connected.
type Presence struct {
	Status   UserStatus `json:"status"`
	LastSeen int64      `json:"lastSeen,omitempty"` // Unix timestamp (seconds)
}

// Conversation is a direct or group chat. Conversations are never deleted,
// only archived.
type Conversation struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	IsGroup       bool   `json:"isGroup"`
	IsArchived    bool   `json:"isArchived"`
	IsPinned      bool   `json:"isPinned"`
	CreatedAt     int64  `json:"createdAt"`
	LastMessageAt int64  `json:"lastMessageAt,omitempty"`
}

// Participant links a user to a conversation. LeftAt marks soft removal;
// a user has at most one participant record per conversation and it is
// reused when they are re-added.
type Participant struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsAdmin        bool   `json:"isAdmin"`
	JoinedAt       int64  `json:"joinedAt"`
	LeftAt         int64  `json:"leftAt,omitempty"`
}

// Active reports whether the participant currently belongs to the conversation.
func (p Participant) Active() bool {
	return p.LeftAt == 0
}

type MessageKind string

const (
	MessageText MessageKind = "text"
	MessageFile MessageKind = "file"
)

// Message belongs to exactly one conversation and one sender. Content,
// pinned and deleted are mutable by the sender only.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	Kind           MessageKind `json:"kind"`
	Content        string      `json:"content"`
	ParentID       string      `json:"parentId,omitempty"`
	FileID         string      `json:"fileId,omitempty"`
	CreatedAt      int64       `json:"createdAt"` // Unix nanoseconds, also the storage sort key
	EditedAt       int64       `json:"editedAt,omitempty"`
	IsPinned       bool        `json:"isPinned"`
	IsDeleted      bool        `json:"isDeleted"`

	// HTML is the rendered markdown of Content. It is derived on the way
	// out and never stored.
	HTML string `json:"html,omitempty"`
}

// Reaction is a (message, user, emoji) triple. At most one exists per
// triple; adding an identical one toggles removal.
type Reaction struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji"`
	CreatedAt int64  `json:"createdAt"`
}

type NotificationType string

const (
	NotifFriendRequest  NotificationType = "SENT_FRIEND_REQUEST"
	NotifFriendAccepted NotificationType = "FRIEND_REQUEST_ACCEPTED"
	NotifNewMessage     NotificationType = "NEW_MESSAGE"
	NotifMention        NotificationType = "MENTION"
	NotifGroupInvite    NotificationType = "GROUP_INVITE"
)

type Notification struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title,omitempty"`
	Content        string           `json:"content,omitempty"`
	SenderID       string           `json:"senderId,omitempty"`
	MessageID      string           `json:"messageId,omitempty"`
	ConversationID string           `json:"conversationId,omitempty"`
	IsRead         bool             `json:"isRead"`
	CreatedAt      int64            `json:"createdAt"`
}

type FriendshipStatus string

const (
	FriendPending  FriendshipStatus = "PENDING"
	FriendAccepted FriendshipStatus = "ACCEPTED"
	FriendBlocked  FriendshipStatus = "BLOCKED"
)

// Friendship is stored once per unordered user pair. RequesterID records
// who initiated the request.
type Friendship struct {
	RequesterID string           `json:"requesterId"`
	AddresseeID string           `json:"addresseeId"`
	Status      FriendshipStatus `json:"status"`
	CreatedAt   int64            `json:"createdAt"`
	AcceptedAt  int64            `json:"acceptedAt,omitempty"`
}

// Other returns the peer of userID in the friendship pair.
func (f Friendship) Other(userID string) string {
	if f.RequesterID == userID {
		return f.AddresseeID
	}
	return f.RequesterID
}

// PushSubscription is a web-push endpoint registered by one of a user's
// browsers.
type PushSubscription struct {
	UserID    string `json:"userId"`
	Endpoint  string `json:"endpoint"`
	P256dh    string `json:"p256dh"`
	Auth      string `json:"auth"`
	CreatedAt int64  `json:"createdAt"`
}

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
