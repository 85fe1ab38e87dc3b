package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID           string `msgpack:"id"`
	UserName     string `msgpack:"userName"`
	DisplayName  string `msgpack:"displayName"`
	AvatarURL    string `msgpack:"avatarUrl"`
	Status       string `msgpack:"status"`
	LastSeen     int64  `msgpack:"lastSeen"`
	ShareStatus  bool   `msgpack:"shareStatus"`
	Account      string `msgpack:"account"`
	PasswordHash string `msgpack:"passwordHash"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBToken struct {
	UserID string `msgpack:"userId"`
	Token  string `msgpack:"token"`
}

func (t *DBToken) Key() []byte {
	return []byte(t.Token)
}

func (t *DBToken) MarshalBinary() (data []byte, err error) {
	type alias DBToken
	return msgpack.Marshal((*alias)(t))
}

func (t *DBToken) UnmarshalBinary(data []byte) error {
	type alias DBToken
	return msgpack.Unmarshal(data, (*alias)(t))
}

type DBConversation struct {
	ID            string `msgpack:"id"`
	Name          string `msgpack:"name"`
	IsGroup       bool   `msgpack:"isGroup"`
	IsArchived    bool   `msgpack:"isArchived"`
	IsPinned      bool   `msgpack:"isPinned"`
	CreatedAt     int64  `msgpack:"createdAt"`
	LastMessageAt int64  `msgpack:"lastMessageAt"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

// DBParticipant lives in a nested bucket per conversation, keyed by user id.
type DBParticipant struct {
	ConversationID string `msgpack:"conversationId"`
	UserID         string `msgpack:"userId"`
	IsAdmin        bool   `msgpack:"isAdmin"`
	JoinedAt       int64  `msgpack:"joinedAt"`
	LeftAt         int64  `msgpack:"leftAt"`
}

func (p *DBParticipant) Key() []byte {
	return []byte(p.UserID)
}

func (p *DBParticipant) MarshalBinary() (data []byte, err error) {
	type alias DBParticipant
	return msgpack.Marshal((*alias)(p))
}

func (p *DBParticipant) UnmarshalBinary(data []byte) error {
	type alias DBParticipant
	return msgpack.Unmarshal(data, (*alias)(p))
}

// DBMessage lives in a nested bucket per conversation. The key is the
// big-endian creation timestamp followed by the message id, which keeps
// cursor scans in chronological order and unique.
type DBMessage struct {
	ID             string `msgpack:"id"`
	ConversationID string `msgpack:"conversationId"`
	SenderID       string `msgpack:"senderId"`
	Kind           string `msgpack:"kind"`
	Content        string `msgpack:"content"`
	ParentID       string `msgpack:"parentId"`
	FileID         string `msgpack:"fileId"`
	CreatedAt      int64  `msgpack:"createdAt"`
	EditedAt       int64  `msgpack:"editedAt"`
	IsPinned       bool   `msgpack:"isPinned"`
	IsDeleted      bool   `msgpack:"isDeleted"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8, 8+len(m.ID))
	binary.BigEndian.PutUint64(key, uint64(m.CreatedAt))
	return append(key, m.ID...)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

// DBMessageRef maps a message id to its conversation and creation time so
// the full record can be located without scanning.
type DBMessageRef struct {
	MessageID      string `msgpack:"messageId"`
	ConversationID string `msgpack:"conversationId"`
	CreatedAt      int64  `msgpack:"createdAt"`
}

func (r *DBMessageRef) Key() []byte {
	return []byte(r.MessageID)
}

func (r *DBMessageRef) MarshalBinary() (data []byte, err error) {
	type alias DBMessageRef
	return msgpack.Marshal((*alias)(r))
}

func (r *DBMessageRef) UnmarshalBinary(data []byte) error {
	type alias DBMessageRef
	return msgpack.Unmarshal(data, (*alias)(r))
}

// DBReaction lives in a nested bucket per message, keyed by user id and
// emoji, which enforces the at-most-one invariant structurally.
type DBReaction struct {
	MessageID string `msgpack:"messageId"`
	UserID    string `msgpack:"userId"`
	Emoji     string `msgpack:"emoji"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (r *DBReaction) Key() []byte {
	return []byte(r.UserID + "\x00" + r.Emoji)
}

func (r *DBReaction) MarshalBinary() (data []byte, err error) {
	type alias DBReaction
	return msgpack.Marshal((*alias)(r))
}

func (r *DBReaction) UnmarshalBinary(data []byte) error {
	type alias DBReaction
	return msgpack.Unmarshal(data, (*alias)(r))
}

// DBNotification lives in a nested bucket per recipient, keyed by
// big-endian creation timestamp plus id.
type DBNotification struct {
	ID             string `msgpack:"id"`
	UserID         string `msgpack:"userId"`
	Type           string `msgpack:"type"`
	Title          string `msgpack:"title"`
	Content        string `msgpack:"content"`
	SenderID       string `msgpack:"senderId"`
	MessageID      string `msgpack:"messageId"`
	ConversationID string `msgpack:"conversationId"`
	IsRead         bool   `msgpack:"isRead"`
	CreatedAt      int64  `msgpack:"createdAt"`
}

func (n *DBNotification) Key() []byte {
	key := make([]byte, 8, 8+len(n.ID))
	binary.BigEndian.PutUint64(key, uint64(n.CreatedAt))
	return append(key, n.ID...)
}

func (n *DBNotification) MarshalBinary() (data []byte, err error) {
	type alias DBNotification
	return msgpack.Marshal((*alias)(n))
}

func (n *DBNotification) UnmarshalBinary(data []byte) error {
	type alias DBNotification
	return msgpack.Unmarshal(data, (*alias)(n))
}

// DBFriendship is stored once per unordered user pair.
type DBFriendship struct {
	RequesterID string `msgpack:"requesterId"`
	AddresseeID string `msgpack:"addresseeId"`
	Status      string `msgpack:"status"`
	CreatedAt   int64  `msgpack:"createdAt"`
	AcceptedAt  int64  `msgpack:"acceptedAt"`
}

func (f *DBFriendship) Key() []byte {
	return pairKey(f.RequesterID, f.AddresseeID)
}

func (f *DBFriendship) MarshalBinary() (data []byte, err error) {
	type alias DBFriendship
	return msgpack.Marshal((*alias)(f))
}

func (f *DBFriendship) UnmarshalBinary(data []byte) error {
	type alias DBFriendship
	return msgpack.Unmarshal(data, (*alias)(f))
}

// pairKey builds a canonical key for an unordered user pair.
func pairKey(a, b string) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte(a + "\x00" + b)
}

// DBPushSubscription lives in a nested bucket per user, keyed by endpoint.
type DBPushSubscription struct {
	UserID    string `msgpack:"userId"`
	Endpoint  string `msgpack:"endpoint"`
	P256dh    string `msgpack:"p256dh"`
	Auth      string `msgpack:"auth"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (p *DBPushSubscription) Key() []byte {
	return []byte(p.Endpoint)
}

func (p *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(p))
}

func (p *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(p))
}
