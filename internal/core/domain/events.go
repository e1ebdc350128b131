package domain

import (
	"time"
)

// Outbound event discriminators.
const (
	EventMessage        = "message"
	EventReadReceipt    = "read_receipt"
	EventTyping         = "typing"
	EventMessageDeleted = "message_deleted"
	EventMessageUpdated = "message_updated"
	EventMessageSeen    = "message_seen"
	EventForwarded      = "forwarded"
	EventFileUpload     = "file_upload"
	EventFileUpdate     = "file_update"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventOnlineUsers    = "online_users"
	EventError          = "error"
	EventPing           = "ping"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp is a point in time that always serialises as UTC with a
// literal Z suffix.
type Timestamp time.Time

func NewTimestamp(t time.Time) Timestamp { return Timestamp(t) }

func TimestampPtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := Timestamp(*t)
	return &ts
}

func (t Timestamp) Time() time.Time { return time.Time(t) }

func (t Timestamp) String() string {
	return time.Time(t).UTC().Format(timestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	parsed, err := time.Parse(`"`+time.RFC3339Nano+`"`, string(b))
	if err != nil {
		return err
	}
	*t = Timestamp(parsed.UTC())
	return nil
}

// Author is the public view of a user inside an event.
type Author struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func AuthorOf(u User) Author {
	return Author{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

// MessagePreview is the compact, one level deep rendering of a replied-to or
// forwarded-from message.
type MessagePreview struct {
	ID          int64       `json:"id"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	FileURL     string      `json:"file_url,omitempty"`
	Sender      Author      `json:"sender"`
}

type PrivateMessageEvent struct {
	Type             string          `json:"type"`
	ID               int64           `json:"id"`
	SenderID         int64           `json:"sender_id"`
	SenderUsername   string          `json:"sender_username"`
	ReceiverID       int64           `json:"receiver_id"`
	ReceiverUsername string          `json:"receiver_username"`
	Content          string          `json:"content"`
	MessageType      MessageType     `json:"message_type"`
	IsRead           bool            `json:"is_read"`
	ReadAt           *Timestamp      `json:"read_at,omitempty"`
	ReplyToID        *int64          `json:"reply_to_id"`
	ReplyTo          *MessagePreview `json:"reply_to"`
	FileURL          string          `json:"file_url,omitempty"`
	VoiceDuration    *float64        `json:"voice_duration,omitempty"`
	FileSize         *int64          `json:"file_size,omitempty"`
	TempID           string          `json:"temp_id,omitempty"`
	CreatedAt        Timestamp       `json:"created_at"`
	UpdatedAt        Timestamp       `json:"updated_at"`
}

type GroupMessageEvent struct {
	Type          string          `json:"type"`
	ID            int64           `json:"id"`
	GroupID       int64           `json:"group_id"`
	Sender        Author          `json:"sender"`
	ForwardedBy   *Author         `json:"forwarded_by,omitempty"`
	ForwardedAt   *Timestamp      `json:"forwarded_at,omitempty"`
	Content       string          `json:"content"`
	MessageType   MessageType     `json:"message_type"`
	FileURL       string          `json:"file_url,omitempty"`
	VoiceDuration *float64        `json:"voice_duration,omitempty"`
	FileSize      *int64          `json:"file_size,omitempty"`
	ReplyToID     *int64          `json:"reply_to_id,omitempty"`
	ReplyTo       *MessagePreview `json:"reply_to_message,omitempty"`
	ParentMessage *MessagePreview `json:"parent_message,omitempty"`
	TempID        string          `json:"temp_id,omitempty"`
	CreatedAt     Timestamp       `json:"created_at"`
	UpdatedAt     *Timestamp      `json:"updated_at,omitempty"`
}

type ReadReceiptEvent struct {
	Type      string    `json:"type"`
	MessageID int64     `json:"message_id"`
	IsRead    bool      `json:"is_read"`
	ReadBy    int64     `json:"read_by"`
	ReadAt    Timestamp `json:"read_at"`
}

func NewReadReceipt(messageID, readBy int64, at time.Time) ReadReceiptEvent {
	return ReadReceiptEvent{Type: EventReadReceipt, MessageID: messageID, IsRead: true, ReadBy: readBy, ReadAt: Timestamp(at)}
}

type TypingEvent struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

func NewTyping(u User, typing bool) TypingEvent {
	return TypingEvent{Type: EventTyping, UserID: u.ID, Username: u.Username, IsTyping: typing}
}

type MessageDeletedEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	DeletedBy int64  `json:"deleted_by"`
}

func NewMessageDeleted(messageID, by int64) MessageDeletedEvent {
	return MessageDeletedEvent{Type: EventMessageDeleted, MessageID: messageID, DeletedBy: by}
}

type MessageUpdatedEvent struct {
	Type      string    `json:"type"`
	MessageID int64     `json:"message_id"`
	Content   string    `json:"content"`
	UpdatedAt Timestamp `json:"updated_at"`
}

func NewMessageUpdated(messageID int64, content string, at time.Time) MessageUpdatedEvent {
	return MessageUpdatedEvent{Type: EventMessageUpdated, MessageID: messageID, Content: content, UpdatedAt: Timestamp(at)}
}

type MessageSeenEvent struct {
	Type      string    `json:"type"`
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	SeenAt    Timestamp `json:"seen_at"`
}

func NewMessageSeen(messageID, userID int64, at time.Time) MessageSeenEvent {
	return MessageSeenEvent{Type: EventMessageSeen, MessageID: messageID, UserID: userID, SeenAt: Timestamp(at)}
}

// ForwardedEvent acknowledges a forward to the requesting connection only.
type ForwardedEvent struct {
	Type        string  `json:"type"`
	MessageID   int64   `json:"message_id"`
	ForwardedTo []int64 `json:"forwarded_to"`
	Failed      []int64 `json:"failed"`
}

// FileEvent announces a completed out-of-band upload.
type FileEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	FileURL   string `json:"file_url"`
	TempID    string `json:"temp_id,omitempty"`
	Message   any    `json:"message"`
}

type PresenceEvent struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
}

func UserOnline(userID int64) PresenceEvent {
	return PresenceEvent{Type: EventUserOnline, UserID: userID}
}

func UserOffline(userID int64) PresenceEvent {
	return PresenceEvent{Type: EventUserOffline, UserID: userID}
}

type OnlineUsersEvent struct {
	Type    string  `json:"type"`
	UserIDs []int64 `json:"user_ids"`
}

func NewOnlineUsers(ids []int64) OnlineUsersEvent {
	if ids == nil {
		ids = []int64{}
	}
	return OnlineUsersEvent{Type: EventOnlineUsers, UserIDs: ids}
}

// ErrorEvent is the in-band answer to a rejected or failed frame.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewError(code, message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Code: code, Message: message}
}

type PingEvent struct {
	Type string `json:"type"`
}

func NewPing() PingEvent { return PingEvent{Type: EventPing} }
