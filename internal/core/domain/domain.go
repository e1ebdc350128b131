package domain

import (
	"time"
)

// User is the identity resolved from a credential. Profile data is owned by
// the user service; the chat core only reads it.
type User struct {
	ID        int64
	Username  string
	AvatarURL string
}

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
	MessageVoice MessageType = "voice"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageVoice:
		return true
	}
	return false
}

// IsMedia reports whether the message carries a media store reference.
func (t MessageType) IsMedia() bool {
	return t == MessageImage || t == MessageFile || t == MessageVoice
}

// MediaMeta is the media store reference attached to a message.
type MediaMeta struct {
	FileURL       string
	PublicID      string
	ResourceType  string
	VoiceDuration *float64
	FileSize      *int64
}

func (m MediaMeta) Empty() bool {
	return m.FileURL == "" && m.PublicID == ""
}

// PrivateMessage is a message between two friends. ReplyTo is expanded at
// most one level deep by the store.
type PrivateMessage struct {
	ID               int64
	SenderID         int64
	ReceiverID       int64
	SenderUsername   string
	ReceiverUsername string
	Content          string
	Type             MessageType
	IsRead           bool
	ReadAt           *time.Time
	ReplyToID        *int64
	ReplyTo          *PrivateMessage
	Media            MediaMeta
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// InConversation reports whether the message was exchanged between a and b.
func (m *PrivateMessage) InConversation(a, b int64) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

type NewPrivateMessage struct {
	SenderID   int64
	ReceiverID int64
	Content    string
	Type       MessageType
	ReplyToID  *int64
	Media      MediaMeta
}

// GroupMessage is a message posted to a group. A forwarded message keeps the
// original author in Sender and the forwarding actor in ForwardedBy; Parent
// points at the source message, expanded one level.
type GroupMessage struct {
	ID              int64
	GroupID         int64
	Sender          User
	ForwardedBy     *User
	ForwardedAt     *time.Time
	ParentMessageID *int64
	Parent          *GroupMessage
	ReplyToID       *int64
	ReplyTo         *GroupMessage
	Content         string
	Type            MessageType
	Media           MediaMeta
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// OwnerID is the user allowed to edit or delete the message: the forwarder
// for forwarded copies, the author otherwise.
func (m *GroupMessage) OwnerID() int64 {
	if m.ForwardedBy != nil {
		return m.ForwardedBy.ID
	}
	return m.Sender.ID
}

type NewGroupMessage struct {
	GroupID         int64
	SenderID        int64
	ForwardedByID   *int64
	ParentMessageID *int64
	ReplyToID       *int64
	Content         string
	Type            MessageType
	Media           MediaMeta
}

// MediaUpload describes a binary handed to the media store.
type MediaUpload struct {
	Data         []byte
	Filename     string
	Folder       string
	PublicID     string
	ResourceType string
}

// MediaRef is what the media store returns for a stored object.
type MediaRef struct {
	URL          string
	PublicID     string
	ResourceType string
	Bytes        int64
}
