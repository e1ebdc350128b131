package domain

import (
	"context"
	"time"
)

// UserRepository resolves identities owned by the user service.
type UserRepository interface {
	GetUserByID(ctx context.Context, id int64) (*User, error)
}

// FriendshipRepository answers whether two users hold an accepted friendship.
type FriendshipRepository interface {
	AreFriends(ctx context.Context, a, b int64) (bool, error)
}

type GroupMembershipRepository interface {
	IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error)
}

// PrivateMessageRepository is the message store for private conversations.
// Loaded messages carry their reply target expanded one level deep.
type PrivateMessageRepository interface {
	CreateMessage(ctx context.Context, in NewPrivateMessage) (*PrivateMessage, error)
	GetMessage(ctx context.Context, id int64) (*PrivateMessage, error)
	// ValidateReplyTarget returns ErrMessageNotFound or ErrWrongConversation
	// when replyToID is not a message exchanged between a and b.
	ValidateReplyTarget(ctx context.Context, replyToID, a, b int64) (*PrivateMessage, error)
	// MarkRead reports false when the message is absent or not addressed to readerID.
	MarkRead(ctx context.Context, id, readerID int64) (readAt time.Time, ok bool, err error)
	UpdateContent(ctx context.Context, id int64, content string) (time.Time, error)
	DeleteMessage(ctx context.Context, id, requesterID int64) (*PrivateMessage, error)
}

// GroupMessageRepository is the message store for group channels.
type GroupMessageRepository interface {
	CreateMessage(ctx context.Context, in NewGroupMessage) (*GroupMessage, error)
	GetMessage(ctx context.Context, id int64) (*GroupMessage, error)
	ValidateReplyTarget(ctx context.Context, replyToID, groupID int64) (*GroupMessage, error)
	// RecordSeen is idempotent: a second call reports already=true and the
	// original seen time.
	RecordSeen(ctx context.Context, id, userID int64) (already bool, seenAt time.Time, err error)
	UpdateContent(ctx context.Context, id int64, content string) (time.Time, error)
	UpdateMedia(ctx context.Context, id int64, media MediaMeta, kind MessageType) (*GroupMessage, error)
	DeleteMessage(ctx context.Context, id, requesterID int64) (*GroupMessage, error)
	// MediaReferences counts the messages pointing at publicID. Forwarded
	// copies share their source's object.
	MediaReferences(ctx context.Context, publicID string) (int, error)
}

// Transactor runs fn inside one store transaction. A non-nil error from fn
// rolls back every write made through the context it received.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
