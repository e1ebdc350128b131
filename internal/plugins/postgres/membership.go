package postgres

import (
	"context"
	"database/sql"
)

// FriendshipRepo reads accepted friendships. A friendship row may be stored
// in either direction.
type FriendshipRepo struct {
	db *sql.DB
}

func NewFriendshipRepo(db *sql.DB) *FriendshipRepo {
	return &FriendshipRepo{db: db}
}

func (r *FriendshipRepo) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	var ok bool
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM friends
			WHERE status = 'accepted'
			  AND ((user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1))
		)
	`, a, b).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

type GroupMemberRepo struct {
	db *sql.DB
}

func NewGroupMemberRepo(db *sql.DB) *GroupMemberRepo {
	return &GroupMemberRepo{db: db}
}

func (r *GroupMemberRepo) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var ok bool
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)
	`, groupID, userID).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}
