// Package memory holds in-process implementations of every store the chat
// core consumes. It backs STORE_DRIVER=memory and the test suites.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"whisper/internal/core/domain"
)

type txKeyType struct{}

var txKey = txKeyType{}

// Store is the shared state behind the user, friendship, membership and
// message repositories.
type Store struct {
	mu      sync.Mutex
	txMu    sync.Mutex
	nextID  int64
	users   map[int64]domain.User
	friends map[[2]int64]bool
	members map[int64]map[int64]bool
	private map[int64]domain.PrivateMessage
	group   map[int64]domain.GroupMessage
	seen    map[[2]int64]time.Time
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:   make(map[int64]domain.User),
		friends: make(map[[2]int64]bool),
		members: make(map[int64]map[int64]bool),
		private: make(map[int64]domain.PrivateMessage),
		group:   make(map[int64]domain.GroupMessage),
		seen:    make(map[[2]int64]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AddUser seeds a user.
func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// AddFriendship seeds an accepted friendship between a and b.
func (s *Store) AddFriendship(a, b int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends[pair(a, b)] = true
}

// AddMember seeds a group membership.
func (s *Store) AddMember(groupID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[groupID] == nil {
		s.members[groupID] = make(map[int64]bool)
	}
	s.members[groupID][userID] = true
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) AreFriends(_ context.Context, a, b int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.friends[pair(a, b)], nil
}

func (s *Store) IsGroupMember(_ context.Context, groupID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[groupID][userID], nil
}

// WithTx serialises transactions and restores the message tables if fn
// fails. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := snapshot{
		nextID:  s.nextID,
		private: maps.Clone(s.private),
		group:   maps.Clone(s.group),
		seen:    maps.Clone(s.seen),
	}
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey, true)); err != nil {
		s.mu.Lock()
		s.nextID = snap.nextID
		s.private = snap.private
		s.group = snap.group
		s.seen = snap.seen
		s.mu.Unlock()
		return err
	}
	return nil
}

// Private returns the private message repository.
func (s *Store) Private() *PrivateMessages {
	return &PrivateMessages{s: s}
}

// Group returns the group message repository.
func (s *Store) Group() *GroupMessages {
	return &GroupMessages{s: s}
}

type snapshot struct {
	nextID  int64
	private map[int64]domain.PrivateMessage
	group   map[int64]domain.GroupMessage
	seen    map[[2]int64]time.Time
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func pair(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}
