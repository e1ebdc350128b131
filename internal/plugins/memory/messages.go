package memory

import (
	"context"
	"time"

	"whisper/internal/core/domain"
)

type PrivateMessages struct {
	s *Store
}

func (r *PrivateMessages) CreateMessage(_ context.Context, in domain.NewPrivateMessage) (*domain.PrivateMessage, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	m := domain.PrivateMessage{
		ID:               s.id(),
		SenderID:         in.SenderID,
		ReceiverID:       in.ReceiverID,
		SenderUsername:   s.users[in.SenderID].Username,
		ReceiverUsername: s.users[in.ReceiverID].Username,
		Content:          in.Content,
		Type:             in.Type,
		ReplyToID:        in.ReplyToID,
		Media:            in.Media,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.private[m.ID] = m
	return r.expandLocked(m), nil
}

func (r *PrivateMessages) GetMessage(_ context.Context, id int64) (*domain.PrivateMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.private[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return r.expandLocked(m), nil
}

func (r *PrivateMessages) ValidateReplyTarget(_ context.Context, replyToID, a, b int64) (*domain.PrivateMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.private[replyToID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	if !m.InConversation(a, b) {
		return nil, domain.ErrWrongConversation
	}
	return &m, nil
}

func (r *PrivateMessages) MarkRead(_ context.Context, id, readerID int64) (time.Time, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.private[id]
	if !ok || m.ReceiverID != readerID {
		return time.Time{}, false, nil
	}
	if m.ReadAt == nil {
		now := r.s.now()
		m.ReadAt = &now
	}
	m.IsRead = true
	r.s.private[id] = m
	return *m.ReadAt, true, nil
}

func (r *PrivateMessages) UpdateContent(_ context.Context, id int64, content string) (time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.private[id]
	if !ok {
		return time.Time{}, domain.ErrMessageNotFound
	}
	m.Content = content
	m.UpdatedAt = r.s.now()
	r.s.private[id] = m
	return m.UpdatedAt, nil
}

func (r *PrivateMessages) DeleteMessage(_ context.Context, id, requesterID int64) (*domain.PrivateMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.private[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	if m.SenderID != requesterID {
		return nil, domain.ErrNotMessageOwner
	}
	delete(r.s.private, id)
	for k, other := range r.s.private {
		if other.ReplyToID != nil && *other.ReplyToID == id {
			other.ReplyToID = nil
			r.s.private[k] = other
		}
	}
	return &m, nil
}

// Count reports how many private messages are stored.
func (r *PrivateMessages) Count() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.private)
}

func (r *PrivateMessages) expandLocked(m domain.PrivateMessage) *domain.PrivateMessage {
	if m.ReplyToID != nil {
		if reply, ok := r.s.private[*m.ReplyToID]; ok {
			m.ReplyTo = &reply
		}
	}
	return &m
}

type GroupMessages struct {
	s *Store
}

func (r *GroupMessages) CreateMessage(_ context.Context, in domain.NewGroupMessage) (*domain.GroupMessage, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	sender, ok := s.users[in.SenderID]
	if !ok {
		sender = domain.User{ID: in.SenderID}
	}
	m := domain.GroupMessage{
		ID:              s.id(),
		GroupID:         in.GroupID,
		Sender:          sender,
		ParentMessageID: in.ParentMessageID,
		ReplyToID:       in.ReplyToID,
		Content:         in.Content,
		Type:            in.Type,
		Media:           in.Media,
		CreatedAt:       s.now(),
	}
	if in.ForwardedByID != nil {
		fwd, ok := s.users[*in.ForwardedByID]
		if !ok {
			fwd = domain.User{ID: *in.ForwardedByID}
		}
		at := m.CreatedAt
		m.ForwardedBy = &fwd
		m.ForwardedAt = &at
	}
	s.group[m.ID] = m
	return r.expandLocked(m), nil
}

func (r *GroupMessages) GetMessage(_ context.Context, id int64) (*domain.GroupMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.group[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return r.expandLocked(m), nil
}

func (r *GroupMessages) ValidateReplyTarget(_ context.Context, replyToID, groupID int64) (*domain.GroupMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.group[replyToID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	if m.GroupID != groupID {
		return nil, domain.ErrWrongConversation
	}
	return &m, nil
}

func (r *GroupMessages) RecordSeen(_ context.Context, id, userID int64) (bool, time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.group[id]; !ok {
		return false, time.Time{}, domain.ErrMessageNotFound
	}
	key := [2]int64{id, userID}
	if at, ok := r.s.seen[key]; ok {
		return true, at, nil
	}
	at := r.s.now()
	r.s.seen[key] = at
	return false, at, nil
}

func (r *GroupMessages) UpdateContent(_ context.Context, id int64, content string) (time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.group[id]
	if !ok {
		return time.Time{}, domain.ErrMessageNotFound
	}
	now := r.s.now()
	m.Content = content
	m.UpdatedAt = &now
	r.s.group[id] = m
	return now, nil
}

func (r *GroupMessages) UpdateMedia(_ context.Context, id int64, media domain.MediaMeta, kind domain.MessageType) (*domain.GroupMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.group[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	now := r.s.now()
	m.Media = media
	m.Type = kind
	m.UpdatedAt = &now
	r.s.group[id] = m
	return r.expandLocked(m), nil
}

func (r *GroupMessages) DeleteMessage(_ context.Context, id, requesterID int64) (*domain.GroupMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.group[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	if m.OwnerID() != requesterID {
		return nil, domain.ErrNotMessageOwner
	}
	delete(r.s.group, id)
	for k, other := range r.s.group {
		changed := false
		if other.ReplyToID != nil && *other.ReplyToID == id {
			other.ReplyToID = nil
			changed = true
		}
		if other.ParentMessageID != nil && *other.ParentMessageID == id {
			other.ParentMessageID = nil
			changed = true
		}
		if changed {
			r.s.group[k] = other
		}
	}
	for key := range r.s.seen {
		if key[0] == id {
			delete(r.s.seen, key)
		}
	}
	return &m, nil
}

func (r *GroupMessages) MediaReferences(_ context.Context, publicID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, m := range r.s.group {
		if m.Media.PublicID == publicID {
			n++
		}
	}
	return n, nil
}

// InGroup returns the messages of groupID in creation order.
func (r *GroupMessages) InGroup(groupID int64) []domain.GroupMessage {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.GroupMessage
	for id := int64(1); id <= r.s.nextID; id++ {
		if m, ok := r.s.group[id]; ok && m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out
}

func (r *GroupMessages) expandLocked(m domain.GroupMessage) *domain.GroupMessage {
	if m.ParentMessageID != nil {
		if parent, ok := r.s.group[*m.ParentMessageID]; ok {
			m.Parent = &parent
		}
	}
	if m.ReplyToID != nil {
		if reply, ok := r.s.group[*m.ReplyToID]; ok {
			m.ReplyTo = &reply
		}
	}
	return &m
}
