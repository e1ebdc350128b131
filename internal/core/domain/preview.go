package domain

const previewRunes = 100

// PreviewText renders message content for a reply preview. Media messages
// are replaced by a fixed label, text is cut to 100 characters.
func PreviewText(content string, kind MessageType) string {
	switch kind {
	case MessageVoice:
		return "🎤 Voice message"
	case MessageImage:
		return "📷 Image"
	case MessageFile:
		return "📎 File"
	}
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes])
}

func PrivatePreview(m *PrivateMessage) *MessagePreview {
	if m == nil {
		return nil
	}
	return &MessagePreview{
		ID:          m.ID,
		Content:     PreviewText(m.Content, m.Type),
		MessageType: m.Type,
		FileURL:     m.Media.FileURL,
		Sender:      Author{ID: m.SenderID, Username: m.SenderUsername},
	}
}

func GroupPreview(m *GroupMessage) *MessagePreview {
	if m == nil {
		return nil
	}
	return &MessagePreview{
		ID:          m.ID,
		Content:     PreviewText(m.Content, m.Type),
		MessageType: m.Type,
		FileURL:     m.Media.FileURL,
		Sender:      AuthorOf(m.Sender),
	}
}

// NewPrivateMessageEvent renders a stored private message for broadcast.
func NewPrivateMessageEvent(m *PrivateMessage, tempID string) PrivateMessageEvent {
	return PrivateMessageEvent{
		Type:             EventMessage,
		ID:               m.ID,
		SenderID:         m.SenderID,
		SenderUsername:   m.SenderUsername,
		ReceiverID:       m.ReceiverID,
		ReceiverUsername: m.ReceiverUsername,
		Content:          m.Content,
		MessageType:      m.Type,
		IsRead:           m.IsRead,
		ReadAt:           TimestampPtr(m.ReadAt),
		ReplyToID:        m.ReplyToID,
		ReplyTo:          PrivatePreview(m.ReplyTo),
		FileURL:          m.Media.FileURL,
		VoiceDuration:    m.Media.VoiceDuration,
		FileSize:         m.Media.FileSize,
		TempID:           tempID,
		CreatedAt:        Timestamp(m.CreatedAt),
		UpdatedAt:        Timestamp(m.UpdatedAt),
	}
}

// NewGroupMessageEvent renders a stored group message for broadcast. The
// parent of a forwarded message is previewed, never expanded further.
func NewGroupMessageEvent(m *GroupMessage, tempID string) GroupMessageEvent {
	ev := GroupMessageEvent{
		Type:          EventMessage,
		ID:            m.ID,
		GroupID:       m.GroupID,
		Sender:        AuthorOf(m.Sender),
		ForwardedAt:   TimestampPtr(m.ForwardedAt),
		Content:       m.Content,
		MessageType:   m.Type,
		FileURL:       m.Media.FileURL,
		VoiceDuration: m.Media.VoiceDuration,
		FileSize:      m.Media.FileSize,
		ReplyToID:     m.ReplyToID,
		ReplyTo:       GroupPreview(m.ReplyTo),
		ParentMessage: GroupPreview(m.Parent),
		TempID:        tempID,
		CreatedAt:     Timestamp(m.CreatedAt),
		UpdatedAt:     TimestampPtr(m.UpdatedAt),
	}
	if m.ForwardedBy != nil {
		a := AuthorOf(*m.ForwardedBy)
		ev.ForwardedBy = &a
	}
	return ev
}
