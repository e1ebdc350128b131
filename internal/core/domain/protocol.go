package domain

import (
	"encoding/json"
	"strings"
)

// Inbound frame discriminators.
const (
	FrameMessage   = "message"
	FrameRead      = "read"
	FrameTyping    = "typing"
	FrameDelete    = "delete"
	FrameEdit      = "edit"
	FrameSeen      = "seen"
	FrameForward   = "forward_to_groups"
	FramePong      = "pong"
	frameHeartbeat = "heartbeat"
)

// Frame is one parsed client frame. The set of implementations is closed;
// anything the server does not recognise arrives as *UnknownFrame.
type Frame interface {
	Kind() string
	frame()
}

// MessageFrame is a text message. Media messages only exist through the
// upload endpoints, so a frame never carries a media store reference.
type MessageFrame struct {
	Content     string
	MessageType MessageType
	ReplyToID   *int64
	TempID      string
}

type ReadFrame struct{ MessageID int64 }

type TypingFrame struct{ IsTyping bool }

type DeleteFrame struct{ MessageID int64 }

type EditFrame struct {
	MessageID int64
	Content   string
}

type SeenFrame struct{ MessageID int64 }

type ForwardFrame struct {
	MessageID int64
	GroupIDs  []int64
}

type PongFrame struct{}

// UnknownFrame carries a discriminator the server does not handle.
type UnknownFrame struct{ Type string }

func (*MessageFrame) Kind() string   { return FrameMessage }
func (*ReadFrame) Kind() string      { return FrameRead }
func (*TypingFrame) Kind() string    { return FrameTyping }
func (*DeleteFrame) Kind() string    { return FrameDelete }
func (*EditFrame) Kind() string      { return FrameEdit }
func (*SeenFrame) Kind() string      { return FrameSeen }
func (*ForwardFrame) Kind() string   { return FrameForward }
func (*PongFrame) Kind() string      { return FramePong }
func (f *UnknownFrame) Kind() string { return f.Type }

func (*MessageFrame) frame() {}
func (*ReadFrame) frame()    {}
func (*TypingFrame) frame()  {}
func (*DeleteFrame) frame()  {}
func (*EditFrame) frame()    {}
func (*SeenFrame) frame()    {}
func (*ForwardFrame) frame() {}
func (*PongFrame) frame()    {}
func (*UnknownFrame) frame() {}

// wireFrame is the flat JSON object clients send. Private chat clients use
// "type", group chat clients use "action"; both are accepted everywhere.
type wireFrame struct {
	Type        string      `json:"type"`
	Action      string      `json:"action"`
	Content     *string     `json:"content"`
	MessageType MessageType `json:"message_type"`
	MessageID   int64       `json:"message_id"`
	ReplyToID   *int64      `json:"reply_to_id"`
	ReplyTo     *int64      `json:"reply_to"`
	TempID      string      `json:"temp_id"`
	IsTyping    bool        `json:"is_typing"`
	GroupIDs    []int64     `json:"group_ids"`
}

// ParseFrame decodes raw into its frame variant. Malformed input yields a
// Rejection with CodeInvalidFrame; an unrecognised discriminator is not an
// error and comes back as *UnknownFrame.
func ParseFrame(raw []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, Rejectf(CodeInvalidFrame, "frame is not a valid JSON object")
	}
	kind := strings.TrimSpace(w.Type)
	if kind == "" {
		kind = strings.TrimSpace(w.Action)
	}
	if kind == "" {
		return nil, Rejectf(CodeInvalidFrame, "frame has no type or action")
	}

	switch kind {
	case FrameMessage:
		f := &MessageFrame{
			MessageType: w.MessageType,
			ReplyToID:   w.ReplyToID,
			TempID:      w.TempID,
		}
		if w.Content != nil {
			f.Content = *w.Content
		}
		if f.ReplyToID == nil {
			f.ReplyToID = w.ReplyTo
		}
		if f.ReplyToID != nil && *f.ReplyToID <= 0 {
			return nil, Rejectf(CodeInvalidFrame, "reply_to_id must be positive")
		}
		if f.MessageType == "" {
			f.MessageType = MessageText
		}
		if !f.MessageType.Valid() {
			return nil, Rejectf(CodeInvalidFrame, "unknown message_type %q", f.MessageType)
		}
		if f.MessageType.IsMedia() {
			return nil, Rejectf(CodeUnsupported, "%s messages are sent through the upload endpoint", f.MessageType)
		}
		return f, nil
	case FrameRead:
		if w.MessageID <= 0 {
			return nil, missingMessageID(kind)
		}
		return &ReadFrame{MessageID: w.MessageID}, nil
	case FrameTyping:
		return &TypingFrame{IsTyping: w.IsTyping}, nil
	case FrameDelete:
		if w.MessageID <= 0 {
			return nil, missingMessageID(kind)
		}
		return &DeleteFrame{MessageID: w.MessageID}, nil
	case FrameEdit:
		if w.MessageID <= 0 {
			return nil, missingMessageID(kind)
		}
		f := &EditFrame{MessageID: w.MessageID}
		if w.Content != nil {
			f.Content = *w.Content
		}
		return f, nil
	case FrameSeen:
		if w.MessageID <= 0 {
			return nil, missingMessageID(kind)
		}
		return &SeenFrame{MessageID: w.MessageID}, nil
	case FrameForward:
		if w.MessageID <= 0 {
			return nil, missingMessageID(kind)
		}
		return &ForwardFrame{MessageID: w.MessageID, GroupIDs: w.GroupIDs}, nil
	case FramePong, frameHeartbeat:
		return &PongFrame{}, nil
	default:
		return &UnknownFrame{Type: kind}, nil
	}
}

func missingMessageID(kind string) error {
	return Rejectf(CodeInvalidFrame, "%s frame requires a positive message_id", kind)
}
