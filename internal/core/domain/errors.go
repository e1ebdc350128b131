package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrUserNotFound      = errors.New("user not found")
	ErrNotFriends        = errors.New("users are not friends")
	ErrNotGroupMember    = errors.New("user is not a group member")
	ErrMessageNotFound   = errors.New("message not found")
	ErrWrongConversation = errors.New("message belongs to a different conversation")
	ErrNotMessageOwner   = errors.New("only the sender can modify this message")
	ErrNotReceiver       = errors.New("message is not addressed to this user")
	ErrEmptyContent      = errors.New("message content is empty")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrMediaTooLarge     = errors.New("media exceeds size limit")
	ErrInvalidFrame      = errors.New("invalid frame")
	ErrUnknownFrame      = errors.New("unknown frame type")
	ErrNoForwardTargets  = errors.New("no forward targets")
	ErrSendQueueFull     = errors.New("send queue full")
	ErrConnectionClosed  = errors.New("connection closed")
)

// Rejection codes carried by error events.
const (
	CodeInvalidFrame = "invalid_frame"
	CodeUnknownType  = "unknown_type"
	CodeUnsupported  = "unsupported"
	CodeEmptyContent = "empty_content"
	CodeInvalidReply = "invalid_reply"
	CodeNotFound     = "not_found"
	CodeForbidden    = "forbidden"
	CodeInternal     = "internal_error"
)

// Rejection is an expected refusal of a request. It is answered in-band and
// never ends the connection. Any error that is not a Rejection is a fault.
type Rejection struct {
	Code   string
	Reason string
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s: %v", r.Code, r.Reason, r.Err)
	}
	return r.Code + ": " + r.Reason
}

func (r *Rejection) Unwrap() error { return r.Err }

// Reject builds a Rejection whose reason is the text of err.
func Reject(code string, err error) error {
	return &Rejection{Code: code, Reason: err.Error(), Err: err}
}

func Rejectf(code, format string, args ...any) error {
	return &Rejection{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
