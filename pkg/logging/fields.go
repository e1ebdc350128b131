package logging

import (
	"log/slog"

	"whisper/internal/core/domain"
)

// Domain identifiers

func Channel(id domain.ChannelID) slog.Attr {
	return slog.String("channel_id", string(id))
}

func User(id int64) slog.Attr {
	return slog.Int64("user_id", id)
}

func Conn(id string) slog.Attr {
	return slog.String("conn_id", id)
}

func Message(id int64) slog.Attr {
	return slog.Int64("message_id", id)
}

func Group(id int64) slog.Attr {
	return slog.Int64("group_id", id)
}

func Frame(kind string) slog.Attr {
	return slog.String("frame", kind)
}

// Request / tracing

func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func TraceID(id string) slog.Attr {
	return slog.String("trace_id", id)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("err", "")
	}
	return slog.String("err", err.Error())
}
