package log

import (
	"log/slog"
	"time"
)

func SessionID[T ~string](id T) slog.Attr {
	return slog.String("session_id", string(id))
}

func StageID[T ~string](id T) slog.Attr {
	return slog.String("stage", string(id))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func EventType[T ~string](typ T) slog.Attr {
	return slog.String("event_type", string(typ))
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
