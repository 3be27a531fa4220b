package audit

import (
	"context"
	"time"
)

// Actions recorded by the bot.
const (
	ActionAuth    = "auth"
	ActionCancel  = "auth-cancel"
	ActionTimeout = "auth-timeout"
	ActionPanel   = "auth-panel"
	ActionAuto    = "auth-auto"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

const DefaultListLimit = 50

// Entry is immutable once appended. ID and Timestamp are assigned by the sink.
type Entry struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	ActorTag  string    `json:"actor_tag,omitempty"`
	GuildID   string    `json:"guild_id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink is the append-only audit log.
type Sink interface {
	Append(ctx context.Context, e Entry) (Entry, error)
}

// Reader lists the most recent entries for a guild, newest first.
type Reader interface {
	List(ctx context.Context, guildID string, limit int) ([]Entry, error)
}

type Store interface {
	Sink
	Reader
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
