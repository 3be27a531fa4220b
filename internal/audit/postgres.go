package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) (*PostgresSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PostgresSink{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS auth_logs (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	user_tag TEXT NOT NULL DEFAULT '',
	guild_id TEXT NOT NULL,
	action TEXT NOT NULL,
	status TEXT NOT NULL,
	details TEXT,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure auth_logs schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Append(ctx context.Context, e Entry) (Entry, error) {
	const q = `
INSERT INTO auth_logs (user_id, user_tag, guild_id, action, status, details)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, timestamp`
	var id int64
	if err := s.db.QueryRowContext(ctx, q, e.ActorID, e.ActorTag, e.GuildID, e.Action, e.Status, e.Detail).Scan(&id, &e.Timestamp); err != nil {
		return Entry{}, fmt.Errorf("insert auth log: %w", err)
	}
	e.ID = strconv.FormatInt(id, 10)
	return e, nil
}

func (s *PostgresSink) List(ctx context.Context, guildID string, limit int) ([]Entry, error) {
	const q = `
SELECT id, user_id, user_tag, guild_id, action, status, COALESCE(details, ''), timestamp
FROM auth_logs
WHERE guild_id = $1
ORDER BY timestamp DESC, id DESC
LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, guildID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query auth logs: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var id int64
		if err := rows.Scan(&id, &e.ActorID, &e.ActorTag, &e.GuildID, &e.Action, &e.Status, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan auth log: %w", err)
		}
		e.ID = strconv.FormatInt(id, 10)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auth logs: %w", err)
	}
	return out, nil
}
