package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PGService struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewPGService(db *sql.DB) (*PGService, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PGService{
		db:      db,
		nowFunc: time.Now,
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PGService) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS bot_settings (
	guild_id TEXT PRIMARY KEY,
	success_message TEXT NOT NULL,
	failure_message TEXT NOT NULL,
	auto_auth BOOLEAN NOT NULL DEFAULT FALSE,
	dm_notify BOOLEAN NOT NULL DEFAULT TRUE,
	log_actions BOOLEAN NOT NULL DEFAULT TRUE,
	timeout_minutes INTEGER NOT NULL DEFAULT 10,
	cooldown_seconds INTEGER NOT NULL DEFAULT 30,
	enabled_roles JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure bot_settings schema: %w", err)
	}
	return nil
}

func (s *PGService) Get(ctx context.Context, guildID string) (Config, error) {
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return Config{}, ErrNotFound
	}
	const q = `
SELECT guild_id, success_message, failure_message, auto_auth, dm_notify, log_actions,
	timeout_minutes, cooldown_seconds, enabled_roles, created_at, updated_at
FROM bot_settings
WHERE guild_id = $1`
	var (
		c     Config
		roles []byte
	)
	err := s.db.QueryRowContext(ctx, q, guildID).Scan(
		&c.GuildID, &c.SuccessMessage, &c.FailureMessage, &c.AutoAuth, &c.DMNotify, &c.LogActions,
		&c.Timeout, &c.Cooldown, &roles, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Config{}, ErrNotFound
		}
		return Config{}, fmt.Errorf("get guild settings: %w", err)
	}
	if err := json.Unmarshal(roles, &c.EnabledRoles); err != nil {
		return Config{}, fmt.Errorf("decode enabled roles: %w", err)
	}
	if c.EnabledRoles == nil {
		c.EnabledRoles = []string{}
	}
	return c, nil
}

func (s *PGService) Create(ctx context.Context, c Config) (Config, error) {
	c.GuildID = strings.TrimSpace(c.GuildID)
	c.EnabledRoles = normalizeRoles(c.EnabledRoles)
	if err := validate(c); err != nil {
		return Config{}, err
	}
	roles, err := json.Marshal(c.EnabledRoles)
	if err != nil {
		return Config{}, fmt.Errorf("encode enabled roles: %w", err)
	}
	now := s.nowFunc().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	const q = `
INSERT INTO bot_settings
  (guild_id, success_message, failure_message, auto_auth, dm_notify, log_actions,
   timeout_minutes, cooldown_seconds, enabled_roles, created_at, updated_at)
VALUES
  ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (guild_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, q, c.GuildID, c.SuccessMessage, c.FailureMessage, c.AutoAuth, c.DMNotify, c.LogActions,
		c.Timeout, c.Cooldown, roles, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return Config{}, fmt.Errorf("insert guild settings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Config{}, fmt.Errorf("read insert affected rows: %w", err)
	}
	if affected == 0 {
		return Config{}, ErrAlreadyExists
	}
	return c, nil
}

func (s *PGService) Update(ctx context.Context, guildID string, p Patch) (Config, error) {
	existing, err := s.Get(ctx, guildID)
	if err != nil {
		return Config{}, err
	}
	updated := p.Apply(existing)
	if err := validate(updated); err != nil {
		return Config{}, err
	}
	roles, err := json.Marshal(updated.EnabledRoles)
	if err != nil {
		return Config{}, fmt.Errorf("encode enabled roles: %w", err)
	}
	updated.UpdatedAt = s.nowFunc().UTC()

	const q = `
UPDATE bot_settings
SET success_message = $2,
	failure_message = $3,
	auto_auth = $4,
	dm_notify = $5,
	log_actions = $6,
	timeout_minutes = $7,
	cooldown_seconds = $8,
	enabled_roles = $9,
	updated_at = $10
WHERE guild_id = $1`
	res, err := s.db.ExecContext(ctx, q, updated.GuildID, updated.SuccessMessage, updated.FailureMessage,
		updated.AutoAuth, updated.DMNotify, updated.LogActions, updated.Timeout, updated.Cooldown, roles, updated.UpdatedAt)
	if err != nil {
		return Config{}, fmt.Errorf("update guild settings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Config{}, fmt.Errorf("read update affected rows: %w", err)
	}
	if affected == 0 {
		return Config{}, ErrNotFound
	}
	return updated, nil
}
