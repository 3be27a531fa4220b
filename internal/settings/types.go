package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("guild settings not found")
	ErrAlreadyExists = errors.New("guild settings already exist")
	ErrInvalidInput  = errors.New("invalid guild settings input")
)

const (
	DefaultSuccessMessage  = "You have been successfully authenticated!"
	DefaultFailureMessage  = "Authentication failed. Please try again or contact an administrator."
	DefaultTimeoutMinutes  = 10
	DefaultCooldownSeconds = 30
)

// Config is the per-guild record the dashboard edits and the bot reads.
type Config struct {
	GuildID        string    `json:"guild_id"`
	SuccessMessage string    `json:"success_message"`
	FailureMessage string    `json:"failure_message"`
	AutoAuth       bool      `json:"auto_auth"`
	DMNotify       bool      `json:"dm_notify"`
	LogActions     bool      `json:"log_actions"`
	Timeout        int       `json:"timeout"`
	Cooldown       int       `json:"cooldown"`
	EnabledRoles   []string  `json:"enabled_roles"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (c Config) Clone() Config {
	c.EnabledRoles = append([]string(nil), c.EnabledRoles...)
	return c
}

func (c Config) CooldownWindow() time.Duration {
	return time.Duration(c.Cooldown) * time.Second
}

// Defaults is the record created for a guild the first time it is read.
func Defaults(guildID string) Config {
	return Config{
		GuildID:        guildID,
		SuccessMessage: DefaultSuccessMessage,
		FailureMessage: DefaultFailureMessage,
		AutoAuth:       false,
		DMNotify:       true,
		LogActions:     true,
		Timeout:        DefaultTimeoutMinutes,
		Cooldown:       DefaultCooldownSeconds,
		EnabledRoles:   []string{},
	}
}

// Patch carries a partial update. Nil fields are left unchanged.
type Patch struct {
	SuccessMessage *string   `json:"success_message,omitempty"`
	FailureMessage *string   `json:"failure_message,omitempty"`
	AutoAuth       *bool     `json:"auto_auth,omitempty"`
	DMNotify       *bool     `json:"dm_notify,omitempty"`
	LogActions     *bool     `json:"log_actions,omitempty"`
	Timeout        *int      `json:"timeout,omitempty"`
	Cooldown       *int      `json:"cooldown,omitempty"`
	EnabledRoles   *[]string `json:"enabled_roles,omitempty"`
}

func (p Patch) Apply(c Config) Config {
	c = c.Clone()
	if p.SuccessMessage != nil {
		c.SuccessMessage = *p.SuccessMessage
	}
	if p.FailureMessage != nil {
		c.FailureMessage = *p.FailureMessage
	}
	if p.AutoAuth != nil {
		c.AutoAuth = *p.AutoAuth
	}
	if p.DMNotify != nil {
		c.DMNotify = *p.DMNotify
	}
	if p.LogActions != nil {
		c.LogActions = *p.LogActions
	}
	if p.Timeout != nil {
		c.Timeout = *p.Timeout
	}
	if p.Cooldown != nil {
		c.Cooldown = *p.Cooldown
	}
	if p.EnabledRoles != nil {
		c.EnabledRoles = normalizeRoles(*p.EnabledRoles)
	}
	return c
}

// Provider is the settings store contract shared by the bot and the dashboard.
type Provider interface {
	Get(ctx context.Context, guildID string) (Config, error)
	Create(ctx context.Context, c Config) (Config, error)
	Update(ctx context.Context, guildID string, p Patch) (Config, error)
}

// GetOrCreate returns the guild's settings, persisting defaults when none exist.
func GetOrCreate(ctx context.Context, p Provider, guildID string) (Config, error) {
	c, err := p.Get(ctx, guildID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Config{}, err
	}
	c, err = p.Create(ctx, Defaults(guildID))
	if errors.Is(err, ErrAlreadyExists) {
		return p.Get(ctx, guildID)
	}
	return c, err
}

// Upsert applies patch to the guild's settings, starting from defaults when absent.
func Upsert(ctx context.Context, p Provider, guildID string, patch Patch) (Config, error) {
	if _, err := GetOrCreate(ctx, p, guildID); err != nil {
		return Config{}, err
	}
	return p.Update(ctx, guildID, patch)
}

func validate(c Config) error {
	if strings.TrimSpace(c.GuildID) == "" {
		return fmt.Errorf("%w: guild_id is required", ErrInvalidInput)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidInput)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("%w: cooldown must not be negative", ErrInvalidInput)
	}
	for _, r := range c.EnabledRoles {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("%w: role ids must not be empty", ErrInvalidInput)
		}
	}
	return nil
}

// normalizeRoles trims ids and drops duplicates while keeping order.
func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
