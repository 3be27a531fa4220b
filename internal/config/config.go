package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"rolegate/authbot/internal/session"
)

type Config struct {
	HTTP                HTTPConfig
	DatabaseURL         string
	RedisURL            string
	Discord             DiscordConfig
	Bot                 BotConfig
	SettingsStateFile   string
	AuditLogFile        string
	MessagesFile        string
	DashboardAdminToken string
	Log                 LogConfig
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DiscordConfig struct {
	Token   string
	AppID   string
	GuildID string
}

type BotConfig struct {
	SessionTimeout  time.Duration
	GrantPolicy     session.Policy
	CooldownEnforce bool
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:     time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 15)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
		},
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		Discord: DiscordConfig{
			Token:   getEnv("DISCORD_TOKEN", ""),
			AppID:   getEnv("DISCORD_APP_ID", ""),
			GuildID: getEnv("DISCORD_GUILD_ID", ""),
		},
		Bot: BotConfig{
			SessionTimeout:  time.Duration(getEnvInt("SESSION_TIMEOUT_SEC", 60)) * time.Second,
			CooldownEnforce: getEnvBool("COOLDOWN_ENFORCE", false),
		},
		SettingsStateFile:   getEnv("SETTINGS_STATE_FILE", "./data/settings.json"),
		AuditLogFile:        getEnv("AUDIT_LOG_FILE", "./data/audit.log"),
		MessagesFile:        getEnv("MESSAGES_FILE", ""),
		DashboardAdminToken: getEnv("DASHBOARD_ADMIN_TOKEN", ""),
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	policy, err := session.ParsePolicy(getEnv("GRANT_POLICY", string(session.PolicyOptimistic)))
	if err != nil {
		return Config{}, fmt.Errorf("GRANT_POLICY: %w", err)
	}
	cfg.Bot.GrantPolicy = policy

	if cfg.HTTP.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.Bot.SessionTimeout <= 0 {
		return Config{}, fmt.Errorf("SESSION_TIMEOUT_SEC must be > 0")
	}
	if cfg.SettingsStateFile == "" {
		return Config{}, fmt.Errorf("SETTINGS_STATE_FILE must not be empty")
	}
	if cfg.AuditLogFile == "" {
		return Config{}, fmt.Errorf("AUDIT_LOG_FILE must not be empty")
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
		return Config{}, fmt.Errorf("LOG_FORMAT must be json or console")
	}

	return cfg, nil
}

// RequireDiscord checks the settings needed to connect the bot.
func (c Config) RequireDiscord() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("DISCORD_TOKEN must not be empty")
	}
	if c.Discord.AppID == "" {
		return fmt.Errorf("DISCORD_APP_ID must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
