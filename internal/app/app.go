package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rolegate/authbot/internal/audit"
	"rolegate/authbot/internal/authflow"
	"rolegate/authbot/internal/config"
	"rolegate/authbot/internal/cooldown"
	"rolegate/authbot/internal/dispatch"
	"rolegate/authbot/internal/httpserver"
	"rolegate/authbot/internal/messages"
	"rolegate/authbot/internal/observability"
	"rolegate/authbot/internal/platform/discord"
	"rolegate/authbot/internal/session"
	"rolegate/authbot/internal/settings"
)

type App struct {
	cfg      config.Config
	log      zerolog.Logger
	db       *sql.DB
	redis    *redis.Client
	bot      *discord.Bot
	dispatch *dispatch.Dispatcher
	server   *httpserver.Server
}

// stores are the persistence backends picked from configuration.
type stores struct {
	db       *sql.DB
	settings settings.Provider
	audit    audit.Store
}

func (s stores) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func New(cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.RequireDiscord(); err != nil {
		return nil, err
	}

	st, err := openStores(cfg)
	if err != nil {
		return nil, err
	}

	limiter, rdb, err := newLimiter(cfg)
	if err != nil {
		st.close()
		return nil, err
	}
	closeAll := func() {
		st.close()
		if rdb != nil {
			_ = rdb.Close()
		}
	}

	catalog, err := messages.Load(cfg.MessagesFile)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("load messages: %w", err)
	}

	bot, err := discord.New(discord.Options{
		Token:   cfg.Discord.Token,
		AppID:   cfg.Discord.AppID,
		GuildID: cfg.Discord.GuildID,
	}, logger)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("create discord bot: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	deps := authflow.Deps{
		Gateway:  bot.Gateway(),
		Settings: st.settings,
		Audit:    st.audit,
		Catalog:  catalog,
		Metrics:  metrics,
		Log:      logger,
	}
	sessions := authflow.NewSessions(deps, session.NewRegistry(nil), authflow.SessionsConfig{
		Timeout:  cfg.Bot.SessionTimeout,
		Policy:   cfg.Bot.GrantPolicy,
		Cooldown: limiter,
	})
	dispatcher := dispatch.New(
		sessions,
		authflow.NewPanels(deps, cfg.Bot.GrantPolicy),
		authflow.NewInfo(deps),
		authflow.NewAutoAuth(deps, cfg.Bot.GrantPolicy),
		logger,
	)

	server := httpserver.New(cfg.HTTP, httpserver.Deps{
		Settings:   st.settings,
		Logs:       st.audit,
		Sessions:   sessions,
		Directory:  bot,
		Gatherer:   registry,
		AdminToken: cfg.DashboardAdminToken,
		Log:        logger,
	})

	logger.Info().
		Bool("postgres", st.db != nil).
		Bool("cooldown", limiter != nil).
		Bool("redis", rdb != nil).
		Str("grant_policy", string(cfg.Bot.GrantPolicy)).
		Dur("session_timeout", cfg.Bot.SessionTimeout).
		Msg("app configured")

	return &App{
		cfg:      cfg,
		log:      logger,
		db:       st.db,
		redis:    rdb,
		bot:      bot,
		dispatch: dispatcher,
		server:   server,
	}, nil
}

// openStores uses Postgres when DATABASE_URL is set and local files otherwise.
func openStores(cfg config.Config) (stores, error) {
	if cfg.DatabaseURL == "" {
		settingsSvc, err := settings.NewServiceWithFile(cfg.SettingsStateFile)
		if err != nil {
			return stores{}, fmt.Errorf("create settings service: %w", err)
		}
		return stores{
			settings: settingsSvc,
			audit:    audit.NewFileSink(cfg.AuditLogFile),
		}, nil
	}

	db, err := openPostgres(cfg.DatabaseURL)
	if err != nil {
		return stores{}, err
	}
	settingsSvc, err := settings.NewPGService(db)
	if err != nil {
		_ = db.Close()
		return stores{}, fmt.Errorf("create postgres settings service: %w", err)
	}
	sink, err := audit.NewPostgresSink(db)
	if err != nil {
		_ = db.Close()
		return stores{}, fmt.Errorf("create postgres audit sink: %w", err)
	}
	return stores{db: db, settings: settingsSvc, audit: sink}, nil
}

func openPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// newLimiter returns a nil limiter unless cooldowns are enforced. REDIS_URL
// shares the window across replicas; without it the window is per process.
func newLimiter(cfg config.Config) (cooldown.Limiter, *redis.Client, error) {
	if !cfg.Bot.CooldownEnforce {
		return nil, nil, nil
	}
	if cfg.RedisURL == "" {
		return cooldown.NewMemoryLimiter(), nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return cooldown.NewRedisLimiter(rdb), rdb, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.closeBackends()

	errCh := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.cfg.HTTP.Addr).Msg("http server starting")
		errCh <- a.server.Start()
	}()

	if err := a.bot.Open(a.dispatch); err != nil {
		a.shutdownServer()
		return fmt.Errorf("start bot: %w", err)
	}

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		botErr := a.bot.Close(shutdownCtx)
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		if botErr != nil {
			return fmt.Errorf("shutdown bot: %w", botErr)
		}
		return nil
	case err := <-errCh:
		closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		_ = a.bot.Close(closeCtx)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

func (a *App) shutdownServer() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	_ = a.server.Shutdown(ctx)
}

func (a *App) closeBackends() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// RegisterCommands publishes the slash commands without opening the gateway.
func RegisterCommands(ctx context.Context, cfg config.Config) error {
	if err := cfg.RequireDiscord(); err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	bot, err := discord.New(discord.Options{
		Token:   cfg.Discord.Token,
		AppID:   cfg.Discord.AppID,
		GuildID: cfg.Discord.GuildID,
	}, logger)
	if err != nil {
		return fmt.Errorf("create discord bot: %w", err)
	}
	return bot.RegisterCommands(ctx)
}
