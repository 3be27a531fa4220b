// Package discord adapts the bot to Discord through discordgo.
package discord

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"rolegate/authbot/internal/platform"
)

// eventTimeout bounds the handling of one inbound event. Interaction tokens
// stay valid for fifteen minutes, so this is well inside the window.
const eventTimeout = 2 * time.Minute

type Options struct {
	Token string
	AppID string
	// GuildID scopes command registration to one guild. Empty registers globally.
	GuildID string
}

// Bot owns the gateway connection and feeds inbound events to a handler.
type Bot struct {
	session *discordgo.Session
	opts    Options
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// closing is set once Close starts; deliver drops events after that.
	mu      sync.RWMutex
	closing bool
}

func New(opts Options, log zerolog.Logger) (*Bot, error) {
	if opts.Token == "" {
		return nil, errors.New("discord token is required")
	}
	s, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, errors.Wrap(err, "create discord session")
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		session: s,
		opts:    opts,
		log:     log.With().Str("component", "discord").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Gateway returns the outbound side of the connection.
func (b *Bot) Gateway() *Gateway {
	return NewGateway(b.session)
}

// Open connects to the gateway and starts delivering events to h.
func (b *Bot) Open(h platform.Handler) error {
	b.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.log.Info().Str("user", r.User.String()).Int("guilds", len(r.Guilds)).Msg("discord gateway ready")
	})
	b.session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		ev, ok := toEvent(i.Interaction, b.guildName)
		if !ok {
			b.log.Debug().Str("type", i.Type.String()).Msg("ignoring interaction")
			return
		}
		b.deliver(h, ev)
	})
	b.session.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if ev, ok := toMemberJoined(m, b.guildName); ok {
			b.deliver(h, ev)
		}
	})
	if err := b.session.Open(); err != nil {
		return errors.Wrap(err, "open discord gateway")
	}
	return nil
}

// deliver runs on the goroutine discordgo spawned for the event.
func (b *Bot) deliver(h platform.Handler, ev platform.Event) {
	b.mu.RLock()
	if b.closing {
		b.mu.RUnlock()
		b.log.Debug().Msg("dropping event during shutdown")
		return
	}
	b.wg.Add(1)
	b.mu.RUnlock()
	defer b.wg.Done()
	ctx, cancel := context.WithTimeout(b.ctx, eventTimeout)
	defer cancel()
	h.HandleEvent(ctx, ev)
}

func (b *Bot) guildName(guildID string) string {
	g, err := b.session.State.Guild(guildID)
	if err != nil {
		return ""
	}
	return g.Name
}

// Guilds lists the guilds in the gateway cache, ordered by name.
func (b *Bot) Guilds(context.Context) ([]platform.Guild, error) {
	return cachedGuilds(b.session.State), nil
}

// Roles lists the assignable roles of a guild.
func (b *Bot) Roles(ctx context.Context, guildID string) ([]platform.Role, error) {
	return b.Gateway().Roles(ctx, guildID)
}

func cachedGuilds(st *discordgo.State) []platform.Guild {
	st.RLock()
	defer st.RUnlock()
	out := make([]platform.Guild, 0, len(st.Guilds))
	for _, g := range st.Guilds {
		out = append(out, platform.Guild{ID: g.ID, Name: g.Name, Icon: g.IconURL("")})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterCommands overwrites the application's slash commands.
func (b *Bot) RegisterCommands(ctx context.Context) error {
	if b.opts.AppID == "" {
		return errors.New("discord application id is required")
	}
	cmds, err := b.session.ApplicationCommandBulkOverwrite(b.opts.AppID, b.opts.GuildID, Commands(), discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "register commands")
	}
	b.log.Info().Int("count", len(cmds)).Str("guild_id", b.opts.GuildID).Msg("slash commands registered")
	return nil
}

// Close stops accepting events, waits for in-flight handlers up to ctx and
// disconnects.
func (b *Bot) Close(ctx context.Context) error {
	if !b.drain(ctx) {
		b.log.Warn().Msg("abandoning in-flight discord events")
	}
	b.cancel()
	return errors.Wrap(b.session.Close(), "close discord gateway")
}

// drain refuses new events and reports whether every in-flight handler
// returned before ctx was done.
func (b *Bot) drain(ctx context.Context) bool {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
