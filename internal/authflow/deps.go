// Package authflow orchestrates the bot's user facing flows: personal
// authentication sessions, persistent panels, auto-auth on join, and the
// read-only help and status commands.
package authflow

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"rolegate/authbot/internal/audit"
	"rolegate/authbot/internal/grant"
	"rolegate/authbot/internal/messages"
	"rolegate/authbot/internal/observability"
	"rolegate/authbot/internal/platform"
	"rolegate/authbot/internal/settings"
)

// effectTimeout bounds the remote calls made outside of an inbound event,
// such as the edits performed when a session expires.
const effectTimeout = 15 * time.Second

// Deps are the collaborators shared by every flow.
type Deps struct {
	Gateway  platform.Gateway
	Settings settings.Provider
	Audit    audit.Sink
	Catalog  *messages.Catalog
	Metrics  *observability.Metrics
	Log      zerolog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Catalog == nil {
		d.Catalog = messages.Default()
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewNopMetrics()
	}
	return d
}

func (d Deps) newExecutor() *grant.Executor {
	return grant.NewExecutor(d.Gateway, d.Log, func(r grant.Result) {
		d.Metrics.RoleGrants.WithLabelValues(string(r.Outcome)).Inc()
	})
}

// loadConfig checks the preconditions shared by sessions and panels.
func (d Deps) loadConfig(ctx context.Context, in platform.Interaction) (settings.Config, error) {
	if !in.InGuild() {
		return settings.Config{}, ErrNotInGuild
	}
	cfg, err := d.Settings.Get(ctx, in.GuildID)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return settings.Config{}, ErrConfigMissing
		}
		return settings.Config{}, errors.Wrap(err, "load guild settings")
	}
	if len(cfg.EnabledRoles) == 0 {
		return settings.Config{}, ErrNoRolesConfigured
	}
	return cfg, nil
}

// reject answers in with the notice matching err. Unexpected errors get fallback.
func (d Deps) reject(ctx context.Context, in platform.Interaction, err error, fallback string) {
	n := d.Catalog.Notices
	text := fallback
	switch {
	case errors.Is(err, ErrNotInGuild):
		text = n.NotInGuild
	case errors.Is(err, ErrConfigMissing):
		text = n.ConfigMissing
	case errors.Is(err, ErrNoRolesConfigured):
		text = n.NoRolesConfigured
	case errors.Is(err, ErrNotAdmin):
		text = n.NotAdmin
	case errors.Is(err, ErrMissingChannel):
		text = n.MissingChannel
	case errors.Is(err, ErrCooldownActive):
		var remaining time.Duration
		var cerr *CooldownError
		if errors.As(err, &cerr) {
			remaining = cerr.Remaining
		}
		text = messages.Format(n.CooldownActive, "seconds", messages.Seconds(remaining))
	}
	if IsPrecondition(err) {
		d.Metrics.Preconditions.WithLabelValues(preconditionReason(err)).Inc()
	}
	if rerr := d.Gateway.Reply(ctx, in, platform.Text(text)); rerr != nil {
		d.Log.Warn().Err(rerr).Str("guild_id", in.GuildID).Str("actor_id", in.Actor.ID).Msg("send rejection notice failed")
	}
}

func (d Deps) writeAudit(ctx context.Context, e audit.Entry) {
	if _, err := d.Audit.Append(ctx, e); err != nil {
		d.Metrics.AuditWrites.WithLabelValues("error").Inc()
		d.Log.Error().Err(err).
			Str("guild_id", e.GuildID).
			Str("actor_id", e.ActorID).
			Str("action", e.Action).
			Msg("audit write failed")
		return
	}
	d.Metrics.AuditWrites.WithLabelValues("ok").Inc()
}

// notify sends a best-effort direct message.
func (d Deps) notify(ctx context.Context, userID string, msg platform.Message) {
	if err := d.Gateway.SendDirectMessage(ctx, userID, msg); err != nil {
		d.Metrics.Notifications.WithLabelValues("error").Inc()
		d.Log.Warn().Err(err).Str("actor_id", userID).Msg("direct message failed")
		return
	}
	d.Metrics.Notifications.WithLabelValues("ok").Inc()
}

// grantDM describes a finished grant to the member. A partial failure reported
// by the strict policy carries the guild's failure message and lists only the
// roles that were actually added.
func (d Deps) grantDM(ctx context.Context, guildID, guildName string, text dmText, roles []string, results []grant.Result, partial bool) platform.Message {
	if !partial {
		return renderDM(d.Catalog, guildName, text.success, d.roleNames(ctx, guildID, roles), nil)
	}
	granted, failed := grant.Split(results)
	ids := append([]string(nil), granted...)
	for _, f := range failed {
		ids = append(ids, f.RoleID)
	}
	names := d.roleNames(ctx, guildID, ids)
	return renderDM(d.Catalog, guildName, text.failure, names[:len(granted)], names[len(granted):])
}

// dmText is the pair of guild-configured messages a grant DM picks from.
type dmText struct {
	success string
	failure string
}

// roleNames resolves display names for a DM. Unknown ids are shown as is.
func (d Deps) roleNames(ctx context.Context, guildID string, roleIDs []string) []string {
	names, err := d.Gateway.RoleNames(ctx, guildID)
	if err != nil {
		d.Log.Debug().Err(err).Str("guild_id", guildID).Msg("resolve role names failed")
	}
	out := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		if name, ok := names[id]; ok && name != "" {
			out = append(out, name)
			continue
		}
		out = append(out, id)
	}
	return out
}

// responder answers an interaction once, editing the original response when
// the interaction was already acknowledged.
type responder struct {
	gateway platform.Gateway
	in      platform.Interaction
	acked   bool
	update  bool

	// interactive is set when the actor is waiting on in and can be told about failures.
	interactive bool
}

func (r *responder) send(ctx context.Context, msg platform.Message) error {
	switch {
	case r.acked:
		return r.gateway.EditReply(ctx, r.in, msg)
	case r.update:
		return r.gateway.UpdateMessage(ctx, r.in, msg)
	default:
		return r.gateway.Reply(ctx, r.in, msg)
	}
}

func (r *responder) fail(ctx context.Context, text string) error {
	if r.acked {
		return r.gateway.FollowUp(ctx, r.in, platform.Text(text))
	}
	return r.gateway.Reply(ctx, r.in, platform.Text(text))
}
