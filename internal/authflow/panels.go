package authflow

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"rolegate/authbot/internal/audit"
	"rolegate/authbot/internal/grant"
	"rolegate/authbot/internal/messages"
	"rolegate/authbot/internal/platform"
	"rolegate/authbot/internal/session"
	"rolegate/authbot/internal/settings"
)

// PanelChannelOption names the command option carrying the target channel.
const PanelChannelOption = "channel"

// Panels posts persistent authentication panels and serves their clicks.
// Clicks share no state and may run concurrently.
type Panels struct {
	deps     Deps
	policy   session.Policy
	executor *grant.Executor
}

func NewPanels(deps Deps, policy session.Policy) *Panels {
	deps = deps.withDefaults()
	deps.Log = deps.Log.With().Str("component", "panels").Logger()
	if policy == "" {
		policy = session.PolicyOptimistic
	}
	return &Panels{
		deps:     deps,
		policy:   policy,
		executor: deps.newExecutor(),
	}
}

func (p *Panels) Create(ctx context.Context, in platform.Interaction) error {
	n := p.deps.Catalog.Notices
	err := p.checkCreate(in)
	var cfg settings.Config
	if err == nil {
		cfg, err = p.deps.loadConfig(ctx, in)
	}
	if err != nil {
		if errors.Is(err, ErrNoRolesConfigured) {
			if rerr := p.deps.Gateway.Reply(ctx, in, platform.Text(n.PanelNoRoles)); rerr != nil {
				p.deps.Log.Warn().Err(rerr).Msg("send rejection notice failed")
			}
			p.deps.Metrics.Preconditions.WithLabelValues(preconditionReason(err)).Inc()
			return err
		}
		p.deps.reject(ctx, in, err, n.PanelError)
		return err
	}

	channelID := strings.TrimSpace(in.Options[PanelChannelOption])
	if _, err := p.deps.Gateway.PostMessage(ctx, channelID, renderPanel(p.deps.Catalog, in.GuildName, cfg.EnabledRoles)); err != nil {
		if rerr := p.deps.Gateway.Reply(ctx, in, platform.Text(n.PanelError)); rerr != nil {
			p.deps.Log.Warn().Err(rerr).Msg("send panel error notice failed")
		}
		return errors.Wrap(err, "post panel")
	}

	p.deps.Log.Info().Str("guild_id", in.GuildID).Str("channel_id", channelID).Msg("panel posted")
	posted := platform.Text(messages.Format(n.PanelPosted, "channel", platform.ChannelMention(channelID)))
	return errors.Wrap(p.deps.Gateway.Reply(ctx, in, posted), "confirm panel")
}

func (p *Panels) checkCreate(in platform.Interaction) error {
	if !in.InGuild() {
		return ErrNotInGuild
	}
	if !in.IsAdmin {
		return ErrNotAdmin
	}
	if strings.TrimSpace(in.Options[PanelChannelOption]) == "" {
		return ErrMissingChannel
	}
	return nil
}

// HandleClick grants the configured roles to whoever clicked the panel.
func (p *Panels) HandleClick(ctx context.Context, in platform.Interaction) error {
	cfg, err := p.deps.loadConfig(ctx, in)
	if err != nil {
		p.deps.Metrics.PanelClicks.WithLabelValues("rejected").Inc()
		p.deps.reject(ctx, in, err, p.deps.Catalog.Notices.AuthError)
		return err
	}

	log := p.deps.Log.With().Str("guild_id", in.GuildID).Str("actor_id", in.Actor.ID).Logger()
	r := &responder{gateway: p.deps.Gateway, in: in, interactive: true}
	if err := p.deps.Gateway.DeferReply(ctx, in, true); err != nil {
		log.Warn().Err(err).Msg("acknowledge panel click failed")
	} else {
		r.acked = true
	}

	results := p.executor.Grant(ctx, in.GuildID, in.Actor.ID, cfg.EnabledRoles)
	_, failed := grant.Split(results)
	status, outcome := audit.StatusSuccess, "granted"
	var shown []grant.Result
	if p.policy == session.PolicyStrict && len(failed) > 0 {
		status, outcome, shown = audit.StatusFailure, "partial_failure", failed
	}
	p.deps.Metrics.PanelClicks.WithLabelValues(outcome).Inc()

	if err := r.send(ctx, renderGrantOutcome(p.deps.Catalog, cfg.SuccessMessage, cfg.EnabledRoles, shown)); err != nil {
		log.Error().Err(err).Msg("panel reply failed")
		if ferr := r.fail(ctx, p.deps.Catalog.Notices.GenericError); ferr != nil {
			log.Warn().Err(ferr).Msg("send error notice failed")
		}
	}
	if cfg.DMNotify {
		text := dmText{success: cfg.SuccessMessage, failure: cfg.FailureMessage}
		p.deps.notify(ctx, in.Actor.ID, p.deps.grantDM(ctx, in.GuildID, in.GuildName, text, cfg.EnabledRoles, results, status == audit.StatusFailure))
	}
	if cfg.LogActions {
		p.deps.writeAudit(ctx, audit.Entry{
			ActorID:  in.Actor.ID,
			ActorTag: in.Actor.Tag,
			GuildID:  in.GuildID,
			Action:   audit.ActionPanel,
			Status:   status,
			Detail:   "user " + actorLabel(in.Actor) + " authenticated from panel; " + grant.Summary(results),
		})
	}
	log.Info().Str("outcome", outcome).Msg("panel click handled")
	return nil
}

func actorLabel(a platform.Actor) string {
	if a.Tag != "" {
		return a.Tag
	}
	return a.ID
}
