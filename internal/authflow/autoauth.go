package authflow

import (
	"context"

	"github.com/pkg/errors"

	"rolegate/authbot/internal/audit"
	"rolegate/authbot/internal/grant"
	"rolegate/authbot/internal/platform"
	"rolegate/authbot/internal/session"
	"rolegate/authbot/internal/settings"
)

// AutoAuth grants the configured roles to members as they join guilds that
// enabled autoAuth.
type AutoAuth struct {
	deps     Deps
	policy   session.Policy
	executor *grant.Executor
}

func NewAutoAuth(deps Deps, policy session.Policy) *AutoAuth {
	deps = deps.withDefaults()
	deps.Log = deps.Log.With().Str("component", "autoauth").Logger()
	if policy == "" {
		policy = session.PolicyOptimistic
	}
	return &AutoAuth{deps: deps, policy: policy, executor: deps.newExecutor()}
}

// HandleJoin returns the grant results, or nil when the guild does not auto-authenticate.
func (a *AutoAuth) HandleJoin(ctx context.Context, ev platform.MemberJoined) ([]grant.Result, error) {
	cfg, err := a.deps.Settings.Get(ctx, ev.GuildID)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "load guild settings")
	}
	if !cfg.AutoAuth || len(cfg.EnabledRoles) == 0 {
		return nil, nil
	}

	results := a.executor.Grant(ctx, ev.GuildID, ev.Member.ID, cfg.EnabledRoles)
	status := audit.StatusSuccess
	if a.policy == session.PolicyStrict && !grant.AllGranted(results) {
		status = audit.StatusFailure
	}
	if cfg.DMNotify {
		text := dmText{success: cfg.SuccessMessage, failure: cfg.FailureMessage}
		a.deps.notify(ctx, ev.Member.ID, a.deps.grantDM(ctx, ev.GuildID, ev.GuildName, text, cfg.EnabledRoles, results, status == audit.StatusFailure))
	}
	if cfg.LogActions {
		a.deps.writeAudit(ctx, audit.Entry{
			ActorID:  ev.Member.ID,
			ActorTag: ev.Member.Tag,
			GuildID:  ev.GuildID,
			Action:   audit.ActionAuto,
			Status:   status,
			Detail:   "user " + actorLabel(ev.Member) + " authenticated on join; " + grant.Summary(results),
		})
	}
	a.deps.Log.Info().
		Str("guild_id", ev.GuildID).
		Str("member_id", ev.Member.ID).
		Str("status", status).
		Msg("member auto-authenticated")
	return results, nil
}
