package authflow

import (
	"context"

	"github.com/pkg/errors"

	"rolegate/authbot/internal/platform"
	"rolegate/authbot/internal/settings"
)

// Info answers the read-only commands.
type Info struct {
	deps Deps
}

func NewInfo(deps Deps) *Info {
	deps = deps.withDefaults()
	deps.Log = deps.Log.With().Str("component", "info").Logger()
	return &Info{deps: deps}
}

func (i *Info) Help(ctx context.Context, in platform.Interaction) error {
	return errors.Wrap(i.deps.Gateway.Reply(ctx, in, renderHelp(i.deps.Catalog)), "send help")
}

// Status compares the member's roles with the guild's configured roles.
func (i *Info) Status(ctx context.Context, in platform.Interaction) error {
	if !in.InGuild() {
		i.deps.reject(ctx, in, ErrNotInGuild, "")
		return ErrNotInGuild
	}
	cfg, err := i.deps.Settings.Get(ctx, in.GuildID)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			i.deps.reject(ctx, in, ErrConfigMissing, "")
			return ErrConfigMissing
		}
		i.deps.reject(ctx, in, err, i.deps.Catalog.Notices.StatusError)
		return errors.Wrap(err, "load guild settings")
	}
	held, err := i.deps.Gateway.MemberRoles(ctx, in.GuildID, in.Actor.ID)
	if err != nil {
		i.deps.reject(ctx, in, err, i.deps.Catalog.Notices.StatusError)
		return errors.Wrap(err, "read member roles")
	}
	return errors.Wrap(i.deps.Gateway.Reply(ctx, in, renderStatus(i.deps.Catalog, cfg, held)), "send status")
}
