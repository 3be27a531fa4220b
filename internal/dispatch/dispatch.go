// Package dispatch routes inbound platform events to the flow that owns them.
package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"rolegate/authbot/internal/authflow"
	"rolegate/authbot/internal/grant"
	"rolegate/authbot/internal/platform"
	"rolegate/authbot/internal/session"
)

// Command names registered with the platform.
const (
	CommandAuth   = "auth"
	CommandHelp   = "auth-help"
	CommandStatus = "auth-status"
	CommandPanel  = "auth-panel"
)

type SessionFlow interface {
	Start(ctx context.Context, in platform.Interaction) error
	HandleClick(ctx context.Context, in platform.Interaction, control string) error
}

type PanelFlow interface {
	Create(ctx context.Context, in platform.Interaction) error
	HandleClick(ctx context.Context, in platform.Interaction) error
}

type InfoFlow interface {
	Help(ctx context.Context, in platform.Interaction) error
	Status(ctx context.Context, in platform.Interaction) error
}

type JoinFlow interface {
	HandleJoin(ctx context.Context, ev platform.MemberJoined) ([]grant.Result, error)
}

type Dispatcher struct {
	sessions SessionFlow
	panels   PanelFlow
	info     InfoFlow
	joins    JoinFlow
	log      zerolog.Logger
}

func New(sessions SessionFlow, panels PanelFlow, info InfoFlow, joins JoinFlow, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		panels:   panels,
		info:     info,
		joins:    joins,
		log:      log.With().Str("component", "dispatch").Logger(),
	}
}

// HandleEvent implements platform.Handler.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev platform.Event) {
	var (
		err   error
		route string
	)
	switch e := ev.(type) {
	case platform.Command:
		route = "command:" + e.Name
		err = d.command(ctx, e)
	case platform.ComponentClick:
		route = "click:" + e.CustomID
		err = d.click(ctx, e)
	case platform.MemberJoined:
		route = "member_joined"
		if d.joins != nil {
			_, err = d.joins.HandleJoin(ctx, e)
		}
	default:
		d.log.Warn().Msgf("unsupported event %T", ev)
		return
	}
	d.report(route, err)
}

func (d *Dispatcher) command(ctx context.Context, c platform.Command) error {
	switch c.Name {
	case CommandAuth:
		return d.sessions.Start(ctx, c.Interaction)
	case CommandHelp:
		return d.info.Help(ctx, c.Interaction)
	case CommandStatus:
		return d.info.Status(ctx, c.Interaction)
	case CommandPanel:
		return d.panels.Create(ctx, c.Interaction)
	}
	d.log.Debug().Str("command", c.Name).Msg("ignoring unknown command")
	return nil
}

func (d *Dispatcher) click(ctx context.Context, c platform.ComponentClick) error {
	switch c.CustomID {
	case session.ControlAuthenticate, session.ControlCancel:
		return d.sessions.HandleClick(ctx, c.Interaction, c.CustomID)
	case authflow.ControlPanel:
		return d.panels.HandleClick(ctx, c.Interaction)
	}
	d.log.Debug().Str("custom_id", c.CustomID).Msg("ignoring unknown component")
	return nil
}

func (d *Dispatcher) report(route string, err error) {
	switch {
	case err == nil:
	case authflow.IsPrecondition(err):
		d.log.Info().Str("route", route).Str("reason", err.Error()).Msg("request rejected")
	default:
		d.log.Error().Err(err).Str("route", route).Msg("event handling failed")
	}
}
