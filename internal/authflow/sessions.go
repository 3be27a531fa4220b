package authflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"rolegate/authbot/internal/audit"
	"rolegate/authbot/internal/cooldown"
	"rolegate/authbot/internal/grant"
	"rolegate/authbot/internal/platform"
	"rolegate/authbot/internal/session"
)

const DefaultSessionTimeout = 60 * time.Second

type SessionsConfig struct {
	Timeout time.Duration
	Policy  session.Policy

	// Cooldown is consulted only when set. Guilds with a zero cooldown are never throttled.
	Cooldown cooldown.Limiter
}

// Sessions runs personal authentication prompts. Each prompt accepts at most
// one event from its owner before it expires.
type Sessions struct {
	deps     Deps
	cfg      SessionsConfig
	registry *session.Registry
	executor *grant.Executor
	nowFunc  func() time.Time
	newID    func() string
}

func NewSessions(deps Deps, registry *session.Registry, cfg SessionsConfig) *Sessions {
	deps = deps.withDefaults()
	deps.Log = deps.Log.With().Str("component", "sessions").Logger()
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSessionTimeout
	}
	if cfg.Policy == "" {
		cfg.Policy = session.PolicyOptimistic
	}
	if registry == nil {
		registry = session.NewRegistry(nil)
	}
	return &Sessions{
		deps:     deps,
		cfg:      cfg,
		registry: registry,
		executor: deps.newExecutor(),
		nowFunc:  time.Now,
		newID:    uuid.NewString,
	}
}

// Active lists the sessions still waiting for a response.
func (s *Sessions) Active() []session.View {
	sessions := s.registry.Sessions()
	out := make([]session.View, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.View())
	}
	return out
}

// Start checks the preconditions, sends the prompt and opens its listener.
// Precondition failures are answered privately and returned.
func (s *Sessions) Start(ctx context.Context, in platform.Interaction) error {
	cfg, err := s.deps.loadConfig(ctx, in)
	if err == nil {
		err = s.checkCooldown(ctx, in, cfg.CooldownWindow())
	}
	if err != nil {
		s.deps.reject(ctx, in, err, s.deps.Catalog.Notices.AuthError)
		return err
	}

	sess := session.New(s.newID(), in.GuildID, in.Actor.ID, in.Actor.Tag, cfg.EnabledRoles, session.Options{
		DMNotify:       cfg.DMNotify,
		LogActions:     cfg.LogActions,
		SuccessMessage: cfg.SuccessMessage,
		FailureMessage: cfg.FailureMessage,
		Policy:         s.cfg.Policy,
	}, s.nowFunc(), s.cfg.Timeout)
	sess.GuildName = in.GuildName

	messageID, err := s.deps.Gateway.SendPrompt(ctx, in, renderPrompt(s.deps.Catalog, sess))
	if err != nil {
		s.withdrawPrompt(ctx, in)
		return errors.Wrap(err, "send prompt")
	}
	sess.MessageID = messageID

	if _, err := s.registry.Open(messageID, sess, s.cfg.Timeout, func(key string) { s.expire(key, in) }); err != nil {
		s.withdrawPrompt(ctx, in)
		return errors.Wrap(err, "open listener")
	}
	s.deps.Metrics.SessionsStarted.Inc()
	s.deps.Metrics.SessionsActive.Inc()
	s.deps.Log.Info().
		Str("session_id", sess.ID).
		Str("guild_id", sess.GuildID).
		Str("actor_id", sess.ActorID).
		Str("message_id", messageID).
		Msg("session opened")
	return nil
}

func (s *Sessions) checkCooldown(ctx context.Context, in platform.Interaction, window time.Duration) error {
	if s.cfg.Cooldown == nil || window <= 0 {
		return nil
	}
	allowed, remaining, err := s.cfg.Cooldown.Allow(ctx, in.GuildID, in.Actor.ID, window)
	if err != nil {
		// Fail open; a broken limiter must not lock members out.
		s.deps.Log.Warn().Err(err).Str("guild_id", in.GuildID).Msg("cooldown check failed")
		return nil
	}
	if !allowed {
		return &CooldownError{Remaining: remaining}
	}
	return nil
}

// withdrawPrompt tells the actor the session could not start. A prompt that was
// rendered without a listener is replaced so its controls disappear; when
// nothing was rendered the notice becomes the reply.
func (s *Sessions) withdrawPrompt(ctx context.Context, in platform.Interaction) {
	notice := platform.Text(s.deps.Catalog.Notices.GenericError)
	err := s.deps.Gateway.EditReply(ctx, in, notice)
	if err == nil {
		return
	}
	if rerr := s.deps.Gateway.Reply(ctx, in, notice); rerr != nil {
		s.deps.Log.Warn().
			Err(rerr).
			AnErr("edit_err", err).
			Str("guild_id", in.GuildID).
			Str("actor_id", in.Actor.ID).
			Msg("send error notice failed")
	}
}

// HandleClick feeds a click on a session control to the listener bound to the
// clicked message. Clicks on unknown or settled prompts get an expiry notice.
func (s *Sessions) HandleClick(ctx context.Context, in platform.Interaction, control string) error {
	l, ok := s.registry.Lookup(in.MessageID)
	if !ok {
		return s.expired(ctx, in)
	}
	_, next, effects := l.Apply(session.Click(in.Actor.ID, control))
	if len(effects) == 0 {
		return s.expired(ctx, in)
	}
	r := &responder{gateway: s.deps.Gateway, in: in, update: true, interactive: true}
	s.run(ctx, r, l, next, effects)
	return nil
}

func (s *Sessions) expired(ctx context.Context, in platform.Interaction) error {
	return errors.Wrap(s.deps.Gateway.Reply(ctx, in, platform.Text(s.deps.Catalog.Notices.Expired)), "send expiry notice")
}

// expire is the listener timer callback. The prompt is edited through the
// command interaction that created it.
func (s *Sessions) expire(key string, origin platform.Interaction) {
	l, ok := s.registry.Lookup(key)
	if !ok {
		return
	}
	_, next, effects := l.Apply(session.Timeout())
	if len(effects) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
	defer cancel()
	r := &responder{gateway: s.deps.Gateway, in: origin, acked: true}
	s.run(ctx, r, l, next, effects)
}

// run executes effects in order. Failures are logged and never stop the
// remaining effects, so the session always settles.
func (s *Sessions) run(ctx context.Context, r *responder, l *session.Listener, sess session.Session, effects []session.Effect) {
	log := s.deps.Log.With().
		Str("session_id", sess.ID).
		Str("guild_id", sess.GuildID).
		Str("actor_id", sess.ActorID).
		Logger()

	for _, e := range effects {
		switch e.Kind {
		case session.EffectStopListener:
			if s.registry.Close(sess.MessageID, l) {
				s.deps.Metrics.SessionsActive.Dec()
			}

		case session.EffectGrantRoles:
			if !r.acked {
				if err := s.deps.Gateway.DeferUpdate(ctx, r.in); err != nil {
					log.Warn().Err(err).Msg("acknowledge click failed")
				} else {
					r.acked = true
				}
			}
			results := s.executor.Grant(ctx, sess.GuildID, sess.ActorID, e.Roles)
			_, next, more := l.Apply(session.GrantsCompleted(results))
			s.run(ctx, r, l, next, more)
			return

		case session.EffectEditPrompt:
			if err := r.send(ctx, renderNotice(s.deps.Catalog, sess, e.Notice)); err != nil {
				log.Error().Err(err).Str("notice", string(e.Notice)).Msg("edit prompt failed")
				if r.interactive {
					if ferr := r.fail(ctx, s.deps.Catalog.Notices.GenericError); ferr != nil {
						log.Warn().Err(ferr).Msg("send error notice failed")
					}
				}
			}

		case session.EffectReply:
			if err := s.deps.Gateway.Reply(ctx, r.in, renderNotice(s.deps.Catalog, sess, e.Notice)); err != nil {
				log.Warn().Err(err).Str("notice", string(e.Notice)).Msg("reply failed")
			}

		case session.EffectSendDM:
			text := dmText{success: sess.Options.SuccessMessage, failure: sess.Options.FailureMessage}
			partial := e.Notice == session.NoticePartialFailure
			s.deps.notify(ctx, sess.ActorID, s.deps.grantDM(ctx, sess.GuildID, sess.GuildName, text, sess.TargetRoles, sess.Results, partial))

		case session.EffectWriteLog:
			s.deps.writeAudit(ctx, audit.Entry{
				ActorID:  sess.ActorID,
				ActorTag: sess.ActorTag,
				GuildID:  sess.GuildID,
				Action:   e.Log.Action,
				Status:   e.Log.Status,
				Detail:   e.Log.Detail,
			})
		}
	}

	if sess.State.Terminal() {
		s.deps.Metrics.SessionsFinished.WithLabelValues(string(sess.State)).Inc()
		log.Info().Str("state", string(sess.State)).Msg("session finished")
	}
}
