package authflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rolegate/authbot/internal/audit"
	"rolegate/authbot/internal/cooldown"
	"rolegate/authbot/internal/platform"
	"rolegate/authbot/internal/session"
	"rolegate/authbot/internal/settings"
)

func newSessions(h *harness, cfg SessionsConfig) *Sessions {
	s := NewSessions(h.deps, h.registry, cfg)
	s.nowFunc = func() time.Time { return time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC) }
	return s
}

func startSession(t *testing.T, s *Sessions, actorID string) string {
	t.Helper()
	require.NoError(t, s.Start(context.Background(), commandFrom(actorID)))
	views := s.Active()
	require.NotEmpty(t, views)
	return views[len(views)-1].MessageID
}

func TestStartRendersPromptAndOpensListener(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1", "R2"))
	s := newSessions(h, SessionsConfig{})

	messageID := startSession(t, s, "owner")

	prompts := h.gateway.callsOf("SendPrompt")
	require.Len(t, prompts, 1)
	msg := prompts[0].Message
	assert.True(t, msg.Ephemeral)
	require.Len(t, msg.Buttons, 2)
	assert.Equal(t, session.ControlAuthenticate, msg.Buttons[0].ID)
	assert.Equal(t, session.ControlCancel, msg.Buttons[1].ID)
	assert.Contains(t, msg.Embeds[0].Fields[0].Value, "<@&R1>, <@&R2>")
	assert.Equal(t, "Acme authentication", msg.Embeds[0].Footer)

	views := s.Active()
	require.Len(t, views, 1)
	assert.Equal(t, messageID, views[0].MessageID)
	assert.Equal(t, session.StatePending, views[0].State)
	assert.Equal(t, time.Date(2026, 2, 16, 12, 1, 0, 0, time.UTC), views[0].Deadline)
	assert.Empty(t, h.audit.Entries())
}

func TestAuthenticateGrantsRolesAndLogsSuccess(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1", "R2"))
	s := newSessions(h, SessionsConfig{})
	messageID := startSession(t, s, "owner")

	require.NoError(t, s.HandleClick(context.Background(), clickFrom("owner", messageID), session.ControlAuthenticate))

	assert.Equal(t, []roleAdd{{"g1", "owner", "R1"}, {"g1", "owner", "R2"}}, h.gateway.addedRoles())
	require.Len(t, h.gateway.callsOf("DeferUpdate"), 1)

	edits := h.gateway.callsOf("EditReply")
	require.Len(t, edits, 1)
	assert.Equal(t, "click-owner", edits[0].Interaction.ID)
	assert.Empty(t, edits[0].Message.Buttons)
	assert.Equal(t, settings.DefaultSuccessMessage, edits[0].Message.Embeds[0].Description)

	dms := h.gateway.callsOf("SendDirectMessage")
	require.Len(t, dms, 1)
	assert.Equal(t, "owner", dms[0].Target)
	assert.Equal(t, "Authenticated in Acme", dms[0].Message.Embeds[0].Title)
	assert.Equal(t, "Verified, Member", dms[0].Message.Embeds[0].Fields[0].Value)

	entries := h.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionAuth, entries[0].Action)
	assert.Equal(t, audit.StatusSuccess, entries[0].Status)
	assert.Equal(t, "owner#0001", entries[0].ActorTag)
	assert.Zero(t, h.registry.Len())
	assert.Empty(t, s.Active())
}

func TestCancelEditsPromptWithoutGranting(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1", "R2"))
	s := newSessions(h, SessionsConfig{})
	messageID := startSession(t, s, "owner")

	require.NoError(t, s.HandleClick(context.Background(), clickFrom("owner", messageID), session.ControlCancel))

	assert.Empty(t, h.gateway.addedRoles())
	updates := h.gateway.callsOf("UpdateMessage")
	require.Len(t, updates, 1)
	assert.Empty(t, updates[0].Message.Buttons)
	assert.Equal(t, h.deps.Catalog.Cancelled.Title, updates[0].Message.Embeds[0].Title)

	entries := h.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionCancel, entries[0].Action)
	assert.Equal(t, audit.StatusFailure, entries[0].Status)
	assert.Empty(t, h.gateway.callsOf("SendDirectMessage"))
	assert.Zero(t, h.registry.Len())
}

func TestTimeoutEditsOriginalResponse(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1", "R2"))
	s := newSessions(h, SessionsConfig{})
	startSession(t, s, "owner")

	assert.Empty(t, h.audit.Entries(), "no timeout entry before the deadline")
	h.clock.fireAll()

	edits := h.gateway.callsOf("EditReply")
	require.Len(t, edits, 1)
	assert.Equal(t, "cmd-owner", edits[0].Interaction.ID)
	assert.Equal(t, h.deps.Catalog.TimedOut.Title, edits[0].Message.Embeds[0].Title)
	assert.Empty(t, edits[0].Message.Buttons)

	entries := h.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionTimeout, entries[0].Action)
	assert.Equal(t, audit.StatusFailure, entries[0].Status)
	assert.Zero(t, h.registry.Len())

	h.clock.fireAllIgnoringStop()
	assert.Len(t, h.audit.Entries(), 1, "a late timer is a no-op")
}

func TestPartialGrantFailureOptimistic(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1", "R2"))
	h.gateway.failRoles["R1"] = errors.New("missing access")
	s := newSessions(h, SessionsConfig{})
	messageID := startSession(t, s, "owner")

	require.NoError(t, s.HandleClick(context.Background(), clickFrom("owner", messageID), session.ControlAuthenticate))

	assert.Len(t, h.gateway.addedRoles(), 2)
	entries := h.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.StatusSuccess, entries[0].Status)
	assert.Contains(t, entries[0].Detail, "granted: R2")
	assert.Contains(t, entries[0].Detail, "R1 (missing access)")

	edits := h.gateway.callsOf("EditReply")
	require.Len(t, edits, 1)
	assert.Equal(t, h.deps.Catalog.Success.Title, edits[0].Message.Embeds[0].Title)

	dms := h.gateway.callsOf("SendDirectMessage")
	require.Len(t, dms, 1)
	assert.Equal(t, settings.DefaultSuccessMessage, dms[0].Message.Embeds[0].Description)
	assert.Len(t, dms[0].Message.Embeds[0].Fields, 1)
}

func TestPartialGrantFailureStrict(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1", "R2"))
	h.gateway.failRoles["R1"] = errors.New("missing access")
	s := newSessions(h, SessionsConfig{Policy: session.PolicyStrict})
	messageID := startSession(t, s, "owner")

	require.NoError(t, s.HandleClick(context.Background(), clickFrom("owner", messageID), session.ControlAuthenticate))

	entries := h.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionAuth, entries[0].Action)
	assert.Equal(t, audit.StatusFailure, entries[0].Status)

	edits := h.gateway.callsOf("EditReply")
	require.Len(t, edits, 1)
	embed := edits[0].Message.Embeds[0]
	assert.Equal(t, h.deps.Catalog.PartialFailure.Title, embed.Title)
	assert.Equal(t, "<@&R2>", embed.Fields[0].Value)
	assert.Equal(t, "<@&R1>", embed.Fields[1].Value)

	dms := h.gateway.callsOf("SendDirectMessage")
	require.Len(t, dms, 1)
	dm := dms[0].Message.Embeds[0]
	assert.Equal(t, "Authentication incomplete in Acme", dm.Title)
	assert.Equal(t, settings.DefaultFailureMessage, dm.Description)
	require.Len(t, dm.Fields, 2)
	assert.Equal(t, "Member", dm.Fields[0].Value)
	assert.Equal(t, "Verified", dm.Fields[1].Value)
}

// Each precondition stops before a prompt is sent or a session exists.
func TestStartPreconditions(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(t *testing.T, h *harness)
		in     platform.Interaction
		want   error
		notice func(h *harness) string
	}{
		{
			name:   "not in guild",
			in:     platform.Interaction{Actor: platform.Actor{ID: "owner"}},
			want:   ErrNotInGuild,
			notice: func(h *harness) string { return h.deps.Catalog.Notices.NotInGuild },
		},
		{
			name:   "config missing",
			in:     commandFrom("owner"),
			want:   ErrConfigMissing,
			notice: func(h *harness) string { return h.deps.Catalog.Notices.ConfigMissing },
		},
		{
			name:   "no roles configured",
			setup:  func(t *testing.T, h *harness) { h.configure(t, "g1", settings.Patch{}) },
			in:     commandFrom("owner"),
			want:   ErrNoRolesConfigured,
			notice: func(h *harness) string { return h.deps.Catalog.Notices.NoRolesConfigured },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if tc.setup != nil {
				tc.setup(t, h)
			}
			s := newSessions(h, SessionsConfig{})

			err := s.Start(context.Background(), tc.in)
			require.ErrorIs(t, err, tc.want)

			assert.Empty(t, h.gateway.callsOf("SendPrompt"))
			replies := h.gateway.callsOf("Reply")
			require.Len(t, replies, 1)
			assert.True(t, replies[0].Message.Ephemeral)
			assert.Equal(t, tc.notice(h), replies[0].Message.Content)
			assert.Zero(t, h.registry.Len())
			assert.Empty(t, h.audit.Entries())
		})
	}
}

func TestForeignClicksNeverChangeState(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1"))
	s := newSessions(h, SessionsConfig{})
	messageID := startSession(t, s, "owner")

	for _, intruder := range []string{"a", "b", "c"} {
		require.NoError(t, s.HandleClick(context.Background(), clickFrom(intruder, messageID), session.ControlAuthenticate))
		require.NoError(t, s.HandleClick(context.Background(), clickFrom(intruder, messageID), session.ControlCancel))
	}

	replies := h.gateway.callsOf("Reply")
	require.Len(t, replies, 6)
	for _, r := range replies {
		assert.Equal(t, h.deps.Catalog.Notices.ActorMismatch, r.Message.Content)
		assert.True(t, r.Message.Ephemeral)
	}
	assert.Empty(t, h.gateway.addedRoles())
	assert.Empty(t, h.audit.Entries())
	require.Len(t, s.Active(), 1)
	assert.Equal(t, session.StatePending, s.Active()[0].State)

	require.NoError(t, s.HandleClick(context.Background(), clickFrom("owner", messageID), session.ControlAuthenticate))
	assert.Len(t, h.audit.Entries(), 1)
}

func TestAcceptedEventPreventsTimeout(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1"))
	s := newSessions(h, SessionsConfig{})
	messageID := startSession(t, s, "owner")

	require.NoError(t, s.HandleClick(context.Background(), clickFrom("owner", messageID), session.ControlAuthenticate))
	h.clock.fireAllIgnoringStop()

	for _, e := range h.audit.Entries() {
		assert.NotEqual(t, audit.ActionTimeout, e.Action)
	}
	assert.Len(t, h.audit.Entries(), 1)
}

func TestClickOnSettledPromptGetsExpiryNotice(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1"))
	s := newSessions(h, SessionsConfig{})
	messageID := startSession(t, s, "owner")
	h.clock.fireAll()

	require.NoError(t, s.HandleClick(context.Background(), clickFrom("owner", messageID), session.ControlAuthenticate))

	replies := h.gateway.callsOf("Reply")
	require.Len(t, replies, 1)
	assert.Equal(t, h.deps.Catalog.Notices.Expired, replies[0].Message.Content)
	assert.Empty(t, h.gateway.addedRoles())
	assert.Len(t, h.audit.Entries(), 1)
}

func TestConcurrentClicksGrantOnce(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1", "R2"))
	s := newSessions(h, SessionsConfig{})
	messageID := startSession(t, s, "owner")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			control := session.ControlAuthenticate
			if i%3 == 0 {
				control = session.ControlCancel
			}
			_ = s.HandleClick(context.Background(), clickFrom("owner", messageID), control)
		}(i)
	}
	wg.Wait()

	entries := h.audit.Entries()
	require.Len(t, entries, 1)
	added := h.gateway.addedRoles()
	if entries[0].Action == audit.ActionAuth {
		assert.Len(t, added, 2)
	} else {
		assert.Empty(t, added)
	}
	assert.Zero(t, h.registry.Len())
}

func TestLoggingDisabledWritesNoEntries(t *testing.T) {
	h := newHarness(t)
	roles := []string{"R1"}
	h.configure(t, "g1", settings.Patch{EnabledRoles: &roles, LogActions: boolPtr(false), DMNotify: boolPtr(false)})
	s := newSessions(h, SessionsConfig{})

	first := startSession(t, s, "owner")
	require.NoError(t, s.HandleClick(context.Background(), clickFrom("owner", first), session.ControlAuthenticate))
	startSession(t, s, "other")
	h.clock.fireAll()

	assert.Empty(t, h.audit.Entries())
	assert.Empty(t, h.gateway.callsOf("SendDirectMessage"))
}

func TestDownstreamFailuresStillSettleSession(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1"))
	h.gateway.failOn("SendDirectMessage", errors.New("dm closed"))
	h.gateway.failOn("EditReply", errors.New("unknown webhook"))
	h.deps.Audit = failingSink{}
	s := newSessions(h, SessionsConfig{})
	messageID := startSession(t, s, "owner")

	require.NoError(t, s.HandleClick(context.Background(), clickFrom("owner", messageID), session.ControlAuthenticate))

	assert.Len(t, h.gateway.addedRoles(), 1)
	followUps := h.gateway.callsOf("FollowUp")
	require.Len(t, followUps, 1)
	assert.Equal(t, h.deps.Catalog.Notices.GenericError, followUps[0].Message.Content)
	assert.Zero(t, h.registry.Len())
}

func TestSendPromptFailureOpensNothing(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1"))
	h.gateway.failOn("SendPrompt", errors.New("fetch prompt message: 500"))
	s := newSessions(h, SessionsConfig{})

	err := s.Start(context.Background(), commandFrom("owner"))
	require.Error(t, err)
	assert.Zero(t, h.registry.Len())

	edits := h.gateway.callsOf("EditReply")
	require.Len(t, edits, 1)
	assert.Equal(t, "cmd-owner", edits[0].Interaction.ID)
	assert.Equal(t, h.deps.Catalog.Notices.GenericError, edits[0].Message.Content)
	assert.Empty(t, edits[0].Message.Buttons)
	assert.Empty(t, edits[0].Message.Embeds)
	assert.Empty(t, h.gateway.callsOf("Reply"))
}

func TestSendPromptFailureWithoutResponseRepliesWithNotice(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1"))
	h.gateway.failOn("SendPrompt", errors.New("interaction respond: 500"))
	h.gateway.failOn("EditReply", errors.New("unknown webhook"))
	s := newSessions(h, SessionsConfig{})

	require.Error(t, s.Start(context.Background(), commandFrom("owner")))

	replies := h.gateway.callsOf("Reply")
	require.Len(t, replies, 1)
	assert.Equal(t, h.deps.Catalog.Notices.GenericError, replies[0].Message.Content)
	assert.True(t, replies[0].Message.Ephemeral)
	assert.Zero(t, h.registry.Len())
}

func TestListenerOpenFailureWithdrawsPrompt(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1"))
	s := newSessions(h, SessionsConfig{})

	stale := session.New("stale", "g1", "someone", "", []string{"R1"}, session.Options{}, time.Now(), time.Minute)
	_, err := h.registry.Open("msg-1", stale, time.Minute, func(string) {})
	require.NoError(t, err)

	err = s.Start(context.Background(), commandFrom("owner"))
	require.Error(t, err)
	assert.Len(t, h.gateway.callsOf("SendPrompt"), 1)

	edits := h.gateway.callsOf("EditReply")
	require.Len(t, edits, 1)
	assert.Equal(t, h.deps.Catalog.Notices.GenericError, edits[0].Message.Content)
	assert.Empty(t, edits[0].Message.Buttons)
	assert.Equal(t, 1, h.registry.Len())
}

func TestCooldownRejectsRepeatAttempts(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1"))
	s := newSessions(h, SessionsConfig{Cooldown: cooldown.NewMemoryLimiter()})

	startSession(t, s, "owner")
	err := s.Start(context.Background(), commandFrom("owner"))
	require.ErrorIs(t, err, ErrCooldownActive)
	var cerr *CooldownError
	require.ErrorAs(t, err, &cerr)
	assert.Greater(t, cerr.Remaining, time.Duration(0))

	replies := h.gateway.callsOf("Reply")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Message.Content, "seconds")

	require.NoError(t, s.Start(context.Background(), commandFrom("other")))
	assert.Equal(t, 2, h.registry.Len())
}

func TestCooldownIgnoredWithoutLimiter(t *testing.T) {
	h := newHarness(t)
	h.configure(t, "g1", rolesPatch("R1"))
	s := newSessions(h, SessionsConfig{})

	startSession(t, s, "owner")
	startSession(t, s, "owner")
	assert.Equal(t, 2, h.registry.Len())
}
