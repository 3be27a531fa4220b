package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rolegate/authbot/internal/audit"
	"rolegate/authbot/internal/messages"
	"rolegate/authbot/internal/observability"
	"rolegate/authbot/internal/platform"
	"rolegate/authbot/internal/session"
	"rolegate/authbot/internal/settings"
)

type call struct {
	Method      string
	Interaction platform.Interaction
	Target      string
	Message     platform.Message
}

type roleAdd struct {
	GuildID, UserID, RoleID string
}

// fakeGateway records every outbound call. Failures are injected per method name.
type fakeGateway struct {
	mu        sync.Mutex
	calls     []call
	roleAdds  []roleAdd
	failRoles map[string]error
	fail      map[string]error
	held      []string
	nextID    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failRoles: map[string]error{}, fail: map[string]error{}}
}

func (g *fakeGateway) record(method string, in platform.Interaction, target string, msg platform.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call{Method: method, Interaction: in, Target: target, Message: msg})
	return g.fail[method]
}

func (g *fakeGateway) failOn(method string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[method] = err
}

func (g *fakeGateway) Reply(_ context.Context, in platform.Interaction, msg platform.Message) error {
	return g.record("Reply", in, "", msg)
}

func (g *fakeGateway) SendPrompt(_ context.Context, in platform.Interaction, msg platform.Message) (string, error) {
	if err := g.record("SendPrompt", in, "", msg); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	return fmt.Sprintf("msg-%d", g.nextID), nil
}

func (g *fakeGateway) DeferUpdate(_ context.Context, in platform.Interaction) error {
	return g.record("DeferUpdate", in, "", platform.Message{})
}

func (g *fakeGateway) DeferReply(_ context.Context, in platform.Interaction, ephemeral bool) error {
	return g.record("DeferReply", in, "", platform.Message{Ephemeral: ephemeral})
}

func (g *fakeGateway) UpdateMessage(_ context.Context, in platform.Interaction, msg platform.Message) error {
	return g.record("UpdateMessage", in, "", msg)
}

func (g *fakeGateway) EditReply(_ context.Context, in platform.Interaction, msg platform.Message) error {
	return g.record("EditReply", in, "", msg)
}

func (g *fakeGateway) FollowUp(_ context.Context, in platform.Interaction, msg platform.Message) error {
	return g.record("FollowUp", in, "", msg)
}

func (g *fakeGateway) PostMessage(_ context.Context, channelID string, msg platform.Message) (string, error) {
	if err := g.record("PostMessage", platform.Interaction{}, channelID, msg); err != nil {
		return "", err
	}
	return "panel-1", nil
}

func (g *fakeGateway) AddRole(_ context.Context, guildID, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roleAdds = append(g.roleAdds, roleAdd{GuildID: guildID, UserID: userID, RoleID: roleID})
	return g.failRoles[roleID]
}

func (g *fakeGateway) SendDirectMessage(_ context.Context, userID string, msg platform.Message) error {
	return g.record("SendDirectMessage", platform.Interaction{}, userID, msg)
}

func (g *fakeGateway) MemberRoles(_ context.Context, _, _ string) ([]string, error) {
	if err := g.record("MemberRoles", platform.Interaction{}, "", platform.Message{}); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.held...), nil
}

func (g *fakeGateway) RoleNames(_ context.Context, _ string) (map[string]string, error) {
	return map[string]string{"R1": "Verified", "R2": "Member"}, nil
}

func (g *fakeGateway) callsOf(method string) []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []call
	for _, c := range g.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (g *fakeGateway) addedRoles() []roleAdd {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]roleAdd(nil), g.roleAdds...)
}

// failingSink rejects every append.
type failingSink struct{}

func (failingSink) Append(context.Context, audit.Entry) (audit.Entry, error) {
	return audit.Entry{}, errors.New("disk full")
}

// manualClock hands out timers that only fire when the test says so.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *manualClock) AfterFunc(_ time.Duration, f func()) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{fn: f}
	c.timers = append(c.timers, t)
	return t
}

// fireAll runs every timer that has not been stopped.
func (c *manualClock) fireAll() {
	c.mu.Lock()
	timers := append([]*manualTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		t.mu.Lock()
		stopped := t.stopped
		t.mu.Unlock()
		if !stopped {
			t.fn()
		}
	}
}

// fireAllIgnoringStop simulates a timer that raced with Stop and fired anyway.
func (c *manualClock) fireAllIgnoringStop() {
	c.mu.Lock()
	timers := append([]*manualTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		t.fn()
	}
}

type harness struct {
	gateway  *fakeGateway
	settings *settings.Service
	audit    *audit.MemorySink
	clock    *manualClock
	registry *session.Registry
	deps     Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		gateway:  newFakeGateway(),
		settings: settings.NewService(),
		audit:    audit.NewMemorySink(),
		clock:    &manualClock{},
	}
	h.registry = session.NewRegistry(h.clock.AfterFunc)
	h.deps = Deps{
		Gateway:  h.gateway,
		Settings: h.settings,
		Audit:    h.audit,
		Catalog:  messages.Default(),
		Metrics:  observability.NewNopMetrics(),
		Log:      zerolog.Nop(),
	}
	return h
}

func (h *harness) configure(t *testing.T, guildID string, patch settings.Patch) settings.Config {
	t.Helper()
	c, err := settings.Upsert(context.Background(), h.settings, guildID, patch)
	if err != nil {
		t.Fatalf("configure guild: %v", err)
	}
	return c
}

func rolesPatch(roles ...string) settings.Patch {
	return settings.Patch{EnabledRoles: &roles}
}

func boolPtr(b bool) *bool { return &b }

func commandFrom(actorID string) platform.Interaction {
	return platform.Interaction{
		ID:        "cmd-" + actorID,
		Token:     "tok-" + actorID,
		GuildID:   "g1",
		GuildName: "Acme",
		ChannelID: "c1",
		Actor:     platform.Actor{ID: actorID, Tag: actorID + "#0001"},
	}
}

func clickFrom(actorID, messageID string) platform.Interaction {
	in := commandFrom(actorID)
	in.ID = "click-" + actorID
	in.MessageID = messageID
	return in
}
