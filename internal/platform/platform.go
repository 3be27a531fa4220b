// Package platform defines what the bot needs from a chat platform: inbound
// events, the rendering model for outbound messages and the Gateway that
// delivers them.
package platform

import "context"

// Actor identifies a platform user. Tag is the human readable handle.
type Actor struct {
	ID  string
	Tag string
}

// Interaction is a command or component click that expects a response.
type Interaction struct {
	ID        string
	AppID     string
	Token     string
	GuildID   string
	GuildName string
	ChannelID string
	// MessageID is the message a component click originated from.
	MessageID string
	Actor     Actor
	// IsAdmin is true when the actor holds Administrator or Manage Server.
	IsAdmin   bool
	Options   map[string]string
}

func (in Interaction) InGuild() bool {
	return in.GuildID != ""
}

// Event is the closed set of inbound platform events.
type Event interface {
	isEvent()
}

type Command struct {
	Name        string
	Interaction Interaction
}

type ComponentClick struct {
	CustomID    string
	Interaction Interaction
}

type MemberJoined struct {
	GuildID   string
	GuildName string
	Member    Actor
}

func (Command) isEvent()        {}
func (ComponentClick) isEvent() {}
func (MemberJoined) isEvent()   {}

// Gateway is the outbound surface of the platform. Every call is a remote
// call that may fail; callers do not retry.
type Gateway interface {
	// Reply sends the initial response to an interaction.
	Reply(ctx context.Context, in Interaction, msg Message) error
	// SendPrompt replies like Reply and returns the id of the rendered message.
	SendPrompt(ctx context.Context, in Interaction, msg Message) (string, error)
	// DeferUpdate acknowledges a component click, promising a later edit of its message.
	DeferUpdate(ctx context.Context, in Interaction) error
	// DeferReply acknowledges an interaction, promising a later reply.
	DeferReply(ctx context.Context, in Interaction, ephemeral bool) error
	// UpdateMessage answers a component click by replacing the message it came from.
	UpdateMessage(ctx context.Context, in Interaction, msg Message) error
	// EditReply edits the original response of an acknowledged interaction.
	EditReply(ctx context.Context, in Interaction, msg Message) error
	// FollowUp sends an extra message after the interaction was acknowledged.
	FollowUp(ctx context.Context, in Interaction, msg Message) error
	// PostMessage sends a standalone message to a channel and returns its id.
	PostMessage(ctx context.Context, channelID string, msg Message) (string, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	SendDirectMessage(ctx context.Context, userID string, msg Message) error
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
	// RoleNames maps role ids to display names for a guild.
	RoleNames(ctx context.Context, guildID string) (map[string]string, error)
}

// Guild is a guild the bot is a member of, as listed on the dashboard.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// Role is an assignable guild role. Enabled marks roles granted on authentication.
type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    int    `json:"color"`
	Position int    `json:"position"`
	Enabled  bool   `json:"enabled"`
}

// Handler consumes inbound events. The adapter calls it on its own goroutine
// per event.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event)
}

type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) {
	f(ctx, ev)
}
