package discord

import (
	"context"
	"sort"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"rolegate/authbot/internal/platform"
)

// restAPI is the subset of *discordgo.Session the gateway calls.
type restAPI interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponse(interaction *discordgo.Interaction, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
}

// Gateway implements platform.Gateway over the Discord REST API.
type Gateway struct {
	api restAPI
}

func NewGateway(api restAPI) *Gateway {
	return &Gateway{api: api}
}

var _ platform.Gateway = (*Gateway)(nil)

func (g *Gateway) respond(ctx context.Context, in platform.Interaction, typ discordgo.InteractionResponseType, data *discordgo.InteractionResponseData) error {
	resp := &discordgo.InteractionResponse{Type: typ, Data: data}
	return g.api.InteractionRespond(toInteractionRef(in), resp, discordgo.WithContext(ctx))
}

func (g *Gateway) Reply(ctx context.Context, in platform.Interaction, msg platform.Message) error {
	err := g.respond(ctx, in, discordgo.InteractionResponseChannelMessageWithSource, toResponseData(msg))
	return errors.Wrap(err, "reply to interaction")
}

func (g *Gateway) SendPrompt(ctx context.Context, in platform.Interaction, msg platform.Message) (string, error) {
	if err := g.Reply(ctx, in, msg); err != nil {
		return "", err
	}
	m, err := g.api.InteractionResponse(toInteractionRef(in), discordgo.WithContext(ctx))
	if err != nil {
		return "", errors.Wrap(err, "fetch prompt message")
	}
	return m.ID, nil
}

func (g *Gateway) DeferUpdate(ctx context.Context, in platform.Interaction) error {
	err := g.respond(ctx, in, discordgo.InteractionResponseDeferredMessageUpdate, nil)
	return errors.Wrap(err, "defer message update")
}

func (g *Gateway) DeferReply(ctx context.Context, in platform.Interaction, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := g.respond(ctx, in, discordgo.InteractionResponseDeferredChannelMessageWithSource, data)
	return errors.Wrap(err, "defer reply")
}

func (g *Gateway) UpdateMessage(ctx context.Context, in platform.Interaction, msg platform.Message) error {
	data := toResponseData(msg)
	data.Flags = 0
	err := g.respond(ctx, in, discordgo.InteractionResponseUpdateMessage, data)
	return errors.Wrap(err, "update message")
}

func (g *Gateway) EditReply(ctx context.Context, in platform.Interaction, msg platform.Message) error {
	_, err := g.api.InteractionResponseEdit(toInteractionRef(in), toWebhookEdit(msg), discordgo.WithContext(ctx))
	return errors.Wrap(err, "edit interaction response")
}

func (g *Gateway) FollowUp(ctx context.Context, in platform.Interaction, msg platform.Message) error {
	_, err := g.api.FollowupMessageCreate(toInteractionRef(in), true, toWebhookParams(msg), discordgo.WithContext(ctx))
	return errors.Wrap(err, "send follow-up")
}

func (g *Gateway) PostMessage(ctx context.Context, channelID string, msg platform.Message) (string, error) {
	m, err := g.api.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return "", errors.Wrap(err, "post channel message")
	}
	return m.ID, nil
}

func (g *Gateway) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return errors.Wrap(g.api.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)), "add role")
}

func (g *Gateway) SendDirectMessage(ctx context.Context, userID string, msg platform.Message) error {
	ch, err := g.api.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "open dm channel")
	}
	if _, err := g.api.ChannelMessageSendComplex(ch.ID, toMessageSend(msg), discordgo.WithContext(ctx)); err != nil {
		return errors.Wrap(err, "send dm")
	}
	return nil
}

func (g *Gateway) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	m, err := g.api.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "fetch member")
	}
	return append([]string(nil), m.Roles...), nil
}

func (g *Gateway) RoleNames(ctx context.Context, guildID string) (map[string]string, error) {
	roles, err := g.api.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "list guild roles")
	}
	out := make(map[string]string, len(roles))
	for _, r := range roles {
		out[r.ID] = r.Name
	}
	return out, nil
}

// Roles lists the roles a bot can grant: @everyone and integration-managed
// roles are left out. Highest position first.
func (g *Gateway) Roles(ctx context.Context, guildID string) ([]platform.Role, error) {
	roles, err := g.api.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "list guild roles")
	}
	out := make([]platform.Role, 0, len(roles))
	for _, r := range roles {
		if r.Managed || r.ID == guildID {
			continue
		}
		out = append(out, platform.Role{ID: r.ID, Name: r.Name, Color: r.Color, Position: r.Position})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position > out[j].Position })
	return out, nil
}
