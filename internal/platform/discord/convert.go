package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"rolegate/authbot/internal/platform"
)

// guildNamer resolves guild names from the gateway cache.
type guildNamer func(guildID string) string

// toEvent converts an interaction payload. ok is false for interaction types
// the bot does not handle.
func toEvent(i *discordgo.Interaction, names guildNamer) (ev platform.Event, ok bool) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		in := toInteraction(i, names)
		in.Options = make(map[string]string, len(data.Options))
		for _, opt := range data.Options {
			in.Options[opt.Name] = fmt.Sprint(opt.Value)
		}
		return platform.Command{Name: data.Name, Interaction: in}, true
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		return platform.ComponentClick{CustomID: data.CustomID, Interaction: toInteraction(i, names)}, true
	}
	return nil, false
}

func toInteraction(i *discordgo.Interaction, names guildNamer) platform.Interaction {
	in := platform.Interaction{
		ID:        i.ID,
		AppID:     i.AppID,
		Token:     i.Token,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
	}
	if i.Message != nil {
		in.MessageID = i.Message.ID
	}
	if i.GuildID != "" && names != nil {
		in.GuildName = names(i.GuildID)
	}
	switch {
	case i.Member != nil:
		in.Actor = toActor(i.Member.User)
		in.IsAdmin = isAdmin(i.Member.Permissions)
	case i.User != nil:
		in.Actor = toActor(i.User)
	}
	return in
}

func toMemberJoined(m *discordgo.GuildMemberAdd, names guildNamer) (platform.MemberJoined, bool) {
	if m == nil || m.Member == nil || m.User == nil || m.User.Bot {
		return platform.MemberJoined{}, false
	}
	ev := platform.MemberJoined{GuildID: m.GuildID, Member: toActor(m.User)}
	if names != nil {
		ev.GuildName = names(m.GuildID)
	}
	return ev, true
}

func toActor(u *discordgo.User) platform.Actor {
	if u == nil {
		return platform.Actor{}
	}
	return platform.Actor{ID: u.ID, Tag: u.String()}
}

func isAdmin(perms int64) bool {
	return perms&discordgo.PermissionAdministrator != 0 || perms&discordgo.PermissionManageServer != 0
}

// toInteractionRef rebuilds the minimal payload discordgo needs to answer.
func toInteractionRef(in platform.Interaction) *discordgo.Interaction {
	return &discordgo.Interaction{ID: in.ID, AppID: in.AppID, Token: in.Token}
}

func toEmbeds(embeds []platform.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		me := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
		}
		for _, f := range e.Fields {
			me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
		}
		if e.Footer != "" {
			me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		out = append(out, me)
	}
	return out
}

// toComponents always returns a non-nil slice so that replacing a message
// clears its previous controls.
func toComponents(buttons []platform.Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return []discordgo.MessageComponent{}
	}
	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		row.Components = append(row.Components, discordgo.Button{
			CustomID: b.ID,
			Label:    b.Label,
			Style:    toButtonStyle(b.Style),
		})
	}
	return []discordgo.MessageComponent{row}
}

func toButtonStyle(s platform.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case platform.ButtonSecondary:
		return discordgo.SecondaryButton
	case platform.ButtonSuccess:
		return discordgo.SuccessButton
	case platform.ButtonDanger:
		return discordgo.DangerButton
	}
	return discordgo.PrimaryButton
}

func toResponseData(msg platform.Message) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{
		Content:    msg.Content,
		Embeds:     toEmbeds(msg.Embeds),
		Components: toComponents(msg.Buttons),
	}
	if msg.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return data
}

func toWebhookEdit(msg platform.Message) *discordgo.WebhookEdit {
	content := msg.Content
	embeds := toEmbeds(msg.Embeds)
	components := toComponents(msg.Buttons)
	return &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}
}

func toWebhookParams(msg platform.Message) *discordgo.WebhookParams {
	params := &discordgo.WebhookParams{
		Content: msg.Content,
		Embeds:  toEmbeds(msg.Embeds),
	}
	if msg.Ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	return params
}

func toMessageSend(msg platform.Message) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     toEmbeds(msg.Embeds),
		Components: toComponents(msg.Buttons),
	}
}
