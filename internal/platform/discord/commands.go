package discord

import (
	"github.com/bwmarrin/discordgo"

	"rolegate/authbot/internal/authflow"
	"rolegate/authbot/internal/dispatch"
)

// Commands returns the slash command definitions the bot serves.
func Commands() []*discordgo.ApplicationCommand {
	guildOnly := false
	panelPerms := int64(discordgo.PermissionManageServer)
	return []*discordgo.ApplicationCommand{
		{
			Name:         dispatch.CommandAuth,
			Description:  "Start the authentication process.",
			DMPermission: &guildOnly,
		},
		{
			Name:        dispatch.CommandHelp,
			Description: "Show help for the authentication commands.",
		},
		{
			Name:         dispatch.CommandStatus,
			Description:  "Check your current authentication status.",
			DMPermission: &guildOnly,
		},
		{
			Name:                     dispatch.CommandPanel,
			Description:              "Post a permanent authentication panel to a channel.",
			DMPermission:             &guildOnly,
			DefaultMemberPermissions: &panelPerms,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         authflow.PanelChannelOption,
					Description:  "Channel that receives the panel",
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		},
	}
}
