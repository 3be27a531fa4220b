package authflow

import (
	"strings"

	"rolegate/authbot/internal/grant"
	"rolegate/authbot/internal/messages"
	"rolegate/authbot/internal/platform"
	"rolegate/authbot/internal/session"
	"rolegate/authbot/internal/settings"
)

// ControlPanel is the custom id of the persistent panel button.
const ControlPanel = "authenticate_panel"

func renderPrompt(cat *messages.Catalog, s session.Session) platform.Message {
	return platform.Message{
		Ephemeral: true,
		Embeds: []platform.Embed{{
			Title:       cat.Prompt.Title,
			Description: cat.Prompt.Description,
			Color:       messages.ColorInfo,
			Fields: []platform.Field{
				{Name: cat.Prompt.RolesField, Value: platform.JoinRoleMentions(s.TargetRoles, cat.Status.None)},
			},
			Footer: messages.Format(cat.Prompt.Footer, "guild", s.GuildName),
		}},
		Buttons: []platform.Button{
			{ID: session.ControlAuthenticate, Label: cat.Prompt.AuthenticateLabel, Style: platform.ButtonSuccess},
			{ID: session.ControlCancel, Label: cat.Prompt.CancelLabel, Style: platform.ButtonSecondary},
		},
	}
}

func renderPanel(cat *messages.Catalog, guildName string, roles []string) platform.Message {
	return platform.Message{
		Embeds: []platform.Embed{{
			Title:       cat.Prompt.Title,
			Description: cat.Prompt.Description,
			Color:       messages.ColorInfo,
			Fields: []platform.Field{
				{Name: cat.Prompt.RolesField, Value: platform.JoinRoleMentions(roles, cat.Status.None)},
			},
			Footer: messages.Format(cat.Prompt.Footer, "guild", guildName),
		}},
		Buttons: []platform.Button{
			{ID: ControlPanel, Label: cat.Prompt.AuthenticateLabel, Style: platform.ButtonSuccess},
		},
	}
}

// renderNotice renders the terminal edit of a prompt. It carries no buttons,
// which removes the controls from the edited message.
func renderNotice(cat *messages.Catalog, s session.Session, notice session.Notice) platform.Message {
	switch notice {
	case session.NoticeSucceeded:
		return renderGrantOutcome(cat, s.Options.SuccessMessage, s.TargetRoles, nil)
	case session.NoticePartialFailure:
		_, failed := grant.Split(s.Results)
		return renderGrantOutcome(cat, s.Options.SuccessMessage, s.TargetRoles, failed)
	case session.NoticeCancelled:
		return embedNotice(cat.Cancelled, messages.ColorMuted)
	case session.NoticeTimedOut:
		return embedNotice(cat.TimedOut, messages.ColorFailure)
	case session.NoticeActorMismatch:
		return platform.Text(cat.Notices.ActorMismatch)
	}
	return platform.Text(cat.Notices.GenericError)
}

// renderGrantOutcome renders a success embed, or a partial failure embed when
// failed is not empty.
func renderGrantOutcome(cat *messages.Catalog, successMessage string, roles []string, failed []grant.Result) platform.Message {
	if len(failed) == 0 {
		return platform.Message{
			Ephemeral: true,
			Embeds: []platform.Embed{{
				Title:       cat.Success.Title,
				Description: successMessage,
				Color:       messages.ColorSuccess,
				Fields: []platform.Field{
					{Name: cat.Success.RolesField, Value: platform.JoinRoleMentions(roles, cat.Status.None)},
				},
			}},
		}
	}
	failedIDs := make([]string, 0, len(failed))
	for _, f := range failed {
		failedIDs = append(failedIDs, f.RoleID)
	}
	granted := without(roles, failedIDs)
	return platform.Message{
		Ephemeral: true,
		Embeds: []platform.Embed{{
			Title:       cat.PartialFailure.Title,
			Description: cat.PartialFailure.Description,
			Color:       messages.ColorFailure,
			Fields: []platform.Field{
				{Name: cat.Success.RolesField, Value: platform.JoinRoleMentions(granted, cat.Status.None)},
				{Name: cat.PartialFailure.FailedField, Value: platform.JoinRoleMentions(failedIDs, cat.Status.None)},
			},
		}},
	}
}

// renderDM is the direct message sent after a grant. failed is only set when
// the grant policy reports partial failures.
func renderDM(cat *messages.Catalog, guildName, description string, granted, failed []string) platform.Message {
	embed := platform.Embed{
		Title:       messages.Format(cat.DM.Title, "guild", guildName),
		Description: description,
		Color:       messages.ColorSuccess,
		Fields:      []platform.Field{{Name: cat.Success.RolesField, Value: joinNames(cat, granted)}},
	}
	if len(failed) > 0 {
		embed.Title = messages.Format(cat.DM.PartialTitle, "guild", guildName)
		embed.Color = messages.ColorFailure
		embed.Fields = append(embed.Fields, platform.Field{Name: cat.PartialFailure.FailedField, Value: joinNames(cat, failed)})
	}
	return platform.Message{Embeds: []platform.Embed{embed}}
}

func joinNames(cat *messages.Catalog, names []string) string {
	if len(names) == 0 {
		return cat.Status.None
	}
	return strings.Join(names, ", ")
}

func renderHelp(cat *messages.Catalog) platform.Message {
	fields := make([]platform.Field, 0, len(cat.Help.Commands))
	for _, c := range cat.Help.Commands {
		fields = append(fields, platform.Field{Name: c.Name, Value: c.Description})
	}
	return platform.Message{
		Ephemeral: true,
		Embeds: []platform.Embed{{
			Title:       cat.Help.Title,
			Description: cat.Help.Description,
			Color:       messages.ColorInfo,
			Fields:      fields,
		}},
	}
}

func renderStatus(cat *messages.Catalog, cfg settings.Config, held []string) platform.Message {
	assigned, missing := compareRoles(cfg.EnabledRoles, held)
	st := cat.Status
	if len(assigned) == 0 {
		return platform.Message{
			Ephemeral: true,
			Embeds: []platform.Embed{{
				Title:       st.Title,
				Description: st.NotAuthenticated,
				Color:       messages.ColorFailure,
				Fields: []platform.Field{
					{Name: st.RequiredField, Value: platform.JoinRoleMentions(cfg.EnabledRoles, st.None)},
				},
			}},
		}
	}
	return platform.Message{
		Ephemeral: true,
		Embeds: []platform.Embed{{
			Title:       st.Title,
			Description: st.Authenticated,
			Color:       messages.ColorSuccess,
			Fields: []platform.Field{
				{Name: st.AssignedField, Value: platform.JoinRoleMentions(assigned, st.None)},
				{Name: st.MissingField, Value: platform.JoinRoleMentions(missing, st.None)},
			},
		}},
	}
}

func embedNotice(n messages.Notice, color int) platform.Message {
	return platform.Message{
		Ephemeral: true,
		Embeds:    []platform.Embed{{Title: n.Title, Description: n.Description, Color: color}},
	}
}

// compareRoles splits required into the roles held and the roles missing,
// keeping the configured order.
func compareRoles(required, held []string) (assigned, missing []string) {
	has := make(map[string]struct{}, len(held))
	for _, r := range held {
		has[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := has[r]; ok {
			assigned = append(assigned, r)
		} else {
			missing = append(missing, r)
		}
	}
	return assigned, missing
}

func without(roles, drop []string) []string {
	skip := make(map[string]struct{}, len(drop))
	for _, r := range drop {
		skip[r] = struct{}{}
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if _, ok := skip[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}
