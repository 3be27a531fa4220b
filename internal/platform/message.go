package platform

import "strings"

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

type Button struct {
	ID    string
	Label string
	Style ButtonStyle
}

type Field struct {
	Name  string
	Value string
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []Field
	Footer      string
}

// Message is a platform independent rendering. A message without buttons
// clears any controls when it replaces another one.
type Message struct {
	Content   string
	Embeds    []Embed
	Buttons   []Button
	Ephemeral bool
}

// Text builds a plain ephemeral notice.
func Text(content string) Message {
	return Message{Content: content, Ephemeral: true}
}

// RoleMention renders a role reference that the platform resolves in guild channels.
func RoleMention(roleID string) string {
	return "<@&" + roleID + ">"
}

// ChannelMention renders a channel reference.
func ChannelMention(channelID string) string {
	return "<#" + channelID + ">"
}

// JoinRoleMentions renders ids as comma separated mentions, or none when empty.
func JoinRoleMentions(roleIDs []string, none string) string {
	if len(roleIDs) == 0 {
		return none
	}
	parts := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		parts = append(parts, RoleMention(id))
	}
	return strings.Join(parts, ", ")
}
