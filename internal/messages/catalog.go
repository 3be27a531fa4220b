// Package messages holds every piece of user facing text the bot renders.
package messages

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

const (
	ColorSuccess = 0x3BA55C
	ColorFailure = 0xED4245
	ColorInfo    = 0x5865F2
	ColorMuted   = 0x99AAB5
)

type Prompt struct {
	Title             string `yaml:"title"`
	Description       string `yaml:"description"`
	RolesField        string `yaml:"roles_field"`
	Footer            string `yaml:"footer"`
	AuthenticateLabel string `yaml:"authenticate_label"`
	CancelLabel       string `yaml:"cancel_label"`
}

type Success struct {
	Title      string `yaml:"title"`
	RolesField string `yaml:"roles_field"`
}

type PartialFailure struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	FailedField string `yaml:"failed_field"`
}

type Notice struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type DM struct {
	Title        string `yaml:"title"`
	PartialTitle string `yaml:"partial_title"`
}

type Status struct {
	Title            string `yaml:"title"`
	Authenticated    string `yaml:"authenticated"`
	NotAuthenticated string `yaml:"not_authenticated"`
	AssignedField    string `yaml:"assigned_field"`
	MissingField     string `yaml:"missing_field"`
	RequiredField    string `yaml:"required_field"`
	None             string `yaml:"none"`
}

type HelpCommand struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type Help struct {
	Title       string        `yaml:"title"`
	Description string        `yaml:"description"`
	Commands    []HelpCommand `yaml:"commands"`
}

type Notices struct {
	NotInGuild        string `yaml:"not_in_guild"`
	ConfigMissing     string `yaml:"config_missing"`
	NoRolesConfigured string `yaml:"no_roles_configured"`
	PanelNoRoles      string `yaml:"panel_no_roles"`
	NotAdmin          string `yaml:"not_admin"`
	CooldownActive    string `yaml:"cooldown_active"`
	ActorMismatch     string `yaml:"actor_mismatch"`
	Expired           string `yaml:"expired"`
	GenericError      string `yaml:"generic_error"`
	AuthError         string `yaml:"auth_error"`
	StatusError       string `yaml:"status_error"`
	PanelPosted       string `yaml:"panel_posted"`
	PanelError        string `yaml:"panel_error"`
	MissingChannel    string `yaml:"missing_channel"`
}

type Catalog struct {
	Prompt         Prompt         `yaml:"prompt"`
	Success        Success        `yaml:"success"`
	PartialFailure PartialFailure `yaml:"partial_failure"`
	Cancelled      Notice         `yaml:"cancelled"`
	TimedOut       Notice         `yaml:"timed_out"`
	DM             DM             `yaml:"dm"`
	Status         Status         `yaml:"status"`
	Help           Help           `yaml:"help"`
	Notices        Notices        `yaml:"notices"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := parse(defaultCatalog, &Catalog{})
	if err != nil {
		panic(fmt.Sprintf("embedded message catalog: %v", err))
	}
	return c
}

// Load returns the embedded catalog with the keys present in path laid over it.
// An empty path yields the embedded catalog.
func Load(path string) (*Catalog, error) {
	base := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message catalog: %w", err)
	}
	return parse(b, base)
}

func parse(b []byte, into *Catalog) (*Catalog, error) {
	if err := yaml.Unmarshal(b, into); err != nil {
		return nil, fmt.Errorf("decode message catalog: %w", err)
	}
	if err := into.validate(); err != nil {
		return nil, err
	}
	return into, nil
}

func (c *Catalog) validate() error {
	required := map[string]string{
		"prompt.title":                c.Prompt.Title,
		"prompt.authenticate_label":   c.Prompt.AuthenticateLabel,
		"prompt.cancel_label":         c.Prompt.CancelLabel,
		"success.title":               c.Success.Title,
		"dm.partial_title":            c.DM.PartialTitle,
		"cancelled.title":             c.Cancelled.Title,
		"timed_out.title":             c.TimedOut.Title,
		"notices.actor_mismatch":      c.Notices.ActorMismatch,
		"notices.generic_error":       c.Notices.GenericError,
		"notices.no_roles_configured": c.Notices.NoRolesConfigured,
		"notices.config_missing":      c.Notices.ConfigMissing,
		"notices.not_in_guild":        c.Notices.NotInGuild,
	}
	for key, v := range required {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("message catalog: %s is required", key)
		}
	}
	return nil
}

// Format fills {name} placeholders from alternating name, value pairs.
func Format(tmpl string, pairs ...string) string {
	if len(pairs) == 0 {
		return tmpl
	}
	args := make([]string, 0, len(pairs))
	for i := 0; i+1 < len(pairs); i += 2 {
		args = append(args, "{"+pairs[i]+"}", pairs[i+1])
	}
	return strings.NewReplacer(args...).Replace(tmpl)
}

// Seconds renders d as a whole number of seconds, rounding up.
func Seconds(d time.Duration) string {
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return strconv.FormatInt(s, 10)
}
