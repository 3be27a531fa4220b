package authflow

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Precondition failures. Each one is answered with a private notice and
// creates no session and no audit entry.
var (
	ErrNotInGuild        = errors.New("command used outside a guild")
	ErrConfigMissing     = errors.New("guild settings missing")
	ErrNoRolesConfigured = errors.New("no roles configured for guild")
	ErrNotAdmin          = errors.New("administrator permission required")
	ErrCooldownActive    = errors.New("authentication cooldown active")
	ErrMissingChannel    = errors.New("panel channel not provided")
)

// CooldownError reports how long the actor still has to wait.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: %s remaining", ErrCooldownActive, e.Remaining)
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}

// IsPrecondition reports whether err is an expected rejection rather than a fault.
func IsPrecondition(err error) bool {
	for _, target := range []error{ErrNotInGuild, ErrConfigMissing, ErrNoRolesConfigured, ErrNotAdmin, ErrCooldownActive, ErrMissingChannel} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func preconditionReason(err error) string {
	switch {
	case errors.Is(err, ErrNotInGuild):
		return "not_in_guild"
	case errors.Is(err, ErrConfigMissing):
		return "config_missing"
	case errors.Is(err, ErrNoRolesConfigured):
		return "no_roles"
	case errors.Is(err, ErrNotAdmin):
		return "not_admin"
	case errors.Is(err, ErrCooldownActive):
		return "cooldown"
	case errors.Is(err, ErrMissingChannel):
		return "missing_channel"
	}
	return "error"
}
