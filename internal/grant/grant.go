// Package grant adds a batch of roles to a guild member, one role at a time,
// and reports the outcome of every attempt.
package grant

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

type Outcome string

const (
	Granted Outcome = "granted"
	Failed  Outcome = "failed"
)

// Result is the outcome of a single role attempt.
type Result struct {
	RoleID  string  `json:"role_id"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// RoleAdder is the platform call used to add one role to a member.
type RoleAdder interface {
	AddRole(ctx context.Context, guildID, userID, roleID string) error
}

// Observer is notified of each attempt. It may be nil.
type Observer func(r Result)

type Executor struct {
	adder    RoleAdder
	log      zerolog.Logger
	observer Observer
}

func NewExecutor(adder RoleAdder, log zerolog.Logger, observer Observer) *Executor {
	return &Executor{
		adder:    adder,
		log:      log.With().Str("component", "grant").Logger(),
		observer: observer,
	}
}

// Grant attempts every role in order. A failing role never stops the loop and
// never surfaces as an error: the returned slice always has len(roles) items.
func (e *Executor) Grant(ctx context.Context, guildID, memberID string, roles []string) []Result {
	results := make([]Result, 0, len(roles))
	for _, roleID := range roles {
		r := e.attempt(ctx, guildID, memberID, roleID)
		if r.Outcome == Failed {
			e.log.Warn().
				Str("guild_id", guildID).
				Str("member_id", memberID).
				Str("role_id", roleID).
				Str("reason", r.Reason).
				Msg("role grant failed")
		}
		if e.observer != nil {
			e.observer(r)
		}
		results = append(results, r)
	}
	return results
}

func (e *Executor) attempt(ctx context.Context, guildID, memberID, roleID string) (r Result) {
	r = Result{RoleID: roleID}
	defer func() {
		if rec := recover(); rec != nil {
			r.Outcome = Failed
			r.Reason = fmt.Sprintf("panic: %v", rec)
		}
	}()

	if e.adder == nil {
		r.Outcome = Failed
		r.Reason = "no role adder configured"
		return r
	}
	if err := ctx.Err(); err != nil {
		r.Outcome = Failed
		r.Reason = err.Error()
		return r
	}
	if err := e.adder.AddRole(ctx, guildID, memberID, roleID); err != nil {
		r.Outcome = Failed
		r.Reason = err.Error()
		return r
	}
	r.Outcome = Granted
	return r
}

// AllGranted reports whether every attempt succeeded.
func AllGranted(results []Result) bool {
	for _, r := range results {
		if r.Outcome != Granted {
			return false
		}
	}
	return true
}

// Split separates granted role ids from failed results, preserving order.
func Split(results []Result) (granted []string, failed []Result) {
	for _, r := range results {
		if r.Outcome == Granted {
			granted = append(granted, r.RoleID)
			continue
		}
		failed = append(failed, r)
	}
	return granted, failed
}

// Summary renders results as a single line for audit details, e.g.
// "granted: r1, r2; failed: r3 (missing permissions)".
func Summary(results []Result) string {
	if len(results) == 0 {
		return "no roles attempted"
	}
	granted, failed := Split(results)

	parts := make([]string, 0, 2)
	if len(granted) > 0 {
		parts = append(parts, "granted: "+strings.Join(granted, ", "))
	}
	if len(failed) > 0 {
		items := make([]string, 0, len(failed))
		for _, f := range failed {
			items = append(items, fmt.Sprintf("%s (%s)", f.RoleID, f.Reason))
		}
		parts = append(parts, "failed: "+strings.Join(items, ", "))
	}
	return strings.Join(parts, "; ")
}
