// Package session models one personal, time-boxed authentication attempt and
// the pure state machine that drives it to a terminal state.
package session

import (
	"fmt"
	"strings"
	"time"

	"rolegate/authbot/internal/grant"
)

type State string

const (
	StatePending        State = "pending"
	StateGranting       State = "granting"
	StateSucceeded      State = "succeeded"
	StatePartialFailure State = "partial_failure"
	StateCancelled      State = "cancelled"
	StateTimedOut       State = "timed_out"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StatePartialFailure, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// Policy decides the terminal state after a grant batch with failures.
type Policy string

const (
	// PolicyOptimistic always ends in Succeeded, whatever the per-role outcome.
	PolicyOptimistic Policy = "optimistic"
	// PolicyStrict ends in PartialFailure when any role could not be granted.
	PolicyStrict Policy = "strict"
)

func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyOptimistic:
		return PolicyOptimistic, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown grant policy %q", raw)
}

// Control identifiers accepted by a session listener.
const (
	ControlAuthenticate = "authenticate"
	ControlCancel       = "cancel_auth"
)

// AcceptsControl is the listener filter.
func AcceptsControl(id string) bool {
	return id == ControlAuthenticate || id == ControlCancel
}

// Options is the immutable snapshot of guild settings a session needs.
type Options struct {
	DMNotify       bool
	LogActions     bool
	SuccessMessage string
	FailureMessage string
	Policy         Policy
}

type Session struct {
	ID          string
	MessageID   string
	GuildID     string
	GuildName   string
	ActorID     string
	ActorTag    string
	TargetRoles []string
	CreatedAt   time.Time
	Deadline    time.Time
	State       State
	Options     Options
	Results     []grant.Result
}

// New builds a Pending session. roles is copied.
func New(id, guildID, actorID, actorTag string, roles []string, opts Options, now time.Time, timeout time.Duration) Session {
	if opts.Policy == "" {
		opts.Policy = PolicyOptimistic
	}
	return Session{
		ID:          id,
		GuildID:     guildID,
		ActorID:     actorID,
		ActorTag:    actorTag,
		TargetRoles: append([]string(nil), roles...),
		CreatedAt:   now,
		Deadline:    now.Add(timeout),
		State:       StatePending,
		Options:     opts,
	}
}

// View is the read-only projection exposed on the dashboard.
type View struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"message_id"`
	GuildID     string    `json:"guild_id"`
	ActorID     string    `json:"actor_id"`
	TargetRoles []string  `json:"target_roles"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	Deadline    time.Time `json:"deadline"`
}

func (s Session) View() View {
	return View{
		ID:          s.ID,
		MessageID:   s.MessageID,
		GuildID:     s.GuildID,
		ActorID:     s.ActorID,
		TargetRoles: append([]string(nil), s.TargetRoles...),
		State:       s.State,
		CreatedAt:   s.CreatedAt,
		Deadline:    s.Deadline,
	}
}

func (s Session) actorLabel() string {
	if s.ActorTag != "" {
		return s.ActorTag
	}
	return s.ActorID
}
