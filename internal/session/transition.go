package session

import (
	"fmt"

	"rolegate/authbot/internal/audit"
	"rolegate/authbot/internal/grant"
)

type EventKind string

const (
	EventClick           EventKind = "click"
	EventTimeout         EventKind = "timeout"
	EventGrantsCompleted EventKind = "grants_completed"
)

type Event struct {
	Kind    EventKind
	ActorID string
	Control string
	Results []grant.Result
}

func Click(actorID, control string) Event {
	return Event{Kind: EventClick, ActorID: actorID, Control: control}
}

func Timeout() Event {
	return Event{Kind: EventTimeout}
}

func GrantsCompleted(results []grant.Result) Event {
	return Event{Kind: EventGrantsCompleted, Results: results}
}

type EffectKind string

const (
	EffectStopListener EffectKind = "stop_listener"
	EffectGrantRoles   EffectKind = "grant_roles"
	EffectEditPrompt   EffectKind = "edit_prompt"
	EffectReply        EffectKind = "reply"
	EffectSendDM       EffectKind = "send_dm"
	EffectWriteLog     EffectKind = "write_log"
)

// Notice names the message an effect renders. Rendering is left to the caller.
type Notice string

const (
	NoticeSucceeded      Notice = "succeeded"
	NoticePartialFailure Notice = "partial_failure"
	NoticeCancelled      Notice = "cancelled"
	NoticeTimedOut       Notice = "timed_out"
	NoticeActorMismatch  Notice = "actor_mismatch"
)

type LogRecord struct {
	Action string
	Status string
	Detail string
}

type Effect struct {
	Kind   EffectKind
	Notice Notice
	Roles  []string
	Log    LogRecord
}

// Transition is the whole session state machine. It never mutates its input
// and performs no I/O; side effects are returned as commands.
//
//	Pending --click(authenticate)--> Granting --grants_completed--> Succeeded | PartialFailure
//	Pending --click(cancel)--------> Cancelled
//	Pending --timeout--------------> TimedOut
//
// Clicks from anyone but the owning actor yield a private rejection and leave
// the state untouched. Every other combination is a no-op.
func Transition(s Session, ev Event) (Session, []Effect) {
	switch s.State {
	case StatePending:
		return fromPending(s, ev)
	case StateGranting:
		if ev.Kind == EventGrantsCompleted {
			return finishGrant(s, ev.Results)
		}
	}
	return s, nil
}

// Accepted reports whether the transition from prev to next consumed the
// session's single accepted event.
func Accepted(prev, next Session) bool {
	return prev.State == StatePending && next.State != StatePending
}

func fromPending(s Session, ev Event) (Session, []Effect) {
	switch ev.Kind {
	case EventClick:
		if !AcceptsControl(ev.Control) {
			return s, nil
		}
		if ev.ActorID != s.ActorID {
			return s, []Effect{{Kind: EffectReply, Notice: NoticeActorMismatch}}
		}
		if ev.Control == ControlCancel {
			s.State = StateCancelled
			effects := []Effect{
				{Kind: EffectStopListener},
				{Kind: EffectEditPrompt, Notice: NoticeCancelled},
			}
			if s.Options.LogActions {
				effects = append(effects, logEffect(audit.ActionCancel, audit.StatusFailure,
					fmt.Sprintf("user %s cancelled authentication", s.actorLabel())))
			}
			return s, effects
		}
		s.State = StateGranting
		return s, []Effect{
			{Kind: EffectStopListener},
			{Kind: EffectGrantRoles, Roles: append([]string(nil), s.TargetRoles...)},
		}
	case EventTimeout:
		s.State = StateTimedOut
		effects := []Effect{
			{Kind: EffectStopListener},
			{Kind: EffectEditPrompt, Notice: NoticeTimedOut},
		}
		if s.Options.LogActions {
			effects = append(effects, logEffect(audit.ActionTimeout, audit.StatusFailure,
				fmt.Sprintf("authentication for user %s timed out", s.actorLabel())))
		}
		return s, effects
	}
	return s, nil
}

func finishGrant(s Session, results []grant.Result) (Session, []Effect) {
	s.Results = append([]grant.Result(nil), results...)

	state, notice, status := StateSucceeded, NoticeSucceeded, audit.StatusSuccess
	if s.Options.Policy == PolicyStrict && !grant.AllGranted(results) {
		state, notice, status = StatePartialFailure, NoticePartialFailure, audit.StatusFailure
	}
	s.State = state

	effects := []Effect{{Kind: EffectEditPrompt, Notice: notice}}
	if s.Options.DMNotify {
		effects = append(effects, Effect{Kind: EffectSendDM, Notice: notice})
	}
	if s.Options.LogActions {
		effects = append(effects, logEffect(audit.ActionAuth, status,
			fmt.Sprintf("user %s completed authentication; %s", s.actorLabel(), grant.Summary(results))))
	}
	return s, effects
}

func logEffect(action, status, detail string) Effect {
	return Effect{Kind: EffectWriteLog, Log: LogRecord{Action: action, Status: status, Detail: detail}}
}
