package game

import (
	"fmt"
	"strings"
)

// Action names a player interaction.
type Action string

const (
	ActionGift     Action = "gift"
	ActionHeist    Action = "heist"
	ActionSnowball Action = "snowball"
	ActionLock     Action = "lock"
)

// ParseAction maps a command or button name to an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionGift, ActionHeist, ActionSnowball, ActionLock:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Targeted reports whether the action needs a second player.
func (a Action) Targeted() bool {
	return a == ActionGift || a == ActionHeist || a == ActionSnowball
}

// Kind classifies how an interaction resolved. Rule rejections are kinds, not errors.
type Kind string

const (
	KindSuccess           Kind = "success"
	KindFail              Kind = "fail"
	KindMiss              Kind = "miss"
	KindLocked            Kind = "locked"
	KindNothingToSteal    Kind = "nothing_to_steal"
	KindInsufficientFunds Kind = "insufficient_funds"
)

// Request is a fully resolved interaction: who acts, on whom, and for how much.
// Names are display names used in messages; ids are used when a name is empty.
type Request struct {
	Action     Action
	ActorID    string
	TargetID   string
	Amount     int64
	ActorName  string
	TargetName string
}

func (r Request) actorLabel() string {
	if r.ActorName != "" {
		return r.ActorName
	}
	return r.ActorID
}

func (r Request) targetLabel() string {
	if r.TargetName != "" {
		return r.TargetName
	}
	return r.TargetID
}

// Directive asks the caller to notify a user out of band. The resolver never sends anything.
type Directive struct {
	UserID string
	Text   string
}

// Outcome is the result of a resolved interaction.
type Outcome struct {
	Action Action
	Kind   Kind
	// Amount is the candy moved or destroyed, 0 if none.
	Amount int64
	// Line is the banter line drawn for this outcome, empty if none was drawn.
	Line string
	// Message is the text shown to the actor.
	Message string
	Notify  *Directive
}

// Succeeded reports whether the interaction did what the actor asked for.
func (o Outcome) Succeeded() bool {
	return o.Kind == KindSuccess
}
