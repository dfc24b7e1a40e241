// Package dispatch turns a moderator's short reply to a completed report into
// enforcement actions, and tracks the report under review in each guild's
// moderator channel.
package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/whisper/modbot/internal/report"
	"github.com/whisper/modbot/internal/transport"
)

// Moderator replies.
const (
	ReplyYes     = "yes"
	ReplyNo      = "no"
	ReplyUnclear = "unclear"
)

// ErrUnrecognizedReply is returned for replies outside the keyword set offered
// for the report's category.
var ErrUnrecognizedReply = errors.New("dispatch: unrecognized moderator reply")

// Action is an enforcement step applied to the reported message.
type Action string

const (
	ActionRemove       Action = "remove"
	ActionWarn         Action = "warn"
	ActionDeprioritize Action = "deprioritize"
)

// Marker returns the reaction that renders a on the reported message.
func (a Action) Marker() transport.Marker {
	switch a {
	case ActionRemove:
		return transport.MarkerRemoval
	case ActionWarn:
		return transport.MarkerWarning
	case ActionDeprioritize:
		return transport.MarkerDeprioritize
	}
	return ""
}

// Decision is the outcome of a moderator reply: actions in application order
// and the confirmation for the moderator channel.
type Decision struct {
	Reply       string
	Actions     []Action
	Message     string
	FactChecked bool
}

// Removes reports whether the decision deletes the post.
func (d Decision) Removes() bool {
	for _, a := range d.Actions {
		if a == ActionRemove {
			return true
		}
	}
	return false
}

// Confirmation texts.
const (
	msgRemoved     = "This post has been deleted. This post removal is symbolized by the ❌ reaction on it."
	msgWarned      = "This post has a warning label now. This warning is symbolized by the ⭕ reaction on it."
	msgNoAction    = "No action has been taken on this post."
	msgFactFalse   = "This post has been classified as false by the fact checker so it has been deleted. This post removal is symbolized by the ❌ reaction on it."
	msgFactTrue    = "This post has been classified as true by the fact checker so it has only been de-prioritized and given a warning label. These actions are symbolized by the 🔻 and ⭕ reactions respectively."
	msgFactNeutral = "This post has been classified as true by the fact checker. No action has been taken on this post."
)

// Decide maps a moderator reply on r to a decision. It does not touch any
// session state. Only the unclear branch consults checker.
func Decide(r *report.Report, reply string, checker FactChecker) (Decision, error) {
	reply = strings.ToLower(strings.TrimSpace(reply))
	misinfo := r.Broad == report.CategoryMisinformation

	switch reply {
	case ReplyYes:
		return Decision{Reply: reply, Actions: []Action{ActionRemove}, Message: msgRemoved}, nil

	case ReplyNo:
		if misinfo && r.HighRisk() {
			return Decision{Reply: reply, Actions: []Action{ActionWarn}, Message: msgWarned}, nil
		}
		return Decision{Reply: reply, Message: msgNoAction}, nil

	case ReplyUnclear:
		if !misinfo {
			return Decision{}, fmt.Errorf("%w: %q is not offered for %s reports", ErrUnrecognizedReply, reply, r.Broad)
		}
		return factCheck(r, checker), nil
	}
	return Decision{}, fmt.Errorf("%w: %q", ErrUnrecognizedReply, reply)
}

func factCheck(r *report.Report, checker FactChecker) Decision {
	d := Decision{Reply: ReplyUnclear, FactChecked: true}
	switch {
	case checker.ClassifiedFalse(r):
		d.Actions = []Action{ActionRemove}
		d.Message = msgFactFalse
	case r.HighRisk():
		d.Actions = []Action{ActionDeprioritize, ActionWarn}
		d.Message = msgFactTrue
	default:
		// Content judged true and not high risk carries no enforcement.
		d.Message = msgFactNeutral
	}
	return d
}
