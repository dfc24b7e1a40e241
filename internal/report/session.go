// Package report implements the report wizard: a per-user state machine that
// walks a reporter through identifying a message, classifying it, and choosing
// visibility preferences, plus the store that keeps one session per reporter.
package report

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/whisper/modbot/internal/transport"
)

// Keywords recognised in direct messages.
const (
	StartKeyword  = "report"
	CancelKeyword = "cancel"
	HelpKeyword   = "help"
	SkipKeyword   = "skip"
)

// State is a step of the report wizard.
type State int

const (
	AwaitingMessageReference State = iota
	AwaitingBroadCategory
	AwaitingSpecificCategory
	AwaitingOptionalMessage
	AwaitingPostVisibility
	AwaitingUserVisibility
	Complete
	Cancelled
)

var stateNames = map[State]string{
	AwaitingMessageReference: "awaiting_message_reference",
	AwaitingBroadCategory:    "awaiting_broad_category",
	AwaitingSpecificCategory: "awaiting_specific_category",
	AwaitingOptionalMessage:  "awaiting_optional_message",
	AwaitingPostVisibility:   "awaiting_post_visibility",
	AwaitingUserVisibility:   "awaiting_user_visibility",
	Complete:                 "complete",
	Cancelled:                "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further input is accepted.
func (s State) Terminal() bool {
	return s == Complete || s == Cancelled
}

// User visibility choices.
const (
	VisibilityBlock = "block"
	VisibilityMute  = "mute"
)

// Resolver looks up a message by reference. It returns (nil, nil) when the
// message is unknown or has been removed.
type Resolver interface {
	Resolve(ctx context.Context, ref transport.MessageRef) (*transport.Message, error)
}

// messageLink matches ".../channels/<guild>/<channel>/<message>".
var messageLink = regexp.MustCompile(`(?:^|/)channels/([^/\s]+)/([^/\s]+)/([^/\s]+)/?$`)

// Session is one reporter's in-progress report. Only Step mutates it.
type Session struct {
	reporter transport.User
	resolver Resolver
	state    State

	reported        *transport.Message
	broad           string
	specific        string
	optionalMessage string
	postVisibility  bool
	userVisibility  string

	result *Report
}

// stepFunc handles one input for a given state.
type stepFunc func(s *Session, ctx context.Context, text string) ([]string, error)

// transitions is the wizard's transition table. Terminal states have no entry.
var transitions = map[State]stepFunc{
	AwaitingMessageReference: (*Session).onMessageReference,
	AwaitingBroadCategory:    (*Session).onBroadCategory,
	AwaitingSpecificCategory: (*Session).onSpecificCategory,
	AwaitingOptionalMessage:  (*Session).onOptionalMessage,
	AwaitingPostVisibility:   (*Session).onPostVisibility,
	AwaitingUserVisibility:   (*Session).onUserVisibility,
}

// NewSession creates a session for reporter waiting for a message link.
func NewSession(reporter transport.User, resolver Resolver) *Session {
	return &Session{
		reporter: reporter,
		resolver: resolver,
		state:    AwaitingMessageReference,
	}
}

// Reporter returns the owning user.
func (s *Session) Reporter() transport.User { return s.reporter }

// State returns the current step.
func (s *Session) State() State { return s.state }

// Done reports whether the session completed or was cancelled.
func (s *Session) Done() bool { return s.state.Terminal() }

// Report returns the completed report, or nil unless the session completed
// normally.
func (s *Session) Report() *Report { return s.result }

// Start returns the intro prompt.
func (s *Session) Start() []string {
	return []string{
		"Thank you for starting the reporting process. Say `" + HelpKeyword + "` at any time for more information.\n\n" +
			"Please copy paste the link to the message you want to report.\n" +
			"You can obtain this link by right-clicking the message and clicking `Copy Message Link`.",
	}
}

// Step consumes one message from senderID and returns the replies to send.
// Errors matching ErrInvalidInput or ErrUnresolvableReference come with
// guidance replies and leave the state unchanged.
func (s *Session) Step(ctx context.Context, senderID, text string) ([]string, error) {
	if senderID != s.reporter.ID {
		return nil, ErrWrongReporter
	}
	if s.state.Terminal() {
		return nil, ErrSessionClosed
	}
	if strings.EqualFold(strings.TrimSpace(text), CancelKeyword) {
		s.state = Cancelled
		return []string{"Report cancelled."}, nil
	}

	step, ok := transitions[s.state]
	if !ok {
		return nil, fmt.Errorf("report: no transition for %s", s.state)
	}
	return step(s, ctx, text)
}

func (s *Session) onMessageReference(ctx context.Context, text string) ([]string, error) {
	m := messageLink.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return []string{"I'm sorry, I couldn't read that link. Please try again or say `cancel` to cancel."},
			fmt.Errorf("%w: malformed message link %q", ErrInvalidInput, text)
	}
	ref := transport.MessageRef{GuildID: m[1], ChannelID: m[2], MessageID: m[3]}
	if ref.GuildID == "@me" {
		return []string{"I can only accept reports of messages posted in a server. Please try again or say `cancel` to cancel."},
			fmt.Errorf("%w: direct message link", ErrInvalidInput)
	}

	msg, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		return []string{"I couldn't look up that message right now. Please try again or say `cancel` to cancel."},
			fmt.Errorf("%w: %s: %v", ErrUnresolvableReference, ref, err)
	}
	if msg == nil {
		return []string{"It seems this message was deleted or never existed. Please try again or say `cancel` to cancel."},
			fmt.Errorf("%w: %s", ErrUnresolvableReference, ref)
	}

	s.reported = msg
	s.state = AwaitingBroadCategory
	return []string{
		"I found this message:",
		"```" + msg.Author.Name + ": " + msg.Content + "```",
		"Why are you reporting this message? Please enter " + formatOptions(broadCategories) + ".",
	}, nil
}

func (s *Session) onBroadCategory(_ context.Context, text string) ([]string, error) {
	broad, ok := matchBroad(text)
	if !ok {
		return []string{"Sorry, that is not one of the options. Please enter " + formatOptions(broadCategories) + "."},
			fmt.Errorf("%w: unknown category %q", ErrInvalidInput, text)
	}
	s.broad = broad
	s.state = AwaitingSpecificCategory
	return []string{s.specificPrompt()}, nil
}

func (s *Session) specificPrompt() string {
	return "Which of these best describes the " + strings.ToLower(s.broad) + "? Please enter " +
		formatOptions(specificCategories[s.broad]) + "."
}

func (s *Session) onSpecificCategory(_ context.Context, text string) ([]string, error) {
	specific, ok := matchSpecific(s.broad, text)
	if !ok {
		return []string{"Sorry, that is not an option for " + s.broad + ". Please enter " +
				formatOptions(specificCategories[s.broad]) + "."},
			fmt.Errorf("%w: %q is not a %s sub-category", ErrInvalidInput, text, s.broad)
	}
	s.specific = specific
	s.state = AwaitingOptionalMessage
	return []string{"If you would like to add a message for our moderators, please type it now. " +
		"Otherwise, say `" + SkipKeyword + "`."}, nil
}

func (s *Session) onOptionalMessage(_ context.Context, text string) ([]string, error) {
	note := strings.TrimSpace(text)
	if strings.EqualFold(note, SkipKeyword) {
		note = ""
	}
	s.optionalMessage = note
	s.state = AwaitingPostVisibility
	return []string{postVisibilityPrompt}, nil
}

const postVisibilityPrompt = "Would you like to stop seeing posts from this user? Please enter `yes` or `no`."

func (s *Session) onPostVisibility(_ context.Context, text string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes":
		s.postVisibility = true
		s.state = AwaitingUserVisibility
		return []string{"Would you like to `" + VisibilityBlock + "` or `" + VisibilityMute + "` this user?"}, nil
	case "no":
		s.postVisibility = false
		return s.complete(), nil
	}
	return []string{"Sorry, I didn't understand. " + postVisibilityPrompt},
		fmt.Errorf("%w: post visibility %q", ErrInvalidInput, text)
}

func (s *Session) onUserVisibility(_ context.Context, text string) ([]string, error) {
	choice := strings.ToLower(strings.TrimSpace(text))
	if choice != VisibilityBlock && choice != VisibilityMute {
		return []string{"Sorry, I didn't understand. Please enter `" + VisibilityBlock + "` or `" + VisibilityMute + "`."},
			fmt.Errorf("%w: user visibility %q", ErrInvalidInput, text)
	}
	s.userVisibility = choice
	return s.complete(), nil
}

func (s *Session) complete() []string {
	s.state = Complete
	s.result = &Report{
		ID:              uuid.New(),
		Reporter:        s.reporter,
		Reported:        *s.reported,
		Broad:           s.broad,
		Specific:        s.specific,
		OptionalMessage: s.optionalMessage,
		PostVisibility:  s.postVisibility,
		UserVisibility:  s.userVisibility,
		CompletedAt:     time.Now(),
	}
	return []string{"Thank you for your report. Our moderation team will review it shortly."}
}
