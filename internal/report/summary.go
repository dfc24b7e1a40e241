package report

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/whisper/modbot/internal/transport"
)

// Report is the immutable record of a normally completed session.
type Report struct {
	ID              uuid.UUID
	Reporter        transport.User
	Reported        transport.Message
	Broad           string
	Specific        string
	OptionalMessage string
	PostVisibility  bool
	UserVisibility  string // empty unless PostVisibility
	CompletedAt     time.Time
}

// HighRisk reports whether the report falls in the stricter enforcement set.
func (r *Report) HighRisk() bool {
	return IsHighRisk(r.Broad, r.Specific)
}

// ResponsePrompt asks moderators for a decision. Only misinformation reports
// offer the fact-check option.
func ResponsePrompt(broad string) string {
	if broad == CategoryMisinformation {
		return "Is a response necessary? Please enter `yes`, `no`, or `unclear`."
	}
	return "Is a response necessary? Please enter `yes` or `no`."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Summary renders the moderator-channel handoff for r.
func Summary(r *Report) string {
	var b strings.Builder
	b.WriteString("NEW REPORT\nmade by `" + r.Reporter.Name + "` regarding a post by `" + r.Reported.Author.Name + "`")
	b.WriteString("\n• The message reported falls under **" + r.Broad + "**")
	b.WriteString("\n• And is more specifically related to **" + r.Specific + "**")
	b.WriteString("\n• Here is an optional message from the reporter: **" + r.OptionalMessage + "**")
	b.WriteString("\n• Would the reporter like to no longer see posts from the same user? **" + yesNo(r.PostVisibility) + "**")
	if r.PostVisibility {
		b.WriteString("\n• How would the reporter like to change the status of the offending user's relationship with them? **" + r.UserVisibility + "**")
	}
	b.WriteString("\n\nAnd here is the message content: ```" + r.Reported.Content + "```")
	b.WriteString("\n" + ResponsePrompt(r.Broad))
	return b.String()
}
