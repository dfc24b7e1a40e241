package triage

import (
	"context"
	"errors"
	"sync"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/whisper/modbot/internal/audit"
	"github.com/whisper/modbot/internal/dispatch"
	"github.com/whisper/modbot/internal/msgindex"
	"github.com/whisper/modbot/internal/report"
	"github.com/whisper/modbot/internal/scoring"
	"github.com/whisper/modbot/internal/strikes"
	"github.com/whisper/modbot/internal/transport"
)

type sent struct {
	Channel string
	Text    string
}

type reaction struct {
	Ref    transport.MessageRef
	Marker transport.Marker
}

type fakeSender struct {
	mu        sync.Mutex
	sends     []sent
	reactions []reaction
}

func (f *fakeSender) Send(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{channelID, text})
	return nil
}

func (f *fakeSender) React(_ context.Context, ref transport.MessageRef, marker transport.Marker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, reaction{ref, marker})
	return nil
}

// take returns and clears everything sent so far.
func (f *fakeSender) take() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sends
	f.sends = nil
	return out
}

func (f *fakeSender) markers() []transport.Marker {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transport.Marker
	for _, r := range f.reactions {
		out = append(out, r.Marker)
	}
	return out
}

type fakeScorer struct {
	scores scoring.Scores
	err    error
}

func (f *fakeScorer) Score(context.Context, string) (scoring.Scores, error) {
	return f.scores, f.err
}

type fakeAudit struct {
	mu        sync.Mutex
	reports   []*report.Report
	decisions []audit.Decision
}

func (f *fakeAudit) RecordReport(_ context.Context, r *report.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeAudit) RecordDecision(_ context.Context, d audit.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, d)
	return nil
}

var errScoring = &scoring.Error{Status: 500, Err: errors.New("boom")}

const (
	guildID      = "g1"
	monitoredID  = "c-monitored"
	moderatorID  = "c-mod"
	otherGuildID = "g2"
	dmChannel    = "dm-alice"
)

var (
	self    = transport.User{ID: "bot", Name: "Group 7 Bot"}
	alice   = transport.User{ID: "u-alice", Name: "alice"}
	mallory = transport.User{ID: "u-mallory", Name: "mallory"}
	mod     = transport.User{ID: "u-mod", Name: "bob"}
	testDir = &transport.Directory{
		Self: self,
		Guilds: []transport.Guild{
			{ID: guildID, Name: "CS152", Channels: []transport.Channel{
				{ID: monitoredID, Name: "group-7"},
				{ID: moderatorID, Name: "group-7-mod"},
				{ID: "c-general", Name: "general"},
			}},
			{ID: otherGuildID, Name: "Elsewhere", Channels: []transport.Channel{
				{ID: "c-x", Name: "group-7"},
			}},
		},
	}
)

type harness struct {
	router  *Router
	sender  *fakeSender
	scorer  *fakeScorer
	audit   *fakeAudit
	index   *msgindex.Memory
	strikes *strikes.Memory
}

func newHarness(t *testing.T, checker dispatch.FactChecker) *harness {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	h := &harness{
		sender:  &fakeSender{},
		scorer:  &fakeScorer{scores: scoring.Scores{scoring.AttrToxicity: 0.9}},
		audit:   &fakeAudit{},
		index:   msgindex.NewMemory(100),
		strikes: strikes.NewMemory(),
	}
	h.router = NewRouter(testDir, "7", Deps{
		Sender:  h.sender,
		Index:   h.index,
		Scorer:  h.scorer,
		Strikes: h.strikes,
		Audit:   h.audit,
		Checker: checker,
		Log:     logger,
	})
	return h
}

func (h *harness) post(channelID, channelName, messageID string, author transport.User, content string) transport.Message {
	msg := transport.Message{
		Ref:         transport.MessageRef{GuildID: guildID, ChannelID: channelID, MessageID: messageID},
		ChannelName: channelName,
		Author:      author,
		Content:     content,
	}
	h.router.Handle(context.Background(), transport.Event{Kind: transport.EventMessage, Message: msg})
	return msg
}

func (h *harness) dm(from transport.User, content string) {
	h.router.Handle(context.Background(), transport.Event{
		Kind: transport.EventMessage,
		Message: transport.Message{
			Ref:     transport.MessageRef{ChannelID: dmChannel, MessageID: "dm"},
			Author:  from,
			Content: content,
		},
	})
}

func (h *harness) modReply(content string) {
	h.post(moderatorID, "group-7-mod", "mod-reply", mod, content)
}
