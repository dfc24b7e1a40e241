package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/audit"
	"github.com/whisper/modbot/internal/dispatch"
	"github.com/whisper/modbot/internal/metrics"
	"github.com/whisper/modbot/internal/moderation"
	"github.com/whisper/modbot/internal/msgindex"
	"github.com/whisper/modbot/internal/report"
	"github.com/whisper/modbot/internal/scoring"
	"github.com/whisper/modbot/internal/strikes"
	"github.com/whisper/modbot/internal/transport"
)

// HelpText answers the help keyword in direct messages.
const HelpText = "Use the `report` command to begin the reporting process.\n" +
	"Use the `cancel` command to cancel the report process.\n"

const (
	msgNoScores     = "No scores available."
	msgNoModChannel = "I couldn't find a moderator channel for that server, so your report could not be delivered. Please contact a moderator directly."
)

// Deps are the collaborators a Router needs.
type Deps struct {
	Sender  transport.Sender
	Index   msgindex.Index
	Scorer  scoring.Scorer
	Strikes strikes.Counter
	Audit   audit.Recorder
	Checker dispatch.FactChecker
	Log     logrus.FieldLogger
}

// Router handles classified events. It is safe for concurrent use provided
// events from one sender are not handled concurrently (see Pool).
type Router struct {
	Deps
	self        transport.User
	channels    Channels
	modChannels map[string]string // guild ID -> moderator channel ID
	sessions    *report.Store
	registry    *dispatch.Registry
}

// NewRouter builds a router for the directory the bridge announced. Moderator
// channels are resolved once per guild by name.
func NewRouter(dir *transport.Directory, group string, deps Deps) *Router {
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Checker == nil {
		deps.Checker = dispatch.NewCoinFactChecker(nil)
	}
	deps.Log = deps.Log.WithField("component", "router")

	r := &Router{
		Deps:        deps,
		self:        dir.Self,
		channels:    ChannelNames(group),
		modChannels: make(map[string]string),
		sessions:    report.NewStore(),
		registry:    dispatch.NewRegistry(),
	}
	for _, g := range dir.Guilds {
		for _, c := range g.Channels {
			if c.Name == r.channels.Moderator {
				r.modChannels[g.ID] = c.ID
			}
		}
		if _, ok := r.modChannels[g.ID]; !ok {
			r.Log.WithFields(logrus.Fields{"guild": g.ID, "channel": r.channels.Moderator}).Warn("guild has no moderator channel")
		}
	}
	return r
}

// Registry exposes the per-guild pending reports.
func (r *Router) Registry() *dispatch.Registry { return r.registry }

// Sessions exposes the open report sessions.
func (r *Router) Sessions() *report.Store { return r.sessions }

// Handler returns a transport.Handler that queues events on pool keyed by
// sender, keeping each sender's events in order.
func (r *Router) Handler(pool *Pool) transport.Handler {
	return func(ctx context.Context, ev transport.Event) {
		key := ev.Message.Author.ID
		if key == "" {
			key = ev.Message.Ref.ChannelID
		}
		if !pool.Submit(key, func() { r.Handle(ctx, ev) }) {
			r.Log.WithField("message", ev.Message.Ref.String()).Warn("pool closed, dropping event")
		}
	}
}

// Handle processes one event synchronously.
func (r *Router) Handle(ctx context.Context, ev transport.Event) {
	route := Classify(ev, r.self.ID, r.channels)
	metrics.EventsTotal.WithLabelValues(route.String()).Inc()

	msg := ev.Message
	switch route {
	case RouteSelf:
		return
	case RouteDeleted:
		r.forget(ctx, msg.Ref)
		return
	}

	if !msg.IsDirect() {
		if err := r.Index.Record(ctx, msg); err != nil {
			r.Log.WithError(err).WithField("message", msg.Ref.String()).Warn("index record failed")
		}
	}

	switch route {
	case RouteDirect:
		r.handleDirect(ctx, msg)
	case RouteModerator:
		r.handleModerator(ctx, msg)
	case RouteMonitored:
		r.handleMonitored(ctx, msg)
	}
}

func (r *Router) forget(ctx context.Context, ref transport.MessageRef) {
	if err := r.Index.Forget(ctx, ref); err != nil {
		r.Log.WithError(err).WithField("message", ref.String()).Warn("index forget failed")
	}
}

func (r *Router) send(ctx context.Context, channelID string, texts ...string) {
	for _, text := range texts {
		if err := r.Sender.Send(ctx, channelID, text); err != nil {
			r.Log.WithError(err).WithField("channel", channelID).Error("send failed")
			return
		}
	}
}

func isHelp(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), report.HelpKeyword)
}

func isStart(text string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), report.StartKeyword)
}

// handleDirect drives the reporter's session.
func (r *Router) handleDirect(ctx context.Context, msg transport.Message) {
	log := r.Log.WithField("reporter", msg.Author.ID)
	if isHelp(msg.Content) {
		r.send(ctx, msg.Ref.ChannelID, HelpText)
		return
	}

	var (
		replies   []string
		stepErr   error
		completed *report.Report
		cancelled bool
	)
	r.sessions.Do(msg.Author.ID, func(cur *report.Session) *report.Session {
		if cur == nil {
			if !isStart(msg.Content) {
				stepErr = report.ErrNoActiveSession
				return nil
			}
			cur = report.NewSession(msg.Author, r.Index)
			replies = cur.Start()
			metrics.ReportsTotal.WithLabelValues(metrics.OutcomeStarted).Inc()
			return cur
		}

		replies, stepErr = cur.Step(ctx, msg.Author.ID, msg.Content)
		if !cur.Done() {
			return cur
		}
		if completed = cur.Report(); completed == nil {
			cancelled = true
		}
		return nil
	})
	metrics.ActiveSessions.Set(float64(r.sessions.Len()))

	switch {
	case errors.Is(stepErr, report.ErrNoActiveSession):
		log.Debug("ignoring direct message without a session")
		return
	case stepErr != nil:
		log.WithError(stepErr).Debug("report step rejected")
	}

	r.send(ctx, msg.Ref.ChannelID, replies...)

	switch {
	case cancelled:
		metrics.ReportsTotal.WithLabelValues(metrics.OutcomeCancelled).Inc()
		log.Info("report cancelled")
	case completed != nil:
		metrics.ReportsTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
		r.deliver(ctx, msg.Ref.ChannelID, completed)
	}
}

// deliver hands a completed report to the reported guild's moderators.
func (r *Router) deliver(ctx context.Context, reporterChannel string, rep *report.Report) {
	guildID := rep.Reported.Ref.GuildID
	log := r.Log.WithFields(logrus.Fields{"reporter": rep.Reporter.ID, "guild": guildID, "report": rep.ID.String()})

	modChannel, ok := r.modChannels[guildID]
	if !ok {
		log.Error("no moderator channel for reported guild")
		r.send(ctx, reporterChannel, msgNoModChannel)
		return
	}

	r.send(ctx, modChannel, report.Summary(rep))
	if prev := r.registry.Put(guildID, rep); prev != nil {
		log.WithField("superseded", prev.ID.String()).Warn("pending report replaced before a moderator decision")
	}
	if err := r.Audit.RecordReport(ctx, rep); err != nil {
		log.WithError(err).Error("audit report failed")
	}
	log.WithFields(logrus.Fields{"category": rep.Broad, "specific": rep.Specific}).Info("report delivered")
}

// handleModerator applies a moderator's reply to the guild's pending report.
func (r *Router) handleModerator(ctx context.Context, msg transport.Message) {
	guildID := msg.Ref.GuildID
	log := r.Log.WithFields(logrus.Fields{"guild": guildID, "channel": msg.Ref.ChannelID, "moderator": msg.Author.ID})

	rep, decision, err := r.registry.Resolve(guildID, msg.Content, r.Checker)
	switch {
	case errors.Is(err, dispatch.ErrNoPendingReport):
		return
	case errors.Is(err, dispatch.ErrUnrecognizedReply):
		log.WithField("reply", msg.Content).Debug("ignoring unrecognized moderator reply")
		return
	case err != nil:
		log.WithError(err).Error("dispatch failed")
		return
	}

	target := rep.Reported.Ref
	strikeCount := 0
	for _, a := range decision.Actions {
		if err := r.Sender.React(ctx, target, a.Marker()); err != nil {
			log.WithError(err).WithField("action", string(a)).Error("react failed")
		}
		metrics.ModeratorActionsTotal.WithLabelValues(string(a)).Inc()

		if a != dispatch.ActionRemove {
			continue
		}
		r.forget(ctx, target)
		n, err := r.Strikes.Record(ctx, guildID, rep.Reported.Author.ID)
		if err != nil {
			log.WithError(err).Warn("strike record failed")
			continue
		}
		strikeCount = n
	}

	confirmation := decision.Message
	if strikeCount > 0 {
		confirmation += fmt.Sprintf("\n`%s` has had %d %s removed in the last 24 hours.",
			rep.Reported.Author.Name, strikeCount, plural(strikeCount, "post", "posts"))
	}
	r.send(ctx, msg.Ref.ChannelID, confirmation)

	if err := r.Audit.RecordDecision(ctx, audit.Decision{
		ReportID:  rep.ID,
		GuildID:   guildID,
		Moderator: msg.Author,
		Outcome:   decision,
		Strikes:   strikeCount,
		DecidedAt: time.Now().UTC(),
	}); err != nil {
		log.WithError(err).Error("audit decision failed")
	}
	log.WithFields(logrus.Fields{"report": rep.ID.String(), "reply": decision.Reply, "actions": len(decision.Actions)}).Info("moderator decision applied")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// handleMonitored forwards a monitored post and its scores to the moderators.
func (r *Router) handleMonitored(ctx context.Context, msg transport.Message) {
	modChannel, ok := r.modChannels[msg.Ref.GuildID]
	if !ok {
		r.Log.WithField("guild", msg.Ref.GuildID).Warn("monitored message in guild without moderator channel")
		return
	}

	forward := fmt.Sprintf("Forwarded message:\n%s: \"%s\"", msg.Author.Name, msg.Content)
	if flags := moderation.Describe(moderation.Flags(msg.Content)); flags != "" {
		forward += "\n" + flags
	}
	r.send(ctx, modChannel, forward)

	start := time.Now()
	scores, err := r.Scorer.Score(ctx, msg.Content)
	metrics.ScoringLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScoringFailures.Inc()
		r.Log.WithError(err).WithField("message", msg.Ref.String()).Warn("scoring failed")
		r.send(ctx, modChannel, msgNoScores)
		return
	}
	r.send(ctx, modChannel, scoring.Format(scores))
}
