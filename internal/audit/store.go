// Package audit provides PostgreSQL-backed storage for completed reports and
// the moderator decisions taken on them. The trail is write-only: nothing in
// modbot reads it back to restore state.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/whisper/modbot/internal/dispatch"
	"github.com/whisper/modbot/internal/report"
	"github.com/whisper/modbot/internal/transport"
)

// Decision is one moderator reply that resolved a report.
type Decision struct {
	ReportID  uuid.UUID
	GuildID   string
	Moderator transport.User
	Outcome   dispatch.Decision
	Strikes   int // author's strike count after the decision
	DecidedAt time.Time
}

// Recorder persists audit entries.
type Recorder interface {
	RecordReport(ctx context.Context, r *report.Report) error
	RecordDecision(ctx context.Context, d Decision) error
}

// Nop discards every entry. It is used when no database is configured.
type Nop struct{}

func (Nop) RecordReport(context.Context, *report.Report) error { return nil }
func (Nop) RecordDecision(context.Context, Decision) error     { return nil }

// Store writes audit entries to PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new audit store backed by the given database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and sizes the pool for a single bot process.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

type reportRow struct {
	ID               uuid.UUID `db:"id"`
	ReporterID       string    `db:"reporter_id"`
	ReporterName     string    `db:"reporter_name"`
	GuildID          string    `db:"guild_id"`
	ChannelID        string    `db:"channel_id"`
	MessageID        string    `db:"message_id"`
	AuthorID         string    `db:"author_id"`
	AuthorName       string    `db:"author_name"`
	Content          string    `db:"content"`
	BroadCategory    string    `db:"broad_category"`
	SpecificCategory string    `db:"specific_category"`
	OptionalMessage  string    `db:"optional_message"`
	PostVisibility   bool      `db:"post_visibility"`
	UserVisibility   string    `db:"user_visibility"`
	CompletedAt      time.Time `db:"completed_at"`
}

func newReportRow(r *report.Report) reportRow {
	return reportRow{
		ID:               r.ID,
		ReporterID:       r.Reporter.ID,
		ReporterName:     r.Reporter.Name,
		GuildID:          r.Reported.Ref.GuildID,
		ChannelID:        r.Reported.Ref.ChannelID,
		MessageID:        r.Reported.Ref.MessageID,
		AuthorID:         r.Reported.Author.ID,
		AuthorName:       r.Reported.Author.Name,
		Content:          r.Reported.Content,
		BroadCategory:    r.Broad,
		SpecificCategory: r.Specific,
		OptionalMessage:  r.OptionalMessage,
		PostVisibility:   r.PostVisibility,
		UserVisibility:   r.UserVisibility,
		CompletedAt:      r.CompletedAt,
	}
}

type decisionRow struct {
	ReportID      uuid.UUID      `db:"report_id"`
	GuildID       string         `db:"guild_id"`
	ModeratorID   string         `db:"moderator_id"`
	ModeratorName string         `db:"moderator_name"`
	Reply         string         `db:"reply"`
	Actions       pq.StringArray `db:"actions"`
	FactChecked   bool           `db:"fact_checked"`
	Strikes       int            `db:"strikes"`
	DecidedAt     time.Time      `db:"decided_at"`
}

func newDecisionRow(d Decision) decisionRow {
	actions := make(pq.StringArray, 0, len(d.Outcome.Actions))
	for _, a := range d.Outcome.Actions {
		actions = append(actions, string(a))
	}
	decidedAt := d.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}
	return decisionRow{
		ReportID:      d.ReportID,
		GuildID:       d.GuildID,
		ModeratorID:   d.Moderator.ID,
		ModeratorName: d.Moderator.Name,
		Reply:         d.Outcome.Reply,
		Actions:       actions,
		FactChecked:   d.Outcome.FactChecked,
		Strikes:       d.Strikes,
		DecidedAt:     decidedAt,
	}
}

// RecordReport inserts a completed report. Re-recording the same report ID is
// a no-op.
func (s *Store) RecordReport(ctx context.Context, r *report.Report) error {
	const query = `
		INSERT INTO reports (id, reporter_id, reporter_name, guild_id, channel_id, message_id,
			author_id, author_name, content, broad_category, specific_category,
			optional_message, post_visibility, user_visibility, completed_at)
		VALUES (:id, :reporter_id, :reporter_name, :guild_id, :channel_id, :message_id,
			:author_id, :author_name, :content, :broad_category, :specific_category,
			:optional_message, :post_visibility, :user_visibility, :completed_at)
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.db.NamedExecContext(ctx, query, newReportRow(r)); err != nil {
		return fmt.Errorf("audit: insert report: %w", err)
	}
	return nil
}

// RecordDecision inserts a moderator decision.
func (s *Store) RecordDecision(ctx context.Context, d Decision) error {
	const query = `
		INSERT INTO moderator_decisions (report_id, guild_id, moderator_id, moderator_name,
			reply, actions, fact_checked, strikes, decided_at)
		VALUES (:report_id, :guild_id, :moderator_id, :moderator_name,
			:reply, :actions, :fact_checked, :strikes, :decided_at)`

	if _, err := s.db.NamedExecContext(ctx, query, newDecisionRow(d)); err != nil {
		return fmt.Errorf("audit: insert decision: %w", err)
	}
	return nil
}
