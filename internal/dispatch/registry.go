package dispatch

import (
	"errors"
	"sync"

	"github.com/whisper/modbot/internal/report"
)

// ErrNoPendingReport is returned when a guild has no report under review.
var ErrNoPendingReport = errors.New("dispatch: no report under review")

// Registry holds the most recent completed report per guild. A newly
// completed report replaces any unresolved one in the same guild, so each
// moderator channel reviews one report at a time.
type Registry struct {
	mu      sync.Mutex
	current map[string]*report.Report // guildID -> report under review
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{current: make(map[string]*report.Report)}
}

// Put makes r the report under review for guildID and returns the report it
// superseded, if any.
func (g *Registry) Put(guildID string, r *report.Report) (superseded *report.Report) {
	g.mu.Lock()
	defer g.mu.Unlock()
	superseded = g.current[guildID]
	g.current[guildID] = r
	return superseded
}

// Current returns the report under review for guildID, or nil.
func (g *Registry) Current(guildID string) *report.Report {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current[guildID]
}

// Resolve decides reply against the guild's current report. A successful
// decision clears the slot so the report is acted on once; an unrecognized
// reply leaves it in place.
func (g *Registry) Resolve(guildID, reply string, checker FactChecker) (*report.Report, Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.current[guildID]
	if !ok {
		return nil, Decision{}, ErrNoPendingReport
	}
	d, err := Decide(r, reply, checker)
	if err != nil {
		return r, Decision{}, err
	}
	delete(g.current, guildID)
	return r, d, nil
}

// Len returns the number of guilds with a report under review.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.current)
}
