package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesMetrics(t *testing.T) {
	EventsTotal.WithLabelValues("direct").Inc()
	ReportsTotal.WithLabelValues(OutcomeStarted).Inc()
	ModeratorActionsTotal.WithLabelValues("remove").Inc()
	ScoringLatency.Observe(0.2)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, name := range []string{
		`modbot_events_total{route="direct"}`,
		`modbot_reports_total{outcome="started"}`,
		`modbot_moderator_actions_total{action="remove"}`,
		"modbot_scoring_latency_seconds_bucket",
		"modbot_scoring_failures_total",
		"modbot_active_sessions",
		"modbot_bridge_connections",
	} {
		assert.Contains(t, string(body), name)
	}
}
