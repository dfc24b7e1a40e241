package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/modbot/internal/report"
)

func TestRegistry_ResolveClearsOnDecision(t *testing.T) {
	reg := NewRegistry()
	r := newReport(report.CategorySpam, "Other")
	assert.Nil(t, reg.Put("g1", r))

	got, d, err := reg.Resolve("g1", "yes", nil)
	require.NoError(t, err)
	assert.Same(t, r, got)
	assert.True(t, d.Removes())
	assert.Nil(t, reg.Current("g1"))

	_, _, err = reg.Resolve("g1", "yes", nil)
	assert.ErrorIs(t, err, ErrNoPendingReport)
}

func TestRegistry_UnrecognizedReplyKeepsContext(t *testing.T) {
	reg := NewRegistry()
	r := newReport(report.CategoryHarassment, "Bullying")
	reg.Put("g1", r)

	for _, reply := range []string{"unclear", "hmm", "lol"} {
		_, _, err := reg.Resolve("g1", reply, alwaysFalse)
		assert.ErrorIs(t, err, ErrUnrecognizedReply, reply)
		assert.Same(t, r, reg.Current("g1"))
	}
}

func TestRegistry_GuildsAreIndependent(t *testing.T) {
	reg := NewRegistry()
	a := newReport(report.CategorySpam, "Other")
	b := newReport(report.CategoryHarassment, "Threats")
	reg.Put("g1", a)
	reg.Put("g2", b)
	assert.Equal(t, 2, reg.Len())

	_, _, err := reg.Resolve("g1", "no", nil)
	require.NoError(t, err)
	assert.Same(t, b, reg.Current("g2"))
}

func TestRegistry_NewReportSupersedes(t *testing.T) {
	reg := NewRegistry()
	a := newReport(report.CategorySpam, "Other")
	b := newReport(report.CategoryMisinformation, report.SpecificElections)
	reg.Put("g1", a)

	assert.Same(t, a, reg.Put("g1", b))
	got, d, err := reg.Resolve("g1", "no", nil)
	require.NoError(t, err)
	assert.Same(t, b, got)
	assert.Equal(t, []Action{ActionWarn}, d.Actions)
}
