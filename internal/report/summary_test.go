package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummary_FieldOrder(t *testing.T) {
	r := &Report{
		Reporter:        reporter,
		Reported:        *reportedMsg,
		Broad:           CategoryHarassment,
		Specific:        "Bullying",
		OptionalMessage: "rude",
		PostVisibility:  true,
		UserVisibility:  VisibilityBlock,
	}
	out := Summary(r)

	order := []string{"`alice`", "`mallory`", "**Harassment**", "**Bullying**", "**rude**", "**yes**", "**block**", "```you are all idiots```", "Is a response necessary?"}
	last := -1
	for _, part := range order {
		idx := strings.Index(out, part)
		if idx < 0 {
			t.Fatalf("summary missing %q:\n%s", part, out)
		}
		if idx <= last {
			t.Errorf("summary field %q out of order", part)
		}
		last = idx
	}
}

func TestSummary_OmitsUserVisibility(t *testing.T) {
	r := &Report{Reporter: reporter, Reported: *reportedMsg, Broad: CategorySpam, Specific: "Other"}
	out := Summary(r)
	assert.NotContains(t, out, "relationship")
	assert.True(t, strings.HasSuffix(out, "Is a response necessary? Please enter `yes` or `no`."))
}

func TestResponsePrompt(t *testing.T) {
	assert.Contains(t, ResponsePrompt(CategoryMisinformation), "`unclear`")
	for _, broad := range []string{CategoryHarassment, CategorySpam, CategoryOther} {
		assert.NotContains(t, ResponsePrompt(broad), "unclear", broad)
	}
}

func TestIsHighRisk(t *testing.T) {
	tests := []struct {
		broad, specific string
		want            bool
	}{
		{CategoryMisinformation, SpecificElections, true},
		{CategoryMisinformation, SpecificCovid19, true},
		{CategoryMisinformation, SpecificHealth, true},
		{CategoryMisinformation, SpecificOtherMisinf, false},
		{CategoryHarassment, "Threats", false},
	}
	for _, tt := range tests {
		if got := IsHighRisk(tt.broad, tt.specific); got != tt.want {
			t.Errorf("IsHighRisk(%q, %q) = %v, want %v", tt.broad, tt.specific, got, tt.want)
		}
	}
}
