package report

import "strings"

// Broad report reasons.
const (
	CategoryMisinformation = "Misinformation"
	CategoryHarassment     = "Harassment"
	CategorySpam           = "Spam"
	CategoryOther          = "Other"
)

// Misinformation sub-reasons.
const (
	SpecificElections   = "Elections"
	SpecificCovid19     = "Covid-19"
	SpecificHealth      = "Other Health or Medical"
	SpecificOtherMisinf = "Other"
)

// broadCategories keeps prompt order stable.
var broadCategories = []string{
	CategoryMisinformation,
	CategoryHarassment,
	CategorySpam,
	CategoryOther,
}

// specificCategories maps each broad reason to its allowed sub-reasons.
var specificCategories = map[string][]string{
	CategoryMisinformation: {SpecificElections, SpecificCovid19, SpecificHealth, SpecificOtherMisinf},
	CategoryHarassment:     {"Bullying", "Hate Speech", "Sexual Harassment", "Threats", "Other"},
	CategorySpam:           {"Scam or Fraud", "Unwanted Advertising", "Bot Activity", "Other"},
	CategoryOther:          {"Violence", "Self-Harm", "Explicit Content", "Other"},
}

// highRisk lists the misinformation sub-reasons that warrant a warning label
// even when the content is not confirmed false.
var highRisk = map[string]bool{
	SpecificElections: true,
	SpecificCovid19:   true,
	SpecificHealth:    true,
}

// BroadCategories returns the top-level reasons in prompt order.
func BroadCategories() []string {
	return append([]string(nil), broadCategories...)
}

// SpecificCategories returns the sub-reasons allowed under broad, or nil if
// broad is unknown.
func SpecificCategories(broad string) []string {
	specs, ok := specificCategories[broad]
	if !ok {
		return nil
	}
	return append([]string(nil), specs...)
}

// IsHighRisk reports whether a misinformation report falls in the stricter
// enforcement set.
func IsHighRisk(broad, specific string) bool {
	return broad == CategoryMisinformation && highRisk[specific]
}

// matchBroad returns the canonical broad category for input.
func matchBroad(input string) (string, bool) {
	return matchOne(broadCategories, input)
}

// matchSpecific returns the canonical sub-reason for input under broad.
func matchSpecific(broad, input string) (string, bool) {
	return matchOne(specificCategories[broad], input)
}

func matchOne(options []string, input string) (string, bool) {
	needle := strings.TrimSpace(input)
	for _, opt := range options {
		if strings.EqualFold(opt, needle) {
			return opt, true
		}
	}
	return "", false
}

// formatOptions renders options as "`A`, `B`, or `C`".
func formatOptions(options []string) string {
	quoted := make([]string, len(options))
	for i, o := range options {
		quoted[i] = "`" + o + "`"
	}
	switch len(quoted) {
	case 0:
		return ""
	case 1:
		return quoted[0]
	case 2:
		return quoted[0] + " or " + quoted[1]
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + ", or " + quoted[len(quoted)-1]
}
