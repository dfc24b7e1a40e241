package moderation

import (
	"reflect"
	"testing"
)

func TestFlags_Detects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"http url", "check out http://evil.com", []string{FlagURL}},
		{"www url", "go to www.phishing.net", []string{FlagURL}},
		{"bare domain with path", "visit evil.com/free", []string{FlagURL}},
		{"intl phone", "+1-555-123-4567", []string{FlagPhone}},
		{"phone in sentence", "call me at 555-123-4567 okay?", []string{FlagPhone}},
		{"char flood", "hellooooooo", []string{FlagCharFlood}},
		{"word flood", "buy buy buy", []string{FlagWordFlood}},
		{"case insensitive word flood", "BUY buy Buy", []string{FlagWordFlood}},
		{"several", "BUY BUY BUY at www.deals.biz", []string{FlagURL, FlagWordFlood}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Flags(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Flags(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFlags_CleanMessages(t *testing.T) {
	clean := []string{
		"I have 3 cats",
		"My score is 100",
		"upgrade to v2.0",
		"pi is about 3.14",
		"how are you doing today?",
		"see you in 2025",
		"wow!!! that's great!!",
		"sooo cool",
		"yeah yeah whatever",
		"it costs $5.99",
		"aaaa",
		"",
	}

	for _, msg := range clean {
		if got := Flags(msg); len(got) != 0 {
			t.Errorf("Flags(%q) = %v, expected clean", msg, got)
		}
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(nil); got != "" {
		t.Errorf("Describe(nil) = %q, want empty", got)
	}
	want := "Local heuristics flagged: url, phone"
	if got := Describe([]string{FlagURL, FlagPhone}); got != want {
		t.Errorf("Describe = %q, want %q", got, want)
	}
}
