package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_FlattensResponse(t *testing.T) {
	var got analyzeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"attributeScores":{
			"TOXICITY":{"summaryScore":{"value":0.91,"type":"PROBABILITY"}},
			"THREAT":{"summaryScore":{"value":0.02}}
		},"languages":["en"]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, APIKey: "secret"})
	scores, err := c.Score(context.Background(), "you are awful")
	require.NoError(t, err)

	assert.Equal(t, Scores{"TOXICITY": 0.91, "THREAT": 0.02}, scores)
	assert.Equal(t, "you are awful", got.Comment.Text)
	assert.Equal(t, []string{"en"}, got.Languages)
	assert.True(t, got.DoNotStore)
	assert.Len(t, got.RequestedAttributes, len(Attributes))
	for _, a := range Attributes {
		assert.Contains(t, got.RequestedAttributes, a)
	}
}

func TestScore_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}, http.StatusTooManyRequests},
		{"bad json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{not json`))
		}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(Config{URL: srv.URL}).Score(context.Background(), "hi")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrScoringService)

			var se *Error
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.Status)
		})
	}
}

func TestScore_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{URL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.Score(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrScoringService)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestScore_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{URL: url}).Score(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrScoringService)
}

func TestFormat(t *testing.T) {
	out := Format(Scores{"TOXICITY": 0.5, "FLIRTATION": 0.1})
	assert.Equal(t, "```{\n  \"FLIRTATION\": 0.1,\n  \"TOXICITY\": 0.5\n}```", out)
}
