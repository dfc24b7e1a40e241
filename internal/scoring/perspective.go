// Package scoring forwards message text to a Perspective-compatible toxicity
// classifier and flattens the response into attribute scores.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultURL is the public Perspective analyze endpoint.
const DefaultURL = "https://commentanalyzer.googleapis.com/v1alpha1/comments:analyze"

// Requested attributes.
const (
	AttrSevereToxicity = "SEVERE_TOXICITY"
	AttrProfanity      = "PROFANITY"
	AttrIdentityAttack = "IDENTITY_ATTACK"
	AttrThreat         = "THREAT"
	AttrToxicity       = "TOXICITY"
	AttrFlirtation     = "FLIRTATION"
)

// Attributes is the fixed set requested on every call.
var Attributes = []string{
	AttrSevereToxicity,
	AttrProfanity,
	AttrIdentityAttack,
	AttrThreat,
	AttrToxicity,
	AttrFlirtation,
}

// ErrScoringService matches every failure returned by Score.
var ErrScoringService = errors.New("scoring: service error")

// Error describes a failed scoring call.
type Error struct {
	Status int // HTTP status, 0 if the request never completed
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("scoring: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("scoring: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes every *Error match ErrScoringService.
func (e *Error) Is(target error) bool { return target == ErrScoringService }

// Scores maps attribute name to a value in [0,1].
type Scores map[string]float64

// Scorer rates a piece of text.
type Scorer interface {
	Score(ctx context.Context, text string) (Scores, error)
}

// Config holds client settings.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration // per-call bound, 0 disables
}

// Client calls the analyze endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a Client. An empty URL uses DefaultURL.
func NewClient(config Config) *Client {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	return &Client{config: config, httpClient: &http.Client{}}
}

type analyzeRequest struct {
	Comment             comment             `json:"comment"`
	Languages           []string            `json:"languages"`
	RequestedAttributes map[string]struct{} `json:"requestedAttributes"`
	DoNotStore          bool                `json:"doNotStore"`
}

type comment struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	AttributeScores map[string]struct {
		SummaryScore struct {
			Value float64 `json:"value"`
		} `json:"summaryScore"`
	} `json:"attributeScores"`
}

// Score posts text and returns the flattened attribute scores.
func (c *Client) Score(ctx context.Context, text string) (Scores, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	attrs := make(map[string]struct{}, len(Attributes))
	for _, a := range Attributes {
		attrs[a] = struct{}{}
	}
	body, err := json.Marshal(analyzeRequest{
		Comment:             comment{Text: text},
		Languages:           []string{"en"},
		RequestedAttributes: attrs,
		DoNotStore:          true,
	})
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("marshal request: %w", err)}
	}

	endpoint, err := url.Parse(c.config.URL)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("parse url: %w", err)}
	}
	q := endpoint.Query()
	q.Set("key", c.config.APIKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &Error{Status: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", bytes.TrimSpace(snippet))}
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &Error{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	scores := make(Scores, len(parsed.AttributeScores))
	for name, attr := range parsed.AttributeScores {
		scores[name] = attr.SummaryScore.Value
	}
	return scores, nil
}

// Format renders scores as indented JSON inside a code block.
func Format(scores Scores) string {
	data, err := json.MarshalIndent(scores, "", "  ")
	if err != nil {
		return "```{}```"
	}
	return "```" + string(data) + "```"
}
