package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orchiserve/triage-gateway/internal/metrics"
)

// Analyzer extracts sentiment, keywords, emotion, and categories from text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*Understanding, error)
}

// Understanding mirrors the Watson NLU analyze response for the four feature
// groups the pipeline requests. Produced once per request and immutable
// thereafter; consumed by prompt construction and the ticket heuristic.
type Understanding struct {
	Language   string           `json:"language,omitempty"`
	Sentiment  *SentimentResult `json:"sentiment,omitempty"`
	Keywords   []Keyword        `json:"keywords,omitempty"`
	Emotion    *EmotionResult   `json:"emotion,omitempty"`
	Categories []Category       `json:"categories,omitempty"`
}

// SentimentResult wraps the document-level sentiment.
type SentimentResult struct {
	Document *DocumentSentiment `json:"document,omitempty"`
}

// DocumentSentiment is the overall sentiment label and score.
type DocumentSentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Keyword is one extracted keyword with its relevance, ordered most relevant
// first by the service.
type Keyword struct {
	Text      string  `json:"text"`
	Relevance float64 `json:"relevance"`
}

// EmotionResult wraps the document-level emotion scores.
type EmotionResult struct {
	Document *DocumentEmotion `json:"document,omitempty"`
}

// DocumentEmotion maps emotion name to a score in [0,1].
type DocumentEmotion struct {
	Emotion map[string]float64 `json:"emotion"`
}

// Category is one topic category label path such as
// "/technology and computing/internet".
type Category struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// SentimentLabel returns the document sentiment label, defaulting to
// "neutral" when any level of the result is absent. Nil-safe.
func (u *Understanding) SentimentLabel() string {
	if u == nil || u.Sentiment == nil || u.Sentiment.Document == nil || u.Sentiment.Document.Label == "" {
		return "neutral"
	}
	return u.Sentiment.Document.Label
}

// EmotionScore returns the score for the named emotion, or 0 when absent.
// Nil-safe.
func (u *Understanding) EmotionScore(name string) float64 {
	if u == nil || u.Emotion == nil || u.Emotion.Document == nil {
		return 0
	}
	return u.Emotion.Document.Emotion[name]
}

// FirstKeyword returns the text of the most relevant keyword, or "". Nil-safe.
func (u *Understanding) FirstKeyword() string {
	if u == nil || len(u.Keywords) == 0 {
		return ""
	}
	return u.Keywords[0].Text
}

// FirstCategoryLabel returns the first category label path, or "". Nil-safe.
func (u *Understanding) FirstCategoryLabel() string {
	if u == nil || len(u.Categories) == 0 {
		return ""
	}
	return u.Categories[0].Label
}

// WatsonNLUClient calls the Watson Natural Language Understanding analyze
// endpoint with a fixed feature set.
type WatsonNLUClient struct {
	apiKey  string
	url     string
	version string
	client  *http.Client
}

// NewWatsonNLUClient creates an understanding client for the given service
// instance URL.
func NewWatsonNLUClient(apiKey, url string, poolSize int, timeout time.Duration) *WatsonNLUClient {
	return &WatsonNLUClient{
		apiKey:  apiKey,
		url:     strings.TrimRight(url, "/"),
		version: "2023-07-01",
		client:  NewPooledHTTPClient(poolSize, timeout),
	}
}

type nluRequest struct {
	Text     string      `json:"text"`
	Features nluFeatures `json:"features"`
}

type nluFeatures struct {
	Sentiment  struct{}    `json:"sentiment"`
	Emotion    struct{}    `json:"emotion"`
	Keywords   nluKeywords `json:"keywords"`
	Categories struct{}    `json:"categories"`
}

type nluKeywords struct {
	Limit int `json:"limit"`
}

// Analyze requests sentiment, emotion, keywords (top 5), and categories for
// the given text. Empty text fails fast before any network call.
func (c *WatsonNLUClient) Analyze(ctx context.Context, text string) (*Understanding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalidInput("text is required")
	}

	start := time.Now()

	body, err := json.Marshal(nluRequest{
		Text:     text,
		Features: nluFeatures{Keywords: nluKeywords{Limit: 5}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/analyze?version="+c.version, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create analyze request: %w", err)
	}
	req.SetBasicAuth("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("analyze", "http").Inc()
		return nil, fmt.Errorf("analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("analyze", "status").Inc()
		return nil, fmt.Errorf("analyze status %d: %s", resp.StatusCode, respBody)
	}

	var result Understanding
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("analyze").Observe(latency.Seconds())

	return &result, nil
}
