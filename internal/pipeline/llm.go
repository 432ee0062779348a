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

// Generator produces a free-form reply from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*GenerationResult, error)
}

// GenerationResult holds the model reply with timing.
type GenerationResult struct {
	Text      string  `json:"text"`
	LatencyMs float64 `json:"latency_ms"`
}

// GeneratorRouter dispatches to the correct generation backend by engine name.
type GeneratorRouter struct {
	*Router[Generator]
}

// NewGeneratorRouter creates a router with registered generation backends and
// a fallback default engine.
func NewGeneratorRouter(backends map[string]Generator, fallback string) *GeneratorRouter {
	return &GeneratorRouter{Router: NewRouter(backends, fallback)}
}

// Generate routes to the named engine and produces a reply.
func (r *GeneratorRouter) Generate(ctx context.Context, prompt, engine string) (*GenerationResult, error) {
	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}
	return backend.Generate(ctx, prompt)
}

// TriageDecision is the structured classification a triage prompt must return.
type TriageDecision struct {
	IssueType    string `json:"issue_type"`
	UrgencyLevel int    `json:"urgency_level"`
	RouteTo      string `json:"route_to"`
	Reply        string `json:"reply"`
}

// ParseDecision parses a model reply as a TriageDecision. The model contract
// is "return ONLY JSON"; no repair heuristic is applied to output that
// violates it.
func ParseDecision(raw string) (*TriageDecision, error) {
	var d TriageDecision
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &d); err != nil {
		return nil, fmt.Errorf("parse triage decision: %w", err)
	}
	if d.UrgencyLevel < 1 || d.UrgencyLevel > 5 {
		return nil, fmt.Errorf("parse triage decision: urgency_level %d out of range 1-5", d.UrgencyLevel)
	}
	return &d, nil
}

// GeminiClient calls the Gemini generateContent endpoint. Responses are
// non-streaming: one prompt in, one text candidate out.
type GeminiClient struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

// NewGeminiClient creates a generation client for the given model.
func NewGeminiClient(apiKey, url, model string, poolSize int, timeout time.Duration) *GeminiClient {
	return &GeminiClient{
		apiKey: apiKey,
		url:    strings.TrimRight(url, "/"),
		model:  model,
		client: NewPooledHTTPClient(poolSize, timeout),
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends the prompt as a single user turn and returns the first
// candidate's text.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (*GenerationResult, error) {
	start := time.Now()

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.url, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("generate", "http").Inc()
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("generate", "status").Inc()
		return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, respBody)
	}

	var result geminiResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("generate").Observe(latency.Seconds())

	return &GenerationResult{
		Text:      sb.String(),
		LatencyMs: float64(latency.Milliseconds()),
	}, nil
}
