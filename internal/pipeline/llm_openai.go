package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/orchiserve/triage-gateway/internal/metrics"
)

// OpenAIGenerator is an alternative generation engine for OpenAI-compatible
// deployments, registered behind the generator router next to Gemini.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator creates a chat-completions client for the given model.
func NewOpenAIGenerator(apiKey, model string, timeout time.Duration) *OpenAIGenerator {
	return &OpenAIGenerator{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithRequestTimeout(timeout),
		),
		model: model,
	}
}

// Generate sends the prompt as a single user message and returns the first
// choice's content.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (*GenerationResult, error) {
	start := time.Now()

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		metrics.Errors.WithLabelValues("generate", "http").Inc()
		return nil, fmt.Errorf("openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("generate").Observe(latency.Seconds())

	return &GenerationResult{
		Text:      resp.Choices[0].Message.Content,
		LatencyMs: float64(latency.Milliseconds()),
	}, nil
}
