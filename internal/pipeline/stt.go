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

// FallbackTranscript is returned when the service answers successfully but
// produces no usable alternative. Callers must treat it as a valid (if
// uninformative) transcript, not as an error.
const FallbackTranscript = "Unable to transcribe."

// Transcriber produces a transcript from raw audio bytes.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (*STTResult, error)
}

// STTResult holds the transcription output with timing.
type STTResult struct {
	Transcript string  `json:"transcript"`
	LatencyMs  float64 `json:"latency_ms"`
}

// WatsonSTTClient sends audio to the Watson Speech to Text recognize endpoint.
// The audio bytes are forwarded verbatim; the service handles container
// decoding based on the Content-Type header.
type WatsonSTTClient struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

// NewWatsonSTTClient creates a transcription client for the given service
// instance URL.
func NewWatsonSTTClient(apiKey, url string, poolSize int, timeout time.Duration) *WatsonSTTClient {
	return &WatsonSTTClient{
		apiKey: apiKey,
		url:    strings.TrimRight(url, "/"),
		model:  "en-US_BroadbandModel",
		client: NewPooledHTTPClient(poolSize, timeout),
	}
}

type sttResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Transcribe posts the audio and returns the best alternative of the first
// result, or FallbackTranscript when the service found no speech.
func (c *WatsonSTTClient) Transcribe(ctx context.Context, audio []byte, contentType string) (*STTResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/recognize?model="+c.model, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("create recognize request: %w", err)
	}
	req.SetBasicAuth("apikey", c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("transcribe", "http").Inc()
		return nil, fmt.Errorf("recognize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("transcribe", "status").Inc()
		return nil, fmt.Errorf("recognize status %d: %s", resp.StatusCode, body)
	}

	var result sttResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode recognize response: %w", err)
	}

	transcript := FallbackTranscript
	if len(result.Results) > 0 && len(result.Results[0].Alternatives) > 0 {
		if t := strings.TrimSpace(result.Results[0].Alternatives[0].Transcript); t != "" {
			transcript = t
		}
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("transcribe").Observe(latency.Seconds())

	return &STTResult{
		Transcript: transcript,
		LatencyMs:  float64(latency.Milliseconds()),
	}, nil
}
