package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orchiserve/triage-gateway/internal/metrics"
)

// Synthesizer produces audio from text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*TTSResult, error)
}

// TTSResult holds one contiguous audio buffer with timing. The adapter is not
// streaming to its caller: the service's output is read fully before return.
type TTSResult struct {
	Audio     []byte  `json:"-"`
	LatencyMs float64 `json:"latency_ms"`
}

// Voice describes one synthesis voice offered by the service.
type Voice struct {
	Name        string `json:"name"`
	Language    string `json:"language"`
	Gender      string `json:"gender,omitempty"`
	Description string `json:"description,omitempty"`
}

// WatsonTTSClient calls the Watson Text to Speech synthesize endpoint and
// returns MP3 audio.
type WatsonTTSClient struct {
	apiKey       string
	url          string
	defaultVoice string
	client       *http.Client
}

// NewWatsonTTSClient creates a synthesis client for the given service
// instance URL.
func NewWatsonTTSClient(apiKey, serviceURL, defaultVoice string, poolSize int, timeout time.Duration) *WatsonTTSClient {
	return &WatsonTTSClient{
		apiKey:       apiKey,
		url:          strings.TrimRight(serviceURL, "/"),
		defaultVoice: defaultVoice,
		client:       NewPooledHTTPClient(poolSize, timeout),
	}
}

// Synthesize converts text to speech with the given voice (or the client's
// default) and buffers the whole audio stream into one blob.
func (c *WatsonTTSClient) Synthesize(ctx context.Context, text, voice string) (*TTSResult, error) {
	start := time.Now()

	if voice == "" {
		voice = c.defaultVoice
	}

	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesize request: %w", err)
	}

	endpoint := c.url + "/v1/synthesize?voice=" + url.QueryEscape(voice)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create synthesize request: %w", err)
	}
	req.SetBasicAuth("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mp3")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("synthesize", "http").Inc()
		return nil, fmt.Errorf("synthesize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("synthesize", "status").Inc()
		return nil, fmt.Errorf("synthesize status %d: %s", resp.StatusCode, respBody)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesize response: %w", err)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("synthesize").Observe(latency.Seconds())

	return &TTSResult{
		Audio:     audio,
		LatencyMs: float64(latency.Milliseconds()),
	}, nil
}

type voicesResponse struct {
	Voices []Voice `json:"voices"`
}

// ListVoices returns the synthesis voices available on the service instance.
func (c *WatsonTTSClient) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("create voices request: %w", err)
	}
	req.SetBasicAuth("apikey", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voices request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("voices status %d: %s", resp.StatusCode, respBody)
	}

	var result voicesResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode voices response: %w", err)
	}
	return result.Voices, nil
}
