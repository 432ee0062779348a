package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{
			name: "valid",
			raw:  `{"issue_type":"billing","urgency_level":2,"route_to":"billing_team","reply":"Refund issued."}`,
		},
		{
			name: "valid with surrounding whitespace",
			raw:  "\n  {\"issue_type\":\"general\",\"urgency_level\":3,\"route_to\":\"L1\",\"reply\":\"ok\"}  \n",
		},
		{
			name:    "prose instead of json",
			raw:     "The issue type is billing and urgency is 2.",
			wantErr: "parse triage decision",
		},
		{
			name:    "json wrapped in markdown fence",
			raw:     "```json\n{\"issue_type\":\"billing\",\"urgency_level\":2,\"route_to\":\"L1\",\"reply\":\"ok\"}\n```",
			wantErr: "parse triage decision",
		},
		{
			name:    "urgency below range",
			raw:     `{"issue_type":"billing","urgency_level":0,"route_to":"L1","reply":"ok"}`,
			wantErr: "out of range",
		},
		{
			name:    "urgency above range",
			raw:     `{"issue_type":"billing","urgency_level":6,"route_to":"L1","reply":"ok"}`,
			wantErr: "out of range",
		},
		{
			name:    "urgency missing",
			raw:     `{"issue_type":"billing","route_to":"L1","reply":"ok"}`,
			wantErr: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDecision(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, d.IssueType)
		})
	}
}

func TestGeminiGenerate(t *testing.T) {
	var gotPath string
	var gotReq geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{
						{"text": "Hello, "},
						{"text": "how can I help?"},
					},
				},
			}},
		})
	}))
	defer srv.Close()

	client := NewGeminiClient("test-key", srv.URL, "gemini-2.0-flash", 10, 5*time.Second)
	result, err := client.Generate(context.Background(), "say hi")
	require.NoError(t, err)

	assert.Equal(t, "Hello, how can I help?", result.Text)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", gotPath)
	require.Len(t, gotReq.Contents, 1)
	assert.Equal(t, "user", gotReq.Contents[0].Role)
	require.Len(t, gotReq.Contents[0].Parts, 1)
	assert.Equal(t, "say hi", gotReq.Contents[0].Parts[0].Text)
}

func TestGeminiGenerateNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	client := NewGeminiClient("test-key", srv.URL, "gemini-2.0-flash", 10, 5*time.Second)
	_, err := client.Generate(context.Background(), "say hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestGeminiGenerateServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewGeminiClient("test-key", srv.URL, "gemini-2.0-flash", 10, 5*time.Second)
	_, err := client.Generate(context.Background(), "say hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini status 429")
}
