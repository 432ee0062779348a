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

func TestAnalyze(t *testing.T) {
	var gotReq nluRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/analyze", r.URL.Path)
		assert.Equal(t, "2023-07-01", r.URL.Query().Get("version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"language": "en",
			"sentiment": map[string]any{
				"document": map[string]any{"label": "negative", "score": -0.71},
			},
			"emotion": map[string]any{
				"document": map[string]any{
					"emotion": map[string]float64{"anger": 0.52, "joy": 0.03},
				},
			},
			"keywords": []map[string]any{
				{"text": "internet outage", "relevance": 0.98},
			},
			"categories": []map[string]any{
				{"label": "/technology and computing/internet", "score": 0.91},
			},
		})
	}))
	defer srv.Close()

	client := NewWatsonNLUClient("secret", srv.URL, 10, 5*time.Second)
	u, err := client.Analyze(context.Background(), "my internet is down again")
	require.NoError(t, err)

	assert.Equal(t, "my internet is down again", gotReq.Text)
	assert.Equal(t, 5, gotReq.Features.Keywords.Limit)

	assert.Equal(t, "negative", u.SentimentLabel())
	assert.InDelta(t, 0.52, u.EmotionScore("anger"), 1e-9)
	assert.Equal(t, "internet outage", u.FirstKeyword())
	assert.Equal(t, "/technology and computing/internet", u.FirstCategoryLabel())
}

func TestAnalyzeEmptyTextFailsFast(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewWatsonNLUClient("secret", srv.URL, 10, 5*time.Second)
	_, err := client.Analyze(context.Background(), "  \n ")
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.False(t, called)
}

func TestUnderstandingNilSafety(t *testing.T) {
	var u *Understanding
	assert.Equal(t, "neutral", u.SentimentLabel())
	assert.Zero(t, u.EmotionScore("anger"))
	assert.Empty(t, u.FirstKeyword())
	assert.Empty(t, u.FirstCategoryLabel())

	empty := &Understanding{}
	assert.Equal(t, "neutral", empty.SentimentLabel())
	assert.Zero(t, empty.EmotionScore("fear"))
}
