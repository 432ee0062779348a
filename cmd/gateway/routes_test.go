package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchiserve/triage-gateway/internal/pipeline"
	"github.com/orchiserve/triage-gateway/internal/services"
	"github.com/orchiserve/triage-gateway/internal/ws"
)

type stubSTT struct {
	transcript string
}

func (s *stubSTT) Transcribe(ctx context.Context, audio []byte, contentType string) (*pipeline.STTResult, error) {
	return &pipeline.STTResult{Transcript: s.transcript}, nil
}

type stubNLU struct {
	sentiment string
}

func (s *stubNLU) Analyze(ctx context.Context, text string) (*pipeline.Understanding, error) {
	return &pipeline.Understanding{
		Sentiment: &pipeline.SentimentResult{
			Document: &pipeline.DocumentSentiment{Label: s.sentiment, Score: -0.7},
		},
	}, nil
}

type stubGen struct {
	text string
}

func (s *stubGen) Generate(ctx context.Context, prompt string) (*pipeline.GenerationResult, error) {
	return &pipeline.GenerationResult{Text: s.text}, nil
}

type stubTTS struct {
	audio []byte
}

func (s *stubTTS) Synthesize(ctx context.Context, text, voice string) (*pipeline.TTSResult, error) {
	return &pipeline.TTSResult{Audio: s.audio}, nil
}

type stubs struct {
	stt *stubSTT
	nlu *stubNLU
	gen *stubGen
	tts *stubTTS
}

func newTestMux(t *testing.T, s stubs) *http.ServeMux {
	t.Helper()

	orch := pipeline.New(pipeline.Config{
		STT:          s.stt,
		NLU:          s.nlu,
		Generator:    pipeline.NewGeneratorRouter(map[string]pipeline.Generator{"gemini": s.gen}, "gemini"),
		TTS:          s.tts,
		ReplyEngine:  "gemini",
		TriageEngine: "gemini",
		Voice:        "en-US_MichaelV3Voice",
	})

	registry := services.NewRegistry(map[string]services.ServiceMeta{
		"text-to-speech": {Category: services.CategoryTTS, Configured: false},
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		orch:      orch,
		registry:  registry,
		wsHandler: ws.NewHandler(ws.HandlerConfig{Orchestrator: orch}),
	})
	return mux
}

func defaultStubs() stubs {
	return stubs{
		stt: &stubSTT{transcript: "my internet is down"},
		nlu: &stubNLU{sentiment: "negative"},
		gen: &stubGen{text: "Sorry to hear that..."},
		tts: &stubTTS{audio: []byte{1, 2, 3}},
	}
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func TestTestTextEndToEnd(t *testing.T) {
	mux := newTestMux(t, defaultStubs())

	rec, body := doJSON(t, mux, "POST", "/test-text", `{"text":"My internet is down"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "My internet is down", body["input"])
	assert.Equal(t, "Sorry to hear that...", body["response"])
	assert.Equal(t, "AQID", body["audio"])

	nlu, ok := body["nlu"].(map[string]any)
	require.True(t, ok)
	sentiment := nlu["sentiment"].(map[string]any)["document"].(map[string]any)
	assert.Equal(t, "negative", sentiment["label"])
}

func TestTestTextMissingText(t *testing.T) {
	mux := newTestMux(t, defaultStubs())

	rec, body := doJSON(t, mux, "POST", "/test-text", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "text is required", body["error"])
}

func TestProcessMissingSubjectAndBody(t *testing.T) {
	mux := newTestMux(t, defaultStubs())

	rec, body := doJSON(t, mux, "POST", "/process", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "subject or body required", body["error"])
}

func TestProcessTriageSuccess(t *testing.T) {
	s := defaultStubs()
	s.nlu.sentiment = "negative"
	s.gen.text = `{"issue_type":"technical","urgency_level":4,"route_to":"tech_team","reply":"On it."}`
	mux := newTestMux(t, s)

	rec, body := doJSON(t, mux, "POST", "/process",
		`{"subject":"Outage","body":"No connection","channel":"email","customerId":"c-9"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	ticket := body["ticket"].(map[string]any)
	assert.Equal(t, "Outage", ticket["subject"])
	assert.Equal(t, "c-9", ticket["customerId"])

	decision := body["decision"].(map[string]any)
	assert.Equal(t, "technical", decision["issue_type"])
	assert.Equal(t, float64(4), decision["urgency_level"])
	assert.Equal(t, "tech_team", decision["route_to"])
}

func TestProcessTriageParseFailure(t *testing.T) {
	s := defaultStubs()
	s.nlu.sentiment = "positive"
	s.gen.text = "I cannot answer in JSON right now."
	mux := newTestMux(t, s)

	rec, body := doJSON(t, mux, "POST", "/process", `{"subject":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Triage pipeline failed", body["error"])
	assert.Contains(t, body["details"], "parse triage decision")
}

func TestProcessVoiceMissingAudio(t *testing.T) {
	mux := newTestMux(t, defaultStubs())

	req := httptest.NewRequest("POST", "/process-voice", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "audio file missing", body["error"])
}

func TestProcessVoiceEndToEnd(t *testing.T) {
	mux := newTestMux(t, defaultStubs())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "clip.webm")
	require.NoError(t, err)
	_, err = part.Write([]byte{0x1A, 0x45, 0xDF, 0xA3, 0x01, 0x02})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/process-voice", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Sorry to hear that...", body["text"])
	assert.Equal(t, "my internet is down", body["transcript"])
	assert.Equal(t, "AQID", body["audio"])
}

func TestListServices(t *testing.T) {
	mux := newTestMux(t, defaultStubs())

	rec, body := doJSON(t, mux, "GET", "/api/services", "")
	require.Equal(t, http.StatusOK, rec.Code)

	list := body["services"].([]any)
	require.Len(t, list, 1)
	svc := list[0].(map[string]any)
	assert.Equal(t, "text-to-speech", svc["name"])
	assert.Equal(t, false, svc["configured"])
}

func TestListVoicesUnconfigured(t *testing.T) {
	mux := newTestMux(t, defaultStubs())

	rec, body := doJSON(t, mux, "GET", "/api/voices", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "text-to-speech not configured", body["error"])
}

func TestTraceRoutesDisabled(t *testing.T) {
	mux := newTestMux(t, defaultStubs())

	rec, body := doJSON(t, mux, "GET", "/api/traces/sessions", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "tracing disabled", body["error"])
}
