package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSTT struct {
	calls  int
	result *STTResult
	err    error
}

func (m *mockSTT) Transcribe(ctx context.Context, audio []byte, contentType string) (*STTResult, error) {
	m.calls++
	return m.result, m.err
}

type mockNLU struct {
	calls  int
	result *Understanding
	err    error
}

func (m *mockNLU) Analyze(ctx context.Context, text string) (*Understanding, error) {
	m.calls++
	return m.result, m.err
}

type mockGen struct {
	calls   int
	prompts []string
	text    string
	err     error
}

func (m *mockGen) Generate(ctx context.Context, prompt string) (*GenerationResult, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return nil, m.err
	}
	return &GenerationResult{Text: m.text}, nil
}

type mockTTS struct {
	calls int
	audio []byte
	err   error
}

func (m *mockTTS) Synthesize(ctx context.Context, text, voice string) (*TTSResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &TTSResult{Audio: m.audio}, nil
}

func negativeUnderstanding() *Understanding {
	return &Understanding{
		Sentiment: &SentimentResult{Document: &DocumentSentiment{Label: "negative", Score: -0.8}},
	}
}

type fixture struct {
	stt  *mockSTT
	nlu  *mockNLU
	gen  *mockGen
	tts  *mockTTS
	orch *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		stt: &mockSTT{result: &STTResult{Transcript: "my router keeps rebooting"}},
		nlu: &mockNLU{result: negativeUnderstanding()},
		gen: &mockGen{text: "Sorry to hear that..."},
		tts: &mockTTS{audio: []byte{1, 2, 3}},
	}
	f.orch = New(Config{
		STT:          f.stt,
		NLU:          f.nlu,
		Generator:    NewGeneratorRouter(map[string]Generator{"gemini": f.gen}, "gemini"),
		TTS:          f.tts,
		ReplyEngine:  "gemini",
		TriageEngine: "gemini",
		Voice:        "en-US_MichaelV3Voice",
	})
	return f
}

func (f *fixture) totalCalls() int {
	return f.stt.calls + f.nlu.calls + f.gen.calls + f.tts.calls
}

func TestValidationPerformsZeroCalls(t *testing.T) {
	tests := []struct {
		name string
		run  func(o *Orchestrator) error
	}{
		{"voice empty audio", func(o *Orchestrator) error {
			_, err := o.Voice(context.Background(), nil, "audio/webm")
			return err
		}},
		{"text empty", func(o *Orchestrator) error {
			_, err := o.Text(context.Background(), "   ")
			return err
		}},
		{"triage empty subject and body", func(o *Orchestrator) error {
			_, err := o.Triage(context.Background(), TicketRequest{Channel: "email", CustomerID: "c-1"})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			err := tt.run(f.orch)
			require.Error(t, err)
			assert.Equal(t, KindInvalidInput, KindOf(err))
			assert.Zero(t, f.totalCalls())
		})
	}
}

func TestTextSuccess(t *testing.T) {
	f := newFixture()

	result, err := f.orch.Text(context.Background(), "My internet is down")
	require.NoError(t, err)

	assert.Equal(t, "My internet is down", result.Input)
	assert.Equal(t, "Sorry to hear that...", result.Reply)
	assert.Equal(t, []byte{1, 2, 3}, result.Audio)
	assert.Equal(t, "negative", result.Understanding.SentimentLabel())

	// The text pipeline prompts with the raw user text, single turn.
	require.Len(t, f.gen.prompts, 1)
	assert.Equal(t, "My internet is down", f.gen.prompts[0])
}

func TestVoiceSuccess(t *testing.T) {
	f := newFixture()

	result, err := f.orch.Voice(context.Background(), []byte{0xFF, 0xFB, 0x00}, "audio/mpeg")
	require.NoError(t, err)

	assert.Equal(t, "my router keeps rebooting", result.Transcript)
	assert.Equal(t, "Sorry to hear that...", result.Reply)
	assert.Equal(t, []byte{1, 2, 3}, result.Audio)

	// The reply prompt embeds the transcript and the serialized understanding.
	require.Len(t, f.gen.prompts, 1)
	assert.Contains(t, f.gen.prompts[0], "my router keeps rebooting")
	assert.Contains(t, f.gen.prompts[0], `"negative"`)
}

func TestTranscriptionFailureStopsPipeline(t *testing.T) {
	f := newFixture()
	f.stt.result = nil
	f.stt.err = errors.New("recognize status 503: overloaded")

	_, err := f.orch.Voice(context.Background(), []byte{1}, "audio/webm")
	require.Error(t, err)
	assert.Equal(t, KindTranscriptionFailed, KindOf(err))
	assert.Zero(t, f.nlu.calls)
	assert.Zero(t, f.gen.calls)
	assert.Zero(t, f.tts.calls)
}

func TestUnderstandingFailureStopsPipeline(t *testing.T) {
	f := newFixture()
	f.nlu.result = nil
	f.nlu.err = errors.New("analyze status 500: boom")

	_, err := f.orch.Text(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, KindUnderstandingFailed, KindOf(err))
	assert.Zero(t, f.gen.calls)
	assert.Zero(t, f.tts.calls)
}

func TestGenerationFailureStopsPipeline(t *testing.T) {
	f := newFixture()
	f.gen.err = errors.New("gemini returned no candidates")

	_, err := f.orch.Text(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, KindGenerationFailed, KindOf(err))
	assert.Equal(t, 1, f.nlu.calls)
	assert.Zero(t, f.tts.calls)
}

func TestSynthesisFailure(t *testing.T) {
	f := newFixture()
	f.tts.err = errors.New("synthesize status 401: unauthorized")

	_, err := f.orch.Text(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, KindSynthesisFailed, KindOf(err))
}

func TestTriageSuccess(t *testing.T) {
	f := newFixture()
	f.gen.text = `{"issue_type":"technical","urgency_level":4,"route_to":"tech_team","reply":"We are on it."}`

	req := TicketRequest{
		Subject:    "Internet outage",
		Body:       "No connection since this morning",
		Channel:    "email",
		CustomerID: "c-42",
	}
	result, err := f.orch.Triage(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, req, result.Ticket)
	assert.Equal(t, "technical", result.Decision.IssueType)
	assert.Equal(t, 4, result.Decision.UrgencyLevel)
	assert.Equal(t, "tech_team", result.Decision.RouteTo)

	// Composite ticket text reaches both NLU and the triage prompt.
	require.Len(t, f.gen.prompts, 1)
	assert.Contains(t, f.gen.prompts[0], "Customer: c-42")
	assert.Contains(t, f.gen.prompts[0], "Subject: Internet outage")
	assert.Contains(t, f.gen.prompts[0], "Sentiment: negative")
}

func TestTriageParseFailure(t *testing.T) {
	f := newFixture()
	f.gen.text = "Sure! Here is the classification you asked for."

	_, err := f.orch.Triage(context.Background(), TicketRequest{Subject: "help"})
	require.Error(t, err)
	assert.Equal(t, KindClassificationParseFail, KindOf(err))
	assert.Contains(t, Cause(err), "parse triage decision")
	// Parsing happens after generation; synthesis is never part of triage.
	assert.Zero(t, f.tts.calls)
}

func TestTriageDefaultsSentimentToNeutral(t *testing.T) {
	f := newFixture()
	f.nlu.result = &Understanding{}
	f.gen.text = `{"issue_type":"general","urgency_level":3,"route_to":"L1","reply":"ok"}`

	_, err := f.orch.Triage(context.Background(), TicketRequest{Body: "just checking in"})
	require.NoError(t, err)
	require.Len(t, f.gen.prompts, 1)
	assert.Contains(t, f.gen.prompts[0], "Sentiment: neutral")
}

func TestCompositeTicketText(t *testing.T) {
	got := compositeTicketText(TicketRequest{
		Subject:    "Refund",
		Body:       "Charged twice",
		Channel:    "chat",
		CustomerID: "c-7",
	})
	assert.Equal(t, "Customer: c-7\nChannel: chat\nSubject: Refund\nBody: Charged twice", got)
}

func TestGeneratorRouterFallsBack(t *testing.T) {
	gen := &mockGen{text: "hi"}
	router := NewGeneratorRouter(map[string]Generator{"gemini": gen}, "gemini")

	_, err := router.Generate(context.Background(), "p", "no-such-engine")
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)

	empty := NewGeneratorRouter(map[string]Generator{}, "gemini")
	_, err = empty.Generate(context.Background(), "p", "openai")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no backend"))
}

func TestStageErrorKeepsInnerKind(t *testing.T) {
	inner := invalidInput("text is required")
	wrapped := stageError(KindUnderstandingFailed, inner)
	assert.Equal(t, KindInvalidInput, KindOf(wrapped))
}
