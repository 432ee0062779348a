package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/orchiserve/triage-gateway/internal/metrics"
	"github.com/orchiserve/triage-gateway/internal/prompts"
	"github.com/orchiserve/triage-gateway/internal/trace"
)

// Config holds the shared stage clients for the orchestrator.
type Config struct {
	STT          Transcriber
	NLU          Analyzer
	Generator    *GeneratorRouter
	TTS          Synthesizer
	ReplyEngine  string
	TriageEngine string
	Voice        string
	Tracer       *trace.Tracer
}

// Orchestrator composes the stage adapters into three fixed sequences: voice,
// text, and triage. Stages within one sequence run strictly in order — each
// stage's input depends on the prior stage's output — and the first failure
// aborts the remainder. No stage is retried and no partial result is returned.
//
// The orchestrator holds no mutable state; one instance serves concurrent
// requests.
type Orchestrator struct {
	cfg Config
}

// New creates an orchestrator over the given stage clients.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// WithTracer returns a copy of the orchestrator that records runs and stage
// spans to t. A nil tracer is valid and records nothing.
func (o *Orchestrator) WithTracer(t *trace.Tracer) *Orchestrator {
	cfg := o.cfg
	cfg.Tracer = t
	return &Orchestrator{cfg: cfg}
}

// WithVoice returns a copy of the orchestrator that synthesizes with the given
// voice. An empty voice keeps the configured default.
func (o *Orchestrator) WithVoice(voice string) *Orchestrator {
	if voice == "" {
		return o
	}
	cfg := o.cfg
	cfg.Voice = voice
	return &Orchestrator{cfg: cfg}
}

// WithReplyEngine returns a copy of the orchestrator that routes reply
// generation to the given engine. An empty engine keeps the configured
// default; an unregistered one falls back at the router.
func (o *Orchestrator) WithReplyEngine(engine string) *Orchestrator {
	if engine == "" {
		return o
	}
	cfg := o.cfg
	cfg.ReplyEngine = engine
	return &Orchestrator{cfg: cfg}
}

// VoiceResult is the assembled output of the voice pipeline.
type VoiceResult struct {
	Transcript    string
	Reply         string
	Audio         []byte
	Understanding *Understanding
}

// TextResult is the assembled output of the text pipeline.
type TextResult struct {
	Input         string
	Understanding *Understanding
	Reply         string
	Audio         []byte
}

// TicketRequest is the inbound triage payload. At least one of Subject and
// Body must be present.
type TicketRequest struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Channel    string `json:"channel"`
	CustomerID string `json:"customerId"`
}

// TriageResult is the assembled output of the triage pipeline.
type TriageResult struct {
	Ticket        TicketRequest
	Understanding *Understanding
	Decision      *TriageDecision
}

// Voice runs transcribe → analyze → generate → synthesize for one audio
// upload.
func (o *Orchestrator) Voice(ctx context.Context, audio []byte, contentType string) (*VoiceResult, error) {
	if len(audio) == 0 {
		return nil, invalidInput("audio file missing")
	}

	metrics.RequestsTotal.WithLabelValues("voice").Inc()
	start := time.Now()
	runID := o.cfg.Tracer.StartRun("voice")

	sttStart := time.Now()
	stt, err := o.cfg.STT.Transcribe(ctx, audio, contentType)
	sttInput := fmt.Sprintf("audio_bytes=%d content_type=%s", len(audio), contentType)
	if err != nil {
		o.span(runID, "transcribe", sttStart, sttInput, "", err)
		o.endRun(runID, start, sttInput, "", "error")
		return nil, stageError(KindTranscriptionFailed, err)
	}
	o.span(runID, "transcribe", sttStart, sttInput, stt.Transcript, nil)
	slog.Info("transcript", "text", stt.Transcript, "stt_ms", stt.LatencyMs)

	u, err := o.analyze(ctx, runID, stt.Transcript)
	if err != nil {
		o.endRun(runID, start, stt.Transcript, "", "error")
		return nil, err
	}

	prompt := prompts.Reply(stt.Transcript, marshalUnderstanding(u))
	gen, err := o.generate(ctx, runID, prompt, o.cfg.ReplyEngine)
	if err != nil {
		o.endRun(runID, start, stt.Transcript, "", "error")
		return nil, err
	}
	slog.Info("reply", "text", gen.Text, "llm_ms", gen.LatencyMs)

	tts, err := o.synthesize(ctx, runID, gen.Text)
	if err != nil {
		o.endRun(runID, start, stt.Transcript, gen.Text, "error")
		return nil, err
	}

	o.finish(runID, "voice", start, stt.Transcript, gen.Text)
	return &VoiceResult{
		Transcript:    stt.Transcript,
		Reply:         gen.Text,
		Audio:         tts.Audio,
		Understanding: u,
	}, nil
}

// Text runs analyze → generate → synthesize for one typed message. The prompt
// is the raw user text, single-turn.
func (o *Orchestrator) Text(ctx context.Context, text string) (*TextResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalidInput("text is required")
	}

	metrics.RequestsTotal.WithLabelValues("text").Inc()
	start := time.Now()
	runID := o.cfg.Tracer.StartRun("text")

	u, err := o.analyze(ctx, runID, text)
	if err != nil {
		o.endRun(runID, start, text, "", "error")
		return nil, err
	}

	gen, err := o.generate(ctx, runID, text, o.cfg.ReplyEngine)
	if err != nil {
		o.endRun(runID, start, text, "", "error")
		return nil, err
	}
	slog.Info("reply", "text", gen.Text, "llm_ms", gen.LatencyMs)

	tts, err := o.synthesize(ctx, runID, gen.Text)
	if err != nil {
		o.endRun(runID, start, text, gen.Text, "error")
		return nil, err
	}

	o.finish(runID, "text", start, text, gen.Text)
	return &TextResult{
		Input:         text,
		Understanding: u,
		Reply:         gen.Text,
		Audio:         tts.Audio,
	}, nil
}

// Triage runs analyze → classify over the composite ticket text. The
// classification reply must parse as a TriageDecision; malformed model output
// is fatal for the request.
func (o *Orchestrator) Triage(ctx context.Context, req TicketRequest) (*TriageResult, error) {
	if strings.TrimSpace(req.Subject) == "" && strings.TrimSpace(req.Body) == "" {
		return nil, invalidInput("subject or body required")
	}

	metrics.RequestsTotal.WithLabelValues("triage").Inc()
	start := time.Now()
	runID := o.cfg.Tracer.StartRun("triage")

	composite := compositeTicketText(req)

	u, err := o.analyze(ctx, runID, composite)
	if err != nil {
		o.endRun(runID, start, composite, "", "error")
		return nil, err
	}

	prompt := prompts.Triage(composite, u.SentimentLabel())
	gen, err := o.generate(ctx, runID, prompt, o.cfg.TriageEngine)
	if err != nil {
		o.endRun(runID, start, composite, "", "error")
		return nil, err
	}

	decision, err := ParseDecision(gen.Text)
	if err != nil {
		metrics.Errors.WithLabelValues("generate", "parse").Inc()
		o.endRun(runID, start, composite, gen.Text, "error")
		return nil, stageError(KindClassificationParseFail, err)
	}
	slog.Info("triage decision", "issue_type", decision.IssueType, "urgency", decision.UrgencyLevel, "route_to", decision.RouteTo)

	o.finish(runID, "triage", start, composite, decision.Reply)
	return &TriageResult{
		Ticket:        req,
		Understanding: u,
		Decision:      decision,
	}, nil
}

func (o *Orchestrator) analyze(ctx context.Context, runID, text string) (*Understanding, error) {
	nluStart := time.Now()
	u, err := o.cfg.NLU.Analyze(ctx, text)
	if err != nil {
		o.span(runID, "analyze", nluStart, text, "", err)
		return nil, stageError(KindUnderstandingFailed, err)
	}
	o.span(runID, "analyze", nluStart, text, "sentiment="+u.SentimentLabel(), nil)
	return u, nil
}

func (o *Orchestrator) generate(ctx context.Context, runID, prompt, engine string) (*GenerationResult, error) {
	llmStart := time.Now()
	gen, err := o.cfg.Generator.Generate(ctx, prompt, engine)
	if err != nil {
		o.span(runID, "generate", llmStart, prompt, "", err)
		return nil, stageError(KindGenerationFailed, err)
	}
	o.span(runID, "generate", llmStart, prompt, gen.Text, nil)
	return gen, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, runID, text string) (*TTSResult, error) {
	ttsStart := time.Now()
	tts, err := o.cfg.TTS.Synthesize(ctx, text, o.cfg.Voice)
	if err != nil {
		o.span(runID, "synthesize", ttsStart, text, "", err)
		return nil, stageError(KindSynthesisFailed, err)
	}
	o.span(runID, "synthesize", ttsStart, text, fmt.Sprintf("audio_bytes=%d", len(tts.Audio)), nil)
	return tts, nil
}

func (o *Orchestrator) span(runID, name string, start time.Time, input, output string, err error) {
	if o.cfg.Tracer == nil {
		return
	}
	status, errMsg := "ok", ""
	if err != nil {
		status, errMsg = "error", err.Error()
	}
	o.cfg.Tracer.RecordSpan(runID, name, start, float64(time.Since(start).Milliseconds()), input, output, status, errMsg)
}

func (o *Orchestrator) endRun(runID string, start time.Time, input, reply, status string) {
	if o.cfg.Tracer == nil {
		return
	}
	o.cfg.Tracer.EndRun(runID, float64(time.Since(start).Milliseconds()), input, reply, status)
}

func (o *Orchestrator) finish(runID, pipeline string, start time.Time, input, reply string) {
	elapsed := time.Since(start)
	metrics.E2EDuration.WithLabelValues(pipeline).Observe(elapsed.Seconds())
	slog.Info("pipeline done", "pipeline", pipeline, "e2e_ms", elapsed.Milliseconds())
	o.endRun(runID, start, input, reply, "ok")
}

// compositeTicketText flattens a ticket request into the text handed to NLU
// and the triage prompt. Fields are interpolated literally.
func compositeTicketText(req TicketRequest) string {
	return strings.TrimSpace(fmt.Sprintf("Customer: %s\nChannel: %s\nSubject: %s\nBody: %s",
		req.CustomerID, req.Channel, req.Subject, req.Body))
}

func marshalUnderstanding(u *Understanding) string {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
