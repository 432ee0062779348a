package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orchiserve/triage-gateway/internal/audio"
	"github.com/orchiserve/triage-gateway/internal/pipeline"
	"github.com/orchiserve/triage-gateway/internal/services"
	"github.com/orchiserve/triage-gateway/internal/trace"
	"github.com/orchiserve/triage-gateway/internal/ws"
)

// maxAudioUpload bounds a voice upload; browser recordings are a few hundred
// KB per utterance.
const maxAudioUpload = 25 << 20

type deps struct {
	orch       *pipeline.Orchestrator
	voices     *pipeline.WatsonTTSClient
	registry   *services.Registry
	traceStore *trace.Store
	wsHandler  *ws.Handler
}

func registerRoutes(mux *http.ServeMux, d deps) {
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("triage gateway is running"))
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /process-voice", d.processVoice)
	mux.HandleFunc("POST /test-text", d.testText)
	mux.HandleFunc("POST /process", d.process)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/services", d.listServices)
	mux.HandleFunc("GET /api/voices", d.listVoices)

	mux.HandleFunc("GET /api/traces/sessions", d.listTraceSessions)
	mux.HandleFunc("GET /api/traces/sessions/{id}", d.getTraceSession)
	mux.HandleFunc("GET /api/traces/sessions/{id}/runs/{runId}", d.getTraceRun)

	mux.Handle("GET /ws/chat", d.wsHandler)
}

type voiceResponse struct {
	Text       string                  `json:"text"`
	Audio      []byte                  `json:"audio"`
	Transcript string                  `json:"transcript"`
	NLU        *pipeline.Understanding `json:"nlu"`
}

func (d deps) processVoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file missing"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file missing"})
		return
	}

	contentType := audio.ContentType(header.Header.Get("Content-Type"), data)

	orch, done := d.tracedOrchestrator(r)
	defer done()

	result, err := orch.Voice(r.Context(), data, contentType)
	if err != nil {
		writePipelineError(w, "Voice pipeline failed", err)
		return
	}

	writeJSON(w, http.StatusOK, voiceResponse{
		Text:       result.Reply,
		Audio:      result.Audio,
		Transcript: result.Transcript,
		NLU:        result.Understanding,
	})
}

type textRequest struct {
	Text string `json:"text"`
}

type textResponse struct {
	Input    string                  `json:"input"`
	NLU      *pipeline.Understanding `json:"nlu"`
	Response string                  `json:"response"`
	Audio    []byte                  `json:"audio"`
}

func (d deps) testText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}

	orch, done := d.tracedOrchestrator(r)
	defer done()

	result, err := orch.Text(r.Context(), req.Text)
	if err != nil {
		writePipelineError(w, "Text pipeline failed", err)
		return
	}

	writeJSON(w, http.StatusOK, textResponse{
		Input:    result.Input,
		NLU:      result.Understanding,
		Response: result.Reply,
		Audio:    result.Audio,
	})
}

type triageResponse struct {
	Ticket   pipeline.TicketRequest   `json:"ticket"`
	NLU      *pipeline.Understanding  `json:"nlu"`
	Decision *pipeline.TriageDecision `json:"decision"`
}

func (d deps) process(w http.ResponseWriter, r *http.Request) {
	var req pipeline.TicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "subject or body required"})
		return
	}

	orch, done := d.tracedOrchestrator(r)
	defer done()

	result, err := orch.Triage(r.Context(), req)
	if err != nil {
		writePipelineError(w, "Triage pipeline failed", err)
		return
	}

	writeJSON(w, http.StatusOK, triageResponse{
		Ticket:   result.Ticket,
		NLU:      result.Understanding,
		Decision: result.Decision,
	})
}

func (d deps) listServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": d.registry.StatusAll()})
}

func (d deps) listVoices(w http.ResponseWriter, r *http.Request) {
	if meta, ok := d.registry.Lookup("text-to-speech"); !ok || !meta.Configured {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "text-to-speech not configured"})
		return
	}

	voices, err := d.voices.ListVoices(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "voices request failed", "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": voices})
}

func (d deps) listTraceSessions(w http.ResponseWriter, r *http.Request) {
	if d.traceStore == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tracing disabled"})
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	sessions, total, err := d.traceStore.ListSessions(limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "trace query failed", "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "total": total})
}

func (d deps) getTraceSession(w http.ResponseWriter, r *http.Request) {
	if d.traceStore == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tracing disabled"})
		return
	}

	sess, runs, err := d.traceStore.GetSession(r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "trace query failed", "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess, "runs": runs})
}

func (d deps) getTraceRun(w http.ResponseWriter, r *http.Request) {
	if d.traceStore == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tracing disabled"})
		return
	}

	run, spans, err := d.traceStore.GetRun(r.PathValue("id"), r.PathValue("runId"))
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "trace query failed", "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "spans": spans})
}

// tracedOrchestrator wraps the orchestrator in a one-request trace session
// when tracing is enabled. The returned func must be called after the request.
func (d deps) tracedOrchestrator(r *http.Request) (*pipeline.Orchestrator, func()) {
	if d.traceStore == nil {
		return d.orch, func() {}
	}

	sessionID := uuid.NewString()
	meta, _ := json.Marshal(map[string]string{"transport": "http", "path": r.URL.Path})
	if err := d.traceStore.CreateSession(sessionID, string(meta)); err != nil {
		slog.Warn("trace session create", "error", err)
		return d.orch, func() {}
	}

	tracer := trace.NewTracer(d.traceStore, sessionID)
	return d.orch.WithTracer(tracer), func() {
		tracer.Close()
		if err := d.traceStore.EndSession(sessionID); err != nil {
			slog.Warn("trace session end", "error", err)
		}
	}
}

func writePipelineError(w http.ResponseWriter, label string, err error) {
	if pipeline.KindOf(err) == pipeline.KindInvalidInput {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": pipeline.Cause(err)})
		return
	}
	slog.Error("pipeline request failed", "label", label, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   label,
		"details": pipeline.Cause(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
