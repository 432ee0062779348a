package trace

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const maxIOLen = 500

type traceMsg struct {
	kind string // "run_create", "run_update", "span"
	// run fields
	runID      string
	sessionID  string
	pipeline   string
	durationMs float64
	input      string
	reply      string
	status     string
	// span fields
	span Span
}

// Tracer writes trace data asynchronously via a buffered channel so stage
// recording never blocks a pipeline: when the buffer is full (a slow or
// stalled database) the record is dropped with a warning. All methods are
// nil-safe (no-op on nil receiver), which lets the orchestrator run untouched
// when tracing is disabled.
type Tracer struct {
	store     *Store
	sessionID string
	ch        chan traceMsg
	done      chan struct{}
}

// NewTracer creates a tracer bound to a session. Must call Close when done.
func NewTracer(store *Store, sessionID string) *Tracer {
	t := &Tracer{
		store:     store,
		sessionID: sessionID,
		ch:        make(chan traceMsg, 64),
		done:      make(chan struct{}),
	}
	go t.drain()
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		t.handle(msg)
	}
}

func (t *Tracer) handle(m traceMsg) {
	var err error
	switch m.kind {
	case "run_create":
		err = t.store.CreateRun(m.runID, m.sessionID, m.pipeline)
	case "run_update":
		err = t.store.UpdateRun(m.runID, m.durationMs, m.input, m.reply, m.status)
	case "span":
		err = t.store.CreateSpan(m.span)
	default:
		return
	}
	if err != nil {
		slog.Warn("trace write failed", "kind", m.kind, "error", err)
	}
}

// send enqueues a trace write without blocking; a full buffer drops the
// record.
func (t *Tracer) send(m traceMsg) {
	select {
	case t.ch <- m:
	default:
		slog.Warn("trace buffer full, dropping record", "kind", m.kind)
	}
}

// StartRun begins a new run for the named pipeline and returns its ID.
func (t *Tracer) StartRun(pipeline string) string {
	if t == nil {
		return ""
	}
	id := uuid.NewString()
	t.send(traceMsg{kind: "run_create", runID: id, sessionID: t.sessionID, pipeline: pipeline})
	return id
}

// EndRun finalizes a run.
func (t *Tracer) EndRun(runID string, durationMs float64, input, reply, status string) {
	if t == nil {
		return
	}
	t.send(traceMsg{
		kind:       "run_update",
		runID:      runID,
		durationMs: durationMs,
		input:      truncate(input, maxIOLen),
		reply:      truncate(reply, maxIOLen),
		status:     status,
	})
}

// RecordSpan records a completed stage span.
func (t *Tracer) RecordSpan(runID, name string, startedAt time.Time, durationMs float64, input, output, status, errMsg string) {
	if t == nil {
		return
	}
	t.send(traceMsg{
		kind: "span",
		span: Span{
			ID:         uuid.NewString(),
			RunID:      runID,
			Name:       name,
			StartedAt:  startedAt,
			DurationMs: durationMs,
			Input:      truncate(input, maxIOLen),
			Output:     truncate(output, maxIOLen),
			Status:     status,
			Error:      errMsg,
		},
	})
}

// Close drains pending writes and shuts down the background goroutine.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	close(t.ch)
	<-t.done
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
