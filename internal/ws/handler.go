package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/orchiserve/triage-gateway/internal/metrics"
	"github.com/orchiserve/triage-gateway/internal/pipeline"
	"github.com/orchiserve/triage-gateway/internal/ticket"
	"github.com/orchiserve/triage-gateway/internal/trace"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the shared dependencies for all chat sessions.
type HandlerConfig struct {
	Orchestrator  *pipeline.Orchestrator
	TraceStore    *trace.Store
	MaxConcurrent int
	HistoryLimit  int
}

// Handler manages WebSocket chat sessions with admission control.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
}

// NewHandler creates a chat handler with a concurrency limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	return &Handler{
		cfg: cfg,
		sem: make(chan struct{}, maxConc),
	}
}

// sessionMetadata is the first text frame sent by the client. Voice and
// engine, when present, override the session's synthesis voice and reply
// engine for every pipeline run.
type sessionMetadata struct {
	Channel string `json:"channel"`
	Voice   string `json:"voice"`
	Engine  string `json:"engine"`
}

// clientMessage is every subsequent text frame.
type clientMessage struct {
	Type string `json:"type"` // "text" or "history"
	Text string `json:"text,omitempty"`
}

// Event is a session output frame. Reply audio is sent as a separate binary
// frame immediately before the reply event.
type Event struct {
	Type      string                  `json:"type"` // nlu, reply, ticket, history, error
	Text      string                  `json:"text,omitempty"`
	Details   string                  `json:"details,omitempty"`
	NLU       *pipeline.Understanding `json:"nlu,omitempty"`
	Ticket    *ticket.Ticket          `json:"ticket,omitempty"`
	Entries   []Entry                 `json:"entries,omitempty"`
	LatencyMs float64                 `json:"latency_ms,omitempty"`
	Audio     []byte                  `json:"-"`
}

// ServeHTTP upgrades the connection and runs the chat session. Returns 503
// at max concurrent capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.ChatSessionsActive.Inc()
	metrics.ChatSessionsTotal.Inc()
	defer metrics.ChatSessionsActive.Dec()

	h.runSession(conn)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meta, err := readMetadata(conn)
	if err != nil {
		slog.Error("read session metadata", "error", err)
		return
	}

	channel := ticket.ChannelChat
	if meta.Channel == "voice" {
		channel = ticket.ChannelVoice
	}

	sessionID := uuid.NewString()
	orch := h.cfg.Orchestrator.WithVoice(meta.Voice).WithReplyEngine(meta.Engine)

	if h.cfg.TraceStore != nil {
		metaJSON, _ := json.Marshal(meta)
		if err = h.cfg.TraceStore.CreateSession(sessionID, string(metaJSON)); err != nil {
			slog.Warn("trace session create", "error", err)
		}
		tracer := trace.NewTracer(h.cfg.TraceStore, sessionID)
		defer func() {
			tracer.Close()
			if endErr := h.cfg.TraceStore.EndSession(sessionID); endErr != nil {
				slog.Warn("trace session end", "error", endErr)
			}
		}()
		orch = orch.WithTracer(tracer)
	}

	slog.Info("chat session started", "session_id", sessionID, "channel", channel)

	history := NewHistory(h.cfg.HistoryLimit)
	send := newEventSender(conn)

	for {
		var msg clientMessage
		if err = conn.ReadJSON(&msg); err != nil {
			slog.Info("chat session closed", "session_id", sessionID, "error", err)
			return
		}

		switch msg.Type {
		case "text":
			h.handleText(ctx, orch, channel, history, msg.Text, send)
		case "history":
			send(Event{Type: "history", Entries: history.Entries()})
		default:
			send(Event{Type: "error", Text: "unknown message type", Details: msg.Type})
		}
	}
}

func (h *Handler) handleText(ctx context.Context, orch *pipeline.Orchestrator, channel ticket.Channel, history *History, text string, send func(Event)) {
	history.Append(Entry{Sender: SenderUser, Text: text, At: time.Now()})

	result, err := orch.Text(ctx, text)
	if err != nil {
		slog.Error("chat pipeline", "error", err)
		send(Event{Type: "error", Text: "Text pipeline failed", Details: pipeline.Cause(err)})
		return
	}

	send(Event{Type: "nlu", NLU: result.Understanding})
	send(Event{Type: "reply", Text: result.Reply, Audio: result.Audio})

	derived := ticket.Derive(channel, result.Understanding)
	send(Event{Type: "ticket", Ticket: &derived})

	history.Append(Entry{Sender: SenderAI, Text: result.Reply, At: time.Now()})
}

// newEventSender serializes writes: the audio binary frame goes out before
// the JSON frame describing it.
func newEventSender(conn *websocket.Conn) func(Event) {
	var mu sync.Mutex
	return func(ev Event) {
		mu.Lock()
		defer mu.Unlock()

		if ev.Audio != nil {
			if err := conn.WriteMessage(websocket.BinaryMessage, ev.Audio); err != nil {
				slog.Error("write audio frame", "error", err)
			}
		}

		if err := conn.WriteJSON(ev); err != nil {
			slog.Error("write event", "error", err)
		}
	}
}

func readMetadata(conn *websocket.Conn) (*sessionMetadata, error) {
	var meta sessionMetadata
	if err := conn.ReadJSON(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
