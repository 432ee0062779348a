package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/orchiserve/triage-gateway/internal/pipeline"
	"github.com/orchiserve/triage-gateway/internal/services"
	"github.com/orchiserve/triage-gateway/internal/trace"
	"github.com/orchiserve/triage-gateway/internal/ws"
)

func main() {
	// Best-effort: credentials usually live in a local .env during
	// development, real env vars in deployment.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	registry := services.NewRegistry(map[string]services.ServiceMeta{
		"speech-to-text": {
			Category:   services.CategorySTT,
			URL:        cfg.sttURL,
			Configured: cfg.sttAPIKey != "" && cfg.sttURL != "",
		},
		"natural-language-understanding": {
			Category:   services.CategoryNLU,
			URL:        cfg.nluURL,
			Configured: cfg.nluAPIKey != "" && cfg.nluURL != "",
		},
		"generative-model": {
			Category:   services.CategoryLLM,
			URL:        cfg.geminiURL,
			Configured: cfg.geminiAPIKey != "",
		},
		"text-to-speech": {
			Category:   services.CategoryTTS,
			URL:        cfg.ttsURL,
			Configured: cfg.ttsAPIKey != "" && cfg.ttsURL != "",
		},
	})
	// A missing credential is logged here but does not stop the process;
	// the stage using it fails at call time instead.
	registry.LogStartup()

	stt := pipeline.NewWatsonSTTClient(cfg.sttAPIKey, cfg.sttURL, cfg.poolSize, cfg.sttTimeout)
	nlu := pipeline.NewWatsonNLUClient(cfg.nluAPIKey, cfg.nluURL, cfg.poolSize, cfg.nluTimeout)
	tts := pipeline.NewWatsonTTSClient(cfg.ttsAPIKey, cfg.ttsURL, cfg.ttsVoice, cfg.poolSize, cfg.ttsTimeout)

	generators := map[string]pipeline.Generator{
		"gemini":        pipeline.NewGeminiClient(cfg.geminiAPIKey, cfg.geminiURL, cfg.geminiModel, cfg.poolSize, cfg.llmTimeout),
		"gemini-triage": pipeline.NewGeminiClient(cfg.geminiAPIKey, cfg.geminiURL, cfg.triageModel, cfg.poolSize, cfg.llmTimeout),
	}
	if cfg.openaiAPIKey != "" {
		generators["openai"] = pipeline.NewOpenAIGenerator(cfg.openaiAPIKey, cfg.openaiModel, cfg.llmTimeout)
	}
	genRouter := pipeline.NewGeneratorRouter(generators, "gemini")

	replyEngine := cfg.generationEngine
	triageEngine := cfg.generationEngine
	if triageEngine == "gemini" {
		triageEngine = "gemini-triage"
	}

	var traceStore *trace.Store
	if cfg.traceDBURL != "" {
		store, err := trace.Open(cfg.traceDBURL)
		if err != nil {
			slog.Warn("trace store disabled", "error", err)
		} else {
			traceStore = store
			defer store.Close()
			slog.Info("trace store enabled")
		}
	}

	orch := pipeline.New(pipeline.Config{
		STT:          stt,
		NLU:          nlu,
		Generator:    genRouter,
		TTS:          tts,
		ReplyEngine:  replyEngine,
		TriageEngine: triageEngine,
		Voice:        cfg.ttsVoice,
	})

	wsHandler := ws.NewHandler(ws.HandlerConfig{
		Orchestrator:  orch,
		TraceStore:    traceStore,
		MaxConcurrent: cfg.maxConcurrentChats,
		HistoryLimit:  cfg.chatHistoryLimit,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		orch:       orch,
		voices:     tts,
		registry:   registry,
		traceStore: traceStore,
		wsHandler:  wsHandler,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr, "reply_engine", replyEngine, "triage_engine", triageEngine)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}
