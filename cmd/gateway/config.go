package main

import (
	"os"
	"strconv"
	"time"
)

type config struct {
	port string

	sttAPIKey string
	sttURL    string

	nluAPIKey string
	nluURL    string

	ttsAPIKey string
	ttsURL    string
	ttsVoice  string

	geminiAPIKey string
	geminiURL    string
	geminiModel  string
	triageModel  string

	openaiAPIKey string
	openaiModel  string

	generationEngine string

	poolSize   int
	sttTimeout time.Duration
	nluTimeout time.Duration
	llmTimeout time.Duration
	ttsTimeout time.Duration

	maxConcurrentChats int
	chatHistoryLimit   int

	traceDBURL string
}

func loadConfig() config {
	return config{
		port:               envStr("PORT", "8080"),
		sttAPIKey:          envStr("STT_APIKEY", ""),
		sttURL:             envStr("STT_URL", ""),
		nluAPIKey:          envStr("NLU_APIKEY", ""),
		nluURL:             envStr("NLU_URL", ""),
		ttsAPIKey:          envStr("TTS_APIKEY", ""),
		ttsURL:             envStr("TTS_URL", ""),
		ttsVoice:           envStr("TTS_VOICE", "en-US_MichaelV3Voice"),
		geminiAPIKey:       envStr("GEMINI_APIKEY", ""),
		geminiURL:          envStr("GEMINI_URL", "https://generativelanguage.googleapis.com"),
		geminiModel:        envStr("GEMINI_MODEL", "gemini-2.0-flash"),
		triageModel:        envStr("TRIAGE_MODEL", "gemini-1.5-flash-latest"),
		openaiAPIKey:       envStr("OPENAI_APIKEY", ""),
		openaiModel:        envStr("OPENAI_MODEL", "gpt-4o-mini"),
		generationEngine:   envStr("GENERATION_ENGINE", "gemini"),
		poolSize:           envInt("HTTP_POOL_SIZE", 50),
		sttTimeout:         envSeconds("STT_TIMEOUT_S", 30),
		nluTimeout:         envSeconds("NLU_TIMEOUT_S", 30),
		llmTimeout:         envSeconds("LLM_TIMEOUT_S", 30),
		ttsTimeout:         envSeconds("TTS_TIMEOUT_S", 30),
		maxConcurrentChats: envInt("MAX_CONCURRENT_CHATS", 100),
		chatHistoryLimit:   envInt("CHAT_HISTORY_LIMIT", 80),
		traceDBURL:         envStr("TRACE_DB_URL", ""),
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}
