package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App           AppConfig
	Ai            AIConfig
	Extraction    ExtractionConfig
	Cache         CacheConfig
	Chat          ChatConfig
	Transcription TranscriptionConfig
	Questionnaire QuestionnaireConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	EventLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	EventTopic         string // watermill topic carrying intake events
	SessionTTL         time.Duration
}

type AIConfig struct {
	LLMProvider string // "ollama", "openai" or "huggingface"
	LLMModel    string
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	// PhraseQuestions asks the LLM to rephrase the next pending question.
	PhraseQuestions bool
}

type ExtractionConfig struct {
	// Backend selects the extractor: "llm" talks to the provider directly,
	// "http" posts to an external extraction service at ServiceURL.
	Backend          string
	ServiceURL       string
	Timeout          time.Duration
	BatchSize        int
	MaxTokens        int
	ProgressInterval time.Duration
}

type CacheConfig struct {
	Backend string // "memory" or "redis"
	TTL     time.Duration
}

type ChatConfig struct {
	TypingDelay     time.Duration
	SuggestionDelay time.Duration
	FollowUpDelay   time.Duration
}

type TranscriptionConfig struct {
	URL     string
	Timeout time.Duration
}

type QuestionnaireConfig struct {
	Path string // empty uses the embedded default
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			EventLogFilePath:   getEnv("EVENT_LOG_FILE_PATH", "logs/events.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			EventTopic:         getEnv("INTAKE_EVENT_TOPIC", "INTAKE_EVENTS"),
			SessionTTL:         getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		},
		Ai: AIConfig{
			LLMProvider:     getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:        getEnv("LLM_MODEL", "llama3"),
			BaseURL:         getEnv("LLM_BASE_URL", ""),
			APIKey:          getEnv("LLM_API_KEY", ""),
			Timeout:         getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
			PhraseQuestions: getEnvAsBool("LLM_PHRASE_QUESTIONS", false),
		},
		Extraction: ExtractionConfig{
			Backend:          getEnv("EXTRACTION_BACKEND", "llm"),
			ServiceURL:       getEnv("EXTRACTION_SERVICE_URL", "http://localhost:5000/extract_project_data"),
			Timeout:          getEnvAsDuration("EXTRACTION_TIMEOUT", 90*time.Second),
			BatchSize:        getEnvAsInt("EXTRACTION_BATCH_SIZE", 15),
			MaxTokens:        getEnvAsInt("EXTRACTION_MAX_TOKENS", 1500),
			ProgressInterval: getEnvAsDuration("EXTRACTION_PROGRESS_INTERVAL", 800*time.Millisecond),
		},
		Cache: CacheConfig{
			Backend: getEnv("CACHE_BACKEND", "memory"),
			TTL:     getEnvAsDuration("CACHE_TTL", 24*time.Hour),
		},
		Chat: ChatConfig{
			TypingDelay:     getEnvAsDuration("CHAT_TYPING_DELAY", 1500*time.Millisecond),
			SuggestionDelay: getEnvAsDuration("CHAT_SUGGESTION_DELAY", 1500*time.Millisecond),
			FollowUpDelay:   getEnvAsDuration("CHAT_FOLLOW_UP_DELAY", 1800*time.Millisecond),
		},
		Transcription: TranscriptionConfig{
			URL:     getEnv("TRANSCRIPTION_URL", ""),
			Timeout: getEnvAsDuration("TRANSCRIPTION_TIMEOUT", 60*time.Second),
		},
		Questionnaire: QuestionnaireConfig{
			Path: getEnv("QUESTIONNAIRE_PATH", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("1.5s") or bare milliseconds ("1500").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if ms, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
