package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// HTTP Server Configuration
	HTTPPort        string
	HTTPReadTimeout time.Duration
	// Write timeout stays 0 by default: the job stream holds the
	// connection open for the life of a job.
	HTTPWriteTimeout time.Duration

	// Model Configuration
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAITemperature float64
	OpenAITimeout     time.Duration
	OpenAIMaxRetries  int

	// Job Orchestration Configuration
	MaxConcurrency    int
	ReadingRateWPM    int
	JobStreamInterval time.Duration

	// Pipeline Configuration
	SceneStepSeconds        int
	MaxSceneStampsPerPass   int
	SceneScriptOverlapChars int
	TitleVariantCount       int
	PackagingTitleMaxLen    int
	MetadataExcerptMaxChars int

	// Storage Configuration
	ProjectsDir string
	PresetsFile string

	// Topic Rotation Configuration
	TopicHistoryLimit  int
	TopicGenerateCount int

	// Auto-generation Configuration
	AutoGenerateCron      string
	AutoGenerateStoryType string
	AutoGenerateMinutes   int

	// Settlement Webhook Configuration
	JobWebhookURL     string
	JobWebhookTimeout time.Duration

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// CORS Configuration
	CORSAllowedOrigins   string
	CORSAllowedMethods   string
	CORSAllowedHeaders   string
	CORSAllowCredentials bool
	CORSMaxAge           int
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	return &Config{
		// HTTP Server
		HTTPPort:         getEnv("PORT", "8000"),
		HTTPReadTimeout:  getDurationEnv("HTTP_READ_TIMEOUT_SEC", 30) * time.Second,
		HTTPWriteTimeout: getDurationEnv("HTTP_WRITE_TIMEOUT_SEC", 0) * time.Second,

		// Model
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-5-mini"),
		OpenAITemperature: getFloatEnv("OPENAI_TEMPERATURE", 1.0),
		OpenAITimeout:     getDurationEnv("OPENAI_TIMEOUT_SEC", 180) * time.Second,
		OpenAIMaxRetries:  getIntEnv("OPENAI_MAX_RETRIES", 2),

		// Job Orchestration
		MaxConcurrency:    getIntEnv("MAX_CONCURRENCY", 6),
		ReadingRateWPM:    getIntEnv("READING_RATE_WPM", 150),
		JobStreamInterval: getDurationEnv("JOB_STREAM_INTERVAL_MS", 3000) * time.Millisecond,

		// Pipelines
		SceneStepSeconds:        getIntEnv("SCENE_STEP_SECONDS", 30),
		MaxSceneStampsPerPass:   getIntEnv("MAX_SCENE_STAMPS_PER_PASS", 120),
		SceneScriptOverlapChars: getIntEnv("SCENE_SCRIPT_OVERLAP_CHARS", 1200),
		TitleVariantCount:       getIntEnv("TITLE_VARIANT_COUNT", 8),
		PackagingTitleMaxLen:    getIntEnv("PACKAGING_TITLE_MAX_LEN", 70),
		MetadataExcerptMaxChars: getIntEnv("METADATA_EXCERPT_MAX_CHARS", 8000),

		// Storage
		ProjectsDir: getEnv("PROJECTS_DIR", "./projects"),
		PresetsFile: getEnv("PRESETS_FILE", ""),

		// Topic Rotation
		TopicHistoryLimit:  getIntEnv("TOPIC_HISTORY_LIMIT", 200),
		TopicGenerateCount: getIntEnv("TOPIC_GENERATE_COUNT", 12),

		// Auto-generation
		AutoGenerateCron:      getEnv("AUTO_GENERATE_CRON", ""),
		AutoGenerateStoryType: getEnv("AUTO_GENERATE_STORY_TYPE", "paranormal"),
		AutoGenerateMinutes:   getIntEnv("AUTO_GENERATE_MINUTES", 60),

		// Settlement Webhook
		JobWebhookURL:     getEnv("JOB_WEBHOOK_URL", ""),
		JobWebhookTimeout: getDurationEnv("JOB_WEBHOOK_TIMEOUT_SEC", 10) * time.Second,

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// CORS
		CORSAllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "*"),
		CORSAllowedMethods:   getEnv("CORS_ALLOWED_METHODS", "GET, POST, PUT, DELETE, OPTIONS, PATCH"),
		CORSAllowedHeaders:   getEnv("CORS_ALLOWED_HEADERS", "*"),
		CORSAllowCredentials: getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAge:           getIntEnv("CORS_MAX_AGE", 3600),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
		log.Printf("Warning: Invalid float value for %s, using default %g", key, defaultValue)
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal)
		}
		log.Printf("Warning: Invalid duration value for %s, using default %d", key, defaultValue)
	}
	return time.Duration(defaultValue)
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
	}
	return defaultValue
}
