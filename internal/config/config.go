package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	// Database
	DatabaseURL string

	// Database Connection Pool
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime int // in minutes
	DBConnMaxLifetime int // in minutes

	// Upstream AI provider
	OpenAIAPIKey  string
	OpenAIBaseURL string
	AnalysisModel string

	// External media tools
	YtDlpPath    string
	FFmpegPath   string
	WhisperPath  string
	WhisperModel string
	ScratchDir   string

	// Search pipeline
	MaxConcurrentJobs   int
	JobPollIntervalSecs int
	JobTimeoutMinutes   int
	ChunkSeconds        int
	MaxChunks           int
	MaxCandidates       int
	ResultsPerStrategy  int

	// English gate heuristic (empirical, tunable)
	EnglishMinFunctionWords int
	EnglishMaxNonASCIIRatio float64

	// Streaming
	MaxActiveStreams int

	// Rate limiting
	ThrottleUserLimit     int
	ThrottleIPLimit       int
	ThrottleWindowMinutes int
	FreeAnalysisLimit     int
	FreeAnalysisWindowMin int

	// Server
	ServerShutdownTimeoutSeconds int

	// CORS
	CORSAllowedOrigins string

	// Logging
	LogLevel  string
	LogFormat string
}

var AppConfig *Config

func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		// Database
		DatabaseURL: getEnvOrDefault("DATABASE_URL", "postgres://localhost/wordclip?sslmode=disable"),

		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvAsInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 5),
		DBConnMaxLifetime: getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 60),

		// Upstream AI provider
		OpenAIAPIKey:  getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnvOrDefault("OPENAI_BASE_URL", ""),
		AnalysisModel: getEnvOrDefault("ANALYSIS_MODEL", "gpt-4o-mini"),

		// External media tools
		YtDlpPath:    getEnvOrDefault("YTDLP_PATH", "yt-dlp"),
		FFmpegPath:   getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		WhisperPath:  getEnvOrDefault("WHISPER_PATH", "whisper"),
		WhisperModel: getEnvOrDefault("WHISPER_MODEL", "base.en"),
		ScratchDir:   getEnvOrDefault("SCRATCH_DIR", "temp"),

		// Search pipeline
		MaxConcurrentJobs:   getEnvAsInt("MAX_CONCURRENT_JOBS", 5),
		JobPollIntervalSecs: getEnvAsInt("JOB_POLL_INTERVAL_SECONDS", 2),
		JobTimeoutMinutes:   getEnvAsInt("JOB_TIMEOUT_MINUTES", 15),
		ChunkSeconds:        getEnvAsInt("TRANSCRIBE_CHUNK_SECONDS", 30),
		MaxChunks:           getEnvAsInt("TRANSCRIBE_MAX_CHUNKS", 10),
		MaxCandidates:       getEnvAsInt("SEARCH_MAX_CANDIDATES", 10),
		ResultsPerStrategy:  getEnvAsInt("SEARCH_RESULTS_PER_STRATEGY", 5),

		EnglishMinFunctionWords: getEnvAsInt("ENGLISH_MIN_FUNCTION_WORDS", 5),
		EnglishMaxNonASCIIRatio: getEnvFloat("ENGLISH_MAX_NON_ASCII_RATIO", 0.2),

		// Streaming
		MaxActiveStreams: getEnvAsInt("MAX_ACTIVE_STREAMS", 100),

		// Rate limiting
		ThrottleUserLimit:     getEnvAsInt("THROTTLE_USER_LIMIT", 100),
		ThrottleIPLimit:       getEnvAsInt("THROTTLE_IP_LIMIT", 50),
		ThrottleWindowMinutes: getEnvAsInt("THROTTLE_WINDOW_MINUTES", 60),
		FreeAnalysisLimit:     getEnvAsInt("FREE_ANALYSIS_LIMIT", 3),
		FreeAnalysisWindowMin: getEnvAsInt("FREE_ANALYSIS_WINDOW_MINUTES", 240),

		// Server
		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		// CORS
		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"),

		// Logging
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", ""),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as float, using default %f: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}
