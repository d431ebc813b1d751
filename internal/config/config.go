package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds shared runtime configuration for the server.
type Config struct {
	Env      string
	HTTPPort string

	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SurrealURL       string
	SurrealNamespace string
	SurrealDatabase  string
	SurrealUser      string
	SurrealPassword  string

	VisionProvider string
	VisionModel    string
	VisionAPIKey   string
	VisionBaseURL  string
	VisionMaxSide  int

	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int
	OllamaHost     string

	GeocodeBaseURL   string
	GeocodeUserAgent string

	SpeechBaseURL string
	SpeechAPIKey  string
	SpeechModel   string

	LibraryDir     string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3PathStyle    bool
	MaxUploadBytes int64

	StreamIdleTimeout    time.Duration
	MaxConcurrentImports int
	RateLimitCapacity    int
	RateLimitRefill      float64
	TaskRetention        time.Duration
	CleanupInterval      time.Duration
	ImageExtensions      []string
}

// Load reads configuration from environment variables with sane defaults for
// local development. A .env file is honored when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:      getEnv("APP_ENV", "dev"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SurrealURL:       getEnv("SURREAL_URL", ""),
		SurrealNamespace: getEnv("SURREAL_NAMESPACE", "photomind"),
		SurrealDatabase:  getEnv("SURREAL_DATABASE", "photos"),
		SurrealUser:      getEnv("SURREAL_USER", "root"),
		SurrealPassword:  getEnv("SURREAL_PASSWORD", "root"),

		VisionProvider: getEnv("VISION_PROVIDER", ""),
		VisionModel:    getEnv("VISION_MODEL", "gpt-4o-mini"),
		VisionAPIKey:   getEnv("VISION_API_KEY", ""),
		VisionBaseURL:  getEnv("VISION_BASE_URL", ""),
		VisionMaxSide:  getEnvInt("VISION_MAX_SIDE", 2048),

		EmbedProvider:  getEnv("EMBED_PROVIDER", ""),
		EmbedModel:     getEnv("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDimension: getEnvInt("EMBED_DIMENSION", 1536),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),

		GeocodeBaseURL:   getEnv("GEOCODE_BASE_URL", ""),
		GeocodeUserAgent: getEnv("GEOCODE_USER_AGENT", "photomind/1.0"),

		SpeechBaseURL: getEnv("SPEECH_BASE_URL", ""),
		SpeechAPIKey:  getEnv("SPEECH_API_KEY", ""),
		SpeechModel:   getEnv("SPEECH_MODEL", "whisper-1"),

		LibraryDir:     getEnv("LIBRARY_DIR", "./library"),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3PathStyle:    getEnvBool("S3_PATH_STYLE", false),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 64<<20)),

		StreamIdleTimeout:    getEnvDuration("STREAM_IDLE_TIMEOUT", 300*time.Second),
		MaxConcurrentImports: getEnvInt("MAX_CONCURRENT_IMPORTS", 4),
		RateLimitCapacity:    getEnvInt("RATE_LIMIT_CAPACITY", 10),
		RateLimitRefill:      getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 0.5),
		TaskRetention:        getEnvDuration("TASK_RETENTION", 72*time.Hour),
		CleanupInterval:      getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		ImageExtensions:      getEnvList("IMAGE_EXTENSIONS", []string{"jpg", "jpeg", "png", "gif", "bmp", "webp", "tiff"}),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
