package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	OpenAIAPIKey string
	GeminiAPIKey string
	EmbedModel   string
	EmbedDim     int
	GenModel     string

	// AllowFallback keeps ingestion alive when every embedding provider is
	// down by synthesizing deterministic placeholder vectors.
	AllowFallback bool

	// UpsertByPath switches re-ingestion of the same (bucket, path) from
	// always-insert to delete-then-insert.
	UpsertByPath bool

	ChatSearchLimit    int
	ChatScoreThreshold float64
	IngestWorkers      int
	UploadQueueSize    int

	Port string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "eu-central-1"),
		BucketName:   getEnv("BUCKET_NAME", "bzr-documents"),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDim:     getEnvInt("EMBED_DIM", 1536),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),

		AllowFallback: getEnvBool("EMBED_ALLOW_FALLBACK", true),
		UpsertByPath:  getEnvBool("INGEST_UPSERT_BY_PATH", false),

		ChatSearchLimit:    getEnvInt("CHAT_SEARCH_LIMIT", 5),
		ChatScoreThreshold: getEnvFloat("CHAT_SCORE_THRESHOLD", 0.7),
		IngestWorkers:      getEnvInt("INGEST_WORKERS", 4),
		UploadQueueSize:    getEnvInt("UPLOAD_QUEUE_SIZE", 64),

		Port: getEnv("PORT", "8080"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}
