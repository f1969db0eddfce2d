package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	// StoreDriver selects the persistence backend: "sqlite" or "mongo".
	StoreDriver   string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string

	JWTSecret          string
	AccessTokenMinutes int

	UploadDir   string
	MaxUploadMB int64
	CORSOrigins []string

	// EventMinInterval is the minimum inter-arrival interval enforced per
	// (connection, event) pair; faster events are silently dropped.
	EventMinInterval time.Duration

	HistoryPageSize    int
	HistoryPageMaxSize int

	Debug bool
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName: getEnv("APP_NAME", "rtchat"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 5000),

		StoreDriver:   getEnv("CHAT_STORE", StoreSQLite),
		SQLitePath:    getEnv("SQLITE_PATH", "rtchat.db"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DB", "rtchat"),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24*7),

		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadMB: int64(getEnvAsInt("MAX_UPLOAD_MB", 15)),

		EventMinInterval: time.Duration(getEnvAsInt("EVENT_MIN_INTERVAL_MS", 0)) * time.Millisecond,

		HistoryPageSize:    getEnvAsInt("HISTORY_PAGE_SIZE", 50),
		HistoryPageMaxSize: getEnvAsInt("HISTORY_PAGE_MAX_SIZE", 200),

		Debug: getEnvAsBool("DEBUG", true),
	}

	corsOrigins := getEnv("CORS_ORIGINS", "")
	if corsOrigins != "" {
		parts := strings.Split(corsOrigins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StoreDriver != StoreSQLite && cfg.StoreDriver != StoreMongo {
		return nil, fmt.Errorf("CHAT_STORE must be %q or %q", StoreSQLite, StoreMongo)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
