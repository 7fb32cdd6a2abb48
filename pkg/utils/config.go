package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AuthConfig struct {
	JWTSecret     string
	JWTIssuer     string
	JWTDuration   time.Duration
	AdminUser     string
	AdminPassHash string // bcrypt hash; empty disables /auth/login
}

type ProviderConfig struct {
	SteamAPIKey       string
	SteamID           string
	IGDBClientID      string
	IGDBClientSecret  string
	SteamGridDBAPIKey string
}

type Config struct {
	DBPath         string
	DataDir        string // badger cover history lives under DataDir/covers
	HTTPAddr       string
	FeedAddr       string // TCP event feed; empty disables it
	LogMode        string
	MatchThreshold int
	RatingsMaxAge  time.Duration
	Auth           AuthConfig
	Providers      ProviderConfig
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	dataDir := getEnvOrDefault("GAMEHUB_DATA_DIR", filepath.Join(home, ".gamehub"))

	cfg := Config{
		DBPath:   getEnvOrDefault("GAMEHUB_DB_PATH", filepath.Join(dataDir, "data.db")),
		DataDir:  dataDir,
		HTTPAddr: getEnvOrDefault("GAMEHUB_HTTP_ADDR", ":8080"),
		FeedAddr: os.Getenv("GAMEHUB_FEED_ADDR"),
		LogMode:  getEnvOrDefault("GAMEHUB_LOG_MODE", "dev"),
		Auth: AuthConfig{
			// dev default (change for production)
			JWTSecret:     getEnvOrDefault("GAMEHUB_JWT_SECRET", "dev-secret-change-me"),
			JWTIssuer:     getEnvOrDefault("GAMEHUB_JWT_ISSUER", "gamehub"),
			AdminUser:     getEnvOrDefault("GAMEHUB_ADMIN_USER", "admin"),
			AdminPassHash: os.Getenv("GAMEHUB_ADMIN_PASSWORD_HASH"),
		},
		Providers: ProviderConfig{
			SteamAPIKey:       os.Getenv("STEAM_API_KEY"),
			SteamID:           os.Getenv("STEAM_ID"),
			IGDBClientID:      os.Getenv("IGDB_CLIENT_ID"),
			IGDBClientSecret:  os.Getenv("IGDB_CLIENT_SECRET"),
			SteamGridDBAPIKey: os.Getenv("STEAMGRIDDB_API_KEY"),
		},
	}

	ttl, err := getIntOrDefault("GAMEHUB_JWT_TTL_HOURS", 24)
	if err != nil {
		return Config{}, err
	}
	cfg.Auth.JWTDuration = time.Duration(ttl) * time.Hour

	if cfg.MatchThreshold, err = getIntOrDefault("GAMEHUB_MATCH_THRESHOLD", 60); err != nil {
		return Config{}, err
	}
	if cfg.MatchThreshold < 0 || cfg.MatchThreshold > 100 {
		return Config{}, fmt.Errorf("GAMEHUB_MATCH_THRESHOLD must be within 0-100, got %d", cfg.MatchThreshold)
	}

	days, err := getIntOrDefault("GAMEHUB_RATINGS_MAX_AGE_DAYS", 30)
	if err != nil {
		return Config{}, err
	}
	cfg.RatingsMaxAge = time.Duration(days) * 24 * time.Hour

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
