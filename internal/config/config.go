package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthHMACSecret string
	TokenTTL       time.Duration

	// LevelThresholds is the raw "level:minScore,…" table handed to
	// rating.ParseLevels. Kept as a string here so config stays free of
	// domain imports.
	LevelThresholds string

	// RankInterval > 0 starts the in-process rank recompute loop.
	RankInterval time.Duration

	CORSOrigins []string
}

const defaultLevelThresholds = "1:0,2:100,3:250,4:500,5:1000,6:2000,7:3500,8:5500,9:8000,10:12000"

// FromEnv reads configuration from the environment, loading a .env file
// first when one is present.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:        envOr("HTTP_ADDR", ":8080"),
		DBDriver:        envOr("DB_DRIVER", "sqlite"),
		DBDSN:           envOr("DB_DSN", ""),
		AuthHMACSecret:  envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		TokenTTL:        envDuration("TOKEN_TTL", 8*time.Hour),
		LevelThresholds: envOr("LEVEL_THRESHOLDS", defaultLevelThresholds),
		RankInterval:    envDuration("RANK_INTERVAL", 0),
		CORSOrigins:     csvOr("CORS_ORIGINS", "http://localhost:3000"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
