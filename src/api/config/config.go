package config

import (
	"log"
	"os"
	"strconv"
)

type Config struct {
	MySQLDSN    string
	RedisURL    string
	JWTSecret   string
	Port        string
	FrontendURL string
	RateLimit   int // authenticated writes per minute per user
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		if def == "" {
			log.Fatalf("missing env %s", key)
		}
		return def
	}
	return v
}

func Load() Config {
	rl, _ := strconv.Atoi(getenv("RATE_LIMIT", "30"))
	return Config{
		MySQLDSN:    getenv("MYSQL_DSN", "snowledge:snowledge@tcp(localhost:3306)/snowledge"),
		RedisURL:    getenv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:   getenv("JWT_SECRET", ""),
		Port:        getenv("PORT", "8080"),
		FrontendURL: getenv("FRONTEND_URL", "http://localhost:3000"),
		RateLimit:   rl,
	}
}
