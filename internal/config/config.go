package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost            string
	DBPort            string
	DBUser            string
	DBPassword        string
	DBName            string
	ServerPort        string
	CORSOrigins       string
	HeartbeatInterval time.Duration
	PresenceWindow    time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	return &Config{
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "planningpoker"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		CORSOrigins:       getEnv("CORS_ORIGINS", "*"),
		HeartbeatInterval: getEnvSeconds("HEARTBEAT_INTERVAL_SEC", 30),
		PresenceWindow:    getEnvSeconds("PRESENCE_WINDOW_SEC", 60),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	sec := fallback
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			sec = n
		}
	}
	return time.Duration(sec) * time.Second
}
