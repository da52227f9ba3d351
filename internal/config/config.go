package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config carries all server settings, sourced from the environment.
type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	SQLite SQLiteConfig
	Room   RoomConfig
}

type ServerConfig struct {
	Port          string
	AllowedOrigin string
}

// RedisConfig selects the Redis snapshot backend when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
}

// SQLiteConfig is the fallback snapshot backend used when no Redis address
// is configured.
type SQLiteConfig struct {
	Path          string
	SweepInterval time.Duration
}

type RoomConfig struct {
	// SnapshotTTL is how long a room snapshot survives in the cache without
	// a committed mutation refreshing it.
	SnapshotTTL time.Duration

	// GraceWindow is how long an empty room lingers before eviction.
	GraceWindow time.Duration
}

// Load reads the environment, after autoloading a .env file when present.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	return Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			AllowedOrigin: getEnv("CLIENT_URL", "*"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		SQLite: SQLiteConfig{
			Path:          getEnv("SNAPSHOT_DB_PATH", "./data/canverse.db"),
			SweepInterval: getDuration("SNAPSHOT_SWEEP_INTERVAL", 10*time.Minute),
		},
		Room: RoomConfig{
			SnapshotTTL: getDuration("SNAPSHOT_TTL", 24*time.Hour),
			GraceWindow: getDuration("ROOM_GRACE_WINDOW", 5*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid duration for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
