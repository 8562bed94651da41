package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	VenueID     string

	PasscodeHash string
	Passcode     string
	SessionTTL   time.Duration

	RefreshInterval time.Duration
	AutoCall        bool

	NotifyProvider     string
	NotifyWebhookURL   string
	NotifyWebhookToken string
	VoiceVolume        int
	BeepVolume         int

	RateLimitPerMinute int
	RateLimitBurst     int
}

func Load() Config {
	_ = godotenv.Load(".env")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	venueID := os.Getenv("VENUE_ID")
	if venueID == "" {
		venueID = "default"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),
		VenueID:     venueID,

		PasscodeHash: os.Getenv("PASSCODE_HASH"),
		Passcode:     os.Getenv("PASSCODE"),
		SessionTTL:   time.Duration(readInt("SESSION_TTL_HOURS", 8)) * time.Hour,

		RefreshInterval: readDurationSeconds("REFRESH_INTERVAL_SECONDS", 2),
		AutoCall:        readBool("AUTO_CALL", true),

		NotifyProvider:     os.Getenv("NOTIFY_PROVIDER"),
		NotifyWebhookURL:   os.Getenv("NOTIFY_WEBHOOK_URL"),
		NotifyWebhookToken: os.Getenv("NOTIFY_WEBHOOK_TOKEN"),
		VoiceVolume:        readInt("VOICE_VOLUME", 5),
		BeepVolume:         readInt("BEEP_VOLUME", 5),

		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
