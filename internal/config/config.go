package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is everything the server reads from the environment. A .env file is
// honored when present (loaded by cmd/server); unset vars fall back to the
// defaults below.
type Config struct {
	Addr                string
	AppEnv              string
	SessionRetention    time.Duration
	SweepInterval       time.Duration
	KeepTopicOnNewRound bool
	MaxFrameBytes       int64
	AllowedOrigins      []string
	CodeAttempts        int
}

func Load() (Config, error) {
	cfg := Config{
		Addr:   envOr("ADDR", ":8080"),
		AppEnv: envOr("APP_ENV", "production"),
	}

	var err error
	if cfg.SessionRetention, err = durationOr("SESSION_RETENTION", 2*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationOr("SWEEP_INTERVAL", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.KeepTopicOnNewRound, err = boolOr("KEEP_TOPIC_ON_NEW_ROUND", true); err != nil {
		return Config{}, err
	}
	if cfg.MaxFrameBytes, err = int64Or("MAX_FRAME_BYTES", 4096); err != nil {
		return Config{}, err
	}
	if cfg.CodeAttempts, err = intOr("CODE_ATTEMPTS", 10); err != nil {
		return Config{}, err
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func boolOr(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func intOr(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func int64Or(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
