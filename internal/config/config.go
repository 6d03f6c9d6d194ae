package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultEndpoint = "ws://localhost:8080/ws"
	DefaultEnvFile  = ".env"
)

type Config struct {
	Endpoint           string
	Transport          string
	InsecureSkipVerify bool

	Username    string
	PlayerClass int

	InputInterval time.Duration

	LogFile     string
	MetricsAddr string

	Development bool
}

// Load reads envFile into the process environment (a missing default .env is
// fine, a missing explicit file is not) and then builds a Config from
// SNOWPLOW_* variables and APP_ENV.
func Load(envFile string) (*Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}

	if err := godotenv.Load(envFile); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		Endpoint:    getEnvDefault("SNOWPLOW_ENDPOINT", DefaultEndpoint),
		Transport:   getEnvDefault("SNOWPLOW_TRANSPORT", "websocket"),
		Username:    os.Getenv("SNOWPLOW_USERNAME"),
		LogFile:     os.Getenv("SNOWPLOW_LOG_FILE"),
		MetricsAddr: os.Getenv("SNOWPLOW_METRICS_ADDR"),
		Development: os.Getenv("APP_ENV") == "development",
	}

	var err error
	if cfg.InsecureSkipVerify, err = getEnvBool("SNOWPLOW_INSECURE"); err != nil {
		return nil, err
	}
	if cfg.PlayerClass, err = getEnvInt("SNOWPLOW_PLAYER_CLASS"); err != nil {
		return nil, err
	}

	intervalMs, err := getEnvInt("SNOWPLOW_INPUT_INTERVAL_MS")
	if err != nil {
		return nil, err
	}
	if intervalMs < 0 {
		return nil, fmt.Errorf("invalid value for SNOWPLOW_INPUT_INTERVAL_MS: %d", intervalMs)
	}
	cfg.InputInterval = time.Duration(intervalMs) * time.Millisecond

	return cfg, nil
}

func getEnvDefault(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return int(n), nil
}

func getEnvBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return b, nil
}
