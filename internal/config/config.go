package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port                  string
	DatabaseDSN           string
	Env                   string
	LogLevel              string
	EncryptionKey         string
	JWTSecret             string
	AccessTokenTTLMinutes int
	WsMaxMessageBytes     int64
	WsEventsPerSecond     float64
	WsEventBurst          int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getenvInt 解析正整数，非法或非正值时回退到默认值。
func getenvInt(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(getenv(key, ""), 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func Load() Config {
	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=chatrelay port=5432 sslmode=disable TimeZone=UTC"),
		Env:                   getenv("APP_ENV", "dev"),
		LogLevel:              getenv("LOG_LEVEL", "info"),
		EncryptionKey:         os.Getenv("ENCRYPTION_KEY"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		AccessTokenTTLMinutes: getenvInt("ACCESS_TOKEN_TTL_MINUTES", 60),
		WsMaxMessageBytes:     int64(getenvInt("WS_MAX_MESSAGE_BYTES", 64<<10)),
		WsEventsPerSecond:     getenvFloat("WS_EVENTS_PER_SECOND", 20),
		WsEventBurst:          getenvInt("WS_EVENT_BURST", 40),
	}
}

// Validate 在启动时拒绝不可运行的配置；缺少加密密钥是致命错误。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("APP_PORT is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	if cfg.EncryptionKey == "" {
		return errors.New("ENCRYPTION_KEY is not defined")
	}
	key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("ENCRYPTION_KEY is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	if cfg.Env == "prod" && cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in prod")
	}
	return nil
}
