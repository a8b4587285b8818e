package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ソーシャル告知チャネル
const (
	SocialChannelNone     = "none"
	SocialChannelX        = "x"
	SocialChannelTelegram = "telegram"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Mail
	MailFrom     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	// Social
	SocialChannel    string
	XAPIURL          string
	XBearerToken     string // OAuth 2.0ユーザーコンテキストのアクセストークン（tweet.write）。アプリ専用トークンは不可
	TelegramBotToken string
	TelegramChatID   int64

	// Dispatch
	DispatchWorkers   int
	DispatchQueueSize int
	EmailRatePerSec   float64
	EmailBurst        int
	SendTimeout       time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.MailFrom = getEnvString("MAIL_FROM", "newsdesk@localhost")
	cfg.SMTPHost = getEnvString("SMTP_HOST", "localhost")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SocialChannel = strings.ToLower(getEnvString("SOCIAL_CHANNEL", SocialChannelNone))
	cfg.XAPIURL = getEnvString("X_API_URL", "https://api.twitter.com/2/tweets")
	cfg.XBearerToken = getEnvString("X_BEARER_TOKEN", "")
	cfg.TelegramBotToken = getEnvString("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramChatID = getEnvInt64("TELEGRAM_CHAT_ID", 0)
	cfg.DispatchWorkers = getEnvInt("DISPATCH_WORKERS", 8)
	cfg.DispatchQueueSize = getEnvInt("DISPATCH_QUEUE_SIZE", 1024)
	cfg.EmailRatePerSec = getEnvFloat("EMAIL_RATE_PER_SEC", 10)
	cfg.EmailBurst = getEnvInt("EMAIL_BURST", 5)
	cfg.SendTimeout = getEnvDuration("SEND_TIMEOUT", 10*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	if err := cfg.validateSocial(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSocial は選択されたソーシャルチャネルに必要な設定があるかを検証する。
func (c *Config) validateSocial() error {
	switch c.SocialChannel {
	case SocialChannelNone:
		return nil
	case SocialChannelX:
		if c.XBearerToken == "" {
			return fmt.Errorf("X_BEARER_TOKEN (an OAuth 2.0 user-context access token) is required when SOCIAL_CHANNEL=x")
		}
		return nil
	case SocialChannelTelegram:
		if c.TelegramBotToken == "" || c.TelegramChatID == 0 {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required when SOCIAL_CHANNEL=telegram")
		}
		return nil
	default:
		return fmt.Errorf("unknown SOCIAL_CHANNEL: %q", c.SocialChannel)
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
