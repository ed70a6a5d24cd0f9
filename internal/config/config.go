// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	MongoURI     string
	DatabaseName string

	// Auth
	JWTSecret  string
	TokenTTL   time.Duration
	OTPTTL     time.Duration
	BcryptCost int

	// Mail
	SendGridAPIKey string
	MailFrom       string
	MailFromName   string

	// Classifier
	ClassifierCommand string
	ClassifierScript  string
	ClassifierTimeout time.Duration

	// Upload
	MaxImageBytes int64

	// Rate Limit（回数はオリジナルのウィンドウ設定に合わせる）
	SignupLimitPerHour    int
	VerifyLimitPerHour    int
	LoginLimitPer10Min    int
	GeneralLimitPerMinute int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数が優先）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envは任意。存在しなくてもエラーにしない。
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.MongoURI = os.Getenv("MONGODB_URI")
	if cfg.MongoURI == "" {
		missing = append(missing, "MONGODB_URI")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")
	if cfg.SendGridAPIKey == "" {
		missing = append(missing, "SENDGRID_API_KEY")
	}

	cfg.MailFrom = os.Getenv("MAIL_FROM")
	if cfg.MailFrom == "" {
		missing = append(missing, "MAIL_FROM")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DatabaseName = getEnvString("DATABASE_NAME", "neuroscan")
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	cfg.OTPTTL = getEnvDuration("OTP_TTL", 15*time.Minute)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.MailFromName = getEnvString("MAIL_FROM_NAME", "NeuroScan")
	cfg.ClassifierCommand = getEnvString("CLASSIFIER_COMMAND", "python3")
	cfg.ClassifierScript = getEnvString("CLASSIFIER_SCRIPT", "python/predict.py")
	cfg.ClassifierTimeout = getEnvDuration("CLASSIFIER_TIMEOUT", 60*time.Second)
	cfg.MaxImageBytes = getEnvInt64("MAX_IMAGE_BYTES", 5*1024*1024)
	cfg.SignupLimitPerHour = getEnvInt("RATE_LIMIT_SIGNUP", 5)
	cfg.VerifyLimitPerHour = getEnvInt("RATE_LIMIT_VERIFY", 5)
	cfg.LoginLimitPer10Min = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.GeneralLimitPerMinute = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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
