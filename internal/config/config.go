package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	AllowedOrigin      string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	AuthSecret         string
	AccessTokenTTLHour int
	CronToken          string
	AppBaseURL         string
	SupportEmail       string
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	SMTPFrom           string
	Timezone           string
}

func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] WARN: .env not loaded: %v", err)
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_HOURS", "48"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 48
	}
	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil || smtpPort < 1 {
		smtpPort = 587
	}

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigin:      getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
		AuthSecret:         strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLHour: tokenTTL,
		CronToken:          strings.TrimSpace(os.Getenv("CRON_TOKEN")),
		AppBaseURL:         getEnv("APP_BASE_URL", "http://127.0.0.1:3000"),
		SupportEmail:       getEnv("SUPPORT_EMAIL", "support@cucibersih.id"),
		SMTPHost:           os.Getenv("SMTP_HOST"),
		SMTPPort:           smtpPort,
		SMTPUsername:       os.Getenv("SMTP_USERNAME"),
		SMTPPassword:       os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:           getEnv("SMTP_FROM", "no-reply@cucibersih.id"),
		Timezone:           getEnv("TIMEZONE", "Asia/Jakarta"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
