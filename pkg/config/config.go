package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Mail     MailConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Backend  BackendConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	AppURL      string
	CORSOrigins string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// MailConfig holds every transport setting. All of it is optional; the
// mailer degrades to SMTP and then to logging when credentials are missing.
type MailConfig struct {
	Provider     string
	ResendAPIKey string
	From         string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
}

type RedisConfig struct {
	URL string
}

type StorageConfig struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type AuthConfig struct {
	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string
}

type BackendConfig struct {
	URL string
}

const minJWTSecretLen = 32

var ErrWeakJWTSecret = errors.New("JWT_SECRET must be set to at least 32 characters in production")

func Load() *Config {
	godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "3000"),
			Env:         getEnv("APP_ENV", "development"),
			AppURL:      strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/"),
			CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "galvan"),
		},
		Mail: MailConfig{
			Provider:     strings.ToLower(getEnv("MAIL_PROVIDER", "resend")),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("MAIL_FROM", "Galvan AI <newsletter@galvan.ai>"),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			AWSAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
			AWSSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Storage: StorageConfig{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  strings.TrimRight(getEnv("R2_PUBLIC_URL", ""), "/"),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			AdminEmail:        strings.ToLower(getEnv("ADMIN_EMAIL", "")),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Backend: BackendConfig{
			URL: strings.TrimRight(getEnv("APP_BACKEND_URL", ""), "/"),
		},
	}
}

// Validate rejects settings the server must not start with. Outside
// production an empty JWT secret is allowed and replaced at startup.
func (c *Config) Validate() error {
	if c.Server.IsProduction() && len(c.Auth.JWTSecret) < minJWTSecretLen {
		return ErrWeakJWTSecret
	}
	return nil
}

// DSN prefers DATABASE_URL and otherwise assembles a key/value DSN.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.DBName)
}

func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

func (s StorageConfig) Enabled() bool {
	return s.AccountID != "" && s.AccessKey != "" && s.SecretKey != "" && s.BucketName != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
