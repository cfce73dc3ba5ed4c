package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// 画像の保存先バックエンド。
const (
	AssetBackendFS = "fs"
	AssetBackendS3 = "s3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnMaxLife  time.Duration

	// Auth
	JWTSecret string

	// Asset
	AssetBackend   string
	AssetDir       string
	AssetURLPrefix string
	AssetMaxSize   int64

	// S3（AssetBackend が s3 の場合のみ必須）
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// Sweep
	AssetSweepInterval time.Duration
	AssetSweepGrace    time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitCreate  int

	// Listing
	ListingUpdateAppliesTitle bool

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv は指定された.envファイルを環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
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

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.AssetBackend = getEnvString("ASSET_BACKEND", AssetBackendFS)
	switch cfg.AssetBackend {
	case AssetBackendFS:
	case AssetBackendS3:
		cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
		cfg.S3AccessKey = os.Getenv("S3_ACCESS_KEY")
		cfg.S3SecretKey = os.Getenv("S3_SECRET_KEY")
		cfg.S3Bucket = os.Getenv("S3_BUCKET")
		for key, v := range map[string]string{
			"S3_ENDPOINT":   cfg.S3Endpoint,
			"S3_ACCESS_KEY": cfg.S3AccessKey,
			"S3_SECRET_KEY": cfg.S3SecretKey,
			"S3_BUCKET":     cfg.S3Bucket,
		} {
			if v == "" {
				missing = append(missing, key)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported ASSET_BACKEND: %q (want %q or %q)", cfg.AssetBackend, AssetBackendFS, AssetBackendS3)
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLife = getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.AssetDir = getEnvString("ASSET_DIR", "images")
	cfg.AssetURLPrefix = getEnvString("ASSET_URL_PREFIX", "/ads/image")
	cfg.AssetMaxSize = getEnvInt64("ASSET_MAX_SIZE", 5242880)
	cfg.S3UseSSL = getEnvBool("S3_USE_SSL", false)
	cfg.AssetSweepInterval = getEnvDuration("ASSET_SWEEP_INTERVAL", time.Hour)
	cfg.AssetSweepGrace = getEnvDuration("ASSET_SWEEP_GRACE", 24*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCreate = getEnvInt("RATE_LIMIT_CREATE", 10)
	cfg.ListingUpdateAppliesTitle = getEnvBool("LISTING_UPDATE_APPLIES_TITLE", false)
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
