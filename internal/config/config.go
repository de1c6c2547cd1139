package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hitoshi/feedpipe/internal/filter"
)

// ConfigPathEnv は設定ファイルのパスを指定する環境変数名。
const ConfigPathEnv = "FEEDPIPE_CONFIG"

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database（空の場合はインメモリストアを使用する）
	DatabaseURL string

	// Refresh
	RefreshInterval time.Duration

	// Fetch
	FetchTimeout         time.Duration
	FetchMaxSize         int64
	AllowPrivateNetworks bool

	// Extract
	ExtractCacheTTL time.Duration

	// Cleanup
	ArticleRetentionDays int
	CleanupInterval      time.Duration

	// Rate Limit
	RateLimitPerMinute int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// SmartFolders は設定ファイルでのみ定義できる。
	SmartFolders []filter.SmartFolder
}

// fileConfig は設定ファイル（TOML）の構造。
// 期間は"30m"のようなtime.ParseDurationの形式で記述する。
type fileConfig struct {
	DatabaseURL          string               `toml:"database_url"`
	RefreshInterval      string               `toml:"refresh_interval"`
	FetchTimeout         string               `toml:"fetch_timeout"`
	FetchMaxSize         int64                `toml:"fetch_max_size"`
	AllowPrivateNetworks bool                 `toml:"allow_private_networks"`
	ExtractCacheTTL      string               `toml:"extract_cache_ttl"`
	ArticleRetentionDays int                  `toml:"article_retention_days"`
	CleanupInterval      string               `toml:"cleanup_interval"`
	RateLimitPerMinute   int                  `toml:"rate_limit_per_minute"`
	LogLevel             string               `toml:"log_level"`
	ServerPort           string               `toml:"server_port"`
	CORSAllowedOrigin    string               `toml:"cors_allowed_origin"`
	SmartFolders         []filter.SmartFolder `toml:"smart_folders"`
}

// defaults は既定値を持つConfigを返す。
func defaults() *Config {
	return &Config{
		RefreshInterval:      30 * time.Minute,
		FetchTimeout:         30 * time.Second,
		FetchMaxSize:         5242880,
		ExtractCacheTTL:      time.Hour,
		ArticleRetentionDays: 180,
		CleanupInterval:      24 * time.Hour,
		RateLimitPerMinute:   120,
		LogLevel:             "info",
		ServerPort:           "8080",
		CORSAllowedOrigin:    "http://localhost:3000",
	}
}

// Load は設定ファイルと環境変数からConfigを読み込む。
// FEEDPIPE_CONFIGが設定されていればそのTOMLファイルを先に読み込み、環境変数の値で上書きする。
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv(ConfigPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.DatabaseURL = getEnvString("DATABASE_URL", cfg.DatabaseURL)
	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", cfg.RefreshInterval)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", cfg.FetchMaxSize)
	cfg.AllowPrivateNetworks = getEnvBool("ALLOW_PRIVATE_NETWORKS", cfg.AllowPrivateNetworks)
	cfg.ExtractCacheTTL = getEnvDuration("EXTRACT_CACHE_TTL", cfg.ExtractCacheTTL)
	cfg.ArticleRetentionDays = getEnvInt("ARTICLE_RETENTION_DAYS", cfg.ArticleRetentionDays)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", cfg.LogLevel))
	cfg.ServerPort = getEnvString("SERVER_PORT", cfg.ServerPort)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.CORSAllowedOrigin)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}

	if fc.DatabaseURL != "" {
		c.DatabaseURL = fc.DatabaseURL
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"refresh_interval", fc.RefreshInterval, &c.RefreshInterval},
		{"fetch_timeout", fc.FetchTimeout, &c.FetchTimeout},
		{"extract_cache_ttl", fc.ExtractCacheTTL, &c.ExtractCacheTTL},
		{"cleanup_interval", fc.CleanupInterval, &c.CleanupInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("設定ファイルの%sが不正です: %w", d.key, err)
		}
		*d.dst = v
	}
	if fc.FetchMaxSize > 0 {
		c.FetchMaxSize = fc.FetchMaxSize
	}
	if fc.AllowPrivateNetworks {
		c.AllowPrivateNetworks = true
	}
	if fc.ArticleRetentionDays > 0 {
		c.ArticleRetentionDays = fc.ArticleRetentionDays
	}
	if fc.RateLimitPerMinute > 0 {
		c.RateLimitPerMinute = fc.RateLimitPerMinute
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.ServerPort != "" {
		c.ServerPort = fc.ServerPort
	}
	if fc.CORSAllowedOrigin != "" {
		c.CORSAllowedOrigin = fc.CORSAllowedOrigin
	}
	c.SmartFolders = fc.SmartFolders
	return nil
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVELが不正です: %q", c.LogLevel)
	}

	seen := make(map[string]struct{}, len(c.SmartFolders))
	for _, f := range c.SmartFolders {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("スマートフォルダの設定が不正です: %w", err)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("スマートフォルダ名が重複しています: %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// SmartFolder は名前でスマートフォルダを検索する。
func (c *Config) SmartFolder(name string) (filter.SmartFolder, bool) {
	for _, f := range c.SmartFolders {
		if f.Name == name {
			return f, true
		}
	}
	return filter.SmartFolder{}, false
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
