package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/jinford/stock-analysis/internal/core/analysis"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// 分析サービスAPI設定
	API APIConfig

	// ポーリング設定
	Poll PollConfig

	// ログ設定
	Log LogConfig
}

// APIConfig は分析サービスへの接続設定
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // 1秒あたりのリクエスト数（0以下で無制限）
	RateBurst int
}

// PollConfig はステータス確認ループの設定
type PollConfig struct {
	Interval             time.Duration
	MaxAttempts          int
	Timeout              time.Duration
	MaxConsecutiveErrors int
	DuplicatePolicy      analysis.DuplicatePolicy
}

// LogConfig はロガーの設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	policy, err := analysis.ParseDuplicatePolicy(getEnv("DUPLICATE_START_POLICY", string(analysis.PolicyRestart)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:   getEnv("ANALYSIS_API_BASE_URL", "http://127.0.0.1:8000"),
			Timeout:   getEnvAsDuration("ANALYSIS_API_TIMEOUT", 30*time.Second),
			RateLimit: getEnvAsFloat("ANALYSIS_API_RATE_LIMIT", 2),
			RateBurst: getEnvAsInt("ANALYSIS_API_RATE_BURST", 2),
		},
		Poll: PollConfig{
			Interval:             getEnvAsDuration("POLL_INTERVAL", analysis.DefaultPollInterval),
			MaxAttempts:          getEnvAsInt("POLL_MAX_ATTEMPTS", analysis.DefaultMaxPolls),
			Timeout:              getEnvAsDuration("POLL_TIMEOUT", analysis.DefaultPollTimeout),
			MaxConsecutiveErrors: getEnvAsInt("POLL_MAX_CONSECUTIVE_ERRORS", analysis.DefaultMaxConsecutiveErrors),
			DuplicatePolicy:      policy,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の妥当性を検証します
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ANALYSIS_API_BASE_URL が不正です: %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("ANALYSIS_API_TIMEOUT は正の値である必要があります: %s", c.API.Timeout)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL は正の値である必要があります: %s", c.Poll.Interval)
	}
	if c.Poll.MaxAttempts < 0 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS は0以上である必要があります: %d", c.Poll.MaxAttempts)
	}
	if c.Poll.Timeout < 0 {
		return fmt.Errorf("POLL_TIMEOUT は0以上である必要があります: %s", c.Poll.Timeout)
	}
	if _, err := analysis.ParseDuplicatePolicy(string(c.Poll.DuplicatePolicy)); err != nil {
		return err
	}
	return nil
}

// PollerConfig はポーリング設定を analysis.PollerConfig に変換します
func (c *Config) PollerConfig() analysis.PollerConfig {
	return analysis.PollerConfig{
		Interval:             c.Poll.Interval,
		MaxPolls:             c.Poll.MaxAttempts,
		Timeout:              c.Poll.Timeout,
		MaxConsecutiveErrors: c.Poll.MaxConsecutiveErrors,
	}
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します。
// 単位のない整数はミリ秒として扱います。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
