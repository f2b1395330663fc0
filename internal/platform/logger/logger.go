package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config はロガーの設定
type Config struct {
	Level  slog.Level
	Format string // "json" or "text"
	// Output が nil の場合は標準エラー出力
	Output io.Writer
}

// DefaultConfig はデフォルトのロガー設定
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: "json",
	}
}

// ParseLevel はログレベル文字列を slog.Level に変換します。不明な値は Info。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New は新しいロガーを作成し、デフォルトロガーとして設定します
func New(cfg Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: cfg.Level,
	}

	out := cfg.Output
	if out == nil {
		// 標準出力は分析結果とステータス表示に使うため、ログは標準エラー出力へ
		out = os.Stderr
	}

	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default: // "json"
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
