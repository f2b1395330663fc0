package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/stock-analysis/internal/platform/config"
	"github.com/jinford/stock-analysis/internal/platform/container"
	"github.com/jinford/stock-analysis/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.Container
}

// NewAppContext は設定ファイルを読み込み、依存関係を組み立てて AppContext を作成する。
// logOutput が nil の場合、ログは標準エラー出力に書き出される。
func NewAppContext(envFile string, logOutput io.Writer) (*AppContext, error) {
	// 設定の読み込み
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	// ロガーの初期化
	appLogger := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: logOutput,
	})

	// コンテナの初期化
	cont, err := container.New(appLogger, cfg)
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

// Close は実行中のポーリングを停止する
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil && ac.Container.Logger != nil {
		return ac.Container.Logger
	}
	return slog.Default()
}

// output はコマンドの出力先を返す
func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return cmd.Writer
}
