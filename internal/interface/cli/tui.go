package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/stock-analysis/internal/interface/tui"
)

// TUIAction は対話型の端末UIを起動するコマンドのアクション
func TUIAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	logFile := cmd.String("log-file")

	// 画面を崩さないようログは指定ファイルにのみ出力する
	var logOutput io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("ログファイルのオープンに失敗: %w", err)
		}
		defer f.Close()
		logOutput = f
	}

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(envFile, logOutput)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return tui.Run(ctx, appCtx.Container.Analysis)
}
