package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/stock-analysis/internal/core/analysis"
	"github.com/jinford/stock-analysis/internal/interface/view"
)

// AnalyzeAction は分析を開始し、完了までの状態を逐次表示するコマンドのアクション
func AnalyzeAction(ctx context.Context, cmd *cli.Command) error {
	company := cmd.String("company")
	showResult := cmd.Bool("show-result")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(envFile, nil)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	out := output(cmd)
	store := view.NewStore(func(s view.State) {
		fmt.Fprintln(out, view.RenderText(s))
	})

	svc := appCtx.Container.Analysis
	svc.AddListener(store.Listen)

	slog.Info("分析コマンドを開始", "company", company)

	handle, err := svc.StartAnalysis(ctx, company)
	if err != nil {
		return err
	}

	if _, err := handle.Wait(ctx); err != nil {
		return fmt.Errorf("分析が完了しませんでした: %w", err)
	}

	if !showResult {
		return nil
	}

	// 取得できなかった理由は通知として表示済み
	if _, err := svc.FetchResult(ctx, handle.Identifier); err != nil && !isNotice(err) {
		return fmt.Errorf("分析結果の取得に失敗: %w", err)
	}
	return nil
}

// isNotice はユーザーへの通知で済むエラーかどうかを返す
func isNotice(err error) bool {
	return errors.Is(err, analysis.ErrNotReady) || errors.Is(err, analysis.ErrNotFound)
}
