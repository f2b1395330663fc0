package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/stock-analysis/internal/interface/view"
)

// ResultAction は完了した分析の結果を表示するコマンドのアクション
func ResultAction(ctx context.Context, cmd *cli.Command) error {
	company := cmd.String("company")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(envFile, nil)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	out := output(cmd)
	result, err := appCtx.Container.Analysis.FetchResult(ctx, company)
	if err != nil {
		if isNotice(err) {
			fmt.Fprintln(out, view.NoticeFor(company, err).Text)
			return nil
		}
		return fmt.Errorf("分析結果の取得に失敗: %w", err)
	}

	fmt.Fprintln(out, result)
	return nil
}
