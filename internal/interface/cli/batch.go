package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jinford/stock-analysis/internal/core/analysis"
)

type batchRow struct {
	company  string
	status   analysis.Status
	attempts int
	result   string
	err      error
}

// BatchAction は複数の分析を並行して実行し、完了後に一覧を表示するコマンドのアクション
func BatchAction(ctx context.Context, cmd *cli.Command) error {
	companies := cmd.StringSlice("company")
	concurrency := int(cmd.Int("concurrency"))
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(envFile, nil)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	svc := appCtx.Container.Analysis
	logger := appCtx.Logger()
	rows := make([]batchRow, len(companies))

	logger.Info("一括分析を開始", "companies", len(companies), "concurrency", concurrency)

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, company := range companies {
		g.Go(func() error {
			rows[i] = runOne(gctx, svc, company)
			if rows[i].err != nil {
				logger.Warn("分析が完了しませんでした", "company", company, "error", rows[i].err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := displayBatchTable(output(cmd), rows)
	if failed > 0 {
		return fmt.Errorf("%d/%d 件の分析が完了しませんでした", failed, len(rows))
	}
	return nil
}

// runOne は1件の分析を開始し、完了したら結果を取得する
func runOne(ctx context.Context, svc *analysis.Service, company string) batchRow {
	row := batchRow{company: company, status: analysis.StatusPending}

	handle, err := svc.StartAnalysis(ctx, company)
	if err != nil {
		row.err = err
		return row
	}

	row.status, row.err = handle.Wait(ctx)
	row.attempts = handle.Attempts()
	if row.err != nil {
		return row
	}

	result, err := svc.FetchResult(ctx, handle.Identifier)
	switch {
	case err == nil:
		row.result = result
	case errors.Is(err, analysis.ErrNotFound):
		row.result = "(no result)"
	default:
		row.err = err
	}
	return row
}

// displayBatchTable は一括分析の結果をテーブル形式で表示し、失敗件数を返します
func displayBatchTable(w io.Writer, rows []batchRow) int {
	table := tablewriter.NewWriter(w)
	table.Header("会社", "ステータス", "確認回数", "結果")

	failed := 0
	for _, row := range rows {
		detail := row.result
		if row.err != nil {
			failed++
			detail = "error: " + row.err.Error()
		}
		table.Append(row.company, row.status.String(), fmt.Sprintf("%d", row.attempts), summarize(detail, 60))
	}

	table.Render()
	return failed
}

// summarize は表示用に文字列を1行に切り詰める
func summarize(s string, limit int) string {
	runes := []rune(s)
	for i, r := range runes {
		if r == '\n' {
			runes = runes[:i]
			break
		}
	}
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return string(runes)
}
