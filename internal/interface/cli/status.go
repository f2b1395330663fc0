package cli

import (
	"context"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

type statusRow struct {
	company string
	status  string
	err     error
}

// StatusAction は指定した会社の分析ステータスを1回ずつ確認するコマンドのアクション
func StatusAction(ctx context.Context, cmd *cli.Command) error {
	companies := cmd.StringSlice("company")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(envFile, nil)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	svc := appCtx.Container.Analysis
	rows := make([]statusRow, len(companies))

	// 会社ごとの失敗は表に表示するため、グループ全体は止めない
	g, gctx := errgroup.WithContext(ctx)
	for i, company := range companies {
		g.Go(func() error {
			rows[i].company = company
			status, err := svc.PollOnce(gctx, company)
			if err != nil {
				appCtx.Logger().Warn("ステータスの確認に失敗しました", "company", company, "error", err)
				rows[i].err = err
				return nil
			}
			rows[i].status = status.String()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	displayStatusTable(output(cmd), rows)
	return nil
}

// displayStatusTable はステータスをテーブル形式で表示します
func displayStatusTable(w io.Writer, rows []statusRow) {
	table := tablewriter.NewWriter(w)
	table.Header("会社", "ステータス", "エラー")

	for _, row := range rows {
		errText := ""
		if row.err != nil {
			errText = row.err.Error()
		}
		table.Append(row.company, row.status, errText)
	}

	table.Render()
}
