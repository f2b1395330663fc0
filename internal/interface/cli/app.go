package cli

import (
	"github.com/urfave/cli/v3"

	"github.com/jinford/stock-analysis/internal/core/watch"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

// NewCommand はルートコマンドを作成する
func NewCommand() *cli.Command {
	return &cli.Command{
		Name:  "stock-analysis",
		Usage: "株式分析サービスのジョブ投入・進捗監視クライアント",
		Commands: []*cli.Command{
			{
				Name:  "analyze",
				Usage: "分析を開始し、完了までステータスを監視",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "company",
						Usage:    "会社名",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "show-result",
						Usage: "完了後に分析結果を表示",
					},
				},
				Action: AnalyzeAction,
			},
			{
				Name:  "status",
				Usage: "分析ステータスを1回確認",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringSliceFlag{
						Name:     "company",
						Usage:    "会社名（複数指定可）",
						Required: true,
					},
				},
				Action: StatusAction,
			},
			{
				Name:  "result",
				Usage: "完了した分析の結果を表示",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "company",
						Usage:    "会社名",
						Required: true,
					},
				},
				Action: ResultAction,
			},
			{
				Name:  "batch",
				Usage: "複数の分析を並行して実行し、結果を一覧表示",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringSliceFlag{
						Name:     "company",
						Usage:    "会社名（複数指定可）",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "同時に実行する分析の数",
						Value: 4,
					},
				},
				Action: BatchAction,
			},
			{
				Name:  "watch",
				Usage: "分析ステータスをスケジュールに従って監視",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringSliceFlag{
						Name:     "company",
						Usage:    "会社名（複数指定可）",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "cron",
						Usage: "Cron形式のスケジュール (例: */5 * * * *、@every 30s)",
						Value: watch.DefaultSchedule,
					},
					&cli.StringFlag{
						Name:  "notify-file",
						Usage: "監視結果を追記するファイルパス",
					},
					&cli.BoolFlag{
						Name:  "once",
						Usage: "1回だけ確認して終了",
					},
				},
				Action: WatchAction,
			},
			{
				Name:  "tui",
				Usage: "対話型の端末UIを起動",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "log-file",
						Usage: "ログの出力先ファイル（省略時はログを出力しない）",
					},
				},
				Action: TUIAction,
			},
		},
	}
}
