package cli

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/stock-analysis/internal/core/watch"
)

// WatchAction は分析ステータスをスケジュール実行で監視するコマンドのアクション
func WatchAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	companies := cmd.StringSlice("company")
	cronSchedule := cmd.String("cron")
	notifyFile := cmd.String("notify-file")
	once := cmd.Bool("once")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(envFile, nil)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	// 通知先の構築
	notifiers := []watch.Notifier{watch.NewWriterNotifier(output(cmd))}
	if notifyFile != "" {
		notifiers = append(notifiers, watch.NewFileNotifier(notifyFile))
	}

	job, err := watch.NewJob(watch.Config{
		CronSchedule: cronSchedule,
		Identifiers:  companies,
	}, appCtx.Container.Analysis, watch.NewMultiNotifier(notifiers...), appCtx.Logger())
	if err != nil {
		return err
	}

	if once {
		_, err := job.Run(ctx)
		return err
	}

	if err := job.Start(ctx); err != nil {
		return err
	}
	defer job.Stop()

	slog.Info("停止するには Ctrl+C を押してください", "schedule", cronSchedule)
	<-ctx.Done()
	return nil
}
