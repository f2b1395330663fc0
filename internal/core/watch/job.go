// Package watch は登録済みの分析ジョブをスケジュールに従って定期確認する。
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jinford/stock-analysis/internal/core/analysis"
)

// DefaultSchedule は既定の確認スケジュール
const DefaultSchedule = "@every 1m"

// Checker はステータスを1回確認する
type Checker interface {
	PollOnce(ctx context.Context, identifier string) (analysis.Status, error)
}

// Config は監視ジョブの設定です
type Config struct {
	CronSchedule string   // Cron形式のスケジュール（例: "*/5 * * * *"、"@every 30s"）
	Identifiers  []string // 監視対象の識別子
}

// Report は1件の確認結果です
type Report struct {
	Identifier    string
	Status        analysis.Status
	NewlyComplete bool
	Err           error
}

// Job は分析ジョブのステータスを定期確認するジョブです
type Job struct {
	config   Config
	checker  Checker
	notifier Notifier
	cron     *cron.Cron
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	complete map[string]bool
}

// NewJob は新しいJobを作成します
func NewJob(config Config, checker Checker, notifier Notifier, logger *slog.Logger) (*Job, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CronSchedule == "" {
		config.CronSchedule = DefaultSchedule
	}

	identifiers := make([]string, 0, len(config.Identifiers))
	for _, raw := range config.Identifiers {
		id, err := analysis.NormalizeIdentifier(raw)
		if err != nil {
			return nil, err
		}
		identifiers = append(identifiers, id)
	}
	if len(identifiers) == 0 {
		return nil, fmt.Errorf("監視対象がありません: %w", analysis.ErrEmptyIdentifier)
	}
	config.Identifiers = identifiers

	return &Job{
		config:   config,
		checker:  checker,
		notifier: notifier,
		// 前回の確認が終わっていない回はスキップし、同じ識別子への確認を重ねない
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   logger,
		now:      time.Now,
		complete: make(map[string]bool),
	}, nil
}

// Start はスケジューラーを起動します。各実行は ctx が終了すると中断されます。
func (j *Job) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc(j.config.CronSchedule, func() {
		if _, err := j.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			j.logger.Error("ステータス監視の実行に失敗しました", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron ジョブの登録に失敗: %w", err)
	}

	j.cron.Start()
	j.logger.Info("ステータス監視を開始しました", "schedule", j.config.CronSchedule, "identifiers", j.config.Identifiers)

	return nil
}

// Stop はスケジューラーを停止し、実行中の確認の終了を待ちます
func (j *Job) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("ステータス監視を停止しました")
}

// Run は全対象のステータスを1回ずつ確認し、結果を通知します（手動実行可能）
func (j *Job) Run(ctx context.Context) ([]Report, error) {
	checkedAt := j.now()
	reports := make([]Report, 0, len(j.config.Identifiers))

	for _, id := range j.config.Identifiers {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		status, err := j.checker.PollOnce(ctx, id)
		if err != nil {
			j.logger.Warn("ステータスの確認に失敗しました", "identifier", id, "error", err)
			reports = append(reports, Report{Identifier: id, Status: analysis.StatusPending, Err: err})
			continue
		}

		reports = append(reports, Report{
			Identifier:    id,
			Status:        status,
			NewlyComplete: j.markComplete(id, status),
		})
	}

	if j.notifier != nil {
		if err := j.notifier.Notify(checkedAt, reports); err != nil {
			return reports, fmt.Errorf("通知に失敗: %w", err)
		}
	}
	return reports, nil
}

// markComplete は初めて Complete を観測した場合に true を返す
func (j *Job) markComplete(identifier string, status analysis.Status) bool {
	if !status.IsTerminal() {
		return false
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.complete[identifier] {
		return false
	}
	j.complete[identifier] = true
	j.logger.Info("分析の完了を検知しました", "identifier", identifier)
	return true
}
