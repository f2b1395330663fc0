package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultPollInterval はステータス確認の間隔
	DefaultPollInterval = 5 * time.Second
	// DefaultMaxPolls は1ループあたりのステータス確認回数の上限
	DefaultMaxPolls = 120
	// DefaultPollTimeout はポーリング全体のタイムアウト
	DefaultPollTimeout = 15 * time.Minute
	// DefaultMaxConsecutiveErrors は連続失敗の許容回数
	DefaultMaxConsecutiveErrors = 3
)

// StatusChecker はリモートのジョブステータスを取得する
type StatusChecker interface {
	GetStatus(ctx context.Context, identifier string) (Status, error)
}

// PollerConfig はポーリングループの設定
type PollerConfig struct {
	Interval time.Duration
	// MaxPolls が0以下の場合は回数制限なし
	MaxPolls int
	// Timeout が0以下の場合はタイムアウトなし
	Timeout time.Duration
	// MaxConsecutiveErrors が0以下の場合は失敗しても継続する
	MaxConsecutiveErrors int
}

// DefaultPollerConfig はデフォルトのポーリング設定
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:             DefaultPollInterval,
		MaxPolls:             DefaultMaxPolls,
		Timeout:              DefaultPollTimeout,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
	}
}

// PollResult は1回のステータス確認の結果
type PollResult struct {
	Attempt int
	Status  Status
	Err     error
}

// Poller は1つの識別子について Complete になるまでステータスを確認し続ける
type Poller struct {
	checker StatusChecker
	cfg     PollerConfig
	logger  *slog.Logger
}

type PollerOption func(*Poller)

// WithPollerLogger は Poller にロガーを設定する
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger
	}
}

// NewPoller は新しい Poller を作成する
func NewPoller(checker StatusChecker, cfg PollerConfig, opts ...PollerOption) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}

	p := &Poller{
		checker: checker,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Config は Poller の設定を返す
func (p *Poller) Config() PollerConfig {
	return p.cfg
}

// PollOnce はステータスを1回だけ確認する
func (p *Poller) PollOnce(ctx context.Context, identifier string) (Status, error) {
	status, err := p.checker.GetStatus(ctx, identifier)
	if err != nil {
		return StatusPending, err
	}
	return status, nil
}

// Run は Complete を観測するまでステータス確認を繰り返す。
// 次の確認は前の確認のレスポンスを受け取ってから Interval 待機した後にのみ行う。
// observe は各確認の直後に呼ばれる（nil 可）。
// 戻り値は最後に観測したステータスと確認回数。
func (p *Poller) Run(ctx context.Context, identifier string, observe func(PollResult)) (Status, int, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, p.cfg.Timeout, ErrPollTimeout)
		defer cancel()
	}

	last := StatusPending
	attempts := 0
	consecutiveErrors := 0

	for {
		if ctx.Err() != nil {
			return last, attempts, context.Cause(ctx)
		}

		attempts++
		status, err := p.PollOnce(ctx, identifier)
		if err != nil && ctx.Err() != nil {
			// キャンセルによる失敗は確認結果として扱わない
			return last, attempts, context.Cause(ctx)
		}

		if observe != nil {
			observe(PollResult{Attempt: attempts, Status: status, Err: err})
		}

		if err != nil {
			consecutiveErrors++
			p.logger.Warn("ステータス確認に失敗しました",
				"identifier", identifier,
				"attempt", attempts,
				"consecutiveErrors", consecutiveErrors,
				"error", err,
			)
			if p.cfg.MaxConsecutiveErrors > 0 && consecutiveErrors >= p.cfg.MaxConsecutiveErrors {
				return last, attempts, fmt.Errorf("%w: %w", ErrTooManyPollErrors, err)
			}
		} else {
			consecutiveErrors = 0
			last = status
			p.logger.Debug("ステータスを確認しました",
				"identifier", identifier,
				"attempt", attempts,
				"status", status,
			)
			if status.IsTerminal() {
				return last, attempts, nil
			}
		}

		if p.cfg.MaxPolls > 0 && attempts >= p.cfg.MaxPolls {
			return last, attempts, fmt.Errorf("%w: %d attempts", ErrPollLimitExceeded, attempts)
		}

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, attempts, context.Cause(ctx)
		case <-timer.C:
		}
	}
}
