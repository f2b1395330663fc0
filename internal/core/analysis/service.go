package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/mo"
	"golang.org/x/sync/singleflight"
)

// Remote はリモート分析サービスとの通信インターフェース
type Remote interface {
	StatusChecker
	// StartAnalysis は分析ジョブを開始する。レスポンスは任意のJSONでログ出力のみに使う。
	StartAnalysis(ctx context.Context, identifier string) (json.RawMessage, error)
	// GetResult は分析結果を取得する。result フィールドがない場合は None を返す。
	GetResult(ctx context.Context, identifier string) (mo.Option[string], error)
}

// Service は分析の開始（Submitter）、ポーリング（Poller）、結果取得（Result fetcher）を束ねる
type Service struct {
	remote  Remote
	poller  *Poller
	tracker *Tracker
	policy  DuplicatePolicy
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	jobs      map[string]*Job
	listeners []Listener
	seq       int64

	fetches singleflight.Group
}

type ServiceOption func(*Service)

// WithServiceLogger は Service にロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDuplicatePolicy は重複開始時のポリシーを設定する
func WithDuplicatePolicy(policy DuplicatePolicy) ServiceOption {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithListener はイベントの購読者を追加する
func WithListener(listener Listener) ServiceOption {
	return func(s *Service) {
		s.listeners = append(s.listeners, listener)
	}
}

// NewService は新しい Service を作成する
func NewService(remote Remote, poller *Poller, opts ...ServiceOption) *Service {
	svc := &Service{
		remote:  remote,
		poller:  poller,
		tracker: NewTracker(),
		policy:  PolicyRestart,
		logger:  slog.Default(),
		now:     time.Now,
		jobs:    make(map[string]*Job),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.poller == nil {
		svc.poller = NewPoller(remote, DefaultPollerConfig(), WithPollerLogger(svc.logger))
	}

	return svc
}

// AddListener はイベントの購読者を追加する
func (s *Service) AddListener(listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// StartAnalysis は分析ジョブを開始し、完了までのポーリングループを起動する。
// 開始リクエストが失敗した場合はポーリングを開始せずにエラーを返す。
func (s *Service) StartAnalysis(ctx context.Context, rawIdentifier string) (*PollHandle, error) {
	identifier, err := NormalizeIdentifier(rawIdentifier)
	if err != nil {
		return nil, err
	}

	// 開始リクエストの前に識別子を予約し、重複開始の判定を1か所で行う
	handle, reserved, err := s.tracker.Reserve(identifier, s.policy)
	if err != nil {
		return nil, err
	}
	if !reserved {
		s.logger.Info("実行中の分析を再利用します", "identifier", identifier, "runID", handle.RunID)
		return handle, nil
	}

	s.publish(Event{Type: EventAnalyzing, Identifier: identifier, Status: StatusPending})

	resp, err := s.remote.StartAnalysis(ctx, identifier)
	if err != nil {
		s.logger.Error("分析の開始に失敗しました", "identifier", identifier, "error", err)
		s.tracker.Abort(handle, err)
		s.publish(Event{Type: EventStartFailed, Identifier: identifier, Message: err.Error(), Err: err})
		return nil, fmt.Errorf("分析の開始に失敗: %w", err)
	}

	s.logger.Info("分析を開始しました", "identifier", identifier, "response", string(resp))
	s.recordStart(identifier)

	if err := s.tracker.Start(handle, s.pollLoop); err != nil {
		s.publish(Event{Type: EventStartFailed, Identifier: identifier, Message: err.Error(), Err: err})
		return nil, err
	}
	return handle, nil
}

// pollLoop はトラッカーから起動されるポーリング処理。
// 置き換えられた前のループの終了後に呼ばれるため、EventStarted は前のループの全イベントより後になる。
func (s *Service) pollLoop(ctx context.Context, h *PollHandle) (Status, int, error) {
	s.publish(Event{Type: EventStarted, Identifier: h.Identifier, RunID: h.RunID, Status: StatusPending})

	status, attempts, err := s.poller.Run(ctx, h.Identifier, func(r PollResult) {
		if r.Err != nil {
			s.publish(Event{
				Type:       EventPollFailed,
				Identifier: h.Identifier,
				RunID:      h.RunID,
				Attempt:    r.Attempt,
				Message:    r.Err.Error(),
				Err:        r.Err,
			})
			return
		}
		s.recordStatus(h.Identifier, r.Status)
		s.publish(Event{
			Type:       EventPolled,
			Identifier: h.Identifier,
			RunID:      h.RunID,
			Status:     r.Status,
			Attempt:    r.Attempt,
		})
	})

	if err == nil && status.IsTerminal() {
		s.logger.Info("分析が完了しました", "identifier", h.Identifier, "attempts", attempts)
		s.publish(Event{
			Type:       EventComplete,
			Identifier: h.Identifier,
			RunID:      h.RunID,
			Status:     status,
			Attempt:    attempts,
		})
		return status, attempts, nil
	}

	if errors.Is(err, ErrSuperseded) {
		s.logger.Info("ポーリングが置き換えられました", "identifier", h.Identifier, "runID", h.RunID)
	} else {
		s.logger.Warn("ポーリングを終了しました", "identifier", h.Identifier, "attempts", attempts, "error", err)
	}
	s.publish(Event{
		Type:       EventStopped,
		Identifier: h.Identifier,
		RunID:      h.RunID,
		Status:     status,
		Attempt:    attempts,
		Message:    stopReason(err),
		Err:        err,
	})
	return status, attempts, err
}

// PollOnce はステータスを1回確認し、観測結果を記録する
func (s *Service) PollOnce(ctx context.Context, rawIdentifier string) (Status, error) {
	identifier, err := NormalizeIdentifier(rawIdentifier)
	if err != nil {
		return StatusPending, err
	}

	status, err := s.poller.PollOnce(ctx, identifier)
	if err != nil {
		return StatusPending, err
	}
	s.recordStatus(identifier, status)
	return status, nil
}

// FetchResult は完了した分析の結果を取得する。
// Complete を観測していない場合は ErrNotReady、結果が空の場合は ErrNotFound を返す。
func (s *Service) FetchResult(ctx context.Context, rawIdentifier string) (string, error) {
	identifier, err := NormalizeIdentifier(rawIdentifier)
	if err != nil {
		return "", err
	}

	// 共有される取得は呼び出し元のキャンセルから切り離す。各リクエストはクライアントのタイムアウトで打ち切られる。
	shared := context.WithoutCancel(ctx)
	ch := s.fetches.DoChan(identifier, func() (any, error) {
		return s.fetchResult(shared, identifier)
	})

	var v any
	select {
	case r := <-ch:
		v, err = r.Val, r.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		s.publish(Event{Type: EventResultUnavailable, Identifier: identifier, Message: err.Error(), Err: err})
		return "", err
	}

	result := v.(string)
	s.publish(Event{Type: EventResult, Identifier: identifier, Status: StatusComplete, Message: result})
	return result, nil
}

func (s *Service) fetchResult(ctx context.Context, identifier string) (string, error) {
	job, known := s.Job(identifier)
	switch {
	case known && !job.Status.IsTerminal():
		return "", fmt.Errorf("%w: %s", ErrNotReady, identifier)
	case !known:
		status, err := s.PollOnce(ctx, identifier)
		if err != nil {
			return "", err
		}
		if !status.IsTerminal() {
			return "", fmt.Errorf("%w: %s", ErrNotReady, identifier)
		}
	}

	res, err := s.remote.GetResult(ctx, identifier)
	if err != nil {
		return "", err
	}

	result, ok := res.Get()
	if !ok || result == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, identifier)
	}

	s.mu.Lock()
	if j, ok := s.jobs[identifier]; ok {
		j.Result = mo.Some(result)
		j.UpdatedAt = s.now()
	}
	s.mu.Unlock()

	return result, nil
}

// Job は識別子について観測済みのジョブを返す
func (s *Service) Job(identifier string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[identifier]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Active は識別子に対して実行中のポーリングがあれば返す
func (s *Service) Active(identifier string) (*PollHandle, bool) {
	return s.tracker.Active(identifier)
}

// Cancel は識別子のポーリングをキャンセルする
func (s *Service) Cancel(identifier string) bool {
	return s.tracker.Cancel(identifier)
}

// Close はすべてのポーリングをキャンセルし、終了を待つ
func (s *Service) Close() {
	s.tracker.Close()
}

func (s *Service) recordStart(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.jobs[identifier] = &Job{
		Identifier: identifier,
		Status:     StatusPending,
		Result:     mo.None[string](),
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *Service) recordStatus(identifier string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	j, ok := s.jobs[identifier]
	if !ok {
		j = &Job{Identifier: identifier, Result: mo.None[string](), StartedAt: now}
		s.jobs[identifier] = j
	}
	j.Status = status
	j.UpdatedAt = now
}

func (s *Service) publish(event Event) {
	s.mu.Lock()
	s.seq++
	event.Seq = s.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}

// stopReason はループ終了理由を表示用の文字列にする
func stopReason(err error) string {
	switch {
	case err == nil:
		return "stopped"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrPollTimeout):
		return "timed out"
	case errors.Is(err, ErrPollLimitExceeded):
		return "poll limit exceeded"
	case errors.Is(err, ErrTooManyPollErrors):
		return "status checks kept failing"
	default:
		return err.Error()
	}
}
