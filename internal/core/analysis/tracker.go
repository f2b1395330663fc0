package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DuplicatePolicy は同じ識別子のポーリングが実行中に再度開始された場合の動作
type DuplicatePolicy string

const (
	// PolicyRestart は実行中のループをキャンセルして新しいループを開始する
	PolicyRestart DuplicatePolicy = "restart"
	// PolicyIgnore は実行中のループをそのまま返す
	PolicyIgnore DuplicatePolicy = "ignore"
	// PolicyReject は ErrAnalysisAlreadyRunning を返す
	PolicyReject DuplicatePolicy = "reject"
)

// ParseDuplicatePolicy は文字列を DuplicatePolicy に変換する
func ParseDuplicatePolicy(raw string) (DuplicatePolicy, error) {
	switch policy := DuplicatePolicy(strings.ToLower(strings.TrimSpace(raw))); policy {
	case PolicyRestart, PolicyIgnore, PolicyReject:
		return policy, nil
	case "":
		return PolicyRestart, nil
	default:
		return "", fmt.Errorf("unknown duplicate start policy: %q", raw)
	}
}

// PollHandle は実行中または終了したポーリングループへのハンドル
type PollHandle struct {
	Identifier string
	RunID      uuid.UUID

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	// Tracker.mu で保護する
	launched bool
	prev     *PollHandle

	mu       sync.Mutex
	status   Status
	attempts int
	err      error
}

// Done はループ終了時にクローズされるチャネルを返す
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

// Cancel はループをキャンセルする。終了済みの場合は何もしない。
func (h *PollHandle) Cancel() {
	h.cancel(context.Canceled)
}

// Wait はループの終了を待ち、最終ステータスを返す。
// ctx が先に終了した場合はループをキャンセルせずに ctx のエラーを返す。
func (h *PollHandle) Wait(ctx context.Context) (Status, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return StatusPending, ctx.Err()
	}
}

// Result は終了済みループの結果を返す。実行中は Pending と nil を返す。
func (h *PollHandle) Result() (Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == "" {
		return StatusPending, h.err
	}
	return h.status, h.err
}

// Attempts はループが行ったステータス確認の回数を返す
func (h *PollHandle) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

func (h *PollHandle) finish(status Status, attempts int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
	h.attempts = attempts
	h.err = err
}

func (h *PollHandle) running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// RunFunc はトラッカーが起動するポーリング処理
type RunFunc func(ctx context.Context, handle *PollHandle) (Status, int, error)

// Tracker は識別子ごとに高々1つのポーリングループを管理する
type Tracker struct {
	mu     sync.Mutex
	loops  map[string]*PollHandle
	wg     sync.WaitGroup
	root   context.Context
	stop   context.CancelFunc
	closed bool
}

// NewTracker は新しい Tracker を作成する
func NewTracker() *Tracker {
	root, stop := context.WithCancel(context.Background())
	return &Tracker{
		loops: make(map[string]*PollHandle),
		root:  root,
		stop:  stop,
	}
}

// Active は識別子に対して実行中のループがあれば返す
func (t *Tracker) Active(identifier string) (*PollHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.loops[identifier]
	if !ok || !h.running() {
		return nil, false
	}
	return h, true
}

// Reserve は識別子に対するポーリングの枠を予約する。開始リクエストの前に呼ぶこと。
// reserved が false の場合は既存のハンドルが返され、呼び出し側は開始リクエストを送らない。
//
// 実行中のループがある場合の動作は policy に従う。PolicyRestart の前のループは
// Start が呼ばれるまで動き続ける。別の開始リクエストが処理中の場合、
// PolicyReject はエラー、それ以外はその予約のハンドルを返す。
func (t *Tracker) Reserve(identifier string, policy DuplicatePolicy) (h *PollHandle, reserved bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, false, ErrTrackerClosed
	}

	var prev *PollHandle
	if cur, ok := t.loops[identifier]; ok && cur.running() {
		switch {
		case policy == PolicyReject:
			return nil, false, fmt.Errorf("%w: %s", ErrAnalysisAlreadyRunning, identifier)
		case policy == PolicyIgnore || !cur.launched:
			return cur, false, nil
		default:
			prev = cur
		}
	}

	ctx, cancel := context.WithCancelCause(t.root)
	h = &PollHandle{
		Identifier: identifier,
		RunID:      uuid.New(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		prev:       prev,
	}
	t.loops[identifier] = h
	return h, true, nil
}

// Start は予約済みのハンドルでポーリングループを起動する。
// 置き換え対象のループがあればキャンセルし、その終了後に run を呼ぶ。
func (t *Tracker) Start(h *PollHandle, run RunFunc) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.Abort(h, ErrTrackerClosed)
		return ErrTrackerClosed
	}
	h.launched = true
	prev := h.prev
	h.prev = nil
	if prev != nil {
		prev.cancel(ErrSuperseded)
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()

		if prev != nil {
			<-prev.done
		}

		status, attempts, err := run(h.ctx, h)
		h.finish(status, attempts, err)

		t.mu.Lock()
		if t.loops[h.Identifier] == h {
			delete(t.loops, h.Identifier)
		}
		t.mu.Unlock()

		h.cancel(nil)
		close(h.done)
	}()

	return nil
}

// Abort は開始できなかった予約を解放する。置き換え予定だったループは実行中のまま残る。
func (t *Tracker) Abort(h *PollHandle, cause error) {
	t.mu.Lock()
	if t.loops[h.Identifier] == h {
		if h.prev != nil && h.prev.running() {
			t.loops[h.Identifier] = h.prev
		} else {
			delete(t.loops, h.Identifier)
		}
	}
	h.prev = nil
	t.mu.Unlock()

	h.finish(StatusPending, 0, cause)
	h.cancel(cause)
	close(h.done)
}

// Launch は Reserve と Start をまとめて行う
func (t *Tracker) Launch(identifier string, policy DuplicatePolicy, run RunFunc) (*PollHandle, error) {
	h, reserved, err := t.Reserve(identifier, policy)
	if err != nil || !reserved {
		return h, err
	}
	if err := t.Start(h, run); err != nil {
		return nil, err
	}
	return h, nil
}

// Cancel は識別子の実行中ループをキャンセルする
func (t *Tracker) Cancel(identifier string) bool {
	h, ok := t.Active(identifier)
	if !ok {
		return false
	}
	h.Cancel()
	return true
}

// Len は実行中のループ数を返す
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, h := range t.loops {
		if h.running() {
			n++
		}
	}
	return n
}

// Close はすべてのループをキャンセルし、終了を待つ
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.stop()
	t.wg.Wait()
}
