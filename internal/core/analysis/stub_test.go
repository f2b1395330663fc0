package analysis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/mo"
)

type statusStep struct {
	status Status
	err    error
}

// stubRemote はスクリプト化されたリモートサービス
type stubRemote struct {
	mu sync.Mutex

	script      map[string][]statusStep
	results     map[string]mo.Option[string]
	startErr    error
	startDelay  time.Duration
	statusDelay time.Duration
	resultGate  chan struct{}

	startCalls  []string
	statusCalls map[string][]time.Time
	resultCalls int
	inFlight    int
	maxInFlight int
}

func newStubRemote() *stubRemote {
	return &stubRemote{
		script:      make(map[string][]statusStep),
		results:     make(map[string]mo.Option[string]),
		statusCalls: make(map[string][]time.Time),
	}
}

func (r *stubRemote) scriptStatuses(identifier string, statuses ...Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range statuses {
		r.script[identifier] = append(r.script[identifier], statusStep{status: st})
	}
}

func (r *stubRemote) scriptError(identifier string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script[identifier] = append(r.script[identifier], statusStep{err: err})
}

func (r *stubRemote) StartAnalysis(ctx context.Context, identifier string) (json.RawMessage, error) {
	r.mu.Lock()
	r.startCalls = append(r.startCalls, identifier)
	delay := r.startDelay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	return json.RawMessage(`{"message":"Analysis started"}`), nil
}

func (r *stubRemote) GetStatus(ctx context.Context, identifier string) (Status, error) {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	r.statusCalls[identifier] = append(r.statusCalls[identifier], time.Now())

	step := statusStep{status: StatusPending}
	if steps := r.script[identifier]; len(steps) > 0 {
		step = steps[0]
		if len(steps) > 1 {
			r.script[identifier] = steps[1:]
		}
	}
	delay := r.statusDelay
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return StatusPending, ctx.Err()
		}
	}
	return step.status, step.err
}

func (r *stubRemote) GetResult(ctx context.Context, identifier string) (mo.Option[string], error) {
	r.mu.Lock()
	r.resultCalls++
	gate := r.resultGate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return mo.None[string](), ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.results[identifier]; ok {
		return res, nil
	}
	return mo.None[string](), nil
}

func (r *stubRemote) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.startCalls)
}

func (r *stubRemote) resultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resultCalls
}

func (r *stubRemote) calls(identifier string) []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.statusCalls[identifier]...)
}

// eventRecorder はイベントを記録する Listener
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *eventRecorder) count(t EventType) int {
	n := 0
	for _, et := range r.types() {
		if et == t {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:             20 * time.Millisecond,
		MaxPolls:             50,
		Timeout:              5 * time.Second,
		MaxConsecutiveErrors: 3,
	}
}
