package watch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/stock-analysis/internal/core/analysis"
)

// stubChecker は識別子ごとに決められた順でステータスを返す
type stubChecker struct {
	mu          sync.Mutex
	statuses    map[string][]analysis.Status
	errs        map[string]error
	delay       time.Duration
	calls       int
	inFlight    int
	maxInFlight int
}

func (s *stubChecker) PollOnce(_ context.Context, identifier string) (analysis.Status, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight--
	s.calls++
	if err := s.errs[identifier]; err != nil {
		return analysis.StatusPending, err
	}
	script := s.statuses[identifier]
	if len(script) == 0 {
		return analysis.StatusPending, nil
	}
	status := script[0]
	if len(script) > 1 {
		s.statuses[identifier] = script[1:]
	}
	return status, nil
}

func (s *stubChecker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]Report
	err     error
}

func (n *recordingNotifier) Notify(_ time.Time, reports []Report) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, reports)
	return n.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewJob(t *testing.T) {
	t.Run("識別子を正規化する", func(t *testing.T) {
		job, err := NewJob(Config{Identifiers: []string{" ACME "}}, &stubChecker{}, nil, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, []string{"ACME"}, job.config.Identifiers)
		assert.Equal(t, DefaultSchedule, job.config.CronSchedule)
	})

	t.Run("空の識別子はエラー", func(t *testing.T) {
		_, err := NewJob(Config{Identifiers: []string{"ACME", "  "}}, &stubChecker{}, nil, discardLogger())
		assert.ErrorIs(t, err, analysis.ErrEmptyIdentifier)
	})

	t.Run("監視対象なしはエラー", func(t *testing.T) {
		_, err := NewJob(Config{}, &stubChecker{}, nil, discardLogger())
		assert.ErrorIs(t, err, analysis.ErrEmptyIdentifier)
	})
}

func TestJob_Run(t *testing.T) {
	checker := &stubChecker{
		statuses: map[string][]analysis.Status{
			"ACME": {analysis.StatusPending, analysis.StatusComplete},
		},
		errs: map[string]error{
			"Globex": &analysis.TransportError{Op: "status", Err: errors.New("refused")},
		},
	}
	notifier := &recordingNotifier{}

	job, err := NewJob(Config{Identifiers: []string{"ACME", "Globex"}}, checker, notifier, discardLogger())
	require.NoError(t, err)

	ctx := context.Background()

	reports, err := job.Run(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, analysis.StatusPending, reports[0].Status)
	assert.False(t, reports[0].NewlyComplete)
	assert.Error(t, reports[1].Err)

	// 初めて Complete を観測したときだけ NewlyComplete になる
	reports, err = job.Run(ctx)
	require.NoError(t, err)
	assert.True(t, reports[0].NewlyComplete)

	reports, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, analysis.StatusComplete, reports[0].Status)
	assert.False(t, reports[0].NewlyComplete)

	assert.Len(t, notifier.batches, 3)
}

func TestJob_RunNotifyError(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("disk full")}
	job, err := NewJob(Config{Identifiers: []string{"ACME"}}, &stubChecker{}, notifier, discardLogger())
	require.NoError(t, err)

	_, err = job.Run(context.Background())
	assert.ErrorContains(t, err, "disk full")
}

func TestJob_RunCancelled(t *testing.T) {
	checker := &stubChecker{}
	job, err := NewJob(Config{Identifiers: []string{"ACME", "Globex"}}, checker, nil, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = job.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, checker.callCount())
}

func TestJob_StartInvalidSchedule(t *testing.T) {
	job, err := NewJob(Config{CronSchedule: "not a schedule", Identifiers: []string{"ACME"}}, &stubChecker{}, nil, discardLogger())
	require.NoError(t, err)

	assert.Error(t, job.Start(context.Background()))
}

func TestJob_StartRunsOnSchedule(t *testing.T) {
	checker := &stubChecker{}
	var buf safeBuffer
	job, err := NewJob(Config{CronSchedule: "@every 1s", Identifiers: []string{"ACME"}}, checker, NewWriterNotifier(&buf), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, job.Start(ctx))
	assert.Eventually(t, func() bool { return checker.callCount() > 0 }, 5*time.Second, 50*time.Millisecond)
	job.Stop()

	assert.Contains(t, buf.String(), "ACME: Pending")
}

func TestJob_SlowCheckDoesNotOverlap(t *testing.T) {
	checker := &stubChecker{delay: 2500 * time.Millisecond}
	job, err := NewJob(Config{CronSchedule: "@every 1s", Identifiers: []string{"ACME"}}, checker, nil, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, job.Start(ctx))
	time.Sleep(4 * time.Second)
	job.Stop()

	checker.mu.Lock()
	defer checker.mu.Unlock()
	assert.Equal(t, 1, checker.maxInFlight)
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
