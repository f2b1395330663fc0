package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller_RunStopsOnComplete(t *testing.T) {
	remote := newStubRemote()
	remote.scriptStatuses("ACME", StatusPending, StatusPending, StatusComplete)

	cfg := fastPollerConfig()
	poller := NewPoller(remote, cfg, WithPollerLogger(discardLogger()))

	var observed []PollResult
	status, attempts, err := poller.Run(context.Background(), "ACME", func(r PollResult) {
		observed = append(observed, r)
	})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, status)
	assert.Equal(t, 3, attempts)
	assert.Len(t, observed, 3)

	calls := remote.calls("ACME")
	require.Len(t, calls, 3)
	for i := 1; i < len(calls); i++ {
		gap := calls[i].Sub(calls[i-1])
		assert.GreaterOrEqual(t, gap, cfg.Interval, "poll %d was issued too early", i+1)
	}
}

func TestPoller_PollsNeverOverlap(t *testing.T) {
	remote := newStubRemote()
	remote.statusDelay = 15 * time.Millisecond
	remote.scriptStatuses("ACME", StatusPending, StatusPending, StatusPending, StatusComplete)

	cfg := fastPollerConfig()
	cfg.Interval = time.Millisecond
	poller := NewPoller(remote, cfg, WithPollerLogger(discardLogger()))

	_, attempts, err := poller.Run(context.Background(), "ACME", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 1, remote.maxInFlight)
}

func TestPoller_PollLimit(t *testing.T) {
	remote := newStubRemote()
	cfg := fastPollerConfig()
	cfg.Interval = time.Millisecond
	cfg.MaxPolls = 3
	poller := NewPoller(remote, cfg, WithPollerLogger(discardLogger()))

	status, attempts, err := poller.Run(context.Background(), "ACME", nil)
	assert.ErrorIs(t, err, ErrPollLimitExceeded)
	assert.Equal(t, StatusPending, status)
	assert.Equal(t, 3, attempts)
	assert.Len(t, remote.calls("ACME"), 3)
}

func TestPoller_Timeout(t *testing.T) {
	remote := newStubRemote()
	cfg := fastPollerConfig()
	cfg.Interval = 10 * time.Millisecond
	cfg.MaxPolls = 0
	cfg.Timeout = 50 * time.Millisecond
	poller := NewPoller(remote, cfg, WithPollerLogger(discardLogger()))

	_, _, err := poller.Run(context.Background(), "ACME", nil)
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestPoller_Cancel(t *testing.T) {
	remote := newStubRemote()
	cfg := fastPollerConfig()
	cfg.MaxPolls = 0
	poller := NewPoller(remote, cfg, WithPollerLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := poller.Run(ctx, "ACME", nil)
		done <- err
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poll loop did not stop after cancel")
	}
}

func TestPoller_ConsecutiveErrors(t *testing.T) {
	boom := errors.New("connection refused")

	t.Run("上限に達すると終了する", func(t *testing.T) {
		remote := newStubRemote()
		remote.scriptError("ACME", boom)

		cfg := fastPollerConfig()
		cfg.Interval = time.Millisecond
		cfg.MaxConsecutiveErrors = 2
		poller := NewPoller(remote, cfg, WithPollerLogger(discardLogger()))

		_, attempts, err := poller.Run(context.Background(), "ACME", nil)
		assert.ErrorIs(t, err, ErrTooManyPollErrors)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 2, attempts)
	})

	t.Run("成功するとカウントがリセットされる", func(t *testing.T) {
		remote := newStubRemote()
		remote.scriptError("ACME", boom)
		remote.scriptStatuses("ACME", StatusPending)
		remote.scriptError("ACME", boom)
		remote.scriptStatuses("ACME", StatusComplete)

		cfg := fastPollerConfig()
		cfg.Interval = time.Millisecond
		cfg.MaxConsecutiveErrors = 2
		poller := NewPoller(remote, cfg, WithPollerLogger(discardLogger()))

		var failures int
		status, attempts, err := poller.Run(context.Background(), "ACME", func(r PollResult) {
			if r.Err != nil {
				failures++
			}
		})
		require.NoError(t, err)
		assert.Equal(t, StatusComplete, status)
		assert.Equal(t, 4, attempts)
		assert.Equal(t, 2, failures)
	})
}

func TestPoller_PollOnce(t *testing.T) {
	remote := newStubRemote()
	remote.scriptStatuses("ACME", StatusComplete)
	poller := NewPoller(remote, PollerConfig{}, WithPollerLogger(discardLogger()))

	status, err := poller.PollOnce(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, status)
	assert.Equal(t, DefaultPollInterval, poller.Config().Interval)
}
