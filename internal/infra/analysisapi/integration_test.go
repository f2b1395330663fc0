package analysisapi_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/stock-analysis/internal/core/analysis"
	"github.com/jinford/stock-analysis/internal/infra/analysisapi"
	"github.com/jinford/stock-analysis/internal/infra/analysisapi/analysisapitest"
)

const testInterval = 30 * time.Millisecond

func newService(t *testing.T, srv *analysisapitest.Server) *analysis.Service {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := analysisapi.NewClient(srv.URL, analysisapi.WithLogger(logger))
	require.NoError(t, err)

	poller := analysis.NewPoller(client, analysis.PollerConfig{
		Interval:             testInterval,
		MaxPolls:             20,
		Timeout:              5 * time.Second,
		MaxConsecutiveErrors: 3,
	}, analysis.WithPollerLogger(logger))

	svc := analysis.NewService(client, poller, analysis.WithServiceLogger(logger))
	t.Cleanup(svc.Close)
	return svc
}

func TestWorkflow_PendingTwiceThenComplete(t *testing.T) {
	srv := analysisapitest.New()
	defer srv.Close()
	srv.ScriptStatus("ACME", "Pending", "Pending", "Complete")
	srv.SetResult("ACME", "BUY")
	svc := newService(t, srv)

	handle, err := svc.StartAnalysis(context.Background(), "ACME")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	status, err := handle.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, analysis.StatusComplete, status)

	calls := srv.CallsTo("status", "ACME")
	require.Len(t, calls, 3)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].At.Sub(calls[i-1].At), testInterval)
	}
	assert.Equal(t, 1, srv.MaxConcurrentStatus("ACME"))

	result, err := svc.FetchResult(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, "BUY", result)
}

func TestWorkflow_SlowStatusNeverOverlaps(t *testing.T) {
	srv := analysisapitest.New()
	defer srv.Close()
	srv.ScriptStatus("ACME", "Pending", "Pending", "Pending", "Complete")
	srv.SetStatusDelay(2 * testInterval)
	svc := newService(t, srv)

	handle, err := svc.StartAnalysis(context.Background(), "ACME")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = handle.Wait(ctx)
	require.NoError(t, err)

	assert.Len(t, srv.CallsTo("status", "ACME"), 4)
	assert.Equal(t, 1, srv.MaxConcurrentStatus("ACME"))
}

func TestWorkflow_EmptyResultIsNotFound(t *testing.T) {
	srv := analysisapitest.New()
	defer srv.Close()
	srv.ScriptStatus("ACME", "Complete")
	srv.SetResult("ACME", "")
	svc := newService(t, srv)

	handle, err := svc.StartAnalysis(context.Background(), "ACME")
	require.NoError(t, err)
	_, err = handle.Wait(context.Background())
	require.NoError(t, err)

	_, err = svc.FetchResult(context.Background(), "ACME")
	assert.ErrorIs(t, err, analysis.ErrNotFound)
}

func TestWorkflow_StartFailure(t *testing.T) {
	srv := analysisapitest.New()
	defer srv.Close()
	srv.FailStart(http.StatusServiceUnavailable)
	svc := newService(t, srv)

	_, err := svc.StartAnalysis(context.Background(), "ACME")
	require.Error(t, err)
	assert.True(t, analysis.IsTransport(err))
	assert.Empty(t, srv.CallsTo("status", "ACME"))

	_, active := svc.Active("ACME")
	assert.False(t, active)
}
