package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	bars map[string][]types.Bar
}

func (f fakeRepo) GetCandles(_ context.Context, symbol, _ string, _, _ time.Time) ([]types.Bar, error) {
	bars, ok := f.bars[symbol]
	if !ok {
		return nil, errors.New("no candles")
	}
	return bars, nil
}

func TestWorkerPoolRunsJobs(t *testing.T) {
	pool := NewWorkerPool(2, 4)
	pool.Start()

	factory := func() (*Runner, error) {
		gen := newScripted(10).at(barTS(551), longAt(100, 95))
		return NewStrategyRunner[*scriptedState, int](gen), nil
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.SubmitJob(Job{ID: "job", Index: i, InstID: "X", Bars: rallyScenario(), Risk: trading.DefaultRiskConfig(), NewRunner: factory}))
	}

	var got []JobResult
	done := make(chan struct{})
	go func() {
		for res := range pool.GetResults() {
			got = append(got, res)
		}
		close(done)
	}()
	pool.Stop()
	<-done

	require.Len(t, got, 3)
	for _, res := range got {
		require.NoError(t, res.Error)
		assert.InDelta(t, 111.93, res.Result.Funds, 1e-9)
	}
}

func TestBatchProcessorKeepsRequestOrder(t *testing.T) {
	repo := fakeRepo{bars: map[string][]types.Bar{
		"BTCUSDT": rallyScenario(),
		"ETHUSDT": flatBars(600, 100),
	}}
	requests := []BatchRequest{
		{Symbol: "BTCUSDT", Interval: "60", Risk: trading.DefaultRiskConfig()},
		{Symbol: "SOLUSDT", Interval: "60", Risk: trading.DefaultRiskConfig()},
		{Symbol: "ETHUSDT", Interval: "60", Risk: trading.DefaultRiskConfig()},
	}
	factory := func() (*Runner, error) {
		return NewStrategyRunner[*scriptedState, int](newScripted(10).at(barTS(551), longAt(100, 95))), nil
	}

	bp := NewBatchProcessor(3, 0, repo, nil)
	results, err := bp.ProcessBatch(context.Background(), requests, factory)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "BTCUSDT_60_0", results[0].ID)
	assert.InDelta(t, 111.93, results[0].Result.Funds, 1e-9)
	assert.Error(t, results[1].Error)
	assert.Nil(t, results[1].Result)
	require.NoError(t, results[2].Error)
	assert.Equal(t, "ETHUSDT", results[2].Result.InstID)

	done, total, pct, _ := bp.Progress().GetProgress()
	assert.Equal(t, 3, done)
	assert.Equal(t, 3, total)
	assert.Equal(t, 100.0, pct)
}

func TestBatchProgressReadableWhileRunning(t *testing.T) {
	repo := fakeRepo{bars: map[string][]types.Bar{"BTCUSDT": rallyScenario()}}
	requests := make([]BatchRequest, 6)
	for i := range requests {
		requests[i] = BatchRequest{Symbol: "BTCUSDT", Interval: "60", Risk: trading.DefaultRiskConfig()}
	}
	factory := func() (*Runner, error) {
		return NewStrategyRunner[*scriptedState, int](newScripted(10)), nil
	}
	bp := NewBatchProcessor(2, 1, repo, nil)
	assert.Nil(t, bp.Progress())

	stop := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if pt := bp.Progress(); pt != nil {
				done, total, _, _ := pt.GetProgress()
				assert.LessOrEqual(t, done, total)
			}
		}
	}()

	results, err := bp.ProcessBatch(context.Background(), requests, factory)
	close(stop)
	<-polled
	require.NoError(t, err)
	require.Len(t, results, 6)

	done, total, _, _ := bp.Progress().GetProgress()
	assert.Equal(t, 6, done)
	assert.Equal(t, 6, total)
}

func TestWorkerPoolReportsFactoryError(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.Start()
	require.NoError(t, pool.SubmitJob(Job{ID: "bad", NewRunner: func() (*Runner, error) { return nil, errors.New("no strategy") }}))

	res := <-pool.GetResults()
	pool.Stop()
	assert.EqualError(t, res.Error, "no strategy")
}

func TestProgressTracker(t *testing.T) {
	pt := NewProgressTracker(4)
	assert.Equal(t, time.Duration(0), pt.EstimateTimeRemaining())
	pt.Increment()
	pt.Increment()
	done, total, pct, _ := pt.GetProgress()
	assert.Equal(t, 2, done)
	assert.Equal(t, 4, total)
	assert.Equal(t, 50.0, pct)
}
