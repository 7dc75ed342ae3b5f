package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ducminhle1904/signal-backtest/internal/risk"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type amendCall struct {
	instID, orderID string
	price           float64
}

type fakeAmender struct {
	mu    sync.Mutex
	calls []amendCall
	fail  int
}

func (a *fakeAmender) MoveStopLoss(_ context.Context, instID, orderID string, price float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, amendCall{instID, orderID, price})
	if a.fail > 0 {
		a.fail--
		return errors.New("exchange rejected amend")
	}
	return nil
}

func (a *fakeAmender) Calls() []amendCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]amendCall(nil), a.calls...)
}

type countingMetrics struct {
	mu        sync.Mutex
	events    map[string]int
	amends    int
	decisions int
}

func (m *countingMetrics) RecordEvent(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events == nil {
		m.events = make(map[string]int)
	}
	m.events[kind]++
}

func (m *countingMetrics) SetQueueDepth(int) {}

func (m *countingMetrics) RecordStopAmend(string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.amends++
}

func (m *countingMetrics) RecordRiskDecision(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions++
}

func dynamicTPRisk() trading.RiskConfig {
	cfg := trading.DefaultRiskConfig()
	cfg.ATRTakeProfitRatio = 1.5
	return cfg
}

func longSnapshot(orderID string) PositionSnapshot {
	return PositionSnapshot{
		StrategyID:  7,
		InstID:      "BTCUSDT",
		Side:        types.Long,
		EntryPrice:  100,
		Size:        2,
		InitialStop: trading.Price(95),
		OrderID:     orderID,
		IsOpen:      true,
	}
}

func candle(ts int64, high, low float64) *CandleEvent {
	mid := (high + low) / 2
	return &CandleEvent{InstID: "BTCUSDT", Bar: types.MustBar(ts, mid, high, low, mid, 1)}
}

// replay queues events, closes the engine and consumes everything.
func replay(t *testing.T, e *Engine, events ...Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, e.Send(ev))
	}
	e.Close()
	require.NoError(t, e.Run(context.Background()))
	<-e.Done()
}

func TestBreakevenThreshold(t *testing.T) {
	assert.InDelta(t, 107.5, BreakevenThreshold(types.Long, 100, trading.Price(95), 0.02), 1e-9)
	assert.InDelta(t, 97.0, BreakevenThreshold(types.Short, 100, nil, 0.02), 1e-9)
	assert.InDelta(t, 103.0, BreakevenThreshold(types.Long, 100, nil, 0.02), 1e-9)
}

func TestEngineMovesStopToBreakeven(t *testing.T) {
	amender := &fakeAmender{}
	e := NewEngine(amender)
	key := Key{StrategyID: 7, InstID: "BTCUSDT"}

	replay(t, e,
		&RiskConfigEvent{StrategyID: 7, InstID: "BTCUSDT", Risk: dynamicTPRisk()},
		&PositionEvent{Snapshot: longSnapshot("ord-1")},
		candle(1, 105, 99),
		candle(2, 108, 101),
		candle(3, 110, 104),
	)

	calls := amender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, amendCall{"BTCUSDT", "ord-1", 100}, calls[0])
	assert.True(t, e.MovedToBreakeven(key))
}

func TestFailedAmendIsRetriedOnNextCandle(t *testing.T) {
	amender := &fakeAmender{fail: 1}
	metrics := &countingMetrics{}
	e := NewEngine(amender, WithMetrics(metrics), WithDefaultRisk(dynamicTPRisk()))

	replay(t, e,
		&PositionEvent{Snapshot: longSnapshot("ord-1")},
		candle(1, 108, 101),
		candle(2, 108, 101),
		candle(3, 108, 101),
	)

	assert.Len(t, amender.Calls(), 2)
	assert.Equal(t, 2, metrics.amends)
	assert.Equal(t, 3, metrics.events["candle"])
	assert.True(t, e.MovedToBreakeven(Key{StrategyID: 7, InstID: "BTCUSDT"}))
}

func TestBreakevenSkippedWithoutDynamicTakeProfit(t *testing.T) {
	amender := &fakeAmender{}
	e := NewEngine(amender)

	replay(t, e,
		&PositionEvent{Snapshot: longSnapshot("ord-1")},
		candle(1, 120, 101),
	)
	assert.Empty(t, amender.Calls())
}

func TestBreakevenNeedsOrderID(t *testing.T) {
	amender := &fakeAmender{}
	e := NewEngine(amender, WithDefaultRisk(dynamicTPRisk()))

	replay(t, e,
		&PositionEvent{Snapshot: longSnapshot("")},
		candle(1, 120, 101),
	)
	assert.Empty(t, amender.Calls())
}

func TestClosedSnapshotDropsState(t *testing.T) {
	amender := &fakeAmender{}
	e := NewEngine(amender, WithDefaultRisk(dynamicTPRisk()))

	closed := longSnapshot("ord-1")
	closed.IsOpen = false
	replay(t, e,
		&PositionEvent{Snapshot: longSnapshot("ord-1")},
		&PositionEvent{Snapshot: closed},
		candle(1, 120, 101),
	)
	assert.Empty(t, amender.Calls())
}

func TestBreakevenFlagSurvivesSnapshotUpdate(t *testing.T) {
	amender := &fakeAmender{}
	e := NewEngine(amender, WithDefaultRisk(dynamicTPRisk()))

	resized := longSnapshot("ord-1")
	resized.Size = 1
	replay(t, e,
		&PositionEvent{Snapshot: longSnapshot("ord-1")},
		candle(1, 108, 101),
		&PositionEvent{Snapshot: resized},
		candle(2, 109, 101),
	)
	assert.Len(t, amender.Calls(), 1)
}

func TestShortBreakevenUsesFallbackStop(t *testing.T) {
	amender := &fakeAmender{}
	e := NewEngine(amender, WithDefaultRisk(dynamicTPRisk()))

	snap := longSnapshot("ord-9")
	snap.Side = types.Short
	snap.InitialStop = nil
	replay(t, e,
		&PositionEvent{Snapshot: snap},
		candle(1, 100.5, 97.5),
		candle(2, 100.5, 96.9),
	)

	calls := amender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 100.0, calls[0].price)
}

func TestRiskConfigCache(t *testing.T) {
	e := NewEngine(&fakeAmender{})
	key := Key{StrategyID: 3, InstID: "ETHUSDT"}
	assert.Equal(t, trading.DefaultRiskConfig(), e.RiskConfig(key))

	custom := dynamicTPRisk()
	custom.MaxLossPercent = 0.05
	invalid := custom
	invalid.MaxLossPercent = 2
	replay(t, e,
		&RiskConfigEvent{StrategyID: 3, InstID: "ETHUSDT", Risk: custom},
		&RiskConfigEvent{StrategyID: 3, InstID: "ETHUSDT", Risk: invalid},
	)
	assert.Equal(t, 0.05, e.RiskConfig(key).MaxLossPercent)
}

func TestDecisionHandlerSeesStopExit(t *testing.T) {
	var got []risk.Decision
	e := NewEngine(&fakeAmender{}, WithDecisionHandler(func(key Key, _ types.Bar, d risk.Decision) {
		assert.Equal(t, "BTCUSDT", key.InstID)
		got = append(got, d)
	}))

	unconfirmed, err := types.NewBar(2, 100, 100, 90, 92, 1, 0)
	require.NoError(t, err)
	replay(t, e,
		&PositionEvent{Snapshot: longSnapshot("ord-1")},
		candle(1, 101, 99),
		&CandleEvent{InstID: "BTCUSDT", Bar: unconfirmed},
		candle(3, 100, 94),
		candle(4, 100, 90),
	)

	require.Len(t, got, 1)
	assert.True(t, got[0].Closed())
}

func TestSendAfterClose(t *testing.T) {
	e := NewEngine(&fakeAmender{})
	e.Close()
	assert.ErrorIs(t, e.Send(candle(1, 100, 99)), ErrEngineClosed)
}

func TestQueueDrainsOnClose(t *testing.T) {
	metrics := &countingMetrics{}
	e := NewEngine(&fakeAmender{}, WithMetrics(metrics))

	events := make([]Event, 0, 1000)
	for i := 0; i < 1000; i++ {
		events = append(events, candle(int64(i+1), 101, 99))
	}
	replay(t, e, events...)
	assert.Equal(t, 1000, metrics.events["candle"])
	assert.Equal(t, 0, e.Pending())
}

func TestRunStopsOnCancel(t *testing.T) {
	e := NewEngine(&fakeAmender{})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()
	require.NoError(t, e.Send(candle(1, 101, 99)))
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.ErrorIs(t, e.Send(candle(2, 101, 99)), ErrEngineClosed)
}

const klinePush = `{"topic":"kline.5.BTCUSDT","type":"snapshot","ts":1672324988882,"data":[{"start":1672324800000,"end":1672325099999,"interval":"5","open":"16649.5","close":"16677","high":"16677","low":"16608","volume":"2.081","turnover":"34666.4005","confirm":true,"timestamp":1672324988882}]}`

func TestParseKlineMessage(t *testing.T) {
	events, err := ParseKlineMessage([]byte(klinePush))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "BTCUSDT", events[0].InstID)
	assert.Equal(t, int64(1672324800000), events[0].Bar.Timestamp)
	assert.Equal(t, 16677.0, events[0].Bar.High)
	assert.True(t, events[0].Bar.IsConfirmed())

	events, err = ParseKlineMessage([]byte(`{"success":true,"ret_msg":"pong","op":"ping"}`))
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = ParseKlineMessage([]byte(`{"topic":"kline.5.BTCUSDT","data":[{"start":1,"open":"x"}]}`))
	assert.Error(t, err)
}

func TestKlineFeedStreamsCandles(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan []string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub struct {
			Op   string   `json:"op"`
			Args []string `json:"args"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub.Args
		_ = conn.WriteMessage(websocket.TextMessage, []byte(klinePush))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *CandleEvent, 1)
	feed := NewKlineFeed("ws"+strings.TrimPrefix(srv.URL, "http"), "5", []string{"btcusdt"}, func(ev Event) error {
		got <- ev.(*CandleEvent)
		cancel()
		return nil
	}, nil)

	err := feed.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"kline.5.BTCUSDT"}, <-subscribed)
	ev := <-got
	assert.Equal(t, 16608.0, ev.Bar.Low)
}
