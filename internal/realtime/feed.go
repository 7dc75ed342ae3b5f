package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"github.com/gorilla/websocket"
)

// Bybit v5 public stream endpoints
const (
	BybitLinearStreamURL        = "wss://stream.bybit.com/v5/public/linear"
	BybitLinearTestnetStreamURL = "wss://stream-testnet.bybit.com/v5/public/linear"
)

const (
	defaultPingInterval   = 20 * time.Second
	defaultReconnectDelay = 5 * time.Second
	handshakeTimeout      = 10 * time.Second
)

// KlineTopic returns the public stream topic of symbol at interval.
func KlineTopic(interval, symbol string) string {
	return fmt.Sprintf("kline.%s.%s", interval, strings.ToUpper(symbol))
}

// KlineFeed subscribes to the Bybit public kline stream and forwards every
// candle update to a sink, reconnecting after read errors.
type KlineFeed struct {
	url            string
	topics         []string
	sink           func(Event) error
	log            *logger.Logger
	pingInterval   time.Duration
	reconnectDelay time.Duration
	onConnect      func(bool)

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewKlineFeed creates a feed for symbols at interval (a Bybit interval code
// such as "5", "60" or "D").
func NewKlineFeed(url, interval string, symbols []string, sink func(Event) error, log *logger.Logger) *KlineFeed {
	if log == nil {
		log = logger.Nop()
	}
	topics := make([]string, 0, len(symbols))
	for _, s := range symbols {
		topics = append(topics, KlineTopic(interval, s))
	}
	return &KlineFeed{
		url:            url,
		topics:         topics,
		sink:           sink,
		log:            log,
		pingInterval:   defaultPingInterval,
		reconnectDelay: defaultReconnectDelay,
	}
}

// OnConnectionChange registers a callback told about connects and disconnects.
func (f *KlineFeed) OnConnectionChange(fn func(connected bool)) {
	f.onConnect = fn
}

// Run connects and streams until ctx is cancelled.
func (f *KlineFeed) Run(ctx context.Context) error {
	for {
		err := f.session(ctx)
		f.setConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warning("kline stream interrupted, reconnecting in %s: %v", f.reconnectDelay, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *KlineFeed) session(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return pipeerrors.Wrap(err, pipeerrors.ErrorCategoryNetwork, "kline_feed", "Dial").WithContext("url", f.url)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	defer conn.Close()

	if err := f.write(map[string]interface{}{"op": "subscribe", "args": f.topics}); err != nil {
		return err
	}
	f.setConnected(true)
	f.log.Info("subscribed to %s", strings.Join(f.topics, ", "))

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.keepAlive(sessionCtx)
	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return pipeerrors.Wrap(err, pipeerrors.ErrorCategoryNetwork, "kline_feed", "ReadMessage")
		}
		events, err := ParseKlineMessage(message)
		if err != nil {
			f.log.Warning("dropping malformed kline message: %v", err)
			continue
		}
		for _, ev := range events {
			if err := f.sink(ev); err != nil {
				return err
			}
		}
	}
}

func (f *KlineFeed) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.write(map[string]string{"op": "ping"}); err != nil {
				f.log.Warning("failed to send ping: %v", err)
				return
			}
		}
	}
}

func (f *KlineFeed) write(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return pipeerrors.New(pipeerrors.ErrorCategoryNetwork, "kline_feed", "Write", "not connected")
	}
	if err := f.conn.WriteJSON(v); err != nil {
		return pipeerrors.Wrap(err, pipeerrors.ErrorCategoryNetwork, "kline_feed", "Write")
	}
	return nil
}

func (f *KlineFeed) setConnected(connected bool) {
	if f.onConnect != nil {
		f.onConnect(connected)
	}
}

type klineMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  []struct {
		Start   int64  `json:"start"`
		Open    string `json:"open"`
		High    string `json:"high"`
		Low     string `json:"low"`
		Close   string `json:"close"`
		Volume  string `json:"volume"`
		Confirm bool   `json:"confirm"`
	} `json:"data"`
}

// ParseKlineMessage decodes a kline push into candle events. Control frames
// (subscribe acks, pongs) yield no events.
func ParseKlineMessage(raw []byte) ([]*CandleEvent, error) {
	var msg klineMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(msg.Topic, "kline.") {
		return nil, nil
	}
	parts := strings.Split(msg.Topic, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("unexpected topic %q", msg.Topic)
	}
	instID := parts[2]

	events := make([]*CandleEvent, 0, len(msg.Data))
	for _, k := range msg.Data {
		var px [5]float64
		for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("kline %s at %d: %w", instID, k.Start, err)
			}
			px[i] = v
		}
		confirm := 0
		if k.Confirm {
			confirm = 1
		}
		bar, err := types.NewBar(k.Start, px[0], px[1], px[2], px[3], px[4], confirm)
		if err != nil {
			return nil, err
		}
		events = append(events, &CandleEvent{InstID: instID, Bar: bar})
	}
	return events, nil
}
