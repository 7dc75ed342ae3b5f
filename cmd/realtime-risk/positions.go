package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ducminhle1904/signal-backtest/internal/realtime"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"gopkg.in/yaml.v3"
)

// positionEntry is the file and HTTP form of a position snapshot. Risk, when
// present, is sent before the snapshot so the position is tracked with it.
type positionEntry struct {
	StrategyID  int64               `json:"strategy_id" yaml:"strategy_id"`
	InstID      string              `json:"inst_id" yaml:"inst_id"`
	Side        string              `json:"side" yaml:"side"`
	EntryPrice  float64             `json:"entry_price" yaml:"entry_price"`
	Size        float64             `json:"size" yaml:"size"`
	InitialStop *float64            `json:"initial_stop,omitempty" yaml:"initial_stop,omitempty"`
	OrderID     string              `json:"order_id" yaml:"order_id"`
	Closed      bool                `json:"closed,omitempty" yaml:"closed,omitempty"`
	Risk        *riskSpec           `json:"risk,omitempty" yaml:"risk,omitempty"`
}

// riskSpec decodes a risk config on top of trading.DefaultRiskConfig.
type riskSpec struct {
	trading.RiskConfig
}

func (r *riskSpec) UnmarshalJSON(b []byte) error {
	cfg := trading.DefaultRiskConfig()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return err
	}
	r.RiskConfig = cfg
	return nil
}

func (r *riskSpec) UnmarshalYAML(n *yaml.Node) error {
	cfg := trading.DefaultRiskConfig()
	if err := n.Decode(&cfg); err != nil {
		return err
	}
	r.RiskConfig = cfg
	return nil
}

type positionsFile struct {
	Positions []positionEntry `json:"positions" yaml:"positions"`
}

// events converts the entry to engine events, risk config first.
func (p positionEntry) events() ([]realtime.Event, error) {
	if p.InstID == "" {
		return nil, fmt.Errorf("position of strategy %d has no inst_id", p.StrategyID)
	}
	side, err := types.ParseTradeSide(p.Side)
	if err != nil && !p.Closed {
		return nil, err
	}
	if !p.Closed && (p.EntryPrice <= 0 || p.Size <= 0) {
		return nil, fmt.Errorf("position %d/%s needs a positive entry_price and size", p.StrategyID, p.InstID)
	}

	instID := strings.ToUpper(p.InstID)
	var out []realtime.Event
	if p.Risk != nil {
		out = append(out, &realtime.RiskConfigEvent{StrategyID: p.StrategyID, InstID: instID, Risk: p.Risk.RiskConfig})
	}
	out = append(out, &realtime.PositionEvent{Snapshot: realtime.PositionSnapshot{
		StrategyID:  p.StrategyID,
		InstID:      instID,
		Side:        side,
		EntryPrice:  p.EntryPrice,
		Size:        p.Size,
		InitialStop: p.InitialStop,
		OrderID:     p.OrderID,
		IsOpen:      !p.Closed,
	}})
	return out, nil
}

// loadPositions reads the positions to track at startup from a JSON or YAML file.
func loadPositions(path string) ([]realtime.Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file positionsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &file)
	default:
		err = json.Unmarshal(raw, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var out []realtime.Event
	for _, p := range file.Positions {
		evs, err := p.events()
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	return out, nil
}

// positionsHandler accepts POSTed position entries and forwards them to send.
func positionsHandler(send func(realtime.Event) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var entry positionEntry
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&entry); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if entry.Risk != nil {
			if err := entry.Risk.Validate(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		evs, err := entry.events()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, ev := range evs {
			if err := send(ev); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusAccepted)
	})
}
