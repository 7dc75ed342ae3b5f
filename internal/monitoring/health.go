package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

const maxHealthErrors = 10

// HealthChecker reports the liveness of the realtime feed
type HealthChecker struct {
	mu          sync.RWMutex
	lastEvent   time.Time
	lastPrice   float64
	isConnected bool
	staleAfter  time.Duration
	errors      []string
}

// HealthStatus is the JSON body of the health endpoint
type HealthStatus struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	LastEvent   time.Time `json:"last_event"`
	LastPrice   float64   `json:"last_price"`
	IsConnected bool      `json:"is_connected"`
	Uptime      string    `json:"uptime"`
	Errors      []string  `json:"errors,omitempty"`
}

// NewHealthChecker creates a checker that degrades when no event arrived
// within staleAfter
func NewHealthChecker(staleAfter time.Duration) *HealthChecker {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &HealthChecker{
		staleAfter: staleAfter,
		errors:     make([]string, 0),
	}
}

// MarkEvent records a consumed bar
func (h *HealthChecker) MarkEvent(price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastEvent = time.Now()
	h.lastPrice = price
}

// SetConnected records the feed connection state
func (h *HealthChecker) SetConnected(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.isConnected = connected
}

// RecordError keeps the most recent errors
func (h *HealthChecker) RecordError(err error) {
	if err == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err.Error())
	if len(h.errors) > maxHealthErrors {
		h.errors = h.errors[len(h.errors)-maxHealthErrors:]
	}
}

// ClearErrors forgets recorded errors
func (h *HealthChecker) ClearErrors() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = h.errors[:0]
}

// Status computes the current health
func (h *HealthChecker) Status() (HealthStatus, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status, code := "healthy", http.StatusOK
	if !h.isConnected || time.Since(h.lastEvent) > h.staleAfter {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status, code = "unhealthy", http.StatusInternalServerError
	}

	return HealthStatus{
		Status:      status,
		Timestamp:   time.Now(),
		LastEvent:   h.lastEvent,
		LastPrice:   h.lastPrice,
		IsConnected: h.isConnected,
		Uptime:      time.Since(startTime).String(),
		Errors:      append([]string(nil), h.errors...),
	}, code
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	health, code := h.Status()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
