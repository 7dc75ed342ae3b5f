package indicators

import (
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// DefaultATRPeriod is the ATR period used by the risk policy
const DefaultATRPeriod = 14

// Cache holds the indicators of one run. It is owned by a single goroutine;
// every registered indicator sees every bar exactly once, in order.
type Cache struct {
	atr     *ATR
	named   map[string]Indicator
	order   []string
	lastTs  int64
	updates int
}

// NewCache creates a cache with an ATR of the given period.
func NewCache(atrPeriod int) *Cache {
	if atrPeriod <= 0 {
		atrPeriod = DefaultATRPeriod
	}
	return &Cache{
		atr:   NewATR(atrPeriod),
		named: make(map[string]Indicator),
	}
}

// Register adds an indicator under name; an existing one is replaced.
func (c *Cache) Register(name string, ind Indicator) {
	if _, ok := c.named[name]; !ok {
		c.order = append(c.order, name)
	}
	c.named[name] = ind
}

// Update feeds bar to every indicator. A repeated timestamp is ignored.
func (c *Cache) Update(bar types.Bar) {
	if c.updates > 0 && bar.Timestamp == c.lastTs {
		return
	}
	c.lastTs = bar.Timestamp
	c.updates++
	c.atr.Update(bar)
	for _, name := range c.order {
		c.named[name].Update(bar)
	}
}

// ATR returns the current ATR, 0 until the seed window is complete.
func (c *Cache) ATR() float64 {
	if !c.atr.IsReady() {
		return 0
	}
	return c.atr.GetLastValue()
}

// Value returns the last value of a registered indicator.
func (c *Cache) Value(name string) (float64, bool) {
	ind, ok := c.named[name]
	if !ok || !ind.IsReady() {
		return 0, false
	}
	return ind.GetLastValue(), true
}

// Bars returns the number of distinct bars seen.
func (c *Cache) Bars() int {
	return c.updates
}
