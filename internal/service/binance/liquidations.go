package binance

import (
	"strings"
	"sync"
	"time"

	"DeepResearch/internal/domain/models"
)

// LiquidationMonitor keeps forced orders per symbol for a sliding window.
type LiquidationMonitor struct {
	window time.Duration

	mu     sync.Mutex
	events map[string][]models.LiquidationEvent
	active bool
}

func NewLiquidationMonitor(window time.Duration) *LiquidationMonitor {
	if window <= 0 {
		window = time.Hour
	}
	return &LiquidationMonitor{window: window, events: make(map[string][]models.LiquidationEvent)}
}

// Record stores one event and prunes the symbol's expired ones.
func (m *LiquidationMonitor) Record(ev models.LiquidationEvent) {
	sym := strings.ToUpper(ev.Symbol)
	if sym == "" || ev.Price <= 0 || ev.Quantity <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = true
	m.events[sym] = append(prune(m.events[sym], ev.Time.Add(-m.window)), ev)
}

// Window sums long and short liquidations in USD over the window ending at
// now. ok is false until the feed has delivered anything, so an idle monitor
// is not mistaken for a quiet market.
func (m *LiquidationMonitor) Window(symbol string, now time.Time) (models.Liquidations, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return models.Liquidations{}, false
	}
	sym := strings.ToUpper(symbol)
	evs := prune(m.events[sym], now.Add(-m.window))
	if len(evs) == 0 {
		delete(m.events, sym)
	} else {
		m.events[sym] = evs
	}

	var out models.Liquidations
	for _, ev := range evs {
		usd := ev.Price * ev.Quantity
		if ev.Side == "SELL" {
			out.LongUSD += usd
		} else {
			out.ShortUSD += usd
		}
	}
	return out, true
}

func prune(evs []models.LiquidationEvent, cutoff time.Time) []models.LiquidationEvent {
	i := 0
	for i < len(evs) && evs[i].Time.Before(cutoff) {
		i++
	}
	return evs[i:]
}
