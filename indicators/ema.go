package indicators

import (
	"sync"

	"ema-hedger-bot/marketdata"
)

// EMAEngine maintains one incremental EMA per symbol and detects crossings
// between price and the average.
type EMAEngine interface {
	UpdateEMA(candle marketdata.Candle, period int) (EMAReading, bool)
	DetectCrossing(candle marketdata.Candle, period int) (Signal, bool)
	GetCurrentEMA(symbol string) (float64, bool)
	IsAbove(symbol string, price float64) (bool, bool)
	TrackedSymbols() int
	Clear(symbol string)
}

// EMAReading is one produced EMA value for a symbol.
type EMAReading struct {
	Symbol    string  `json:"symbol"`
	Period    int     `json:"period"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

type SignalType string

const (
	SignalCrossUp   SignalType = "CROSS_UP"
	SignalCrossDown SignalType = "CROSS_DOWN"
)

// Signal is a price/EMA crossing event.
type Signal struct {
	Symbol    string     `json:"symbol"`
	Type      SignalType `json:"type"`
	Price     float64    `json:"price"`
	EMAValue  float64    `json:"ema_value"`
	Timestamp int64      `json:"timestamp"`
}

// emaState holds the incremental EMA data for one symbol. The price buffer is
// only needed until the first value is seeded, so it is capped at twice the
// period with the oldest entries dropped first.
type emaState struct {
	prices   []float64
	value    float64
	previous float64
	hasValue bool
	hasPrev  bool
	period   int
}

type emaEngine struct {
	states map[string]*emaState
	mu     sync.RWMutex
}

// NewEMAEngine creates an empty engine; per-symbol state is created lazily on
// the first candle for a symbol.
func NewEMAEngine() EMAEngine {
	return &emaEngine{
		states: make(map[string]*emaState),
	}
}

// UpdateEMA folds the candle's close into the symbol's EMA. It returns false
// while fewer than period closes have been seen. The first full buffer seeds
// the EMA with the simple moving average; afterwards the standard recurrence
// EMA = close*k + prev*(1-k) with k = 2/(period+1) applies.
func (e *emaEngine) UpdateEMA(candle marketdata.Candle, period int) (EMAReading, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, exists := e.states[candle.Symbol]
	if !exists {
		state = &emaState{period: period}
		e.states[candle.Symbol] = state
	}

	close := candle.Close.InexactFloat64()
	state.prices = append(state.prices, close)
	if len(state.prices) > period*2 {
		state.prices = state.prices[1:]
	}

	if len(state.prices) < period {
		return EMAReading{}, false
	}

	var value float64
	if len(state.prices) == period {
		sum := 0.0
		for _, p := range state.prices {
			sum += p
		}
		value = sum / float64(period)
	} else {
		k := 2.0 / (float64(period) + 1.0)
		value = close*k + state.value*(1.0-k)
	}

	if state.hasValue {
		state.previous = state.value
		state.hasPrev = true
	}
	state.value = value
	state.hasValue = true

	return EMAReading{
		Symbol:    candle.Symbol,
		Period:    period,
		Value:     value,
		Timestamp: candle.CloseTime,
	}, true
}

// DetectCrossing reports a crossing between the candle and the EMA. The
// candle's open is compared against the previous EMA and its close against the
// current EMA; both values must exist. CROSS_UP is checked first.
func (e *emaEngine) DetectCrossing(candle marketdata.Candle, period int) (Signal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	state, exists := e.states[candle.Symbol]
	if !exists || !state.hasValue || !state.hasPrev {
		return Signal{}, false
	}

	open := candle.Open.InexactFloat64()
	close := candle.Close.InexactFloat64()

	if open <= state.previous && close > state.value {
		return Signal{
			Symbol:    candle.Symbol,
			Type:      SignalCrossUp,
			Price:     close,
			EMAValue:  state.value,
			Timestamp: candle.CloseTime,
		}, true
	}

	if open >= state.previous && close < state.value {
		return Signal{
			Symbol:    candle.Symbol,
			Type:      SignalCrossDown,
			Price:     close,
			EMAValue:  state.value,
			Timestamp: candle.CloseTime,
		}, true
	}

	return Signal{}, false
}

// GetCurrentEMA returns the symbol's EMA value, or false before warm-up.
func (e *emaEngine) GetCurrentEMA(symbol string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	state, exists := e.states[symbol]
	if !exists || !state.hasValue {
		return 0, false
	}
	return state.value, true
}

// IsAbove reports whether price is above the symbol's EMA; the second result
// is false when no EMA has been produced yet.
func (e *emaEngine) IsAbove(symbol string, price float64) (bool, bool) {
	value, ok := e.GetCurrentEMA(symbol)
	if !ok {
		return false, false
	}
	return price > value, true
}

// TrackedSymbols returns the number of symbols with EMA state.
func (e *emaEngine) TrackedSymbols() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.states)
}

// Clear drops all EMA state for a symbol.
func (e *emaEngine) Clear(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, symbol)
}
