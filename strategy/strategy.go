package strategy

import (
	"sync"

	"ema-hedger-bot/execution"
	"ema-hedger-bot/indicators"
	"ema-hedger-bot/marketdata"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds the tunables of the EMA hedger strategy.
type Config struct {
	// EMAPeriod is the lookback of the exponential moving average.
	EMAPeriod int `json:"emaPeriod" yaml:"ema_period"`

	// OrderNotional is the fixed quote amount spent per entry or average
	// order; quantity is derived as notional divided by price.
	OrderNotional decimal.Decimal `json:"orderNotional" yaml:"order_notional"`

	// AveragingTriggerPercent is the minimum drop of price below the
	// average long price, in percent, before another average order opens.
	AveragingTriggerPercent decimal.Decimal `json:"averagingTriggerPercent" yaml:"averaging_trigger_percent"`

	EnableLogging bool `json:"enableLogging" yaml:"enable_logging"`
}

func DefaultConfig() Config {
	return Config{
		EMAPeriod:               50,
		OrderNotional:           decimal.NewFromInt(100),
		AveragingTriggerPercent: decimal.NewFromFloat(1.0),
		EnableLogging:           true,
	}
}

// SymbolStatus is the per-symbol slice of a Status snapshot.
type SymbolStatus struct {
	Symbol           string          `json:"symbol"`
	OpenLongOrders   int             `json:"openLongOrders"`
	OpenShortOrders  int             `json:"openShortOrders"`
	TotalLongSize    decimal.Decimal `json:"totalLongSize"`
	TotalShortSize   decimal.Decimal `json:"totalShortSize"`
	AverageLongPrice decimal.Decimal `json:"averageLongPrice"`
	IsHedged         bool            `json:"isHedged"`
	LastLongIndex    int             `json:"lastLongIndex"`
}

// Status is a point-in-time snapshot of the whole strategy.
type Status struct {
	Strategy       string          `json:"strategy"`
	Config         Config          `json:"config"`
	Stats          execution.Stats `json:"stats"`
	TrackedSymbols int             `json:"trackedSymbols"`
	Positions      []SymbolStatus  `json:"positions"`
}

// StrategyEngine consumes candles and drives the EMA crossing strategy:
// longs on upward crossings, averaging into drawdowns above the EMA, and
// hedge shorts that track long exposure below it.
type StrategyEngine interface {
	ProcessCandle(candle marketdata.Candle)
	GetStatus() Status
	GetStats() execution.Stats
	LogStats()
}

type strategyEngine struct {
	config Config
	ema    indicators.EMAEngine
	ledger execution.PositionLedger
	logger *zap.Logger

	// symbolLocks serializes candle processing per symbol; different
	// symbols proceed concurrently.
	symbolLocks map[string]*sync.Mutex
	mu          sync.Mutex
}

func NewStrategyEngine(config Config, ema indicators.EMAEngine, ledger execution.PositionLedger, logger *zap.Logger) StrategyEngine {
	defaults := DefaultConfig()
	if config.EMAPeriod <= 0 {
		config.EMAPeriod = defaults.EMAPeriod
	}
	if config.OrderNotional.Sign() <= 0 {
		config.OrderNotional = defaults.OrderNotional
	}
	if config.AveragingTriggerPercent.Sign() <= 0 {
		config.AveragingTriggerPercent = defaults.AveragingTriggerPercent
	}
	if logger == nil || !config.EnableLogging {
		logger = zap.NewNop()
	}
	return &strategyEngine{
		config:      config,
		ema:         ema,
		ledger:      ledger,
		logger:      logger,
		symbolLocks: make(map[string]*sync.Mutex),
	}
}

// ProcessCandle runs one candle through the strategy. Candles for one symbol
// must arrive in order; crossing detection is order-dependent. Failures are
// contained to the candle: they are logged and never propagate.
func (se *strategyEngine) ProcessCandle(candle marketdata.Candle) {
	defer func() {
		if r := recover(); r != nil {
			se.logger.Error("Candle processing panic recovered",
				zap.String("symbol", candle.Symbol),
				zap.Any("panic", r))
		}
	}()

	if err := candle.Validate(); err != nil {
		se.logger.Warn("Dropping invalid candle",
			zap.String("symbol", candle.Symbol),
			zap.Error(err))
		return
	}

	lock := se.lockFor(candle.Symbol)
	lock.Lock()
	defer lock.Unlock()

	reading, ok := se.ema.UpdateEMA(candle, se.config.EMAPeriod)
	if !ok {
		return // still warming up
	}

	if signal, found := se.ema.DetectCrossing(candle, se.config.EMAPeriod); found {
		se.handleCrossing(candle, signal)
	}
	se.manageExposure(candle, reading)
}

func (se *strategyEngine) handleCrossing(candle marketdata.Candle, signal indicators.Signal) {
	symbol := candle.Symbol
	price := candle.Close

	switch signal.Type {
	case indicators.SignalCrossUp:
		quantity := se.config.OrderNotional.Div(price)
		position, exists := se.ledger.GetPosition(symbol)
		if !exists || position.TotalLongSize.IsZero() {
			se.ledger.OpenEntryLong(symbol, price, quantity)
		} else {
			se.ledger.OpenAverageLong(symbol, price, quantity)
		}
		// Price is back above the EMA, hedges are no longer wanted.
		se.ledger.CloseAllShorts(symbol, price)

		se.logger.Info("Crossed above EMA",
			zap.String("symbol", symbol),
			zap.String("price", price.String()),
			zap.Float64("ema", signal.EMAValue))

	case indicators.SignalCrossDown:
		position, exists := se.ledger.GetPosition(symbol)
		if !exists || position.TotalLongSize.Sign() <= 0 {
			return
		}
		result := se.ledger.CloseLastProfitableLongs(symbol, price)
		if result.RemainingLongSize.Sign() > 0 {
			se.ledger.OpenHedgeShort(symbol, price, result.RemainingLongSize)
		}

		se.logger.Info("Crossed below EMA",
			zap.String("symbol", symbol),
			zap.String("price", price.String()),
			zap.Int("closedLongs", len(result.ClosedOrders)),
			zap.String("realizedPnl", result.TotalPnl.String()),
			zap.String("remainingLongSize", result.RemainingLongSize.String()))
	}
}

// manageExposure runs on every processed candle, crossing or not: it hedges
// unhedged longs once price sits below the EMA, and averages into drawdowns
// while price holds above it.
func (se *strategyEngine) manageExposure(candle marketdata.Candle, reading indicators.EMAReading) {
	symbol := candle.Symbol
	price := candle.Close
	closeValue := price.InexactFloat64()

	if closeValue < reading.Value {
		if se.ledger.HasUnhedgedLongs(symbol) {
			position, _ := se.ledger.GetPosition(symbol)
			se.ledger.OpenHedgeShort(symbol, price, position.TotalLongSize)
			se.logger.Info("Opened defensive hedge",
				zap.String("symbol", symbol),
				zap.String("price", price.String()),
				zap.String("size", position.TotalLongSize.String()))
		}
		return
	}
	if closeValue == reading.Value {
		return
	}

	position, exists := se.ledger.GetPosition(symbol)
	if !exists || position.TotalLongSize.Sign() <= 0 || position.AverageLongPrice.Sign() <= 0 {
		return
	}
	dropPercent := position.AverageLongPrice.Sub(price).
		Div(position.AverageLongPrice).
		Mul(decimal.NewFromInt(100))
	if dropPercent.LessThanOrEqual(se.config.AveragingTriggerPercent) {
		return
	}

	quantity := se.config.OrderNotional.Div(price)
	se.ledger.OpenAverageLong(symbol, price, quantity)
	se.logger.Info("Averaged into drawdown",
		zap.String("symbol", symbol),
		zap.String("price", price.String()),
		zap.String("dropPercent", dropPercent.String()))

	if position.IsHedged {
		if updated, ok := se.ledger.GetPosition(symbol); ok {
			se.ledger.AdjustHedgeSize(symbol, price, updated.TotalLongSize)
		}
	}
}

func (se *strategyEngine) GetStatus() Status {
	positions := se.ledger.GetAllPositions()
	status := Status{
		Strategy:       "ema-hedger",
		Config:         se.config,
		Stats:          se.ledger.GetStats(),
		TrackedSymbols: se.ema.TrackedSymbols(),
		Positions:      make([]SymbolStatus, 0, len(positions)),
	}
	for _, group := range positions {
		summary := SymbolStatus{
			Symbol:           group.Symbol,
			TotalLongSize:    group.TotalLongSize,
			TotalShortSize:   group.TotalShortSize,
			AverageLongPrice: group.AverageLongPrice,
			IsHedged:         group.IsHedged,
			LastLongIndex:    group.LastLongIndex,
		}
		for _, order := range group.LongOrders {
			if order.Status == execution.StatusOpen {
				summary.OpenLongOrders++
			}
		}
		for _, order := range group.ShortOrders {
			if order.Status == execution.StatusOpen {
				summary.OpenShortOrders++
			}
		}
		status.Positions = append(status.Positions, summary)
	}
	return status
}

func (se *strategyEngine) GetStats() execution.Stats {
	return se.ledger.GetStats()
}

func (se *strategyEngine) LogStats() {
	stats := se.ledger.GetStats()
	se.logger.Info("Strategy stats",
		zap.Int("totalOrders", stats.TotalOrders),
		zap.Int("longOrders", stats.LongOrders),
		zap.Int("shortOrders", stats.ShortOrders),
		zap.Int("closedOrders", stats.ClosedOrders),
		zap.String("totalPnl", stats.TotalPnl.String()),
		zap.String("winRate", stats.WinRate.StringFixed(2)),
		zap.Int("activePositions", stats.ActivePositions),
		zap.String("balance", stats.Balance.String()))

	for _, group := range se.ledger.GetAllPositions() {
		se.logger.Info("Active position",
			zap.String("symbol", group.Symbol),
			zap.String("totalLongSize", group.TotalLongSize.String()),
			zap.String("totalShortSize", group.TotalShortSize.String()),
			zap.String("averageLongPrice", group.AverageLongPrice.String()),
			zap.Bool("isHedged", group.IsHedged))
	}
}

func (se *strategyEngine) lockFor(symbol string) *sync.Mutex {
	se.mu.Lock()
	defer se.mu.Unlock()
	lock, exists := se.symbolLocks[symbol]
	if !exists {
		lock = &sync.Mutex{}
		se.symbolLocks[symbol] = lock
	}
	return lock
}
