package execution

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PositionLedger is a paper-trading order and position book. All mutations
// are serialized; reads see a consistent snapshot. Read operations on a
// symbol with no open position return zero values, never errors.
type PositionLedger interface {
	OpenEntryLong(symbol string, price, quantity decimal.Decimal) Order
	OpenAverageLong(symbol string, price, quantity decimal.Decimal) Order
	OpenHedgeShort(symbol string, price, quantity decimal.Decimal) Order
	CloseAllShorts(symbol string, exitPrice decimal.Decimal) []Order
	CloseLastProfitableLongs(symbol string, exitPrice decimal.Decimal) PartialCloseResult
	AdjustHedgeSize(symbol string, price, newLongSize decimal.Decimal) (Order, bool)
	HasUnhedgedLongs(symbol string) bool
	GetPosition(symbol string) (PositionGroup, bool)
	GetAllPositions() []PositionGroup
	GetStats() Stats
	GetBalance() decimal.Decimal
	ClearPosition(symbol string)
}

type Config struct {
	InitialBalance decimal.Decimal `json:"initialBalance" yaml:"initial_balance"`
}

func DefaultConfig() Config {
	return Config{
		InitialBalance: decimal.NewFromInt(10000),
	}
}

type positionLedger struct {
	positions map[string]*PositionGroup
	history   []*Order
	longSeq   int64
	shortSeq  int64
	balance   decimal.Decimal
	logger    *zap.Logger
	mu        sync.RWMutex
}

func NewPositionLedger(config Config, logger *zap.Logger) PositionLedger {
	if config.InitialBalance.IsZero() {
		config.InitialBalance = DefaultConfig().InitialBalance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &positionLedger{
		positions: make(map[string]*PositionGroup),
		balance:   config.InitialBalance,
		logger:    logger,
	}
}

func (l *positionLedger) OpenEntryLong(symbol string, price, quantity decimal.Decimal) Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openLong(symbol, TypeEntry, price, quantity)
}

func (l *positionLedger) OpenAverageLong(symbol string, price, quantity decimal.Decimal) Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openLong(symbol, TypeAverage, price, quantity)
}

func (l *positionLedger) OpenHedgeShort(symbol string, price, quantity decimal.Decimal) Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openShort(symbol, price, quantity)
}

func (l *positionLedger) openLong(symbol string, orderType OrderType, price, quantity decimal.Decimal) Order {
	group := l.group(symbol)
	group.LastLongIndex++
	l.longSeq++

	order := &Order{
		ID:         fmt.Sprintf("L%d", l.longSeq),
		Symbol:     symbol,
		Side:       SideLong,
		Type:       orderType,
		Quantity:   quantity,
		Price:      price,
		Timestamp:  time.Now().UnixMilli(),
		Status:     StatusOpen,
		OrderIndex: group.LastLongIndex,
	}
	l.history = append(l.history, order)
	l.recompute(symbol, group, order)

	l.logger.Info("Opened long order",
		zap.String("id", order.ID),
		zap.String("symbol", symbol),
		zap.String("type", string(orderType)),
		zap.String("price", price.String()),
		zap.String("quantity", quantity.String()))
	return *order
}

func (l *positionLedger) openShort(symbol string, price, quantity decimal.Decimal) Order {
	group := l.group(symbol)
	l.shortSeq++

	order := &Order{
		ID:        fmt.Sprintf("S%d", l.shortSeq),
		Symbol:    symbol,
		Side:      SideShort,
		Type:      TypeHedge,
		Quantity:  quantity,
		Price:     price,
		Timestamp: time.Now().UnixMilli(),
		Status:    StatusOpen,
	}
	l.history = append(l.history, order)
	l.recompute(symbol, group, order)

	l.logger.Info("Opened hedge short",
		zap.String("id", order.ID),
		zap.String("symbol", symbol),
		zap.String("price", price.String()),
		zap.String("quantity", quantity.String()))
	return *order
}

func (l *positionLedger) CloseAllShorts(symbol string, exitPrice decimal.Decimal) []Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeAllShorts(symbol, exitPrice)
}

func (l *positionLedger) closeAllShorts(symbol string, exitPrice decimal.Decimal) []Order {
	group, exists := l.positions[symbol]
	if !exists {
		return nil
	}

	now := time.Now().UnixMilli()
	var closed []Order
	for i := range group.ShortOrders {
		order := &group.ShortOrders[i]
		if order.Status != StatusOpen {
			continue
		}
		// Short pnl: profit when the exit is below the entry.
		pnl := order.Price.Sub(exitPrice).Mul(order.Quantity)
		order.Status = StatusClosed
		order.ClosePrice = exitPrice
		order.CloseTime = now
		order.PnL = pnl
		l.stampHistory(order)
		l.balance = l.balance.Add(pnl)
		closed = append(closed, *order)

		l.logger.Info("Closed hedge short",
			zap.String("id", order.ID),
			zap.String("symbol", symbol),
			zap.String("exitPrice", exitPrice.String()),
			zap.String("pnl", pnl.String()))
	}
	l.recompute(symbol, group, nil)
	return closed
}

// CloseLastProfitableLongs closes open longs newest-first while the batch
// stays profitable as a whole: an order whose pnl would drag the running
// total negative stops the walk immediately, leaving older orders open.
func (l *positionLedger) CloseLastProfitableLongs(symbol string, exitPrice decimal.Decimal) PartialCloseResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := PartialCloseResult{}
	group, exists := l.positions[symbol]
	if !exists {
		return result
	}

	open := make([]*Order, 0, len(group.LongOrders))
	for i := range group.LongOrders {
		if group.LongOrders[i].Status == StatusOpen {
			open = append(open, &group.LongOrders[i])
		}
	}
	sort.Slice(open, func(i, j int) bool {
		return open[i].OrderIndex > open[j].OrderIndex
	})

	now := time.Now().UnixMilli()
	runningTotal := decimal.Zero
	for _, order := range open {
		pnl := exitPrice.Sub(order.Price).Mul(order.Quantity)
		if runningTotal.Add(pnl).Sign() < 0 {
			break
		}
		runningTotal = runningTotal.Add(pnl)
		order.Status = StatusClosed
		order.ClosePrice = exitPrice
		order.CloseTime = now
		order.PnL = pnl
		l.stampHistory(order)
		result.ClosedOrders = append(result.ClosedOrders, *order)
		result.TotalClosedQuantity = result.TotalClosedQuantity.Add(order.Quantity)

		l.logger.Info("Closed long order",
			zap.String("id", order.ID),
			zap.String("symbol", symbol),
			zap.String("exitPrice", exitPrice.String()),
			zap.String("pnl", pnl.String()))
	}
	result.TotalPnl = runningTotal
	l.balance = l.balance.Add(runningTotal)

	l.recompute(symbol, group, nil)
	if g, ok := l.positions[symbol]; ok {
		result.RemainingLongSize = g.TotalLongSize
	}
	return result
}

// AdjustHedgeSize closes every open short at price and, when the remaining
// long exposure is still positive, opens one fresh hedge short sized to it.
func (l *positionLedger) AdjustHedgeSize(symbol string, price, newLongSize decimal.Decimal) (Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.positions[symbol]; !exists {
		return Order{}, false
	}
	l.closeAllShorts(symbol, price)
	if newLongSize.Sign() <= 0 {
		return Order{}, false
	}
	return l.openShort(symbol, price, newLongSize), true
}

func (l *positionLedger) HasUnhedgedLongs(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	group, exists := l.positions[symbol]
	if !exists {
		return false
	}
	return group.TotalLongSize.Sign() > 0 && group.TotalShortSize.IsZero()
}

func (l *positionLedger) GetPosition(symbol string) (PositionGroup, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	group, exists := l.positions[symbol]
	if !exists {
		return PositionGroup{}, false
	}
	return copyGroup(group), true
}

func (l *positionLedger) GetAllPositions() []PositionGroup {
	l.mu.RLock()
	defer l.mu.RUnlock()

	groups := make([]PositionGroup, 0, len(l.positions))
	for _, group := range l.positions {
		groups = append(groups, copyGroup(group))
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Symbol < groups[j].Symbol
	})
	return groups
}

func (l *positionLedger) GetStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		TotalOrders:     len(l.history),
		TotalPnl:        decimal.Zero,
		WinRate:         decimal.Zero,
		ActivePositions: len(l.positions),
		Balance:         l.balance,
	}
	winning := 0
	for _, order := range l.history {
		switch order.Side {
		case SideLong:
			stats.LongOrders++
		case SideShort:
			stats.ShortOrders++
		}
		if order.Status == StatusClosed {
			stats.ClosedOrders++
			stats.TotalPnl = stats.TotalPnl.Add(order.PnL)
			if order.PnL.Sign() > 0 {
				winning++
			}
		}
	}
	if stats.ClosedOrders > 0 {
		stats.WinRate = decimal.NewFromInt(int64(winning)).
			Div(decimal.NewFromInt(int64(stats.ClosedOrders))).
			Mul(decimal.NewFromInt(100))
	}
	return stats
}

func (l *positionLedger) GetBalance() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance
}

// ClearPosition drops a symbol's group without closing its orders. History
// keeps the orders as-is, so aggregate stats are unaffected.
func (l *positionLedger) ClearPosition(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, symbol)
}

func (l *positionLedger) group(symbol string) *PositionGroup {
	group, exists := l.positions[symbol]
	if !exists {
		group = &PositionGroup{
			Symbol:           symbol,
			TotalLongSize:    decimal.Zero,
			TotalShortSize:   decimal.Zero,
			AverageLongPrice: decimal.Zero,
		}
		l.positions[symbol] = group
	}
	return group
}

// recompute refreshes the group's aggregates from its OPEN orders, appending
// added to the side slices first if non-nil. A group that ends up flat on
// both sides is removed immediately.
func (l *positionLedger) recompute(symbol string, group *PositionGroup, added *Order) {
	if added != nil {
		switch added.Side {
		case SideLong:
			group.LongOrders = append(group.LongOrders, *added)
		case SideShort:
			group.ShortOrders = append(group.ShortOrders, *added)
		}
	}

	totalLong := decimal.Zero
	totalShort := decimal.Zero
	weighted := decimal.Zero
	for i := range group.LongOrders {
		order := &group.LongOrders[i]
		if order.Status != StatusOpen {
			continue
		}
		totalLong = totalLong.Add(order.Quantity)
		weighted = weighted.Add(order.Price.Mul(order.Quantity))
	}
	for i := range group.ShortOrders {
		if group.ShortOrders[i].Status == StatusOpen {
			totalShort = totalShort.Add(group.ShortOrders[i].Quantity)
		}
	}

	group.TotalLongSize = totalLong
	group.TotalShortSize = totalShort
	if totalLong.Sign() > 0 {
		group.AverageLongPrice = weighted.Div(totalLong)
	} else {
		group.AverageLongPrice = decimal.Zero
	}
	group.IsHedged = totalShort.Sign() > 0

	if totalLong.IsZero() && totalShort.IsZero() {
		delete(l.positions, symbol)
	}
}

// stampHistory mirrors a close onto the history entry with the same ID.
func (l *positionLedger) stampHistory(order *Order) {
	for _, h := range l.history {
		if h.ID == order.ID {
			*h = *order
			return
		}
	}
}

func copyGroup(group *PositionGroup) PositionGroup {
	out := *group
	out.LongOrders = append([]Order(nil), group.LongOrders...)
	out.ShortOrders = append([]Order(nil), group.ShortOrders...)
	return out
}
