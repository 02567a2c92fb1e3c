package execution

import "github.com/shopspring/decimal"

type OrderSide string

const (
	SideLong  OrderSide = "LONG"
	SideShort OrderSide = "SHORT"
)

type OrderType string

const (
	TypeEntry   OrderType = "ENTRY"
	TypeAverage OrderType = "AVERAGE"
	TypeHedge   OrderType = "HEDGE"
)

type OrderStatus string

const (
	StatusOpen   OrderStatus = "OPEN"
	StatusClosed OrderStatus = "CLOSED"
)

// Order is one simulated order. An order is created OPEN and moves to CLOSED
// at most once; CLOSED is terminal. OrderIndex is assigned to long orders
// only and strictly increases per symbol.
type Order struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Type       OrderType       `json:"type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  int64           `json:"timestamp"`
	Status     OrderStatus     `json:"status"`
	ClosePrice decimal.Decimal `json:"closePrice,omitempty"`
	CloseTime  int64           `json:"closeTime,omitempty"`
	PnL        decimal.Decimal `json:"pnl,omitempty"`
	OrderIndex int             `json:"orderIndex,omitempty"`
}

// PositionGroup aggregates all orders for one symbol. Totals and the
// volume-weighted average long price cover OPEN orders only.
type PositionGroup struct {
	Symbol           string          `json:"symbol"`
	LongOrders       []Order         `json:"longOrders"`
	ShortOrders      []Order         `json:"shortOrders"`
	TotalLongSize    decimal.Decimal `json:"totalLongSize"`
	TotalShortSize   decimal.Decimal `json:"totalShortSize"`
	AverageLongPrice decimal.Decimal `json:"averageLongPrice"`
	IsHedged         bool            `json:"isHedged"`
	LastLongIndex    int             `json:"lastLongIndex"`
}

// PartialCloseResult reports the outcome of a profit-preserving partial close.
type PartialCloseResult struct {
	ClosedOrders        []Order         `json:"closedOrders"`
	TotalClosedQuantity decimal.Decimal `json:"totalClosedQuantity"`
	TotalPnl            decimal.Decimal `json:"totalPnl"`
	RemainingLongSize   decimal.Decimal `json:"remainingLongSize"`
}

// Stats summarizes the ledger across all symbols and the full order history.
type Stats struct {
	TotalOrders     int             `json:"totalOrders"`
	LongOrders      int             `json:"longOrders"`
	ShortOrders     int             `json:"shortOrders"`
	ClosedOrders    int             `json:"closedOrders"`
	TotalPnl        decimal.Decimal `json:"totalPnl"`
	WinRate         decimal.Decimal `json:"winRate"`
	ActivePositions int             `json:"activePositions"`
	Balance         decimal.Decimal `json:"balance"`
}
