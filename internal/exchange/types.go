package exchange

import "time"

// Candle is a single price bar. Immutable once constructed.
type Candle struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"closeTime"`
}

// Closed reports whether the candle's close time has passed, i.e. the bar
// is no longer forming.
func (c Candle) Closed(now time.Time) bool {
	return c.CloseTime > 0 && c.CloseTime <= now.UnixMilli()
}

// PositionSide identifies the direction of a futures position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// Opposite returns the other side.
func (s PositionSide) Opposite() PositionSide {
	if s == PositionSideLong {
		return PositionSideShort
	}
	return PositionSideLong
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// MarginType for futures positions
type MarginType string

const (
	MarginTypeCrossed  MarginType = "CROSSED"
	MarginTypeIsolated MarginType = "ISOLATED"
)

// Position is a snapshot of one leg of a futures position. Under hedge-mode
// accounts a symbol can hold a long and a short leg at the same time, so
// callers always receive positions as a slice (possibly empty).
type Position struct {
	Symbol           string       `json:"symbol"`
	Side             PositionSide `json:"side"`
	Size             float64      `json:"size"`
	EntryPrice       float64      `json:"entryPrice"`
	MarkPrice        float64      `json:"markPrice"`
	Leverage         int          `json:"leverage"`
	Margin           float64      `json:"margin"`
	LiquidationPrice float64      `json:"liquidationPrice"`
	UnrealizedPnL    float64      `json:"unrealizedPnl"`
	MarginRatio      float64      `json:"marginRatio"`
}

// positionRisk mirrors the /fapi/v2/positionRisk response entry.
// Binance returns numeric fields as strings.
type positionRisk struct {
	Symbol           string  `json:"symbol"`
	PositionAmt      float64 `json:"positionAmt,string"`
	EntryPrice       float64 `json:"entryPrice,string"`
	MarkPrice        float64 `json:"markPrice,string"`
	UnrealizedProfit float64 `json:"unRealizedProfit,string"`
	LiquidationPrice float64 `json:"liquidationPrice,string"`
	Leverage         int     `json:"leverage,string"`
	Notional         float64 `json:"notional,string"`
	IsolatedMargin   float64 `json:"isolatedMargin,string"`
	InitialMargin    float64 `json:"initialMargin,string"`
	PositionSide     string  `json:"positionSide"`
	MarginType       string  `json:"marginType"`
}

// toPosition converts a raw positionRisk entry. Margin is derived from
// notional/leverage, falling back to the exchange-reported initial margin
// when leverage is unset.
func (p positionRisk) toPosition() Position {
	side := PositionSideLong
	size := p.PositionAmt
	if p.PositionSide == "SHORT" || (p.PositionSide == "BOTH" && p.PositionAmt < 0) {
		side = PositionSideShort
	}
	if size < 0 {
		size = -size
	}

	notional := p.Notional
	if notional < 0 {
		notional = -notional
	}
	margin := p.InitialMargin
	if p.Leverage > 0 && notional > 0 {
		margin = notional / float64(p.Leverage)
	}

	marginRatio := 0.0
	if margin > 0 {
		marginRatio = -p.UnrealizedProfit / margin
	}

	return Position{
		Symbol:           p.Symbol,
		Side:             side,
		Size:             size,
		EntryPrice:       p.EntryPrice,
		MarkPrice:        p.MarkPrice,
		Leverage:         p.Leverage,
		Margin:           margin,
		LiquidationPrice: p.LiquidationPrice,
		UnrealizedPnL:    p.UnrealizedProfit,
		MarginRatio:      marginRatio,
	}
}

// OrderParams describes a new futures order.
type OrderParams struct {
	Symbol       string
	Side         OrderSide
	PositionSide PositionSide
	Quantity     float64
	Leverage     int
	MarginType   MarginType
	ReduceOnly   bool
}

// OrderResponse is the acknowledgement for a placed order.
type OrderResponse struct {
	OrderID       int64   `json:"orderId"`
	Symbol        string  `json:"symbol"`
	Status        string  `json:"status"`
	ClientOrderID string  `json:"clientOrderId"`
	AvgPrice      float64 `json:"avgPrice,string"`
	ExecutedQty   float64 `json:"executedQty,string"`
}
