package exchange

import (
	"testing"
	"time"
)

func TestCandleClosed(t *testing.T) {
	now := time.Now()
	closed := Candle{CloseTime: now.Add(-time.Minute).UnixMilli()}
	forming := Candle{CloseTime: now.Add(time.Minute).UnixMilli()}

	if !closed.Closed(now) {
		t.Error("bar with past close time not reported closed")
	}
	if forming.Closed(now) {
		t.Error("forming bar reported closed")
	}
	if (Candle{}).Closed(now) {
		t.Error("zero-valued bar reported closed")
	}
}

func TestPositionSideOpposite(t *testing.T) {
	if PositionSideLong.Opposite() != PositionSideShort {
		t.Error("opposite of LONG is not SHORT")
	}
	if PositionSideShort.Opposite() != PositionSideLong {
		t.Error("opposite of SHORT is not LONG")
	}
}

func TestPositionRiskConversion(t *testing.T) {
	tests := []struct {
		name       string
		raw        positionRisk
		wantSide   PositionSide
		wantSize   float64
		wantMargin float64
	}{
		{
			name: "long leg derives margin from notional",
			raw: positionRisk{
				Symbol:       "BTCUSDT",
				PositionAmt:  0.5,
				Notional:     50000,
				Leverage:     10,
				PositionSide: "LONG",
			},
			wantSide:   PositionSideLong,
			wantSize:   0.5,
			wantMargin: 5000,
		},
		{
			name: "one-way short by negative amount",
			raw: positionRisk{
				Symbol:       "ETHUSDT",
				PositionAmt:  -2,
				Notional:     -8000,
				Leverage:     4,
				PositionSide: "BOTH",
			},
			wantSide:   PositionSideShort,
			wantSize:   2,
			wantMargin: 2000,
		},
		{
			name: "zero leverage falls back to initial margin",
			raw: positionRisk{
				Symbol:        "SOLUSDT",
				PositionAmt:   10,
				Notional:      1750,
				InitialMargin: 350,
				PositionSide:  "LONG",
			},
			wantSide:   PositionSideLong,
			wantSize:   10,
			wantMargin: 350,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := tt.raw.toPosition()
			if pos.Side != tt.wantSide {
				t.Errorf("side = %v, want %v", pos.Side, tt.wantSide)
			}
			if pos.Size != tt.wantSize {
				t.Errorf("size = %v, want %v", pos.Size, tt.wantSize)
			}
			if pos.Margin != tt.wantMargin {
				t.Errorf("margin = %v, want %v", pos.Margin, tt.wantMargin)
			}
		})
	}
}
