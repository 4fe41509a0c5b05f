package signal

import (
	"strings"
	"testing"
)

// ==================== PARSING ====================

func TestParseCleanJSON(t *testing.T) {
	raw := `{"signal":"BUY","confidence":"HIGH","reason":"breakout above resistance","stop_loss":95000,"take_profit":118000}`

	sig := Parse(raw)
	if sig.Malformed {
		t.Fatalf("clean payload flagged malformed: %q", sig.Rationale)
	}
	if sig.Direction != DirectionBuy {
		t.Errorf("direction = %v, want BUY", sig.Direction)
	}
	if sig.Confidence != ConfidenceHigh {
		t.Errorf("confidence = %v, want HIGH", sig.Confidence)
	}
	if sig.StopLoss != 95000 || sig.TakeProfit != 118000 {
		t.Errorf("stop/target = %v/%v, want 95000/118000", sig.StopLoss, sig.TakeProfit)
	}
}

func TestParseWrappedPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Direction
	}{
		{
			name: "markdown fenced",
			raw:  "```json\n{\"signal\":\"SELL\",\"confidence\":\"MEDIUM\",\"reason\":\"lower highs\"}\n```",
			want: DirectionSell,
		},
		{
			name: "surrounded by prose",
			raw:  `Based on the indicators, my recommendation: {"signal":"BUY","confidence":"LOW","reason":"weak bounce"} - monitor closely.`,
			want: DirectionBuy,
		},
		{
			name: "alias LONG",
			raw:  `{"signal":"long","confidence":"high","reason":"trend"}`,
			want: DirectionBuy,
		},
		{
			name: "alias SHORT",
			raw:  `{"signal":"Short","confidence":"med","reason":"trend"}`,
			want: DirectionSell,
		},
		{
			name: "alias WAIT",
			raw:  `{"signal":"WAIT","confidence":"LOW","reason":"chop"}`,
			want: DirectionHold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Parse(tt.raw)
			if sig.Malformed {
				t.Fatalf("flagged malformed: %q", sig.Rationale)
			}
			if sig.Direction != tt.want {
				t.Errorf("direction = %v, want %v", sig.Direction, tt.want)
			}
		})
	}
}

func TestParseMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "prose only", raw: "I think the market looks bullish today."},
		{name: "truncated JSON", raw: `{"signal":"BUY","confidence":`},
		{name: "unknown direction", raw: `{"signal":"MAYBE","confidence":"HIGH"}`},
		{name: "unknown confidence", raw: `{"signal":"BUY","confidence":"EXTREME"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Parse(tt.raw)
			if !sig.Malformed {
				t.Fatalf("payload %q not flagged malformed: %+v", tt.raw, sig)
			}
			if sig.Direction != DirectionHold {
				t.Errorf("malformed direction = %v, want HOLD", sig.Direction)
			}
			if sig.Rationale == "" {
				t.Error("malformed signal carries no diagnostic rationale")
			}
		})
	}
}

func TestParseMissingConfidenceDefaultsLow(t *testing.T) {
	sig := Parse(`{"signal":"BUY","reason":"momentum"}`)
	if sig.Malformed {
		t.Fatalf("flagged malformed: %q", sig.Rationale)
	}
	if sig.Confidence != ConfidenceLow {
		t.Errorf("confidence = %v, want LOW default", sig.Confidence)
	}
}

// ==================== SCORING ====================

func TestConfidenceScore(t *testing.T) {
	tests := []struct {
		confidence Confidence
		want       float64
	}{
		{ConfidenceHigh, 0.9},
		{ConfidenceMedium, 0.7},
		{ConfidenceLow, 0.5},
		{Confidence("BOGUS"), 0},
	}
	for _, tt := range tests {
		if got := tt.confidence.Score(); got != tt.want {
			t.Errorf("Score(%q) = %v, want %v", tt.confidence, got, tt.want)
		}
	}
}

func TestHold(t *testing.T) {
	sig := Hold("awaiting confirmation")
	if sig.Direction != DirectionHold || sig.Malformed {
		t.Errorf("Hold() = %+v, want genuine HOLD", sig)
	}
	if !strings.Contains(sig.Rationale, "awaiting") {
		t.Errorf("rationale = %q", sig.Rationale)
	}
}
