package exchange

import "strings"

// NormalizeSymbol maps the symbol spellings seen across exchanges and config
// files ("BNB/USDT", "BNB-USDT-SWAP", "bnbusdt") to the canonical Binance
// futures form ("BNBUSDT"). Everything past this boundary sees only the
// canonical form.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.TrimSuffix(s, "SWAP")
	s = strings.TrimSuffix(s, "PERP")

	// Bare base asset defaults to the USDT-margined contract.
	if s != "" && !strings.HasSuffix(s, "USDT") && !strings.HasSuffix(s, "USDC") && !strings.HasSuffix(s, "BUSD") {
		s += "USDT"
	}
	return s
}

// BaseAsset returns the base asset of a canonical symbol ("BTCUSDT" -> "BTC").
func BaseAsset(symbol string) string {
	s := NormalizeSymbol(symbol)
	for _, quote := range []string{"USDT", "USDC", "BUSD"} {
		if strings.HasSuffix(s, quote) {
			return strings.TrimSuffix(s, quote)
		}
	}
	return s
}
