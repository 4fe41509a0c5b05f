package analysis

// Confidence grades a multi-timeframe assessment.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Assessment combines a fast and a slow timeframe verdict into one overall
// direction and confidence. Derived, never stored.
type Assessment struct {
	Direction  TrendDirection `json:"direction"`
	Confidence Confidence     `json:"confidence"`
	Fast       TrendVerdict   `json:"fast"`
	Slow       TrendVerdict   `json:"slow"`
}

// Confirms reports whether the assessment backs the given direction with at
// least medium confidence.
func (a Assessment) Confirms(direction TrendDirection) bool {
	return a.Direction == direction && a.Confidence != ConfidenceLow
}

// Aggregate resolves the two verdicts by priority: agreement on a direction
// is high confidence; when the fast timeframe is ambiguous the slow one
// dominates at medium confidence; anything else is neutral.
func Aggregate(fast, slow TrendVerdict) Assessment {
	a := Assessment{Fast: fast, Slow: slow}

	switch {
	case fast.Direction == TrendBullish && slow.Direction == TrendBullish:
		a.Direction = TrendBullish
		a.Confidence = ConfidenceHigh
	case fast.Direction == TrendBearish && slow.Direction == TrendBearish:
		a.Direction = TrendBearish
		a.Confidence = ConfidenceHigh
	case fast.Direction == TrendNeutral && slow.Direction != TrendNeutral:
		a.Direction = slow.Direction
		a.Confidence = ConfidenceMedium
	default:
		a.Direction = TrendNeutral
		a.Confidence = ConfidenceLow
	}
	return a
}
