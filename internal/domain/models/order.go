package models

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy identifies the options structure being traded.
type Strategy string

const (
	StrategyButterfly  Strategy = "butterfly"
	StrategyIronCondor Strategy = "iron_condor"
	StrategyVertical   Strategy = "vertical"
	StrategySonar      Strategy = "sonar"
)

// Strategies lists all supported strategies in stable order.
func Strategies() []Strategy {
	return []Strategy{StrategyButterfly, StrategyIronCondor, StrategyVertical, StrategySonar}
}

// IsValid returns true for a known strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyButterfly, StrategyIronCondor, StrategyVertical, StrategySonar:
		return true
	default:
		return false
	}
}

// ParseStrategy normalizes a raw strategy string.
func ParseStrategy(raw string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown strategy '%s'", raw)
	}
	return s, nil
}

// Order describes one candidate trade. Read-only inside the prediction core.
// Bias fields come from the delta sheet when the caller has one; zero values
// mean "not provided" and produce zero-valued features.
type Order struct {
	Symbol         string
	Strategy       Strategy
	Strikes        []float64
	Right          string // "C", "P" or empty
	Premium        float64
	Risk           float64
	Reward         float64
	PredictedPrice float64
	Expiry         string // YYYYMMDD, optional

	ShortTermBias        float64
	LongTermBias         float64
	BiasConvergence      float64
	DirectionalAgreement bool
}

// Fingerprint returns the canonical cache key for this order: symbol,
// strategy, sorted strikes, expiry and right. Premium, risk and reward are
// deliberately excluded so orders differing only in size share a decision.
func (o Order) Fingerprint() string {
	strikes := make([]float64, len(o.Strikes))
	copy(strikes, o.Strikes)
	sort.Float64s(strikes)

	var b strings.Builder
	b.WriteString(strings.ToUpper(o.Symbol))
	b.WriteByte('|')
	b.WriteString(string(o.Strategy))
	b.WriteByte('|')
	for i, s := range strikes {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%.2f", s)
	}
	b.WriteByte('|')
	b.WriteString(o.Expiry)
	b.WriteByte('|')
	b.WriteString(o.Right)
	return b.String()
}
