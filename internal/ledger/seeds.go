package ledger

// DefaultSeeds is the fixed ensemble of scoring strategies. Seed weights sum
// to 1.0; confidence reflects how much historical backtesting supports each
// strategy before live outcomes arrive.
func DefaultSeeds() []Seed {
	return []Seed{
		{StrategyName: "frequency", Weight: 0.14, Confidence: 0.70},
		{StrategyName: "recency", Weight: 0.12, Confidence: 0.65},
		{StrategyName: "gap_analysis", Weight: 0.11, Confidence: 0.60},
		{StrategyName: "hot_cold_mix", Weight: 0.10, Confidence: 0.60},
		{StrategyName: "overdue", Weight: 0.09, Confidence: 0.55},
		{StrategyName: "pair_affinity", Weight: 0.09, Confidence: 0.50},
		{StrategyName: "sum_band", Weight: 0.08, Confidence: 0.55},
		{StrategyName: "delta_spread", Weight: 0.08, Confidence: 0.50},
		{StrategyName: "positional_bias", Weight: 0.07, Confidence: 0.45},
		{StrategyName: "seasonal", Weight: 0.06, Confidence: 0.40},
		{StrategyName: "random_baseline", Weight: 0.06, Confidence: 0.30},
	}
}
